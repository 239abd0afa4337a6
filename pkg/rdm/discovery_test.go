package rdm

import (
	"sort"
	"testing"
	"time"

	"github.com/backkem/dmx/pkg/dmx"
	"github.com/backkem/dmx/pkg/dmx/transport"
)

// busDevice is one simulated responder in a discovery fixture.
type busDevice struct {
	uid   UID
	muted bool
}

// discoveryBus simulates a bus of responders behind a single pipe
// endpoint, with real collision behavior: when several unmuted devices
// answer DISC_UNIQUE_BRANCH at once, their encoded UIDs are OR-ed
// together the way overlapping line drivers corrupt each other.
type discoveryBus struct {
	devices []*busDevice
}

func (bus *discoveryBus) respond(h *Header, pd []byte) []byte {
	switch h.PID {
	case PIDDiscUnMute:
		var replies [][]byte
		for _, dev := range bus.devices {
			if !dev.uid.IsTargetOf(h.DestUID) {
				continue
			}
			dev.muted = false
			if !h.DestUID.IsBroadcast() {
				replies = append(replies, encodeFrom(h, dev.uid, []byte{0, 0}))
			}
		}
		return collide(replies)

	case PIDDiscMute:
		var replies [][]byte
		for _, dev := range bus.devices {
			if !dev.uid.IsTargetOf(h.DestUID) {
				continue
			}
			dev.muted = true
			if !h.DestUID.IsBroadcast() {
				replies = append(replies, encodeFrom(h, dev.uid, []byte{0, 0}))
			}
		}
		return collide(replies)

	case PIDDiscUniqueBranch:
		if len(pd) != 2*UIDSize {
			return nil
		}
		lo, _ := DecodeUID(pd[:UIDSize])
		hi, _ := DecodeUID(pd[UIDSize:])
		var replies [][]byte
		for _, dev := range bus.devices {
			if dev.muted || dev.uid.Less(lo) || dev.uid.Greater(hi) {
				continue
			}
			euid := make([]byte, MaxPreambleLen+17)
			EncodeEUID(euid, dev.uid, MaxPreambleLen)
			replies = append(replies, euid)
		}
		return collide(replies)
	}
	return nil
}

// encodeFrom frames a DISCOVER response from a specific device.
func encodeFrom(req *Header, src UID, pd []byte) []byte {
	var buf [MaxMessageSize]byte
	n, err := EncodeMessage(buf[:], &Header{
		DestUID:      req.SrcUID,
		SrcUID:       src,
		TN:           req.TN,
		ResponseType: ResponseTypeAck,
		CC:           req.CC.Response(),
		PID:          req.PID,
	}, pd)
	if err != nil {
		panic(err)
	}
	return append([]byte(nil), buf[:n]...)
}

// collide merges simultaneous replies by OR-ing their bytes.
func collide(replies [][]byte) []byte {
	switch len(replies) {
	case 0:
		return nil
	case 1:
		return replies[0]
	}
	max := 0
	for _, r := range replies {
		if len(r) > max {
			max = len(r)
		}
	}
	out := make([]byte, max)
	for _, r := range replies {
		for i, b := range r {
			out[i] |= b
		}
	}
	return out
}

func newDiscoveryBus(t *testing.T, uids ...UID) (*Controller, *discoveryBus) {
	t.Helper()
	bus := &discoveryBus{}
	for _, u := range uids {
		bus.devices = append(bus.devices, &busDevice{uid: u, muted: true})
	}

	a, b := transport.NewPipePair()
	drv, err := dmx.Install(0, dmx.Config{Transport: a})
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	t.Cleanup(func() {
		dmx.Uninstall(0)
		b.Close()
	})

	ctrl, err := NewController(drv, ControllerConfig{
		UID: testControllerUID,
		// Collisions resolve through a mute that nobody answers, so
		// discovery speed is bounded by this timeout.
		RequestTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewController() error: %v", err)
	}
	go runResponder(b, bus.respond)
	return ctrl, bus
}

func TestDiscUniqueBranchSingleDevice(t *testing.T) {
	dev := UID{0x7FF0, 0x12345678}
	ctrl, _ := newDiscoveryBus(t, dev)

	if _, _, err := ctrl.DiscUnMute(BroadcastUID); err != nil {
		t.Fatalf("DiscUnMute() error: %v", err)
	}
	resp, err := ctrl.DiscUniqueBranch(NullUID, UID{0xFFFF, 0xFFFFFFFE})
	if err != nil {
		t.Fatalf("DiscUniqueBranch() error: %v", err)
	}
	if !resp.Ack.OK() {
		t.Fatalf("ack = %v, want ACK", resp.Ack.Type)
	}
	if !resp.Header.SrcUID.Equal(dev) {
		t.Fatalf("decoded uid = %v, want %v", resp.Header.SrcUID, dev)
	}
	if resp.Header.CC != DiscoverCommandResponse || resp.Header.PID != PIDDiscUniqueBranch {
		t.Fatalf("synthetic header = %+v", resp.Header)
	}
}

func TestDiscUniqueBranchOutOfRange(t *testing.T) {
	ctrl, _ := newDiscoveryBus(t, UID{0x7FF0, 0x12345678})
	if _, _, err := ctrl.DiscUnMute(BroadcastUID); err != nil {
		t.Fatalf("DiscUnMute() error: %v", err)
	}
	resp, err := ctrl.DiscUniqueBranch(NullUID, UID{0x0001, 0})
	if err != nil {
		t.Fatalf("DiscUniqueBranch() error: %v", err)
	}
	if resp.Ack.Type != ResponseTypeNone {
		t.Fatalf("ack = %v, want NONE", resp.Ack.Type)
	}
}

func TestDiscMuteSilencesDevice(t *testing.T) {
	dev := UID{0x7FF0, 0x12345678}
	ctrl, bus := newDiscoveryBus(t, dev)

	if _, _, err := ctrl.DiscUnMute(BroadcastUID); err != nil {
		t.Fatalf("DiscUnMute() error: %v", err)
	}
	msg, ack, err := ctrl.DiscMute(dev)
	if err != nil {
		t.Fatalf("DiscMute() error: %v", err)
	}
	if !ack.OK() {
		t.Fatalf("mute ack = %v, want ACK", ack.Type)
	}
	if msg.ControlField != 0 || !msg.BindingUID.IsNull() {
		t.Fatalf("mute message = %+v", msg)
	}
	if !bus.devices[0].muted {
		t.Fatal("device not muted")
	}

	// A muted device no longer answers discovery.
	resp, err := ctrl.DiscUniqueBranch(NullUID, UID{0xFFFF, 0xFFFFFFFE})
	if err != nil {
		t.Fatalf("DiscUniqueBranch() error: %v", err)
	}
	if resp.Ack.Type != ResponseTypeNone {
		t.Fatalf("ack after mute = %v, want NONE", resp.Ack.Type)
	}
}

func TestDiscoverAllFindsEveryDevice(t *testing.T) {
	// Manufacturer IDs spread across the UID space so the binary
	// search must split through collisions to isolate them.
	uids := []UID{
		{0x0001, 0x00000001},
		{0x4001, 0x00000002},
		{0x8001, 0x00000003},
	}
	ctrl, bus := newDiscoveryBus(t, uids...)

	found, err := ctrl.DiscoverAll()
	if err != nil {
		t.Fatalf("DiscoverAll() error: %v", err)
	}
	if len(found) != len(uids) {
		t.Fatalf("DiscoverAll() found %d devices (%v), want %d", len(found), found, len(uids))
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Less(found[j]) })
	for i := range uids {
		if !found[i].Equal(uids[i]) {
			t.Errorf("device %d = %v, want %v", i, found[i], uids[i])
		}
	}
	for _, dev := range bus.devices {
		if !dev.muted {
			t.Errorf("device %v left unmuted after discovery", dev.uid)
		}
	}

	// The broadcast un-mute at the start of a run resets the bus, so a
	// second run finds the same devices.
	found, err = ctrl.DiscoverAll()
	if err != nil {
		t.Fatalf("second DiscoverAll() error: %v", err)
	}
	if len(found) != len(uids) {
		t.Fatalf("second DiscoverAll() found %d devices, want %d", len(found), len(uids))
	}
}

func TestDiscoverEmptyBus(t *testing.T) {
	ctrl, _ := newDiscoveryBus(t)
	found, err := ctrl.DiscoverAll()
	if err != nil {
		t.Fatalf("DiscoverAll() error: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("DiscoverAll() on empty bus = %v", found)
	}
}
