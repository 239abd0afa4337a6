package rdm

import (
	"encoding/binary"
)

// Mute control field bits (E1.20 Table 7-3).
const (
	MuteControlManagedProxy uint16 = 1 << 0
	MuteControlSubDevice    uint16 = 1 << 1
	MuteControlBootLoader   uint16 = 1 << 2
	MuteControlProxied      uint16 = 1 << 3
)

// discMuteFormat is the DISC_MUTE / DISC_UN_MUTE response layout: a
// control field word and an optional binding UID.
var discMuteFormat = MustFormat("wv")

// MuteMessage is the parameter data of a mute or un-mute response.
type MuteMessage struct {
	// ControlField carries the MuteControl bits.
	ControlField uint16

	// BindingUID is set when the responding port shares a physical
	// device with other ports; zero otherwise.
	BindingUID UID
}

// DiscUniqueBranch sends DISC_UNIQUE_BRANCH for the UID range
// [lower, upper]. Every unmuted device in the range answers at once
// with its redundancy-coded UID; the classified outcome is ACK with the
// decoded UID in Header.SrcUID when exactly one answered, INVALID when
// the replies collided, and NONE when the range is empty.
func (c *Controller) DiscUniqueBranch(lower, upper UID) (*Response, error) {
	var pd [2 * UIDSize]byte
	lower.EncodeTo(pd[0:UIDSize])
	upper.EncodeTo(pd[UIDSize:])
	return c.Do(&Request{
		DestUID: BroadcastUID,
		CC:      DiscoverCommand,
		PID:     PIDDiscUniqueBranch,
		PD:      pd[:],
	})
}

// DiscMute mutes a device, excluding it from later DISC_UNIQUE_BRANCH
// replies. The returned message is meaningful only on a plain ACK; a
// broadcast mute returns no response.
func (c *Controller) DiscMute(dest UID) (MuteMessage, Ack, error) {
	return c.discMute(dest, PIDDiscMute)
}

// DiscUnMute un-mutes a device. Broadcasting the un-mute resets every
// device on the bus ahead of a discovery run.
func (c *Controller) DiscUnMute(dest UID) (MuteMessage, Ack, error) {
	return c.discMute(dest, PIDDiscUnMute)
}

func (c *Controller) discMute(dest UID, pid PID) (MuteMessage, Ack, error) {
	resp, err := c.Do(&Request{DestUID: dest, CC: DiscoverCommand, PID: pid})
	if err != nil {
		return MuteMessage{}, Ack{}, err
	}
	if !resp.Ack.OK() {
		return MuteMessage{}, resp.Ack, nil
	}
	pd := resp.PD
	if len(pd) < 2 {
		resp.Ack.Type = ResponseTypeInvalid
		return MuteMessage{}, resp.Ack, nil
	}
	m := MuteMessage{ControlField: binary.BigEndian.Uint16(pd)}
	if len(pd) >= discMuteFormat.Size() {
		m.BindingUID, _ = DecodeUID(pd[2:])
	}
	return m, resp.Ack, nil
}

// Discover walks the full UID space with the binary-search discovery
// algorithm (E1.20 Section 7): broadcast an un-mute, then repeatedly
// branch on DISC_UNIQUE_BRANCH, muting and reporting each device as it
// is isolated. found is called once per device, in discovery order.
//
// The walk is exhaustive but not atomic; devices attached mid-run may
// be missed until the next run.
func (c *Controller) Discover(found func(UID)) error {
	if _, _, err := c.DiscUnMute(BroadcastUID); err != nil {
		return err
	}
	// The upper bound excludes the broadcast UID itself.
	return c.discoverRange(0, uidValue(BroadcastUID)-1, found)
}

// DiscoverAll runs Discover and collects the devices found.
func (c *Controller) DiscoverAll() ([]UID, error) {
	var uids []UID
	err := c.Discover(func(uid UID) { uids = append(uids, uid) })
	return uids, err
}

// discoverRange isolates every unmuted device in [lo, hi].
func (c *Controller) discoverRange(lo, hi uint64, found func(UID)) error {
	if lo == hi {
		// A single candidate can be addressed directly.
		_, ack, err := c.DiscMute(uidFromValue(lo))
		if err != nil {
			return err
		}
		if ack.OK() {
			found(uidFromValue(lo))
		}
		return nil
	}

	for {
		resp, err := c.DiscUniqueBranch(uidFromValue(lo), uidFromValue(hi))
		if err != nil {
			return err
		}

		switch resp.Ack.Type {
		case ResponseTypeNone:
			// Every device in the range is muted or absent.
			return nil

		case ResponseTypeAck:
			// One device answered alone. Mute it so the next pass over
			// this range hears whoever it was drowning out.
			uid := resp.Header.SrcUID
			_, ack, err := c.DiscMute(uid)
			if err != nil {
				return err
			}
			if ack.OK() && !uid.IsBroadcast() {
				found(uid)
				continue
			}
			// The decoded UID did not answer its own mute: the
			// redundancy coding masked a collision. Fall through to
			// splitting the range.
		}

		// Collision (or a mute miss): halve the range.
		mid := lo + (hi-lo)/2
		if err := c.discoverRange(lo, mid, found); err != nil {
			return err
		}
		if err := c.discoverRange(mid+1, hi, found); err != nil {
			return err
		}
		return nil
	}
}

// uidValue packs a UID into the 48-bit integer the branch arithmetic
// runs on.
func uidValue(u UID) uint64 {
	return uint64(u.ManufacturerID)<<32 | uint64(u.DeviceID)
}

func uidFromValue(v uint64) UID {
	return UID{ManufacturerID: uint16(v >> 32), DeviceID: uint32(v)}
}
