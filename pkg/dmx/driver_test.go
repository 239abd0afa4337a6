package dmx

import (
	"sync"
	"testing"
	"time"

	"github.com/backkem/dmx/pkg/dmx/transport"
)

// fakeTimer records what the driver programs and fires only when the
// test says so, keeping break timing deterministic.
type fakeTimer struct {
	mu      sync.Mutex
	d       time.Duration
	fn      func()
	started int
}

func (f *fakeTimer) Set(d time.Duration) {
	f.mu.Lock()
	f.d = d
	f.mu.Unlock()
}

func (f *fakeTimer) Start() {
	f.mu.Lock()
	f.started++
	f.mu.Unlock()
}

func (f *fakeTimer) Stop() {}

func (f *fakeTimer) OnExpire(fn func()) {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
}

func (f *fakeTimer) fire() {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	fn()
}

func (f *fakeTimer) programmed() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.d
}

func installTestDriver(t *testing.T, port int, config Config) *Driver {
	t.Helper()
	d, err := Install(port, config)
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	t.Cleanup(func() { Uninstall(port) })
	return d
}

func TestInstallValidation(t *testing.T) {
	a, b := transport.NewPipePair()
	defer b.Close()

	if _, err := Install(-1, Config{Transport: a}); err != ErrInvalidPort {
		t.Errorf("Install(-1) = %v, want %v", err, ErrInvalidPort)
	}
	if _, err := Install(MaxPorts, Config{Transport: a}); err != ErrInvalidPort {
		t.Errorf("Install(MaxPorts) = %v, want %v", err, ErrInvalidPort)
	}
	if _, err := Install(0, Config{}); err != ErrNilTransport {
		t.Errorf("Install(no transport) = %v, want %v", err, ErrNilTransport)
	}

	d := installTestDriver(t, 0, Config{Transport: a})
	if _, err := Install(0, Config{Transport: a}); err != ErrInstalled {
		t.Errorf("double Install() = %v, want %v", err, ErrInstalled)
	}
	if got, ok := Port(0); !ok || got != d {
		t.Errorf("Port(0) = %v, %v", got, ok)
	}
	if !IsInstalled(0) {
		t.Error("IsInstalled(0) = false")
	}
}

func TestUninstall(t *testing.T) {
	a, b := transport.NewPipePair()
	defer b.Close()
	if _, err := Install(0, Config{Transport: a}); err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if err := Uninstall(0); err != nil {
		t.Fatalf("Uninstall() error: %v", err)
	}
	if err := Uninstall(0); err != ErrNotInstalled {
		t.Errorf("second Uninstall() = %v, want %v", err, ErrNotInstalled)
	}
	if IsInstalled(0) {
		t.Error("IsInstalled(0) = true after Uninstall")
	}
}

func TestTimingClamped(t *testing.T) {
	a, b := transport.NewPipePair()
	defer b.Close()
	d := installTestDriver(t, 0, Config{
		Transport: a,
		BreakLen:  time.Microsecond,
		MABLen:    time.Minute,
	})
	if d.BreakLen() != MinBreakLen {
		t.Errorf("BreakLen() = %v, want %v", d.BreakLen(), MinBreakLen)
	}
	if d.MABLen() != MaxMABLen {
		t.Errorf("MABLen() = %v, want %v", d.MABLen(), MaxMABLen)
	}

	if err := Uninstall(0); err != nil {
		t.Fatalf("Uninstall() error: %v", err)
	}
	c, p := transport.NewPipePair()
	defer p.Close()
	d = installTestDriver(t, 0, Config{Transport: c})
	if d.BreakLen() != DefaultBreakLen || d.MABLen() != DefaultMABLen {
		t.Errorf("defaults = %v, %v", d.BreakLen(), d.MABLen())
	}
}

func TestSendCycle(t *testing.T) {
	a, b := transport.NewPipePair()
	defer b.Close()
	ft := &fakeTimer{}
	d := installTestDriver(t, 0, Config{Transport: a, Timer: ft})

	if err := d.SetMode(ModeWrite); err != nil {
		t.Fatalf("SetMode(write) error: %v", err)
	}
	frame := make([]byte, 64)
	frame[0] = 0x00
	frame[1] = 0xFF
	if n, err := d.Write(frame); err != nil || n != 64 {
		t.Fatalf("Write() = %d, %v", n, err)
	}

	if err := d.Send(0); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if ft.programmed() != DefaultBreakLen {
		t.Errorf("timer programmed with %v, want %v", ft.programmed(), DefaultBreakLen)
	}

	// The cycle is in flight until the break timer fires: staging,
	// another send, and leaving write mode are all refused.
	if _, err := d.Write(frame); err != ErrSending {
		t.Errorf("Write() during send = %v, want %v", err, ErrSending)
	}
	if err := d.Send(64); err != ErrSending {
		t.Errorf("Send() during send = %v, want %v", err, ErrSending)
	}
	if err := d.SetMode(ModeRead); err != ErrSending {
		t.Errorf("SetMode(read) during send = %v, want %v", err, ErrSending)
	}
	if err := d.WaitSent(time.Millisecond); err != ErrSendTimeout {
		t.Errorf("WaitSent() during send = %v, want %v", err, ErrSendTimeout)
	}

	ft.fire()
	if err := d.WaitSent(time.Second); err != nil {
		t.Fatalf("WaitSent() error: %v", err)
	}

	// The peer sees the break, then the frame.
	b.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, PacketSize)
	if _, err := b.Read(buf); err != transport.ErrBreak {
		t.Fatalf("peer Read() = %v, want %v", err, transport.ErrBreak)
	}
	n, err := b.Read(buf)
	if err != nil {
		t.Fatalf("peer Read() error: %v", err)
	}
	if n != 64 || buf[0] != 0x00 || buf[1] != 0xFF {
		t.Fatalf("peer received %d bytes, head %x", n, buf[:2])
	}

	if err := d.SetMode(ModeRead); err != nil {
		t.Fatalf("SetMode(read) after send error: %v", err)
	}
}

func TestSendValidation(t *testing.T) {
	a, b := transport.NewPipePair()
	defer b.Close()
	d := installTestDriver(t, 0, Config{Transport: a, Timer: &fakeTimer{}})

	if err := d.Send(64); err != ErrInvalidMode {
		t.Errorf("Send() in read mode = %v, want %v", err, ErrInvalidMode)
	}
	if err := d.SetMode(ModeWrite); err != nil {
		t.Fatalf("SetMode(write) error: %v", err)
	}
	if err := d.Send(PacketSize + 1); err != ErrSize {
		t.Errorf("Send(oversized) = %v, want %v", err, ErrSize)
	}
	if err := d.Send(0); err != ErrSize {
		t.Errorf("Send(0) with empty buffer = %v, want %v", err, ErrSize)
	}
	if _, err := d.Write(make([]byte, PacketSize+1)); err != ErrSize {
		t.Errorf("Write(oversized) = %v, want %v", err, ErrSize)
	}
}

func TestSlotAccess(t *testing.T) {
	a, b := transport.NewPipePair()
	defer b.Close()
	d := installTestDriver(t, 0, Config{Transport: a, Timer: &fakeTimer{}})

	if err := d.SetMode(ModeWrite); err != nil {
		t.Fatalf("SetMode(write) error: %v", err)
	}
	if err := d.WriteSlot(3, 0x42); err != nil {
		t.Fatalf("WriteSlot() error: %v", err)
	}
	if v, err := d.ReadSlot(3); err != nil || v != 0x42 {
		t.Fatalf("ReadSlot() = %#x, %v", v, err)
	}
	if err := d.WriteSlot(PacketSize, 0); err != ErrSize {
		t.Errorf("WriteSlot(out of range) = %v, want %v", err, ErrSize)
	}
	if _, err := d.ReadSlot(100); err != ErrSize {
		t.Errorf("ReadSlot(past length) = %v, want %v", err, ErrSize)
	}

	buf := make([]byte, PacketSize)
	if n := d.Read(buf); n != 4 {
		t.Errorf("Read() = %d, want 4", n)
	}
}

func TestReceiveFrame(t *testing.T) {
	a, b := transport.NewPipePair()
	defer b.Close()
	d := installTestDriver(t, 0, Config{Transport: a})

	// Peer transmits a null start code frame, terminated by the next
	// break.
	b.SetDirection(transport.DirTransmit)
	frame := make([]byte, 32)
	frame[0] = 0x00
	frame[5] = 0xAB
	go func() {
		b.SendBreak(time.Microsecond)
		b.Write(frame)
		time.Sleep(time.Millisecond)
		b.SendBreak(time.Microsecond)
	}()

	pkt, err := d.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if pkt.Size != 32 || pkt.StartCode != 0x00 || pkt.IsRDM {
		t.Fatalf("Receive() = size %d, sc %#x, rdm %v", pkt.Size, pkt.StartCode, pkt.IsRDM)
	}
	if pkt.Data[5] != 0xAB {
		t.Errorf("slot 5 = %#x, want 0xAB", pkt.Data[5])
	}

	// The frame is also readable from the frame buffer.
	buf := make([]byte, PacketSize)
	if n := d.Read(buf); n != 32 || buf[5] != 0xAB {
		t.Errorf("Read() = %d bytes, slot 5 %#x", n, buf[5])
	}
}

func TestReceiveRDMFrameCompletesOnLength(t *testing.T) {
	a, b := transport.NewPipePair()
	defer b.Close()
	d := installTestDriver(t, 0, Config{Transport: a})

	// A minimal RDM-framed message: declared length 24, two checksum
	// bytes. No terminating break is sent; the declared length alone
	// must complete the frame.
	msg := make([]byte, 26)
	msg[0] = 0xCC
	msg[1] = 0x01
	msg[2] = 24

	b.SetDirection(transport.DirTransmit)
	go func() {
		b.SendBreak(time.Microsecond)
		b.Write(msg)
	}()

	pkt, err := d.Receive(time.Second)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if !pkt.IsRDM || pkt.Size != 26 {
		t.Fatalf("Receive() = rdm %v, size %d", pkt.IsRDM, pkt.Size)
	}
}

func TestReceiveTimeoutKeepsWriteMode(t *testing.T) {
	a, b := transport.NewPipePair()
	defer b.Close()
	ft := &fakeTimer{}
	d := installTestDriver(t, 0, Config{Transport: a, Timer: ft})

	if err := d.SetMode(ModeWrite); err != nil {
		t.Fatalf("SetMode(write) error: %v", err)
	}
	if _, err := d.Write(make([]byte, 16)); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if err := d.Send(16); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	ft.fire()
	if err := d.WaitSent(time.Second); err != nil {
		t.Fatalf("WaitSent() error: %v", err)
	}

	// No response comes. The port must stay in write mode so the next
	// frame can go out without an explicit mode switch.
	if _, err := d.Receive(10 * time.Millisecond); err != ErrReadTimeout {
		t.Fatalf("Receive() = %v, want %v", err, ErrReadTimeout)
	}
	if d.Mode() != ModeWrite {
		t.Fatalf("Mode() = %v after receive timeout, want %v", d.Mode(), ModeWrite)
	}

	// The next write flips the line back to transmit by itself.
	if _, err := d.Write(make([]byte, 16)); err != nil {
		t.Fatalf("Write() after timeout error: %v", err)
	}
	if err := d.Send(16); err != nil {
		t.Fatalf("Send() after timeout error: %v", err)
	}
	ft.fire()
	if err := d.WaitSent(time.Second); err != nil {
		t.Fatalf("WaitSent() error: %v", err)
	}
}

func TestReceiveAfterClose(t *testing.T) {
	a, b := transport.NewPipePair()
	defer b.Close()
	d, err := Install(1, Config{Transport: a, Timer: &fakeTimer{}})
	if err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	if err := Uninstall(1); err != nil {
		t.Fatalf("Uninstall() error: %v", err)
	}
	if _, err := d.Receive(time.Second); err != ErrClosed {
		t.Errorf("Receive() after close = %v, want %v", err, ErrClosed)
	}
	if err := d.SetMode(ModeWrite); err != ErrClosed {
		t.Errorf("SetMode() after close = %v, want %v", err, ErrClosed)
	}
}
