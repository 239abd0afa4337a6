package transport

import (
	"bytes"
	"testing"
	"time"
)

func TestPipeWriteRead(t *testing.T) {
	a, b := NewPipePair()
	defer a.Close()
	defer b.Close()

	a.SetDirection(DirTransmit)
	msg := []byte{0x00, 0x01, 0x02, 0x03}
	if n, err := a.Write(msg); err != nil || n != len(msg) {
		t.Fatalf("Write() = %d, %v", n, err)
	}

	buf := make([]byte, 16)
	b.SetReadDeadline(time.Now().Add(time.Second))
	n, err := b.Read(buf)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if !bytes.Equal(buf[:n], msg) {
		t.Fatalf("Read() = %x, want %x", buf[:n], msg)
	}
}

func TestPipeDropsWritesWhileReceiving(t *testing.T) {
	a, b := NewPipePair()
	defer a.Close()
	defer b.Close()

	// a starts in DirReceive: its line driver is tristated.
	if n, err := a.Write([]byte{1, 2, 3}); err != nil || n != 3 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	b.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	if _, err := b.Read(make([]byte, 16)); err != ErrTimeout {
		t.Fatalf("Read() = %v, want %v", err, ErrTimeout)
	}
}

func TestPipeBreakEvent(t *testing.T) {
	a, b := NewPipePair()
	defer a.Close()
	defer b.Close()

	a.SetDirection(DirTransmit)
	start := time.Now()
	if err := a.SendBreak(5 * time.Millisecond); err != nil {
		t.Fatalf("SendBreak() error: %v", err)
	}
	if held := time.Since(start); held < 5*time.Millisecond {
		t.Errorf("SendBreak() returned after %v, want >= 5ms", held)
	}

	b.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := b.Read(make([]byte, 16)); err != ErrBreak {
		t.Fatalf("Read() = %v, want %v", err, ErrBreak)
	}
}

func TestPipeEventOrderPreserved(t *testing.T) {
	a, b := NewPipePair()
	defer a.Close()
	defer b.Close()

	a.SetDirection(DirTransmit)
	a.SendBreak(0)
	a.Write([]byte{0xAA})
	a.SendBreak(0)

	b.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 16)
	if _, err := b.Read(buf); err != ErrBreak {
		t.Fatalf("event 1 = %v, want break", err)
	}
	if n, err := b.Read(buf); err != nil || n != 1 || buf[0] != 0xAA {
		t.Fatalf("event 2 = %d, %v", n, err)
	}
	if _, err := b.Read(buf); err != ErrBreak {
		t.Fatalf("event 3 = %v, want break", err)
	}
}

func TestPipeResetInputDiscardsQueued(t *testing.T) {
	a, b := NewPipePair()
	defer a.Close()
	defer b.Close()

	a.SetDirection(DirTransmit)
	a.Write([]byte{1})
	a.Write([]byte{2})
	a.SendBreak(0)
	if err := b.ResetInput(); err != nil {
		t.Fatalf("ResetInput() error: %v", err)
	}
	b.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	if _, err := b.Read(make([]byte, 16)); err != ErrTimeout {
		t.Fatalf("Read() after reset = %v, want %v", err, ErrTimeout)
	}

	// The endpoint still receives events written after the reset.
	a.Write([]byte{3})
	b.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 16)
	n, err := b.Read(buf)
	if err != nil || n != 1 || buf[0] != 3 {
		t.Fatalf("Read() after new write = %d, %v", n, err)
	}
}

func TestPipeClose(t *testing.T) {
	a, b := NewPipePair()
	defer a.Close()

	if err := b.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
	if _, err := b.Read(make([]byte, 16)); err != ErrClosed {
		t.Errorf("Read() after close = %v, want %v", err, ErrClosed)
	}
	if _, err := b.Write([]byte{1}); err != ErrClosed {
		t.Errorf("Write() after close = %v, want %v", err, ErrClosed)
	}
	if err := b.SendBreak(0); err != ErrClosed {
		t.Errorf("SendBreak() after close = %v, want %v", err, ErrClosed)
	}
	if err := b.SetDirection(DirTransmit); err != ErrClosed {
		t.Errorf("SetDirection() after close = %v, want %v", err, ErrClosed)
	}
}
