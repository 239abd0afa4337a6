package dmx

// frameBuffer owns the raw wire buffer for one DMX port: the start code
// plus up to 512 slots, shared between caller context and the IO
// goroutines. All access happens under the driver mutex; the buffer
// itself carries no locking.
type frameBuffer struct {
	data [PacketSize]byte
	// length is the staged transmit size, or the size of the most
	// recently received frame.
	length int
	// completed is false only while a send cycle is in flight. A new
	// send or a switch to read mode is refused until it is true again.
	completed bool
}

// clear zeroes the slots and resets the staged length.
func (b *frameBuffer) clear() {
	b.data = [PacketSize]byte{}
	b.length = 0
}

// stage copies a frame into the buffer, replacing the staged length.
func (b *frameBuffer) stage(src []byte) int {
	n := copy(b.data[:], src)
	b.length = n
	return n
}

// copyOut copies the buffer contents into dst, up to the current length.
func (b *frameBuffer) copyOut(dst []byte) int {
	n := b.length
	if n > len(dst) {
		n = len(dst)
	}
	return copy(dst, b.data[:n])
}

// beginSend marks a send cycle in flight.
func (b *frameBuffer) beginSend() { b.completed = false }

// completeSend marks the cycle finished; staged data may be replaced.
func (b *frameBuffer) completeSend() { b.completed = true }
