package dmx

// Packet is one received frame, delivered by the driver's read loop
// through Receive. Data is an owned copy; the driver does not reuse it.
type Packet struct {
	// Data holds the frame, starting at the start code.
	Data []byte

	// Size is the number of valid bytes in Data.
	Size int

	// StartCode is Data[0], when present.
	StartCode byte

	// IsRDM reports whether the frame carries the RDM start code.
	IsRDM bool

	// Err carries a line error observed while the frame was received
	// (framing, overrun). The frame content is suspect when set.
	Err error
}
