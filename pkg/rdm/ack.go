package rdm

import "time"

// Ack is the classified outcome of one transaction. It is produced once
// per request and tells the caller how (or whether) the device answered.
type Ack struct {
	// Type is the classification: a wire response type when the reply
	// validated, ResponseTypeNone when no reply arrived (expected for
	// broadcasts), or ResponseTypeInvalid when a reply arrived but
	// failed validation.
	Type ResponseType

	// Size is the number of bytes read from the bus, when Type is
	// ResponseTypeAck.
	Size int

	// Timer is the device's estimated response delay, when Type is
	// ResponseTypeAckTimer.
	Timer time.Duration

	// Nack is the refusal reason, when Type is ResponseTypeNackReason.
	Nack NackReason

	// Err is the transport error that ended the receive, if any.
	// A timeout here with Type ResponseTypeNone distinguishes "device
	// absent" from "device replied incorrectly".
	Err error
}

// OK reports whether the transaction completed with a plain ACK.
func (a Ack) OK() bool { return a.Type == ResponseTypeAck }
