package protocol

import "fmt"

// DecodeError reports a malformed inbound message. It carries the sequence
// id so the host can abort only that sequence's step.
type DecodeError struct {
	Seq uint32
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("sequence %d: malformed message: %v", e.Seq, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}
