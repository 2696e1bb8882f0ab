package iec104

import "errors"

// error defined
var (
	// ErrFrameInvalid marks an APDU that is structurally unusable:
	// shorter than the fixed APCI or missing the 0x68 start byte.
	ErrFrameInvalid = errors.New("invalid or short apdu")

	// ErrFrameBlocked marks an outgoing APDU denied by the transmit
	// policy. The frame is simply not sent; callers must not retry
	// the same bytes.
	ErrFrameBlocked = errors.New("frame blocked by transmit policy")
)
