package iec104

import "encoding/binary"

const startByte = 0x68

// apciLen is the fixed APCI size: start byte, length byte and four
// control fields. Every valid APDU is at least this long.
const apciLen = 6

/*
FrameType is the transmission frame format.

The frame format is determined by the low bits of the first control
field (CF1): an I-format frame has bit 0 clear, an S-format frame has
bits 1..0 = 01, a U-format frame has bits 1..0 = 11.
*/
type FrameType byte

const (
	FrameTypeI FrameType = iota
	FrameTypeS
	FrameTypeU
	FrameTypeUnknown
)

// Frame is the decoded form of one APDU. It is a closed set: IFrame,
// SFrame, UFrame and UnknownFrame are the only implementations, so
// consumers dispatch with an exhaustive type switch.
type Frame interface {
	Type() FrameType
}

// UFunction is the CF1 byte value of an unnumbered control function.
type UFunction byte

const (
	UStartDTAct UFunction = 0x07 // Start Data Transfer Activation   CF1: 0 0 0 0 0 1 | 1 1
	UStartDTCon UFunction = 0x0B // Start Data Transfer Confirmation CF1: 0 0 0 0 1 0 | 1 1
	UStopDTAct  UFunction = 0x13 // Stop Data Transfer Activation    CF1: 0 0 0 1 0 0 | 1 1
	UStopDTCon  UFunction = 0x23 // Stop Data Transfer Confirmation  CF1: 0 0 1 0 0 0 | 1 1
	UTestFRAct  UFunction = 0x43 // Test Frame Activation            CF1: 0 1 0 0 0 0 | 1 1
	UTestFRCon  UFunction = 0x83 // Test Frame Confirmation          CF1: 1 0 0 0 0 0 | 1 1
)

// Known reports whether f is one of the six control functions defined by
// the companion standard. Unknown codes are preserved as received.
func (f UFunction) Known() bool {
	switch f {
	case UStartDTAct, UStartDTCon, UStopDTAct, UStopDTCon, UTestFRAct, UTestFRCon:
		return true
	}
	return false
}

func (f UFunction) String() string {
	switch f {
	case UStartDTAct:
		return "STARTDT act"
	case UStartDTCon:
		return "STARTDT con"
	case UStopDTAct:
		return "STOPDT act"
	case UStopDTCon:
		return "STOPDT con"
	case UTestFRAct:
		return "TESTFR act"
	case UTestFRCon:
		return "TESTFR con"
	}
	return "U-other"
}

/*
IFrame (Information Transfer Format), bit 0 of CF1 is 0.

Control fields of I-format frame:
 | <-           8 bits            -> |
 | Send sequence no. N (S)       | 0 |
 | Send sequence no. N (S)           |
 | Receive sequence no. N (R)    | 0 |
 | Receive sequence no. N (R)        |

The two 15-bit sequence numbers are packed little-endian with the type
discriminator in bit 0. Summary is nil when the APDU carries no payload
or a payload too short to summarize.
*/
type IFrame struct {
	SendSN  uint16
	RecvSN  uint16
	Summary *ASDUSummary
}

func (f *IFrame) Type() FrameType { return FrameTypeI }

/*
SFrame (numbered supervisory format), bits 1..0 of CF1 are 01.

Control fields of S-format frame:
 | <-           8 bits            -> |
 |                           | 0 | 1 |
 |                                   |
 | Receive sequence no. N (R)    | 0 |
 | Receive sequence no. N (R)        |
*/
type SFrame struct {
	RecvSN uint16
}

func (f *SFrame) Type() FrameType { return FrameTypeS }

/*
UFrame (unnumbered control format), bits 1..0 of CF1 are 11.

Control fields of U-format frame:
 | <-           8 bits            -> |
 | TESTFR | STOPDT | STARTDT | 1 | 1 |
 |                                   |
 |                               | 0 |
 |                                   |
*/
type UFrame struct {
	Function UFunction
}

func (f *UFrame) Type() FrameType { return FrameTypeU }

// UnknownFrame is a span whose APCI could not be decoded: too short,
// wrong start byte or an inconsistent length field. Cf1 holds the first
// control field when the span was long enough to carry one.
type UnknownFrame struct {
	Cf1 byte
}

func (f *UnknownFrame) Type() FrameType { return FrameTypeUnknown }

// Classify decodes one complete APDU span into its frame variant. It is
// total: malformed spans come back as *UnknownFrame, never an error, so
// a corrupt frame does not take the session down.
func Classify(apdu []byte) Frame {
	if len(apdu) < apciLen || apdu[0] != startByte {
		return &UnknownFrame{}
	}
	if n := int(apdu[1]); n < 4 || n != len(apdu)-2 {
		return &UnknownFrame{Cf1: apdu[2]}
	}

	cf := apdu[2:apciLen]
	switch {
	case cf[0]&0x1 == 0:
		f := &IFrame{
			SendSN: binary.LittleEndian.Uint16(cf[0:2]) >> 1,
			RecvSN: binary.LittleEndian.Uint16(cf[2:4]) >> 1,
		}
		if len(apdu) > apciLen {
			f.Summary = summarizeASDU(apdu[apciLen:])
		}
		return f
	case cf[0]&0x3 == 0x1:
		return &SFrame{
			RecvSN: binary.LittleEndian.Uint16(cf[2:4]) >> 1,
		}
	case cf[0]&0x3 == 0x3:
		return &UFrame{Function: UFunction(cf[0])}
	default:
		return &UnknownFrame{Cf1: cf[0]}
	}
}

// BuildSAck encodes an S-format acknowledgement carrying N(R) = nr:
// 0x68, 0x04, 0x01, 0x00, then nr<<1 little-endian.
func BuildSAck(nr uint16) []byte {
	apdu := []byte{startByte, 0x04, 0x01, 0x00, 0, 0}
	binary.LittleEndian.PutUint16(apdu[4:], nr<<1)
	return apdu
}

// BuildUFrame encodes a fixed-length unnumbered control frame.
func BuildUFrame(fn UFunction) []byte {
	return []byte{startByte, 0x04, byte(fn), 0x00, 0x00, 0x00}
}
