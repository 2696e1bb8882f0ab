package iec104

import "fmt"

/*
TxPolicy is the single choke point for outgoing APDUs. Every frame the
session wants on the wire passes Enforce first; there is no other write
path, so a bug elsewhere in the engine cannot push a command frame to
field equipment in an acknowledgement-only deployment.

Rules, in order:

 1. structurally invalid spans are rejected;
 2. U-frames: in ACK-only mode only STARTDT act passes, otherwise all;
 3. S-frames always pass, acknowledgements are never restricted;
 4. I-frames: rejected outright in ACK-only mode; otherwise they need a
    complete ASDU and a type identification outside the forbidden set;
 5. anything else is rejected.
*/
type TxPolicy struct {
	ackOnly   bool
	forbidden map[byte]struct{}
}

func NewTxPolicy(cfg *Config) *TxPolicy {
	p := &TxPolicy{
		ackOnly:   cfg.AckOnly,
		forbidden: make(map[byte]struct{}, len(cfg.ForbiddenTypeIDs)),
	}
	for _, id := range cfg.ForbiddenTypeIDs {
		p.forbidden[id] = struct{}{}
	}
	return p
}

// Enforce validates a candidate outgoing APDU. A nil return is the
// permission to transmit; any error means the frame must not be sent.
func (p *TxPolicy) Enforce(apdu []byte) error {
	if len(apdu) < apciLen || apdu[0] != startByte {
		return ErrFrameInvalid
	}
	cf1 := apdu[2]

	// U-frame
	if cf1&0x3 == 0x3 {
		if p.ackOnly && cf1 != byte(UStartDTAct) {
			return fmt.Errorf("%w: u-frame 0x%02X in ack-only mode", ErrFrameBlocked, cf1)
		}
		return nil
	}

	// S-frame
	if cf1&0x3 == 0x1 {
		return nil
	}

	// I-frame
	if cf1&0x1 == 0 {
		if p.ackOnly {
			return fmt.Errorf("%w: outgoing i-frame in ack-only mode", ErrFrameBlocked)
		}
		if len(apdu) < apciLen+1 {
			return fmt.Errorf("%w: outgoing i-frame without complete asdu", ErrFrameBlocked)
		}
		if typeID := apdu[apciLen]; p.isForbidden(typeID) {
			return fmt.Errorf("%w: asdu type %d", ErrFrameBlocked, typeID)
		}
		return nil
	}

	return fmt.Errorf("%w: unrecognized control pattern 0x%02X", ErrFrameBlocked, cf1)
}

func (p *TxPolicy) isForbidden(typeID byte) bool {
	_, ok := p.forbidden[typeID]
	return ok
}
