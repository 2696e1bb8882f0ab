package iec104

import "encoding/binary"

// asduHeaderLen is the fixed size of the data unit identifier: type id,
// variable structure qualifier, cause of transmission, originator
// address and the two-byte common address.
const asduHeaderLen = 6

/*
ASDUSummary is a bounded view over the ASDU carried by an I-format APDU.

The format of the ASDU:
 | <-              8 bits              -> |
 | Type Identification                    |  --------------------
 | SQ | Number of objects                 |           |
 | T  | P/N | Cause of transmission (COT) |  Data Unit Identifier
 | Originator address (ORG)               |           |
 | Common address of ASDU                 |           |
 | Common address of ASDU                 |  --------------------
 | Information object address (IOA)       |  --------------------
 | Information object address (IOA)       |  Information Object 1
 | Information object address (IOA)       |  --------------------
 | ...                                    |

Only the identifier fields and the first information object address are
extracted; decoding information elements is out of scope for a
supervising client that never acts on the values.
*/
type ASDUSummary struct {
	TypeID byte
	VSQ    byte
	COT    byte // low 6 bits; T and P/N are masked off
	CASDU  uint16
	// IOAFirst is the first information object address, or zero when
	// the payload ends before one.
	IOAFirst uint32
}

// summarizeASDU extracts a summary from an I-frame payload. Payloads
// shorter than the data unit identifier yield nil rather than a partial
// summary; the first IOA needs 3 more bytes and is otherwise reported
// as zero. The payload is never read past its declared length.
func summarizeASDU(payload []byte) *ASDUSummary {
	if len(payload) < asduHeaderLen {
		return nil
	}
	s := &ASDUSummary{
		TypeID: payload[0],
		VSQ:    payload[1],
		COT:    payload[2] & 0x3F,
		CASDU:  binary.LittleEndian.Uint16(payload[4:asduHeaderLen]),
	}
	if len(payload) >= asduHeaderLen+3 {
		s.IOAFirst = uint32(payload[6]) | uint32(payload[7])<<8 | uint32(payload[8])<<16
	}
	return s
}

// TypeName returns the companion-standard mnemonic for a type
// identification, or an empty string for types the engine does not name.
func TypeName(typeID byte) string {
	switch typeID {
	case 1:
		return "M_SP_NA_1"
	case 3:
		return "M_DP_NA_1"
	case 9:
		return "M_ME_NA_1"
	case 11:
		return "M_ME_NB_1"
	case 13:
		return "M_ME_NC_1"
	case 15:
		return "M_IT_NA_1"
	case 30:
		return "M_SP_TB_1"
	case 31:
		return "M_DP_TB_1"
	case 34:
		return "M_ME_TD_1"
	case 35:
		return "M_ME_TE_1"
	case 36:
		return "M_ME_TF_1"
	case 37:
		return "M_IT_TB_1"
	case 45:
		return "C_SC_NA_1"
	case 46:
		return "C_DC_NA_1"
	case 47:
		return "C_RC_NA_1"
	case 100:
		return "C_IC_NA_1"
	}
	return ""
}
