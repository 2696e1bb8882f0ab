package iec104

// compactAt is the consumed-offset threshold above which rxBuffer moves
// the remaining bytes back to the front of its backing slice.
const compactAt = 4096

/*
rxBuffer accumulates bytes read from the transport and hands out one
complete APDU at a time. Bytes in front of the first start byte are
treated as noise and consumed together with the frame that follows them,
which resynchronizes the stream after corruption or a mis-framed APDU.

Consumed frames advance an offset cursor instead of reslicing the whole
buffer, so draining cost does not grow with buffer size.
*/
type rxBuffer struct {
	data []byte
	off  int
}

// Append adds freshly read bytes to the back of the buffer, compacting
// away already consumed bytes first when worthwhile.
func (b *rxBuffer) Append(p []byte) {
	if b.off == len(b.data) {
		b.data = b.data[:0]
		b.off = 0
	} else if b.off > compactAt {
		n := copy(b.data, b.data[b.off:])
		b.data = b.data[:n]
		b.off = 0
	}
	b.data = append(b.data, p...)
}

// Next extracts the next complete APDU, advancing the cursor past it and
// past any garbage that preceded it. It reports false when the buffer
// does not yet hold a complete frame; callers should read more bytes and
// try again. Call Next repeatedly after every Append, since a single
// transport read may carry several APDUs.
func (b *rxBuffer) Next() ([]byte, bool) {
	apdu, consumed, ok := takeOneAPDU(b.data[b.off:])
	if !ok {
		return nil, false
	}
	b.off += consumed
	return apdu, true
}

// Len returns the number of unconsumed bytes held in the buffer.
func (b *rxBuffer) Len() int {
	return len(b.data) - b.off
}

// Reset drops all buffered bytes. An incomplete APDU does not survive a
// connection, so the session resets the buffer on every (re)connect.
func (b *rxBuffer) Reset() {
	b.data = b.data[:0]
	b.off = 0
}

// takeOneAPDU scans buf for the start byte and returns the first complete
// APDU along with the number of bytes to consume from the front of buf,
// including any skipped garbage. It reports false while the frame is
// still incomplete: no start byte yet, the length byte not received, or
// fewer than 2+LEN bytes available from the start byte on.
func takeOneAPDU(buf []byte) (apdu []byte, consumed int, ok bool) {
	if len(buf) < 2 {
		return nil, 0, false
	}
	start := 0
	for start < len(buf) && buf[start] != startByte {
		start++
	}
	if start >= len(buf)-1 {
		return nil, 0, false
	}
	total := 2 + int(buf[start+1])
	if len(buf) < start+total {
		return nil, 0, false
	}
	return buf[start : start+total], start + total, true
}
