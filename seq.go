package iec104

// Send and receive sequence numbers occupy 15 bits, so all sequence
// arithmetic is modulo 32768.
const seqMod uint16 = 1 << 15

// seqInc returns the sequence number following n.
func seqInc(n uint16) uint16 {
	return (n + 1) & (seqMod - 1)
}

// seqDistance returns the number of forward steps from b to a in the
// 15-bit sequence space, i.e. (a - b) mod 32768.
func seqDistance(a, b uint16) uint16 {
	return (a - b) & (seqMod - 1)
}
