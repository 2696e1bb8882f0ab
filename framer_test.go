package iec104

import (
	"bytes"
	"testing"
)

func iFrameBytes(ns, nr uint16, payload ...byte) []byte {
	apdu := []byte{startByte, byte(4 + len(payload)), 0, 0, 0, 0}
	apdu[2] = byte(ns << 1)
	apdu[3] = byte(ns >> 7)
	apdu[4] = byte(nr << 1)
	apdu[5] = byte(nr >> 7)
	return append(apdu, payload...)
}

func TestTakeOneAPDU(t *testing.T) {
	frame := BuildSAck(7)

	type args struct {
		buf []byte
	}
	tests := []struct {
		name         string
		args         args
		wantAPDU     []byte
		wantConsumed int
		wantOK       bool
	}{
		{
			"empty buffer",
			args{nil},
			nil,
			0,
			false,
		},
		{
			"no start byte",
			args{[]byte{0x11, 0x22, 0x33}},
			nil,
			0,
			false,
		},
		{
			"start byte is the last byte",
			args{[]byte{0x11, startByte}},
			nil,
			0,
			false,
		},
		{
			"incomplete frame",
			args{frame[:4]},
			nil,
			0,
			false,
		},
		{
			"exact frame",
			args{frame},
			frame,
			6,
			true,
		},
		{
			"garbage then frame",
			args{append([]byte{0xDE, 0xAD, 0xBE}, frame...)},
			frame,
			9,
			true,
		},
		{
			"frame with trailing bytes",
			args{append(append([]byte{}, frame...), 0x99)},
			frame,
			6,
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apdu, consumed, ok := takeOneAPDU(tt.args.buf)
			if ok != tt.wantOK {
				t.Fatalf("takeOneAPDU() ok = %v, want %v", ok, tt.wantOK)
			}
			if consumed != tt.wantConsumed {
				t.Errorf("takeOneAPDU() consumed = %v, want %v", consumed, tt.wantConsumed)
			}
			if !bytes.Equal(apdu, tt.wantAPDU) {
				t.Errorf("takeOneAPDU() apdu = [% X], want [% X]", apdu, tt.wantAPDU)
			}
		})
	}
}

func TestRxBufferByteByByteMatchesWholeBuffer(t *testing.T) {
	stream := []byte{0x01, 0x02} // leading noise
	stream = append(stream, BuildUFrame(UStartDTCon)...)
	stream = append(stream, iFrameBytes(0, 0, 1, 1, 3, 0, 1, 0, 9, 0, 0, 1)...)
	stream = append(stream, 0xFF) // noise between frames
	stream = append(stream, BuildSAck(42)...)
	stream = append(stream, iFrameBytes(1, 0)...)

	var whole rxBuffer
	whole.Append(stream)
	var wantFrames [][]byte
	for {
		apdu, ok := whole.Next()
		if !ok {
			break
		}
		wantFrames = append(wantFrames, append([]byte{}, apdu...))
	}
	if len(wantFrames) != 4 {
		t.Fatalf("whole-buffer feed produced %d frames, want 4", len(wantFrames))
	}

	var drip rxBuffer
	var gotFrames [][]byte
	for _, b := range stream {
		drip.Append([]byte{b})
		for {
			apdu, ok := drip.Next()
			if !ok {
				break
			}
			gotFrames = append(gotFrames, append([]byte{}, apdu...))
		}
	}

	if len(gotFrames) != len(wantFrames) {
		t.Fatalf("byte-by-byte feed produced %d frames, want %d", len(gotFrames), len(wantFrames))
	}
	for i := range wantFrames {
		if !bytes.Equal(gotFrames[i], wantFrames[i]) {
			t.Errorf("frame %d = [% X], want [% X]", i, gotFrames[i], wantFrames[i])
		}
	}
}

func TestRxBufferCompaction(t *testing.T) {
	var b rxBuffer
	frame := BuildSAck(1)
	for i := 0; i < 2000; i++ {
		b.Append(frame)
		if _, ok := b.Next(); !ok {
			t.Fatalf("frame %d not extracted", i)
		}
	}
	if b.Len() != 0 {
		t.Errorf("buffer holds %d unconsumed bytes, want 0", b.Len())
	}
	if len(b.data) > compactAt+len(frame) {
		t.Errorf("backing slice grew to %d bytes without compaction", len(b.data))
	}
}

func TestRxBufferReset(t *testing.T) {
	var b rxBuffer
	b.Append([]byte{startByte, 0x04, 0x01})
	b.Reset()
	if b.Len() != 0 {
		t.Errorf("Len() = %d after Reset, want 0", b.Len())
	}
	if _, ok := b.Next(); ok {
		t.Error("Next() returned a frame after Reset")
	}
}
