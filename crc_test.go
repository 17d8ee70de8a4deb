package rdserial

import "testing"

// crc16Direct is the bitwise form of the Modbus CRC, kept as an oracle for
// the table driven engine.
func crc16Direct(data []byte) uint16 {
	const polynomial = 0xA001
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ polynomial
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

func TestCRC16(t *testing.T) {
	testCases := []struct {
		data     []byte
		expected uint16
	}{
		{data: []byte{}, expected: 0xFFFF},
		{data: []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}, expected: 0x0A84},
		{data: []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A}, expected: 0xCDC5},
		{data: []byte{0x01, 0x03, 0x02, 0x12, 0x34}, expected: 0x33B5},
		{data: []byte{0x00}, expected: 0x40BF},
	}

	for _, tc := range testCases {
		crc := CRC16(tc.data)
		if crc != tc.expected {
			t.Errorf("CRC16(% X) returned incorrect CRC: got %#04x, expected %#04x", tc.data, crc, tc.expected)
		}
	}
}

func TestCRC16MatchesBitwise(t *testing.T) {
	frames := [][]byte{
		{0x01, 0x03, 0x00, 0x00, 0x00, 0x0D},
		{0x01, 0x10, 0x00, 0x09, 0x00, 0x02, 0x04, 0x00, 0x00, 0x00, 0x01},
		{0x01, 0x06, 0x00, 0x01, 0x01, 0xF4},
		{0xFF, 0xEE, 0xDD, 0xCC, 0xBB, 0xAA, 0x99},
	}
	for _, f := range frames {
		if got, want := CRC16(f), crc16Direct(f); got != want {
			t.Errorf("CRC16(% X) = %#04x, bitwise = %#04x", f, got, want)
		}
	}
}

func TestCRC16Residue(t *testing.T) {
	frame := AppendCRC([]byte{0x01, 0x03, 0x1A, 0x01, 0xF4, 0x00, 0x64})
	if !VerifyCRC(frame) {
		t.Fatalf("VerifyCRC failed on signed frame % X", frame)
	}
	if crc := CRC16(frame); crc != 0 {
		t.Errorf("CRC over data+crc = %#04x, want 0", crc)
	}

	frame[3] ^= 0x01
	if VerifyCRC(frame) {
		t.Error("VerifyCRC should fail after corrupting a byte")
	}
}
