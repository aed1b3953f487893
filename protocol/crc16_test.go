package protocol

import "testing"

func TestCRC16(t *testing.T) {
	testCases := []struct {
		data     []byte
		expected uint16
	}{
		{data: []byte{}, expected: 0x0000},
		{data: []byte("123456789"), expected: 0x31C3},
		{data: []byte{0x00}, expected: 0x0000},
		{data: []byte{0xFF}, expected: 0x1EF0},
		{data: []byte("A"), expected: 0x58E5},
	}

	for i, tc := range testCases {
		result := CRC16(tc.data)
		if result != tc.expected {
			t.Errorf("Test case %d: CRC16(%v) = 0x%04X, expected 0x%04X", i, tc.data, result, tc.expected)
		}
	}
}

func TestCRC16Incremental(t *testing.T) {
	data := []byte("123456789")

	crc := UpdateCRC16(0, data[:4])
	crc = UpdateCRC16(crc, data[4:])

	if crc != CRC16(data) {
		t.Errorf("Incremental CRC16 mismatch: got %04X, want %04X", crc, CRC16(data))
	}
}

func TestCRC16Different(t *testing.T) {
	// Test that different inputs produce different outputs
	data1 := []byte{0x01, 0x02, 0x03}
	data2 := []byte{0x01, 0x02, 0x04}

	crc1 := CRC16(data1)
	crc2 := CRC16(data2)

	if crc1 == crc2 {
		t.Errorf("CRC16 collision: both inputs produced %04X", crc1)
	}
}
