package protocol

// CRC16 calculates the CRC-16/XMODEM checksum (poly 0x1021, init 0) used by
// the settings record and the serial modem framing
func CRC16(data []byte) uint16 {
	return UpdateCRC16(0, data)
}

// UpdateCRC16 continues a checksum over more data
func UpdateCRC16(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
