package rdserial

import "github.com/sigurn/crc16"

// crcTable is the 256-entry reflected table for polynomial 0xA001.
var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// CRC16 calculates the Modbus CRC16 checksum (initial value 0xFFFF).
// The result is transmitted low byte first.
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// AppendCRC appends the little-endian CRC of frame to frame.
func AppendCRC(frame []byte) []byte {
	crc := CRC16(frame)
	return append(frame, byte(crc), byte(crc>>8))
}

// VerifyCRC checks the trailing little-endian CRC of an RTU frame.
func VerifyCRC(frame []byte) bool {
	if len(frame) < 4 {
		return false
	}
	dataLen := len(frame) - 2
	received := uint16(frame[dataLen]) | uint16(frame[dataLen+1])<<8
	return CRC16(frame[:dataLen]) == received
}
