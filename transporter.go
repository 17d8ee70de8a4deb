package rdserial

// RegisterTransport is the subset of Modbus RTU used by the DPS and RD
// power supplies. RTUTransporter implements it; tests substitute fakes.
type RegisterTransport interface {
	ReadRegisters(unit uint8, base, count uint16) ([]uint16, error)
	WriteRegister(unit uint8, register, value uint16) error
	WriteRegisters(unit uint8, base uint16, values []uint16) error
}
