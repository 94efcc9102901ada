package sensors

// Calibration converts raw counts to milli units: raw * Multiplier / Divisor.
// The pairs follow from the divider and shunt amplifier on the board.
type Calibration struct {
	Multiplier uint32
	Divisor    uint32
}

// Scale applies c to raw. The product is formed in 32 bits, the result is
// truncated.
func Scale(raw uint16, c Calibration) uint16 {
	return uint16(uint32(raw) * c.Multiplier / c.Divisor)
}

// Power returns mA * mV / 1000 truncated, in mW.
func Power(milliamps, millivolts uint16) uint32 {
	return uint32(milliamps) * uint32(millivolts) / 1000
}
