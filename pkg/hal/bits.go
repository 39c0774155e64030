package hal

// Bit is a bit position inside a one byte register value.
// Only the BIT0..BIT7 constants should be used, positions above 7 select no bit.
type Bit uint8

const (
	BIT0 Bit = iota
	BIT1
	BIT2
	BIT3
	BIT4
	BIT5
	BIT6
	BIT7
)

// Mask returns the single bit mask for the position
func (b Bit) Mask() uint8 {
	if b > BIT7 {
		return 0
	}
	return 1 << b
}

// GetBit returns 1 when the bit is set in value, 0 otherwise
func GetBit(value uint8, pos Bit) uint8 {
	if value&pos.Mask() != 0 {
		return 1
	}
	return 0
}

// IsSet reports whether the bit is set in value
func IsSet(value uint8, pos Bit) bool {
	return GetBit(value, pos) == 1
}

// SetBit forces the bit to 1
func SetBit(value uint8, pos Bit) uint8 {
	return value | pos.Mask()
}

// ClearBit forces the bit to 0
func ClearBit(value uint8, pos Bit) uint8 {
	return value &^ pos.Mask()
}

// WriteBit sets or clears the bit depending on state
func WriteBit(value uint8, pos Bit, state bool) uint8 {
	if state {
		return SetBit(value, pos)
	}
	return ClearBit(value, pos)
}
