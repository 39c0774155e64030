package hal

// RegAddress is a one byte register address on the chip
type RegAddress uint8

// ToByte returns the address as it is put on the wire
func (a RegAddress) ToByte() byte {
	return byte(a)
}

type Access uint8

const (
	ReadOnly Access = iota
	ReadWrite
)

func (a Access) String() string {
	if a == ReadOnly {
		return "RO"
	}
	return "RW"
}

// RegisterSpec describes one entry of a chip register map
type RegisterSpec struct {
	Name    string
	Address RegAddress
	Width   int // bytes
	Access  Access
}

// Writable reports whether the register accepts writes
func (s RegisterSpec) Writable() bool {
	return s.Access == ReadWrite
}

// Register is a decoded snapshot of a one byte register
type Register interface {
	GetAddress() RegAddress
	GetValue() uint8
	SetValue(value uint8)
}
