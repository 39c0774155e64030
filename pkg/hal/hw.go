package hal

import "time"

// Transport is a byte oriented register transport to a single I2C device.
// Implementations are not required to be safe for concurrent use, the caller that owns the
// transport serializes access.
type Transport interface {
	// WriteThenRead writes the register address and reads length bytes of the response
	// in one combined transaction
	WriteThenRead(reg RegAddress, length int) ([]byte, error)
	// Write writes the register address followed by data
	Write(reg RegAddress, data []byte) error
	Close() error
}

type Edge int

const (
	EdgeFalling Edge = iota
	EdgeRising
	EdgeBoth
)

func (e Edge) String() string {
	switch e {
	case EdgeFalling:
		return "falling"
	case EdgeRising:
		return "rising"
	case EdgeBoth:
		return "both"
	}
	return "unknown"
}

// InterruptEvent is delivered by an InterruptPin on every detected edge
type InterruptEvent struct {
	Pin       string
	Edge      Edge          // edge that was detected, never EdgeBoth
	Timestamp time.Duration // kernel or MCU timestamp, only meaningful relative to other events
}

type OnInterruptCb func(InterruptEvent)

// InterruptPin is an optional GPIO input wired to the chip interrupt output
type InterruptPin interface {
	EnableInterrupt(edge Edge, cb OnInterruptCb) error
	DisableInterrupt(edge Edge) error
	Close() error
}
