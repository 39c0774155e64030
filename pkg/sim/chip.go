// Package sim provides a simulated PCA9641 register file that satisfies hal.Transport.
// It models the access rules of the real chip closely enough to test drivers without
// hardware: read-only bits survive writes, interrupt status bits are cleared by writing 1,
// and the ID register rejects writes.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mbalug7/go-pca9641/pkg/hal"
)

const (
	regID hal.RegAddress = iota
	regControl
	regStatus
	regReserveTime
	regInterruptStatus
	regInterruptMask
	regMailboxLSB
	regMailboxMSB
	numRegisters
)

const (
	// DefaultID is the value of the ID register on a genuine chip
	DefaultID = 0x38

	controlLockReq   = 0x01
	controlLockGrant = 0x02
)

// writable bits per register, bits outside the mask keep their value on write
var writeMasks = [numRegisters]uint8{
	regID:              0x00,
	regControl:         0b1111_1101,
	regStatus:          0b1110_0000,
	regReserveTime:     0xFF,
	regInterruptStatus: 0x00, // write 1 to clear, handled separately
	regInterruptMask:   0xFF,
	regMailboxLSB:      0xFF,
	regMailboxMSB:      0xFF,
}

var ErrClosed = errors.New("sim: transport closed")

// Op is one recorded register access
type Op struct {
	Write bool
	Reg   hal.RegAddress
	Data  []byte
}

// ReadHook may replace the value returned for a register read. v is the stored value.
type ReadHook func(reg hal.RegAddress, v uint8) uint8

// Chip is a simulated register file. The exported fields may be changed between
// driver calls, the recorded ops are guarded by an internal mutex.
type Chip struct {
	Regs [numRegisters]uint8

	// AutoGrant makes the chip set LOCK_GRANT as soon as LOCK_REQ is written
	AutoGrant bool
	ReadHook  ReadHook
	// Err, when set, is returned by every transport call
	Err error

	mu     sync.Mutex
	ops    []Op
	closed bool
}

// NewChip returns a chip after power on reset
func NewChip() *Chip {
	c := &Chip{}
	c.Regs[regID] = DefaultID
	c.Regs[regStatus] = 0b0000_1000 // mailbox empty
	return c
}

func (c *Chip) WriteThenRead(reg hal.RegAddress, length int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(reg, length); err != nil {
		return nil, err
	}
	data := make([]byte, length)
	for i := range data {
		r := reg + hal.RegAddress(i)
		v := c.Regs[r]
		if c.ReadHook != nil {
			v = c.ReadHook(r, v)
		}
		data[i] = v
	}
	c.ops = append(c.ops, Op{Reg: reg, Data: append([]byte(nil), data...)})
	return data, nil
}

func (c *Chip) Write(reg hal.RegAddress, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.check(reg, len(data)); err != nil {
		return err
	}
	if reg == regID {
		return fmt.Errorf("sim: write to read-only register 0x%02x not acknowledged", reg.ToByte())
	}
	c.ops = append(c.ops, Op{Write: true, Reg: reg, Data: append([]byte(nil), data...)})
	for i, v := range data {
		c.store(reg+hal.RegAddress(i), v)
	}
	return nil
}

func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	return nil
}

func (c *Chip) store(reg hal.RegAddress, v uint8) {
	switch reg {
	case regInterruptStatus:
		c.Regs[reg] &^= v & 0x7F
		return
	case regControl:
		if c.AutoGrant && v&controlLockReq != 0 {
			c.Regs[reg] |= controlLockGrant
		}
		if v&controlLockReq == 0 {
			c.Regs[reg] &^= controlLockGrant
		}
	}
	mask := writeMasks[reg]
	c.Regs[reg] = c.Regs[reg]&^mask | v&mask
}

func (c *Chip) check(reg hal.RegAddress, length int) error {
	if c.closed {
		return ErrClosed
	}
	if c.Err != nil {
		return c.Err
	}
	if length < 1 || int(reg)+length > int(numRegisters) {
		return fmt.Errorf("sim: access of %d bytes at 0x%02x outside register map", length, reg.ToByte())
	}
	return nil
}

// Ops returns a copy of all recorded register accesses
func (c *Chip) Ops() []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Op(nil), c.ops...)
}

// Writes returns every byte written to reg, in order
func (c *Chip) Writes(reg hal.RegAddress) []byte {
	var out []byte
	for _, op := range c.Ops() {
		if op.Write && op.Reg == reg {
			out = append(out, op.Data...)
		}
	}
	return out
}

// Reads returns how many read transactions started at reg
func (c *Chip) Reads(reg hal.RegAddress) int {
	n := 0
	for _, op := range c.Ops() {
		if !op.Write && op.Reg == reg {
			n++
		}
	}
	return n
}

// ResetOps forgets the recorded accesses
func (c *Chip) ResetOps() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = nil
}

// Closed reports whether Close was called
func (c *Chip) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// RaiseInterrupt sets interrupt status bits, as the chip does when an event occurs
func (c *Chip) RaiseInterrupt(bits uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Regs[regInterruptStatus] |= bits & 0x7F
}
