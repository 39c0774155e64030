package pca9641

import (
	"fmt"

	"github.com/mbalug7/go-pca9641/pkg/hal"
)

const (
	ID hal.RegAddress = iota
	CONTROL
	STATUS
	RESERVE_TIME
	INTERRUPT_STATUS
	INTERRUPT_MASK
	MAILBOX_LSB
	MAILBOX_MSB
)

// ExpectedID is the content of the ID register
const ExpectedID uint8 = 0x38

// ordered array, ID address is 0, MAILBOX_MSB address is 7
var registerMap = [8]hal.RegisterSpec{
	{Name: "ID", Address: ID, Width: 1, Access: hal.ReadOnly},
	{Name: "CONTROL", Address: CONTROL, Width: 1, Access: hal.ReadWrite},
	{Name: "STATUS", Address: STATUS, Width: 1, Access: hal.ReadWrite},
	{Name: "RESERVE_TIME", Address: RESERVE_TIME, Width: 1, Access: hal.ReadWrite},
	{Name: "INTERRUPT_STATUS", Address: INTERRUPT_STATUS, Width: 1, Access: hal.ReadWrite},
	{Name: "INTERRUPT_MASK", Address: INTERRUPT_MASK, Width: 1, Access: hal.ReadWrite},
	{Name: "MAILBOX_LSB", Address: MAILBOX_LSB, Width: 1, Access: hal.ReadWrite},
	{Name: "MAILBOX_MSB", Address: MAILBOX_MSB, Width: 1, Access: hal.ReadWrite},
}

// Spec returns the register map entry for reg
func Spec(reg hal.RegAddress) (hal.RegisterSpec, error) {
	if int(reg) >= len(registerMap) {
		return hal.RegisterSpec{}, fmt.Errorf("%w: no register at address 0x%02x", ErrInvalidArgument, reg.ToByte())
	}
	return registerMap[reg], nil
}

// CONTROL register bits
const (
	CTRL_LOCK_REQ       = hal.BIT0
	CTRL_LOCK_GRANT     = hal.BIT1 // read only
	CTRL_BUS_CONNECT    = hal.BIT2
	CTRL_BUS_INIT       = hal.BIT3
	CTRL_SMBUS_SWRST    = hal.BIT4
	CTRL_IDLE_TIMER_DIS = hal.BIT5
	CTRL_SMBUS_DIS      = hal.BIT6
	CTRL_PRIORITY       = hal.BIT7
)

// STATUS register bits, only SDA_IO, SCL_IO and TEST_INT are writable
const (
	STS_OTHER_LOCK    = hal.BIT0
	STS_BUS_INIT_FAIL = hal.BIT1
	STS_BUS_HUNG      = hal.BIT2
	STS_MBOX_EMPTY    = hal.BIT3
	STS_MBOX_FULL     = hal.BIT4
	STS_TEST_INT      = hal.BIT5
	STS_SCL_IO        = hal.BIT6
	STS_SDA_IO        = hal.BIT7
)

// CONTROL register snapshot

type Control struct {
	Priority          bool
	SMBusDisabled     bool
	IdleTimerDisabled bool
	SMBusSoftReset    bool
	BusInit           bool
	BusConnect        bool
	LockGrant         bool
	LockRequest       bool
}

func (obj *Control) GetAddress() hal.RegAddress {
	return CONTROL
}

func (obj *Control) GetValue() uint8 {
	var v uint8
	v = hal.WriteBit(v, CTRL_PRIORITY, obj.Priority)
	v = hal.WriteBit(v, CTRL_SMBUS_DIS, obj.SMBusDisabled)
	v = hal.WriteBit(v, CTRL_IDLE_TIMER_DIS, obj.IdleTimerDisabled)
	v = hal.WriteBit(v, CTRL_SMBUS_SWRST, obj.SMBusSoftReset)
	v = hal.WriteBit(v, CTRL_BUS_INIT, obj.BusInit)
	v = hal.WriteBit(v, CTRL_BUS_CONNECT, obj.BusConnect)
	v = hal.WriteBit(v, CTRL_LOCK_GRANT, obj.LockGrant)
	v = hal.WriteBit(v, CTRL_LOCK_REQ, obj.LockRequest)
	return v
}

func (obj *Control) SetValue(value uint8) {
	obj.Priority = hal.IsSet(value, CTRL_PRIORITY)
	obj.SMBusDisabled = hal.IsSet(value, CTRL_SMBUS_DIS)
	obj.IdleTimerDisabled = hal.IsSet(value, CTRL_IDLE_TIMER_DIS)
	obj.SMBusSoftReset = hal.IsSet(value, CTRL_SMBUS_SWRST)
	obj.BusInit = hal.IsSet(value, CTRL_BUS_INIT)
	obj.BusConnect = hal.IsSet(value, CTRL_BUS_CONNECT)
	obj.LockGrant = hal.IsSet(value, CTRL_LOCK_GRANT)
	obj.LockRequest = hal.IsSet(value, CTRL_LOCK_REQ)
}

// STATUS register snapshot

type Status struct {
	SDAIO        bool
	SCLIO        bool
	TestInt      bool
	MailboxFull  bool
	MailboxEmpty bool
	BusHung      bool
	BusInitFail  bool
	OtherLock    bool
}

func (obj *Status) GetAddress() hal.RegAddress {
	return STATUS
}

func (obj *Status) GetValue() uint8 {
	var v uint8
	v = hal.WriteBit(v, STS_SDA_IO, obj.SDAIO)
	v = hal.WriteBit(v, STS_SCL_IO, obj.SCLIO)
	v = hal.WriteBit(v, STS_TEST_INT, obj.TestInt)
	v = hal.WriteBit(v, STS_MBOX_FULL, obj.MailboxFull)
	v = hal.WriteBit(v, STS_MBOX_EMPTY, obj.MailboxEmpty)
	v = hal.WriteBit(v, STS_BUS_HUNG, obj.BusHung)
	v = hal.WriteBit(v, STS_BUS_INIT_FAIL, obj.BusInitFail)
	v = hal.WriteBit(v, STS_OTHER_LOCK, obj.OtherLock)
	return v
}

func (obj *Status) SetValue(value uint8) {
	obj.SDAIO = hal.IsSet(value, STS_SDA_IO)
	obj.SCLIO = hal.IsSet(value, STS_SCL_IO)
	obj.TestInt = hal.IsSet(value, STS_TEST_INT)
	obj.MailboxFull = hal.IsSet(value, STS_MBOX_FULL)
	obj.MailboxEmpty = hal.IsSet(value, STS_MBOX_EMPTY)
	obj.BusHung = hal.IsSet(value, STS_BUS_HUNG)
	obj.BusInitFail = hal.IsSet(value, STS_BUS_INIT_FAIL)
	obj.OtherLock = hal.IsSet(value, STS_OTHER_LOCK)
}
