// Package pca9641 drives the NXP PCA9641 two master I2C bus arbiter.
//
// A Device owns a register transport and, optionally, a GPIO pin wired to the INT output.
// Every accessor goes to the hardware, nothing is cached apart from the arbitration state
// the driver itself moved the chip into.
package pca9641

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mbalug7/go-pca9641/pkg/hal"
)

const (
	defaultName         = "pca9641"
	defaultPollInterval = 100 * time.Millisecond
	defaultPollAttempts = 10
)

type Option func(*Device)

func WithLogger(l *zap.Logger) Option {
	return func(d *Device) {
		if l != nil {
			d.log = l
		}
	}
}

// WithInterruptPin hands the INT pin to the device, it is released by Close
func WithInterruptPin(pin hal.InterruptPin) Option {
	return func(d *Device) { d.pin = pin }
}

// WithInterruptEdge selects the pin edge that is reported, INT is active low so the
// default is hal.EdgeFalling
func WithInterruptEdge(edge hal.Edge) Option {
	return func(d *Device) { d.edge = edge }
}

// WithName sets the device name forwarded with every interrupt notification
func WithName(name string) Option {
	return func(d *Device) { d.name = name }
}

func WithPollInterval(interval time.Duration) Option {
	return func(d *Device) { d.pollInterval = interval }
}

func WithPollAttempts(attempts int) Option {
	return func(d *Device) { d.pollAttempts = attempts }
}

type Device struct {
	name         string
	tr           hal.Transport
	pin          hal.InterruptPin
	edge         hal.Edge
	log          *zap.Logger
	pollInterval time.Duration
	pollAttempts int
	state        BusState

	muSubs      sync.Mutex            // subscribers map protection mutex
	subscribers map[string]NotifySink // interrupt sinks keyed by subscription id
	pinEnabled  bool
	pinReleased bool // set by release, no new subscriptions afterwards

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ hal.Arbiter = (*Device)(nil)

// New creates the device handler and checks that the transport is wired to a PCA9641.
// The device owns tr and the interrupt pin from now on, when the identity check fails both
// are released before the error is returned.
func New(tr hal.Transport, opts ...Option) (*Device, error) {
	d := &Device{
		name:         defaultName,
		tr:           tr,
		edge:         hal.EdgeFalling,
		log:          zap.NewNop(),
		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
		state:        BusUnknown,
		subscribers:  make(map[string]NotifySink),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.pollAttempts < 1 {
		return nil, multierr.Append(
			fmt.Errorf("%w: poll attempts must be positive, got %d", ErrInvalidArgument, d.pollAttempts),
			d.release(),
		)
	}
	d.log = d.log.With(zap.String("device", d.name))

	err := d.VerifyIdentity()
	if err != nil {
		return nil, multierr.Append(err, d.release())
	}
	return d, nil
}

func (obj *Device) Name() string {
	return obj.name
}

// ReadRegister reads one byte register
func (obj *Device) ReadRegister(reg hal.RegAddress) (uint8, error) {
	spec, err := Spec(reg)
	if err != nil {
		return 0, err
	}
	if obj.closed.Load() {
		return 0, ErrClosed
	}
	data, err := obj.tr.WriteThenRead(reg, spec.Width)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s register: %w", spec.Name, err)
	}
	if len(data) != spec.Width {
		return 0, fmt.Errorf("failed to read %s register: got %d bytes", spec.Name, len(data))
	}
	return data[0], nil
}

// WriteRegister writes one byte register, the ID register is never written
func (obj *Device) WriteRegister(reg hal.RegAddress, value uint8) error {
	spec, err := Spec(reg)
	if err != nil {
		return err
	}
	if !spec.Writable() {
		return fmt.Errorf("can't write %s: %w", spec.Name, ErrReadOnlyRegister)
	}
	if obj.closed.Load() {
		return ErrClosed
	}
	err = obj.tr.Write(reg, []byte{value})
	if err != nil {
		return fmt.Errorf("failed to write %s register: %w", spec.Name, err)
	}
	return nil
}

// UpdateRegister reads the register, applies fn and writes the result back.
// It is not atomic against the other master, the chip serializes conflicting writes.
func (obj *Device) UpdateRegister(reg hal.RegAddress, fn func(old uint8) uint8) error {
	spec, err := Spec(reg)
	if err != nil {
		return err
	}
	if !spec.Writable() {
		return fmt.Errorf("can't update %s: %w", spec.Name, ErrReadOnlyRegister)
	}
	old, err := obj.ReadRegister(reg)
	if err != nil {
		return err
	}
	return obj.WriteRegister(reg, fn(old))
}

func (obj *Device) readFlag(reg hal.RegAddress, bit hal.Bit) (bool, error) {
	v, err := obj.ReadRegister(reg)
	if err != nil {
		return false, err
	}
	return hal.GetBit(v, bit) == 1, nil
}

func (obj *Device) writeFlag(reg hal.RegAddress, bit hal.Bit, state bool) error {
	return obj.UpdateRegister(reg, func(v uint8) uint8 {
		return hal.WriteBit(v, bit, state)
	})
}

// readInto decodes a full register into r
func (obj *Device) readInto(r hal.Register) error {
	v, err := obj.ReadRegister(r.GetAddress())
	if err != nil {
		return err
	}
	r.SetValue(v)
	return nil
}

// VerifyIdentity confirms the transport talks to a PCA9641
func (obj *Device) VerifyIdentity() error {
	id, err := obj.ReadRegister(ID)
	if err != nil {
		return err
	}
	if id != ExpectedID {
		return &IdentityError{Got: id}
	}
	return nil
}

// CONTROL register

func (obj *Device) Control() (Control, error) {
	var c Control
	err := obj.readInto(&c)
	return c, err
}

func (obj *Device) Priority() (bool, error) {
	return obj.readFlag(CONTROL, CTRL_PRIORITY)
}

// SetPriority sets the hint the chip uses to pick a winner when both masters request
// the bus at the same time
func (obj *Device) SetPriority(state bool) error {
	return obj.writeFlag(CONTROL, CTRL_PRIORITY, state)
}

func (obj *Device) SMBusDisabled() (bool, error) {
	return obj.readFlag(CONTROL, CTRL_SMBUS_DIS)
}

func (obj *Device) SetSMBusDisabled(state bool) error {
	return obj.writeFlag(CONTROL, CTRL_SMBUS_DIS, state)
}

func (obj *Device) IdleTimerDisabled() (bool, error) {
	return obj.readFlag(CONTROL, CTRL_IDLE_TIMER_DIS)
}

func (obj *Device) SetIdleTimerDisabled(state bool) error {
	return obj.writeFlag(CONTROL, CTRL_IDLE_TIMER_DIS, state)
}

func (obj *Device) SMBusSoftReset() (bool, error) {
	return obj.readFlag(CONTROL, CTRL_SMBUS_SWRST)
}

func (obj *Device) SetSMBusSoftReset(state bool) error {
	return obj.writeFlag(CONTROL, CTRL_SMBUS_SWRST, state)
}

func (obj *Device) BusInit() (bool, error) {
	return obj.readFlag(CONTROL, CTRL_BUS_INIT)
}

func (obj *Device) SetBusInit(state bool) error {
	return obj.writeFlag(CONTROL, CTRL_BUS_INIT, state)
}

func (obj *Device) BusConnect() (bool, error) {
	return obj.readFlag(CONTROL, CTRL_BUS_CONNECT)
}

func (obj *Device) SetBusConnect(state bool) error {
	return obj.writeFlag(CONTROL, CTRL_BUS_CONNECT, state)
}

func (obj *Device) LockGrant() (bool, error) {
	return obj.readFlag(CONTROL, CTRL_LOCK_GRANT)
}

func (obj *Device) LockRequest() (bool, error) {
	return obj.readFlag(CONTROL, CTRL_LOCK_REQ)
}

func (obj *Device) SetLockRequest(state bool) error {
	return obj.writeFlag(CONTROL, CTRL_LOCK_REQ, state)
}

// STATUS register

func (obj *Device) Status() (Status, error) {
	var s Status
	err := obj.readInto(&s)
	return s, err
}

func (obj *Device) SDAIO() (bool, error) {
	return obj.readFlag(STATUS, STS_SDA_IO)
}

func (obj *Device) SetSDAIO(state bool) error {
	return obj.writeFlag(STATUS, STS_SDA_IO, state)
}

func (obj *Device) SCLIO() (bool, error) {
	return obj.readFlag(STATUS, STS_SCL_IO)
}

func (obj *Device) SetSCLIO(state bool) error {
	return obj.writeFlag(STATUS, STS_SCL_IO, state)
}

func (obj *Device) TestInt() (bool, error) {
	return obj.readFlag(STATUS, STS_TEST_INT)
}

// SetTestInt drives the TEST_INT status bit, used to raise a test interrupt on the other master
func (obj *Device) SetTestInt(state bool) error {
	return obj.writeFlag(STATUS, STS_TEST_INT, state)
}

func (obj *Device) MailboxFull() (bool, error) {
	return obj.readFlag(STATUS, STS_MBOX_FULL)
}

func (obj *Device) MailboxEmpty() (bool, error) {
	return obj.readFlag(STATUS, STS_MBOX_EMPTY)
}

func (obj *Device) BusHung() (bool, error) {
	return obj.readFlag(STATUS, STS_BUS_HUNG)
}

func (obj *Device) BusInitFail() (bool, error) {
	return obj.readFlag(STATUS, STS_BUS_INIT_FAIL)
}

func (obj *Device) OtherLock() (bool, error) {
	return obj.readFlag(STATUS, STS_OTHER_LOCK)
}

// RESERVE_TIME register

// ReserveTime returns the bus reservation time in milliseconds
func (obj *Device) ReserveTime() (int, error) {
	v, err := obj.ReadRegister(RESERVE_TIME)
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

// SetReserveTime sets the bus reservation time, range 0-255 ms
func (obj *Device) SetReserveTime(ms int) error {
	if err := validateReserveTime(ms); err != nil {
		return err
	}
	return obj.WriteRegister(RESERVE_TIME, uint8(ms))
}

func validateReserveTime(ms int) error {
	if ms < 0 || ms > 0xFF {
		return fmt.Errorf("%w: reserve time %d ms out of range 0-255", ErrInvalidArgument, ms)
	}
	return nil
}

// MAILBOX registers, the MSB register is always accessed first

// Mailbox reads the two mailbox registers, result is []byte{MSB, LSB}
func (obj *Device) Mailbox() ([]byte, error) {
	msb, err := obj.ReadRegister(MAILBOX_MSB)
	if err != nil {
		return nil, err
	}
	lsb, err := obj.ReadRegister(MAILBOX_LSB)
	if err != nil {
		return nil, err
	}
	return []byte{msb, lsb}, nil
}

// SetMailbox writes a 2 byte message, buf[0] goes to MAILBOX_MSB and buf[1] to MAILBOX_LSB
func (obj *Device) SetMailbox(buf []byte) error {
	if len(buf) != 2 {
		return fmt.Errorf("%w: mailbox message must be 2 bytes, got %d", ErrInvalidArgument, len(buf))
	}
	err := obj.WriteRegister(MAILBOX_MSB, buf[0])
	if err != nil {
		return err
	}
	return obj.WriteRegister(MAILBOX_LSB, buf[1])
}

func (obj *Device) MailboxValue() (uint16, error) {
	buf, err := obj.Mailbox()
	if err != nil {
		return 0, err
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

func (obj *Device) SetMailboxValue(v uint16) error {
	return obj.SetMailbox([]byte{byte(v >> 8), byte(v)})
}

// Close gives up the downstream bus, masks and clears interrupts and then releases the
// interrupt pin and the transport. Failures of the first three steps are logged only,
// the resources are released regardless. Close runs once, later calls return the first result.
func (obj *Device) Close() error {
	obj.closeOnce.Do(func() {
		if err := obj.AbandonDownstreamBus(); err != nil {
			obj.log.Warn("failed to abandon downstream bus on close", zap.Error(err))
		}
		if err := obj.InterruptDisableAll(); err != nil {
			obj.log.Warn("failed to mask interrupts on close", zap.Error(err))
		}
		if err := obj.InterruptClearAll(); err != nil {
			obj.log.Warn("failed to clear interrupts on close", zap.Error(err))
		}
		obj.closeErr = obj.release()
		obj.closed.Store(true)
	})
	return obj.closeErr
}

// release frees the pin and the transport, in that order.
// The pin is disabled outside muSubs, closing a line waits for a running edge handler and
// that handler needs muSubs.
func (obj *Device) release() (err error) {
	if obj.pin != nil {
		obj.muSubs.Lock()
		wasEnabled := obj.pinEnabled
		obj.pinEnabled = false
		obj.pinReleased = true
		for id := range obj.subscribers {
			delete(obj.subscribers, id)
		}
		obj.muSubs.Unlock()

		if wasEnabled {
			if derr := obj.pin.DisableInterrupt(obj.edge); derr != nil {
				obj.log.Warn("failed to disable interrupt pin", zap.Error(derr))
			}
		}
		if cerr := obj.pin.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to close interrupt pin: %w", cerr))
		}
	}
	if cerr := obj.tr.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to close transport: %w", cerr))
	}
	return err
}
