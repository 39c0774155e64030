package pca9641

import (
	"fmt"
	"strings"

	"github.com/mazen160/go-random"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/mbalug7/go-pca9641/pkg/hal"
)

// Reason is an interrupt source, its value is the bit position in INTERRUPT_STATUS and
// INTERRUPT_MASK
type Reason uint8

const (
	INTR_INT_IN Reason = iota
	INTR_BUS_LOST
	INTR_LOCK_GRANT
	INTR_TEST_INT
	INTR_MBOX_EMPTY
	INTR_MBOX_FULL
	INTR_BUS_HUNG
)

// bit 7 of both interrupt registers is reserved
const interruptBits uint8 = 0b0111_1111

var reasonNames = [...]string{
	INTR_INT_IN:     "INT_IN",
	INTR_BUS_LOST:   "BUS_LOST",
	INTR_LOCK_GRANT: "LOCK_GRANT",
	INTR_TEST_INT:   "TEST_INT",
	INTR_MBOX_EMPTY: "MBOX_EMPTY",
	INTR_MBOX_FULL:  "MBOX_FULL",
	INTR_BUS_HUNG:   "BUS_HUNG",
}

func (r Reason) Valid() bool {
	return int(r) < len(reasonNames)
}

func (r Reason) Bit() hal.Bit {
	return hal.Bit(r)
}

func (r Reason) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Reason(%d)", uint8(r))
	}
	return reasonNames[r]
}

// Reasons is a set of interrupt reasons ordered by bit position
type Reasons []Reason

func (rs Reasons) Has(r Reason) bool {
	return slices.Contains(rs, r)
}

func (rs Reasons) String() string {
	names := make([]string, 0, len(rs))
	for _, r := range rs {
		names = append(names, r.String())
	}
	return "[" + strings.Join(names, " ") + "]"
}

// AllReasons returns every defined reason
func AllReasons() Reasons {
	return ReasonsFromValue(interruptBits)
}

// ReasonsFromValue decodes the set bits of an interrupt register value, bit 7 is ignored
func ReasonsFromValue(v uint8) Reasons {
	rs := Reasons{}
	for r := INTR_INT_IN; r.Valid(); r++ {
		if hal.IsSet(v, r.Bit()) {
			rs = append(rs, r)
		}
	}
	return rs
}

// ReasonsMask encodes reasons as an interrupt register value
func ReasonsMask(reasons ...Reason) (uint8, error) {
	var v uint8
	for _, r := range reasons {
		if !r.Valid() {
			return 0, fmt.Errorf("%w: unknown interrupt reason %d", ErrInvalidArgument, uint8(r))
		}
		v = hal.SetBit(v, r.Bit())
	}
	return v, nil
}

// InterruptReason returns the pending interrupt reasons
func (obj *Device) InterruptReason() (Reasons, error) {
	v, err := obj.ReadRegister(INTERRUPT_STATUS)
	if err != nil {
		return nil, err
	}
	return ReasonsFromValue(v), nil
}

// InterruptClearAll clears every pending interrupt
func (obj *Device) InterruptClearAll() error {
	return obj.WriteRegister(INTERRUPT_STATUS, interruptBits)
}

// InterruptClear clears the given pending interrupts. Writing 1 clears a status bit and
// writing 0 leaves it alone, so this is a plain write and not a read-modify-write.
func (obj *Device) InterruptClear(reasons ...Reason) error {
	v, err := ReasonsMask(reasons...)
	if err != nil {
		return err
	}
	return obj.WriteRegister(INTERRUPT_STATUS, v)
}

// InterruptEnableAll unmasks every reason, a 0 bit in INTERRUPT_MASK means enabled
func (obj *Device) InterruptEnableAll() error {
	return obj.WriteRegister(INTERRUPT_MASK, 0x00)
}

// InterruptDisableAll masks every reason
func (obj *Device) InterruptDisableAll() error {
	return obj.WriteRegister(INTERRUPT_MASK, interruptBits)
}

// InterruptEnable unmasks the given reasons and leaves the others untouched
func (obj *Device) InterruptEnable(reasons ...Reason) error {
	v, err := ReasonsMask(reasons...)
	if err != nil {
		return err
	}
	return obj.UpdateRegister(INTERRUPT_MASK, func(old uint8) uint8 {
		return old &^ v
	})
}

// InterruptDisable masks the given reasons and leaves the others untouched
func (obj *Device) InterruptDisable(reasons ...Reason) error {
	v, err := ReasonsMask(reasons...)
	if err != nil {
		return err
	}
	return obj.UpdateRegister(INTERRUPT_MASK, func(old uint8) uint8 {
		return old | v
	})
}

// InterruptEnabled returns the reasons that are not masked
func (obj *Device) InterruptEnabled() (Reasons, error) {
	v, err := obj.ReadRegister(INTERRUPT_MASK)
	if err != nil {
		return nil, err
	}
	return ReasonsFromValue(^v & interruptBits), nil
}

// Notification is delivered to subscribers on every INT pin edge. It only says that the
// chip asked for attention, call InterruptReason to learn why.
type Notification struct {
	Device string
	Event  hal.InterruptEvent
}

type NotifySink func(Notification)

// Subscribe registers sink for INT pin notifications. The pin interrupt is enabled with
// the first subscriber.
func (obj *Device) Subscribe(sink NotifySink) (string, error) {
	if obj.pin == nil {
		return "", ErrNoInterruptPin
	}
	if obj.closed.Load() {
		return "", ErrClosed
	}
	id, err := random.String(16)
	if err != nil {
		return "", fmt.Errorf("failed to generate subscription id: %w", err)
	}

	obj.muSubs.Lock()
	defer obj.muSubs.Unlock()
	if obj.pinReleased {
		return "", ErrClosed
	}
	if !obj.pinEnabled {
		err = obj.pin.EnableInterrupt(obj.edge, obj.onInterrupt)
		if err != nil {
			return "", fmt.Errorf("failed to enable %s edge interrupt: %w", obj.edge, err)
		}
		obj.pinEnabled = true
		obj.log.Debug("interrupt pin enabled", zap.Stringer("edge", obj.edge))
	}
	obj.subscribers[id] = sink
	return id, nil
}

// Unsubscribe removes a sink, the pin interrupt is disabled after the last one
func (obj *Device) Unsubscribe(id string) error {
	if obj.pin == nil {
		return ErrNoInterruptPin
	}
	obj.muSubs.Lock()
	if _, ok := obj.subscribers[id]; !ok {
		obj.muSubs.Unlock()
		return fmt.Errorf("%w: unknown subscription %q", ErrInvalidArgument, id)
	}
	delete(obj.subscribers, id)
	if len(obj.subscribers) > 0 || !obj.pinEnabled {
		obj.muSubs.Unlock()
		return nil
	}
	obj.pinEnabled = false
	obj.muSubs.Unlock()

	// muSubs must not be held here, disabling waits for an edge handler in flight
	err := obj.pin.DisableInterrupt(obj.edge)
	if err != nil {
		return fmt.Errorf("failed to disable %s edge interrupt: %w", obj.edge, err)
	}
	obj.log.Debug("interrupt pin disabled", zap.Stringer("edge", obj.edge))
	return nil
}

func (obj *Device) onInterrupt(evt hal.InterruptEvent) {
	obj.muSubs.Lock()
	sinks := make([]NotifySink, 0, len(obj.subscribers))
	for _, sink := range obj.subscribers {
		sinks = append(sinks, sink)
	}
	obj.muSubs.Unlock()

	n := Notification{Device: obj.name, Event: evt}
	for _, sink := range sinks {
		sink(n)
	}
}
