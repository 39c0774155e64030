package pca9641

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mbalug7/go-pca9641/pkg/hal"
)

// BusState is the downstream bus ownership as last observed by this driver
type BusState int

const (
	BusUnknown BusState = iota
	BusIdle
	BusRequesting
	BusGranted
	BusConnecting
	BusInitializing
	BusConnected
	BusFailed
)

var busStateNames = map[BusState]string{
	BusUnknown:      "unknown",
	BusIdle:         "idle",
	BusRequesting:   "requesting",
	BusGranted:      "granted",
	BusConnecting:   "connecting",
	BusInitializing: "initializing",
	BusConnected:    "connected",
	BusFailed:       "failed",
}

func (s BusState) String() string {
	if name, ok := busStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("BusState(%d)", int(s))
}

func (obj *Device) BusState() BusState {
	return obj.state
}

func (obj *Device) setState(s BusState) {
	if obj.state == s {
		return
	}
	obj.log.Debug("bus state changed", zap.Stringer("from", obj.state), zap.Stringer("to", s))
	obj.state = s
}

// RequestDownstreamBus writes the reservation time, requests the lock together with
// BUS_CONNECT and then polls CONTROL until the chip reports a finished bus initialization.
// BUS_INIT and BUS_INIT_FAIL are only evaluated on polls where LOCK_GRANT reads 1, a poll
// without the grant counts as an attempt and keeps the request in BusRequesting.
// Polling is bounded by the configured attempts and interval (10 x 100 ms by default) and
// stops early when ctx is done. A failed or stuck initialization returns an error matching
// ErrBusInitFail, the lock request stays set until AbandonDownstreamBus.
func (obj *Device) RequestDownstreamBus(ctx context.Context, reserveTimeMs int) error {
	err := validateReserveTime(reserveTimeMs)
	if err != nil {
		return err
	}
	err = obj.WriteRegister(RESERVE_TIME, uint8(reserveTimeMs))
	if err != nil {
		return fmt.Errorf("failed to set reserve time: %w", err)
	}
	err = obj.UpdateRegister(CONTROL, func(v uint8) uint8 {
		v = hal.SetBit(v, CTRL_LOCK_REQ)
		return hal.SetBit(v, CTRL_BUS_CONNECT)
	})
	if err != nil {
		return fmt.Errorf("failed to request lock: %w", err)
	}
	obj.setState(BusRequesting)
	return obj.waitBusInit(ctx)
}

func (obj *Device) waitBusInit(ctx context.Context) error {
	reason := "lock not granted"
	timer := time.NewTimer(obj.pollInterval)
	defer timer.Stop()

	for attempt := 1; attempt <= obj.pollAttempts; attempt++ {
		if attempt > 1 {
			timer.Reset(obj.pollInterval)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("downstream bus request aborted after %d attempts: %w", attempt-1, ctx.Err())
		case <-timer.C:
		}

		ctrl, err := obj.ReadRegister(CONTROL)
		if err != nil {
			return err
		}
		if !hal.IsSet(ctrl, CTRL_LOCK_GRANT) {
			continue
		}
		obj.setState(BusGranted)
		if hal.IsSet(ctrl, CTRL_BUS_CONNECT) {
			obj.setState(BusConnecting)
		}
		if hal.IsSet(ctrl, CTRL_BUS_INIT) {
			obj.setState(BusInitializing)
			reason = "bus init still running"
			continue
		}

		failed, err := obj.BusInitFail()
		if err != nil {
			return err
		}
		if failed {
			obj.setState(BusFailed)
			return &BusInitError{Attempts: attempt, Reason: "chip reported BUS_INIT_FAIL"}
		}
		obj.setState(BusConnected)
		obj.log.Info("downstream bus connected", zap.Int("attempts", attempt))
		return nil
	}
	obj.setState(BusFailed)
	return &BusInitError{Attempts: obj.pollAttempts, Reason: reason}
}

// AbandonDownstreamBus clears the whole CONTROL register, releasing the lock, the
// connection, the priority hint and the timers. It is safe to call without holding the bus.
func (obj *Device) AbandonDownstreamBus() error {
	err := obj.WriteRegister(CONTROL, 0x00)
	if err != nil {
		return fmt.Errorf("failed to abandon downstream bus: %w", err)
	}
	obj.setState(BusIdle)
	return nil
}
