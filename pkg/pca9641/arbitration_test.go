package pca9641

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mbalug7/go-pca9641/pkg/hal"
	"github.com/mbalug7/go-pca9641/pkg/sim"
)

// busInitHook keeps BUS_INIT set for the first clearAt-1 polls after the lock was requested.
// clearAt 0 never clears it.
func busInitHook(polls *int, clearAt int) sim.ReadHook {
	return func(reg hal.RegAddress, v uint8) uint8 {
		if reg != CONTROL || !hal.IsSet(v, CTRL_LOCK_REQ) {
			return v
		}
		*polls++
		if clearAt == 0 || *polls < clearAt {
			return hal.SetBit(v, CTRL_BUS_INIT)
		}
		return v
	}
}

func TestRequestDownstreamBusConnects(t *testing.T) {
	chip := sim.NewChip()
	chip.AutoGrant = true
	polls := 0
	chip.ReadHook = busInitHook(&polls, 3)
	dev := newTestDevice(t, chip)

	if err := dev.RequestDownstreamBus(context.Background(), 25); err != nil {
		t.Fatalf("RequestDownstreamBus failed: %v", err)
	}
	if polls != 3 {
		t.Errorf("expected 3 polls, got %d", polls)
	}
	if dev.BusState() != BusConnected {
		t.Errorf("state = %s, expected connected", dev.BusState())
	}
	ops := chip.Ops()
	wantPrefix := []sim.Op{
		{Write: true, Reg: RESERVE_TIME, Data: []byte{25}},
		{Reg: CONTROL, Data: []byte{0x00}},
		{Write: true, Reg: CONTROL, Data: []byte{0b0000_0101}},
	}
	if diff := cmp.Diff(wantPrefix, ops[:3]); diff != "" {
		t.Errorf("request sequence mismatch (-want +got):\n%s", diff)
	}
	last := ops[len(ops)-1]
	if last.Write || last.Reg != STATUS {
		t.Errorf("expected BUS_INIT_FAIL check last, got %+v", last)
	}
}

func TestRequestDownstreamBusInitNeverCompletes(t *testing.T) {
	chip := sim.NewChip()
	chip.AutoGrant = true
	polls := 0
	chip.ReadHook = busInitHook(&polls, 0)
	dev := newTestDevice(t, chip)

	err := dev.RequestDownstreamBus(context.Background(), 0)
	if !errors.Is(err, ErrBusInitFail) {
		t.Fatalf("expected ErrBusInitFail, got %v", err)
	}
	var initErr *BusInitError
	if !errors.As(err, &initErr) || initErr.Attempts != 10 {
		t.Errorf("expected BusInitError after 10 attempts, got %#v", err)
	}
	if polls != 10 {
		t.Errorf("expected exactly 10 polls, got %d", polls)
	}
	if chip.Reads(STATUS) != 0 {
		t.Errorf("BUS_INIT_FAIL must not be checked while BUS_INIT is set")
	}
	if dev.BusState() != BusFailed {
		t.Errorf("state = %s, expected failed", dev.BusState())
	}
}

func TestRequestDownstreamBusInitFailBit(t *testing.T) {
	chip := sim.NewChip()
	chip.AutoGrant = true
	chip.Regs[STATUS] |= STS_BUS_INIT_FAIL.Mask()
	polls := 0
	chip.ReadHook = busInitHook(&polls, 2)
	dev := newTestDevice(t, chip)

	err := dev.RequestDownstreamBus(context.Background(), 0)
	var initErr *BusInitError
	if !errors.As(err, &initErr) || initErr.Attempts != 2 {
		t.Fatalf("expected BusInitError at attempt 2, got %v", err)
	}
	if !errors.Is(err, ErrBusInitFail) {
		t.Errorf("BusInitError must match ErrBusInitFail")
	}
}

func TestRequestDownstreamBusLockNeverGranted(t *testing.T) {
	chip := sim.NewChip()
	dev := newTestDevice(t, chip, WithPollAttempts(4))

	err := dev.RequestDownstreamBus(context.Background(), 10)
	if !errors.Is(err, ErrBusInitFail) {
		t.Fatalf("expected ErrBusInitFail, got %v", err)
	}
	// one read for the lock request update, then one per attempt
	if chip.Reads(CONTROL) != 5 {
		t.Errorf("expected 5 CONTROL reads, got %d", chip.Reads(CONTROL))
	}
}

func TestRequestDownstreamBusKeepsPriority(t *testing.T) {
	chip := sim.NewChip()
	chip.AutoGrant = true
	chip.Regs[CONTROL] = 0b1000_0000
	dev := newTestDevice(t, chip)

	if err := dev.RequestDownstreamBus(context.Background(), 0); err != nil {
		t.Fatalf("RequestDownstreamBus failed: %v", err)
	}
	if diff := cmp.Diff([]byte{0b1000_0101}, chip.Writes(CONTROL)); diff != "" {
		t.Errorf("control writes (-want +got):\n%s", diff)
	}
}

func TestRequestDownstreamBusInvalidReserveTime(t *testing.T) {
	chip := sim.NewChip()
	dev := newTestDevice(t, chip)

	for _, ms := range []int{-1, 256} {
		if err := dev.RequestDownstreamBus(context.Background(), ms); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("reserve time %d: expected ErrInvalidArgument, got %v", ms, err)
		}
	}
	if len(chip.Ops()) != 0 {
		t.Errorf("invalid request reached the transport: %v", chip.Ops())
	}
}

func TestRequestDownstreamBusCancelled(t *testing.T) {
	chip := sim.NewChip()
	chip.AutoGrant = true
	dev := newTestDevice(t, chip, WithPollInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := dev.RequestDownstreamBus(ctx, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrBusInitFail) {
		t.Errorf("cancellation reported as bus init failure")
	}
	if dev.BusState() != BusRequesting {
		t.Errorf("state = %s, expected requesting", dev.BusState())
	}
}

func TestRequestDownstreamBusTransportError(t *testing.T) {
	chip := sim.NewChip()
	dev := newTestDevice(t, chip)
	boom := errors.New("arbitration lost")
	chip.Err = boom

	err := dev.RequestDownstreamBus(context.Background(), 0)
	if !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if errors.Is(err, ErrBusInitFail) {
		t.Errorf("transport error reported as bus init failure")
	}
}

func TestAbandonDownstreamBus(t *testing.T) {
	for _, initial := range []uint8{0x00, 0b1000_0111, 0xFF} {
		chip := sim.NewChip()
		chip.Regs[CONTROL] = initial
		dev := newTestDevice(t, chip)

		if err := dev.AbandonDownstreamBus(); err != nil {
			t.Fatalf("AbandonDownstreamBus failed: %v", err)
		}
		if err := dev.AbandonDownstreamBus(); err != nil {
			t.Fatalf("second AbandonDownstreamBus failed: %v", err)
		}
		want := []sim.Op{
			{Write: true, Reg: CONTROL, Data: []byte{0x00}},
			{Write: true, Reg: CONTROL, Data: []byte{0x00}},
		}
		if diff := cmp.Diff(want, chip.Ops()); diff != "" {
			t.Errorf("initial %08b (-want +got):\n%s", initial, diff)
		}
		if dev.BusState() != BusIdle {
			t.Errorf("state = %s, expected idle", dev.BusState())
		}
	}
}

func TestRequestDownstreamBusWaitsForGrant(t *testing.T) {
	chip := sim.NewChip()
	chip.AutoGrant = true
	polls := 0
	// BUS_INIT already clear, the grant shows up on the 3rd poll only
	chip.ReadHook = func(reg hal.RegAddress, v uint8) uint8 {
		if reg != CONTROL || !hal.IsSet(v, CTRL_LOCK_REQ) {
			return v
		}
		polls++
		if polls < 3 {
			return hal.ClearBit(v, CTRL_LOCK_GRANT)
		}
		return v
	}
	dev := newTestDevice(t, chip)

	if err := dev.RequestDownstreamBus(context.Background(), 0); err != nil {
		t.Fatalf("RequestDownstreamBus failed: %v", err)
	}
	if polls != 3 {
		t.Errorf("expected 3 polls, got %d", polls)
	}
	if got := chip.Reads(STATUS); got != 1 {
		t.Errorf("BUS_INIT_FAIL checked %d times, expected only after the grant", got)
	}
}
