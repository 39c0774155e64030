package pca9641

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mbalug7/go-pca9641/pkg/sim"
)

func TestControlBuilder(t *testing.T) {
	chip := sim.NewChip()
	chip.AutoGrant = true
	chip.Regs[CONTROL] = 0b0100_0011 // SMBUS_DIS, LOCK_GRANT, LOCK_REQ
	dev := newTestDevice(t, chip)

	err := NewControlBuilder(dev).Priority(true).IdleTimerDisabled(true).SMBusDisabled(false).Write()
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if diff := cmp.Diff([]byte{0b1010_0011}, chip.Writes(CONTROL)); diff != "" {
		t.Errorf("control writes (-want +got):\n%s", diff)
	}
	if chip.Reads(CONTROL) != 1 {
		t.Errorf("expected one read-modify-write, got %d reads", chip.Reads(CONTROL))
	}

	ctrl, err := dev.Control()
	if err != nil {
		t.Fatalf("Control failed: %v", err)
	}
	want := Control{Priority: true, IdleTimerDisabled: true, LockGrant: true, LockRequest: true}
	if diff := cmp.Diff(want, ctrl); diff != "" {
		t.Errorf("control mismatch (-want +got):\n%s", diff)
	}
}

func TestControlBuilderLaterStageWins(t *testing.T) {
	chip := sim.NewChip()
	dev := newTestDevice(t, chip)

	err := NewControlBuilder(dev).BusConnect(true).LockRequest(true).BusConnect(false).BusInit(true).SMBusSoftReset(true).Write()
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if diff := cmp.Diff([]byte{0b0001_1001}, chip.Writes(CONTROL)); diff != "" {
		t.Errorf("control writes (-want +got):\n%s", diff)
	}
}
