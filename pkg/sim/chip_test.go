package sim

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReadOnlyBitsSurviveWrites(t *testing.T) {
	c := NewChip()
	c.Regs[regControl] = 0b0000_1010 // LOCK_GRANT and BUS_INIT
	if err := c.Write(regControl, []byte{0x00}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	// LOCK_GRANT drops with LOCK_REQ, BUS_INIT is writable
	if c.Regs[regControl] != 0x00 {
		t.Errorf("control = %08b, expected 0", c.Regs[regControl])
	}

	c.Regs[regStatus] = 0b0001_0111
	if err := c.Write(regStatus, []byte{0xFF}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if c.Regs[regStatus] != 0b1111_0111 {
		t.Errorf("status = %08b, expected 11110111", c.Regs[regStatus])
	}
}

func TestInterruptStatusWriteOneToClear(t *testing.T) {
	c := NewChip()
	c.RaiseInterrupt(0b0110_0001)
	if err := c.Write(regInterruptStatus, []byte{0b0010_0000}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if c.Regs[regInterruptStatus] != 0b0100_0001 {
		t.Errorf("interrupt status = %08b", c.Regs[regInterruptStatus])
	}
}

func TestAutoGrant(t *testing.T) {
	c := NewChip()
	c.AutoGrant = true
	if err := c.Write(regControl, []byte{0b0000_0101}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if c.Regs[regControl] != 0b0000_0111 {
		t.Errorf("control = %08b, expected 00000111", c.Regs[regControl])
	}
}

func TestIDRejectsWrites(t *testing.T) {
	c := NewChip()
	if err := c.Write(regID, []byte{0x00}); err == nil {
		t.Fatalf("write to ID register should fail")
	}
	if c.Regs[regID] != DefaultID {
		t.Errorf("ID changed to 0x%02x", c.Regs[regID])
	}
	if len(c.Ops()) != 0 {
		t.Errorf("rejected write was recorded")
	}
}

func TestMultiByteAccessAndLog(t *testing.T) {
	c := NewChip()
	if err := c.Write(regMailboxLSB, []byte{0x02, 0x01}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	got, err := c.WriteThenRead(regMailboxLSB, 2)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if diff := cmp.Diff([]byte{0x02, 0x01}, got); diff != "" {
		t.Errorf("mailbox mismatch (-want +got):\n%s", diff)
	}
	want := []Op{
		{Write: true, Reg: regMailboxLSB, Data: []byte{0x02, 0x01}},
		{Reg: regMailboxLSB, Data: []byte{0x02, 0x01}},
	}
	if diff := cmp.Diff(want, c.Ops()); diff != "" {
		t.Errorf("ops mismatch (-want +got):\n%s", diff)
	}
	if _, err := c.WriteThenRead(regMailboxMSB, 2); err == nil {
		t.Errorf("read past the register map should fail")
	}
}

func TestInjectedErrorAndClose(t *testing.T) {
	c := NewChip()
	boom := errors.New("nack")
	c.Err = boom
	if _, err := c.WriteThenRead(regID, 1); !errors.Is(err, boom) {
		t.Errorf("expected injected error, got %v", err)
	}
	c.Err = nil
	if err := c.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if !c.Closed() {
		t.Errorf("chip not marked closed")
	}
	if err := c.Write(regControl, []byte{0}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
