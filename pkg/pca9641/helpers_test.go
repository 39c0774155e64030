package pca9641

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/mbalug7/go-pca9641/pkg/hal"
	"github.com/mbalug7/go-pca9641/pkg/sim"
)

func newTestDevice(t *testing.T, chip *sim.Chip, opts ...Option) *Device {
	t.Helper()
	opts = append([]Option{
		WithLogger(zaptest.NewLogger(t)),
		WithPollInterval(time.Millisecond),
	}, opts...)
	dev, err := New(chip, opts...)
	if err != nil {
		t.Fatalf("failed to create device: %v", err)
	}
	chip.ResetOps()
	return dev
}

type fakePin struct {
	enabled   []hal.Edge
	disabled  []hal.Edge
	closed    bool
	cb        hal.OnInterruptCb
	enableErr error
	closeErr  error
}

func (p *fakePin) EnableInterrupt(edge hal.Edge, cb hal.OnInterruptCb) error {
	if p.enableErr != nil {
		return p.enableErr
	}
	p.enabled = append(p.enabled, edge)
	p.cb = cb
	return nil
}

func (p *fakePin) DisableInterrupt(edge hal.Edge) error {
	if p.cb == nil {
		return errors.New("interrupt not enabled")
	}
	p.disabled = append(p.disabled, edge)
	p.cb = nil
	return nil
}

func (p *fakePin) Close() error {
	p.closed = true
	return p.closeErr
}

// fire simulates an edge on the pin
func (p *fakePin) fire(evt hal.InterruptEvent) {
	if p.cb != nil {
		p.cb(evt)
	}
}

// gatedPin disables like a gpiod line: DisableInterrupt lets a held edge through and waits
// until its handler has returned
type gatedPin struct {
	mu       sync.Mutex
	cb       hal.OnInterruptCb
	inFlight sync.WaitGroup
	gate     chan struct{}
	openGate sync.Once
	closed   bool
}

func newGatedPin() *gatedPin {
	return &gatedPin{gate: make(chan struct{})}
}

func (p *gatedPin) EnableInterrupt(edge hal.Edge, cb hal.OnInterruptCb) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cb = cb
	return nil
}

// fireHeld starts an edge handler that runs once the line gets disabled
func (p *gatedPin) fireHeld(evt hal.InterruptEvent) {
	p.mu.Lock()
	cb := p.cb
	p.mu.Unlock()
	p.inFlight.Add(1)
	go func() {
		defer p.inFlight.Done()
		<-p.gate
		cb(evt)
	}()
}

func (p *gatedPin) DisableInterrupt(edge hal.Edge) error {
	p.openGate.Do(func() { close(p.gate) })
	p.inFlight.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cb = nil
	return nil
}

func (p *gatedPin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *gatedPin) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
