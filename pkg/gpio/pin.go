// Package gpio implements hal.InterruptPin on a Linux GPIO character device.
package gpio

import (
	"fmt"
	"io"
	"sync"

	"github.com/warthog618/gpiod"

	"github.com/mbalug7/go-pca9641/pkg/hal"
)

const defaultConsumer = "pca9641"

type Option func(*Pin)

// WithConsumer sets the consumer label shown by gpioinfo
func WithConsumer(name string) Option {
	return func(p *Pin) {
		p.consumer = name
	}
}

// WithPullUp enables the internal pull up, the PCA9641 INT output is open drain
func WithPullUp() Option {
	return func(p *Pin) {
		p.pullUp = true
	}
}

type Pin struct {
	chipName string
	offset   int
	consumer string
	pullUp   bool
	chip     *gpiod.Chip
	mu       sync.Mutex
	line     io.Closer // *gpiod.Line, requested while the interrupt is enabled
	cb       hal.OnInterruptCb
}

// NewPin opens the GPIO chip, e.g. "gpiochip0", the line itself is requested when the
// interrupt gets enabled
func NewPin(chipName string, offset int, opts ...Option) (*Pin, error) {
	p := &Pin{
		chipName: chipName,
		offset:   offset,
		consumer: defaultConsumer,
	}
	for _, opt := range opts {
		opt(p)
	}
	c, err := gpiod.NewChip(chipName, gpiod.WithConsumer(p.consumer))
	if err != nil {
		return nil, fmt.Errorf("failed to create GPIO chip: %w", err)
	}
	p.chip = c
	return p, nil
}

func (obj *Pin) EnableInterrupt(edge hal.Edge, cb hal.OnInterruptCb) error {
	if cb == nil {
		return fmt.Errorf("interrupt callback is nil")
	}
	edgeOpt, err := edgeOption(edge)
	if err != nil {
		return err
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	if obj.line != nil {
		return fmt.Errorf("interrupt already enabled on line %d", obj.offset)
	}
	reqOpts := []gpiod.LineReqOption{gpiod.WithEventHandler(obj.onLineEvent), edgeOpt}
	if obj.pullUp {
		reqOpts = append(reqOpts, gpiod.WithPullUp)
	}
	line, err := obj.chip.RequestLine(obj.offset, reqOpts...)
	if err != nil {
		return fmt.Errorf("failed to request INT GPIO line: %w", err)
	}
	obj.line = line
	obj.cb = cb
	return nil
}

// DisableInterrupt releases the line. Closing a gpiod line waits for the event handler to
// return and the handler takes mu, so the line is closed after mu is released.
func (obj *Pin) DisableInterrupt(edge hal.Edge) error {
	obj.mu.Lock()
	line := obj.line
	obj.line = nil
	obj.cb = nil
	obj.mu.Unlock()
	if line == nil {
		return nil
	}
	err := line.Close()
	if err != nil {
		return fmt.Errorf("failed to close INT line: %w", err)
	}
	return nil
}

func (obj *Pin) Close() error {
	err := obj.DisableInterrupt(hal.EdgeBoth)
	if err != nil {
		return err
	}
	err = obj.chip.Close()
	if err != nil {
		return fmt.Errorf("failed to close GPIO chip: %w", err)
	}
	return nil
}

func (obj *Pin) onLineEvent(evt gpiod.LineEvent) {
	obj.mu.Lock()
	cb := obj.cb
	obj.mu.Unlock()
	if cb == nil {
		return
	}
	cb(toInterruptEvent(obj.chipName, evt))
}

func edgeOption(edge hal.Edge) (gpiod.LineReqOption, error) {
	switch edge {
	case hal.EdgeFalling:
		return gpiod.WithFallingEdge, nil
	case hal.EdgeRising:
		return gpiod.WithRisingEdge, nil
	case hal.EdgeBoth:
		return gpiod.WithBothEdges, nil
	}
	return nil, fmt.Errorf("unsupported edge %s", edge)
}

func toInterruptEvent(chipName string, evt gpiod.LineEvent) hal.InterruptEvent {
	edge := hal.EdgeFalling
	if evt.Type == gpiod.LineEventRisingEdge {
		edge = hal.EdgeRising
	}
	return hal.InterruptEvent{
		Pin:       fmt.Sprintf("%s:%d", chipName, evt.Offset),
		Edge:      edge,
		Timestamp: evt.Timestamp,
	}
}
