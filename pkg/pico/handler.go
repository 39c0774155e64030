//go:build pico
// +build pico

// Package pico binds the PCA9641 driver to the RP2040 I2C peripheral and GPIO interrupts.
// It is built with TinyGo, e.g. tinygo build -target pico.
package pico

import (
	"fmt"
	"machine"
	"sync"
	"time"

	"github.com/mbalug7/go-pca9641/pkg/hal"
)

var bootTime = time.Now()

type Transport struct {
	bus  *machine.I2C
	addr uint16
}

// NewTransport uses an already configured I2C peripheral, e.g. machine.I2C0
func NewTransport(bus *machine.I2C, addr uint16) *Transport {
	return &Transport{bus: bus, addr: addr}
}

func (obj *Transport) WriteThenRead(reg hal.RegAddress, length int) ([]byte, error) {
	if length < 1 {
		return nil, fmt.Errorf("invalid read length %d", length)
	}
	r := make([]byte, length)
	err := obj.bus.Tx(obj.addr, []byte{reg.ToByte()}, r)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (obj *Transport) Write(reg hal.RegAddress, data []byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, reg.ToByte())
	w = append(w, data...)
	return obj.bus.Tx(obj.addr, w, nil)
}

// Close is a no-op, the peripheral belongs to the caller
func (obj *Transport) Close() error {
	return nil
}

type InterruptPin struct {
	pin machine.Pin
	mu  sync.Mutex
	cb  hal.OnInterruptCb
}

// NewInterruptPin configures pin as input with pull up, INT is open drain
func NewInterruptPin(pin machine.Pin) *InterruptPin {
	pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	return &InterruptPin{pin: pin}
}

func (obj *InterruptPin) EnableInterrupt(edge hal.Edge, cb hal.OnInterruptCb) error {
	var change machine.PinChange
	switch edge {
	case hal.EdgeFalling:
		change = machine.PinFalling
	case hal.EdgeRising:
		change = machine.PinRising
	case hal.EdgeBoth:
		change = machine.PinToggle
	default:
		return fmt.Errorf("unsupported edge %s", edge)
	}
	obj.mu.Lock()
	obj.cb = cb
	obj.mu.Unlock()
	return obj.pin.SetInterrupt(change, obj.onPinChange)
}

func (obj *InterruptPin) DisableInterrupt(edge hal.Edge) error {
	obj.mu.Lock()
	obj.cb = nil
	obj.mu.Unlock()
	return obj.pin.SetInterrupt(0, nil)
}

func (obj *InterruptPin) Close() error {
	return obj.DisableInterrupt(hal.EdgeBoth)
}

func (obj *InterruptPin) onPinChange(p machine.Pin) {
	edge := hal.EdgeFalling
	if p.Get() {
		edge = hal.EdgeRising
	}
	evt := hal.InterruptEvent{
		Pin:       fmt.Sprintf("GP%d", p),
		Edge:      edge,
		Timestamp: time.Since(bootTime),
	}
	// leave interrupt context before taking the lock
	go obj.dispatch(evt)
}

func (obj *InterruptPin) dispatch(evt hal.InterruptEvent) {
	obj.mu.Lock()
	cb := obj.cb
	obj.mu.Unlock()
	if cb != nil {
		cb(evt)
	}
}
