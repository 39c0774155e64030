// Package periphi2c implements hal.Transport on top of a periph.io I2C bus.
package periphi2c

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/mbalug7/go-pca9641/pkg/hal"
)

type Transport struct {
	bus i2c.BusCloser
	dev *i2c.Dev
}

// Open initializes the periph host drivers and opens the named bus, e.g. "1" or "/dev/i2c-1".
// An empty name selects the first available bus.
func Open(busName string, addr uint16) (*Transport, error) {
	_, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize periph host drivers: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %q: %w", busName, err)
	}
	return New(bus, addr), nil
}

// New wraps an already opened bus, the transport closes it on Close
func New(bus i2c.BusCloser, addr uint16) *Transport {
	return &Transport{
		bus: bus,
		dev: &i2c.Dev{Bus: bus, Addr: addr},
	}
}

func (t *Transport) WriteThenRead(reg hal.RegAddress, length int) ([]byte, error) {
	if length < 1 {
		return nil, fmt.Errorf("invalid read length %d", length)
	}
	r := make([]byte, length)
	err := t.dev.Tx([]byte{reg.ToByte()}, r)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (t *Transport) Write(reg hal.RegAddress, data []byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, reg.ToByte())
	w = append(w, data...)
	return t.dev.Tx(w, nil)
}

func (t *Transport) Close() error {
	return t.bus.Close()
}

func (t *Transport) String() string {
	return t.dev.String()
}
