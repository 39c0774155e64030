// Package serialbridge implements hal.Transport over a UART to I2C bridge.
//
// The bridge speaks a small framed protocol. Every frame starts with a command byte followed
// by the 7 bit I2C device address, the register address and a length byte:
//
//	read request   C1 addr reg len
//	read response  C1 addr reg len data...
//	write request  C0 addr reg len data...
//	write response the request echoed back
//	NACK response  EE addr reg 00
package serialbridge

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"

	"github.com/mbalug7/go-pca9641/pkg/hal"
)

const (
	cmdWriteReg byte = 0xC0
	cmdReadReg  byte = 0xC1
	cmdNack     byte = 0xEE
)

// cmd, device address, register, length
const headerLen = 4

// ErrNack is returned when the device did not acknowledge a transfer on the bridge side
var ErrNack = errors.New("i2c device did not acknowledge")

type Config struct {
	Name        string // serial port name, e.g. /dev/ttyUSB0
	Baud        int
	Parity      serial.Parity
	ReadTimeout time.Duration
}

// DefaultConfig returns 9600 8N1 with a 2 s read timeout
func DefaultConfig(name string) Config {
	return Config{
		Name:        name,
		Baud:        9600,
		Parity:      serial.ParityNone,
		ReadTimeout: 2 * time.Second,
	}
}

type bridgeRsp struct {
	command byte
	devAddr byte
	reg     byte
	length  byte
	params  []byte
}

type Transport struct {
	port io.ReadWriteCloser
	addr byte
	mu   sync.Mutex // one request in flight
}

// Open opens the serial port and returns a transport talking to the I2C device at addr
func Open(cfg Config, addr uint8) (*Transport, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Name,
		Baud:        cfg.Baud,
		Size:        8,
		Parity:      cfg.Parity,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port, err: %w", err)
	}
	return newTransport(port, addr), nil
}

func newTransport(port io.ReadWriteCloser, addr uint8) *Transport {
	return &Transport{port: port, addr: addr}
}

func (obj *Transport) WriteThenRead(reg hal.RegAddress, length int) ([]byte, error) {
	if length < 1 || length > 0xFF {
		return nil, fmt.Errorf("invalid read length %d", length)
	}
	req := []byte{cmdReadReg, obj.addr, reg.ToByte(), byte(length)}
	rsp, err := obj.exchange(req)
	if err != nil {
		return nil, err
	}
	if int(rsp.length) != length {
		return nil, fmt.Errorf("bridge returned %d bytes, expected %d", rsp.length, length)
	}
	return rsp.params, nil
}

func (obj *Transport) Write(reg hal.RegAddress, data []byte) error {
	if len(data) > 0xFF {
		return fmt.Errorf("invalid write length %d", len(data))
	}
	req := make([]byte, headerLen, headerLen+len(data))
	req[0] = cmdWriteReg
	req[1] = obj.addr
	req[2] = reg.ToByte()
	req[3] = byte(len(data))
	req = append(req, data...)

	rsp, err := obj.exchange(req)
	if err != nil {
		return err
	}
	if string(rsp.params) != string(data) {
		return fmt.Errorf("bridge echoed % x, expected % x", rsp.params, data)
	}
	return nil
}

func (obj *Transport) Close() error {
	return obj.port.Close()
}

func (obj *Transport) exchange(req []byte) (bridgeRsp, error) {
	obj.mu.Lock()
	defer obj.mu.Unlock()

	_, err := obj.port.Write(req)
	if err != nil {
		return bridgeRsp{}, fmt.Errorf("failed to write bridge request: %w", err)
	}
	rsp, err := obj.readResponse()
	if err != nil {
		return bridgeRsp{}, err
	}
	if rsp.command == cmdNack {
		return bridgeRsp{}, fmt.Errorf("%w: address 0x%02x register 0x%02x", ErrNack, rsp.devAddr, rsp.reg)
	}
	if rsp.command != req[0] || rsp.devAddr != req[1] || rsp.reg != req[2] {
		return bridgeRsp{}, fmt.Errorf("unexpected bridge response % x to request % x", []byte{rsp.command, rsp.devAddr, rsp.reg}, req[:3])
	}
	return rsp, nil
}

func (obj *Transport) readResponse() (bridgeRsp, error) {
	header := make([]byte, headerLen)
	err := readFull(obj.port, header)
	if err != nil {
		return bridgeRsp{}, fmt.Errorf("failed to read bridge response header: %w", err)
	}
	frame := make([]byte, headerLen+int(header[3]))
	copy(frame, header)
	err = readFull(obj.port, frame[headerLen:])
	if err != nil {
		return bridgeRsp{}, fmt.Errorf("failed to read bridge response data: %w", err)
	}
	return parseBridgeResponse(frame)
}

// readFull treats a short read as a timeout, the serial port reports an expired read timeout as io.EOF
func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("bridge response timeout: %w", err)
	}
	return err
}

func parseBridgeResponse(data []byte) (bridgeRsp, error) {
	if len(data) < headerLen {
		return bridgeRsp{}, fmt.Errorf("invalid bridge response")
	}
	length := data[3]
	params := data[headerLen:]
	if int(length) != len(params) {
		return bridgeRsp{}, fmt.Errorf("invalid bridge response, mismatch in length and params count")
	}
	return bridgeRsp{
		command: data[0],
		devAddr: data[1],
		reg:     data[2],
		length:  length,
		params:  params,
	}, nil
}
