package modbus

import (
	"sync"
	"time"

	mb "github.com/goburrow/modbus"
	"github.com/pkg/errors"
)

// BusReader is the geometry-level read interface the register reader
// depends on. One method per read function code, addressed by slave.
type BusReader interface {
	ReadCoils(slave int, address, quantity uint16) ([]byte, error)
	ReadDiscreteInputs(slave int, address, quantity uint16) ([]byte, error)
	ReadHoldingRegisters(slave int, address, quantity uint16) ([]byte, error)
	ReadInputRegisters(slave int, address, quantity uint16) ([]byte, error)
}

// Channel is what the polling loop needs from the transport: reads plus a
// liveness check for its start guard.
type Channel interface {
	BusReader
	Connected() bool
}

// SerialConfig carries the RTU line parameters.
type SerialConfig struct {
	Port     string
	Baudrate int
	DataBits int
	Parity   string
	StopBits int
	Timeout  time.Duration
}

// Transport owns the single serial connection to the RTU bus. The bus is
// half-duplex, so every read goes through one mutex: callers never overlap
// on the wire, and Close cannot race an in-flight read.
type Transport struct {
	mu      sync.Mutex
	handler *mb.RTUClientHandler
	client  mb.Client
}

func NewTransport() *Transport { return &Transport{} }

// Open establishes the serial handle. Exactly one handle may exist at a
// time; call Close before reopening with new parameters.
func (t *Transport) Open(cfg SerialConfig) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handler != nil {
		return ErrAlreadyOpen
	}
	h := mb.NewRTUClientHandler(cfg.Port)
	if cfg.Baudrate > 0 {
		h.BaudRate = cfg.Baudrate
	}
	if cfg.DataBits > 0 {
		h.DataBits = cfg.DataBits
	}
	if cfg.StopBits > 0 {
		h.StopBits = cfg.StopBits
	}
	if cfg.Parity != "" {
		h.Parity = cfg.Parity
	}
	if cfg.Timeout > 0 {
		h.Timeout = cfg.Timeout
	}
	if err := h.Connect(); err != nil {
		return errors.Wrapf(err, "open serial port %s", cfg.Port)
	}
	t.handler = h
	t.client = mb.NewClient(h)
	return nil
}

// Close releases the serial handle. Safe to call when already closed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handler == nil {
		return nil
	}
	err := t.handler.Close()
	t.handler = nil
	t.client = nil
	return errors.Wrap(err, "close serial port")
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.handler != nil
}

// read serializes bus access and retargets the shared handler at the
// requested slave before issuing the request.
func (t *Transport) read(slave int, fn func(mb.Client) ([]byte, error)) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil, ErrNotConnected
	}
	t.handler.SlaveId = byte(slave)
	return fn(t.client)
}

func (t *Transport) ReadCoils(slave int, address, quantity uint16) ([]byte, error) {
	return t.read(slave, func(c mb.Client) ([]byte, error) { return c.ReadCoils(address, quantity) })
}

func (t *Transport) ReadDiscreteInputs(slave int, address, quantity uint16) ([]byte, error) {
	return t.read(slave, func(c mb.Client) ([]byte, error) { return c.ReadDiscreteInputs(address, quantity) })
}

func (t *Transport) ReadHoldingRegisters(slave int, address, quantity uint16) ([]byte, error) {
	return t.read(slave, func(c mb.Client) ([]byte, error) { return c.ReadHoldingRegisters(address, quantity) })
}

func (t *Transport) ReadInputRegisters(slave int, address, quantity uint16) ([]byte, error) {
	return t.read(slave, func(c mb.Client) ([]byte, error) { return c.ReadInputRegisters(address, quantity) })
}
