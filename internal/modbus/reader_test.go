package modbus

import (
	"encoding/binary"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"terminal-telemetry/internal/model"
)

// fakeBus is an in-memory BusReader keyed by (slave, function code,
// address). It records the order of reads for the poller tests.
type fakeBus struct {
	mu     sync.Mutex
	values map[busKey][]byte
	fail   map[busKey]error
	calls  []busKey
	open   bool
}

type busKey struct {
	slave int
	fc    int
	addr  uint16
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		values: make(map[busKey][]byte),
		fail:   make(map[busKey]error),
		open:   true,
	}
}

func (f *fakeBus) setBit(slave, fc int, addr uint16, on bool) {
	b := byte(0)
	if on {
		b = 1
	}
	f.values[busKey{slave, fc, addr}] = []byte{b}
}

func (f *fakeBus) setRegister(slave, fc int, addr uint16, raw uint16) {
	data := make([]byte, 2)
	binary.BigEndian.PutUint16(data, raw)
	f.mu.Lock()
	f.values[busKey{slave, fc, addr}] = data
	f.mu.Unlock()
}

func (f *fakeBus) failWith(slave, fc int, addr uint16, err error) {
	f.mu.Lock()
	f.fail[busKey{slave, fc, addr}] = err
	f.mu.Unlock()
}

func (f *fakeBus) read(k busKey) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, k)
	if err := f.fail[k]; err != nil {
		return nil, err
	}
	if data, ok := f.values[k]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("no value at slave %d fc %d address %d", k.slave, k.fc, k.addr)
}

func (f *fakeBus) recordedCalls() []busKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]busKey, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeBus) ReadCoils(slave int, address, quantity uint16) ([]byte, error) {
	return f.read(busKey{slave, 1, address})
}

func (f *fakeBus) ReadDiscreteInputs(slave int, address, quantity uint16) ([]byte, error) {
	return f.read(busKey{slave, 2, address})
}

func (f *fakeBus) ReadHoldingRegisters(slave int, address, quantity uint16) ([]byte, error) {
	return f.read(busKey{slave, 3, address})
}

func (f *fakeBus) ReadInputRegisters(slave int, address, quantity uint16) ([]byte, error) {
	return f.read(busKey{slave, 4, address})
}

func (f *fakeBus) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func holdingMapping(id int64, slave int, addr uint16, scale, offset float64) model.RegisterMapping {
	return model.RegisterMapping{
		MappingID:       id,
		SlaveAddress:    slave,
		RegisterAddress: addr,
		RegisterType:    model.RegisterHolding,
		FunctionCode:    3,
		EntityKind:      model.KindStorageTank,
		EntityID:        1,
		Column:          "CurrentVolume",
		ScaleFactor:     scale,
		Offset:          offset,
	}
}

func TestReaderScalesExactly(t *testing.T) {
	bus := newFakeBus()
	bus.setRegister(3, 3, 100, 550)
	r := NewReader(bus)

	res, err := r.Read(3, holdingMapping(10, 3, 100, 0.1, 0))
	require.NoError(t, err)
	assert.Equal(t, uint16(550), res.Raw)
	// 550 * 0.1 must be exactly 55.0, not a binary float approximation.
	assert.Equal(t, 55.0, res.Value)
	assert.Equal(t, 3, res.Slave)
	assert.Equal(t, int64(10), res.MappingID)
	assert.False(t, res.At.IsZero())

	cache := NewValueCache()
	cache.Put(res)
	entry, ok := cache.Get(3, 10)
	require.True(t, ok)
	assert.Equal(t, 55.0, entry.Value)
}

func TestReaderAppliesOffset(t *testing.T) {
	bus := newFakeBus()
	bus.setRegister(1, 3, 0, 100)
	r := NewReader(bus)

	res, err := r.Read(1, holdingMapping(1, 1, 0, 0.5, -3))
	require.NoError(t, err)
	assert.Equal(t, 47.0, res.Value)
}

func TestReaderFunctionCodeDispatch(t *testing.T) {
	bus := newFakeBus()
	bus.setBit(2, 1, 4, true)
	bus.setBit(2, 2, 5, false)
	bus.setRegister(2, 3, 6, 1234)
	bus.setRegister(2, 4, 7, 4321)
	r := NewReader(bus)

	cases := []struct {
		name string
		m    model.RegisterMapping
		want uint16
	}{
		{"coil", model.RegisterMapping{MappingID: 1, RegisterAddress: 4, FunctionCode: 1, ScaleFactor: 1}, 1},
		{"discrete input", model.RegisterMapping{MappingID: 2, RegisterAddress: 5, FunctionCode: 2, ScaleFactor: 1}, 0},
		{"holding register", model.RegisterMapping{MappingID: 3, RegisterAddress: 6, FunctionCode: 3, ScaleFactor: 1}, 1234},
		{"input register", model.RegisterMapping{MappingID: 4, RegisterAddress: 7, FunctionCode: 4, ScaleFactor: 1}, 4321},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := r.Read(2, tc.m)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Raw)
			assert.Equal(t, float64(tc.want), res.Value)
		})
	}
}

func TestReaderUnsupportedFunctionCode(t *testing.T) {
	r := NewReader(newFakeBus())

	_, err := r.Read(1, model.RegisterMapping{MappingID: 9, FunctionCode: 6})
	require.Error(t, err)
	assert.Equal(t, KindConfigError, ReadErrKind(err))
}

func TestReaderDeviceFailure(t *testing.T) {
	bus := newFakeBus()
	bus.failWith(4, 3, 20, fmt.Errorf("modbus: exception '11' (gateway target device failed to respond)"))
	r := NewReader(bus)

	_, err := r.Read(4, holdingMapping(5, 4, 20, 1, 0))
	require.Error(t, err)
	assert.Equal(t, KindDeviceError, ReadErrKind(err))

	var re *ReadError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 4, re.Slave)
	assert.Equal(t, int64(5), re.MappingID)
}

func TestReaderShortResponse(t *testing.T) {
	bus := newFakeBus()
	bus.values[busKey{1, 3, 0}] = []byte{0x01}
	r := NewReader(bus)

	_, err := r.Read(1, holdingMapping(1, 1, 0, 1, 0))
	require.Error(t, err)
	assert.Equal(t, KindDeviceError, ReadErrKind(err))
}
