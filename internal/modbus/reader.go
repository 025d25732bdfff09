package modbus

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"terminal-telemetry/internal/model"
)

// ReadResult is one successful register read after scaling.
type ReadResult struct {
	Slave     int
	MappingID int64
	Raw       uint16
	Value     float64
	At        time.Time
}

// Reader performs single physical reads and applies the mapping's
// scale/offset transform.
type Reader struct {
	bus BusReader
}

func NewReader(bus BusReader) *Reader { return &Reader{bus: bus} }

// Read dispatches on the mapping's function code (1 coils, 2 discrete
// inputs, 3 holding registers, 4 input registers) and reads a single
// register or bit. Failures are typed per register and never affect the
// rest of the cycle.
func (r *Reader) Read(slave int, m model.RegisterMapping) (ReadResult, error) {
	res := ReadResult{Slave: slave, MappingID: m.MappingID}

	var (
		data []byte
		err  error
	)
	switch m.FunctionCode {
	case 1:
		data, err = r.bus.ReadCoils(slave, m.RegisterAddress, 1)
	case 2:
		data, err = r.bus.ReadDiscreteInputs(slave, m.RegisterAddress, 1)
	case 3:
		data, err = r.bus.ReadHoldingRegisters(slave, m.RegisterAddress, 1)
	case 4:
		data, err = r.bus.ReadInputRegisters(slave, m.RegisterAddress, 1)
	default:
		return res, &ReadError{
			Slave: slave, MappingID: m.MappingID, Kind: KindConfigError,
			cause: errors.Errorf("unsupported function code %d", m.FunctionCode),
		}
	}
	if err != nil {
		return res, &ReadError{Slave: slave, MappingID: m.MappingID, Kind: KindDeviceError, cause: err}
	}

	switch m.FunctionCode {
	case 1, 2:
		if len(data) < 1 {
			return res, &ReadError{
				Slave: slave, MappingID: m.MappingID, Kind: KindDeviceError,
				cause: errors.New("empty bit response"),
			}
		}
		res.Raw = uint16(data[0] & 0x01)
	default:
		if len(data) < 2 {
			return res, &ReadError{
				Slave: slave, MappingID: m.MappingID, Kind: KindDeviceError,
				cause: errors.Errorf("short register response (%d bytes)", len(data)),
			}
		}
		res.Raw = binary.BigEndian.Uint16(data[:2])
	}

	res.Value = scale(res.Raw, m.ScaleFactor, m.Offset)
	res.At = time.Now()
	return res, nil
}

// scale computes raw*scale+offset in decimal so that readings like
// 550 * 0.1 come out as exactly 55.0 rather than a binary approximation.
func scale(raw uint16, factor, offset float64) float64 {
	v := decimal.NewFromInt(int64(raw)).
		Mul(decimal.NewFromFloat(factor)).
		Add(decimal.NewFromFloat(offset))
	return v.InexactFloat64()
}
