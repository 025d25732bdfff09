package modbus

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when the serial channel is not open.
	ErrNotConnected = errors.New("modbus transport not connected")
	// ErrAlreadyOpen is returned by Open when a handle already exists.
	ErrAlreadyOpen = errors.New("modbus transport already open")
	// ErrAlreadyRunning is returned by Start on a running polling loop.
	ErrAlreadyRunning = errors.New("polling loop already running")
)

// ReadErrorKind classifies a single-register read failure.
type ReadErrorKind int

const (
	// KindDeviceError covers bus exceptions, timeouts and malformed
	// responses. Logged and skipped; never aborts the cycle.
	KindDeviceError ReadErrorKind = iota
	// KindConfigError covers unsupported function codes and malformed
	// mappings. Fails that read only, no retry.
	KindConfigError
)

func (k ReadErrorKind) String() string {
	switch k {
	case KindDeviceError:
		return "device error"
	case KindConfigError:
		return "configuration error"
	default:
		return "unknown error"
	}
}

// ReadError is the typed failure produced by a register read.
type ReadError struct {
	Slave     int
	MappingID int64
	Kind      ReadErrorKind
	cause     error
}

func (e *ReadError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("read slave %d mapping %d: %s: %v", e.Slave, e.MappingID, e.Kind, e.cause)
	}
	return fmt.Sprintf("read slave %d mapping %d: %s", e.Slave, e.MappingID, e.Kind)
}

func (e *ReadError) Unwrap() error { return e.cause }

// ReadErrKind extracts the kind from a read failure, defaulting to a
// device error for anything untyped.
func ReadErrKind(err error) ReadErrorKind {
	var re *ReadError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindDeviceError
}
