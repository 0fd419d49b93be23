package errcode

import (
	"errors"

	"lighttunnel-go/drivers/si115x"
)

// Code is a stable, host-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK                     Code = "ok"
	BusUnavailable         Code = "bus_unavailable"
	PreexistingDeviceError Code = "device_error_preexisting"
	DeviceError            Code = "device_error"
	Timeout                Code = "timeout"
	MalformedInstruction   Code = "malformed_instruction"
	UnknownTarget          Code = "unknown_target"
	InvalidParams          Code = "invalid_params"
	Canceled               Code = "canceled"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to the driver mapping.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	return MapDriverErr(err)
}

// MapDriverErr maps si115x driver errors to a Code.
func MapDriverErr(err error) Code {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, si115x.ErrPendingError):
		return PreexistingDeviceError
	case errors.Is(err, si115x.ErrDeviceError):
		return DeviceError
	case errors.Is(err, si115x.ErrTimeout), errors.Is(err, si115x.ErrParamTimeout):
		return Timeout
	case errors.Is(err, si115x.ErrBusUnavailable):
		return BusUnavailable
	case errors.Is(err, si115x.ErrInvalidLocation):
		return InvalidParams
	default:
		return Error
	}
}
