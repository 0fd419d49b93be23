package si115x

import (
	"errors"
	"fmt"
)

// Errors returned by the driver.
var (
	ErrBusUnavailable  = errors.New("si115x: bus unavailable")
	ErrPendingError    = errors.New("si115x: pre-existing device error")
	ErrDeviceError     = errors.New("si115x: device error")
	ErrTimeout         = errors.New("si115x: timeout")
	ErrParamTimeout    = errors.New("si115x: parameter access timeout")
	ErrInvalidLocation = errors.New("si115x: invalid parameter location")
	ErrUnknownPart     = errors.New("si115x: unexpected part id")
)

// DeviceCode is the error code the device reports in CMD_CTR while CMD_ERR
// is set.
type DeviceCode uint8

const (
	CodeInvalidCommand  DeviceCode = 0x0
	CodeInvalidLocation DeviceCode = 0x1
	CodeADCSaturation   DeviceCode = 0x2
	CodeOutputOverflow  DeviceCode = 0x3
)

func (c DeviceCode) String() string {
	switch c {
	case CodeInvalidCommand:
		return "invalid command"
	case CodeInvalidLocation:
		return "invalid parameter location"
	case CodeADCSaturation:
		return "ADC saturation or accumulation overflow"
	case CodeOutputOverflow:
		return "output buffer overflow"
	default:
		return fmt.Sprintf("code 0x%X", uint8(c))
	}
}

// CommandError is returned when a command did not complete successfully.
// It matches ErrPendingError, ErrDeviceError or ErrTimeout with errors.Is.
type CommandError struct {
	Op     string
	Code   byte
	Result Result
}

func (e *CommandError) Error() string {
	switch e.Result.Outcome {
	case PreexistingError:
		return fmt.Sprintf("si115x: %s 0x%02X: pre-existing device error (%s)", e.Op, e.Code, DeviceCode(e.Result.Counter))
	case InFlightError:
		return fmt.Sprintf("si115x: %s 0x%02X: device error (%s)", e.Op, e.Code, DeviceCode(e.Result.Counter))
	case Timeout:
		return fmt.Sprintf("si115x: %s 0x%02X: no counter change after retry budget", e.Op, e.Code)
	default:
		return fmt.Sprintf("si115x: %s 0x%02X: %s", e.Op, e.Code, e.Result.Outcome)
	}
}

func (e *CommandError) Is(target error) bool {
	switch target {
	case ErrPendingError:
		return e.Result.Outcome == PreexistingError
	case ErrDeviceError:
		return e.Result.Outcome == InFlightError
	case ErrTimeout:
		return e.Result.Outcome == Timeout
	}
	return false
}
