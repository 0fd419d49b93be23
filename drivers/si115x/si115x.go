// Package si115x provides a driver for the Si115x family of optical
// proximity/ambient light sensors.
//
// The part exposes no interrupt or blocking acknowledgement for commands.
// Completion is observed by polling RESPONSE0, whose low nibble is a counter
// the device increments (mod 16) after each command and whose CMD_ERR bit
// flags a failed command:
//
//	res, err := d.SendCommand(code, false) // write COMMAND, poll RESPONSE0
//	err = d.ParamSet(si115x.ParamChanList, 0x03)
//	r := d.ReadOutput()                    // HOSTOUT_0..3 as two channels
//
// A Device is safe for use by multiple goroutines; every full transaction
// (stage, commit and poll) holds the device lock so the counter handshake
// cannot interleave. Several Devices sharing one bus must be serialised by
// the bus implementation.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when
// both w and r are provided.
package si115x

import (
	"sync"
	"time"

	"tinygo.org/x/drivers"
)

const (
	defaultMaxRetries   = 10000
	defaultParamRetries = 8
	defaultResetDelay   = 25 * time.Millisecond
)

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x53 if zero.
	Address uint16
	// MaxRetries bounds the RESPONSE0 polls after a command write.
	// Default 10000.
	MaxRetries int
	// ParamRetries bounds the full stage/commit/poll attempts of a
	// parameter access. Default 8.
	ParamRetries int
	// PollInterval is slept between RESPONSE0 polls. Zero polls back to back.
	PollInterval time.Duration
	// ResetDelay is waited after a software reset before the device is
	// addressed again. Default 25 ms.
	ResetDelay time.Duration

	Registers Registers
	Opcodes   Opcodes
}

// Device wraps an I2C connection to an Si115x device.
type Device struct {
	mu  sync.Mutex
	bus drivers.I2C

	addr uint16
	cfg  Config
	regs Registers
	ops  Opcodes

	// Fixed buffers to avoid per-call heap allocations.
	w [2]byte
	r [1]byte
}

// New creates a new Si115x connection. The I2C bus must already be
// configured. This only creates the Device object; it does not touch the
// device.
func New(bus drivers.I2C, cfg Config) *Device {
	if cfg.Address == 0 {
		cfg.Address = AddressDefault
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.ParamRetries <= 0 {
		cfg.ParamRetries = defaultParamRetries
	}
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = defaultResetDelay
	}
	cfg.Registers = cfg.Registers.withDefaults()
	cfg.Opcodes = cfg.Opcodes.withDefaults()
	return &Device{
		bus:  bus,
		addr: cfg.Address,
		cfg:  cfg,
		regs: cfg.Registers,
		ops:  cfg.Opcodes,
	}
}

// Address returns the 7-bit bus address in use.
func (d *Device) Address() uint16 { return d.addr }

// Config returns the effective configuration after defaults were applied.
func (d *Device) Config() Config { return d.cfg }

// Opcodes returns the command codes in use, defaults filled in.
func (d *Device) Opcodes() Opcodes { return d.ops }

// PartID reads the PART_ID register.
func (d *Device) PartID() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readRegister(d.regs.PartID)
}

// Status reads RESPONSE0 and splits it into the command counter and the
// error flag.
func (d *Device) Status() (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status()
}

// Status is a decoded RESPONSE0 value.
type Status struct {
	Raw     byte
	Counter uint8
	Err     bool
}

func (d *Device) decodeStatus(v byte) Status {
	return Status{
		Raw:     v,
		Counter: v & d.ops.CounterMask,
		Err:     v&d.ops.ErrorFlag != 0,
	}
}

func (d *Device) status() (Status, error) {
	v, err := d.readRegister(d.regs.Response0)
	if err != nil {
		return Status{}, err
	}
	return d.decodeStatus(v), nil
}

func (d *Device) pause() {
	if d.cfg.PollInterval > 0 {
		time.Sleep(d.cfg.PollInterval)
	}
}
