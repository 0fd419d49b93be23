// Package si115xsim simulates an Si115x at register level behind the
// tinygo.org/x/drivers.I2C interface. It models the RESPONSE0 command
// counter, the parameter table and the HOSTOUT registers, and exposes knobs
// to inject the failures the driver has to survive.
package si115xsim

import (
	"errors"
	"sync"

	"tinygo.org/x/drivers"
)

const (
	Address = 0x53
	PartID  = 0x51

	regPartID    = 0x00
	regHostIn0   = 0x0A
	regCommand   = 0x0B
	regResponse1 = 0x10
	regResponse0 = 0x11
	regHostOut0  = 0x13

	cmdResetCmdCtr = 0x00
	cmdResetSW     = 0x01
	cmdForce       = 0x11
	cmdPause       = 0x12
	cmdStart       = 0x13

	tagMask  = 0xC0
	tagQuery = 0x40
	tagSet   = 0x80

	errFlag = 0x10

	// Highest implemented parameter location.
	lastParam = 0x2D

	codeInvalidCommand  = 0x0
	codeInvalidLocation = 0x1
)

var (
	// ErrNACK is returned for transactions addressed to another peer.
	ErrNACK = errors.New("si115xsim: address not acknowledged")
	// ErrReadFailed is returned for reads of a register in FailReads.
	ErrReadFailed = errors.New("si115xsim: read failed")
)

var _ drivers.I2C = (*Device)(nil)

// Device is a simulated sensor. Exported fields may be changed between
// transactions; use Lock/Unlock when another goroutine is driving the bus.
type Device struct {
	mu sync.Mutex

	Addr uint16

	// IR and Visible are latched into HOSTOUT_0..3 on FORCE.
	IR      uint16
	Visible uint16

	// StuckCounter makes the device ignore every command write.
	StuckCounter bool
	// DropCommands ignores the next n command writes.
	DropCommands int
	// CommitDelay hides a counter change for that many RESPONSE0 reads.
	CommitDelay int
	// FailCommand sets CMD_ERR with the mapped error code when the command
	// byte is written.
	FailCommand map[byte]byte
	// FailReads makes reads of these registers fail at the bus level.
	FailReads map[byte]bool

	// StatusReads counts RESPONSE0 reads.
	StatusReads int
	// Commands records every byte written to COMMAND.
	Commands []byte

	regs    [0x40]byte
	params  [0x40]byte
	counter uint8
	errSet  bool
	// RESPONSE0 as last published, and reads left before the live value
	// becomes visible.
	shown   byte
	delayed int
}

// New returns a simulator at the default address with a clean status.
func New() *Device {
	d := &Device{Addr: Address}
	d.regs[regPartID] = PartID
	return d
}

func (d *Device) Lock()   { d.mu.Lock() }
func (d *Device) Unlock() { d.mu.Unlock() }

// SetStatus forces RESPONSE0 to the given counter and error flag.
func (d *Device) SetStatus(counter uint8, err bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counter = counter & 0x0F
	d.errSet = err
	d.shown = d.response0()
	d.delayed = 0
}

// Param returns the current value of a parameter table entry.
func (d *Device) Param(loc byte) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.params[loc&0x3F]
}

// Register returns the current value of a register.
func (d *Device) Register(reg byte) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[reg&0x3F]
}

// Tx implements drivers.I2C.
func (d *Device) Tx(addr uint16, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if addr != d.Addr {
		return ErrNACK
	}
	switch {
	case len(w) == 1 && len(r) > 0:
		return d.read(w[0], r)
	case len(w) >= 2:
		d.write(w[0], w[1:])
		return nil
	}
	return nil
}

func (d *Device) read(reg byte, r []byte) error {
	for i := range r {
		a := reg + byte(i)
		if d.FailReads[a] {
			return ErrReadFailed
		}
		if a == regResponse0 {
			d.StatusReads++
			if d.delayed > 0 {
				d.delayed--
			} else {
				d.shown = d.response0()
			}
			r[i] = d.shown
			continue
		}
		r[i] = d.regs[a&0x3F]
	}
	return nil
}

func (d *Device) write(reg byte, data []byte) {
	for i, v := range data {
		a := reg + byte(i)
		if a == regCommand {
			d.command(v)
			continue
		}
		d.regs[a&0x3F] = v
	}
}

func (d *Device) command(code byte) {
	d.Commands = append(d.Commands, code)
	d.regs[regCommand] = code
	if d.StuckCounter {
		return
	}
	if d.DropCommands > 0 {
		d.DropCommands--
		return
	}
	if ec, ok := d.FailCommand[code]; ok {
		d.fail(ec)
		return
	}

	switch code & tagMask {
	case tagSet:
		loc := code &^ tagMask
		if loc > lastParam {
			d.fail(codeInvalidLocation)
			return
		}
		d.params[loc] = d.regs[regHostIn0]
		d.regs[regResponse1] = d.regs[regHostIn0]
		d.advance()
		return
	case tagQuery:
		loc := code &^ tagMask
		if loc > lastParam {
			d.fail(codeInvalidLocation)
			return
		}
		d.regs[regResponse1] = d.params[loc]
		d.advance()
		return
	}

	switch code {
	case cmdResetCmdCtr:
		d.counter = 0
		d.errSet = false
		d.publish()
	case cmdResetSW:
		d.params = [0x40]byte{}
		d.counter = 0
		d.errSet = false
		d.publish()
	case cmdForce:
		d.regs[regHostOut0] = byte(d.IR >> 8)
		d.regs[regHostOut0+1] = byte(d.IR)
		d.regs[regHostOut0+2] = byte(d.Visible >> 8)
		d.regs[regHostOut0+3] = byte(d.Visible)
		d.advance()
	case cmdStart, cmdPause:
		d.advance()
	default:
		d.fail(codeInvalidCommand)
	}
}

func (d *Device) advance() {
	d.counter = (d.counter + 1) & 0x0F
	d.publish()
}

func (d *Device) fail(code byte) {
	d.counter = code & 0x0F
	d.errSet = true
	d.publish()
}

func (d *Device) publish() {
	d.delayed = d.CommitDelay
	if d.delayed == 0 {
		d.shown = d.response0()
	}
}

func (d *Device) response0() byte {
	v := d.counter
	if d.errSet {
		v |= errFlag
	}
	return v
}
