package si115x

import "time"

// Outcome classifies how a command ended.
type Outcome uint8

const (
	Success Outcome = iota
	PreexistingError
	InFlightError
	Timeout
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case PreexistingError:
		return "pre-existing error"
	case InFlightError:
		return "in-flight error"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// TimeoutCode is the legacy signed code for an exhausted retry budget. It is
// outside the range of every counter-derived code (±1..±16).
const TimeoutCode = 17

// Result is the outcome of one command. Counter is the CMD_CTR field seen
// when the outcome was decided; for the error outcomes it carries the
// device's error code.
type Result struct {
	Outcome Outcome
	Counter uint8
	Command byte
}

// OK reports whether the command completed successfully.
func (r Result) OK() bool { return r.Outcome == Success }

// Code returns the legacy signed encoding: 0 on success, -(ctr+1) for a
// pre-existing error, ctr+1 for an in-flight error and TimeoutCode when the
// retry budget ran out.
func (r Result) Code() int {
	switch r.Outcome {
	case Success:
		return 0
	case PreexistingError:
		return -(int(r.Counter) + 1)
	case InFlightError:
		return int(r.Counter) + 1
	default:
		return TimeoutCode
	}
}

// Err returns nil on success and a *CommandError otherwise.
func (r Result) Err() error {
	return r.errFor("command")
}

func (r Result) errFor(op string) error {
	if r.Outcome == Success {
		return nil
	}
	return &CommandError{Op: op, Code: r.Command, Result: r}
}

// counterAdvanced reports whether cur is ahead of prev on the counter ring
// described by mask (a run of low bits, 0x0F for the 4-bit CMD_CTR). Only one
// command is outstanding at a time, so a forward distance in the lower half
// of the ring is an advance and anything else (including no change) is not.
// With mask 0x0F this makes 15 -> 0 an advance and 3 -> 1 a stale read.
func counterAdvanced(prev, cur, mask uint8) bool {
	d := (cur - prev) & mask
	return d != 0 && d <= mask/2
}

// SendCommand writes code to the COMMAND register and waits for the device
// to acknowledge it through RESPONSE0.
//
// If CMD_ERR is already set and force is false the command is not written
// and a PreexistingError result is returned. The returned error is non-nil
// only for bus failures on the initial status read or the command write;
// device-level failures are reported through the Result.
func (d *Device) SendCommand(code byte, force bool) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sendCommand(code, force)
}

func (d *Device) sendCommand(code byte, force bool) (Result, error) {
	st, err := d.status()
	if err != nil {
		return Result{Command: code}, err
	}
	if st.Err && !force {
		return Result{Outcome: PreexistingError, Counter: st.Counter, Command: code}, nil
	}
	if err := d.writeRegister(d.regs.Command, code); err != nil {
		return Result{Command: code}, err
	}
	res := d.await(st.Counter)
	res.Command = code
	return res, nil
}

// await polls RESPONSE0 up to MaxRetries times for a counter advance past
// before or the error flag. A failed status read uses up one attempt.
func (d *Device) await(before uint8) Result {
	for i := 0; i < d.cfg.MaxRetries; i++ {
		if i > 0 {
			d.pause()
		}
		st, err := d.status()
		if err != nil {
			continue
		}
		if st.Err {
			return Result{Outcome: InFlightError, Counter: st.Counter}
		}
		if counterAdvanced(before, st.Counter, d.ops.CounterMask) {
			return Result{Outcome: Success, Counter: st.Counter}
		}
	}
	return Result{Outcome: Timeout, Counter: before}
}

func (d *Device) run(op string, code byte) error {
	res, err := d.SendCommand(code, false)
	if err != nil {
		return err
	}
	return res.errFor(op)
}

// Start begins autonomous measurements.
func (d *Device) Start() error { return d.run("start", d.ops.Start) }

// Pause stops autonomous measurements.
func (d *Device) Pause() error { return d.run("pause", d.ops.Pause) }

// Force triggers a single forced measurement of the enabled channels.
func (d *Device) Force() error { return d.run("force", d.ops.Force) }

// ResetCommandCounter clears CMD_CTR and CMD_ERR. It is the only way to
// recover from a latched device error. Completion is a zeroed counter with
// the error flag clear, since the counter cannot advance.
func (d *Device) ResetCommandCounter() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resetCommandCounter()
}

func (d *Device) resetCommandCounter() error {
	code := d.ops.ResetCmdCtr
	// A status that is already clean cannot show the reset landing, so the
	// first poll after the write does not count as completion.
	skip := 0
	if st, err := d.status(); err == nil && !st.Err && st.Counter == 0 {
		skip = 1
	}
	if err := d.writeRegister(d.regs.Command, code); err != nil {
		return err
	}
	for i := 0; i < d.cfg.MaxRetries; i++ {
		if i > 0 {
			d.pause()
		}
		st, err := d.status()
		if err != nil {
			continue
		}
		if i >= skip && !st.Err && st.Counter == 0 {
			return nil
		}
	}
	return Result{Outcome: Timeout, Command: code}.errFor("reset_cmd_ctr")
}

// SoftReset issues RESET_SW, waits ResetDelay and clears the command
// counter. The parameter table returns to its power-on defaults.
func (d *Device) SoftReset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writeRegister(d.regs.Command, d.ops.ResetSW); err != nil {
		return err
	}
	time.Sleep(d.cfg.ResetDelay)
	return d.resetCommandCounter()
}
