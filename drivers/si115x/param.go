package si115x

import "fmt"

// ParamSet writes val to the parameter table at loc: stage the value in
// HOSTIN_0, write PARAM_SET|loc to COMMAND and wait for the counter to move.
// The whole sequence is retried up to ParamRetries times; ErrParamTimeout is
// returned when no attempt is acknowledged.
func (d *Device) ParamSet(loc, val byte) error {
	if loc > maxParamLocation {
		return fmt.Errorf("%w: 0x%02X", ErrInvalidLocation, loc)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.paramAccess("param_set", d.ops.ParamSet|loc, &val)
	return err
}

// ParamQuery reads the parameter at loc. The value is returned through
// RESPONSE1 once the PARAM_QUERY command is acknowledged.
func (d *Device) ParamQuery(loc byte) (byte, error) {
	if loc > maxParamLocation {
		return 0, fmt.Errorf("%w: 0x%02X", ErrInvalidLocation, loc)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.paramAccess("param_query", d.ops.ParamQuery|loc, nil); err != nil {
		return 0, err
	}
	return d.readRegister(d.regs.Response1)
}

// paramAccess runs the snapshot/stage/commit/await sequence. A device error
// flag ends the access at once; bus failures and unacknowledged commits
// restart the sequence from the snapshot.
func (d *Device) paramAccess(op string, code byte, stage *byte) (Result, error) {
	var last error
	for attempt := 0; attempt < d.cfg.ParamRetries; attempt++ {
		if attempt > 0 {
			d.pause()
		}
		st, err := d.status()
		if err != nil {
			last = err
			continue
		}
		if st.Err {
			res := Result{Outcome: PreexistingError, Counter: st.Counter, Command: code}
			return res, res.errFor(op)
		}
		if stage != nil {
			if err := d.writeRegister(d.regs.HostIn0, *stage); err != nil {
				last = err
				continue
			}
		}
		if err := d.writeRegister(d.regs.Command, code); err != nil {
			last = err
			continue
		}
		res := d.await(st.Counter)
		res.Command = code
		switch res.Outcome {
		case Success:
			return res, nil
		case InFlightError:
			return res, res.errFor(op)
		}
		last = res.errFor(op)
	}
	return Result{Outcome: Timeout, Command: code},
		fmt.Errorf("%w: %s 0x%02X after %d attempts: %w", ErrParamTimeout, op, code, d.cfg.ParamRetries, last)
}
