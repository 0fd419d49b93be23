package si115x

// Reading holds one two-channel output sample. IR and Visible are only
// meaningful when OK is true.
type Reading struct {
	OK      bool
	IR      uint16
	Visible uint16
}

// Channels returns the channel values in HOSTOUT order, or nil when the
// reading failed.
func (r Reading) Channels() []uint16 {
	if !r.OK {
		return nil
	}
	return []uint16{r.IR, r.Visible}
}

// ReadOutput reads HOSTOUT_0..3 as two big-endian 16-bit channels. If any of
// the four byte reads fails the whole reading is marked failed and no
// channel data is returned.
func (d *Device) ReadOutput() Reading {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b [4]byte
	for i, reg := range d.regs.HostOut {
		v, err := d.readRegister(reg)
		if err != nil {
			return Reading{}
		}
		b[i] = v
	}
	return Reading{
		OK:      true,
		IR:      uint16(b[0])<<8 | uint16(b[1]),
		Visible: uint16(b[2])<<8 | uint16(b[3]),
	}
}

// Measure forces a single measurement and reads the output registers.
func (d *Device) Measure() (Reading, error) {
	if err := d.Force(); err != nil {
		return Reading{}, err
	}
	r := d.ReadOutput()
	if !r.OK {
		return r, ErrBusUnavailable
	}
	return r, nil
}
