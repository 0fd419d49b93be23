package si115x

import "fmt"

// Raw bus primitives. Callers hold d.mu.

// write sends data to the device in a single transaction.
func (d *Device) write(data []byte) error {
	if err := d.bus.Tx(d.addr, data, nil); err != nil {
		return fmt.Errorf("%w: write 0x%02X: %v", ErrBusUnavailable, data[0], err)
	}
	return nil
}

// writeRegister writes one byte to reg.
func (d *Device) writeRegister(reg, val byte) error {
	d.w[0] = reg
	d.w[1] = val
	return d.write(d.w[:2])
}

// readRegister selects reg and reads one byte back. Any bus failure is
// reported as ErrBusUnavailable; the returned byte is only data when err is
// nil.
func (d *Device) readRegister(reg byte) (byte, error) {
	d.w[0] = reg
	if err := d.bus.Tx(d.addr, d.w[:1], d.r[:1]); err != nil {
		return 0, fmt.Errorf("%w: read 0x%02X: %v", ErrBusUnavailable, reg, err)
	}
	return d.r[0], nil
}

// WriteRegister writes val to a register directly, bypassing the command
// protocol. Used for registers such as IRQ_ENABLE.
func (d *Device) WriteRegister(reg, val byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeRegister(reg, val)
}

// ReadRegister reads a single register directly.
func (d *Device) ReadRegister(reg byte) (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readRegister(reg)
}
