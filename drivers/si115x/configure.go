package si115x

import "fmt"

// Channel configures one of the six measurement channels. See the datasheet
// parameter descriptions for ADCCONFIGx, ADCSENSx, ADCPOSTx and MEASCONFIGx.
type Channel struct {
	ADCConfig  byte
	ADCSens    byte
	ADCPost    byte
	MeasConfig byte
}

// ChannelConfig is the bring-up configuration applied by Configure.
type ChannelConfig struct {
	// Channels are enabled in order; index i is channel i. At most six.
	Channels []Channel
	// MeasRate is the autonomous measurement period in 800 µs units.
	MeasRate uint16
	// MeasCount holds MEASCOUNT0..2.
	MeasCount [3]byte
	// IRQEnable is written to the IRQ_ENABLE register as is.
	IRQEnable byte
	// SkipPartCheck disables the PART_ID check.
	SkipPartCheck bool
	// PartID overrides the expected part id. Default PartIDSi1151.
	PartID byte
}

// DefaultChannelConfig mirrors the light tunnel bring-up: two channels
// (large IR photodiode and large white photodiode), 16-bit output, forced
// mode.
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		Channels: []Channel{
			{ADCConfig: 0x0D, ADCSens: 0x00, ADCPost: 0x00, MeasConfig: 0x00},
			{ADCConfig: 0x0B, ADCSens: 0x00, ADCPost: 0x00, MeasConfig: 0x00},
		},
		MeasRate:  1,
		MeasCount: [3]byte{5, 10, 10},
	}
}

// Configure checks the part, clears the command counter and programs the
// parameter table.
func (d *Device) Configure(cc ChannelConfig) error {
	if len(cc.Channels) > 6 {
		return fmt.Errorf("si115x: %d channels requested, max 6", len(cc.Channels))
	}
	if !cc.SkipPartCheck {
		want := cc.PartID
		if want == 0 {
			want = PartIDSi1151
		}
		got, err := d.PartID()
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("%w: 0x%02X (want 0x%02X)", ErrUnknownPart, got, want)
		}
	}
	if err := d.ResetCommandCounter(); err != nil {
		return err
	}

	var chanList byte
	for i, ch := range cc.Channels {
		chanList |= 1 << i
		base := byte(ParamADCConfig0 + i*channelParamStride)
		for j, v := range [...]byte{ch.ADCConfig, ch.ADCSens, ch.ADCPost, ch.MeasConfig} {
			if err := d.ParamSet(base+byte(j), v); err != nil {
				return err
			}
		}
	}
	if err := d.ParamSet(ParamChanList, chanList); err != nil {
		return err
	}
	for _, p := range [...]struct{ loc, val byte }{
		{ParamMeasRateH, byte(cc.MeasRate >> 8)},
		{ParamMeasRateL, byte(cc.MeasRate)},
		{ParamMeasCount0, cc.MeasCount[0]},
		{ParamMeasCount1, cc.MeasCount[1]},
		{ParamMeasCount2, cc.MeasCount[2]},
	} {
		if err := d.ParamSet(p.loc, p.val); err != nil {
			return err
		}
	}
	return d.WriteRegister(d.regs.IRQEnable, cc.IRQEnable)
}
