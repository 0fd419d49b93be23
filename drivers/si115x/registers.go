// Package si115x register addresses, command codes and parameter table
// locations for the Si1151/Si1152/Si1153 family.
package si115x

const (
	// 7-bit I2C address.
	AddressDefault = 0x53

	// Expected PART_ID for the Si1151.
	PartIDSi1151 = 0x51

	// --- Register addresses ---
	regPartID    = 0x00
	regHostIn0   = 0x0A
	regCommand   = 0x0B
	regIRQEnable = 0x0F
	regResponse1 = 0x10
	regResponse0 = 0x11
	regHostOut0  = 0x13
	regHostOut1  = 0x14
	regHostOut2  = 0x15
	regHostOut3  = 0x16

	// --- RESPONSE0 bitfields ---
	statusCmdCtr = 0x0F
	statusCmdErr = 0x10

	// --- Command codes ---
	cmdResetCmdCtr = 0x00
	cmdResetSW     = 0x01
	cmdForce       = 0x11
	cmdPause       = 0x12
	cmdStart       = 0x13

	// PARAM_QUERY / PARAM_SET are the location OR'd with a 2-bit tag in
	// bits 7:6.
	tagParamQuery = 0b01 << 6
	tagParamSet   = 0b10 << 6

	// Parameter locations are a 6-bit field.
	maxParamLocation = 0x3F
)

// Parameter table locations.
const (
	ParamI2CAddr     = 0x00
	ParamChanList    = 0x01
	ParamADCConfig0  = 0x02
	ParamADCSens0    = 0x03
	ParamADCPost0    = 0x04
	ParamMeasConfig0 = 0x05
	ParamMeasRateH   = 0x1A
	ParamMeasRateL   = 0x1B
	ParamMeasCount0  = 0x1C
	ParamMeasCount1  = 0x1D
	ParamMeasCount2  = 0x1E
	ParamLED1A       = 0x1F
	ParamLED1B       = 0x20
	ParamLED2A       = 0x21
	ParamLED2B       = 0x22
	ParamLED3A       = 0x23
	ParamLED3B       = 0x24
	ParamThreshold0H = 0x25
	ParamThreshold0L = 0x26
	ParamThreshold1H = 0x27
	ParamThreshold1L = 0x28
	ParamBurst       = 0x2B
)

// Each channel owns four consecutive parameters starting at ParamADCConfig0.
const channelParamStride = 4

// Registers names every register the driver touches. The zero value of any
// field is replaced by the Si1151 default, so a partial override is enough
// for a variant with a shifted map.
type Registers struct {
	PartID    byte
	HostIn0   byte
	Command   byte
	IRQEnable byte
	Response0 byte
	Response1 byte
	HostOut   [4]byte
}

// Opcodes names the command codes and status bits. Zero fields take the
// Si1151 defaults, except ResetCmdCtr which is zero on every known part.
type Opcodes struct {
	ResetCmdCtr byte
	ResetSW     byte
	Force       byte
	Pause       byte
	Start       byte
	ParamQuery  byte
	ParamSet    byte
	CounterMask byte
	ErrorFlag   byte
}

// DefaultRegisters returns the Si1151 register map.
func DefaultRegisters() Registers {
	return Registers{
		PartID:    regPartID,
		HostIn0:   regHostIn0,
		Command:   regCommand,
		IRQEnable: regIRQEnable,
		Response0: regResponse0,
		Response1: regResponse1,
		HostOut:   [4]byte{regHostOut0, regHostOut1, regHostOut2, regHostOut3},
	}
}

// DefaultOpcodes returns the Si1151 command set.
func DefaultOpcodes() Opcodes {
	return Opcodes{
		ResetCmdCtr: cmdResetCmdCtr,
		ResetSW:     cmdResetSW,
		Force:       cmdForce,
		Pause:       cmdPause,
		Start:       cmdStart,
		ParamQuery:  tagParamQuery,
		ParamSet:    tagParamSet,
		CounterMask: statusCmdCtr,
		ErrorFlag:   statusCmdErr,
	}
}

func (r Registers) withDefaults() Registers {
	// PART_ID lives at 0x00, so its zero value is already the default.
	d := DefaultRegisters()
	if r.HostIn0 == 0 {
		r.HostIn0 = d.HostIn0
	}
	if r.Command == 0 {
		r.Command = d.Command
	}
	if r.IRQEnable == 0 {
		r.IRQEnable = d.IRQEnable
	}
	if r.Response0 == 0 {
		r.Response0 = d.Response0
	}
	if r.Response1 == 0 {
		r.Response1 = d.Response1
	}
	if r.HostOut == ([4]byte{}) {
		r.HostOut = d.HostOut
	}
	return r
}

func (o Opcodes) withDefaults() Opcodes {
	d := DefaultOpcodes()
	if o.ResetSW == 0 {
		o.ResetSW = d.ResetSW
	}
	if o.Force == 0 {
		o.Force = d.Force
	}
	if o.Pause == 0 {
		o.Pause = d.Pause
	}
	if o.Start == 0 {
		o.Start = d.Start
	}
	if o.ParamQuery == 0 {
		o.ParamQuery = d.ParamQuery
	}
	if o.ParamSet == 0 {
		o.ParamSet = d.ParamSet
	}
	if o.CounterMask == 0 {
		o.CounterMask = d.CounterMask
	}
	if o.ErrorFlag == 0 {
		o.ErrorFlag = d.ErrorFlag
	}
	return o
}
