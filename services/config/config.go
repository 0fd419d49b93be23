package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"lighttunnel-go/drivers/si115x"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration file.
type Config struct {
	Sensor  SensorConfig      `yaml:"sensor"`
	Link    LinkConfig        `yaml:"link"`
	Log     LogConfig         `yaml:"log"`
	Measure MeasureConfig     `yaml:"measure"`
	Metrics MetricsConfig     `yaml:"metrics"`
	Targets map[string]Target `yaml:"targets"`
}

// SensorConfig selects the bus and describes the device.
type SensorConfig struct {
	// Bus is "sim" for the simulator or a periph I²C bus name ("" = first).
	Bus          string          `yaml:"bus"`
	Address      uint16          `yaml:"address"`
	MaxRetries   int             `yaml:"max_retries"`
	ParamRetries int             `yaml:"param_retries"`
	PollInterval time.Duration   `yaml:"poll_interval"`
	ResetDelay   time.Duration   `yaml:"reset_delay"`
	PartID       byte            `yaml:"part_id"`
	SkipPart     bool            `yaml:"skip_part_check"`
	Registers    RegisterConfig  `yaml:"registers"`
	Opcodes      OpcodeConfig    `yaml:"opcodes"`
	Channels     []ChannelConfig `yaml:"channels"`
	MeasRate     uint16          `yaml:"meas_rate"`
	MeasCount    [3]byte         `yaml:"meas_count"`
	IRQEnable    byte            `yaml:"irq_enable"`
}

// RegisterConfig overrides register addresses; zero keeps the default.
type RegisterConfig struct {
	PartID    byte    `yaml:"part_id"`
	HostIn0   byte    `yaml:"hostin0"`
	Command   byte    `yaml:"command"`
	IRQEnable byte    `yaml:"irq_enable"`
	Response0 byte    `yaml:"response0"`
	Response1 byte    `yaml:"response1"`
	HostOut   [4]byte `yaml:"hostout"`
}

// OpcodeConfig overrides command codes; zero keeps the default.
type OpcodeConfig struct {
	ResetSW     byte `yaml:"reset_sw"`
	Force       byte `yaml:"force"`
	Pause       byte `yaml:"pause"`
	Start       byte `yaml:"start"`
	ParamQuery  byte `yaml:"param_query"`
	ParamSet    byte `yaml:"param_set"`
	CounterMask byte `yaml:"counter_mask"`
	ErrorFlag   byte `yaml:"error_flag"`
}

type ChannelConfig struct {
	ADCConfig  byte `yaml:"adcconfig"`
	ADCSens    byte `yaml:"adcsens"`
	ADCPost    byte `yaml:"adcpost"`
	MeasConfig byte `yaml:"measconfig"`
}

// LinkConfig describes the host link.
type LinkConfig struct {
	Port   string `yaml:"port"`
	Baud   int    `yaml:"baud"`
	URL    string `yaml:"url"`
	Format string `yaml:"format"` // "text" or "cbor"
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// MeasureConfig bounds MSR instructions.
type MeasureConfig struct {
	MaxSamples int           `yaml:"max_samples"`
	MinWait    time.Duration `yaml:"min_wait"`
}

// MetricsConfig enables the Prometheus endpoint; an empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Target maps an instruction target name to exactly one of a parameter
// location, a raw command code, or a named opcode (see OpNames) resolved
// through the sensor's opcode table. Min/Max clamp SET values before they
// are narrowed to a byte.
type Target struct {
	Param   *byte   `yaml:"param,omitempty"`
	Command *byte   `yaml:"command,omitempty"`
	Op      string  `yaml:"op,omitempty"`
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
}

// OpNames lists the opcodes a target may name.
var OpNames = map[string]bool{"start": true, "pause": true, "force": true}

// Opcode resolves a named opcode against ops.
func Opcode(ops si115x.Opcodes, name string) (byte, bool) {
	switch name {
	case "start":
		return ops.Start, true
	case "pause":
		return ops.Pause, true
	case "force":
		return ops.Force, true
	}
	return 0, false
}

var (
	ErrNoTargets     = errors.New("config: no targets")
	ErrTargetMapping = errors.New("config: target must map to exactly one of param, command or op")
	ErrFormat        = errors.New("config: link format must be text or cbor")
)

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result. A targets
// section replaces the default table as a whole.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	var over Config
	if err := yaml.Unmarshal(data, &over); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if over.Targets != nil {
		cfg.Targets = nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the cross-field rules.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTargets
	}
	for name, t := range c.Targets {
		n := 0
		for _, set := range []bool{t.Param != nil, t.Command != nil, t.Op != ""} {
			if set {
				n++
			}
		}
		if n != 1 {
			return fmt.Errorf("%w: %q", ErrTargetMapping, name)
		}
		if t.Op != "" && !OpNames[t.Op] {
			return fmt.Errorf("config: target %q: unknown op %q", name, t.Op)
		}
		if t.Param != nil && *t.Param > 0x3F {
			return fmt.Errorf("config: target %q: param 0x%02X out of range", name, *t.Param)
		}
		if t.Max < t.Min {
			return fmt.Errorf("config: target %q: max %v < min %v", name, t.Max, t.Min)
		}
	}
	switch c.Link.Format {
	case "", "text", "cbor":
	default:
		return fmt.Errorf("%w: %q", ErrFormat, c.Link.Format)
	}
	if len(c.Sensor.Channels) > 6 {
		return fmt.Errorf("config: %d channels, max 6", len(c.Sensor.Channels))
	}
	return nil
}

// TargetNames returns the set of configured targets.
func (c *Config) TargetNames() map[string]bool {
	out := make(map[string]bool, len(c.Targets))
	for k := range c.Targets {
		out[k] = true
	}
	return out
}

// DriverConfig converts the sensor section into the driver configuration.
func (s SensorConfig) DriverConfig() si115x.Config {
	return si115x.Config{
		Address:      s.Address,
		MaxRetries:   s.MaxRetries,
		ParamRetries: s.ParamRetries,
		PollInterval: s.PollInterval,
		ResetDelay:   s.ResetDelay,
		Registers: si115x.Registers{
			PartID:    s.Registers.PartID,
			HostIn0:   s.Registers.HostIn0,
			Command:   s.Registers.Command,
			IRQEnable: s.Registers.IRQEnable,
			Response0: s.Registers.Response0,
			Response1: s.Registers.Response1,
			HostOut:   s.Registers.HostOut,
		},
		Opcodes: si115x.Opcodes{
			ResetSW:     s.Opcodes.ResetSW,
			Force:       s.Opcodes.Force,
			Pause:       s.Opcodes.Pause,
			Start:       s.Opcodes.Start,
			ParamQuery:  s.Opcodes.ParamQuery,
			ParamSet:    s.Opcodes.ParamSet,
			CounterMask: s.Opcodes.CounterMask,
			ErrorFlag:   s.Opcodes.ErrorFlag,
		},
	}
}

// ChannelConfig converts the sensor section into the bring-up sequence.
func (s SensorConfig) ChannelConfig() si115x.ChannelConfig {
	cc := si115x.ChannelConfig{
		MeasRate:      s.MeasRate,
		MeasCount:     s.MeasCount,
		IRQEnable:     s.IRQEnable,
		SkipPartCheck: s.SkipPart,
		PartID:        s.PartID,
	}
	for _, ch := range s.Channels {
		cc.Channels = append(cc.Channels, si115x.Channel{
			ADCConfig:  ch.ADCConfig,
			ADCSens:    ch.ADCSens,
			ADCPost:    ch.ADCPost,
			MeasConfig: ch.MeasConfig,
		})
	}
	return cc
}
