package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lighttunnel-go/drivers/si115x"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	dc := cfg.Sensor.DriverConfig()
	if dc.Address != si115x.AddressDefault {
		t.Fatalf("address = 0x%02X", dc.Address)
	}
	if cc := cfg.Sensor.ChannelConfig(); len(cc.Channels) != 2 {
		t.Fatalf("channels = %d, want 2", len(cc.Channels))
	}
}

func TestParseOverlay(t *testing.T) {
	src := []byte(`
sensor:
  bus: "1"
  address: 0x5A
  max_retries: 200
  poll_interval: 2ms
  registers:
    command: 0x0C
  meas_count: [1, 2, 3]
log:
  level: debug
link:
  format: cbor
`)
	cfg, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Sensor.Bus != "1" || cfg.Sensor.Address != 0x5A || cfg.Sensor.MaxRetries != 200 {
		t.Fatalf("sensor = %+v", cfg.Sensor)
	}
	if cfg.Sensor.PollInterval != 2*time.Millisecond {
		t.Fatalf("poll_interval = %v", cfg.Sensor.PollInterval)
	}
	if cfg.Sensor.MeasCount != [3]byte{1, 2, 3} {
		t.Fatalf("meas_count = %v", cfg.Sensor.MeasCount)
	}
	// Untouched sections keep their defaults.
	if cfg.Sensor.ParamRetries != 8 || cfg.Log.Format != "text" || len(cfg.Targets) == 0 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	dc := cfg.Sensor.DriverConfig()
	if dc.Registers.Command != 0x0C {
		t.Fatalf("command register = 0x%02X", dc.Registers.Command)
	}
}

func TestParseTargetsReplaceDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
targets:
  red:
    param: 0x1F
    max: 255
  go:
    command: 0x13
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(cfg.Targets) != 2 {
		t.Fatalf("targets = %v", cfg.TargetNames())
	}
	if r := cfg.Targets["red"]; r.Param == nil || *r.Param != 0x1F || r.Max != 255 {
		t.Fatalf("red = %+v", r)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := map[string]string{
		"both":       "targets:\n  x:\n    param: 1\n    command: 2\n",
		"neither":    "targets:\n  x:\n    max: 3\n",
		"op and cmd": "targets:\n  x:\n    op: start\n    command: 2\n",
		"unknown op": "targets:\n  x:\n    op: launch\n",
		"range":      "targets:\n  x:\n    param: 0x40\n",
		"min max":    "targets:\n  x:\n    param: 1\n    min: 5\n    max: 1\n",
		"format":     "link:\n  format: xml\n",
		"bad yaml":   "sensor: [",
		"array size": "sensor:\n  meas_count: [1, 2]\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(src)); err == nil {
				t.Fatalf("Parse(%q) succeeded", src)
			}
		})
	}
	if _, err := Parse([]byte("targets:\n  x:\n    max: 3\n")); !errors.Is(err, ErrTargetMapping) {
		t.Fatalf("err = %v, want ErrTargetMapping", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lighttunnel.yaml")
	if err := os.WriteFile(path, []byte("log:\n  format: json\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Format != "json" {
		t.Fatalf("log format = %q", cfg.Log.Format)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load of missing file succeeded")
	}
}

func TestOpcodeTargetsFollowOverrides(t *testing.T) {
	cfg, err := Parse([]byte("sensor:\n  opcodes:\n    start: 0x23\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	start := cfg.Targets["start"]
	if start.Op != "start" || start.Command != nil {
		t.Fatalf("start target = %+v", start)
	}
	ops := cfg.Sensor.DriverConfig().Opcodes
	if code, ok := Opcode(ops, start.Op); !ok || code != 0x23 {
		t.Fatalf("start resolves to 0x%02X, %v", code, ok)
	}
	if _, ok := Opcode(si115x.DefaultOpcodes(), "launch"); ok {
		t.Fatal("unknown op resolved")
	}
}
