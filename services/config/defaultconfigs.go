package config

import (
	"time"

	"lighttunnel-go/drivers/si115x"
)

func p(b byte) *byte { return &b }

// Default returns the light tunnel configuration: an Si1151 at 0x53 with
// the large IR and white photodiodes enabled, text replies on stdio.
func Default() *Config {
	return &Config{
		Sensor: SensorConfig{
			Bus:          "sim",
			Address:      si115x.AddressDefault,
			MaxRetries:   10000,
			ParamRetries: 8,
			ResetDelay:   25 * time.Millisecond,
			Channels: []ChannelConfig{
				{ADCConfig: 0x0D},
				{ADCConfig: 0x0B},
			},
			MeasRate:  1,
			MeasCount: [3]byte{5, 10, 10},
		},
		Link: LinkConfig{
			Baud:   115200,
			Format: "text",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Measure: MeasureConfig{
			MaxSamples: 100000,
		},
		Targets: map[string]Target{
			"chan_list":   {Param: p(si115x.ParamChanList), Max: 0x3F},
			"meas_rate_h": {Param: p(si115x.ParamMeasRateH), Max: 0xFF},
			"meas_rate_l": {Param: p(si115x.ParamMeasRateL), Max: 0xFF},
			"meas_count0": {Param: p(si115x.ParamMeasCount0), Max: 0xFF},
			"meas_count1": {Param: p(si115x.ParamMeasCount1), Max: 0xFF},
			"meas_count2": {Param: p(si115x.ParamMeasCount2), Max: 0xFF},
			"adcconfig0":  {Param: p(si115x.ParamADCConfig0), Max: 0x7F},
			"adcsens0":    {Param: p(si115x.ParamADCSens0), Max: 0xFF},
			"adcpost0":    {Param: p(si115x.ParamADCPost0), Max: 0x7F},
			"threshold0":  {Param: p(si115x.ParamThreshold0L), Max: 0xFF},
			"burst":       {Param: p(si115x.ParamBurst), Max: 0xFF},
			"start":       {Op: "start"},
			"pause":       {Op: "pause"},
		},
	}
}
