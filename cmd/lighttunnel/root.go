package main

import (
	"io"
	"os"

	"lighttunnel-go/drivers/si115x"
	"lighttunnel-go/platform"
	"lighttunnel-go/services/config"
	"lighttunnel-go/services/link"
	"lighttunnel-go/services/sensor"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type app struct {
	configPath string
	busName    string
	format     string

	portName      string
	baudRate      int
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	cfg *config.Config
	log *logrus.Logger
	rec sensor.Recorder
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "lighttunnel",
		Short: "Si115x light tunnel controller",
		Long: `lighttunnel drives an Si115x optical sensor over I²C and executes
SET / MSR / RST instructions sent by a host.

Connection modes for serve:
  stdio:     (default)
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication the password is read from the
LIGHTTUNNEL_PASSWORD environment variable, or prompted for.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	pf.StringVar(&a.busName, "bus", "", `I²C bus name, or "sim" for the simulator`)
	pf.StringVarP(&a.format, "format", "f", "", "reply format: text or cbor")
	pf.StringVarP(&a.portName, "port", "p", "", "serial port device")
	pf.IntVarP(&a.baudRate, "baud", "b", 115200, "baud rate (serial only)")
	pf.StringVarP(&a.wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	pf.StringVar(&a.wsUsername, "username", "", "username for HTTP Basic auth")
	pf.BoolVar(&a.wsNoSSLVerify, "no-ssl-verify", false, "skip TLS certificate verification (wss:// only)")

	root.AddCommand(
		a.serveCmd(),
		a.execCmd(),
		a.decodeCmd(),
		a.identCmd(),
		a.runCmd(),
	)
	return root
}

// setup loads the configuration, applies flag overrides and builds the
// logger.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.Load(a.configPath)
	} else {
		a.cfg = config.Default()
	}
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("bus") {
		a.cfg.Sensor.Bus = a.busName
	}
	if flags.Changed("format") {
		a.cfg.Link.Format = a.format
	}
	if flags.Changed("port") {
		a.cfg.Link.Port = a.portName
	}
	if flags.Changed("baud") {
		a.cfg.Link.Baud = a.baudRate
	}
	if flags.Changed("url") {
		a.cfg.Link.URL = a.wsURL
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	a.log = setupLogger(a.cfg.Log, cmd.ErrOrStderr())
	return nil
}

func setupLogger(cfg config.LogConfig, stderr io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(stderr)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if cfg.Output == "file" && cfg.FilePath != "" {
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err == nil {
			log.SetOutput(file)
		} else {
			log.Warnf("open log file: %v, using stderr", err)
		}
	}
	return log
}

// openDevice opens the configured bus and wraps it in a driver.
func (a *app) openDevice() (*si115x.Device, io.Closer, error) {
	bus, closer, err := platform.OpenI2C(a.cfg.Sensor.Bus)
	if err != nil {
		return nil, nil, err
	}
	if a.log.IsLevelEnabled(logrus.TraceLevel) {
		bus = &platform.Traced{Bus: bus, Log: a.log}
	}
	return si115x.New(bus, a.cfg.Sensor.DriverConfig()), closer, nil
}

// openService opens the device and brings it up.
func (a *app) openService() (*sensor.Service, io.Closer, error) {
	dev, closer, err := a.openDevice()
	if err != nil {
		return nil, nil, err
	}
	svc := sensor.New(dev, a.cfg.Targets, sensor.Options{
		Channels:   a.cfg.Sensor.ChannelConfig(),
		MaxSamples: a.cfg.Measure.MaxSamples,
		MinWait:    a.cfg.Measure.MinWait,
		Recorder:   a.rec,
	}, a.log)
	if err := svc.Init(); err != nil {
		closer.Close()
		return nil, nil, err
	}
	return svc, closer, nil
}

func (a *app) linkOptions() link.Options {
	return link.Options{
		Port:     a.cfg.Link.Port,
		Baud:     a.cfg.Link.Baud,
		URL:      a.cfg.Link.URL,
		Username: a.wsUsername,
		SkipTLS:  a.wsNoSSLVerify,
		Binary:   a.cfg.Link.Format == "cbor",
	}
}
