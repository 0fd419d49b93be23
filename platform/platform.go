// Package platform opens the I²C bus the sensor lives on.
package platform

import (
	"fmt"
	"io"
	"sync"

	"lighttunnel-go/drivers/si115x/si115xsim"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
)

// SimBus selects the in-process simulator.
const SimBus = "sim"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

var (
	hostOnce sync.Once
	hostErr  error
)

// OpenI2C returns the bus called name and a closer for it. SimBus yields a
// fresh simulator; any other name ("" for the first bus) is opened through
// periph.io.
func OpenI2C(name string) (drivers.I2C, io.Closer, error) {
	if name == SimBus {
		return si115xsim.New(), nopCloser{}, nil
	}
	hostOnce.Do(func() { _, hostErr = host.Init() })
	if hostErr != nil {
		return nil, nil, fmt.Errorf("platform: host init: %w", hostErr)
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("platform: open i2c %q: %w", name, err)
	}
	return b, b, nil
}

// Traced wraps a bus, remembers the last transaction and logs every
// transaction at trace level.
type Traced struct {
	Bus drivers.I2C
	Log logrus.FieldLogger

	mu     sync.Mutex
	LastTx struct {
		Addr uint16
		W    []byte
		R    []byte
		Err  error
	}
}

var _ drivers.I2C = (*Traced)(nil)

func (t *Traced) Tx(addr uint16, w, r []byte) error {
	err := t.Bus.Tx(addr, w, r)

	t.mu.Lock()
	t.LastTx.Addr = addr
	t.LastTx.W = append(t.LastTx.W[:0], w...)
	t.LastTx.R = append(t.LastTx.R[:0], r...)
	t.LastTx.Err = err
	t.mu.Unlock()

	if t.Log != nil {
		t.Log.WithFields(logrus.Fields{
			"addr": fmt.Sprintf("0x%02X", addr),
			"w":    fmt.Sprintf("% X", w),
			"r":    fmt.Sprintf("% X", r),
		}).WithError(err).Trace("i2c tx")
	}
	return err
}
