package platform

import (
	"errors"
	"testing"

	"lighttunnel-go/drivers/si115x"
	"lighttunnel-go/drivers/si115x/si115xsim"
)

func TestOpenSim(t *testing.T) {
	bus, c, err := OpenI2C(SimBus)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()
	if _, ok := bus.(*si115xsim.Device); !ok {
		t.Fatalf("bus = %T, want simulator", bus)
	}
	id, err := si115x.New(bus, si115x.Config{}).PartID()
	if err != nil || id != si115xsim.PartID {
		t.Fatalf("part id = 0x%02X err = %v", id, err)
	}
}

func TestTracedRecordsLastTx(t *testing.T) {
	sim := si115xsim.New()
	tr := &Traced{Bus: sim}
	dev := si115x.New(tr, si115x.Config{})

	if _, err := dev.PartID(); err != nil {
		t.Fatalf("part id: %v", err)
	}
	if tr.LastTx.Addr != si115xsim.Address || len(tr.LastTx.W) != 1 || tr.LastTx.W[0] != 0x00 {
		t.Fatalf("last tx = %+v", tr.LastTx)
	}
	if len(tr.LastTx.R) != 1 || tr.LastTx.R[0] != si115xsim.PartID {
		t.Fatalf("last read = % X", tr.LastTx.R)
	}

	sim.Addr = 0x10
	if _, err := dev.PartID(); err == nil {
		t.Fatal("NACK not reported")
	}
	if !errors.Is(tr.LastTx.Err, si115xsim.ErrNACK) {
		t.Fatalf("recorded err = %v", tr.LastTx.Err)
	}
}
