package sensor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"lighttunnel-go/drivers/si115x"
	"lighttunnel-go/drivers/si115x/si115xsim"
	"lighttunnel-go/errcode"
	"lighttunnel-go/services/config"
	"lighttunnel-go/services/instr"

	"github.com/fxamacker/cbor/v2"
)

func newTestService(t *testing.T) (*Service, *si115xsim.Device) {
	t.Helper()
	sim := si115xsim.New()
	dev := si115x.New(sim, si115x.Config{MaxRetries: 20, ParamRetries: 3, ResetDelay: 1})
	svc := New(dev, config.Default().Targets, Options{Channels: si115x.DefaultChannelConfig()}, nil)
	if err := svc.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	return svc, sim
}

func exec(t *testing.T, svc *Service, line string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := svc.Execute(context.Background(), instr.Decode(line), NewTextEncoder(&out))
	if errors.Is(err, ErrReply) {
		t.Fatalf("reply failed: %v", err)
	}
	return out.String(), err
}

func TestExecuteSetParam(t *testing.T) {
	svc, sim := newTestService(t)

	out, err := exec(t, svc, "SET,meas_count0,300")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "OK,SET\n" {
		t.Fatalf("reply = %q", out)
	}
	if got := sim.Param(si115x.ParamMeasCount0); got != 255 {
		t.Fatalf("meas_count0 = %d, want clamped 255", got)
	}

	if _, err := exec(t, svc, "SET chan_list 1.6"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := sim.Param(si115x.ParamChanList); got != 2 {
		t.Fatalf("chan_list = %d, want rounded 2", got)
	}
}

func TestExecuteSetCommandTarget(t *testing.T) {
	svc, sim := newTestService(t)
	before := len(sim.Commands)

	if out, err := exec(t, svc, "SET,start"); err != nil || out != "OK,SET\n" {
		t.Fatalf("reply = %q err = %v", out, err)
	}
	if got := sim.Commands[before:]; len(got) != 1 || got[0] != 0x13 {
		t.Fatalf("commands = %v, want [0x13]", got)
	}
}

func TestExecuteSetFollowsOpcodeOverride(t *testing.T) {
	sim := si115xsim.New()
	dev := si115x.New(sim, si115x.Config{MaxRetries: 20, ParamRetries: 3, ResetDelay: 1,
		Opcodes: si115x.Opcodes{Start: 0x12}})
	svc := New(dev, config.Default().Targets, Options{}, nil)

	var out bytes.Buffer
	if err := svc.Execute(context.Background(), instr.Decode("SET,start"), NewTextEncoder(&out)); err != nil {
		t.Fatalf("execute: %v (%q)", err, out.String())
	}
	if n := len(sim.Commands); n != 1 || sim.Commands[0] != 0x12 {
		t.Fatalf("commands = %v, want the overridden start code 0x12", sim.Commands)
	}
}

func TestExecuteSetRawCommandTarget(t *testing.T) {
	sim := si115xsim.New()
	dev := si115x.New(sim, si115x.Config{MaxRetries: 20, ParamRetries: 3, ResetDelay: 1})
	code := byte(0x11)
	svc := New(dev, map[string]config.Target{"force": {Command: &code}}, Options{}, nil)

	if out, err := exec(t, svc, "SET,force"); err != nil || out != "OK,SET\n" {
		t.Fatalf("reply = %q err = %v", out, err)
	}
	if n := len(sim.Commands); n != 1 || sim.Commands[0] != 0x11 {
		t.Fatalf("commands = %v", sim.Commands)
	}
}

func TestExecuteSetUnknownTarget(t *testing.T) {
	svc, _ := newTestService(t)

	out, err := exec(t, svc, "SET,nope,1")
	if errcode.Of(err) != errcode.UnknownTarget {
		t.Fatalf("err = %v, want unknown_target", err)
	}
	if out != "ERR,unknown_target,SET,nope,1\n" {
		t.Fatalf("reply = %q", out)
	}
}

func TestExecuteDeviceErrors(t *testing.T) {
	t.Run("preexisting", func(t *testing.T) {
		svc, sim := newTestService(t)
		sim.SetStatus(1, true)
		out, err := exec(t, svc, "SET,burst,1")
		if errcode.Of(err) != errcode.PreexistingDeviceError {
			t.Fatalf("err = %v", err)
		}
		if !strings.HasPrefix(out, "ERR,device_error_preexisting,") {
			t.Fatalf("reply = %q", out)
		}
	})
	t.Run("in flight", func(t *testing.T) {
		svc, sim := newTestService(t)
		sim.FailCommand = map[byte]byte{0x13: 0}
		out, err := exec(t, svc, "SET,start")
		if errcode.Of(err) != errcode.DeviceError || !strings.HasPrefix(out, "ERR,device_error,") {
			t.Fatalf("reply = %q err = %v", out, err)
		}
	})
	t.Run("timeout", func(t *testing.T) {
		svc, sim := newTestService(t)
		sim.StuckCounter = true
		out, err := exec(t, svc, "SET,burst,1")
		if errcode.Of(err) != errcode.Timeout || !strings.HasPrefix(out, "ERR,timeout,") {
			t.Fatalf("reply = %q err = %v", out, err)
		}
	})
	t.Run("bus", func(t *testing.T) {
		svc, sim := newTestService(t)
		sim.Addr = 0x10
		out, err := exec(t, svc, "SET,pause")
		if errcode.Of(err) != errcode.BusUnavailable || !strings.HasPrefix(out, "ERR,bus_unavailable,") {
			t.Fatalf("reply = %q err = %v", out, err)
		}
	})
}

func TestExecuteMeasure(t *testing.T) {
	svc, sim := newTestService(t)
	sim.IR = 0x1234
	sim.Visible = 200

	out, err := exec(t, svc, "MSR,lux,3")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	want := "OK,MSR\n" +
		"OBS,0,lux,4660,200\n" +
		"OBS,1,lux,4660,200\n" +
		"OBS,2,lux,4660,200\n" +
		"OK,DONE\n"
	if out != want {
		t.Fatalf("replies:\n%s\nwant:\n%s", out, want)
	}

	// Board form: the count comes first, then the wait.
	out, err = exec(t, svc, "MSR,100,10")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := strings.Count(out, "OBS,"); got != 100 {
		t.Fatalf("board form observations = %d, want 100", got)
	}
	if !strings.Contains(out, "OBS,3,,4660,200\n") || !strings.HasSuffix(out, "OBS,102,,4660,200\nOK,DONE\n") {
		t.Fatalf("board form replies = %q", out)
	}

	// Zero samples still measure once; the sequence continues.
	out, _ = exec(t, svc, "MSR,lux")
	if !strings.Contains(out, "OBS,103,lux,") || strings.Count(out, "OBS,") != 1 {
		t.Fatalf("replies = %q", out)
	}
}

func TestMeasureArgs(t *testing.T) {
	cases := []struct {
		in          string
		label       string
		count, wait float64
	}{
		{"MSR,100,10", "", 100, 10},
		{"MSR 5", "", 5, 0},
		{"MSR,lux,3,20", "lux", 3, 20},
		{"MSR,lux", "lux", 0, 0},
		{"MSR,NaN,3", "NaN", 3, 0},
	}
	for _, c := range cases {
		label, count, wait := measureArgs(instr.Decode(c.in))
		if label != c.label || count != c.count || wait != c.wait {
			t.Errorf("measureArgs(%q) = %q,%v,%v, want %q,%v,%v", c.in, label, count, wait, c.label, c.count, c.wait)
		}
	}
}

func TestExecuteMeasureReadFailure(t *testing.T) {
	svc, sim := newTestService(t)
	sim.FailReads = map[byte]bool{0x15: true}

	out, err := exec(t, svc, "MSR,lux,1")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "OK,MSR\nOBS,0,lux,FAIL\nOK,DONE\n" {
		t.Fatalf("replies = %q", out)
	}
}

func TestExecuteMeasureCanceled(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := svc.Execute(ctx, instr.Decode("MSR,lux,5,1000"), NewTextEncoder(&out))
	if errcode.Of(err) != errcode.Canceled {
		t.Fatalf("err = %v, want canceled", err)
	}
	if !strings.HasPrefix(out.String(), "OK,MSR\nERR,canceled,") {
		t.Fatalf("replies = %q", out.String())
	}
}

func TestSequenceWraps(t *testing.T) {
	svc, _ := newTestService(t)
	svc.seq.n = MaxSeq - 1

	out, _ := exec(t, svc, "MSR,lux,3")
	want := "OK,MSR\n" +
		"OBS,99999,lux,0,0\n" +
		"OBS,100000,lux,0,0\n" +
		"OBS,0,lux,0,0\n" +
		"OK,DONE\n"
	if out != want {
		t.Fatalf("replies:\n%s\nwant:\n%s", out, want)
	}
}

func TestExecuteReset(t *testing.T) {
	svc, sim := newTestService(t)
	if _, err := exec(t, svc, "SET,meas_count0,42"); err != nil {
		t.Fatal(err)
	}
	sim.SetStatus(4, true)

	out, err := exec(t, svc, "RST")
	if err != nil || out != "OK,RST\n" {
		t.Fatalf("reply = %q err = %v", out, err)
	}
	if got := sim.Param(si115x.ParamMeasCount0); got != 5 {
		t.Fatalf("meas_count0 = %d, want reconfigured 5", got)
	}
}

func TestExecuteMalformed(t *testing.T) {
	svc, _ := newTestService(t)

	out, err := exec(t, svc, "FOO,bar")
	if errcode.Of(err) != errcode.MalformedInstruction {
		t.Fatalf("err = %v", err)
	}
	if out != "ERR,malformed_instruction,FOO,bar\n" {
		t.Fatalf("reply = %q", out)
	}
}

func TestServe(t *testing.T) {
	svc, sim := newTestService(t)
	in := strings.NewReader("SET,chan_list,3\n\n# comment\nBAD\nRST\n")

	var out bytes.Buffer
	if err := svc.Serve(context.Background(), in, NewTextEncoder(&out)); err != nil {
		t.Fatalf("serve: %v", err)
	}
	want := "OK,READY\nOK,SET\nERR,malformed_instruction,BAD\nOK,RST\n"
	if out.String() != want {
		t.Fatalf("replies:\n%s\nwant:\n%s", out.String(), want)
	}
	if got := sim.Param(si115x.ParamChanList); got != 3 {
		t.Fatalf("chan_list = %d, want 3 after reconfigure", got)
	}
}

// lockedBuffer lets the test read replies while Serve is still writing.
type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func TestServeReturnsOnCancelWhileReadBlocked(t *testing.T) {
	svc, _ := newTestService(t)
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	out := &lockedBuffer{}
	errc := make(chan error, 1)
	go func() { errc <- svc.Serve(ctx, pr, NewTextEncoder(out)) }()

	if _, err := pw.Write([]byte("RST\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for out.String() != "OK,READY\nOK,RST\n" {
		if time.Now().After(deadline) {
			t.Fatalf("replies = %q", out.String())
		}
		time.Sleep(time.Millisecond)
	}

	// Nothing more is written, so the reader is blocked in Read.
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestServeStopsOnReplyFailure(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Serve(context.Background(), strings.NewReader("RST\n"), NewTextEncoder(failWriter{}))
	if !errors.Is(err, ErrReply) {
		t.Fatalf("err = %v, want ErrReply", err)
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	svc, sim := newTestService(t)
	prog := []instr.Instruction{
		instr.Decode("SET,burst,1"),
		instr.Decode("SET,missing,1"),
		instr.Decode("SET,burst,2"),
	}
	var out bytes.Buffer
	if err := svc.Run(context.Background(), prog, NewTextEncoder(&out)); errcode.Of(err) != errcode.UnknownTarget {
		t.Fatalf("err = %v", err)
	}
	if got := sim.Param(si115x.ParamBurst); got != 1 {
		t.Fatalf("burst = %d, want 1", got)
	}
}

func TestCBOREncoder(t *testing.T) {
	svc, sim := newTestService(t)
	sim.IR = 7
	sim.Visible = 9

	var out bytes.Buffer
	if err := svc.Execute(context.Background(), instr.Decode("MSR,lux,1"), NewEncoder("cbor", &out)); err != nil {
		t.Fatalf("execute: %v", err)
	}

	dec := cbor.NewDecoder(&out)
	var frames []Frame
	for {
		var f Frame
		err := dec.Decode(&f)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		frames = append(frames, f)
	}
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}
	if frames[0].Type != FrameOK || frames[0].Body[KeyVerb] != "MSR" {
		t.Fatalf("first frame = %+v", frames[0])
	}
	obs := frames[1]
	if obs.Type != FrameObservation || obs.Body[KeyIR] != uint64(7) || obs.Body[KeyVisible] != uint64(9) || obs.Body[KeyValid] != true {
		t.Fatalf("observation frame = %+v", obs)
	}
	if frames[2].Body[KeyVerb] != "DONE" {
		t.Fatalf("last frame = %+v", frames[2])
	}
}

type recorder struct {
	codes []errcode.Code
	obs   []bool
}

func (r *recorder) Instruction(kind string, code errcode.Code, _ time.Duration) {
	r.codes = append(r.codes, errcode.Code(kind+"/"+string(code)))
}

func (r *recorder) Observation(ok bool) { r.obs = append(r.obs, ok) }

func TestRecorder(t *testing.T) {
	svc, sim := newTestService(t)
	rec := &recorder{}
	svc.opts.Recorder = rec

	exec(t, svc, "MSR,lux,2")
	sim.FailReads = map[byte]bool{0x13: true}
	exec(t, svc, "MSR,lux,1")
	exec(t, svc, "SET,nope,1")

	want := []errcode.Code{"MSR/ok", "MSR/ok", "SET/unknown_target"}
	if len(rec.codes) != len(want) {
		t.Fatalf("codes = %v", rec.codes)
	}
	for i := range want {
		if rec.codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v", rec.codes, want)
		}
	}
	if len(rec.obs) != 3 || !rec.obs[0] || !rec.obs[1] || rec.obs[2] {
		t.Fatalf("observations = %v", rec.obs)
	}
}
