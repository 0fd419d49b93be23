// Package sensor executes decoded host instructions against an Si115x and
// reports the outcome through an Encoder.
package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"lighttunnel-go/drivers/si115x"
	"lighttunnel-go/errcode"
	"lighttunnel-go/services/config"
	"lighttunnel-go/services/instr"
	"lighttunnel-go/x/mathx"

	"github.com/sirupsen/logrus"
)

// ErrReply wraps failures to write a reply. Serve stops on it.
var ErrReply = errors.New("sensor: reply failed")

// Recorder receives execution metrics.
type Recorder interface {
	Instruction(kind string, code errcode.Code, d time.Duration)
	Observation(ok bool)
}

// Options tune the service. Zero values pick defaults.
type Options struct {
	// Channels is reapplied after every RST.
	Channels si115x.ChannelConfig
	// MaxSamples caps the sample count of one MSR (default MaxSeq).
	MaxSamples int
	// MinWait is the floor for the wait between MSR samples.
	MinWait time.Duration
	// Recorder is optional.
	Recorder Recorder
}

// Service maps instructions onto driver calls.
type Service struct {
	mu      sync.Mutex
	dev     *si115x.Device
	targets map[string]config.Target
	opts    Options
	log     logrus.FieldLogger
	seq     sequence
	timer   *time.Timer
}

func New(dev *si115x.Device, targets map[string]config.Target, opts Options, log logrus.FieldLogger) *Service {
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = MaxSeq
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		drainTimer(t)
	}
	return &Service{dev: dev, targets: targets, opts: opts, log: log, timer: t}
}

// Device returns the driven sensor.
func (s *Service) Device() *si115x.Device { return s.dev }

// Init brings the sensor up with the configured channels.
func (s *Service) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dev.Configure(s.opts.Channels); err != nil {
		return wrap("init", err)
	}
	s.log.WithField("addr", fmt.Sprintf("0x%02X", s.dev.Address())).Info("sensor configured")
	return nil
}

// Execute runs one instruction and writes its replies. A failed instruction
// is reported to the host as ERR and returned as an *errcode.E; failures to
// write replies are returned wrapping ErrReply.
func (s *Service) Execute(ctx context.Context, in instr.Instruction, enc Encoder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	err := s.execute(ctx, in, enc)
	if s.opts.Recorder != nil {
		s.opts.Recorder.Instruction(in.Kind.String(), errcode.Of(err), time.Since(start))
	}
	return err
}

func (s *Service) execute(ctx context.Context, in instr.Instruction, enc Encoder) error {
	log := s.log.WithField("instr", in.String())
	log.Debug("execute")

	var err error
	switch in.Kind {
	case instr.Set:
		err = s.set(in)
		if err == nil {
			return reply(enc.OK(instr.Set.String()))
		}
	case instr.Measure:
		return s.measure(ctx, in, enc, log)
	case instr.Reset:
		err = s.reset()
		if err == nil {
			return reply(enc.OK(instr.Reset.String()))
		}
	default:
		err = &errcode.E{C: errcode.MalformedInstruction, Op: "decode", Msg: in.Reason}
		if rerr := enc.Err(errcode.MalformedInstruction, in.Raw); rerr != nil {
			return reply(rerr)
		}
		log.WithField("reason", in.Reason).Warn("malformed instruction")
		return err
	}
	return s.fail(enc, log, err, in.String())
}

func (s *Service) fail(enc Encoder, log logrus.FieldLogger, err error, detail string) error {
	code := errcode.Of(err)
	log.WithError(err).WithField("code", code).Warn("instruction failed")
	if rerr := enc.Err(code, detail); rerr != nil {
		return reply(rerr)
	}
	return err
}

func (s *Service) set(in instr.Instruction) error {
	t, ok := s.targets[in.Target]
	if !ok {
		return &errcode.E{C: errcode.UnknownTarget, Op: "set", Msg: in.Target}
	}
	switch {
	case t.Op != "":
		code, ok := config.Opcode(s.dev.Opcodes(), t.Op)
		if !ok {
			return &errcode.E{C: errcode.UnknownTarget, Op: "set", Msg: in.Target + ": op " + t.Op}
		}
		return s.command(code)
	case t.Command != nil:
		return s.command(*t.Command)
	case t.Param == nil:
		return &errcode.E{C: errcode.UnknownTarget, Op: "set", Msg: in.Target + ": no mapping"}
	}
	return wrap("set", s.dev.ParamSet(*t.Param, mathx.ByteOf(in.P1, t.Min, t.Max)))
}

func (s *Service) command(code byte) error {
	res, err := s.dev.SendCommand(code, false)
	if err == nil {
		err = res.Err()
	}
	return wrap("set", err)
}

func (s *Service) reset() error {
	if err := s.dev.SoftReset(); err != nil {
		return wrap("reset", err)
	}
	return wrap("reset", s.dev.Configure(s.opts.Channels))
}

// measure takes max(1, count) forced samples, wait milliseconds apart.
func (s *Service) measure(ctx context.Context, in instr.Instruction, enc Encoder, log logrus.FieldLogger) error {
	label, count, waitMS := measureArgs(in)
	n := int(mathx.Clamp(count, 1, float64(s.opts.MaxSamples)))
	wait := time.Duration(waitMS * float64(time.Millisecond))
	if wait < s.opts.MinWait {
		wait = s.opts.MinWait
	}
	if err := enc.OK(instr.Measure.String()); err != nil {
		return reply(err)
	}
	for i := 0; i < n; i++ {
		if i > 0 && wait > 0 {
			resetTimer(s.timer, wait)
			select {
			case <-ctx.Done():
				if !s.timer.Stop() {
					drainTimer(s.timer)
				}
				return s.fail(enc, log, &errcode.E{C: errcode.Canceled, Op: "measure", Err: ctx.Err()}, in.String())
			case <-s.timer.C:
			}
		} else if ctx.Err() != nil {
			return s.fail(enc, log, &errcode.E{C: errcode.Canceled, Op: "measure", Err: ctx.Err()}, in.String())
		}
		if err := s.dev.Force(); err != nil {
			return s.fail(enc, log, wrap("measure", err), in.String())
		}
		r := s.dev.ReadOutput()
		if !r.OK {
			log.Warn("output read failed")
		}
		if s.opts.Recorder != nil {
			s.opts.Recorder.Observation(r.OK)
		}
		if err := enc.Observation(newObservation(s.seq.next(), label, r)); err != nil {
			return reply(err)
		}
	}
	return reply(enc.OK("DONE"))
}

// measureArgs returns the label, sample count and wait for an MSR. The
// labelled form is MSR,<label>,<n>,<wait>. The board form MSR,<n>,<wait>
// puts the count where the label would be; it gets an empty label.
func measureArgs(in instr.Instruction) (label string, count, waitMS float64) {
	if v, err := strconv.ParseFloat(in.Target, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return "", v, in.P1
	}
	return in.Target, in.P1, in.P2
}

// Serve announces READY, then executes one instruction per line of r until
// EOF, a reply failure or cancellation. Blank lines and # comments are
// skipped. Cancellation returns at once even while a read is blocked; the
// reading goroutine exits when r next returns, so callers close r.
func (s *Service) Serve(ctx context.Context, r io.Reader, enc Encoder) error {
	if err := enc.OK("READY"); err != nil {
		return reply(err)
	}

	done := make(chan struct{})
	defer close(done)
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case text, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("sensor: read instructions: %w", err)
					}
				default:
				}
				return ctx.Err()
			}
			line := strings.TrimSpace(text)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if err := s.Execute(ctx, instr.Decode(line), enc); errors.Is(err, ErrReply) {
				return err
			}
		}
	}
}

// Run executes instructions in order and stops at the first failure.
func (s *Service) Run(ctx context.Context, prog []instr.Instruction, enc Encoder) error {
	for _, in := range prog {
		if err := s.Execute(ctx, in, enc); err != nil {
			return err
		}
	}
	return nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &errcode.E{C: errcode.Of(err), Op: op, Msg: err.Error(), Err: err}
}

func reply(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrReply, err)
}
