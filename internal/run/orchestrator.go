// internal/run/orchestrator.go
package run

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/crslab/memtest/internal/monitor"
	"github.com/crslab/memtest/internal/program"
	"github.com/crslab/memtest/internal/sample"
)

// Link is the device contract the orchestrator drives.
type Link interface {
	Exchange(ctx context.Context, req program.Request) ([]byte, error)
}

// Sink accumulates emitted result blocks in emission order.
type Sink interface {
	Emit(block sample.ResultBlock) error
}

// Mode selects the test sequence.
type Mode string

const (
	ModeWriteRead Mode = "write-read"
	ModeWriteOnly Mode = "write-only"
	ModeReadOnly  Mode = "read-only"
	ModeSingle    Mode = "single"
)

// State is the run lifecycle.
type State int32

const (
	Idle State = iota
	Validating
	Failed
	Running
	Completed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Failed:
		return "failed"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Config holds the parameters of one run.
type Config struct {
	Mode      Mode
	Wordline  uint8
	ArraySize int
	Pattern   string

	WritePW     uint8
	PrechargePW uint8
	GroundPW    uint8
	Loop        uint8

	MaxPulseWidth uint8

	// Single is the request for ModeSingle; ignored otherwise.
	Single *program.Request
}

// Progress is a point-in-time snapshot handed to the progress callback.
type Progress struct {
	State         State
	RequestsSent  int
	BlocksEmitted int
	LastErr       error
}

// Orchestrator composes program requests and gate waits into one test
// run. One orchestrator serves exactly one run; the worker calling Run is
// the only goroutine mutating its counters.
type Orchestrator struct {
	id   string
	cfg  Config
	link Link
	sink Sink
	gate *Gate
	log  *logrus.Entry

	// Events must be drained by the attached front end; sends block so
	// that the operator channel never reorders or drops a prompt.
	events chan Event

	state atomic.Int32

	requestsSent  int
	blocksEmitted int
	lastErr       error

	onProgress func(Progress)
}

// New creates an orchestrator for one run.
func New(cfg Config, link Link, sink Sink, log *logrus.Entry) *Orchestrator {
	if cfg.MaxPulseWidth == 0 {
		cfg.MaxPulseWidth = program.DefaultMaxPulseWidth
	}
	id := uuid.New().String()
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{
		id:     id,
		cfg:    cfg,
		link:   link,
		sink:   sink,
		gate:   NewGate(),
		log:    log.WithField("run_id", id),
		events: make(chan Event, 256),
	}
}

// ID is the run identifier used in logs and events.
func (o *Orchestrator) ID() string { return o.id }

// Gate exposes the operator pause gate for this run.
func (o *Orchestrator) Gate() *Gate { return o.gate }

// Events is the operator channel. Closed when Run returns.
func (o *Orchestrator) Events() <-chan Event { return o.events }

// State reports the current lifecycle state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// SetProgressFunc installs a callback invoked after every state change,
// transmission and block emission. Must be set before Run.
func (o *Orchestrator) SetProgressFunc(fn func(Progress)) { o.onProgress = fn }

// Run executes the configured mode. It is the worker entry point; the
// caller runs it on its own goroutine and consumes Events concurrently.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.events)

	o.setState(Validating)
	if err := o.validate(); err != nil {
		o.fail(err)
		return err
	}

	o.setState(Running)
	o.banner()

	var err error
	switch o.cfg.Mode {
	case ModeWriteRead:
		err = o.runWriteRead(ctx)
	case ModeWriteOnly:
		err = o.runWriteOnly(ctx)
	case ModeReadOnly:
		err = o.runReadOnly(ctx)
	case ModeSingle:
		err = o.runSingle(ctx)
	default:
		err = fmt.Errorf("run: unknown mode %q", o.cfg.Mode)
	}

	if err != nil {
		if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
			o.setState(Cancelled)
			o.emit(EventInfo, "Run cancelled")
			o.log.Info("run cancelled")
			return ErrCancelled
		}
		o.fail(err)
		return err
	}

	o.setState(Completed)
	o.emit(EventInfo, "========================")
	o.emit(EventFinished, "MEMORY TEST COMPLETE")
	o.emit(EventInfo, "========================")
	o.log.Info("run completed")
	return nil
}

// ---- validation (no device I/O) ----

func (o *Orchestrator) validate() error {
	if o.cfg.Mode == ModeSingle {
		if o.cfg.Single == nil {
			return fmt.Errorf("run: single mode requires a request")
		}
		return o.cfg.Single.CheckPulseWidths(o.cfg.MaxPulseWidth)
	}

	if len(o.cfg.Pattern) != o.cfg.ArraySize*o.cfg.ArraySize {
		return fmt.Errorf("%w: pattern length %d, array size %d",
			ErrPatternSizeMismatch, len(o.cfg.Pattern), o.cfg.ArraySize)
	}
	if _, err := strconv.ParseUint(o.cfg.Pattern, 2, 64); err != nil {
		return ErrPatternNotBinary
	}

	for _, pw := range []struct {
		name  string
		value uint8
	}{
		{"write", o.cfg.WritePW},
		{"precharge", o.cfg.PrechargePW},
		{"ground", o.cfg.GroundPW},
	} {
		if pw.value > o.cfg.MaxPulseWidth {
			return fmt.Errorf("%w: %s pulse must be less than %d ms",
				program.ErrPulseWidthTooLarge, pw.name, o.cfg.MaxPulseWidth)
		}
	}
	return nil
}

// ---- modes ----

func (o *Orchestrator) runWriteRead(ctx context.Context) error {
	writes := o.buildWriteRequests()

	for a := 0; a < 1<<o.cfg.ArraySize; a++ {
		if err := o.awaitOperator(ctx, "Set WRITE voltage. Press Continue..."); err != nil {
			return err
		}
		for _, w := range writes {
			if _, err := o.exchange(ctx, w); err != nil {
				return err
			}
		}

		if err := o.awaitOperator(ctx, "Set READ voltage. Press Continue..."); err != nil {
			return err
		}
		if err := o.readAndEmit(ctx, o.camReadRequest(a)); err != nil {
			return err
		}
	}
	return nil
}

// runWriteOnly re-sends every write accumulated so far after each pattern
// character, pausing once per character. The quadratic re-send matches the
// behavior the bench has always had; see DESIGN.md before changing it.
func (o *Orchestrator) runWriteOnly(ctx context.Context) error {
	var writes []program.Request

	for i, c := range o.cfg.Pattern {
		req, err := o.writeRequest(i, byte(c))
		if err != nil {
			o.emit(EventError, err.Error())
		} else {
			writes = append(writes, req)
		}

		if err := o.awaitOperator(ctx, "Set WRITE voltage. Press Continue..."); err != nil {
			return err
		}
		for _, w := range writes {
			if _, err := o.exchange(ctx, w); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) runReadOnly(ctx context.Context) error {
	for a := 0; a < 1<<o.cfg.ArraySize; a++ {
		if err := o.awaitOperator(ctx, "Set READ voltage and rewrite pattern. Press Continue..."); err != nil {
			return err
		}
		if err := o.readAndEmit(ctx, o.camReadRequest(a)); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runSingle(ctx context.Context) error {
	return o.readAndEmit(ctx, *o.cfg.Single)
}

// ---- request builders ----

func (o *Orchestrator) writeRequest(index int, c byte) (program.Request, error) {
	var kind program.Kind
	switch c {
	case '0':
		kind = program.WriteZero
	case '1':
		kind = program.WriteOne
	default:
		return program.Request{}, fmt.Errorf("%w: %q at index %d", ErrInvalidPatternChar, c, index)
	}

	req := program.New(kind)
	req.Wordline, req.Bitline = program.Address(index, o.cfg.ArraySize)
	req.ReadWriteTimeMs = o.cfg.WritePW
	req.LoopCount = o.cfg.Loop
	req.GroundTimeMs = o.cfg.GroundPW
	return req, nil
}

func (o *Orchestrator) buildWriteRequests() []program.Request {
	var writes []program.Request
	for i := 0; i < len(o.cfg.Pattern); i++ {
		req, err := o.writeRequest(i, o.cfg.Pattern[i])
		if err != nil {
			o.emit(EventError, err.Error())
			continue
		}
		writes = append(writes, req)
	}
	return writes
}

func (o *Orchestrator) camReadRequest(addressPattern int) program.Request {
	req := program.New(program.CamRead)
	req.Wordline = o.cfg.Wordline
	req.Pattern = uint8(addressPattern)
	req.FormTimeMs = o.cfg.PrechargePW
	return req
}

// ---- execution primitives ----

// exchange transmits one request. Cancellation is checked before every
// transmission; a cancelled run never sends another byte.
func (o *Orchestrator) exchange(ctx context.Context, req program.Request) ([]byte, error) {
	if o.gate.Cancelled() {
		return nil, ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.emit(EventInfo, strings.Join(req.HeaderLines(), "\n"))

	buf, err := o.link.Exchange(ctx, req)
	o.requestsSent++
	monitor.ExchangesTotal.Inc()
	if err != nil {
		monitor.ExchangeErrors.Inc()
		o.lastErr = err
		o.notifyProgress()
		return nil, fmt.Errorf("run: %s: %w", req.Kind, err)
	}

	o.log.WithFields(logrus.Fields{
		"program": req.Kind.String(),
		"bytes":   len(buf),
	}).Debug("exchange complete")
	o.notifyProgress()
	return buf, nil
}

// readAndEmit transmits a request that yields data, parses the response
// and emits a result block. An empty response is reported, not fatal.
func (o *Orchestrator) readAndEmit(ctx context.Context, req program.Request) error {
	buf, err := o.exchange(ctx, req)
	if err != nil {
		return err
	}

	samples, err := sample.Parse(buf, sample.DefaultTimeStepMs, sample.DefaultVoltageRatio)
	if err != nil {
		if errors.Is(err, sample.ErrNoData) {
			o.lastErr = err
			o.emit(EventError, "No data to output")
			o.notifyProgress()
			return nil
		}
		return err
	}

	monitor.SamplesParsed.Add(float64(len(samples)))

	block := sample.ResultBlock{Header: req.HeaderLines(), Samples: samples}
	if err := o.sink.Emit(block); err != nil {
		return fmt.Errorf("run: emit block: %w", err)
	}
	o.blocksEmitted++
	monitor.BlocksEmitted.Inc()
	o.notifyProgress()
	return nil
}

// awaitOperator arms the gate, then publishes the prompt, then blocks.
// Arming first means a Resume fired the instant the prompt appears can
// never be lost.
func (o *Orchestrator) awaitOperator(ctx context.Context, prompt string) error {
	if err := o.gate.arm(); err != nil {
		return err
	}
	o.emit(EventAwaitOperator, prompt)
	monitor.OperatorWaits.Inc()
	o.log.WithField("prompt", prompt).Info("waiting on operator")
	return o.gate.wait(ctx)
}

// ---- bookkeeping ----

func (o *Orchestrator) banner() {
	o.emit(EventInfo, "Running...")
	o.emit(EventInfo, "================================")
	o.emit(EventInfo, fmt.Sprintf("Memory Test Program (%s)", o.cfg.Mode))
	o.emit(EventInfo, "Run ID: "+o.id)
	o.emit(EventInfo, "================================")
}

func (o *Orchestrator) fail(err error) {
	o.lastErr = err
	o.setState(Failed)
	o.emit(EventError, err.Error())
	o.log.WithError(err).Error("run failed")
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	monitor.RunState.Set(float64(s))
	o.notifyProgress()
}

func (o *Orchestrator) notifyProgress() {
	if o.onProgress == nil {
		return
	}
	o.onProgress(Progress{
		State:         o.State(),
		RequestsSent:  o.requestsSent,
		BlocksEmitted: o.blocksEmitted,
		LastErr:       o.lastErr,
	})
}

func (o *Orchestrator) emit(kind EventKind, text string) {
	o.events <- Event{Kind: kind, Text: text, At: time.Now()}
}
