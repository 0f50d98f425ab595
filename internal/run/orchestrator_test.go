// internal/run/orchestrator_test.go
package run

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crslab/memtest/internal/program"
	"github.com/crslab/memtest/internal/sample"
)

// ---- fakes ----

type fakeLink struct {
	mu   sync.Mutex
	reqs []program.Request
	resp func(program.Request) ([]byte, error)
}

func (f *fakeLink) Exchange(ctx context.Context, req program.Request) ([]byte, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.resp != nil {
		return f.resp(req)
	}
	return []byte("echo1\necho2\necho3\n0,100\n1,200\n"), nil
}

func (f *fakeLink) requests() []program.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]program.Request, len(f.reqs))
	copy(out, f.reqs)
	return out
}

type fakeSink struct {
	mu     sync.Mutex
	blocks []sample.ResultBlock
}

func (f *fakeSink) Emit(b sample.ResultBlock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks = append(f.blocks, b)
	return nil
}

// drive runs the orchestrator with an auto-resuming operator and returns
// every event plus the run error.
func drive(t *testing.T, o *Orchestrator) ([]Event, error) {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	var events []Event
	for ev := range o.Events() {
		events = append(events, ev)
		if ev.Kind == EventAwaitOperator {
			o.Gate().Resume()
		}
	}
	return events, <-done
}

func filterKind(events []Event, kind EventKind) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func baseConfig() Config {
	return Config{
		Mode:          ModeWriteRead,
		Wordline:      0,
		ArraySize:     2,
		Pattern:       "0110",
		WritePW:       100,
		PrechargePW:   200,
		GroundPW:      100,
		Loop:          1,
		MaxPulseWidth: 250,
	}
}

// ---- validation ----

func TestValidate_PatternSizeMismatch(t *testing.T) {
	for size := 1; size <= 3; size++ {
		cfg := baseConfig()
		cfg.ArraySize = size
		cfg.Pattern = strings.Repeat("0", size*size+1)

		o := New(cfg, &fakeLink{}, &fakeSink{}, nil)
		_, err := drive(t, o)
		assert.True(t, errors.Is(err, ErrPatternSizeMismatch), "size=%d", size)
		assert.Equal(t, Failed, o.State())
	}
}

func TestValidate_PatternNotBinary(t *testing.T) {
	cfg := baseConfig()
	cfg.Pattern = "01a0"

	o := New(cfg, &fakeLink{}, &fakeSink{}, nil)
	_, err := drive(t, o)
	assert.True(t, errors.Is(err, ErrPatternNotBinary))
}

func TestValidate_PulseWidthTooLarge(t *testing.T) {
	cfg := baseConfig()
	cfg.PrechargePW = 251

	o := New(cfg, &fakeLink{}, &fakeSink{}, nil)
	_, err := drive(t, o)
	assert.True(t, errors.Is(err, program.ErrPulseWidthTooLarge))
}

func TestValidate_BoundaryPulseWidth(t *testing.T) {
	cfg := baseConfig()
	cfg.PrechargePW = 250

	o := New(cfg, &fakeLink{}, &fakeSink{}, nil)
	_, err := drive(t, o)
	assert.NoError(t, err)
}

// ---- write-then-read ----

func TestWriteRead_Sequencing(t *testing.T) {
	link := &fakeLink{}
	out := &fakeSink{}

	o := New(baseConfig(), link, out, nil)
	events, err := drive(t, o)
	require.NoError(t, err)
	assert.Equal(t, Completed, o.State())

	reqs := link.requests()
	// 4 sweep addresses x (4 writes + 1 cam read).
	require.Len(t, reqs, 20)

	var camPatterns []uint8
	var camCount, writeCount int
	for _, r := range reqs {
		if r.Kind == program.CamRead {
			camCount++
			camPatterns = append(camPatterns, r.Pattern)
		} else {
			writeCount++
		}
	}
	assert.Equal(t, 4, camCount)
	assert.Equal(t, 16, writeCount)
	assert.Equal(t, []uint8{0, 1, 2, 3}, camPatterns)

	// First sweep iteration: the four writes in pattern order.
	wantWrites := []struct {
		kind program.Kind
		wl   uint8
		bl   uint8
	}{
		{program.WriteZero, 0, 0},
		{program.WriteOne, 0, 1},
		{program.WriteOne, 1, 0},
		{program.WriteZero, 1, 1},
	}
	for i, want := range wantWrites {
		assert.Equal(t, want.kind, reqs[i].Kind, "write %d", i)
		assert.Equal(t, want.wl, reqs[i].Wordline, "write %d", i)
		assert.Equal(t, want.bl, reqs[i].Bitline, "write %d", i)
		assert.Equal(t, uint8(100), reqs[i].ReadWriteTimeMs, "write %d", i)
		assert.Equal(t, uint8(100), reqs[i].GroundTimeMs, "write %d", i)
	}

	// Cam reads carry the precharge width and the configured wordline.
	assert.Equal(t, uint8(200), reqs[4].FormTimeMs)
	assert.Equal(t, uint8(0), reqs[4].Wordline)

	// Two operator pauses per sweep address, write prompt first.
	waits := filterKind(events, EventAwaitOperator)
	require.Len(t, waits, 8)
	assert.Contains(t, waits[0].Text, "WRITE voltage")
	assert.Contains(t, waits[1].Text, "READ voltage")

	// One block per cam read, in sweep order.
	assert.Len(t, out.blocks, 4)

	finished := filterKind(events, EventFinished)
	require.Len(t, finished, 1)
	assert.Equal(t, "MEMORY TEST COMPLETE", finished[0].Text)
}

func TestWriteRead_NoDataReported(t *testing.T) {
	link := &fakeLink{resp: func(req program.Request) ([]byte, error) {
		return nil, nil // controller returned nothing
	}}
	out := &fakeSink{}

	cfg := baseConfig()
	cfg.ArraySize = 1
	cfg.Pattern = "0"

	o := New(cfg, link, out, nil)
	events, err := drive(t, o)
	require.NoError(t, err)

	// Runs to completion with no blocks; every empty read is reported.
	assert.Empty(t, out.blocks)
	errs := filterKind(events, EventError)
	require.Len(t, errs, 2)
	assert.Equal(t, "No data to output", errs[0].Text)
	assert.Len(t, filterKind(events, EventFinished), 1)
}

func TestWriteRead_ConnectionErrorIsFatal(t *testing.T) {
	boom := errors.New("device: port unavailable")
	link := &fakeLink{resp: func(req program.Request) ([]byte, error) {
		return nil, boom
	}}

	cfg := baseConfig()
	cfg.ArraySize = 1
	cfg.Pattern = "0"

	o := New(cfg, link, &fakeSink{}, nil)
	events, err := drive(t, o)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, Failed, o.State())
	assert.Empty(t, filterKind(events, EventFinished))
}

// ---- write-only ----

func TestWriteOnly_IncrementalResend(t *testing.T) {
	link := &fakeLink{}

	cfg := baseConfig()
	cfg.Mode = ModeWriteOnly

	o := New(cfg, link, &fakeSink{}, nil)
	events, err := drive(t, o)
	require.NoError(t, err)

	// One pause per pattern character, re-sending all accumulated
	// writes each time: 1+2+3+4 sends.
	assert.Len(t, filterKind(events, EventAwaitOperator), 4)
	assert.Len(t, link.requests(), 10)

	for _, r := range link.requests() {
		assert.NotEqual(t, program.CamRead, r.Kind)
	}
}

// ---- read-only ----

func TestReadOnly_SweepWithoutWrites(t *testing.T) {
	link := &fakeLink{}
	out := &fakeSink{}

	cfg := baseConfig()
	cfg.Mode = ModeReadOnly

	o := New(cfg, link, out, nil)
	events, err := drive(t, o)
	require.NoError(t, err)

	reqs := link.requests()
	require.Len(t, reqs, 4)
	for i, r := range reqs {
		assert.Equal(t, program.CamRead, r.Kind)
		assert.Equal(t, uint8(i), r.Pattern)
	}

	waits := filterKind(events, EventAwaitOperator)
	require.Len(t, waits, 4)
	assert.Contains(t, waits[0].Text, "rewrite pattern")
	assert.Len(t, out.blocks, 4)
}

// ---- single ----

func TestSingle_OneExchange(t *testing.T) {
	link := &fakeLink{}
	out := &fakeSink{}

	req := program.New(program.StdRead)
	req.Wordline = 2
	req.Bitline = 1

	cfg := baseConfig()
	cfg.Mode = ModeSingle
	cfg.Single = &req

	o := New(cfg, link, out, nil)
	_, err := drive(t, o)
	require.NoError(t, err)

	reqs := link.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, program.StdRead, reqs[0].Kind)
	assert.Len(t, out.blocks, 1)
}

// ---- cancellation ----

func TestCancel_WhileAwaitingOperator(t *testing.T) {
	link := &fakeLink{}
	o := New(baseConfig(), link, &fakeSink{}, nil)

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	var events []Event
	for ev := range o.Events() {
		events = append(events, ev)
		if ev.Kind == EventAwaitOperator {
			o.Gate().Cancel()
		}
	}
	err := <-done

	assert.True(t, errors.Is(err, ErrCancelled))
	assert.Equal(t, Cancelled, o.State())
	assert.Empty(t, link.requests(), "no request may follow a cancel at the gate")
	assert.Empty(t, filterKind(events, EventFinished))
}

func TestCancel_BeforeNextTransmission(t *testing.T) {
	o := New(baseConfig(), &fakeLink{}, &fakeSink{}, nil)
	link := &fakeLink{resp: func(req program.Request) ([]byte, error) {
		o.Gate().Cancel() // cancel lands mid-sequence
		return []byte("h\nh\nh\n0,1\n"), nil
	}}
	o.link = link

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()
	for ev := range o.Events() {
		if ev.Kind == EventAwaitOperator {
			o.Gate().Resume()
		}
	}
	err := <-done

	assert.True(t, errors.Is(err, ErrCancelled))
	// Exactly one request went out before the cancel was observed.
	assert.Len(t, link.requests(), 1)
}

// ---- write request building ----

func TestWriteRequest_InvalidCharacter(t *testing.T) {
	o := New(baseConfig(), &fakeLink{}, &fakeSink{}, nil)

	_, err := o.writeRequest(2, 'x')
	assert.True(t, errors.Is(err, ErrInvalidPatternChar))
}

// ---- end-to-end scenario ----

func TestEndToEnd_Pattern0110(t *testing.T) {
	link := &fakeLink{}
	out := &fakeSink{}

	o := New(baseConfig(), link, out, nil)
	events, err := drive(t, o)
	require.NoError(t, err)

	reqs := link.requests()
	require.Len(t, reqs, 20)

	// Each sweep address: two pauses, then 4 writes, then the cam read.
	assert.Len(t, filterKind(events, EventAwaitOperator), 8)

	for a := 0; a < 4; a++ {
		iter := reqs[a*5 : a*5+5]
		assert.Equal(t, program.WriteZero, iter[0].Kind)
		assert.Equal(t, program.WriteOne, iter[1].Kind)
		assert.Equal(t, program.WriteOne, iter[2].Kind)
		assert.Equal(t, program.WriteZero, iter[3].Kind)
		assert.Equal(t, program.CamRead, iter[4].Kind)
		assert.Equal(t, uint8(a), iter[4].Pattern)
	}

	require.Len(t, out.blocks, 4)
	for _, b := range out.blocks {
		require.Len(t, b.Samples, 2)
		assert.InDelta(t, 0.0, b.Samples[0].TimeMs, 1e-9)
		assert.InDelta(t, 100*5.0/1023, b.Samples[0].VoltageV, 1e-9)
	}
}
