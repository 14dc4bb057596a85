package dialogue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"voice-reminder-assistant/internal/clock"
	"voice-reminder-assistant/internal/service/capture"
	"voice-reminder-assistant/internal/service/permission"
	"voice-reminder-assistant/internal/service/recognizer"
)

// scriptedRecognizer opens pipes the test answers through; the first
// failStarts calls to Start fail like a refused connection.
type scriptedRecognizer struct {
	mu         sync.Mutex
	failStarts int
	calls      int
	pipes      []*recognizer.Pipe
}

func (r *scriptedRecognizer) Supported() bool { return true }

func (r *scriptedRecognizer) Start(context.Context, recognizer.Config) (recognizer.Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.failStarts > 0 {
		r.failStarts--
		return nil, errors.New("dial tcp: connection refused")
	}
	p := recognizer.NewPipe(16, nil)
	p.Emit(recognizer.Started())
	r.pipes = append(r.pipes, p)
	return p, nil
}

func (r *scriptedRecognizer) startCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *scriptedRecognizer) say(text string) {
	r.mu.Lock()
	p := r.pipes[len(r.pipes)-1]
	r.mu.Unlock()
	p.Emit(recognizer.Result(true, text))
}

func (r *scriptedRecognizer) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pipes {
		p.Close()
	}
}

type sessionHarness struct {
	orch    *Orchestrator
	session *capture.Session
	rec     *scriptedRecognizer
	sink    *fakeSink
}

func newSessionHarness(t *testing.T, rec *scriptedRecognizer, perm permission.Status) *sessionHarness {
	t.Helper()
	clk := clock.NewFake(refNow)
	h := &sessionHarness{rec: rec, sink: &fakeSink{}}
	h.session = capture.NewSession(capture.DefaultConfig(), capture.Dependencies{
		Recognizer: rec,
		Permission: permission.Static(perm),
		Clock:      clk,
		Marker:     &nopMarker{},
	})
	h.orch = NewOrchestrator(DefaultConfig(), Dependencies{
		Capture: h.session,
		Speaker: &fakeSpeaker{},
		Sink:    h.sink,
		Clock:   clk,
	})
	t.Cleanup(func() {
		h.orch.Close()
		h.session.Close()
		rec.closeAll()
	})
	return h
}

type nopMarker struct{}

func (nopMarker) SetCaptureActive(bool) {}

// waitAwaiting waits until the dialogue listens for an answer in state.
func (h *sessionHarness) waitAwaiting(t *testing.T, state State, starts int) {
	t.Helper()
	waitFor(t, "listening in "+state.String(), func() bool {
		snap := h.orch.Snapshot()
		return snap.State == state && snap.Awaiting &&
			h.session.Snapshot().Listening && h.rec.startCalls() == starts
	})
}

// returns fails the test when fn does not finish promptly.
func returns(t *testing.T, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s did not return", what)
	}
}

func TestSessionDialogue_StartFailureDoesNotWedge(t *testing.T) {
	h := newSessionHarness(t, &scriptedRecognizer{failStarts: 1}, permission.StatusGranted)

	if _, err := h.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: unexpected error: %v", err)
	}
	waitFor(t, "capture failure", func() bool { return h.orch.Snapshot().Outcome == OutcomeCaptureFailure })

	snap := h.orch.Snapshot()
	if snap.State != StateIdle || snap.Error != string(capture.ErrorNetwork) {
		t.Errorf("expected idle after network failure, got %+v", snap)
	}

	// The next dialogue listens normally.
	if _, err := h.orch.Start(context.Background()); err != nil {
		t.Fatalf("second Start: unexpected error: %v", err)
	}
	h.waitAwaiting(t, StateAskingTopic, 2)

	returns(t, "Cancel", func() {
		if !h.orch.Cancel() {
			t.Error("expected an active dialogue to cancel")
		}
	})
	if h.session.Snapshot().Listening {
		t.Error("expected Cancel to stop listening")
	}
	returns(t, "Close", h.orch.Close)
}

func TestSessionDialogue_PermissionDeniedWithoutInit(t *testing.T) {
	h := newSessionHarness(t, &scriptedRecognizer{}, permission.StatusDenied)

	for i := 0; i < 2; i++ {
		if _, err := h.orch.Start(context.Background()); err != nil {
			t.Fatalf("Start %d: unexpected error: %v", i, err)
		}
		waitFor(t, "idle", func() bool { return h.orch.Snapshot().State == StateIdle })

		snap := h.orch.Snapshot()
		if snap.Outcome != OutcomeCaptureFailure || snap.Error != string(capture.ErrorPermissionDenied) {
			t.Errorf("attempt %d: expected permission_denied failure, got %+v", i, snap)
		}
	}
	if h.rec.startCalls() != 0 {
		t.Errorf("expected the recognizer never to start, got %d calls", h.rec.startCalls())
	}
	if h.session.Ready() {
		t.Error("expected capture not ready after a denial")
	}
	returns(t, "Close", h.orch.Close)
}

func TestSessionDialogue_CarMaintenanceScenario(t *testing.T) {
	h := newSessionHarness(t, &scriptedRecognizer{}, permission.StatusGranted)

	if _, err := h.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: unexpected error: %v", err)
	}

	turns := []struct {
		state  State
		answer string
	}{
		{StateAskingTopic, "car maintenance"},
		{StateAskingDate, "tomorrow"},
		{StateAskingTime, "afternoon 2"},
		{StateAskingNotes, "no"},
	}
	for i, turn := range turns {
		h.waitAwaiting(t, turn.state, i+1)
		h.rec.say(turn.answer)
	}

	waitFor(t, "reminder", func() bool { return len(h.sink.calls()) == 1 })
	req := h.sink.calls()[0]
	if req.Topic != "car maintenance" {
		t.Errorf("expected topic 'car maintenance', got %q", req.Topic)
	}
	if req.ResolvedDate == nil || *req.ResolvedDate != (civil.Date{Year: 2026, Month: 10, Day: 15}) {
		t.Errorf("expected 2026-10-15, got %v", req.ResolvedDate)
	}
	if req.ResolvedTime == nil || *req.ResolvedTime != (civil.Time{Hour: 14}) {
		t.Errorf("expected 14:00, got %v", req.ResolvedTime)
	}
	waitFor(t, "microphone closed", func() bool { return !h.session.Snapshot().Listening })
	if h.rec.startCalls() != 4 {
		t.Errorf("expected one recognition stream per question, got %d", h.rec.startCalls())
	}
}
