package dialogue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"voice-reminder-assistant/internal/clock"
	"voice-reminder-assistant/internal/models"
	"voice-reminder-assistant/internal/service/capture"
)

// fakeCapture records listening requests; tests deliver utterances through say.
type fakeCapture struct {
	mu       sync.Mutex
	observer capture.Observer
	starts   int
	stops    int
	clears   int
	startErr error
}

func (c *fakeCapture) StartListening(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.starts++
	return nil
}

func (c *fakeCapture) StopListening() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
}

func (c *fakeCapture) ClearUtterance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clears++
}

func (c *fakeCapture) Subscribe(o capture.Observer) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = o
	return func() {}
}

func (c *fakeCapture) startCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

func (c *fakeCapture) say(text string) {
	c.mu.Lock()
	o := c.observer
	c.mu.Unlock()
	o.UtteranceRecognized(text)
}

// fakeSpeaker finishes instantly unless hold is set, in which case it waits
// for ctx or release.
type fakeSpeaker struct {
	mu       sync.Mutex
	spoken   []string
	cancels  int
	hold     bool
	release  chan struct{}
	speaking chan string
}

func (s *fakeSpeaker) Speak(ctx context.Context, text string) bool {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	hold := s.hold
	s.mu.Unlock()

	if !hold {
		return true
	}
	s.speaking <- text
	select {
	case <-ctx.Done():
		return false
	case <-s.release:
		return true
	}
}

func (s *fakeSpeaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
}

func (s *fakeSpeaker) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

type fakeSink struct {
	mu       sync.Mutex
	requests []models.ReminderRequest
	err      error
}

func (s *fakeSink) CreateReminder(_ context.Context, req models.ReminderRequest) (models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return models.Reminder{}, s.err
	}
	return models.Reminder{ID: "rem-1", Details: req}, nil
}

func (s *fakeSink) calls() []models.ReminderRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ReminderRequest(nil), s.requests...)
}

type fakeRecorder struct {
	mu    sync.Mutex
	turns []models.TurnEvent
}

func (r *fakeRecorder) RecordTurn(_ context.Context, ev models.TurnEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, ev)
	return nil
}

func (r *fakeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) DialogueChanged(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, snap.State)
}

func (r *stateRecorder) saw(state State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.states {
		if s == state {
			return true
		}
	}
	return false
}

// Wednesday afternoon.
var refNow = time.Date(2026, 10, 14, 16, 45, 0, 0, time.UTC)

type harness struct {
	orch     *Orchestrator
	capture  *fakeCapture
	speaker  *fakeSpeaker
	sink     *fakeSink
	recorder *fakeRecorder
	clock    *clock.Fake
	states   *stateRecorder
}

func newHarness(t *testing.T, language string) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Language = language
	return newHarnessAt(t, cfg, refNow)
}

func newHarnessAt(t *testing.T, cfg Config, now time.Time) *harness {
	t.Helper()
	h := &harness{
		capture:  &fakeCapture{},
		speaker:  &fakeSpeaker{release: make(chan struct{}), speaking: make(chan string, 8)},
		sink:     &fakeSink{},
		recorder: &fakeRecorder{},
		clock:    clock.NewFake(now),
		states:   &stateRecorder{},
	}
	h.orch = NewOrchestrator(cfg, Dependencies{
		Capture:  h.capture,
		Speaker:  h.speaker,
		Sink:     h.sink,
		Recorder: h.recorder,
		Clock:    h.clock,
	})
	h.orch.Subscribe(h.states)
	t.Cleanup(h.orch.Close)
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitListening(t *testing.T, n int) {
	t.Helper()
	waitFor(t, "listening request", func() bool { return h.capture.startCount() == n })
}

func (h *harness) waitState(t *testing.T, state State) {
	t.Helper()
	waitFor(t, "state "+state.String(), func() bool { return h.orch.Snapshot().State == state })
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if _, err := h.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: unexpected error: %v", err)
	}
}

func TestOrchestrator_CarMaintenanceScenario(t *testing.T) {
	h := newHarness(t, "en-US")
	h.start(t)

	answers := []string{"car maintenance", "tomorrow", "9 in the morning", "no"}
	for i, answer := range answers {
		h.waitListening(t, i+1)
		h.capture.say(answer)
	}

	waitFor(t, "reminder", func() bool { return len(h.sink.calls()) == 1 })
	h.waitState(t, StateCompleted)

	req := h.sink.calls()[0]
	if req.Topic != "car maintenance" {
		t.Errorf("expected topic 'car maintenance', got %q", req.Topic)
	}
	if req.ResolvedDate == nil || *req.ResolvedDate != (civil.Date{Year: 2026, Month: 10, Day: 15}) {
		t.Errorf("expected tomorrow 2026-10-15, got %v", req.ResolvedDate)
	}
	if req.ResolvedTime == nil || *req.ResolvedTime != (civil.Time{Hour: 9}) {
		t.Errorf("expected 09:00, got %v", req.ResolvedTime)
	}
	if req.Notes != "" {
		t.Errorf("expected empty notes, got %q", req.Notes)
	}
	if req.RawDate != "tomorrow" || req.RawTime != "9 in the morning" {
		t.Errorf("unexpected raw fields: %q, %q", req.RawDate, req.RawTime)
	}
	if !req.CreatedAt.Equal(refNow) {
		t.Errorf("expected createdAt %v, got %v", refNow, req.CreatedAt)
	}

	// Confirmation then the completion delay back to Idle.
	waitFor(t, "completion timer", func() bool { return h.clock.Pending() == 1 })
	h.clock.Advance(DefaultConfig().CompletionDelay)
	h.waitState(t, StateIdle)

	snap := h.orch.Snapshot()
	if snap.Outcome != OutcomeCompleted {
		t.Errorf("expected outcome completed, got %q", snap.Outcome)
	}
	if len(h.sink.calls()) != 1 {
		t.Errorf("expected exactly one CreateReminder call, got %d", len(h.sink.calls()))
	}
	waitFor(t, "turn audit", func() bool { return h.recorder.count() == 4 })
	if h.capture.startCount() != 4 {
		t.Errorf("expected 4 listening requests, got %d", h.capture.startCount())
	}

	spoken := h.speaker.texts()
	if len(spoken) != 5 {
		t.Fatalf("expected 4 questions and a confirmation, got %d: %v", len(spoken), spoken)
	}
	if want := englishPrompts.Date("car maintenance"); spoken[1] != want {
		t.Errorf("expected date prompt to reference the topic, got %q", spoken[1])
	}
}

func TestOrchestrator_TurkishScenario(t *testing.T) {
	h := newHarness(t, "tr-TR")
	h.start(t)

	answers := []string{"araba bakımı", "cumartesi", "öğleden sonra 2", "hayır"}
	for i, answer := range answers {
		h.waitListening(t, i+1)
		h.capture.say(answer)
	}
	waitFor(t, "reminder", func() bool { return len(h.sink.calls()) == 1 })

	req := h.sink.calls()[0]
	if req.Language != "tr-TR" {
		t.Errorf("expected language tr-TR, got %q", req.Language)
	}
	if req.ResolvedDate == nil || *req.ResolvedDate != (civil.Date{Year: 2026, Month: 10, Day: 17}) {
		t.Errorf("expected Saturday 2026-10-17, got %v", req.ResolvedDate)
	}
	if req.ResolvedTime == nil || *req.ResolvedTime != (civil.Time{Hour: 14}) {
		t.Errorf("expected 14:00, got %v", req.ResolvedTime)
	}
	if req.Notes != "" {
		t.Errorf("expected empty notes, got %q", req.Notes)
	}
	if got := h.speaker.texts()[2]; got != turkishPrompts.Time("17.10.2026") {
		t.Errorf("expected date read back as 17.10.2026, got %q", got)
	}
}

func TestOrchestrator_DuplicateTranscriptAdvancesOnce(t *testing.T) {
	h := newHarness(t, "en-US")
	h.start(t)
	h.waitListening(t, 1)

	h.capture.say("car maintenance")
	h.capture.say("car maintenance")
	h.waitListening(t, 2)

	snap := h.orch.Snapshot()
	if snap.State != StateAskingDate {
		t.Errorf("expected StateAskingDate, got %v", snap.State)
	}
	if snap.Draft.Topic != "car maintenance" {
		t.Errorf("expected topic stored once, got %q", snap.Draft.Topic)
	}
	if snap.Draft.RawDate != "" {
		t.Errorf("expected duplicate not to answer the date, got %q", snap.Draft.RawDate)
	}
	if h.capture.clears != 1 {
		t.Errorf("expected one ClearUtterance, got %d", h.capture.clears)
	}
}

func TestOrchestrator_RedeliveredAnswerRejectedInNextTurn(t *testing.T) {
	h := newHarness(t, "en-US")
	h.start(t)
	h.waitListening(t, 1)

	h.capture.say("car maintenance")
	h.waitListening(t, 2)
	waitFor(t, "awaiting date", func() bool { return h.orch.Snapshot().Awaiting })

	// The recognizer repeats the topic once the date question is open.
	h.capture.say("car maintenance")

	snap := h.orch.Snapshot()
	if snap.State != StateAskingDate || !snap.Awaiting {
		t.Errorf("expected to keep waiting for the date, got %v awaiting=%v", snap.State, snap.Awaiting)
	}
	if snap.Draft.RawDate != "" {
		t.Errorf("expected repeated topic not to answer the date, got %q", snap.Draft.RawDate)
	}

	h.capture.say("tomorrow")
	h.waitState(t, StateAskingTime)
}

func TestOrchestrator_DatesResolvedInConfiguredZone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Location = time.FixedZone("UTC+3", 3*60*60)
	// 22:30 UTC is already Thursday 01:30 in UTC+3.
	h := newHarnessAt(t, cfg, time.Date(2026, 10, 14, 22, 30, 0, 0, time.UTC))
	h.start(t)

	answers := []string{"car maintenance", "tomorrow", "14:30", "no"}
	for i, answer := range answers {
		h.waitListening(t, i+1)
		h.capture.say(answer)
	}
	waitFor(t, "reminder", func() bool { return len(h.sink.calls()) == 1 })

	req := h.sink.calls()[0]
	if req.ResolvedDate == nil || *req.ResolvedDate != (civil.Date{Year: 2026, Month: 10, Day: 16}) {
		t.Errorf("expected tomorrow in UTC+3 to be 2026-10-16, got %v", req.ResolvedDate)
	}
}

func TestOrchestrator_ShortAnswersRejected(t *testing.T) {
	h := newHarness(t, "en-US")
	h.start(t)
	h.waitListening(t, 1)

	h.capture.say("ok")
	h.capture.say("   ")

	snap := h.orch.Snapshot()
	if snap.State != StateAskingTopic {
		t.Errorf("expected to stay in StateAskingTopic, got %v", snap.State)
	}
	if snap.Draft.Topic != "" {
		t.Errorf("expected no topic, got %q", snap.Draft.Topic)
	}
}

func TestOrchestrator_NotesKept(t *testing.T) {
	h := newHarness(t, "en-US")
	h.start(t)

	answers := []string{"dentist", "friday", "14:30", "bring the x-rays"}
	for i, answer := range answers {
		h.waitListening(t, i+1)
		h.capture.say(answer)
	}
	waitFor(t, "reminder", func() bool { return len(h.sink.calls()) == 1 })

	req := h.sink.calls()[0]
	if req.Notes != "bring the x-rays" {
		t.Errorf("expected notes kept, got %q", req.Notes)
	}
	if req.ResolvedTime == nil || *req.ResolvedTime != (civil.Time{Hour: 14, Minute: 30}) {
		t.Errorf("expected 14:30, got %v", req.ResolvedTime)
	}
}

func TestOrchestrator_UnresolvedDateKeepsRawText(t *testing.T) {
	h := newHarness(t, "en-US")
	h.start(t)

	answers := []string{"pay rent", "whenever possible", "morning", "none"}
	for i, answer := range answers {
		h.waitListening(t, i+1)
		h.capture.say(answer)
	}
	waitFor(t, "reminder", func() bool { return len(h.sink.calls()) == 1 })

	req := h.sink.calls()[0]
	if req.ResolvedDate != nil {
		t.Errorf("expected unresolved date, got %v", req.ResolvedDate)
	}
	if req.RawDate != "whenever possible" {
		t.Errorf("expected raw date text, got %q", req.RawDate)
	}
}

func TestOrchestrator_PermissionDeniedStaysAtTopic(t *testing.T) {
	h := newHarness(t, "en-US")
	h.capture.startErr = capture.ErrPermissionDenied

	h.start(t)
	h.waitState(t, StateIdle)

	snap := h.orch.Snapshot()
	if snap.Outcome != OutcomeCaptureFailure {
		t.Errorf("expected capture failure outcome, got %q", snap.Outcome)
	}
	if snap.Error != string(capture.ErrorPermissionDenied) {
		t.Errorf("expected permission_denied, got %q", snap.Error)
	}
	if h.states.saw(StateAskingDate) {
		t.Error("expected dialogue never to reach AskingDate")
	}
	if len(h.sink.calls()) != 0 {
		t.Error("expected no reminder")
	}
}

func TestOrchestrator_CaptureErrorReturnsToIdle(t *testing.T) {
	h := newHarness(t, "en-US")
	h.start(t)
	h.waitListening(t, 1)

	h.orch.CaptureFailed(capture.ErrorNetwork)

	snap := h.orch.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("expected StateIdle, got %v", snap.State)
	}
	if snap.Error != string(capture.ErrorNetwork) {
		t.Errorf("expected network_failure, got %q", snap.Error)
	}

	// No retry: a later utterance is ignored.
	h.capture.say("car maintenance")
	if got := h.orch.Snapshot().State; got != StateIdle {
		t.Errorf("expected to remain idle, got %v", got)
	}
	if h.capture.startCount() != 1 {
		t.Errorf("expected no retry, got %d listening requests", h.capture.startCount())
	}
}

func TestOrchestrator_SilenceCloseReturnsToIdle(t *testing.T) {
	h := newHarness(t, "en-US")
	h.start(t)
	h.waitListening(t, 1)

	// A stop issued by the capture owner is not a failure.
	h.orch.CaptureStateChanged(capture.Snapshot{Listening: false, Reason: capture.ReasonStopped})
	if got := h.orch.Snapshot().State; got != StateAskingTopic {
		t.Fatalf("expected to keep asking, got %v", got)
	}

	h.orch.CaptureStateChanged(capture.Snapshot{Listening: false, Reason: capture.ReasonSilenceClosed})

	snap := h.orch.Snapshot()
	if snap.State != StateIdle || snap.Outcome != OutcomeCaptureFailure {
		t.Errorf("expected idle after silence close, got %+v", snap)
	}
}

func TestOrchestrator_CancelIgnoresStragglers(t *testing.T) {
	h := newHarness(t, "en-US")
	h.start(t)
	h.waitListening(t, 1)
	h.capture.say("car maintenance")
	h.waitListening(t, 2)

	if !h.orch.Cancel() {
		t.Fatal("expected Cancel to end the dialogue")
	}

	snap := h.orch.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("expected StateIdle immediately, got %v", snap.State)
	}
	if snap.Draft.Topic != "" {
		t.Errorf("expected draft cleared, got %q", snap.Draft.Topic)
	}
	if h.speaker.cancels == 0 {
		t.Error("expected speech to be cancelled")
	}

	h.capture.say("tomorrow")
	if got := h.orch.Snapshot().State; got != StateIdle {
		t.Errorf("expected late utterance to be ignored, got %v", got)
	}
	if h.orch.Cancel() {
		t.Error("expected second Cancel to be a no-op")
	}
}

func TestOrchestrator_CancelDuringSpeech(t *testing.T) {
	h := newHarness(t, "en-US")
	h.speaker.hold = true
	h.start(t)

	select {
	case <-h.speaker.speaking:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the first prompt")
	}

	h.orch.Cancel()
	close(h.speaker.release)
	time.Sleep(20 * time.Millisecond)

	if h.capture.startCount() != 0 {
		t.Errorf("expected no listening after cancel, got %d", h.capture.startCount())
	}
}

func TestOrchestrator_StartWhileActive(t *testing.T) {
	h := newHarness(t, "en-US")
	h.start(t)

	if _, err := h.orch.Start(context.Background()); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("expected ErrAlreadyActive, got %v", err)
	}
	if !h.orch.Active() {
		t.Error("expected Active while asking")
	}
}

func TestOrchestrator_PersistenceFailure(t *testing.T) {
	h := newHarness(t, "en-US")
	h.sink.err = errors.New("store unavailable")
	h.start(t)

	answers := []string{"car maintenance", "tomorrow", "9 in the morning", "no"}
	for i, answer := range answers {
		h.waitListening(t, i+1)
		h.capture.say(answer)
	}
	waitFor(t, "failure", func() bool { return h.orch.Snapshot().Outcome == OutcomePersistenceFailure })

	snap := h.orch.Snapshot()
	if snap.State != StateIdle {
		t.Errorf("expected StateIdle, got %v", snap.State)
	}
	if snap.Draft.Topic != "" {
		t.Errorf("expected draft discarded, got %+v", snap.Draft)
	}
	spoken := h.speaker.texts()
	if spoken[len(spoken)-1] != englishPrompts.Apology {
		t.Errorf("expected apology, got %q", spoken[len(spoken)-1])
	}
}

func TestDraft_FieldsAreWriteOnce(t *testing.T) {
	var d Draft
	if err := d.SetTopic("first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.SetTopic("second"); !errors.Is(err, ErrFieldAlreadySet) {
		t.Errorf("expected ErrFieldAlreadySet, got %v", err)
	}
	if d.View().Topic != "first" {
		t.Errorf("expected original topic, got %q", d.View().Topic)
	}
	if d.Complete() {
		t.Error("expected incomplete draft")
	}
	if err := d.SetNotes(""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := d.SetNotes("again"); !errors.Is(err, ErrFieldAlreadySet) {
		t.Errorf("expected ErrFieldAlreadySet, got %v", err)
	}
}

func TestState_Next(t *testing.T) {
	order := []State{StateAskingTopic, StateAskingDate, StateAskingTime, StateAskingNotes, StateCompleted}
	for i := 0; i < len(order)-1; i++ {
		if got := order[i].next(); got != order[i+1] {
			t.Errorf("%v.next() = %v, expected %v", order[i], got, order[i+1])
		}
	}
	if StateCompleted.next() != StateCompleted || StateIdle.next() != StateIdle {
		t.Error("expected Completed and Idle to have no successor")
	}
	if StateIdle.Asking() || StateCompleted.Asking() || !StateAskingNotes.Asking() {
		t.Error("unexpected Asking() result")
	}
}
