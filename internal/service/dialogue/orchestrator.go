// Package dialogue runs the spoken question-and-answer flow that turns a few
// utterances into a reminder: topic, date, time, then optional notes.
//
// Each turn speaks its question, waits for the speech to finish, and only then
// opens the microphone. Exactly one turn awaits an answer at any time.
package dialogue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voice-reminder-assistant/internal/clock"
	"voice-reminder-assistant/internal/models"
	"voice-reminder-assistant/internal/observability/logging"
	"voice-reminder-assistant/internal/observability/metrics"
	"voice-reminder-assistant/internal/service/capture"
	"voice-reminder-assistant/internal/service/temporal"
)

// ErrAlreadyActive is returned by Start while a dialogue is in progress.
var ErrAlreadyActive = errors.New("dialogue already active")

// Outcomes recorded when a dialogue ends.
const (
	OutcomeCompleted          = "completed"
	OutcomeCancelled          = "cancelled"
	OutcomeCaptureFailure     = "capture_failure"
	OutcomePersistenceFailure = "persistence_failure"
)

// Rejection reasons for answers.
const (
	ReasonTooShort  = "too_short"
	ReasonDuplicate = "duplicate"
)

// Capture is the part of the capture session the orchestrator drives.
type Capture interface {
	StartListening(ctx context.Context) error
	StopListening()
	ClearUtterance()
	Subscribe(o capture.Observer) func()
}

// Speaker speaks prompts; Speak blocks until playback is over.
type Speaker interface {
	Speak(ctx context.Context, text string) bool
	Cancel()
}

// Sink persists finished reminders.
type Sink interface {
	CreateReminder(ctx context.Context, req models.ReminderRequest) (models.Reminder, error)
}

// TurnRecorder receives accepted answers for auditing.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, ev models.TurnEvent) error
}

// Observer receives every dialogue change.
type Observer interface {
	DialogueChanged(snap Snapshot)
}

// Snapshot is an immutable view of the dialogue.
type Snapshot struct {
	ID         string    `json:"id,omitempty"`
	State      State     `json:"state"`
	Language   string    `json:"language"`
	Draft      DraftView `json:"draft"`
	LastAnswer string    `json:"lastAnswer,omitempty"`
	Awaiting   bool      `json:"awaiting"`
	Outcome    string    `json:"outcome,omitempty"`
	Error      string    `json:"error,omitempty"`
	ReminderID string    `json:"reminderId,omitempty"`
}

// Config holds dialogue settings.
type Config struct {
	Language        string
	MinAnswerLength int           // answers must be longer than this, in runes
	CompletionDelay time.Duration // time spent in Completed before Idle
	// Location is the zone spoken dates and times are resolved in. Defaults to UTC.
	Location *time.Location
}

// DefaultConfig returns sensible default dialogue settings.
func DefaultConfig() Config {
	return Config{
		Language:        "en-US",
		MinAnswerLength: 2,
		CompletionDelay: 5 * time.Second,
		Location:        time.UTC,
	}
}

// Dependencies are the collaborators of an Orchestrator.
type Dependencies struct {
	Capture  Capture
	Speaker  Speaker
	Sink     Sink
	Recorder TurnRecorder // optional
	Clock    clock.Clock
	Metrics  *metrics.Metrics
}

// Orchestrator drives one dialogue at a time.
type Orchestrator struct {
	cfg      Config
	capture  Capture
	speaker  Speaker
	sink     Sink
	recorder TurnRecorder
	clock    clock.Clock
	metrics  *metrics.Metrics
	parser   *temporal.Parser
	prompts  *Prompts
	logger   zerolog.Logger

	unsubscribe func()
	// listenMu orders StartListening against the stop issued by Cancel.
	// Capture observers run on the StartListening goroutine, so nothing
	// reachable from an observer may take it.
	listenMu sync.Mutex

	mu           sync.Mutex
	gen          uint64
	id           string
	state        State
	draft        Draft
	lastAccepted string // previous turn's answer, rejected if re-delivered
	lastAnswer   string
	awaiting     bool
	outcome      string
	errText      string
	reminderID   string
	runCtx       context.Context
	cancelRun    context.CancelFunc
	completion   clock.Timer
	observers    map[int]Observer
	nextObserver int
	wg           sync.WaitGroup
}

// NewOrchestrator creates an idle orchestrator and subscribes it to the capture session.
func NewOrchestrator(cfg Config, deps Dependencies) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.DefaultMetrics
	}
	if cfg.MinAnswerLength < 0 {
		cfg.MinAnswerLength = 0
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	o := &Orchestrator{
		cfg:       cfg,
		capture:   deps.Capture,
		speaker:   deps.Speaker,
		sink:      deps.Sink,
		recorder:  deps.Recorder,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		parser:    temporal.NewParser(temporal.ForLanguage(cfg.Language)),
		prompts:   PromptsFor(cfg.Language),
		logger:    logging.WithComponent("dialogue"),
		observers: make(map[int]Observer),
	}
	o.unsubscribe = deps.Capture.Subscribe(o)
	return o
}

// Subscribe registers an observer and returns its unsubscribe function.
func (o *Orchestrator) Subscribe(obs Observer) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextObserver
	o.nextObserver++
	o.observers[id] = obs
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.observers, id)
	}
}

// Snapshot returns the current dialogue view.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Active reports whether a dialogue is in progress, including the completion delay.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state != StateIdle
}

// Start begins a new dialogue. The first question is asked in the background;
// the dialogue outlives ctx and ends through answers, Cancel, or failures.
func (o *Orchestrator) Start(ctx context.Context) (Snapshot, error) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		cancel()
		return Snapshot{}, ErrAlreadyActive
	}
	o.gen++
	gen := o.gen
	o.id = uuid.NewString()
	o.state = StateAskingTopic
	o.draft = Draft{}
	o.lastAccepted = ""
	o.lastAnswer = ""
	o.awaiting = false
	o.outcome = ""
	o.errText = ""
	o.reminderID = ""
	o.runCtx = runCtx
	o.cancelRun = cancel
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.metrics.RecordDialogueStarted()
	logger := logging.WithDialogue(snap.ID, StateAskingTopic.String())
	logger.Info().Msg("Dialogue started")
	o.notify(snap)
	o.spawn(func() { o.ask(runCtx, gen, StateAskingTopic, nil) })
	return snap, nil
}

// Cancel ends the dialogue from any non-idle state, discarding the draft.
// Returns false when there was nothing to cancel.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	if o.state == StateIdle {
		o.mu.Unlock()
		return false
	}
	id := o.id
	o.resetLocked(OutcomeCancelled, "")
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.stopCapture()
	o.speaker.Cancel()
	o.metrics.RecordDialogueFinished(OutcomeCancelled)
	logger := logging.WithDialogue(id, StateIdle.String())
	logger.Info().Msg("Dialogue cancelled")
	o.notify(snap)
	return true
}

// Close cancels any dialogue, detaches from the capture session, and waits
// for background turns to return.
func (o *Orchestrator) Close() {
	o.Cancel()
	o.speaker.Cancel()
	if o.unsubscribe != nil {
		o.unsubscribe()
	}
	o.wg.Wait()
}

// CaptureStateChanged implements capture.Observer.
func (o *Orchestrator) CaptureStateChanged(snap capture.Snapshot) {
	if snap.Listening || snap.Reason != capture.ReasonSilenceClosed {
		return
	}
	o.abortIfAwaiting(string(capture.ErrorNoSpeech))
}

// CaptureFailed implements capture.Observer.
func (o *Orchestrator) CaptureFailed(kind capture.ErrorKind) {
	o.abortIfAwaiting(string(kind))
}

// UtteranceRecognized implements capture.Observer.
func (o *Orchestrator) UtteranceRecognized(text string) {
	answer := strings.TrimSpace(text)

	o.mu.Lock()
	if !o.state.Asking() || !o.awaiting {
		o.mu.Unlock()
		return
	}
	state := o.state
	gen := o.gen
	logger := logging.WithDialogue(o.id, state.String())

	if reason := o.rejectLocked(state, answer); reason != "" {
		o.mu.Unlock()
		o.metrics.RecordAnswer(state.String(), false, reason)
		logger.Debug().Str("answer", answer).Str("reason", reason).Msg("Answer rejected")
		return
	}

	o.lastAccepted = answer
	o.lastAnswer = answer
	if err := o.applyLocked(state, answer); err != nil {
		o.mu.Unlock()
		logger.Error().Err(err).Msg("Failed to store answer")
		return
	}
	turn := models.TurnEvent{
		EventType:  models.EventTurnRecorded,
		DialogueID: o.id,
		Timestamp:  o.clock.Now().UnixMilli(),
		State:      state.String(),
		Utterance:  answer,
		Accepted:   true,
	}
	next := state.next()
	o.state = next
	o.awaiting = false
	ctx := o.runCtx
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.capture.ClearUtterance()
	o.metrics.RecordAnswer(state.String(), true, "")
	logger.Info().Str("answer", answer).Str("next", next.String()).Msg("Answer accepted")
	o.notify(snap)

	if next == StateCompleted {
		o.spawn(func() { o.finalize(ctx, gen, &turn) })
		return
	}
	o.spawn(func() { o.ask(ctx, gen, next, &turn) })
}

func (o *Orchestrator) rejectLocked(state State, answer string) string {
	negation := state == StateAskingNotes && o.parser.Lexicon().IsNegation(answer)
	if !negation && utf8.RuneCountInString(answer) <= o.cfg.MinAnswerLength {
		return ReasonTooShort
	}
	if answer == "" {
		return ReasonTooShort
	}
	if answer == o.lastAccepted {
		return ReasonDuplicate
	}
	return ""
}

func (o *Orchestrator) applyLocked(state State, answer string) error {
	now := o.clock.Now().In(o.cfg.Location)
	switch state {
	case StateAskingTopic:
		return o.draft.SetTopic(answer)
	case StateAskingDate:
		r := o.parser.ResolveDate(answer, now)
		o.metrics.RecordTemporalParse("date", string(r.Rule))
		return o.draft.SetDate(r)
	case StateAskingTime:
		r := o.parser.ResolveTime(answer, now)
		o.metrics.RecordTemporalParse("time", string(r.Rule))
		return o.draft.SetTime(r)
	case StateAskingNotes:
		if o.parser.Lexicon().IsNegation(answer) {
			return o.draft.SetNotes("")
		}
		return o.draft.SetNotes(answer)
	}
	return nil
}

// ask runs one turn: stop the microphone, speak the question, then listen.
func (o *Orchestrator) ask(ctx context.Context, gen uint64, state State, turn *models.TurnEvent) {
	o.capture.StopListening()
	o.recordTurn(ctx, turn)

	prompt, ok := o.question(gen, state)
	if !ok {
		return
	}
	o.speaker.Speak(ctx, prompt)

	o.mu.Lock()
	if gen != o.gen || o.state != state {
		o.mu.Unlock()
		return
	}
	o.awaiting = true
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)

	o.listenMu.Lock()
	if !o.current(gen) {
		o.listenMu.Unlock()
		return
	}
	err := o.capture.StartListening(ctx)
	if !o.current(gen) {
		// Cancelled or aborted while the microphone was opening.
		if err == nil {
			o.capture.StopListening()
		}
		o.listenMu.Unlock()
		return
	}
	o.listenMu.Unlock()
	if err == nil || errors.Is(err, capture.ErrAlreadyListening) {
		return
	}

	kind := capture.ErrorOther
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		kind = capture.ErrorPermissionDenied
	case errors.Is(err, capture.ErrUnsupported):
		kind = capture.ErrorUnsupported
	}
	o.logger.Warn().Err(err).Str("state", state.String()).Msg("Failed to start listening")
	o.abort(gen, string(kind))
}

func (o *Orchestrator) question(gen uint64, state State) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen || o.state != state {
		return "", false
	}
	switch state {
	case StateAskingTopic:
		return o.prompts.Topic, true
	case StateAskingDate:
		return o.prompts.Date(o.draft.topic), true
	case StateAskingTime:
		return o.prompts.Time(o.prompts.FormatDate(o.draft.date)), true
	default:
		return o.prompts.Notes, true
	}
}

// finalize hands the draft to the sink and reads the outcome back.
func (o *Orchestrator) finalize(ctx context.Context, gen uint64, turn *models.TurnEvent) {
	o.capture.StopListening()
	o.recordTurn(ctx, turn)

	o.mu.Lock()
	if gen != o.gen || o.state != StateCompleted {
		o.mu.Unlock()
		return
	}
	id := o.id
	req := o.draft.request(id, o.cfg.Language, o.clock.Now())
	saved := o.prompts.Saved(req.Topic, o.prompts.FormatDate(o.draft.date), o.prompts.FormatTime(o.draft.clock))
	o.mu.Unlock()

	logger := logging.WithDialogue(id, StateCompleted.String())
	reminder, err := o.sink.CreateReminder(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to save reminder")
		if !o.current(gen) {
			return
		}
		o.speaker.Speak(ctx, o.prompts.Apology)
		o.finish(gen, OutcomePersistenceFailure, err.Error())
		return
	}

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.reminderID = reminder.ID
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.notify(snap)

	logger.Info().Str("reminderId", reminder.ID).Msg("Reminder saved")
	o.speaker.Speak(ctx, saved)

	o.mu.Lock()
	if gen != o.gen || o.state != StateCompleted {
		o.mu.Unlock()
		return
	}
	o.completion = o.clock.AfterFunc(o.cfg.CompletionDelay, func() {
		o.finish(gen, OutcomeCompleted, "")
	})
	o.mu.Unlock()
}

func (o *Orchestrator) abortIfAwaiting(reason string) {
	o.mu.Lock()
	if !o.state.Asking() || !o.awaiting {
		o.mu.Unlock()
		return
	}
	gen := o.gen
	o.mu.Unlock()
	o.abort(gen, reason)
}

// abort ends the dialogue after a capture failure. No retry is attempted.
// It runs inside capture callbacks and must not take listenMu.
func (o *Orchestrator) abort(gen uint64, reason string) {
	if !o.finish(gen, OutcomeCaptureFailure, reason) {
		return
	}
	o.capture.StopListening()
	o.spawn(func() { o.speaker.Speak(context.Background(), o.prompts.Unheard) })
}

// finish moves generation gen to Idle. Returns false when gen is stale.
func (o *Orchestrator) finish(gen uint64, outcome, errText string) bool {
	o.mu.Lock()
	if gen != o.gen || o.state == StateIdle {
		o.mu.Unlock()
		return false
	}
	id, state := o.id, o.state
	o.resetLocked(outcome, errText)
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.metrics.RecordDialogueFinished(outcome)
	logger := logging.WithDialogue(id, state.String())
	logger.Info().
		Str("outcome", outcome).
		Str("error", errText).
		Msg("Dialogue finished")
	o.notify(snap)
	return true
}

// resetLocked returns to Idle and invalidates every in-flight turn.
func (o *Orchestrator) resetLocked(outcome, errText string) {
	o.gen++
	if o.cancelRun != nil {
		o.cancelRun()
		o.cancelRun = nil
		o.runCtx = nil
	}
	if o.completion != nil {
		o.completion.Stop()
		o.completion = nil
	}
	o.state = StateIdle
	o.draft = Draft{}
	o.lastAccepted = ""
	o.awaiting = false
	o.outcome = outcome
	o.errText = errText
}

func (o *Orchestrator) current(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return gen == o.gen
}

func (o *Orchestrator) stopCapture() {
	o.listenMu.Lock()
	defer o.listenMu.Unlock()
	o.capture.StopListening()
}

func (o *Orchestrator) recordTurn(ctx context.Context, turn *models.TurnEvent) {
	if o.recorder == nil || turn == nil {
		return
	}
	if err := o.recorder.RecordTurn(ctx, *turn); err != nil {
		o.logger.Warn().Err(err).Str("dialogueId", turn.DialogueID).Msg("Failed to record turn")
	}
}

func (o *Orchestrator) spawn(fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn()
	}()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	return Snapshot{
		ID:         o.id,
		State:      o.state,
		Language:   o.cfg.Language,
		Draft:      o.draft.View(),
		LastAnswer: o.lastAnswer,
		Awaiting:   o.awaiting,
		Outcome:    o.outcome,
		Error:      o.errText,
		ReminderID: o.reminderID,
	}
}

func (o *Orchestrator) notify(snap Snapshot) {
	o.mu.Lock()
	observers := make([]Observer, 0, len(o.observers))
	for _, obs := range o.observers {
		observers = append(observers, obs)
	}
	o.mu.Unlock()

	for _, obs := range observers {
		obs.DialogueChanged(snap)
	}
}
