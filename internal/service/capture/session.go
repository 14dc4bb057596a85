// Package capture owns the continuous speech recognition session: permission
// gating, stream lifecycle, automatic restart after a silence end, final close
// after prolonged silence, and the hard listening timeout.
package capture

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voice-reminder-assistant/internal/clock"
	"voice-reminder-assistant/internal/observability/logging"
	"voice-reminder-assistant/internal/observability/metrics"
	"voice-reminder-assistant/internal/service/permission"
	"voice-reminder-assistant/internal/service/recognizer"
)

// Config holds capture timing and recognition settings.
type Config struct {
	Language     string
	Interim      bool
	HardTimeout  time.Duration // caps one listening spell
	RestartDelay time.Duration // wait before reopening after a silence end
	FinalClose   time.Duration // silence after which listening is given up
}

// DefaultConfig returns sensible default capture settings.
func DefaultConfig() Config {
	return Config{
		Language:     "en-US",
		Interim:      true,
		HardTimeout:  30 * time.Second,
		RestartDelay: 5 * time.Second,
		FinalClose:   15 * time.Second,
	}
}

// Reason explains the most recent state change.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonStarted        Reason = "started"
	ReasonStopped        Reason = "stopped"
	ReasonSilenceRestart Reason = "silence_restart"
	ReasonSilenceClosed  Reason = "silence_closed"
	ReasonHardTimeout    Reason = "hard_timeout"
	ReasonError          Reason = "error"
	ReasonPermission     Reason = "permission"
)

// Snapshot is an immutable view of the session.
type Snapshot struct {
	Supported     bool              `json:"supported"`
	Permission    permission.Status `json:"permission"`
	Listening     bool              `json:"listening"`
	State         State             `json:"state"`
	Reason        Reason            `json:"reason,omitempty"`
	LastUtterance string            `json:"lastUtterance,omitempty"`
	Error         ErrorKind         `json:"error,omitempty"`
	PendingTimer  TimerKind         `json:"pendingTimer"`
}

// Observer receives session changes. Callbacks run after the session lock is
// released, so an observer may call back into the session.
type Observer interface {
	CaptureStateChanged(snap Snapshot)
	UtteranceRecognized(text string)
	CaptureFailed(kind ErrorKind)
}

// Marker is the platform-wide "microphone in use" flag.
type Marker interface {
	SetCaptureActive(active bool)
}

// Dependencies are the collaborators of a Session. Nil fields get defaults.
type Dependencies struct {
	Recognizer recognizer.Recognizer
	Permission permission.Capability
	Clock      clock.Clock
	Marker     Marker
	Metrics    *metrics.Metrics
}

// Session is the single capture session of the process.
type Session struct {
	cfg        Config
	recognizer recognizer.Recognizer
	permission permission.Capability
	clock      clock.Clock
	marker     Marker
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	// ctx outlives any single caller; streams are opened on it.
	ctx    context.Context
	cancel context.CancelFunc

	initOnce  sync.Once
	probeOnce sync.Once

	mu           sync.Mutex
	lifecycle    *Lifecycle
	supported    bool
	perm         permission.Status
	listening    bool
	utterance    string
	errKind      ErrorKind
	reason       Reason
	stream       recognizer.Stream
	streamGen    uint64
	timers       timerSlot
	listenStart  time.Time
	lastActivity time.Time
	closed       bool
	observers    map[int]Observer
	nextObserver int
}

// NewSession creates an idle capture session.
func NewSession(cfg Config, deps Dependencies) *Session {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.DefaultMetrics
	}
	if deps.Marker == nil {
		deps.Marker = deps.Metrics
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Session{
		cfg:        cfg,
		recognizer: deps.Recognizer,
		permission: deps.Permission,
		clock:      deps.Clock,
		marker:     deps.Marker,
		metrics:    deps.Metrics,
		logger:     logging.WithCapture(cfg.Language, providerName(deps.Recognizer)),
		ctx:        ctx,
		cancel:     cancel,
		lifecycle:  NewLifecycle(),
		timers:     timerSlot{clock: deps.Clock},
		observers:  make(map[int]Observer),
	}
}

func providerName(r recognizer.Recognizer) string {
	if named, ok := r.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "unknown"
}

// effects collects work that must run after the session lock is released.
type effects struct {
	notify []func(Observer)
	stop   []recognizer.Stream
}

func (e *effects) state(snap Snapshot) {
	e.notify = append(e.notify, func(o Observer) { o.CaptureStateChanged(snap) })
}

func (e *effects) utterance(text string) {
	e.notify = append(e.notify, func(o Observer) { o.UtteranceRecognized(text) })
}

func (e *effects) failure(kind ErrorKind) {
	e.notify = append(e.notify, func(o Observer) { o.CaptureFailed(kind) })
}

func (s *Session) apply(e *effects) {
	for _, stream := range e.stop {
		stream.Stop()
	}
	if len(e.notify) == 0 {
		return
	}

	s.mu.Lock()
	ids := make([]int, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	observers := make([]Observer, 0, len(ids))
	for _, id := range ids {
		observers = append(observers, s.observers[id])
	}
	s.mu.Unlock()

	for _, fn := range e.notify {
		for _, o := range observers {
			fn(o)
		}
	}
}

// Subscribe registers an observer and returns its unsubscribe function.
func (s *Session) Subscribe(o Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = o
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// Init checks platform support once and runs the one-time microphone probe.
// Safe to call repeatedly; StartListening calls it implicitly.
func (s *Session) Init(ctx context.Context) error {
	s.initOnce.Do(func() {
		supported := s.recognizer != nil && s.recognizer.Supported()

		var e effects
		s.mu.Lock()
		s.supported = supported
		if !supported {
			s.errKind = ErrorUnsupported
			e.failure(ErrorUnsupported)
			e.state(s.snapshotLocked())
		}
		s.mu.Unlock()
		s.apply(&e)

		if !supported {
			s.logger.Warn().Msg("Speech recognition not supported on this platform")
		}
	})

	s.mu.Lock()
	supported := s.supported
	s.mu.Unlock()
	if !supported {
		return ErrUnsupported
	}

	s.ensurePermission(ctx)

	s.mu.Lock()
	denied := s.perm == permission.StatusDenied
	s.mu.Unlock()
	if denied {
		return ErrPermissionDenied
	}
	return nil
}

func (s *Session) ensurePermission(ctx context.Context) {
	s.probeOnce.Do(func() {
		status := permission.StatusGranted
		if s.permission != nil {
			status = s.permission.RequestMicrophoneAccess(ctx)
		}

		var e effects
		s.mu.Lock()
		if s.perm != permission.StatusDenied {
			s.perm = status
		}
		if s.perm == permission.StatusDenied {
			s.errKind = ErrorPermissionDenied
			s.reason = ReasonPermission
			e.failure(ErrorPermissionDenied)
		}
		e.state(s.snapshotLocked())
		s.mu.Unlock()
		s.apply(&e)

		s.logger.Info().Str("permission", status.String()).Msg("Microphone permission probed")
	})
}

// StartListening opens a recognition stream and arms the hard timeout.
// It returns ErrAlreadyListening instead of toggling; use Toggle for that.
func (s *Session) StartListening(ctx context.Context) error {
	if err := s.Init(ctx); err != nil {
		return err
	}

	var e effects
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.perm == permission.StatusDenied:
		s.mu.Unlock()
		return ErrPermissionDenied
	case s.listening:
		s.mu.Unlock()
		return ErrAlreadyListening
	}

	now := s.clock.Now()
	s.utterance = ""
	s.errKind = ErrorNone
	s.listening = true
	s.listenStart = now
	s.lastActivity = now
	s.marker.SetCaptureActive(true)
	gen := s.beginStreamLocked(ReasonStarted, &e)
	s.mu.Unlock()
	s.apply(&e)

	s.logger.Debug().Str("language", s.cfg.Language).Msg("Listening started")
	return s.openStream(gen, false)
}

// StopListening halts the session synchronously: timers are cancelled, the
// marker cleared and listening=false before it returns. Idempotent.
func (s *Session) StopListening() {
	var e effects
	s.mu.Lock()
	if !s.listening && s.lifecycle.State() == StateIdle && s.timers.pending() == TimerNone {
		s.marker.SetCaptureActive(false)
		s.mu.Unlock()
		return
	}
	s.haltLocked(ReasonStopped, &e)
	s.mu.Unlock()
	s.apply(&e)

	s.logger.Debug().Msg("Listening stopped")
}

// Toggle stops when listening and starts otherwise. Returns the new listening flag.
func (s *Session) Toggle(ctx context.Context) (bool, error) {
	s.mu.Lock()
	listening := s.listening
	s.mu.Unlock()

	if listening {
		s.StopListening()
		return false, nil
	}
	if err := s.StartListening(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ClearUtterance acknowledges the last utterance.
func (s *Session) ClearUtterance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utterance = ""
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Ready reports whether listening can be requested at all.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.supported && s.perm != permission.StatusDenied && !s.closed
}

// Close stops the session and releases its context. Further starts fail.
func (s *Session) Close() {
	s.StopListening()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Supported:     s.supported,
		Permission:    s.perm,
		Listening:     s.listening,
		State:         s.lifecycle.State(),
		Reason:        s.reason,
		LastUtterance: s.utterance,
		Error:         s.errKind,
		PendingTimer:  s.timers.pending(),
	}
}

// beginStreamLocked moves to STARTING and invalidates any older stream.
func (s *Session) beginStreamLocked(reason Reason, e *effects) uint64 {
	if err := s.lifecycle.Transition(StateStarting); err != nil {
		s.logger.Warn().Err(err).Msg("Unexpected capture transition")
	}
	s.streamGen++
	s.reason = reason
	e.state(s.snapshotLocked())
	return s.streamGen
}

// openStream asks the recognizer for a stream outside the lock. A stop issued
// while Start was in flight wins: the late stream is stopped and dropped.
func (s *Session) openStream(gen uint64, restart bool) error {
	stream, err := s.recognizer.Start(s.ctx, recognizer.Config{
		Language:   s.cfg.Language,
		Continuous: true,
		Interim:    s.cfg.Interim,
	})

	var e effects
	s.mu.Lock()
	if gen != s.streamGen || !s.listening {
		s.mu.Unlock()
		if stream != nil {
			stream.Stop()
		}
		return nil
	}
	if err != nil {
		kind := classifyStartError(err)
		s.failLocked(kind, &e)
		s.mu.Unlock()
		s.apply(&e)
		s.logger.Error().Err(err).Str("kind", string(kind)).Msg("Failed to start recognition")
		return fmt.Errorf("start recognition: %w", err)
	}
	s.stream = stream
	s.metrics.RecordCaptureStart(restart)
	s.timers.arm(TimerHardTimeout, s.cfg.HardTimeout, s.onTimer)
	s.mu.Unlock()

	go s.pump(gen, stream)
	return nil
}

func (s *Session) pump(gen uint64, stream recognizer.Stream) {
	for ev := range stream.Events() {
		s.handleEvent(gen, ev)
	}
}

func (s *Session) handleEvent(gen uint64, ev recognizer.Event) {
	var e effects
	s.mu.Lock()
	if gen != s.streamGen {
		s.mu.Unlock()
		s.logger.Debug().Str("event", ev.Type.String()).Msg("Ignoring event from stale stream")
		return
	}

	switch ev.Type {
	case recognizer.EventStarted:
		if s.lifecycle.State() == StateStarting {
			_ = s.lifecycle.Transition(StateListening)
			e.state(s.snapshotLocked())
		}

	case recognizer.EventResult:
		s.metrics.RecordTranscript(ev.Final)
		text := strings.TrimSpace(ev.Transcript)
		if !ev.Final || text == "" {
			break
		}
		s.utterance = text
		s.lastActivity = s.clock.Now()
		e.utterance(text)

	case recognizer.EventEnded:
		// Anything the ended stream sends later is stale.
		s.stream = nil
		s.streamGen++
		s.scheduleRestartLocked(&e)

	case recognizer.EventError:
		kind := NormalizeCode(ev.Code)
		s.logger.Warn().Err(ev.Err).Str("code", ev.Code).Str("kind", string(kind)).Msg("Recognition error")
		s.failLocked(kind, &e)
	}
	s.mu.Unlock()
	s.apply(&e)
}

// scheduleRestartLocked arms restartDelay, or finalClose once the silence
// window would run out before the restart fires.
func (s *Session) scheduleRestartLocked(e *effects) {
	if !s.listening || s.lifecycle.State() == StateRestartPending {
		return
	}
	if err := s.lifecycle.Transition(StateRestartPending); err != nil {
		s.logger.Warn().Err(err).Msg("Unexpected capture transition")
	}

	silence := s.clock.Now().Sub(s.lastActivity)
	remaining := s.cfg.FinalClose - silence
	if remaining <= s.cfg.RestartDelay {
		if remaining < 0 {
			remaining = 0
		}
		s.timers.arm(TimerFinalClose, remaining, s.onTimer)
	} else {
		s.timers.arm(TimerRestartDelay, s.cfg.RestartDelay, s.onTimer)
	}
	s.reason = ReasonSilenceRestart
	e.state(s.snapshotLocked())
}

func (s *Session) onTimer(kind TimerKind, gen uint64) {
	var e effects
	restartGen := uint64(0)

	s.mu.Lock()
	if !s.timers.claim(gen) {
		s.mu.Unlock()
		return
	}
	switch kind {
	case TimerHardTimeout:
		s.metrics.RecordHardTimeout()
		s.metrics.RecordCaptureError(string(ErrorTimeout))
		s.errKind = ErrorTimeout
		e.failure(ErrorTimeout)
		s.haltLocked(ReasonHardTimeout, &e)
	case TimerRestartDelay:
		if s.listening {
			restartGen = s.beginStreamLocked(ReasonSilenceRestart, &e)
		}
	case TimerFinalClose:
		s.metrics.RecordSilenceClose()
		s.haltLocked(ReasonSilenceClosed, &e)
	}
	s.mu.Unlock()
	s.apply(&e)

	s.logger.Debug().Str("timer", kind.String()).Msg("Capture timer fired")
	if restartGen != 0 {
		_ = s.openStream(restartGen, true)
	}
}

func (s *Session) failLocked(kind ErrorKind, e *effects) {
	if s.lifecycle.CanTransition(StateError) {
		_ = s.lifecycle.Transition(StateError)
	}
	s.errKind = kind
	if kind == ErrorPermissionDenied {
		s.perm = permission.StatusDenied
	}
	s.metrics.RecordCaptureError(string(kind))
	e.failure(kind)
	s.haltLocked(ReasonError, e)
}

// haltLocked cancels timers, invalidates the stream and lands in IDLE.
func (s *Session) haltLocked(reason Reason, e *effects) {
	s.timers.cancel()
	s.streamGen++
	if s.stream != nil {
		e.stop = append(e.stop, s.stream)
		s.stream = nil
	}

	wasListening := s.listening
	s.listening = false
	s.marker.SetCaptureActive(false)
	if wasListening {
		s.metrics.RecordListeningEnded(s.clock.Now().Sub(s.listenStart).Seconds())
	}

	prev := s.lifecycle.State()
	if prev != StateIdle {
		_ = s.lifecycle.Transition(StateIdle)
	}
	s.reason = reason
	if prev != StateIdle || wasListening {
		e.state(s.snapshotLocked())
	}
}
