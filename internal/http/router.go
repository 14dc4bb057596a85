package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"voice-reminder-assistant/internal/models"
	"voice-reminder-assistant/internal/observability/logging"
	"voice-reminder-assistant/internal/service/capture"
	"voice-reminder-assistant/internal/service/dialogue"
	"voice-reminder-assistant/internal/service/temporal"
)

// defaultSpeechTest is spoken by the speech test when no text is given.
const defaultSpeechTest = "This is a speech test."

// Assistant is the dialogue surface of the control API.
type Assistant interface {
	Start(ctx context.Context) (dialogue.Snapshot, error)
	Cancel() bool
	Snapshot() dialogue.Snapshot
	Active() bool
}

// Capture is the microphone surface of the control API.
type Capture interface {
	Snapshot() capture.Snapshot
	Toggle(ctx context.Context) (bool, error)
	Ready() bool
}

// Speaker speaks test phrases.
type Speaker interface {
	Speak(ctx context.Context, text string) bool
}

// Reminders lists stored reminders.
type Reminders interface {
	Recent(n int) []models.Reminder
}

// Dependencies are the services behind the router.
type Dependencies struct {
	Assistant Assistant
	Capture   Capture
	Speaker   Speaker
	Reminders Reminders
	Parser    *temporal.Parser
	Now       func() time.Time
}

type handlers struct {
	deps   Dependencies
	logger zerolog.Logger
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(deps Dependencies) http.Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Parser == nil {
		deps.Parser = temporal.NewParser(nil)
	}
	h := &handlers{deps: deps, logger: logging.WithComponent("http")}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !deps.Capture.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Route("/assistant", func(r chi.Router) {
			r.Get("/", h.assistantStatus)
			r.Post("/start", h.assistantStart)
			r.Post("/cancel", h.assistantCancel)
		})
		r.Route("/capture", func(r chi.Router) {
			r.Get("/", h.captureStatus)
			r.Post("/toggle", h.captureToggle)
		})
		r.Post("/speech/test", h.speechTest)
		r.Get("/reminders", h.reminders)
		r.Get("/temporal/date", h.resolveDate)
		r.Get("/temporal/time", h.resolveTime)
	})

	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (h *handlers) assistantStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Assistant.Snapshot())
}

func (h *handlers) assistantStart(w http.ResponseWriter, r *http.Request) {
	if !h.deps.Capture.Ready() {
		writeError(w, http.StatusServiceUnavailable, "speech capture unavailable")
		return
	}
	snap, err := h.deps.Assistant.Start(r.Context())
	switch {
	case errors.Is(err, dialogue.ErrAlreadyActive):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		h.logger.Error().Err(err).Msg("Failed to start dialogue")
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, snap)
	}
}

func (h *handlers) assistantCancel(w http.ResponseWriter, _ *http.Request) {
	if !h.deps.Assistant.Cancel() {
		writeError(w, http.StatusConflict, "no active dialogue")
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Assistant.Snapshot())
}

func (h *handlers) captureStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Capture.Snapshot())
}

type toggleResponse struct {
	Listening bool             `json:"listening"`
	Capture   capture.Snapshot `json:"capture"`
}

// captureToggle is the manual microphone test. It is refused during a dialogue.
func (h *handlers) captureToggle(w http.ResponseWriter, r *http.Request) {
	if h.deps.Assistant.Active() {
		writeError(w, http.StatusConflict, "dialogue in progress")
		return
	}
	listening, err := h.deps.Capture.Toggle(r.Context())
	if err != nil {
		writeError(w, captureErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{Listening: listening, Capture: h.deps.Capture.Snapshot()})
}

func captureErrorStatus(err error) int {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, capture.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, capture.ErrAlreadyListening):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type speechTestRequest struct {
	Text string `json:"text"`
}

// speechTest speaks a phrase in the background. It is refused during a dialogue.
func (h *handlers) speechTest(w http.ResponseWriter, r *http.Request) {
	if h.deps.Assistant.Active() {
		writeError(w, http.StatusConflict, "dialogue in progress")
		return
	}
	var req speechTestRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		text = defaultSpeechTest
	}

	ctx := context.WithoutCancel(r.Context())
	go h.deps.Speaker.Speak(ctx, text)
	writeJSON(w, http.StatusAccepted, speechTestRequest{Text: text})
}

func (h *handlers) reminders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.deps.Reminders.Recent(limit))
}

// now returns the reference instant from the optional "now" RFC 3339 parameter.
func (h *handlers) now(r *http.Request) (time.Time, bool) {
	v := r.URL.Query().Get("now")
	if v == "" {
		return h.deps.Now(), true
	}
	t, err := time.Parse(time.RFC3339, v)
	return t, err == nil
}

// parser honors the optional "lang" parameter.
func (h *handlers) parser(r *http.Request) *temporal.Parser {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return temporal.NewParser(temporal.ForLanguage(lang))
	}
	return h.deps.Parser
}

func (h *handlers) resolveDate(w http.ResponseWriter, r *http.Request) {
	now, ok := h.now(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid now")
		return
	}
	writeJSON(w, http.StatusOK, h.parser(r).ResolveDate(r.URL.Query().Get("text"), now))
}

func (h *handlers) resolveTime(w http.ResponseWriter, r *http.Request) {
	now, ok := h.now(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid now")
		return
	}
	writeJSON(w, http.StatusOK, h.parser(r).ResolveTime(r.URL.Query().Get("text"), now))
}
