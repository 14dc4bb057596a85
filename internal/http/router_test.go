package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"voice-reminder-assistant/internal/models"
	"voice-reminder-assistant/internal/service/capture"
	"voice-reminder-assistant/internal/service/dialogue"
	"voice-reminder-assistant/internal/service/permission"
)

type fakeAssistant struct {
	active    bool
	started   int
	cancelled int
}

func (a *fakeAssistant) Start(context.Context) (dialogue.Snapshot, error) {
	if a.active {
		return dialogue.Snapshot{}, dialogue.ErrAlreadyActive
	}
	a.active = true
	a.started++
	return dialogue.Snapshot{ID: "dlg-1", State: dialogue.StateAskingTopic}, nil
}

func (a *fakeAssistant) Cancel() bool {
	if !a.active {
		return false
	}
	a.active = false
	a.cancelled++
	return true
}

func (a *fakeAssistant) Snapshot() dialogue.Snapshot {
	if a.active {
		return dialogue.Snapshot{ID: "dlg-1", State: dialogue.StateAskingTopic}
	}
	return dialogue.Snapshot{State: dialogue.StateIdle}
}

func (a *fakeAssistant) Active() bool { return a.active }

type fakeCapture struct {
	ready     bool
	listening bool
	err       error
	toggles   int
}

func (c *fakeCapture) Snapshot() capture.Snapshot {
	return capture.Snapshot{Supported: c.ready, Permission: permission.StatusGranted, Listening: c.listening}
}

func (c *fakeCapture) Toggle(context.Context) (bool, error) {
	c.toggles++
	if c.err != nil {
		return false, c.err
	}
	c.listening = !c.listening
	return c.listening, nil
}

func (c *fakeCapture) Ready() bool { return c.ready }

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
	done   chan struct{}
}

func (s *fakeSpeaker) Speak(_ context.Context, text string) bool {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
	s.done <- struct{}{}
	return true
}

type fakeReminders struct {
	items []models.Reminder
}

func (r *fakeReminders) Recent(n int) []models.Reminder {
	if n <= 0 || n > len(r.items) {
		return r.items
	}
	return r.items[:n]
}

type fixture struct {
	assistant *fakeAssistant
	capture   *fakeCapture
	speaker   *fakeSpeaker
	handler   http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		assistant: &fakeAssistant{},
		capture:   &fakeCapture{ready: true},
		speaker:   &fakeSpeaker{done: make(chan struct{}, 4)},
	}
	f.handler = NewRouter(Dependencies{
		Assistant: f.assistant,
		Capture:   f.capture,
		Speaker:   f.speaker,
		Reminders: &fakeReminders{items: []models.Reminder{{ID: "rem-2"}, {ID: "rem-1"}}},
		Now:       func() time.Time { return time.Date(2026, 10, 14, 16, 45, 0, 0, time.UTC) },
	})
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture()

	if rec := f.do(http.MethodGet, "/v1/liveness", ""); rec.Code != http.StatusOK {
		t.Errorf("expected liveness 200, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/v1/readiness", ""); rec.Code != http.StatusOK {
		t.Errorf("expected readiness 200, got %d", rec.Code)
	}

	f.capture.ready = false
	if rec := f.do(http.MethodGet, "/v1/readiness", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected readiness 503, got %d", rec.Code)
	}
}

func TestAssistantStartAndCancel(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/v1/assistant/start", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	var snap struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	decode(t, rec, &snap)
	if snap.ID != "dlg-1" || snap.State != "ASKING_TOPIC" {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	if rec := f.do(http.MethodPost, "/v1/assistant/start", ""); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for second start, got %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/v1/assistant", "")
	decode(t, rec, &snap)
	if snap.State != "ASKING_TOPIC" {
		t.Errorf("expected active status, got %+v", snap)
	}

	if rec := f.do(http.MethodPost, "/v1/assistant/cancel", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200 for cancel, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/v1/assistant/cancel", ""); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 with nothing to cancel, got %d", rec.Code)
	}
	if f.assistant.started != 1 || f.assistant.cancelled != 1 {
		t.Errorf("expected one start and one cancel, got %d/%d", f.assistant.started, f.assistant.cancelled)
	}
}

func TestAssistantStart_CaptureUnavailable(t *testing.T) {
	f := newFixture()
	f.capture.ready = false

	if rec := f.do(http.MethodPost, "/v1/assistant/start", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	if f.assistant.started != 0 {
		t.Error("expected no dialogue started")
	}
}

func TestCaptureToggle(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/v1/capture/toggle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Listening bool `json:"listening"`
	}
	decode(t, rec, &resp)
	if !resp.Listening {
		t.Error("expected listening after toggle")
	}

	f.capture.err = capture.ErrPermissionDenied
	if rec := f.do(http.MethodPost, "/v1/capture/toggle", ""); rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 on denial, got %d", rec.Code)
	}
}

func TestCaptureToggle_RefusedDuringDialogue(t *testing.T) {
	f := newFixture()
	f.assistant.active = true

	if rec := f.do(http.MethodPost, "/v1/capture/toggle", ""); rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	if f.capture.toggles != 0 {
		t.Error("expected capture untouched during a dialogue")
	}
}

func TestCaptureStatus(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodGet, "/v1/capture", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"supported":true`) {
		t.Errorf("expected capture snapshot, got %s", rec.Body.String())
	}
}

func TestSpeechTest(t *testing.T) {
	f := newFixture()

	if rec := f.do(http.MethodPost, "/v1/speech/test", `{"text":"hello there"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/v1/speech/test", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-f.speaker.done:
		case <-time.After(time.Second):
			t.Fatal("expected speech to run")
		}
	}

	f.speaker.mu.Lock()
	spoken := append([]string(nil), f.speaker.spoken...)
	f.speaker.mu.Unlock()
	if len(spoken) != 2 {
		t.Fatalf("expected 2 phrases, got %v", spoken)
	}
	got := map[string]bool{spoken[0]: true, spoken[1]: true}
	if !got["hello there"] || !got[defaultSpeechTest] {
		t.Errorf("unexpected phrases %v", spoken)
	}

	if rec := f.do(http.MethodPost, "/v1/speech/test", `{bad`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid body, got %d", rec.Code)
	}

	f.assistant.active = true
	if rec := f.do(http.MethodPost, "/v1/speech/test", ""); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 during dialogue, got %d", rec.Code)
	}
}

func TestReminders(t *testing.T) {
	f := newFixture()

	var items []models.Reminder
	rec := f.do(http.MethodGet, "/v1/reminders?limit=1", "")
	decode(t, rec, &items)
	if len(items) != 1 || items[0].ID != "rem-2" {
		t.Errorf("expected newest reminder, got %v", items)
	}

	if rec := f.do(http.MethodGet, "/v1/reminders?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid limit, got %d", rec.Code)
	}
}

func TestTemporalEndpoints(t *testing.T) {
	f := newFixture()

	var date struct {
		Date     string `json:"date"`
		Resolved bool   `json:"resolved"`
		Rule     string `json:"rule"`
	}
	decode(t, f.do(http.MethodGet, "/v1/temporal/date?text=tomorrow", ""), &date)
	if !date.Resolved || date.Date != "2026-10-15" {
		t.Errorf("expected tomorrow to resolve to 2026-10-15, got %+v", date)
	}

	decode(t, f.do(http.MethodGet, "/v1/temporal/date?text=tomorrow&now=2026-12-31T10:00:00Z", ""), &date)
	if date.Date != "2027-01-01" {
		t.Errorf("expected year rollover, got %+v", date)
	}

	var clock struct {
		Time     string `json:"time"`
		Resolved bool   `json:"resolved"`
	}
	decode(t, f.do(http.MethodGet, "/v1/temporal/time?text=14:30", ""), &clock)
	if !clock.Resolved || !strings.HasPrefix(clock.Time, "14:30") {
		t.Errorf("expected 14:30, got %+v", clock)
	}

	decode(t, f.do(http.MethodGet, "/v1/temporal/date?text=yar%C4%B1n&lang=tr-TR", ""), &date)
	if !date.Resolved || date.Date != "2026-10-15" {
		t.Errorf("expected Turkish tomorrow, got %+v", date)
	}

	if rec := f.do(http.MethodGet, "/v1/temporal/date?text=today&now=yesterday", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid now, got %d", rec.Code)
	}
}
