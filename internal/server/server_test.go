package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"voiceorb/internal/config"
	"voiceorb/internal/domain"
)

func TestStatusReturnsControllerAndBoard(t *testing.T) {
	t.Parallel()

	controller := &fakeController{status: domain.Status{
		SessionID:    "abc",
		Active:       true,
		Connection:   domain.ConnectionConnected,
		Conversation: domain.ConversationListening,
	}}
	board := NewStatusBoard()
	board.ConversationChanged(domain.ConversationListening)
	srv := newTestServer(controller, board)

	rec := serve(srv, http.MethodGet, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}

	var resp struct {
		Success bool       `json:"success"`
		Data    StatusView `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !resp.Success || resp.Data.Status.SessionID != "abc" || resp.Data.Board.StateText != "Listening..." {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestStartAndStopDriveController(t *testing.T) {
	t.Parallel()

	controller := &fakeController{}
	srv := newTestServer(controller, NewStatusBoard())

	if rec := serve(srv, http.MethodPost, "/api/session/start"); rec.Code != http.StatusOK {
		t.Fatalf("unexpected start code: %d", rec.Code)
	}
	if rec := serve(srv, http.MethodPost, "/api/session/stop"); rec.Code != http.StatusOK {
		t.Fatalf("unexpected stop code: %d", rec.Code)
	}

	starts, stops := controller.counts()
	if starts != 1 || stops != 1 {
		t.Fatalf("unexpected calls: starts=%d stops=%d", starts, stops)
	}
}

func TestStartFailureReturnsUnavailable(t *testing.T) {
	t.Parallel()

	controller := &fakeController{startErr: errors.New("microphone unavailable")}
	srv := newTestServer(controller, NewStatusBoard())

	rec := serve(srv, http.MethodPost, "/api/session/start")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected code: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "microphone unavailable") {
		t.Fatalf("expected error detail in body: %s", rec.Body.String())
	}
}

func TestHealthMetricsAndPage(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeController{}, NewStatusBoard())

	if rec := serve(srv, http.MethodGet, "/healthz"); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health response: %d %q", rec.Code, rec.Body.String())
	}
	if rec := serve(srv, http.MethodGet, "/metrics"); rec.Code != http.StatusOK {
		t.Fatalf("unexpected metrics code: %d", rec.Code)
	}
	rec := serve(srv, http.MethodGet, "/")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "orb") {
		t.Fatalf("unexpected page response: %d %q", rec.Code, rec.Body.String())
	}
}

func newTestServer(controller Controller, board *StatusBoard) *Server {
	assets := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html><body><div class=\"orb\"></div></body></html>")},
	}
	return New(config.ServerConfig{Host: "127.0.0.1", Port: 3001}, controller, board, assets)
}

func serve(srv *Server, method string, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

type fakeController struct {
	mu       sync.Mutex
	status   domain.Status
	startErr error
	starts   int
	stops    int
}

func (f *fakeController) Start(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.status.Active = true
	return nil
}

func (f *fakeController) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.status.Active = false
	return nil
}

func (f *fakeController) Status() domain.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeController) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}
