package adminhttp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"relay/internal/manager"
	"relay/internal/model"
	"relay/internal/room"
)

// newTestManager wires a Manager whose Drain is pumped by a background
// ticker, so the admin handlers' blocking submit calls resolve quickly
// instead of waiting out the full reply timeout.
func newTestManager(t *testing.T) *manager.Manager {
	t.Helper()
	mgr := manager.New(
		func(id model.RoomId) *room.Room { return room.New(id) },
		func(model.RoomId, model.MemberId, model.AccessGroups) error { return nil },
		func(model.RoomId, model.MemberId) {},
		func(time.Duration) {},
	)
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				mgr.Drain()
			}
		}
	}()
	return mgr
}

func TestHandleHealthReportsOK(t *testing.T) {
	s := New(newTestManager(t))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	if err := s.handleHealth(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field: got %v, want ok", body["status"])
	}
}

func TestHandleVersionReportsVersion(t *testing.T) {
	s := New(newTestManager(t))

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	if err := s.handleVersion(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["version"] != version {
		t.Errorf("version field: got %q, want %q", body["version"], version)
	}
}

func TestHandleRoomsReflectsCreatedRooms(t *testing.T) {
	mgr := newTestManager(t)
	if _, err := mgr.CreateRoom(); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	s := New(mgr)

	req := httptest.NewRequest(http.MethodGet, "/debugz/rooms", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	if err := s.handleRooms(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rooms, ok := body["rooms"].([]any)
	if !ok || len(rooms) != 1 {
		t.Errorf("rooms: got %v, want one entry", body["rooms"])
	}
}

func TestHandleDumpReturnsText(t *testing.T) {
	s := New(newTestManager(t))

	req := httptest.NewRequest(http.MethodGet, "/debugz/dump", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	if err := s.handleDump(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.Len() == 0 {
		t.Error("expected non-empty dump body")
	}
}
