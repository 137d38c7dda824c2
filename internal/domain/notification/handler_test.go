package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/aura-health/aura/internal/platform/auth"
	"github.com/aura-health/aura/internal/platform/channel"
)

func newTestServer(repo Repository) (*echo.Echo, *Service) {
	e := echo.New()
	svc := NewService(repo, channel.NewRegistry[*Notification](), zerolog.Nop())
	h := NewHandler(svc)
	api := e.Group("/api", auth.DevMiddleware())
	h.RegisterRoutes(api)
	return e, svc
}

func doRequest(e *echo.Echo, method, target, user, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("X-User-ID", user)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreate(t *testing.T) {
	e, _ := newTestServer(newMockRepo())

	rec := doRequest(e, http.MethodPost, "/api/notifications", "staff-1",
		`{"recipient_id":"user-1","title":"Results ready","message":"see portal","type":"analysis_complete"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var n Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &n); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if n.RecipientID == nil || *n.RecipientID != "user-1" {
		t.Errorf("recipient = %v", n.RecipientID)
	}
	if n.Read {
		t.Error("new notification must be unread")
	}
}

func TestHandlerCreateRejectsMissingTitle(t *testing.T) {
	e, _ := newTestServer(newMockRepo())
	rec := doRequest(e, http.MethodPost, "/api/notifications", "staff-1", `{"message":"m"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandlerListScopedToCaller(t *testing.T) {
	e, svc := newTestServer(newMockRepo())
	ctx := context.Background()

	svc.Create(ctx, &Notification{RecipientID: strptr("user-1"), Title: "mine", Message: "m"})
	svc.Create(ctx, &Notification{RecipientID: strptr("user-2"), Title: "theirs", Message: "m"})
	svc.Create(ctx, &Notification{Title: "global", Message: "m"})

	rec := doRequest(e, http.MethodGet, "/api/notifications", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var items []*Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2 (own + global)", len(items))
	}
	for _, n := range items {
		if !n.For("user-1") {
			t.Errorf("leaked notification %q", n.Title)
		}
	}
}

func TestHandlerMarkReadInvalidID(t *testing.T) {
	e, _ := newTestServer(newMockRepo())
	rec := doRequest(e, http.MethodPost, "/api/notifications/not-a-uuid/read", "user-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandlerMarkReadFlow(t *testing.T) {
	e, svc := newTestServer(newMockRepo())
	n, _ := svc.Create(context.Background(), &Notification{RecipientID: strptr("user-1"), Title: "t", Message: "m"})

	rec := doRequest(e, http.MethodPost, "/api/notifications/"+n.ID.String()+"/read", "user-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]bool
	json.Unmarshal(rec.Body.Bytes(), &body)
	if !body["updated"] {
		t.Error("first mark should report updated=true")
	}

	rec = doRequest(e, http.MethodPost, "/api/notifications/"+n.ID.String()+"/read", "user-1", "")
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["updated"] {
		t.Error("second mark should report updated=false")
	}
}

func TestHandlerUnreadCountAndMarkAll(t *testing.T) {
	e, svc := newTestServer(newMockRepo())
	ctx := context.Background()
	svc.Create(ctx, &Notification{RecipientID: strptr("user-1"), Title: "a", Message: "m"})
	svc.Create(ctx, &Notification{Title: "global", Message: "m"})

	rec := doRequest(e, http.MethodGet, "/api/notifications/unread-count", "user-1", "")
	var count map[string]int
	json.Unmarshal(rec.Body.Bytes(), &count)
	if count["unread"] != 2 {
		t.Errorf("unread = %d, want 2", count["unread"])
	}

	rec = doRequest(e, http.MethodPost, "/api/notifications/read-all", "user-1", "")
	var updated map[string]int
	json.Unmarshal(rec.Body.Bytes(), &updated)
	if updated["updated"] != 2 {
		t.Errorf("updated = %d, want 2", updated["updated"])
	}

	rec = doRequest(e, http.MethodGet, "/api/notifications/unread-count", "user-1", "")
	json.Unmarshal(rec.Body.Bytes(), &count)
	if count["unread"] != 0 {
		t.Errorf("unread after read-all = %d, want 0", count["unread"])
	}
}

func TestHandlerStreamDeliversAndEndsOnDisconnect(t *testing.T) {
	e, svc := newTestServer(newMockRepo())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/notifications/stream", nil).WithContext(ctx)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		e.ServeHTTP(rec, req)
		close(done)
	}()

	// Wait for the subscription to attach, then publish.
	deadline := time.Now().Add(2 * time.Second)
	for svc.Registry().Get("user-1").SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(time.Millisecond)
	}
	svc.Create(context.Background(), &Notification{RecipientID: strptr("user-1"), Title: "live-item", Message: "m"})

	// Give the write pump a moment, then disconnect.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not return after disconnect")
	}

	body := rec.Body.String()
	if !strings.Contains(body, "live-item") {
		t.Errorf("stream body missing published notification: %q", body)
	}
	if !strings.Contains(body, "data: ") {
		t.Errorf("stream body not SSE-framed: %q", body)
	}

	// Disconnect released the attachments.
	if n := svc.Registry().Get("user-1").SubscriberCount(); n != 0 {
		t.Errorf("subscribers after disconnect = %d, want 0", n)
	}
}

func TestHandlerStreamSurvivesStoreOutage(t *testing.T) {
	repo := newMockRepo()
	repo.failList = true
	e, svc := newTestServer(repo)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/notifications/stream", nil).WithContext(ctx)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		e.ServeHTTP(rec, req)
		close(done)
	}()

	// The feed opens with an empty replay instead of failing.
	deadline := time.Now().Add(2 * time.Second)
	for svc.Registry().Get("user-1").SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed despite store outage")
		}
		time.Sleep(time.Millisecond)
	}
	svc.Create(context.Background(), &Notification{RecipientID: strptr("user-1"), Title: "after-outage", Message: "m"})

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream handler did not return after disconnect")
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "after-outage") {
		t.Errorf("live item missing from stream: %q", rec.Body.String())
	}
}
