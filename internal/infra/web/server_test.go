package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"telegram-match-bridge/internal/domain"
	"telegram-match-bridge/internal/domain/model"
)

type fakeSessionRepo struct {
	session  *model.AnonymousChatSession
	messages []*model.ChatMessage
}

func (f *fakeSessionRepo) Save(context.Context, any, *model.AnonymousChatSession) error { return nil }
func (f *fakeSessionRepo) FindBySessionID(_ context.Context, _ any, id string) (*model.AnonymousChatSession, error) {
	if f.session == nil || f.session.SessionID != id {
		return nil, domain.ErrNotFound
	}
	return f.session, nil
}
func (f *fakeSessionRepo) FindByMatch(context.Context, any, int64) (*model.AnonymousChatSession, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeSessionRepo) FindActiveByUser(context.Context, any, int64) ([]*model.AnonymousChatSession, error) {
	return nil, nil
}
func (f *fakeSessionRepo) UpdateStatusIf(context.Context, any, string, model.ChatSessionStatus, model.ChatSessionStatus) (bool, error) {
	return false, nil
}
func (f *fakeSessionRepo) TouchActivity(context.Context, any, string, time.Time) error { return nil }
func (f *fakeSessionRepo) EndIdleBefore(context.Context, any, time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeSessionRepo) SaveMessage(context.Context, any, *model.ChatMessage) error { return nil }
func (f *fakeSessionRepo) Messages(context.Context, any, string, int) ([]*model.ChatMessage, error) {
	return f.messages, nil
}
func (f *fakeSessionRepo) MarkRead(context.Context, any, string, int64) (int64, error) {
	return 0, nil
}
func (f *fakeSessionRepo) UnreadCount(context.Context, any, string, int64) (int, error) {
	return 0, nil
}

func newTestServer(repo *fakeSessionRepo) (*Server, *AuthManager) {
	l := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	auth := NewAuthManager("test-secret", time.Minute)
	return NewServer(repo, auth, &l), auth
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(&fakeSessionRepo{})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestSessionsRequireAuth(t *testing.T) {
	srv, _ := newTestServer(&fakeSessionRepo{})
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without a token", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 for a bad token", rec.Code)
	}
}

func TestGetSessionHidesParticipants(t *testing.T) {
	s, _ := model.NewAnonymousChatSession("abc", 1, 2, 5)
	srv, auth := newTestServer(&fakeSessionRepo{session: s})
	tok, err := auth.Mint()
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["session_id"] != "abc" {
		t.Fatalf("session_id = %v", body["session_id"])
	}
	for _, hidden := range []string{"initiator_id", "recipient_id"} {
		if _, leaked := body[hidden]; leaked {
			t.Fatalf("%s must not appear in the ops view", hidden)
		}
	}
}

func TestGetMessagesMetadataOnly(t *testing.T) {
	s, _ := model.NewAnonymousChatSession("abc", 1, 2, 5)
	repo := &fakeSessionRepo{
		session:  s,
		messages: []*model.ChatMessage{model.NewChatMessage("abc", 1, model.ContentTypeText, "secret text")},
	}
	srv, auth := newTestServer(repo)
	tok, _ := auth.Mint()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/abc/messages", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); strings.Contains(got, "secret text") || strings.Contains(got, "sender_id") {
		t.Fatalf("response leaks message content or sender: %s", got)
	}
}
