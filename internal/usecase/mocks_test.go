package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-match-bridge/internal/domain"
	"telegram-match-bridge/internal/domain/model"
	"telegram-match-bridge/internal/domain/ports/adapter"
	"telegram-match-bridge/internal/domain/ports/repository"
	"telegram-match-bridge/internal/infra/retry"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return &l
}

func testPolicy() retry.Policy {
	return retry.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

// ---- users ----

type memUserRepo struct {
	mu     sync.Mutex
	users  map[int64]*model.User
	nextID int64
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[int64]*model.User)}
}

func (r *memUserRepo) seed(id int64, points int) *model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := &model.User{ID: id, TelegramID: id * 100, Nickname: fmt.Sprintf("user%d", id), Points: points}
	r.users[id] = u
	return u
}

func (r *memUserRepo) Save(_ context.Context, _ any, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == 0 {
		r.nextID++
		user.ID = r.nextID + 1000
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *memUserRepo) FindByID(_ context.Context, _ any, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) FindByTelegramID(_ context.Context, _ any, tgID int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.TelegramID == tgID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memUserRepo) AdjustPoints(_ context.Context, _ any, userID int64, delta int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if u.Points+delta < 0 {
		return 0, domain.ErrInsufficientPoints
	}
	u.Points += delta
	return u.Points, nil
}

// ---- matches ----

type memMatchRepo struct {
	mu      sync.Mutex
	matches map[int64]*model.Match
	nextID  int64

	failSave error
}

func newMemMatchRepo() *memMatchRepo {
	return &memMatchRepo{matches: make(map[int64]*model.Match)}
}

func (r *memMatchRepo) seed(userA, userB, groupID int64) *model.Match {
	m, _ := model.NewMatch(userA, userB, groupID, 0.8, 5)
	_ = r.Save(context.Background(), nil, m)
	return m
}

func (r *memMatchRepo) Save(_ context.Context, _ any, m *model.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSave != nil {
		return r.failSave
	}
	if m.ID == 0 {
		r.nextID++
		m.ID = r.nextID
	}
	cp := *m
	r.matches[m.ID] = &cp
	return nil
}

func (r *memMatchRepo) FindByID(_ context.Context, _ any, id int64) (*model.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memMatchRepo) FindByPair(_ context.Context, _ any, userA, userB, groupID int64) (*model.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.matches {
		same := (m.UserAID == userA && m.UserBID == userB) || (m.UserAID == userB && m.UserBID == userA)
		if same && m.GroupID == groupID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memMatchRepo) FindByUser(_ context.Context, _ any, userID int64) ([]*model.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Match
	for _, m := range r.matches {
		if m.HasParticipant(userID) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memMatchRepo) UpdateStatus(_ context.Context, _ any, id int64, status model.MatchStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Status = status
	return nil
}

// ---- communication requests ----

type memRequestRepo struct {
	mu       sync.Mutex
	requests map[int64]*model.CommunicationRequest
	nextID   int64
}

func newMemRequestRepo() *memRequestRepo {
	return &memRequestRepo{requests: make(map[int64]*model.CommunicationRequest)}
}

func (r *memRequestRepo) Create(_ context.Context, _ any, req *model.CommunicationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.requests {
		if ex.MatchID == req.MatchID && ex.Status == model.RequestStatusPending {
			return domain.ErrAlreadyPending
		}
	}
	r.nextID++
	req.ID = r.nextID
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *memRequestRepo) FindByMatch(_ context.Context, _ any, matchID int64) (*model.CommunicationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *model.CommunicationRequest
	for _, req := range r.requests {
		if req.MatchID != matchID {
			continue
		}
		if latest == nil || req.ID > latest.ID {
			latest = req
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *memRequestRepo) UpdateStatusIf(_ context.Context, _ any, requestID int64, expected, next model.CommunicationRequestStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[requestID]
	if !ok || req.Status != expected {
		return false, nil
	}
	req.Status = next
	req.UpdatedAt = time.Now()
	return true, nil
}

func (r *memRequestRepo) ExpirePendingBefore(_ context.Context, _ any, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, req := range r.requests {
		if req.Status == model.RequestStatusPending && req.CreatedAt.Before(cutoff) {
			req.Status = model.RequestStatusExpired
			n++
		}
	}
	return n, nil
}

// ---- chat sessions ----

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.AnonymousChatSession
	messages []*model.ChatMessage

	failSaveMessage error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*model.AnonymousChatSession)}
}

func (r *memSessionRepo) seedActive(sessionID string, initiator, recipient, matchID int64) *model.AnonymousChatSession {
	s, _ := model.NewAnonymousChatSession(sessionID, initiator, recipient, matchID)
	s.Status = model.ChatSessionActive
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = s
	return s
}

func (r *memSessionRepo) Save(_ context.Context, _ any, s *model.AnonymousChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.SessionID] = &cp
	return nil
}

func (r *memSessionRepo) FindBySessionID(_ context.Context, _ any, sessionID string) (*model.AnonymousChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) FindByMatch(_ context.Context, _ any, matchID int64) (*model.AnonymousChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *model.AnonymousChatSession
	for _, s := range r.sessions {
		if s.MatchID != matchID {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *memSessionRepo) FindActiveByUser(_ context.Context, _ any, userID int64) ([]*model.AnonymousChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.AnonymousChatSession
	for _, s := range r.sessions {
		if s.Status == model.ChatSessionActive && s.HasParticipant(userID) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memSessionRepo) UpdateStatusIf(_ context.Context, _ any, sessionID string, expected, next model.ChatSessionStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.Status != expected {
		return false, nil
	}
	s.Status = next
	if next == model.ChatSessionEnded {
		now := time.Now()
		s.EndedAt = &now
	}
	return true, nil
}

func (r *memSessionRepo) TouchActivity(_ context.Context, _ any, sessionID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return domain.ErrNotFound
	}
	if at.After(s.LastActivity) {
		s.LastActivity = at
	}
	return nil
}

func (r *memSessionRepo) EndIdleBefore(_ context.Context, _ any, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.Status == model.ChatSessionActive && s.LastActivity.Before(cutoff) {
			s.Status = model.ChatSessionEnded
			now := time.Now()
			s.EndedAt = &now
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) SaveMessage(_ context.Context, _ any, msg *model.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSaveMessage != nil {
		return r.failSaveMessage
	}
	cp := *msg
	r.messages = append(r.messages, &cp)
	return nil
}

func (r *memSessionRepo) Messages(_ context.Context, _ any, sessionID string, limit int) ([]*model.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ChatMessage
	for _, m := range r.messages {
		if m.SessionID == sessionID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *memSessionRepo) MarkRead(_ context.Context, _ any, sessionID string, readerID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.messages {
		if m.SessionID == sessionID && m.SenderID != readerID && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) UnreadCount(_ context.Context, _ any, sessionID string, userID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.SessionID == sessionID && m.SenderID != userID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

// ---- adapters ----

type sentMessage struct {
	identity   adapter.BotIdentity
	telegramID int64
	text       string
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	fail error
}

func (f *fakeMessenger) SendMessage(_ context.Context, identity adapter.BotIdentity, telegramID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, sentMessage{identity: identity, telegramID: telegramID, text: text})
	return nil
}

func (f *fakeMessenger) SendButtons(ctx context.Context, identity adapter.BotIdentity, telegramID int64, text string, _ [][]adapter.InlineButton) error {
	return f.SendMessage(ctx, identity, telegramID, text)
}

func (f *fakeMessenger) sentTo(telegramID int64) []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentMessage
	for _, m := range f.sent {
		if m.telegramID == telegramID {
			out = append(out, m)
		}
	}
	return out
}

type fakeMatcher struct {
	candidates []model.MatchCandidate
	err        error
	calls      int
}

func (f *fakeMatcher) FindCandidates(context.Context, int64, int64) ([]model.MatchCandidate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

// fakeLocker hands out the lock to exactly one holder per key at a time.
type fakeLocker struct {
	mu   sync.Mutex
	held map[string]string
	fail bool
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: make(map[string]string)} }

func (f *fakeLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", errors.New("lock held")
	}
	if _, busy := f.held[key]; busy {
		return "", errors.New("lock held")
	}
	token := fmt.Sprintf("tok-%d", len(f.held)+1)
	f.held[key] = token
	return token, nil
}

func (f *fakeLocker) Unlock(_ context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] == token {
		delete(f.held, key)
	}
	return nil
}

type fakeLimiter struct {
	allow bool
	err   error
}

func (f *fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return f.allow, f.err
}

type memCache struct {
	mu       sync.Mutex
	sessions map[string]*model.AnonymousChatSession
}

func newMemCache() *memCache {
	return &memCache{sessions: make(map[string]*model.AnonymousChatSession)}
}

func (c *memCache) StoreSession(_ context.Context, s *model.AnonymousChatSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *s
	c.sessions[s.SessionID] = &cp
	return nil
}

func (c *memCache) GetSession(_ context.Context, sessionID string) (*model.AnonymousChatSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (c *memCache) DeleteSession(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	return nil
}

// memTxManager runs the callback directly; the in-memory repos have no
// transaction semantics to exercise.
type memTxManager struct{}

func (memTxManager) WithTx(ctx context.Context, fn func(ctx context.Context, qx repository.Tx) error) error {
	return fn(ctx, nil)
}

type staticLinks struct{}

func (staticLinks) ChatLink(sessionID string) string {
	return "https://t.me/TestCommunicatorBot?start=chat_" + sessionID
}
