package application

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"telegram-match-bridge/internal/domain"
	"telegram-match-bridge/internal/domain/model"
	"telegram-match-bridge/internal/domain/ports/adapter"
	"telegram-match-bridge/internal/usecase"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return &l
}

// ---- minimal fakes ----

type fakeUsers struct {
	byTg map[int64]*model.User
}

func (f *fakeUsers) Save(_ context.Context, _ any, u *model.User) error {
	if u.ID == 0 {
		u.ID = int64(len(f.byTg) + 1)
	}
	f.byTg[u.TelegramID] = u
	return nil
}

func (f *fakeUsers) FindByID(_ context.Context, _ any, id int64) (*model.User, error) {
	for _, u := range f.byTg {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUsers) FindByTelegramID(_ context.Context, _ any, tgID int64) (*model.User, error) {
	u, ok := f.byTg[tgID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) AdjustPoints(_ context.Context, _ any, _ int64, _ int) (int, error) {
	return 0, nil
}

type fakeSessions struct {
	active []*model.AnonymousChatSession
}

func (f *fakeSessions) Save(context.Context, any, *model.AnonymousChatSession) error { return nil }
func (f *fakeSessions) FindBySessionID(context.Context, any, string) (*model.AnonymousChatSession, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeSessions) FindByMatch(context.Context, any, int64) (*model.AnonymousChatSession, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeSessions) FindActiveByUser(_ context.Context, _ any, userID int64) ([]*model.AnonymousChatSession, error) {
	var out []*model.AnonymousChatSession
	for _, s := range f.active {
		if s.HasParticipant(userID) {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeSessions) UpdateStatusIf(context.Context, any, string, model.ChatSessionStatus, model.ChatSessionStatus) (bool, error) {
	return true, nil
}
func (f *fakeSessions) TouchActivity(context.Context, any, string, time.Time) error { return nil }
func (f *fakeSessions) EndIdleBefore(context.Context, any, time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeSessions) SaveMessage(context.Context, any, *model.ChatMessage) error { return nil }
func (f *fakeSessions) Messages(context.Context, any, string, int) ([]*model.ChatMessage, error) {
	return nil, nil
}
func (f *fakeSessions) MarkRead(context.Context, any, string, int64) (int64, error) { return 0, nil }
func (f *fakeSessions) UnreadCount(context.Context, any, string, int64) (int, error) {
	return 0, nil
}

type fakeOrchestrator struct {
	findErr         error
	findRes         *usecase.FindMatchResult
	sendErr         error
	pendingReceiver int64
}

func (f *fakeOrchestrator) RequestFindMatch(context.Context, int64, int64) (*usecase.FindMatchResult, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.findRes, nil
}
func (f *fakeOrchestrator) RequestCommunication(context.Context, int64, int64) (*usecase.HandshakeOutcome, error) {
	return &usecase.HandshakeOutcome{Pending: true, ReceiverID: f.pendingReceiver}, nil
}
func (f *fakeOrchestrator) ConfirmCommunication(context.Context, int64, int64) (*usecase.HandshakeOutcome, error) {
	return &usecase.HandshakeOutcome{Session: &model.AnonymousChatSession{SessionID: "s"}}, nil
}
func (f *fakeOrchestrator) DeclineCommunication(context.Context, int64, int64) error { return nil }
func (f *fakeOrchestrator) SendChatMessage(context.Context, string, int64, string) error {
	return f.sendErr
}
func (f *fakeOrchestrator) EndChat(context.Context, string, int64) error { return nil }

type fakeLedger struct{ balance int }

func (f *fakeLedger) ChargeForSearch(context.Context, int64, int) (int, error) { return f.balance, nil }
func (f *fakeLedger) Refund(context.Context, int64, int) error                 { return nil }
func (f *fakeLedger) Balance(context.Context, int64) (int, error)              { return f.balance, nil }

type fakeRelay struct{ unread int }

func (f *fakeRelay) Deliver(context.Context, string, int64, model.ContentType, string) error {
	return nil
}
func (f *fakeRelay) MarkRead(context.Context, string, int64) (int64, error) { return 0, nil }
func (f *fakeRelay) History(context.Context, string, int64, int) ([]*model.ChatMessage, error) {
	return nil, nil
}
func (f *fakeRelay) UnreadCount(context.Context, string, int64) (int, error) {
	return f.unread, nil
}

type sentKeyboard struct {
	identity   adapter.BotIdentity
	telegramID int64
	text       string
	rows       [][]adapter.InlineButton
}

type fakeMessenger struct {
	texts     []string
	keyboards []sentKeyboard
}

func (f *fakeMessenger) SendMessage(_ context.Context, _ adapter.BotIdentity, _ int64, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeMessenger) SendButtons(_ context.Context, identity adapter.BotIdentity, telegramID int64, text string, rows [][]adapter.InlineButton) error {
	f.keyboards = append(f.keyboards, sentKeyboard{identity: identity, telegramID: telegramID, text: text, rows: rows})
	return nil
}

func newTestFacade(orch *fakeOrchestrator) (*BotFacade, *fakeUsers, *fakeMessenger) {
	users := &fakeUsers{byTg: make(map[int64]*model.User)}
	msgr := &fakeMessenger{}
	return NewBotFacade(users, &fakeSessions{}, orch, &fakeLedger{balance: 7}, &fakeRelay{}, msgr, testLogger()), users, msgr
}

// ---- tests ----

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in   string
		cmd  Command
		arg  string
	}{
		{"/start", CmdStart, ""},
		{"/find_match 7", CmdFindMatch, "7"},
		{"start_comm:42", CmdStartComm, "42"},
		{"confirm_comm:42", CmdConfirmComm, "42"},
		{"decline_comm:42", CmdDeclineComm, "42"},
		{"/balance", CmdBalance, ""},
		{"/frobnicate", CmdUnknown, ""},
		{"hello there", CmdUnknown, ""},
	}
	for _, c := range cases {
		cmd, arg := ParseCommand(c.in)
		if cmd != c.cmd || arg != c.arg {
			t.Fatalf("ParseCommand(%q) = %q,%q, want %q,%q", c.in, cmd, arg, c.cmd, c.arg)
		}
	}
}

func TestRegisterOrFetchCreatesOnce(t *testing.T) {
	f, users, _ := newTestFacade(&fakeOrchestrator{})
	ctx := context.Background()

	u1, err := f.RegisterOrFetch(ctx, 555, "alice")
	if err != nil {
		t.Fatal(err)
	}
	u2, err := f.RegisterOrFetch(ctx, 555, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if u1.ID != u2.ID {
		t.Fatalf("second fetch created a new user: %d vs %d", u1.ID, u2.ID)
	}
	if len(users.byTg) != 1 {
		t.Fatalf("users = %d, want 1", len(users.byTg))
	}
}

func TestFindMatchRepliesAreDistinct(t *testing.T) {
	ctx := context.Background()
	user := &model.User{ID: 1, TelegramID: 100, Nickname: "alice"}

	replies := make(map[string]error)
	for _, sentinel := range []error{
		domain.ErrNoMatches,
		domain.ErrInsufficientPoints,
		domain.ErrRateLimited,
		domain.ErrMatcherUnavailable,
	} {
		f, _, _ := newTestFacade(&fakeOrchestrator{findErr: sentinel})
		rep, err := f.HandleFindMatch(ctx, user, 7)
		if err != nil {
			t.Fatalf("%v: facade must map the sentinel, got error %v", sentinel, err)
		}
		if rep.Text == "" {
			t.Fatalf("%v: empty reply", sentinel)
		}
		if prev, dup := replies[rep.Text]; dup {
			t.Fatalf("replies for %v and %v are identical: %q", prev, sentinel, rep.Text)
		}
		replies[rep.Text] = sentinel
	}
}

func TestFindMatchSuccessReply(t *testing.T) {
	ctx := context.Background()
	user := &model.User{ID: 1, TelegramID: 100, Nickname: "alice"}
	f, _, _ := newTestFacade(&fakeOrchestrator{findRes: &usecase.FindMatchResult{
		Candidates: []model.MatchCandidate{{UserID: 2, Cohesion: 0.85, CommonQuestions: 6}},
		Matches:    []*model.Match{{ID: 9, UserAID: 1, UserBID: 2}},
		NewBalance: 4,
	}})

	rep, err := f.HandleFindMatch(ctx, user, 7)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rep.Text, "85%") || !strings.Contains(rep.Text, "Points left: 4") {
		t.Fatalf("reply %q missing cohesion or balance", rep.Text)
	}
}

func TestFindMatchReplyCarriesHandshakeButtons(t *testing.T) {
	ctx := context.Background()
	user := &model.User{ID: 1, TelegramID: 100, Nickname: "alice"}
	f, _, _ := newTestFacade(&fakeOrchestrator{findRes: &usecase.FindMatchResult{
		Candidates: []model.MatchCandidate{
			{UserID: 2, Cohesion: 0.85, CommonQuestions: 6},
			{UserID: 3, Cohesion: 0.70, CommonQuestions: 4},
		},
		Matches:    []*model.Match{{ID: 9, UserAID: 1, UserBID: 2}, {ID: 10, UserAID: 1, UserBID: 3}},
		NewBalance: 4,
	}})

	rep, err := f.HandleFindMatch(ctx, user, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Buttons) != 2 {
		t.Fatalf("button rows = %d, want one per match", len(rep.Buttons))
	}
	if got := rep.Buttons[0][0].Data; got != "start_comm:9" {
		t.Fatalf("first button data = %q, want start_comm:9", got)
	}
	if got := rep.Buttons[1][1].Data; got != "decline_comm:10" {
		t.Fatalf("second row decline data = %q, want decline_comm:10", got)
	}
	// Tapping the button must round-trip through the parser.
	if cmd, arg := ParseCommand(rep.Buttons[0][0].Data); cmd != CmdStartComm || arg != "9" {
		t.Fatalf("ParseCommand(%q) = %q,%q", rep.Buttons[0][0].Data, cmd, arg)
	}
}

func TestStartCommPromptsCounterpart(t *testing.T) {
	ctx := context.Background()
	f, users, msgr := newTestFacade(&fakeOrchestrator{pendingReceiver: 2})
	users.byTg[200] = &model.User{ID: 2, TelegramID: 200, Nickname: "bob"}

	rep, err := f.Dispatch(ctx, &model.User{ID: 1, TelegramID: 100}, CmdStartComm, "42")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rep.Text, "Request sent") {
		t.Fatalf("requester reply = %q, want the pending acknowledgement", rep.Text)
	}
	if len(msgr.keyboards) != 1 {
		t.Fatalf("counterpart keyboards = %d, want 1", len(msgr.keyboards))
	}
	kb := msgr.keyboards[0]
	if kb.telegramID != 200 || kb.identity != adapter.IdentityPrimary {
		t.Fatalf("prompt went to tg=%d on %s, want 200 on the primary identity", kb.telegramID, kb.identity)
	}
	if len(kb.rows) != 1 || kb.rows[0][0].Data != "confirm_comm:42" || kb.rows[0][1].Data != "decline_comm:42" {
		t.Fatalf("prompt rows = %+v, want confirm_comm:42 / decline_comm:42", kb.rows)
	}
}

func TestChatTextWithoutActiveSession(t *testing.T) {
	ctx := context.Background()
	user := &model.User{ID: 1, TelegramID: 100}
	f, _, _ := newTestFacade(&fakeOrchestrator{})

	reply, err := f.HandleChatText(ctx, user, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(reply, "no active chat") {
		t.Fatalf("reply = %q, want a no-active-chat hint", reply)
	}
}

func TestChatTextRelaysOnSingleSession(t *testing.T) {
	ctx := context.Background()
	user := &model.User{ID: 1, TelegramID: 100}
	orch := &fakeOrchestrator{}
	users := &fakeUsers{byTg: make(map[int64]*model.User)}
	sess, _ := model.NewAnonymousChatSession("tok", 1, 2, 5)
	sess.Status = model.ChatSessionActive
	f := NewBotFacade(users, &fakeSessions{active: []*model.AnonymousChatSession{sess}},
		orch, &fakeLedger{}, &fakeRelay{}, &fakeMessenger{}, testLogger())

	reply, err := f.HandleChatText(ctx, user, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if reply != "" {
		t.Fatalf("reply = %q, relayed messages are not echoed", reply)
	}
}
