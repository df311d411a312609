package channel

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/applifix/backend/internal/models"
	"github.com/applifix/backend/internal/service"
)

type mockTelegramBot struct {
	updatesChan chan tgbotapi.Update
	stopped     bool
	mu          sync.Mutex
	sentMsgs    []tgbotapi.Chattable
	sendErr     error
}

func newMockBot() *mockTelegramBot {
	return &mockTelegramBot{updatesChan: make(chan tgbotapi.Update, 10)}
}

func (m *mockTelegramBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updatesChan
}

func (m *mockTelegramBot) StopReceivingUpdates() { m.stopped = true }

func (m *mockTelegramBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentMsgs = append(m.sentMsgs, c)
	return tgbotapi.Message{}, m.sendErr
}

func (m *mockTelegramBot) GetSelf() tgbotapi.User {
	return tgbotapi.User{UserName: "applifix_bot"}
}

type fakeChat struct {
	mu   sync.Mutex
	reqs []service.ChatRequest
	resp service.ChatResponse
	err  error
}

func (f *fakeChat) HandleMessage(_ context.Context, req service.ChatRequest) (service.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

func (f *fakeChat) reqsSnapshot() []service.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]service.ChatRequest(nil), f.reqs...)
}

func newTestTelegram(t *testing.T, chat *fakeChat, bot *mockTelegramBot) *Telegram {
	t.Helper()
	factory := func(string, string, *http.Client) (TelegramBot, error) { return bot, nil }
	tg, err := NewTelegramWithFactory("fake-token", chat, zerolog.Nop(), factory)
	if err != nil {
		t.Fatalf("new telegram: %v", err)
	}
	tg.bot = bot
	return tg
}

func TestNewTelegramRequiresToken(t *testing.T) {
	if _, err := NewTelegram("", &fakeChat{}, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestHandleMessageRepliesInChat(t *testing.T) {
	chat := &fakeChat{resp: service.ChatResponse{Reply: "hello from applifix"}}
	bot := newMockBot()
	tg := newTestTelegram(t, chat, bot)

	tg.handleMessage(context.Background(), &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: 42},
		From: &tgbotapi.User{FirstName: "Ravi"},
		Text: "my fridge is not working",
	})

	if len(chat.reqs) != 1 {
		t.Fatalf("expected one chat request, got %d", len(chat.reqs))
	}
	req := chat.reqs[0]
	if req.SessionID != "tg-42" || req.Source != models.SourceTelegram || req.Customer.Name != "Ravi" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if len(bot.sentMsgs) != 1 {
		t.Fatalf("expected one reply, got %d", len(bot.sentMsgs))
	}
	out := bot.sentMsgs[0].(tgbotapi.MessageConfig)
	if out.ChatID != 42 || out.Text != "hello from applifix" {
		t.Fatalf("unexpected reply: %+v", out)
	}
}

func TestHandleMessageRequestsContact(t *testing.T) {
	chat := &fakeChat{resp: service.ChatResponse{Reply: "need phone", NeedsContact: true}}
	bot := newMockBot()
	tg := newTestTelegram(t, chat, bot)

	tg.handleMessage(context.Background(), &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 7}, Text: "ac not cooling"})
	out := bot.sentMsgs[0].(tgbotapi.MessageConfig)
	if _, ok := out.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup); !ok {
		t.Fatalf("expected contact keyboard, got %T", out.ReplyMarkup)
	}
}

func TestHandleMessageUsesSharedContact(t *testing.T) {
	chat := &fakeChat{resp: service.ChatResponse{Reply: "booked"}}
	bot := newMockBot()
	tg := newTestTelegram(t, chat, bot)

	tg.handleMessage(context.Background(), &tgbotapi.Message{
		Chat:    &tgbotapi.Chat{ID: 7},
		Contact: &tgbotapi.Contact{PhoneNumber: "+919876543210"},
	})
	if len(chat.reqs) != 1 || chat.reqs[0].Customer.Phone != "+919876543210" || chat.reqs[0].Message != "+919876543210" {
		t.Fatalf("unexpected request: %+v", chat.reqs)
	}
}

func TestHandleMessageChatErrorSendsApology(t *testing.T) {
	chat := &fakeChat{err: errors.New("boom")}
	bot := newMockBot()
	tg := newTestTelegram(t, chat, bot)

	tg.handleMessage(context.Background(), &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 9}, Text: "hi"})
	out := bot.sentMsgs[0].(tgbotapi.MessageConfig)
	if out.Text != replyFailure {
		t.Fatalf("expected apology, got %q", out.Text)
	}
}

func TestHandleMessageIgnoresEmpty(t *testing.T) {
	chat := &fakeChat{}
	bot := newMockBot()
	tg := newTestTelegram(t, chat, bot)
	tg.handleMessage(context.Background(), &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 9}})
	if len(chat.reqs) != 0 || len(bot.sentMsgs) != 0 {
		t.Fatalf("empty message should be ignored")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	chat := &fakeChat{resp: service.ChatResponse{Reply: "ok"}}
	bot := newMockBot()
	tg := newTestTelegram(t, chat, bot)
	tg.bot = nil

	bot.updatesChan <- tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Text: "hi"}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tg.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(chat.reqsSnapshot()) == 0 {
		select {
		case <-deadline:
			t.Fatalf("update was not handled")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
	if !bot.stopped {
		t.Fatalf("expected polling to stop")
	}
}

type slowChat struct {
	fakeChat
	release chan struct{}
}

func (s *slowChat) HandleMessage(ctx context.Context, req service.ChatRequest) (service.ChatResponse, error) {
	if req.SessionID == sessionID(1) {
		select {
		case <-s.release:
		case <-ctx.Done():
		}
	}
	return s.fakeChat.HandleMessage(ctx, req)
}

func TestRunSlowChatDoesNotBlockOthers(t *testing.T) {
	chat := &slowChat{fakeChat: fakeChat{resp: service.ChatResponse{Reply: "ok"}}, release: make(chan struct{})}
	bot := newMockBot()
	factory := func(string, string, *http.Client) (TelegramBot, error) { return bot, nil }
	tg, err := NewTelegramWithFactory("fake-token", chat, zerolog.Nop(), factory)
	if err != nil {
		t.Fatalf("new telegram: %v", err)
	}

	bot.updatesChan <- tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Text: "ac not cooling"}}
	bot.updatesChan <- tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 2}, Text: "hi"}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tg.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		reqs := chat.reqsSnapshot()
		if len(reqs) == 1 {
			if reqs[0].SessionID != sessionID(2) {
				t.Fatalf("expected the fast chat first, got %s", reqs[0].SessionID)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("second chat was blocked by the first")
		case <-time.After(10 * time.Millisecond):
		}
	}

	close(chat.release)
	for len(chat.reqsSnapshot()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("slow chat was never handled")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}
