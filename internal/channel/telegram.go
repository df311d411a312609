package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/applifix/backend/internal/classify"
	"github.com/applifix/backend/internal/models"
	"github.com/applifix/backend/internal/service"
)

const (
	// Updates of one chat always land on the same worker, so they stay in order.
	telegramWorkers = 8
	laneBuffer      = 16

	sessionPrefix  = "tg-"
	replyFailure   = "Sorry, something went wrong on our side. Please try again in a moment."
	shareContactUI = "Share my phone number"
)

// TelegramBot is the subset of the bot API the channel uses.
type TelegramBot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetSelf() tgbotapi.User
}

type tgBotWrapper struct {
	bot *tgbotapi.BotAPI
}

func (w *tgBotWrapper) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return w.bot.GetUpdatesChan(config)
}

func (w *tgBotWrapper) StopReceivingUpdates() {
	w.bot.StopReceivingUpdates()
}

func (w *tgBotWrapper) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return w.bot.Send(c)
}

func (w *tgBotWrapper) GetSelf() tgbotapi.User {
	return w.bot.Self
}

// BotFactory creates TelegramBot instances.
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
	if err != nil {
		return nil, err
	}
	return &tgBotWrapper{bot: bot}, nil
}

// ChatHandler runs a customer message through the conversation flow.
type ChatHandler interface {
	HandleMessage(ctx context.Context, req service.ChatRequest) (service.ChatResponse, error)
}

// Telegram feeds bot messages into the chat flow. Every Telegram chat is its
// own session.
type Telegram struct {
	token      string
	chat       ChatHandler
	bot        TelegramBot
	botFactory BotFactory
	workers    int
	logger     zerolog.Logger
}

func NewTelegram(token string, chat ChatHandler, logger zerolog.Logger) (*Telegram, error) {
	return NewTelegramWithFactory(token, chat, logger, defaultBotFactory)
}

func NewTelegramWithFactory(token string, chat ChatHandler, logger zerolog.Logger, factory BotFactory) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is required")
	}
	if chat == nil {
		return nil, errors.New("chat handler is required")
	}
	return &Telegram{
		token:      token,
		chat:       chat,
		botFactory: factory,
		workers:    telegramWorkers,
		logger:     logger.With().Str("channel", "telegram").Logger(),
	}, nil
}

// Run polls for updates until ctx is cancelled.
func (t *Telegram) Run(ctx context.Context) error {
	if t.bot == nil {
		bot, err := t.botFactory(t.token, tgbotapi.APIEndpoint, http.DefaultClient)
		if err != nil {
			return fmt.Errorf("create telegram bot: %w", err)
		}
		t.bot = bot
	}
	t.logger.Info().Str("bot", t.bot.GetSelf().UserName).Msg("telegram polling started")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)
	defer t.bot.StopReceivingUpdates()

	workers := max(t.workers, 1)
	g, gctx := errgroup.WithContext(ctx)
	lanes := make([]chan *tgbotapi.Message, workers)
	for i := range lanes {
		lane := make(chan *tgbotapi.Message, laneBuffer)
		lanes[i] = lane
		g.Go(func() error {
			for msg := range lane {
				t.handleMessage(gctx, msg)
			}
			return nil
		})
	}
	defer func() {
		for _, lane := range lanes {
			close(lane)
		}
		_ = g.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("telegram polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Chat == nil {
				continue
			}
			lane := lanes[uint64(update.Message.Chat.ID)%uint64(workers)]
			select {
			case lane <- update.Message:
			case <-ctx.Done():
				t.logger.Info().Msg("telegram polling stopped")
				return nil
			}
		}
	}
}

func sessionID(chatID int64) string {
	return sessionPrefix + strconv.FormatInt(chatID, 10)
}

func (t *Telegram) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	req := service.ChatRequest{
		SessionID: sessionID(msg.Chat.ID),
		Message:   strings.TrimSpace(msg.Text),
		Source:    models.SourceTelegram,
		Customer:  &classify.CustomerInfo{},
	}
	if msg.From != nil {
		req.Customer.Name = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}
	if msg.Contact != nil {
		req.Customer.Phone = msg.Contact.PhoneNumber
		req.Message = msg.Contact.PhoneNumber
	}
	if msg.IsCommand() && msg.Command() == "start" {
		req.Message = "hello"
	}
	if req.Message == "" {
		return
	}

	resp, err := t.chat.HandleMessage(ctx, req)
	reply := resp.Reply
	if err != nil {
		t.logger.Error().Err(err).Str("session_id", req.SessionID).Msg("chat handling failed")
		reply = replyFailure
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, reply)
	if resp.NeedsContact {
		kb := tgbotapi.NewReplyKeyboard(tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButtonContact(shareContactUI)))
		kb.OneTimeKeyboard = true
		out.ReplyMarkup = kb
	} else if msg.Contact != nil {
		out.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	}
	if _, err := t.bot.Send(out); err != nil {
		t.logger.Warn().Err(err).Str("session_id", req.SessionID).Msg("telegram send failed")
	}
}
