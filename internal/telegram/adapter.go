package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"expensechat/internal/brain"
	"expensechat/internal/domain"
)

// BotAPI abstracts the Telegram Bot API for testing.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// MessageRouter routes chat messages to the brain (implemented by router.Router).
type MessageRouter interface {
	Route(ctx context.Context, channelID, ownerID, message string) (*domain.ChatReply, error)
	Forget(channelID string)
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger. If nil, slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// Adapter bridges Telegram chats to the expense assistant.
type Adapter struct {
	bot    BotAPI
	router MessageRouter
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewAdapter creates a new Telegram adapter. Both bot and router must be non-nil.
func NewAdapter(bot BotAPI, router MessageRouter, opts ...Option) *Adapter {
	if bot == nil {
		panic("telegram: bot must not be nil")
	}
	if router == nil {
		panic("telegram: router must not be nil")
	}
	a := &Adapter{
		bot:    bot,
		router: router,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.Default()
}

// ChatIDToChannelID converts a Telegram chat id to a conversation channel id.
func ChatIDToChannelID(chatID int64) string {
	return "telegram-" + strconv.FormatInt(chatID, 10)
}

// UserIDToOwnerID converts a Telegram user id to a ledger owner id.
func UserIDToOwnerID(userID int64) string {
	return "telegram-" + strconv.FormatInt(userID, 10)
}

// HandleUpdate processes a single Telegram update.
// Updates without a message or with empty text are ignored. /start resets the
// chat's conversation and replies with the greeting; any other text is routed
// through the brain and the reply is sent back to the chat.
func (a *Adapter) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Chat == nil {
		return
	}
	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}

	chatID := update.Message.Chat.ID
	channelID := ChatIDToChannelID(chatID)

	if update.Message.IsCommand() && update.Message.Command() == "start" {
		a.router.Forget(channelID)
		a.send(chatID, update.Message.MessageID, brain.Greeting)
		return
	}

	// Messages without a sender (anonymous channel posts) stay unauthenticated.
	var ownerID string
	if update.Message.From != nil {
		ownerID = UserIDToOwnerID(update.Message.From.ID)
	}

	if _, err := a.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		a.log().Debug("telegram typing action failed", "chat", chatID, "error", err)
	}

	reply, err := a.router.Route(ctx, channelID, ownerID, text)
	var out string
	if reply != nil {
		out = reply.Reply
	}
	if err != nil {
		a.log().Warn("telegram chat failed", "channel", channelID, "error", err)
		if out == "" {
			out = brain.Guidance(err)
		}
	}
	if out == "" {
		out = brain.GuidanceGeneric
	}
	a.send(chatID, update.Message.MessageID, out)
}

func (a *Adapter) send(chatID int64, replyTo int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	if _, err := a.bot.Send(msg); err != nil {
		a.log().Warn("telegram send failed", "chat", chatID, "error", err)
	}
}

// Start begins polling for Telegram updates and processing them.
// Blocks until ctx is canceled, Stop is called, or the updates channel closes.
// StopReceivingUpdates is called on cancellation.
func (a *Adapter) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				cancel()
				return
			}
			a.HandleUpdate(ctx, update)
		}
	}
}

// Stop gracefully shuts down the adapter.
func (a *Adapter) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
