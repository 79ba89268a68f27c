package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"expensechat/internal/brain"
	"expensechat/internal/domain"
)

// =============================================================================
// Test Doubles
// =============================================================================

// mockBotAPI implements BotAPI for tests.
type mockBotAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	sendErr error
	updates chan tgbotapi.Update
	stopped bool
}

func newMockBotAPI() *mockBotAPI {
	return &mockBotAPI{updates: make(chan tgbotapi.Update, 100)}
}

func (m *mockBotAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return tgbotapi.Message{}, m.sendErr
	}
	m.sent = append(m.sent, c)
	return tgbotapi.Message{}, nil
}

func (m *mockBotAPI) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updates
}

func (m *mockBotAPI) StopReceivingUpdates() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

// texts returns the text messages sent so far, skipping chat actions.
func (m *mockBotAPI) texts() []tgbotapi.MessageConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tgbotapi.MessageConfig
	for _, c := range m.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (m *mockBotAPI) actions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.sent {
		if _, ok := c.(tgbotapi.ChatActionConfig); ok {
			n++
		}
	}
	return n
}

func (m *mockBotAPI) wasStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// mockRouter implements MessageRouter for tests.
type mockRouter struct {
	mu        sync.Mutex
	calls     []routeCall
	forgotten []string
	reply     *domain.ChatReply
	err       error
}

type routeCall struct {
	channelID string
	ownerID   string
	message   string
}

func (m *mockRouter) Route(ctx context.Context, channelID, ownerID, message string) (*domain.ChatReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, routeCall{channelID: channelID, ownerID: ownerID, message: message})
	return m.reply, m.err
}

func (m *mockRouter) Forget(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forgotten = append(m.forgotten, channelID)
}

func (m *mockRouter) getCalls() []routeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]routeCall, len(m.calls))
	copy(result, m.calls)
	return result
}

func replying(text string) *mockRouter {
	return &mockRouter{reply: &domain.ChatReply{Reply: text}}
}

var (
	errBrainDown  = errors.New("brain is down")
	errSendFailed = errors.New("send failed")
)

func makeTextUpdate(chatID, userID int64, messageID int, text string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: messageID,
			From:      &tgbotapi.User{ID: userID},
			Chat:      &tgbotapi.Chat{ID: chatID},
			Text:      text,
		},
	}
}

func makeCommandUpdate(chatID int64, command string) tgbotapi.Update {
	u := makeTextUpdate(chatID, chatID, 1, "/"+command)
	u.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command) + 1}}
	return u
}

func waitForTexts(t *testing.T, bot *mockBotAPI, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(bot.texts()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out: expected %d sent messages, got %d", n, len(bot.texts()))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// =============================================================================
// NewAdapter tests
// =============================================================================

func TestNewAdapter_WhenBotIsNil_ShouldPanic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewAdapter(nil, router) should panic")
		}
	}()
	NewAdapter(nil, replying("ok"))
}

func TestNewAdapter_WhenRouterIsNil_ShouldPanic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewAdapter(bot, nil) should panic")
		}
	}()
	NewAdapter(newMockBotAPI(), nil)
}

// =============================================================================
// ID mapping tests
// =============================================================================

func TestChatIDToChannelID_ShouldPrefixWithTelegram(t *testing.T) {
	if got := ChatIDToChannelID(12345); got != "telegram-12345" {
		t.Errorf("want telegram-12345, got %q", got)
	}
}

func TestChatIDToChannelID_WhenNegativeChatID_ShouldIncludeSign(t *testing.T) {
	// Group chats in Telegram have negative IDs
	if got := ChatIDToChannelID(-100123456); got != "telegram--100123456" {
		t.Errorf("want telegram--100123456, got %q", got)
	}
}

func TestUserIDToOwnerID_ShouldPrefixWithTelegram(t *testing.T) {
	if got := UserIDToOwnerID(777); got != "telegram-777" {
		t.Errorf("want telegram-777, got %q", got)
	}
}

// =============================================================================
// HandleUpdate tests
// =============================================================================

func TestHandleUpdate_WhenTextMessage_ShouldRouteAndReply(t *testing.T) {
	// Given
	bot := newMockBotAPI()
	rtr := replying("Added 250 for food")
	adapter := NewAdapter(bot, rtr)

	// When
	adapter.HandleUpdate(context.Background(), makeTextUpdate(42, 7, 1, "spent 250 on lunch"))

	// Then
	calls := rtr.getCalls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 route call, got %d", len(calls))
	}
	want := routeCall{channelID: "telegram-42", ownerID: "telegram-7", message: "spent 250 on lunch"}
	if calls[0] != want {
		t.Errorf("route call: want %+v, got %+v", want, calls[0])
	}
	sent := bot.texts()
	if len(sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(sent))
	}
	if sent[0].Text != "Added 250 for food" || sent[0].ChatID != 42 || sent[0].ReplyToMessageID != 1 {
		t.Errorf("unexpected reply %+v", sent[0])
	}
	if bot.actions() != 1 {
		t.Errorf("expected a typing action, got %d", bot.actions())
	}
}

func TestHandleUpdate_WhenMessageIsNil_ShouldDoNothing(t *testing.T) {
	bot := newMockBotAPI()
	rtr := replying("ok")
	NewAdapter(bot, rtr).HandleUpdate(context.Background(), tgbotapi.Update{})

	if len(rtr.getCalls()) != 0 || len(bot.texts()) != 0 {
		t.Error("expected update without message to be ignored")
	}
}

func TestHandleUpdate_WhenEmptyText_ShouldDoNothing(t *testing.T) {
	bot := newMockBotAPI()
	rtr := replying("ok")
	// Message with blank text (e.g., photo-only message)
	NewAdapter(bot, rtr).HandleUpdate(context.Background(), makeTextUpdate(42, 7, 1, "  "))

	if len(rtr.getCalls()) != 0 || len(bot.texts()) != 0 {
		t.Error("expected blank message to be ignored")
	}
}

func TestHandleUpdate_WhenStartCommand_ShouldResetAndGreet(t *testing.T) {
	bot := newMockBotAPI()
	rtr := replying("unused")
	NewAdapter(bot, rtr).HandleUpdate(context.Background(), makeCommandUpdate(42, "start"))

	if len(rtr.getCalls()) != 0 {
		t.Error("/start must not reach the brain")
	}
	if len(rtr.forgotten) != 1 || rtr.forgotten[0] != "telegram-42" {
		t.Errorf("expected telegram-42 forgotten, got %v", rtr.forgotten)
	}
	sent := bot.texts()
	if len(sent) != 1 || sent[0].Text != brain.Greeting {
		t.Errorf("expected greeting, got %+v", sent)
	}
}

func TestHandleUpdate_WhenOtherCommand_ShouldRouteAsText(t *testing.T) {
	rtr := replying("ok")
	NewAdapter(newMockBotAPI(), rtr).HandleUpdate(context.Background(), makeCommandUpdate(42, "total"))

	if calls := rtr.getCalls(); len(calls) != 1 || calls[0].message != "/total" {
		t.Errorf("expected /total routed, got %+v", calls)
	}
}

func TestHandleUpdate_WhenNoSender_ShouldRouteAnonymously(t *testing.T) {
	rtr := replying(brain.SignInHint)
	update := makeTextUpdate(-100, 0, 3, "show expenses")
	update.Message.From = nil

	NewAdapter(newMockBotAPI(), rtr).HandleUpdate(context.Background(), update)

	if calls := rtr.getCalls(); len(calls) != 1 || calls[0].ownerID != "" {
		t.Errorf("expected anonymous route, got %+v", calls)
	}
}

func TestHandleUpdate_WhenRouterReturnsErrorWithReply_ShouldSendReply(t *testing.T) {
	bot := newMockBotAPI()
	rtr := &mockRouter{reply: &domain.ChatReply{Reply: brain.GuidanceRateLimited}, err: domain.ErrRateLimited}
	NewAdapter(bot, rtr).HandleUpdate(context.Background(), makeTextUpdate(42, 7, 1, "hello"))

	sent := bot.texts()
	if len(sent) != 1 || sent[0].Text != brain.GuidanceRateLimited {
		t.Errorf("expected rate limit guidance, got %+v", sent)
	}
}

func TestHandleUpdate_WhenRouterReturnsBareError_ShouldSendGuidance(t *testing.T) {
	bot := newMockBotAPI()
	rtr := &mockRouter{err: errBrainDown}
	NewAdapter(bot, rtr).HandleUpdate(context.Background(), makeTextUpdate(42, 7, 1, "hello"))

	sent := bot.texts()
	if len(sent) != 1 || sent[0].Text != brain.GuidanceGeneric {
		t.Errorf("expected generic guidance, got %+v", sent)
	}
}

func TestHandleUpdate_WhenReplyEmpty_ShouldSendGenericGuidance(t *testing.T) {
	bot := newMockBotAPI()
	NewAdapter(bot, replying("")).HandleUpdate(context.Background(), makeTextUpdate(42, 7, 1, "hello"))

	if sent := bot.texts(); len(sent) != 1 || sent[0].Text != brain.GuidanceGeneric {
		t.Errorf("Telegram rejects empty messages; want guidance, got %+v", sent)
	}
}

func TestHandleUpdate_WhenSendFails_ShouldNotPanic(t *testing.T) {
	bot := newMockBotAPI()
	bot.sendErr = errSendFailed
	rtr := replying("ok")

	NewAdapter(bot, rtr).HandleUpdate(context.Background(), makeTextUpdate(42, 7, 1, "hello"))

	if len(rtr.getCalls()) != 1 {
		t.Errorf("expected 1 route call even when send fails, got %d", len(rtr.getCalls()))
	}
}

func TestHandleUpdate_WhenConcurrentDifferentChats_ShouldBeSafe(t *testing.T) {
	bot := newMockBotAPI()
	rtr := replying("concurrent reply")
	adapter := NewAdapter(bot, rtr)

	const goroutines = 20
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			adapter.HandleUpdate(context.Background(), makeTextUpdate(int64(idx), int64(idx), idx+1, "concurrent msg"))
		}(i)
	}
	wg.Wait()

	if n := len(rtr.getCalls()); n != goroutines {
		t.Errorf("expected %d route calls, got %d", goroutines, n)
	}
	if n := len(bot.texts()); n != goroutines {
		t.Errorf("expected %d sent messages, got %d", goroutines, n)
	}
}

// =============================================================================
// Start / Stop lifecycle tests
// =============================================================================

func TestStart_ShouldProcessUpdatesFromChannel(t *testing.T) {
	bot := newMockBotAPI()
	adapter := NewAdapter(bot, replying("pong"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		adapter.Start(ctx)
		close(done)
	}()

	bot.updates <- makeTextUpdate(99, 1, 1, "ping")
	bot.updates <- makeTextUpdate(100, 2, 2, "ping")
	waitForTexts(t, bot, 2)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancel")
	}
	if !bot.wasStopped() {
		t.Error("expected StopReceivingUpdates to be called")
	}
}

func TestStop_WhenCalledBeforeStart_ShouldNotPanic(t *testing.T) {
	NewAdapter(newMockBotAPI(), replying("ok")).Stop()
}

func TestStop_WhenCalledAfterStart_ShouldReturnFromStart(t *testing.T) {
	bot := newMockBotAPI()
	adapter := NewAdapter(bot, replying("ok"))
	done := make(chan struct{})
	go func() {
		adapter.Start(context.Background())
		close(done)
	}()

	// Wait until Start has registered its cancel func.
	deadline := time.Now().Add(2 * time.Second)
	for {
		adapter.mu.Lock()
		ready := adapter.cancel != nil
		adapter.mu.Unlock()
		if ready {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Start never initialized")
		}
		time.Sleep(5 * time.Millisecond)
	}
	adapter.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop was called")
	}
}

func TestStart_WhenUpdatesChannelClosed_ShouldReturn(t *testing.T) {
	bot := newMockBotAPI()
	adapter := NewAdapter(bot, replying("ok"))
	close(bot.updates)

	done := make(chan struct{})
	go func() {
		adapter.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after updates channel closed")
	}
}
