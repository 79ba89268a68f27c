package router

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"expensechat/internal/domain"
)

// Handler answers one chat exchange (implemented by brain.Brain).
type Handler interface {
	Handle(ctx context.Context, req domain.ChatRequest) (*domain.ChatReply, error)
}

// StoreFactory creates the ConversationStore for a channel.
type StoreFactory func(channelID string) domain.ConversationStore

// DefaultMaxHistory is the number of messages a channel keeps as context.
const DefaultMaxHistory = 40

// ErrEmptyChannelID is returned when Route is called with an empty channel ID.
var ErrEmptyChannelID = errors.New("router: channel ID must not be empty")

// Channel is a conversation held on behalf of a long-lived transport.
type Channel struct {
	ID        string
	History   []domain.Message
	CreatedAt time.Time
	UpdatedAt time.Time

	store domain.ConversationStore
}

// Option configures a Router.
type Option func(*Router)

// WithStoreFactory persists each channel's conversation through the stores
// the factory creates and restores it when the channel is first used.
func WithStoreFactory(f StoreFactory) Option {
	return func(r *Router) { r.storeFactory = f }
}

// WithMaxHistory caps the messages kept per channel. Values below 2 are ignored.
func WithMaxHistory(n int) Option {
	return func(r *Router) {
		if n >= 2 {
			r.maxHistory = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// Router keeps one conversation per channel and passes each message to the
// handler together with that channel's history. Route calls for the same
// channel are serialized in FIFO order; different channels run in parallel.
type Router struct {
	mu           sync.RWMutex
	channels     map[string]*Channel
	handler      Handler
	storeFactory StoreFactory
	lanes        *laneSet
	maxHistory   int
	logger       *slog.Logger
	now          func() time.Time

	// afterReadMiss is a test hook called after a read-lock miss and before acquiring
	// the write lock in getOrCreateChannel. Nil in production.
	afterReadMiss func()
}

// NewRouter creates a new Router. handler must not be nil.
func NewRouter(handler Handler, opts ...Option) *Router {
	if handler == nil {
		panic("router: handler must not be nil")
	}
	r := &Router{
		channels:   make(map[string]*Channel),
		handler:    handler,
		lanes:      newLaneSet(),
		maxHistory: DefaultMaxHistory,
		now:        time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Router) log() *slog.Logger {
	if r.logger != nil {
		return r.logger
	}
	return slog.Default()
}

// Route handles message for ownerID in the context of channelID. The reply is
// returned even when err is non-nil so transports can show its guidance text.
// Exchanges that fail are not added to the channel history.
func (r *Router) Route(ctx context.Context, channelID, ownerID, message string) (*domain.ChatReply, error) {
	if channelID == "" {
		return nil, ErrEmptyChannelID
	}

	replies := make(chan *domain.ChatReply, 1)
	err := r.lanes.do(ctx, channelID, func() error {
		ch := r.getOrCreateChannel(channelID)
		out, err := r.handler.Handle(ctx, domain.ChatRequest{
			Message: message,
			History: r.history(ch),
			OwnerID: ownerID,
		})
		replies <- out
		if err != nil {
			return err
		}
		// The caller has already given up on this exchange.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if out != nil {
			r.record(ch, domain.UserMessage(message), domain.AssistantMessage(out.Reply))
		}
		return nil
	})

	var reply *domain.ChatReply
	select {
	case reply = <-replies:
	default:
	}
	return reply, err
}

// Forget drops the in-memory conversation of channelID. Persisted history is
// left untouched.
func (r *Router) Forget(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, channelID)
}

// ActiveChannels returns a sorted list of active channel IDs.
func (r *Router) ActiveChannels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetChannel returns a copy of the channel, or false if not found.
func (r *Router) GetChannel(channelID string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[channelID]
	if !ok {
		return Channel{}, false
	}
	out := *ch
	out.History = append([]domain.Message(nil), ch.History...)
	return out, true
}

// ChannelCount returns the number of active channels.
func (r *Router) ChannelCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

func (r *Router) history(ch *Channel) []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.Message(nil), ch.History...)
}

// record appends one exchange to the channel, trims it to maxHistory and
// persists it. Persistence failures are logged, not returned.
func (r *Router) record(ch *Channel, msgs ...domain.Message) {
	r.mu.Lock()
	ch.History = append(ch.History, msgs...)
	if over := len(ch.History) - r.maxHistory; over > 0 {
		ch.History = append([]domain.Message(nil), ch.History[over:]...)
	}
	ch.UpdatedAt = r.now()
	store := ch.store
	r.mu.Unlock()

	if store == nil {
		return
	}
	for _, m := range msgs {
		if err := store.Append(m); err != nil {
			r.log().Warn("history append failed", "channel", ch.ID, "error", err)
			return
		}
	}
}

// getOrCreateChannel returns the channel for the given ID, creating it (and
// restoring persisted history) if needed.
func (r *Router) getOrCreateChannel(channelID string) *Channel {
	// Fast path: read lock.
	r.mu.RLock()
	ch, ok := r.channels[channelID]
	r.mu.RUnlock()
	if ok {
		return ch
	}

	if r.afterReadMiss != nil {
		r.afterReadMiss()
	}

	// Slow path: write lock, double-check.
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok = r.channels[channelID]
	if ok {
		return ch
	}

	now := r.now()
	ch = &Channel{ID: channelID, CreatedAt: now, UpdatedAt: now}
	if r.storeFactory != nil {
		ch.store = r.storeFactory(channelID)
		restored, err := ch.store.LoadHistory(r.maxHistory)
		if err != nil {
			r.log().Warn("history restore failed", "channel", channelID, "error", err)
		}
		ch.History = restored
	}
	r.channels[channelID] = ch
	return ch
}
