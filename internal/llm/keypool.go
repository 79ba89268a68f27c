package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"expensechat/internal/domain"
)

// KeyPool rotates API keys round-robin. A key that hit a rate limit is put in
// cooldown and skipped by Next until the cooldown expires. Safe for
// concurrent use.
type KeyPool struct {
	keys        []string
	mu          sync.Mutex
	nextIdx     int
	cooldowns   []time.Time   // parallel to keys; zero value means no cooldown
	cooldownDur time.Duration // how long a key stays in cooldown
	nowFunc     func() time.Time
}

// NewKeyPool creates a KeyPool from the given keys with the specified cooldown duration.
// Returns an error if keys is empty or nil.
func NewKeyPool(keys []string, cooldownDur time.Duration) (*KeyPool, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("keypool: at least one key is required")
	}
	return &KeyPool{
		keys:        keys,
		cooldowns:   make([]time.Time, len(keys)),
		cooldownDur: cooldownDur,
		nowFunc:     time.Now,
	}, nil
}

// Next returns the next available key using round-robin, skipping keys in cooldown.
// Returns the key, its index, and an error if all keys are in cooldown.
func (kp *KeyPool) Next() (string, int, error) {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	now := kp.nowFunc()
	n := len(kp.keys)

	// Try each key starting from nextIdx, wrapping around
	for i := 0; i < n; i++ {
		idx := (kp.nextIdx + i) % n
		if kp.cooldowns[idx].IsZero() || now.After(kp.cooldowns[idx]) {
			// This key is available
			kp.nextIdx = (idx + 1) % n
			return kp.keys[idx], idx, nil
		}
	}

	return "", -1, fmt.Errorf("keypool: all %d keys are in cooldown", n)
}

// MarkCooldown puts the key at the given index into cooldown for the configured duration.
// Out-of-range indices are silently ignored.
func (kp *KeyPool) MarkCooldown(idx int) {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	if idx < 0 || idx >= len(kp.keys) {
		return
	}
	kp.cooldowns[idx] = kp.nowFunc().Add(kp.cooldownDur)
}

// Len returns the total number of keys in the pool.
func (kp *KeyPool) Len() int {
	return len(kp.keys)
}

// Available returns the number of keys not currently in cooldown.
func (kp *KeyPool) Available() int {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	now := kp.nowFunc()
	count := 0
	for _, cd := range kp.cooldowns {
		if cd.IsZero() || now.After(cd) {
			count++
		}
	}
	return count
}

// =============================================================================
// KeyPoolClient (CompletionClient decorator)
// =============================================================================

// KeyPoolClient wraps one CompletionClient per API key and rotates between
// them using a KeyPool. On a rate-limit error the current key is put in
// cooldown and the request is retried once with the next available key.
// When no key is left, the rate-limit error is surfaced.
type KeyPoolClient struct {
	pool    *KeyPool
	clients []domain.CompletionClient
}

// NewKeyPoolClient creates a KeyPoolClient. The pool and clients must have matching lengths.
func NewKeyPoolClient(pool *KeyPool, clients []domain.CompletionClient) (*KeyPoolClient, error) {
	if pool == nil {
		return nil, fmt.Errorf("keypool client: pool must not be nil")
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("keypool client: at least one client is required")
	}
	if pool.Len() != len(clients) {
		return nil, fmt.Errorf("keypool client: pool size (%d) must match clients count (%d)", pool.Len(), len(clients))
	}
	return &KeyPoolClient{pool: pool, clients: clients}, nil
}

// Complete implements domain.CompletionClient.
func (k *KeyPoolClient) Complete(ctx context.Context, messages []domain.Message, tools []domain.ToolDefinition) (*domain.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, transportErr("keypool", "canceled", err)
	}

	_, idx, err := k.pool.Next()
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrRateLimited)
	}

	out, err := k.clients[idx].Complete(ctx, messages, tools)
	if err == nil || !errors.Is(err, domain.ErrRateLimited) {
		return out, err
	}

	k.pool.MarkCooldown(idx)

	_, idx2, nextErr := k.pool.Next()
	if nextErr != nil {
		return nil, fmt.Errorf("all keys in cooldown after rate limit: %w", err)
	}
	return k.clients[idx2].Complete(ctx, messages, tools)
}

var _ domain.CompletionClient = (*KeyPoolClient)(nil)
