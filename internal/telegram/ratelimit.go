package telegram

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Bot API flood limits: about 30 messages per second overall and about one
// per second into a single chat, with groups capped near 20 per minute.
const (
	defaultSendBurst     = 30
	defaultSendPerMinute = 30 * 60
	defaultChatBurst     = 3
	defaultChatPerMinute = 20

	// idle chat buckets are dropped once the table grows past this size
	maxChatBuckets = 1024
)

// LimitConfig sizes the global and per-chat buckets. Zero fields use the defaults.
type LimitConfig struct {
	SendPerMinute float64
	SendBurst     int
	ChatPerMinute float64
	ChatBurst     int
}

// Throttle gates outbound sends on a global bucket and on one bucket per chat.
type Throttle struct {
	global *rate.Limiter

	mu        sync.Mutex
	chats     map[string]*rate.Limiter
	chatLimit rate.Limit
	chatBurst int
}

func NewThrottle(cfg LimitConfig) *Throttle {
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = defaultSendBurst
	}
	if cfg.SendPerMinute <= 0 {
		cfg.SendPerMinute = defaultSendPerMinute
	}
	if cfg.ChatBurst <= 0 {
		cfg.ChatBurst = defaultChatBurst
	}
	if cfg.ChatPerMinute <= 0 {
		cfg.ChatPerMinute = defaultChatPerMinute
	}
	return &Throttle{
		global:    rate.NewLimiter(perMinute(cfg.SendPerMinute), cfg.SendBurst),
		chats:     make(map[string]*rate.Limiter),
		chatLimit: perMinute(cfg.ChatPerMinute),
		chatBurst: cfg.ChatBurst,
	}
}

func perMinute(n float64) rate.Limit {
	return rate.Limit(n / 60.0)
}

// Wait blocks until both the chat's bucket and the global bucket grant a
// send, or ctx is done. The chat slot is taken first.
func (t *Throttle) Wait(ctx context.Context, chatID string) error {
	if err := t.chat(chatID).Wait(ctx); err != nil {
		return waitErr(ctx, err)
	}
	if err := t.global.Wait(ctx); err != nil {
		return waitErr(ctx, err)
	}
	return nil
}

// waitErr maps rate's early "would exceed context deadline" refusal onto
// the context error callers match against.
func waitErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("send throttled: %w", context.DeadlineExceeded)
	}
	return err
}

func (t *Throttle) chat(chatID string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if lim, ok := t.chats[chatID]; ok {
		return lim
	}
	if len(t.chats) >= maxChatBuckets {
		t.evictIdle()
	}
	lim := rate.NewLimiter(t.chatLimit, t.chatBurst)
	t.chats[chatID] = lim
	return lim
}

// evictIdle drops buckets that have refilled completely; a fresh bucket
// behaves the same as a full one. Caller holds t.mu.
func (t *Throttle) evictIdle() {
	for id, lim := range t.chats {
		if lim.Tokens() >= float64(t.chatBurst) {
			delete(t.chats, id)
		}
	}
}

func (t *Throttle) trackedChats() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.chats)
}
