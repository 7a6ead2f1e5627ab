// Package telegramtest provides an in-memory domain.Platform for tests.
package telegramtest

import (
	"context"
	"fmt"
	"sync"

	"telegramd/internal/domain"
)

// Call is one recorded platform invocation.
type Call struct {
	Method string // SendText | SendDocument | SendDice
	ChatID string
	Text   string
	Mode   domain.ParseMode
	Path   string
}

// Platform records every call. Fail decides whether a call fails; nil means
// every call succeeds.
type Platform struct {
	mu    sync.Mutex
	calls []Call
	Fail  func(c Call) error
}

func (p *Platform) do(c Call) error {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	fail := p.Fail
	p.mu.Unlock()
	if fail == nil {
		return nil
	}
	if err := fail(c); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPlatform, err)
	}
	return nil
}

func (p *Platform) SendText(ctx context.Context, chatID, text string, mode domain.ParseMode) error {
	return p.do(Call{Method: "SendText", ChatID: chatID, Text: text, Mode: mode})
}

func (p *Platform) SendDocument(ctx context.Context, chatID, path string) error {
	return p.do(Call{Method: "SendDocument", ChatID: chatID, Path: path})
}

func (p *Platform) SendDice(ctx context.Context, chatID string) error {
	return p.do(Call{Method: "SendDice", ChatID: chatID})
}

// Calls returns a copy of the recorded calls in order.
func (p *Platform) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}
