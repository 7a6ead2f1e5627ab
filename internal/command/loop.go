package command

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"

	"telegramd/internal/domain"
	"telegramd/internal/metrics"
)

// ErrUpdatesClosed is returned by Run when the update stream ends while the
// loop is still supposed to be listening.
var ErrUpdatesClosed = errors.New("command loop: update stream closed")

// Source delivers inbound messages until its context is cancelled.
type Source interface {
	Updates(ctx context.Context) <-chan domain.InboundMessage
}

// MenuPublisher registers the command menu with the platform.
type MenuPublisher interface {
	SetCommands(ctx context.Context, commands []domain.BotCommand) error
}

type LoopConfig struct {
	Platform domain.Platform
	Source   Source
	Menu     MenuPublisher // optional
	Logger   *slog.Logger
}

// Loop listens for inbound commands and answers each one in its chat.
type Loop struct {
	platform domain.Platform
	source   Source
	menu     MenuPublisher
	logger   *slog.Logger
}

func NewLoop(cfg LoopConfig) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		platform: cfg.Platform,
		source:   cfg.Source,
		menu:     cfg.Menu,
		logger:   logger.With("component", "commands"),
	}
}

// Run blocks until ctx is cancelled (returning nil) or the update stream
// closes on its own (returning ErrUpdatesClosed). Errors answering a single
// command are logged and the loop keeps listening.
func (l *Loop) Run(ctx context.Context) error {
	if l.menu != nil {
		if err := l.menu.SetCommands(ctx, Menu()); err != nil {
			l.logger.Warn("could not publish command menu", "err", err)
		}
	}

	updates := l.source.Updates(ctx)
	l.logger.Info("command loop listening")
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrUpdatesClosed
			}
			if err := l.Handle(ctx, msg); err != nil {
				l.logger.Error("command reply failed", "chat_id", msg.ChatID, "command", msg.Command, "err", err)
			}
		}
	}
}

// Handle answers one inbound message. Plain text and unknown commands are ignored.
func (l *Loop) Handle(ctx context.Context, msg domain.InboundMessage) error {
	if msg.Command == "" {
		return nil
	}
	cmd, ok := Parse(msg.Command)
	if !ok {
		l.logger.Debug("ignoring unknown command", "chat_id", msg.ChatID, "command", msg.Command)
		return nil
	}
	metrics.CommandsTotal.Inc()
	l.logger.Info("command received", "chat_id", msg.ChatID, "sender_id", msg.SenderID, "command", cmd.String())
	return l.answer(ctx, msg.ChatID, cmd)
}

func (l *Loop) answer(ctx context.Context, chatID string, cmd Command) error {
	switch cmd {
	case Help:
		return l.platform.SendText(ctx, chatID, Descriptions(), domain.ParsePlain)
	case GetID:
		text := fmt.Sprintf("The chat ID is: <code>%s</code>", html.EscapeString(chatID))
		return l.platform.SendText(ctx, chatID, text, domain.ParseHTML)
	case Ping:
		return l.platform.SendText(ctx, chatID, "pong!", domain.ParsePlain)
	case Dice:
		return l.platform.SendDice(ctx, chatID)
	default:
		return fmt.Errorf("command %s has no reply", cmd)
	}
}
