package domain

import (
	"context"
	"time"
)

type ParseMode string

const (
	ParsePlain ParseMode = ""
	ParseHTML  ParseMode = "HTML"
)

// Platform is the outbound side of the messaging platform. Implementations
// must be safe for concurrent use by the command loop and HTTP handlers.
type Platform interface {
	SendText(ctx context.Context, chatID, text string, mode ParseMode) error
	SendDocument(ctx context.Context, chatID, path string) error
	SendDice(ctx context.Context, chatID string) error
}

// InboundMessage is a message addressed to the bot.
type InboundMessage struct {
	ChatID    string
	SenderID  string
	Text      string
	Command   string // lowercased command name without slash or @bot suffix, "" for plain text
	Timestamp time.Time
}

// BotCommand is an entry of the bot's command menu.
type BotCommand struct {
	Name        string
	Description string
}
