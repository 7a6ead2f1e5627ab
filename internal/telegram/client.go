// Package telegram adapts the Telegram Bot API to domain.Platform and turns
// long-polled updates into domain.InboundMessage values.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegramd/internal/domain"
)

const (
	defaultPollTimeout    = 30 // seconds, long-poll window for getUpdates
	defaultRequestTimeout = 60 * time.Second
)

// botAPI is the subset of *tgbotapi.BotAPI the client uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Config struct {
	Token string

	// APIEndpoint overrides tgbotapi.APIEndpoint, e.g. for a local Bot API server.
	APIEndpoint    string
	RequestTimeout time.Duration
	PollTimeout    int
	Debug          bool

	// Limits throttles outbound sends globally and per chat.
	Limits LimitConfig
	Logger *slog.Logger
}

// Client is safe for concurrent use by the command loop and HTTP handlers.
type Client struct {
	bot         botAPI
	username    string
	pollTimeout int
	throttle    *Throttle // nil disables throttling
	logger      *slog.Logger
}

// New authenticates against the Bot API (getMe) and returns a ready client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "telegram")
	_ = tgbotapi.SetLogger(&slogBotLogger{log: logger})

	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	bot.Debug = cfg.Debug
	logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	c := newClient(bot, bot.Self.UserName, cfg.PollTimeout, logger)
	c.throttle = NewThrottle(cfg.Limits)
	return c, nil
}

func newClient(bot botAPI, username string, pollTimeout int, logger *slog.Logger) *Client {
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	return &Client{bot: bot, username: username, pollTimeout: pollTimeout, logger: logger}
}

// Username is the bot's @username without the leading @.
func (c *Client) Username() string { return c.username }

// ready waits for a send slot into chatID.
func (c *Client) ready(ctx context.Context, chatID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.throttle == nil {
		return nil
	}
	return c.throttle.Wait(ctx, chatID)
}

func (c *Client) SendText(ctx context.Context, chatID, text string, mode domain.ParseMode) error {
	if err := c.ready(ctx, chatID); err != nil {
		return err
	}
	var msg tgbotapi.MessageConfig
	if isChannelUsername(chatID) {
		msg = tgbotapi.NewMessageToChannel(chatID, text)
	} else {
		id, err := parseChatID(chatID)
		if err != nil {
			return err
		}
		msg = tgbotapi.NewMessage(id, text)
	}
	msg.ParseMode = string(mode)
	if _, err := c.bot.Send(msg); err != nil {
		return fmt.Errorf("%w: send message to %s: %w", domain.ErrPlatform, chatID, err)
	}
	return nil
}

func (c *Client) SendDocument(ctx context.Context, chatID, path string) error {
	if err := c.ready(ctx, chatID); err != nil {
		return err
	}
	file := tgbotapi.FilePath(path)
	var doc tgbotapi.DocumentConfig
	if isChannelUsername(chatID) {
		doc = tgbotapi.DocumentConfig{
			BaseFile: tgbotapi.BaseFile{
				BaseChat: tgbotapi.BaseChat{ChannelUsername: chatID},
				File:     file,
			},
		}
	} else {
		id, err := parseChatID(chatID)
		if err != nil {
			return err
		}
		doc = tgbotapi.NewDocument(id, file)
	}
	if _, err := c.bot.Send(doc); err != nil {
		return fmt.Errorf("%w: send document %s to %s: %w", domain.ErrPlatform, path, chatID, err)
	}
	return nil
}

func (c *Client) SendDice(ctx context.Context, chatID string) error {
	if err := c.ready(ctx, chatID); err != nil {
		return err
	}
	var dice tgbotapi.DiceConfig
	if isChannelUsername(chatID) {
		dice = tgbotapi.DiceConfig{BaseChat: tgbotapi.BaseChat{ChannelUsername: chatID}}
	} else {
		id, err := parseChatID(chatID)
		if err != nil {
			return err
		}
		dice = tgbotapi.NewDice(id)
	}
	if _, err := c.bot.Send(dice); err != nil {
		return fmt.Errorf("%w: send dice to %s: %w", domain.ErrPlatform, chatID, err)
	}
	return nil
}

// SetCommands publishes the bot's command menu.
func (c *Client) SetCommands(ctx context.Context, commands []domain.BotCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmds := make([]tgbotapi.BotCommand, 0, len(commands))
	for _, bc := range commands {
		cmds = append(cmds, tgbotapi.BotCommand{Command: bc.Name, Description: bc.Description})
	}
	if _, err := c.bot.Request(tgbotapi.NewSetMyCommands(cmds...)); err != nil {
		return fmt.Errorf("%w: set commands: %w", domain.ErrPlatform, err)
	}
	return nil
}

// Updates long-polls Telegram until ctx is cancelled. The returned channel is
// closed when polling stops.
func (c *Client) Updates(ctx context.Context) <-chan domain.InboundMessage {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.pollTimeout
	updates := c.bot.GetUpdatesChan(u)
	out := make(chan domain.InboundMessage)

	go func() {
		defer close(out)
		stop := func() {
			c.logger.Info("telegram polling stopping")
			c.bot.StopReceivingUpdates()
			// Drain so the library's poller can exit and release the getUpdates session.
			for range updates {
			}
		}
		c.logger.Info("telegram polling started")
		for {
			select {
			case <-ctx.Done():
				stop()
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				in, ok := toInbound(upd, c.username)
				if !ok {
					continue
				}
				select {
				case out <- in:
				case <-ctx.Done():
					stop()
					return
				}
			}
		}
	}()
	return out
}

// toInbound converts an update. Commands addressed to another bot
// (/help@otherbot) are dropped.
func toInbound(u tgbotapi.Update, username string) (domain.InboundMessage, bool) {
	msg := u.Message
	if msg == nil {
		msg = u.ChannelPost
	}
	if msg == nil || msg.Chat == nil {
		return domain.InboundMessage{}, false
	}
	in := domain.InboundMessage{
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
		Text:      strings.TrimSpace(msg.Text),
		Timestamp: msg.Time(),
	}
	if msg.From != nil {
		in.SenderID = strconv.FormatInt(msg.From.ID, 10)
	}
	if msg.IsCommand() {
		name, target, _ := strings.Cut(msg.CommandWithAt(), "@")
		if target != "" && !strings.EqualFold(target, username) {
			return domain.InboundMessage{}, false
		}
		in.Command = strings.ToLower(name)
	}
	return in, true
}

func isChannelUsername(chatID string) bool {
	return strings.HasPrefix(chatID, "@")
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: chat id %q must be numeric or @channelusername", domain.ErrPlatform, chatID)
	}
	return id, nil
}

// slogBotLogger routes tgbotapi's internal logging into slog.
type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...interface{}) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
