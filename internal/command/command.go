// Package command answers the bot commands users send to the bridge's bot.
package command

import (
	"fmt"
	"strings"

	"telegramd/internal/domain"
)

// Command is the closed set of commands the bot understands.
type Command int

const (
	Help Command = iota
	GetID
	Ping
	Dice
)

type commandInfo struct {
	name        string
	description string
}

var commandTable = [...]commandInfo{
	Help:  {"help", "Help"},
	GetID: {"getid", "Get chat id"},
	Ping:  {"ping", "Pong!"},
	Dice:  {"dice", "Roll a dice"},
}

// All lists every command in menu order.
func All() []Command { return []Command{Help, GetID, Ping, Dice} }

func (c Command) String() string {
	if c < 0 || int(c) >= len(commandTable) {
		return fmt.Sprintf("Command(%d)", int(c))
	}
	return commandTable[c].name
}

// Description is the short text shown in /help and the Telegram menu.
func (c Command) Description() string {
	if c < 0 || int(c) >= len(commandTable) {
		return ""
	}
	return commandTable[c].description
}

// Parse maps a command name to a Command. It accepts an optional leading
// slash and @botname suffix and ignores case.
func Parse(name string) (Command, bool) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if i := strings.IndexAny(name, "@ \n"); i >= 0 {
		name = name[:i]
	}
	name = strings.ToLower(name)
	for _, c := range All() {
		if commandTable[c].name == name {
			return c, true
		}
	}
	return 0, false
}

// Descriptions renders the help text listing every command.
func Descriptions() string {
	var sb strings.Builder
	for i, c := range All() {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "/%s — %s", c, c.Description())
	}
	return sb.String()
}

// Menu returns the commands in the form published to Telegram.
func Menu() []domain.BotCommand {
	cmds := make([]domain.BotCommand, 0, len(commandTable))
	for _, c := range All() {
		cmds = append(cmds, domain.BotCommand{Name: c.String(), Description: c.Description()})
	}
	return cmds
}
