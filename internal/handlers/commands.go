package handlers

import (
	"fmt"
	"strings"

	"feedback-bot/internal/teams"
)

// Command is a text command addressed to the bot
type Command string

const (
	CommandFeedback Command = "feedback"
	CommandHelp     Command = "help"
)

const (
	helpText          = "There are only two commands: feedback sends a rating card, help shows this message."
	unknownCommandMsg = "Failed to parse the command."
)

// ParseCommand extracts the command from a message's text. A leading
// mention of the bot is stripped and only the first word counts. It fails
// when the bot's name is unknown.
func ParseCommand(activity *teams.Activity) (Command, bool) {
	if activity.Recipient == nil || activity.Recipient.Name == "" {
		return "", false
	}
	text := strings.TrimPrefix(activity.Text, fmt.Sprintf("<at>%s</at>", activity.Recipient.Name))
	words := strings.Fields(text)
	if len(words) == 0 {
		return "", false
	}
	switch command := Command(words[0]); command {
	case CommandFeedback, CommandHelp:
		return command, true
	default:
		return "", false
	}
}

func greeting(botName string) string {
	return fmt.Sprintf("Hi! I'm %[1]s, here to liven up your meetings. Ask me for help to learn more (@%[1]s help)", botName)
}
