package main

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/rs/zerolog"
)

// AuditSink mirrors registration and payment events to the organizer chat.
// Delivery is best-effort: failures are logged locally and never reach the
// end user.
type AuditSink struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    zerolog.Logger
}

// NewAuditSink creates a sink for the given chat. A zero chatID disables it.
func NewAuditSink(bot *tgbotapi.BotAPI, chatID int64, log zerolog.Logger) *AuditSink {
	return &AuditSink{bot: bot, chatID: chatID, log: log}
}

// Notify sends a free-text event message to the organizer chat.
func (a *AuditSink) Notify(text string) {
	if a.chatID == 0 {
		return
	}
	if _, err := a.bot.Send(tgbotapi.NewMessage(a.chatID, text)); err != nil {
		a.log.Error().Err(err).Msg("audit notify failed")
	}
}

// NotifyWithMessage sends an event message and returns the sent message id
// so callers can attach a review reference to it. ok is false on failure.
func (a *AuditSink) NotifyWithMessage(text string) (int, bool) {
	if a.chatID == 0 {
		return 0, false
	}
	sent, err := a.bot.Send(tgbotapi.NewMessage(a.chatID, text))
	if err != nil {
		a.log.Error().Err(err).Msg("audit notify failed")
		return 0, false
	}
	return sent.MessageID, true
}

// ForwardProof forwards a user's proof message to the organizer chat and
// returns the forwarded message id. ok is false on failure or when disabled.
func (a *AuditSink) ForwardProof(fromChatID int64, messageID int) (int, bool) {
	if a.chatID == 0 {
		return 0, false
	}
	sent, err := a.bot.Send(tgbotapi.NewForward(a.chatID, fromChatID, messageID))
	if err != nil {
		a.log.Error().Err(err).Msg("audit proof forward failed")
		return 0, false
	}
	return sent.MessageID, true
}
