package main

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

// CommandHandlerFunc is the shape of a routed command handler.
type CommandHandlerFunc func(msg *tgbotapi.Message)

// adminOnly wraps a command handler with admin verification.
func (a *App) adminOnly(handler CommandHandlerFunc) CommandHandlerFunc {
	return func(msg *tgbotapi.Message) {
		if !a.cfg.IsAdmin(msg.From.UserName) {
			a.send(msg.Chat.ID, "У вас нет прав для выполнения этой команды. Только организаторы могут выполнять это действие.")
			return
		}
		handler(msg)
	}
}
