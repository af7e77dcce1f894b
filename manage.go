package main

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// pickCityToManage shows the single-city menu for one of several registrations.
func (a *App) pickCityToManage(userID int, chatID int64, cityName string) {
	reg, err := a.repo.FindRegistration(userID, cityName)
	if err != nil {
		a.log.Error().Err(err).Int("user_id", userID).Str("city", cityName).Msg("find registration failed")
		a.send(chatID, genericErrorText)
		return
	}
	if reg == nil {
		a.send(chatID, "Эта регистрация уже не существует. Посмотреть актуальные: /start")
		a.dialogs.Clear(userID)
		return
	}
	a.showManageMenu(userID, chatID, *reg)
}

// changeRegistration re-collects identity for the managed city. The existing
// record is replaced on save; payment fields survive the upsert.
func (a *App) changeRegistration(userID int, chatID int64, s Session) {
	if s.ManagedCity == "" {
		a.send(chatID, "Не понял, какую регистрацию менять. Начните заново: /start")
		a.dialogs.Clear(userID)
		return
	}
	s.Draft.TargetCity = s.ManagedCity
	a.askGraduateType(userID, chatID, s)
}

// cancelOneCity archives the managed registration. Never a bare delete: the
// record moves to the archive with a reason and timestamp.
func (a *App) cancelOneCity(userID int, chatID int64, s Session) {
	if s.ManagedCity == "" {
		a.send(chatID, "Не понял, какую регистрацию отменять. Начните заново: /start")
		a.dialogs.Clear(userID)
		return
	}
	removed, err := a.repo.ArchiveAndRemove(userID, s.ManagedCity, "user cancel")
	if err != nil {
		a.log.Error().Err(err).Int("user_id", userID).Str("city", s.ManagedCity).Msg("archive failed")
		a.send(chatID, genericErrorText)
		return
	}
	if !removed {
		a.send(chatID, "Эта регистрация уже отменена.")
		a.dialogs.Clear(userID)
		return
	}
	a.log.Info().Int("user_id", userID).Str("city", s.ManagedCity).Msg("registration canceled")
	a.audit.Notify(fmt.Sprintf("❌ Отмена регистрации: @%s, город %s", s.Draft.Username, s.ManagedCity))
	a.send(chatID, fmt.Sprintf("Регистрация в городе %s отменена. Будем рады видеть вас в другой раз!", s.ManagedCity))
	a.dialogs.Clear(userID)
}

// cancelAllCities archives every registration of the user.
func (a *App) cancelAllCities(userID int, chatID int64, s Session) {
	count, err := a.repo.ArchiveAndRemoveAll(userID, "user cancel all")
	if err != nil {
		a.log.Error().Err(err).Int("user_id", userID).Msg("archive all failed")
		a.send(chatID, genericErrorText)
		return
	}
	if count == 0 {
		a.send(chatID, "У вас нет активных регистраций.")
		a.dialogs.Clear(userID)
		return
	}
	a.log.Info().Int("user_id", userID).Int("count", count).Msg("all registrations canceled")
	a.audit.Notify(fmt.Sprintf("❌ Отмена всех регистраций (%d): @%s", count, s.Draft.Username))
	a.send(chatID, fmt.Sprintf("Все регистрации (%d) отменены. Если передумаете — /start", count))
	a.dialogs.Clear(userID)
}

// addCity starts city selection excluding the cities already taken.
func (a *App) addCity(userID int, chatID int64, s Session) {
	regs, err := a.repo.FindRegistrations(userID)
	if err != nil {
		a.log.Error().Err(err).Int("user_id", userID).Msg("find registrations failed")
		a.send(chatID, genericErrorText)
		return
	}
	a.enterCitySelection(userID, chatID, s.Draft.Username, regs)
}

// handleStatus shows the user's registrations and payment states.
func (a *App) handleStatus(msg *tgbotapi.Message) {
	regs, err := a.repo.FindRegistrations(msg.From.ID)
	if err != nil {
		a.log.Error().Err(err).Int("user_id", msg.From.ID).Msg("find registrations failed")
		a.send(msg.Chat.ID, genericErrorText)
		return
	}
	if len(regs) == 0 {
		a.send(msg.Chat.ID, "У вас пока нет регистраций. Зарегистрироваться: /start")
		return
	}
	var b strings.Builder
	b.WriteString("Ваши регистрации:\n")
	for _, reg := range regs {
		city, _ := a.cfg.City(reg.TargetCity)
		fmt.Fprintf(&b, "• %s (%s) — %s, оплата: %s\n",
			reg.TargetCity, city.EventDate, describeIdentity(reg), describePayment(reg))
	}
	a.send(msg.Chat.ID, b.String())
}

// handleImhere handles the "/start imhere" check-in from the event QR code.
func (a *App) handleImhere(msg *tgbotapi.Message) {
	marked, err := a.repo.MarkVisited(msg.From.ID)
	if err != nil {
		a.log.Error().Err(err).Int("user_id", msg.From.ID).Msg("mark visited failed")
		a.send(msg.Chat.ID, genericErrorText)
		return
	}
	if !marked {
		a.send(msg.Chat.ID, "Спасибо, что пришли! Мы не нашли вашу регистрацию, но гостям всегда рады. На следующую встречу регистрируйтесь заранее: /start")
		return
	}
	a.send(msg.Chat.ID, "Отметили, что вы на встрече. Хорошего вечера!")
}
