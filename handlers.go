package main

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/rs/zerolog"
)

// App wires the bot transport to the store, dialog sessions and audit sink.
type App struct {
	bot     *tgbotapi.BotAPI
	repo    Repository
	dialogs *DialogManager
	cfg     *Config
	audit   *AuditSink
	log     zerolog.Logger
	now     func() time.Time
}

// NewApp creates the application with all collaborators injected.
func NewApp(bot *tgbotapi.BotAPI, repo Repository, dialogs *DialogManager, cfg *Config, audit *AuditSink, log zerolog.Logger) *App {
	return &App{bot: bot, repo: repo, dialogs: dialogs, cfg: cfg, audit: audit, log: log, now: time.Now}
}

const (
	genericErrorText = "Что-то пошло не так. Попробуйте ещё раз чуть позже."
	staleButtonText  = "Эта кнопка устарела. Начните заново: /start"
)

// send sends a text message and returns its id (0 on failure).
func (a *App) send(chatID int64, text string) int {
	sent, err := a.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		a.log.Error().Err(err).Int64("chat_id", chatID).Msg("send failed")
		return 0
	}
	return sent.MessageID
}

// sendMarkup sends a message with an inline keyboard and returns its id.
func (a *App) sendMarkup(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) int {
	message := tgbotapi.NewMessage(chatID, text)
	message.ReplyMarkup = kb
	sent, err := a.bot.Send(message)
	if err != nil {
		a.log.Error().Err(err).Int64("chat_id", chatID).Msg("send failed")
		return 0
	}
	return sent.MessageID
}

// sendTracked sends a prompt and remembers it for post-save cleanup.
func (a *App) sendTracked(userID int, chatID int64, text string) {
	if id := a.send(chatID, text); id != 0 {
		a.dialogs.AddTransient(userID, id)
	}
}

// deleteTransient removes the flow's status messages from the chat.
// Best effort: the messages may already be gone.
func (a *App) deleteTransient(chatID int64, ids []int) {
	for _, id := range ids {
		if _, err := a.bot.DeleteMessage(tgbotapi.NewDeleteMessage(chatID, id)); err != nil {
			a.log.Debug().Err(err).Int("message_id", id).Msg("transient delete failed")
		}
	}
}

// HandleUpdate routes one incoming update.
func (a *App) HandleUpdate(update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		a.handleCallback(update.CallbackQuery)
		return
	}
	if update.Message == nil {
		return
	}
	if update.Message.IsCommand() {
		a.handleCommand(update.Message)
		return
	}
	a.handleMessage(update.Message)
}

// handleCommand routes commands to corresponding handlers.
func (a *App) handleCommand(msg *tgbotapi.Message) {
	if msg.Command() == "start" && strings.ToLower(msg.CommandArguments()) == "imhere" {
		a.handleImhere(msg)
		return
	}
	switch msg.Command() {
	case "start", "register":
		a.startRegistration(msg)
	case "pay":
		a.handlePay(msg)
	case "status":
		a.handleStatus(msg)
	case "feedback":
		a.startFeedback(msg)
	case "cancel":
		a.dialogs.Clear(msg.From.ID)
		a.send(msg.Chat.ID, "Хорошо, прервали. Начать заново: /start")
	case "validate":
		a.adminOnly(a.handleValidate)(msg)
	case "decline":
		a.adminOnly(a.handleDecline)(msg)
	case "export":
		a.adminOnly(a.handleExport)(msg)
	case "exportarchive":
		a.adminOnly(a.handleExportArchive)(msg)
	case "stats":
		a.adminOnly(a.handleStats)(msg)
	case "qrcode":
		a.adminOnly(a.handleQRCode)(msg)
	default:
		a.send(msg.Chat.ID, "Неизвестная команда. Регистрация: /start, оплата: /pay, отзыв: /feedback")
	}
}

// handleMessage routes non-command messages by dialog state.
func (a *App) handleMessage(msg *tgbotapi.Message) {
	s, ok := a.dialogs.Get(msg.From.ID)
	if !ok {
		a.send(msg.Chat.ID, "Чтобы зарегистрироваться на встречу выпускников, отправьте /start")
		return
	}

	switch s.State {
	case StateAwaitName:
		a.collectName(msg, s)
	case StateAwaitYearLetter:
		a.collectYearLetter(msg, s)
	case StateAwaitLetter:
		a.collectLetter(msg, s)
	case StateAwaitProof:
		a.collectProof(msg, s)
	case StateFeedbackComment:
		a.collectFeedbackComment(msg, s)
	default:
		a.send(msg.Chat.ID, "Пожалуйста, ответьте кнопкой выше или отправьте /start")
	}
}

// startRegistration is the entry point of the conversation: what happens
// depends on how many registrations the user already has.
func (a *App) startRegistration(msg *tgbotapi.Message) {
	regs, err := a.repo.FindRegistrations(msg.From.ID)
	if err != nil {
		a.log.Error().Err(err).Int("user_id", msg.From.ID).Msg("find registrations failed")
		a.send(msg.Chat.ID, genericErrorText)
		return
	}

	switch len(regs) {
	case 0:
		a.enterCitySelection(msg.From.ID, msg.Chat.ID, msg.From.UserName, nil)
	case 1:
		a.showManageMenu(msg.From.ID, msg.Chat.ID, regs[0])
	default:
		a.showMultiManageMenu(msg.From.ID, msg.Chat.ID, regs)
	}
}

// enterCitySelection offers only cities the user is not yet registered for.
func (a *App) enterCitySelection(userID int, chatID int64, username string, taken []Registration) {
	occupied := make(map[string]bool, len(taken))
	for _, reg := range taken {
		occupied[reg.TargetCity] = true
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, city := range a.cfg.Cities {
		if occupied[city.Name] {
			continue
		}
		label := fmt.Sprintf("%s — %s", city.Name, city.EventDate)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, "city:"+city.Name)))
	}
	if len(rows) == 0 {
		a.send(chatID, "Вы уже зарегистрированы на встречи во всех городах этого сезона. Посмотреть статус: /status")
		a.dialogs.Clear(userID)
		return
	}

	s := Session{
		State:  StateSelectCity,
		ChatID: chatID,
		Draft:  Registration{UserID: userID, Username: username},
	}
	a.dialogs.Put(userID, s)
	a.sendMarkup(chatID, "В каком городе вы пойдёте на встречу выпускников?", tgbotapi.NewInlineKeyboardMarkup(rows...))
}

// showManageMenu is shown when the user has exactly one registration.
func (a *App) showManageMenu(userID int, chatID int64, reg Registration) {
	s := Session{State: StateManageMenu, ChatID: chatID, ManagedCity: reg.TargetCity}
	s.Draft = Registration{UserID: userID, Username: reg.Username}
	a.dialogs.Put(userID, s)

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Изменить данные", "manage:change")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Отменить регистрацию", "manage:cancel")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Добавить другой город", "manage:add")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Оставить как есть", "manage:keep")),
	)
	text := fmt.Sprintf("Вы уже зарегистрированы: %s, %s.\nЧто хотите сделать?",
		reg.TargetCity, describeIdentity(reg))
	a.sendMarkup(chatID, text, kb)
}

// showMultiManageMenu is shown when the user has several registrations.
func (a *App) showMultiManageMenu(userID int, chatID int64, regs []Registration) {
	s := Session{State: StateMultiManage, ChatID: chatID}
	s.Draft = Registration{UserID: userID, Username: regs[0].Username}
	a.dialogs.Put(userID, s)

	var b strings.Builder
	b.WriteString("Ваши регистрации:\n")
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, reg := range regs {
		fmt.Fprintf(&b, "• %s — %s, оплата: %s\n", reg.TargetCity, describeIdentity(reg), describePayment(reg))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(reg.TargetCity, "pick:"+reg.TargetCity)))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Добавить город", "manage:add")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Отменить все", "manage:all_cancel")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Оставить как есть", "manage:keep")),
	)
	b.WriteString("Выберите город, чтобы изменить или отменить регистрацию:")
	a.sendMarkup(chatID, b.String(), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func describeIdentity(reg Registration) string {
	switch reg.GraduateType {
	case GraduateTypeTeacher:
		return fmt.Sprintf("%s (учитель)", reg.FullName)
	case GraduateTypeNonGraduate:
		return fmt.Sprintf("%s (гость)", reg.FullName)
	case GraduateTypeOther:
		return reg.FullName
	default:
		return fmt.Sprintf("%s, выпуск %d «%s»", reg.FullName, reg.GraduationYear, reg.ClassLetter)
	}
}

func describePayment(reg Registration) string {
	switch reg.PaymentStatus {
	case PaymentStatusPending:
		return "на проверке"
	case PaymentStatusConfirmed:
		return fmt.Sprintf("подтверждена (%d ₽)", reg.PaymentAmount)
	case PaymentStatusDeclined:
		return "отклонена"
	default:
		return "не отправлена"
	}
}

// handleCallback handles inline button callbacks.
func (a *App) handleCallback(cq *tgbotapi.CallbackQuery) {
	defer func() {
		if _, err := a.bot.AnswerCallbackQuery(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			a.log.Debug().Err(err).Msg("callback answer failed")
		}
	}()

	userID := cq.From.ID
	chatID := cq.Message.Chat.ID
	s, ok := a.dialogs.Get(userID)
	if !ok {
		// Stale button from an expired session.
		a.send(chatID, staleButtonText)
		return
	}

	data := cq.Data
	switch {
	case strings.HasPrefix(data, "city:"):
		a.citySelected(userID, chatID, s, strings.TrimPrefix(data, "city:"))
	case strings.HasPrefix(data, "gt:"):
		a.graduateTypeSelected(userID, chatID, s, GraduateType(strings.TrimPrefix(data, "gt:")))
	case data == "reuse:yes":
		a.reuseIdentity(userID, chatID, s)
	case data == "reuse:no":
		a.askGraduateType(userID, chatID, s)
	case data == "confirm:yes":
		a.saveRegistration(userID, chatID, s)
	case data == "confirm:no":
		a.askGraduateType(userID, chatID, s)
	case strings.HasPrefix(data, "pick:"):
		a.pickCityToManage(userID, chatID, strings.TrimPrefix(data, "pick:"))
	case data == "manage:change":
		a.changeRegistration(userID, chatID, s)
	case data == "manage:cancel":
		a.cancelOneCity(userID, chatID, s)
	case data == "manage:add":
		a.addCity(userID, chatID, s)
	case data == "manage:all_cancel":
		a.cancelAllCities(userID, chatID, s)
	case data == "manage:keep":
		a.dialogs.Clear(userID)
		a.send(chatID, "Хорошо, ничего не меняем. До встречи!")
	case data == "pay:now":
		a.payNow(userID, chatID, s)
	case data == "pay:later":
		a.payLater(userID, chatID, s)
	case strings.HasPrefix(data, "fb:"):
		a.feedbackRating(userID, chatID, s, data)
	default:
		a.log.Warn().Str("data", data).Msg("unknown callback")
	}
}

// citySelected stores the chosen city and moves to identity collection,
// offering to reuse identity data from a prior registration when one exists.
func (a *App) citySelected(userID int, chatID int64, s Session, cityName string) {
	if s.State != StateSelectCity {
		return
	}
	city, ok := a.cfg.City(cityName)
	if !ok {
		a.send(chatID, "Такого города в этом сезоне нет. Начните заново: /start")
		a.dialogs.Clear(userID)
		return
	}
	s.Draft.TargetCity = city.Name
	a.audit.Notify(fmt.Sprintf("👣 Начало регистрации: @%s, город %s", s.Draft.Username, city.Name))

	regs, err := a.repo.FindRegistrations(userID)
	if err != nil {
		a.log.Error().Err(err).Int("user_id", userID).Msg("find registrations failed")
		a.send(chatID, genericErrorText)
		return
	}
	if len(regs) > 0 {
		a.dialogs.Put(userID, s)
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Да, использовать", "reuse:yes")),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Заполнить заново", "reuse:no")),
		)
		text := fmt.Sprintf("Использовать данные из прошлой регистрации?\n%s", describeIdentity(regs[0]))
		a.sendMarkup(chatID, text, kb)
		return
	}
	a.askGraduateType(userID, chatID, s)
}

// reuseIdentity copies identity fields from the user's earliest registration
// and jumps straight to confirmation.
func (a *App) reuseIdentity(userID int, chatID int64, s Session) {
	if s.Draft.TargetCity == "" {
		// Stale button pressed before a city was chosen.
		a.send(chatID, staleButtonText)
		return
	}
	regs, err := a.repo.FindRegistrations(userID)
	if err != nil || len(regs) == 0 {
		if err != nil {
			a.log.Error().Err(err).Int("user_id", userID).Msg("find registrations failed")
		}
		a.send(chatID, genericErrorText)
		return
	}
	src := regs[0]
	s.Draft.FullName = src.FullName
	s.Draft.GraduationYear = src.GraduationYear
	s.Draft.ClassLetter = src.ClassLetter
	s.Draft.GraduateType = src.GraduateType
	a.askConfirm(userID, chatID, s)
}

// askGraduateType starts identity collection from scratch.
func (a *App) askGraduateType(userID int, chatID int64, s Session) {
	if s.Draft.TargetCity == "" {
		a.send(chatID, staleButtonText)
		return
	}
	a.dialogs.Put(userID, s)
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Выпускник", "gt:graduate")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Учитель", "gt:teacher")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Не учился в школе, иду за компанию", "gt:non_graduate")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Другое", "gt:other")),
	)
	if id := a.sendMarkup(chatID, "Кем вы приходитесь школе?", kb); id != 0 {
		a.dialogs.AddTransient(userID, id)
	}
}

func (a *App) graduateTypeSelected(userID int, chatID int64, s Session, gt GraduateType) {
	if s.Draft.TargetCity == "" {
		a.send(chatID, staleButtonText)
		return
	}
	switch gt {
	case GraduateTypeGraduate, GraduateTypeTeacher, GraduateTypeNonGraduate, GraduateTypeOther:
	default:
		return
	}
	s.Draft.GraduateType = gt
	s.State = StateAwaitName
	a.dialogs.Put(userID, s)
	a.sendTracked(userID, chatID, "Напишите вашу фамилию и имя. Например: Иванов Иван")
}

// collectName loops until the name passes validation.
func (a *App) collectName(msg *tgbotapi.Message, s Session) {
	if err := ValidateFullName(msg.Text); err != nil {
		a.dialogs.Put(msg.From.ID, s) // refresh the deadline
		a.sendTracked(msg.From.ID, msg.Chat.ID, err.Error())
		return
	}
	s.Draft.FullName = strings.TrimSpace(msg.Text)

	if s.Draft.GraduateType == GraduateTypeGraduate {
		s.State = StateAwaitYearLetter
		a.dialogs.Put(msg.From.ID, s)
		a.sendTracked(msg.From.ID, msg.Chat.ID, "Укажите год выпуска и букву класса. Например: 2010 А")
		return
	}
	// Teachers and guests have no graduation class.
	a.askConfirm(msg.From.ID, msg.Chat.ID, s)
}

// collectYearLetter accepts "2010 А", "2010А" or a bare year, in which case
// only the letter is asked on the next turn.
func (a *App) collectYearLetter(msg *tgbotapi.Message, s Session) {
	year, letter, err := ParseYearAndLetter(msg.Text, a.now())
	switch {
	case err == ErrLetterNeeded:
		s.Draft.GraduationYear = year
		s.State = StateAwaitLetter
		a.dialogs.Put(msg.From.ID, s)
		a.sendTracked(msg.From.ID, msg.Chat.ID, "Принято! Теперь укажите букву класса. Например: А")
	case err != nil:
		a.dialogs.Put(msg.From.ID, s)
		a.sendTracked(msg.From.ID, msg.Chat.ID, err.Error())
	default:
		s.Draft.GraduationYear = year
		s.Draft.ClassLetter = letter
		a.askConfirm(msg.From.ID, msg.Chat.ID, s)
	}
}

// collectLetter finishes the degraded path: the year is already in the draft.
func (a *App) collectLetter(msg *tgbotapi.Message, s Session) {
	letter := strings.TrimSpace(msg.Text)
	if err := ValidateClassLetter(letter); err != nil {
		a.dialogs.Put(msg.From.ID, s)
		a.sendTracked(msg.From.ID, msg.Chat.ID, err.Error())
		return
	}
	s.Draft.ClassLetter = letter
	a.askConfirm(msg.From.ID, msg.Chat.ID, s)
}

// askConfirm shows the collected identity and asks for an explicit save.
func (a *App) askConfirm(userID int, chatID int64, s Session) {
	s.State = StateConfirm
	a.dialogs.Put(userID, s)

	city, _ := a.cfg.City(s.Draft.TargetCity)
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Да, всё верно", "confirm:yes")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Исправить", "confirm:no")),
	)
	text := fmt.Sprintf("Проверьте данные:\nГород: %s (%s)\n%s\nСохранить?",
		city.Name, city.EventDate, describeIdentity(s.Draft))
	a.sendMarkup(chatID, text, kb)
}

// saveRegistration is the explicit save step. The upsert keeps the operation
// idempotent if a record for (user, city) appeared meanwhile.
func (a *App) saveRegistration(userID int, chatID int64, s Session) {
	if s.State != StateConfirm {
		return
	}
	if err := a.repo.UpsertRegistration(s.Draft); err != nil {
		a.log.Error().Err(err).Int("user_id", userID).Str("city", s.Draft.TargetCity).Msg("upsert failed")
		a.send(chatID, genericErrorText)
		return
	}
	a.log.Info().Int("user_id", userID).Str("city", s.Draft.TargetCity).Msg("registration saved")
	a.audit.Notify(fmt.Sprintf("✅ Регистрация: %s (@%s), город %s",
		describeIdentity(s.Draft), s.Draft.Username, s.Draft.TargetCity))

	a.deleteTransient(chatID, s.Transient)
	s.Transient = nil

	city, _ := a.cfg.City(s.Draft.TargetCity)
	due := PaymentDueFor(city, s.Draft, a.cfg.ReferenceYear)
	if due.Regular == 0 {
		a.send(chatID, fmt.Sprintf("Вы зарегистрированы: %s, %s. Для вас встреча бесплатная. До встречи!",
			city.Name, city.EventDate))
		a.dialogs.Clear(userID)
		return
	}

	a.offerPayment(userID, chatID, s)
}
