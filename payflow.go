package main

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/google/uuid"
)

const (
	validateUsage = "Формат: /validate сумма [id_пользователя город] — либо ответьте командой на пересланное подтверждение оплаты."
	declineUsage  = "Формат: /decline причина [id_пользователя город] — либо ответьте командой на пересланное подтверждение оплаты."
)

// offerPayment presents the computed amounts and the pay-now/later choice.
// The handoff token lives in the session, so parallel users cannot collide.
func (a *App) offerPayment(userID int, chatID int64, s Session) {
	city, _ := a.cfg.City(s.Draft.TargetCity)
	due := PaymentDueFor(city, s.Draft, a.cfg.ReferenceYear)

	s.State = StatePayChoice
	s.HandoffToken = uuid.NewString()
	a.dialogs.Put(userID, s)

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Оплатить сейчас", "pay:now")),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Оплачу позже", "pay:later")),
	)
	text := fmt.Sprintf(
		"Организационный взнос для встречи в городе %s:\n"+
			"• по формуле: %d ₽\n"+
			"• к оплате: %d ₽\n"+
			"• при ранней оплате: %d ₽ (скидка %d ₽)\n"+
			"Перевод: %s\n"+
			"Оплатить сейчас или позже?",
		city.Name, due.Formula, due.Regular, due.Discounted, due.Discount, a.cfg.PaymentRecipient)
	a.sendMarkup(chatID, text, kb)
}

// payNow switches the session to the long proof wait.
func (a *App) payNow(userID int, chatID int64, s Session) {
	s.State = StateAwaitProof
	a.dialogs.Put(userID, s)
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Оплачу позже", "pay:later")),
	)
	a.sendMarkup(chatID, "Отправьте скриншот перевода одним фото.", kb)
}

// payLater records the unpaid submission so the admin sees who still owes,
// and tells the user how to resume.
func (a *App) payLater(userID int, chatID int64, s Session) {
	city, _ := a.cfg.City(s.Draft.TargetCity)
	due := PaymentDueFor(city, s.Draft, a.cfg.ReferenceYear)

	found, err := a.repo.RecordPaymentSubmission(userID, s.Draft.TargetCity, due, "")
	if err != nil {
		a.log.Error().Err(err).Int("user_id", userID).Msg("record submission failed")
		a.send(chatID, genericErrorText)
		return
	}
	if !found {
		a.send(chatID, "Мы не нашли вашу регистрацию. Начните заново: /start")
		a.dialogs.Clear(userID)
		return
	}
	a.audit.Notify(fmt.Sprintf("💤 Оплата отложена: %s (@%s), город %s, к оплате %d ₽",
		describeIdentity(s.Draft), s.Draft.Username, s.Draft.TargetCity, due.Regular))
	a.send(chatID, "Хорошо! Когда будете готовы оплатить, отправьте /pay")
	a.dialogs.Clear(userID)
}

// collectProof handles the message received while awaiting a payment proof.
func (a *App) collectProof(msg *tgbotapi.Message, s Session) {
	if msg.Photo == nil || len(*msg.Photo) == 0 {
		a.send(msg.Chat.ID, "Пришлите фото скриншота перевода или нажмите «Оплачу позже».")
		a.dialogs.Put(msg.From.ID, s)
		return
	}
	photos := *msg.Photo
	proofFileID := photos[len(photos)-1].FileID // largest size is last

	city, _ := a.cfg.City(s.Draft.TargetCity)
	due := PaymentDueFor(city, s.Draft, a.cfg.ReferenceYear)

	found, err := a.repo.RecordPaymentSubmission(msg.From.ID, s.Draft.TargetCity, due, proofFileID)
	if err != nil {
		a.log.Error().Err(err).Int("user_id", msg.From.ID).Msg("record submission failed")
		a.send(msg.Chat.ID, genericErrorText)
		return
	}
	if !found {
		a.send(msg.Chat.ID, "Мы не нашли вашу регистрацию. Начните заново: /start")
		a.dialogs.Clear(msg.From.ID)
		return
	}

	token := s.HandoffToken
	if token == "" {
		token = uuid.NewString()
	}
	a.forwardForReview(msg, s, due, token)

	a.log.Info().Int("user_id", msg.From.ID).Str("city", s.Draft.TargetCity).Msg("payment submitted")
	a.send(msg.Chat.ID, "Скриншот отправлен организаторам на проверку. Мы напишем, как только платёж подтвердят.")
	a.dialogs.Clear(msg.From.ID)
}

// forwardForReview mirrors the proof and an identity summary to the organizer
// chat and persists review references so a reply to either message resolves
// back to this submission.
func (a *App) forwardForReview(msg *tgbotapi.Message, s Session, due PaymentDue, token string) {
	summary := fmt.Sprintf(
		"💰 Оплата на проверку\n%s (@%s)\nГород: %s\nК оплате: %d ₽ (со скидкой %d ₽)\nОтветьте /validate сумма или /decline причина",
		describeIdentity(s.Draft), s.Draft.Username, s.Draft.TargetCity, due.Regular, due.Discounted)

	var msgIDs []int
	if id, ok := a.audit.ForwardProof(msg.Chat.ID, msg.MessageID); ok {
		msgIDs = append(msgIDs, id)
	}
	if id, ok := a.audit.NotifyWithMessage(summary); ok {
		msgIDs = append(msgIDs, id)
	}
	for _, id := range msgIDs {
		ref := ReviewRef{Token: token, AdminMsgID: id, UserID: msg.From.ID, City: s.Draft.TargetCity}
		if err := a.repo.SaveReviewRef(ref); err != nil {
			a.log.Error().Err(err).Str("token", token).Msg("save review ref failed")
		}
	}
}

// handlePay resumes the payment flow for a registration that still owes.
func (a *App) handlePay(msg *tgbotapi.Message) {
	regs, err := a.repo.FindRegistrations(msg.From.ID)
	if err != nil {
		a.log.Error().Err(err).Int("user_id", msg.From.ID).Msg("find registrations failed")
		a.send(msg.Chat.ID, genericErrorText)
		return
	}

	for _, reg := range regs {
		city, ok := a.cfg.City(reg.TargetCity)
		if !ok {
			continue
		}
		due := PaymentDueFor(city, reg, a.cfg.ReferenceYear)
		// A confirmed partial transfer still leaves a remainder to collect.
		if due.Regular == 0 || reg.PaymentAmount >= due.Regular {
			continue
		}

		s := Session{ChatID: msg.Chat.ID, Draft: reg, HandoffToken: uuid.NewString()}
		if reg.PaymentStatus == PaymentStatusNone {
			a.offerPayment(msg.From.ID, msg.Chat.ID, s)
			return
		}
		// Instructions were already shown once; don't resend them.
		s.State = StateAwaitProof
		a.dialogs.Put(msg.From.ID, s)
		a.send(msg.Chat.ID, fmt.Sprintf("Ждём скриншот перевода за встречу в городе %s (осталось %d ₽).",
			city.Name, due.Regular-reg.PaymentAmount))
		return
	}
	a.send(msg.Chat.ID, "Для вас нет неоплаченных регистраций. Статус: /status")
}

// resolveReviewTarget finds the (user, city) an admin command refers to,
// either from explicit arguments or from the replied-to forwarded proof.
func (a *App) resolveReviewTarget(msg *tgbotapi.Message, argUser, argCity string) (int, string, bool) {
	if argUser != "" && argCity != "" {
		userID, err := strconv.Atoi(argUser)
		if err != nil {
			return 0, "", false
		}
		return userID, argCity, true
	}
	if msg.ReplyToMessage == nil {
		return 0, "", false
	}
	ref, err := a.repo.FindReviewRefByMessage(msg.ReplyToMessage.MessageID)
	if err != nil {
		a.log.Error().Err(err).Msg("review ref lookup failed")
		return 0, "", false
	}
	if ref == nil {
		return 0, "", false
	}
	return ref.UserID, ref.City, true
}

// handleValidate confirms a payment: /validate <amount> [user_id city].
// Repeated confirmations accumulate in the payment history, matching partial
// bank transfers.
func (a *App) handleValidate(msg *tgbotapi.Message) {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) == 0 {
		a.send(msg.Chat.ID, validateUsage)
		return
	}
	amount, err := strconv.Atoi(fields[0])
	if err != nil || amount <= 0 {
		a.send(msg.Chat.ID, validateUsage)
		return
	}
	var argUser, argCity string
	if len(fields) >= 3 {
		argUser, argCity = fields[1], strings.Join(fields[2:], " ")
	}
	userID, city, ok := a.resolveReviewTarget(msg, argUser, argCity)
	if !ok {
		a.send(msg.Chat.ID, validateUsage)
		return
	}

	found, err := a.repo.UpdatePaymentStatus(userID, city, PaymentStatusConfirmed, "", amount)
	if err != nil {
		a.log.Error().Err(err).Int("user_id", userID).Str("city", city).Msg("confirm failed")
		a.send(msg.Chat.ID, genericErrorText)
		return
	}
	if !found {
		a.send(msg.Chat.ID, fmt.Sprintf("Регистрация не найдена: %d, %s", userID, city))
		return
	}

	total := amount
	if reg, err := a.repo.FindRegistration(userID, city); err == nil && reg != nil {
		total = reg.PaymentAmount
	}
	a.log.Info().Int("user_id", userID).Str("city", city).Int("amount", amount).Msg("payment confirmed")
	a.audit.Notify(fmt.Sprintf("✔️ Платёж подтверждён: %d, город %s, +%d ₽ (всего %d ₽)", userID, city, amount, total))
	a.send(msg.Chat.ID, fmt.Sprintf("Подтверждено: +%d ₽, всего %d ₽.", amount, total))
	a.send(int64(userID), fmt.Sprintf("Ваш платёж %d ₽ за встречу в городе %s подтверждён. Спасибо! Всего оплачено: %d ₽.", amount, city, total))
}

// handleDecline rejects a submission: /decline <reason> [user_id city].
func (a *App) handleDecline(msg *tgbotapi.Message) {
	fields := strings.Fields(msg.CommandArguments())
	if len(fields) == 0 {
		a.send(msg.Chat.ID, declineUsage)
		return
	}
	var argUser, argCity, reason string
	if msg.ReplyToMessage != nil {
		reason = strings.Join(fields, " ")
	} else if len(fields) >= 3 {
		// reason comes first, the last two tokens are user id and city
		if _, err := strconv.Atoi(fields[len(fields)-2]); err == nil {
			argUser = fields[len(fields)-2]
			argCity = fields[len(fields)-1]
			reason = strings.Join(fields[:len(fields)-2], " ")
		}
	}
	if reason == "" {
		a.send(msg.Chat.ID, declineUsage)
		return
	}
	userID, city, ok := a.resolveReviewTarget(msg, argUser, argCity)
	if !ok {
		a.send(msg.Chat.ID, declineUsage)
		return
	}

	found, err := a.repo.UpdatePaymentStatus(userID, city, PaymentStatusDeclined, reason, 0)
	if err != nil {
		a.log.Error().Err(err).Int("user_id", userID).Str("city", city).Msg("decline failed")
		a.send(msg.Chat.ID, genericErrorText)
		return
	}
	if !found {
		a.send(msg.Chat.ID, fmt.Sprintf("Регистрация не найдена: %d, %s", userID, city))
		return
	}
	a.log.Info().Int("user_id", userID).Str("city", city).Str("reason", reason).Msg("payment declined")
	a.audit.Notify(fmt.Sprintf("✖️ Платёж отклонён: %d, город %s, причина: %s", userID, city, reason))
	a.send(msg.Chat.ID, "Отклонено, пользователь уведомлён.")
	a.send(int64(userID), fmt.Sprintf("Ваш платёж за встречу в городе %s отклонён: %s. Отправьте новый скриншот: /pay", city, reason))
}
