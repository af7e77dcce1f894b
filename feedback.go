package main

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

func ratingKeyboard(kind string) tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	for i := 1; i <= 5; i++ {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			strconv.Itoa(i), fmt.Sprintf("fb:%s:%d", kind, i)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(row...))
}

// startFeedback begins the post-event survey. Feedback is insert-only, so a
// user may answer as many times as they like.
func (a *App) startFeedback(msg *tgbotapi.Message) {
	s := Session{
		State:  StateFeedbackVenue,
		ChatID: msg.Chat.ID,
		Feedback: Feedback{
			UserID:   msg.From.ID,
			Username: msg.From.UserName,
		},
	}
	if regs, err := a.repo.FindRegistrations(msg.From.ID); err == nil && len(regs) > 0 {
		s.Feedback.City = regs[0].TargetCity
	}
	a.dialogs.Put(msg.From.ID, s)
	a.sendMarkup(msg.Chat.ID, "Спасибо, что были с нами! Как вам площадка? (1 — плохо, 5 — отлично)", ratingKeyboard("venue"))
}

// feedbackRating handles the fb:<kind>:<n> callbacks.
func (a *App) feedbackRating(userID int, chatID int64, s Session, data string) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return
	}
	rating, err := strconv.Atoi(parts[2])
	if err != nil || rating < 1 || rating > 5 {
		return
	}

	switch parts[1] {
	case "venue":
		if s.State != StateFeedbackVenue {
			return
		}
		s.Feedback.VenueRating = rating
		s.State = StateFeedbackProgram
		a.dialogs.Put(userID, s)
		a.sendMarkup(chatID, "Как вам программа вечера?", ratingKeyboard("program"))
	case "program":
		if s.State != StateFeedbackProgram {
			return
		}
		s.Feedback.ProgramRating = rating
		s.State = StateFeedbackOverall
		a.dialogs.Put(userID, s)
		a.sendMarkup(chatID, "Общее впечатление от встречи?", ratingKeyboard("overall"))
	case "overall":
		if s.State != StateFeedbackOverall {
			return
		}
		s.Feedback.OverallRating = rating
		s.State = StateFeedbackComment
		a.dialogs.Put(userID, s)
		a.send(chatID, "И пара слов своими словами — что понравилось, что улучшить? (или отправьте «-», чтобы пропустить)")
	}
}

// collectFeedbackComment stores the survey once the free-text part arrives.
func (a *App) collectFeedbackComment(msg *tgbotapi.Message, s Session) {
	comment := strings.TrimSpace(msg.Text)
	if comment == "-" {
		comment = ""
	}
	s.Feedback.Comment = comment

	if err := a.repo.InsertFeedback(s.Feedback); err != nil {
		a.log.Error().Err(err).Int("user_id", msg.From.ID).Msg("insert feedback failed")
		a.send(msg.Chat.ID, genericErrorText)
		return
	}
	a.log.Info().Int("user_id", msg.From.ID).Msg("feedback saved")
	a.audit.Notify(fmt.Sprintf("📝 Отзыв от @%s (%s): площадка %d, программа %d, общее %d\n%s",
		s.Feedback.Username, s.Feedback.City, s.Feedback.VenueRating,
		s.Feedback.ProgramRating, s.Feedback.OverallRating, s.Feedback.Comment))
	a.send(msg.Chat.ID, "Спасибо за отзыв! Он поможет сделать следующую встречу лучше.")
	a.dialogs.Clear(msg.From.ID)
}
