package main

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// botRecorder stands in for the Bot API transport: every call succeeds and
// outgoing message texts are kept for assertions.
type botRecorder struct {
	texts []string
}

func (r *botRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		if raw, err := io.ReadAll(req.Body); err == nil {
			if vals, err := url.ParseQuery(string(raw)); err == nil {
				if text := vals.Get("text"); text != "" {
					r.texts = append(r.texts, text)
				}
			}
		}
	}
	body := `{"ok":true,"result":{"message_id":1,"chat":{"id":1}}}`
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}, nil
}

func newTestApp(t *testing.T) (*App, *botRecorder) {
	t.Helper()
	rec := &botRecorder{}
	bot := &tgbotapi.BotAPI{Client: &http.Client{Transport: rec}}
	cfg := &Config{ReferenceYear: 2025, Cities: defaultCities()}
	dialogs := NewDialogManager(5*time.Minute, 20*time.Minute)
	audit := NewAuditSink(bot, 0, zerolog.Nop())
	return NewApp(bot, newTestRepo(t), dialogs, cfg, audit, zerolog.Nop()), rec
}

func commandMessage(text string) *tgbotapi.Message {
	entities := []tgbotapi.MessageEntity{
		{Type: "bot_command", Offset: 0, Length: len(strings.Fields(text)[0])},
	}
	return &tgbotapi.Message{
		Text:     text,
		Entities: &entities,
		From:     &tgbotapi.User{ID: 1, UserName: "org"},
		Chat:     &tgbotapi.Chat{ID: 1},
	}
}

func TestStaleIdentityButtonsRejected(t *testing.T) {
	a, rec := newTestApp(t)
	a.dialogs.Put(7, Session{State: StateSelectCity, ChatID: 1, Draft: Registration{UserID: 7, Username: "petrov"}})

	cq := &tgbotapi.CallbackQuery{
		ID:      "1",
		From:    &tgbotapi.User{ID: 7},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}},
		Data:    "gt:graduate",
	}
	a.handleCallback(cq)

	s, ok := a.dialogs.Get(7)
	require.True(t, ok)
	require.Equal(t, StateSelectCity, s.State)
	require.Empty(t, s.Draft.GraduateType)
	require.Contains(t, rec.texts, staleButtonText)

	cq.Data = "reuse:yes"
	a.handleCallback(cq)
	s, ok = a.dialogs.Get(7)
	require.True(t, ok)
	require.Equal(t, StateSelectCity, s.State)
	require.Empty(t, s.Draft.FullName)

	cq.Data = "reuse:no"
	a.handleCallback(cq)
	s, ok = a.dialogs.Get(7)
	require.True(t, ok)
	require.Equal(t, StateSelectCity, s.State)

	regs, err := a.repo.AllRegistrations()
	require.NoError(t, err)
	require.Empty(t, regs)
}

func TestResolveReviewTarget(t *testing.T) {
	a, _ := newTestApp(t)

	_, _, ok := a.resolveReviewTarget(&tgbotapi.Message{}, "", "")
	require.False(t, ok)

	userID, city, ok := a.resolveReviewTarget(&tgbotapi.Message{}, "42", "Москва")
	require.True(t, ok)
	require.Equal(t, 42, userID)
	require.Equal(t, "Москва", city)

	_, _, ok = a.resolveReviewTarget(&tgbotapi.Message{}, "сорок", "Москва")
	require.False(t, ok)

	require.NoError(t, a.repo.SaveReviewRef(ReviewRef{Token: "t-1", AdminMsgID: 99, UserID: 42, City: "Москва"}))
	reply := &tgbotapi.Message{ReplyToMessage: &tgbotapi.Message{MessageID: 99}}
	userID, city, ok = a.resolveReviewTarget(reply, "", "")
	require.True(t, ok)
	require.Equal(t, 42, userID)
	require.Equal(t, "Москва", city)

	unrelated := &tgbotapi.Message{ReplyToMessage: &tgbotapi.Message{MessageID: 100}}
	_, _, ok = a.resolveReviewTarget(unrelated, "", "")
	require.False(t, ok)
}

func TestValidateWithoutContextShowsUsage(t *testing.T) {
	a, rec := newTestApp(t)

	a.handleValidate(commandMessage("/validate 500"))
	require.Contains(t, rec.texts, validateUsage)
}

func TestPayResumesAfterConfirmedPartial(t *testing.T) {
	a, rec := newTestApp(t)
	reg := testRegistration()
	require.NoError(t, a.repo.UpsertRegistration(reg))

	city, ok := a.cfg.City(reg.TargetCity)
	require.True(t, ok)
	due := PaymentDueFor(city, reg, a.cfg.ReferenceYear)

	found, err := a.repo.RecordPaymentSubmission(reg.UserID, reg.TargetCity, due, "proof-1")
	require.NoError(t, err)
	require.True(t, found)
	found, err = a.repo.UpdatePaymentStatus(reg.UserID, reg.TargetCity, PaymentStatusConfirmed, "", 1500)
	require.NoError(t, err)
	require.True(t, found)

	msg := commandMessage("/pay")
	msg.From.ID = reg.UserID
	a.handlePay(msg)

	s, ok := a.dialogs.Get(reg.UserID)
	require.True(t, ok)
	require.Equal(t, StateAwaitProof, s.State)
	require.Contains(t, rec.texts[len(rec.texts)-1], "2500")

	// the remainder arrives: nothing left to collect
	found, err = a.repo.UpdatePaymentStatus(reg.UserID, reg.TargetCity, PaymentStatusConfirmed, "", 2500)
	require.NoError(t, err)
	require.True(t, found)
	a.dialogs.Clear(reg.UserID)

	a.handlePay(msg)
	_, ok = a.dialogs.Get(reg.UserID)
	require.False(t, ok)
	require.Contains(t, rec.texts[len(rec.texts)-1], "нет неоплаченных")
}
