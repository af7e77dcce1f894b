package main

import (
	"database/sql"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const (
	dialogTTL = 5 * time.Minute
	proofTTL  = 20 * time.Minute
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if len(cfg.AdminUsers) == 0 {
		log.Warn().Msg("ADMIN_USERS not set, no one has admin privileges")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("bot auth failed")
	}
	log.Info().Str("account", bot.Self.UserName).Msg("authorized")

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("db open failed")
	}
	defer db.Close()

	repo := NewSQLiteRepository(db)
	if err := repo.CreateTables(); err != nil {
		log.Fatal().Err(err).Msg("schema init failed")
	}

	dialogs := NewDialogManager(dialogTTL, proofTTL)
	audit := NewAuditSink(bot, cfg.AuditChatID, log)
	app := NewApp(bot, repo, dialogs, cfg, audit, log)

	go app.runSessionJanitor(time.Minute)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := bot.GetUpdatesChan(u)
	if err != nil {
		log.Fatal().Err(err).Msg("update channel failed")
	}

	for update := range updates {
		app.HandleUpdate(update)
	}
}

// runSessionJanitor sweeps expired dialog sessions. A swept session never has
// a half-written registration behind it: rows are only written at the save
// step, so expiry just means dropping the draft and telling the user.
func (a *App) runSessionJanitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		for _, es := range a.dialogs.Expire() {
			a.sessionExpired(es)
		}
	}
}

// sessionExpired produces the user-visible terminal message for a timeout.
func (a *App) sessionExpired(es ExpiredSession) {
	a.log.Info().Int("user_id", es.UserID).Int("state", int(es.State)).Msg("session expired")

	switch es.State {
	case StateAwaitProof:
		// Registration is saved; count the user as "will pay later".
		city, ok := a.cfg.City(es.Draft.TargetCity)
		if ok {
			due := PaymentDueFor(city, es.Draft, a.cfg.ReferenceYear)
			if _, err := a.repo.RecordPaymentSubmission(es.UserID, es.Draft.TargetCity, due, ""); err != nil {
				a.log.Error().Err(err).Int("user_id", es.UserID).Msg("record submission failed")
			}
		}
		a.send(es.ChatID, "Не дождались скриншота оплаты. Ничего страшного — когда будете готовы, отправьте /pay")
	case StatePayChoice:
		a.send(es.ChatID, "Регистрация сохранена. Оплатить взнос можно в любой момент командой /pay")
	case StateFeedbackVenue, StateFeedbackProgram, StateFeedbackOverall, StateFeedbackComment:
		a.send(es.ChatID, "Опрос прерван. Если захотите поделиться впечатлениями — /feedback")
	default:
		a.send(es.ChatID, "Регистрация не была завершена и прервана по таймауту. Начать заново: /start")
	}
}
