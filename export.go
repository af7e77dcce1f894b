package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/skip2/go-qrcode"
)

func yesNo(b bool) string {
	if b {
		return "Да"
	}
	return "Нет"
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02.01.2006 15:04")
}

func registrationRow(reg Registration) []string {
	return []string{
		strconv.Itoa(reg.UserID),
		reg.Username,
		reg.FullName,
		strconv.Itoa(reg.GraduationYear),
		reg.ClassLetter,
		reg.TargetCity,
		string(reg.GraduateType),
		string(reg.PaymentStatus),
		strconv.Itoa(reg.PaymentAmount),
		formatTime(reg.PaymentAt),
		formatTime(reg.VerifiedAt),
		yesNo(reg.Visited),
	}
}

var exportHeader = []string{
	"ID Telegram",
	"Имя пользователя",
	"Полное имя",
	"Год выпуска",
	"Буква класса",
	"Город",
	"Категория",
	"Статус оплаты",
	"Оплачено",
	"Дата оплаты",
	"Дата проверки",
	"Посетил",
}

// buildCSV renders rows into an Excel-friendly CSV (UTF-8 BOM included).
func buildCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("\xEF\xBB\xBF")
	writer := csv.NewWriter(&buf)

	if err := writer.Write(header); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	return buf.Bytes(), writer.Error()
}

func (a *App) sendCSV(chatID int64, name, caption string, data []byte) {
	doc := tgbotapi.NewDocumentUpload(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	if _, err := a.bot.Send(doc); err != nil {
		a.log.Error().Err(err).Msg("csv send failed")
		a.send(chatID, "Ошибка отправки файла: "+err.Error())
	}
}

// handleExport sends all live registrations as a CSV document.
func (a *App) handleExport(msg *tgbotapi.Message) {
	regs, err := a.repo.AllRegistrations()
	if err != nil {
		a.log.Error().Err(err).Msg("export query failed")
		a.send(msg.Chat.ID, genericErrorText)
		return
	}
	if len(regs) == 0 {
		a.send(msg.Chat.ID, "Регистрации отсутствуют")
		return
	}

	rows := make([][]string, 0, len(regs))
	for _, reg := range regs {
		rows = append(rows, registrationRow(reg))
	}
	data, err := buildCSV(exportHeader, rows)
	if err != nil {
		a.send(msg.Chat.ID, "Ошибка формирования CSV: "+err.Error())
		return
	}
	filename := "registrations_" + time.Now().Format("20060102_150405") + ".csv"
	a.sendCSV(msg.Chat.ID, filename, fmt.Sprintf("Экспорт регистраций (%d записей)", len(regs)), data)
}

// handleExportArchive sends the cancellation archive as a CSV document.
func (a *App) handleExportArchive(msg *tgbotapi.Message) {
	archived, err := a.repo.ArchivedRegistrations()
	if err != nil {
		a.log.Error().Err(err).Msg("archive export query failed")
		a.send(msg.Chat.ID, genericErrorText)
		return
	}
	if len(archived) == 0 {
		a.send(msg.Chat.ID, "Архив пуст")
		return
	}

	header := append(append([]string{}, exportHeader...), "Дата удаления", "Причина")
	rows := make([][]string, 0, len(archived))
	for _, ar := range archived {
		row := append(registrationRow(ar.Registration),
			ar.DeletedAt.Format("02.01.2006 15:04"), ar.DeletionReason)
		rows = append(rows, row)
	}
	data, err := buildCSV(header, rows)
	if err != nil {
		a.send(msg.Chat.ID, "Ошибка формирования CSV: "+err.Error())
		return
	}
	filename := "archive_" + time.Now().Format("20060102_150405") + ".csv"
	a.sendCSV(msg.Chat.ID, filename, fmt.Sprintf("Экспорт архива (%d записей)", len(archived)), data)
}

// handleStats shows per-city registration counts and confirmed totals.
func (a *App) handleStats(msg *tgbotapi.Message) {
	stats, err := a.repo.CityStats()
	if err != nil {
		a.log.Error().Err(err).Msg("stats query failed")
		a.send(msg.Chat.ID, genericErrorText)
		return
	}
	if len(stats) == 0 {
		a.send(msg.Chat.ID, "Регистрации отсутствуют")
		return
	}
	var b strings.Builder
	b.WriteString("Статистика по городам:\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "• %s: %d чел., оплатили %d, собрано %d ₽\n",
			s.City, s.Registrations, s.Paid, s.ConfirmedSum)
	}
	a.send(msg.Chat.ID, b.String())
}

// handleQRCode generates the check-in QR with the "imhere" deep link.
func (a *App) handleQRCode(msg *tgbotapi.Message) {
	qrData := fmt.Sprintf("https://t.me/%s?start=imhere", a.bot.Self.UserName)
	qrFile := "qrcode_event.png"
	if err := qrcode.WriteFile(qrData, qrcode.Medium, 256, qrFile); err != nil {
		a.log.Error().Err(err).Msg("qr generation failed")
		a.send(msg.Chat.ID, "Ошибка генерации QR-кода")
		return
	}
	photo := tgbotapi.NewPhotoUpload(msg.Chat.ID, qrFile)
	photo.Caption = "QR-код для отметки о посещении"
	if _, err := a.bot.Send(photo); err != nil {
		a.log.Error().Err(err).Msg("qr send failed")
	}
	os.Remove(qrFile)
}
