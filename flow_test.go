package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// The scenarios below walk the registration and payment steps the way the
// conversation does, against a real in-memory store, without the transport.

func TestScenarioNewUserRegistersAndOwes(t *testing.T) {
	repo := newTestRepo(t)
	cfg := &Config{Cities: defaultCities(), ReferenceYear: 2025}

	// City selection.
	city, ok := cfg.City("Москва")
	require.True(t, ok)

	// Identity collection: name, then year+letter in one message.
	require.NoError(t, ValidateFullName("Иванов Иван"))
	year, letter, err := ParseYearAndLetter("2010 А", fixedNow)
	require.NoError(t, err)

	draft := Registration{
		UserID:         42,
		Username:       "ivanov",
		FullName:       "Иванов Иван",
		GraduationYear: year,
		ClassLetter:    letter,
		TargetCity:     city.Name,
		GraduateType:   GraduateTypeGraduate,
	}

	// Explicit save step.
	require.NoError(t, repo.UpsertRegistration(draft))

	saved, err := repo.FindRegistration(42, "Москва")
	require.NoError(t, err)
	require.NotNil(t, saved)
	require.Equal(t, "Москва", saved.TargetCity)
	require.Equal(t, 2010, saved.GraduationYear)
	require.Equal(t, "А", saved.ClassLetter)

	// Payment handoff: 1000 + 200*(2025-2010) = 4000, discount 500.
	due := PaymentDueFor(city, *saved, cfg.ReferenceYear)
	require.Equal(t, 4000, due.Formula)
	require.Equal(t, 4000, due.Regular)
	require.Equal(t, 3500, due.Discounted)

	// Proof submitted, admin confirms.
	found, err := repo.RecordPaymentSubmission(42, "Москва", due, "proof-abc")
	require.NoError(t, err)
	require.True(t, found)
	found, err = repo.UpdatePaymentStatus(42, "Москва", PaymentStatusConfirmed, "", due.Discounted)
	require.NoError(t, err)
	require.True(t, found)

	paid, err := repo.FindRegistration(42, "Москва")
	require.NoError(t, err)
	require.Equal(t, PaymentStatusConfirmed, paid.PaymentStatus)
	require.Equal(t, 3500, paid.PaymentAmount)
}

func TestScenarioDegradedYearThenLetter(t *testing.T) {
	// A bare year is accepted and only the letter is asked on the next turn.
	year, letter, err := ParseYearAndLetter("2010", fixedNow)
	require.ErrorIs(t, err, ErrLetterNeeded)
	require.Equal(t, 2010, year)
	require.Empty(t, letter)

	require.NoError(t, ValidateClassLetter("А"))
}

func TestScenarioFeeExemptCitySkipsPayment(t *testing.T) {
	cfg := &Config{Cities: defaultCities(), ReferenceYear: 2025}
	city, ok := cfg.City("Белгород")
	require.True(t, ok)

	reg := testRegistration()
	reg.TargetCity = city.Name
	due := PaymentDueFor(city, reg, cfg.ReferenceYear)
	require.Zero(t, due.Regular, "fee-exempt city finishes without payment handoff")
}

func TestScenarioExistingUserGetsManageMenuData(t *testing.T) {
	// The entry decision is driven by how many registrations the user has.
	repo := newTestRepo(t)
	require.NoError(t, repo.UpsertRegistration(testRegistration()))

	regs, err := repo.FindRegistrations(42)
	require.NoError(t, err)
	require.Len(t, regs, 1, "one registration routes to the manage menu, not identity collection")

	reg := testRegistration()
	reg.TargetCity = "Санкт-Петербург"
	require.NoError(t, repo.UpsertRegistration(reg))

	regs, err = repo.FindRegistrations(42)
	require.NoError(t, err)
	require.Len(t, regs, 2, "several registrations route to the aggregate menu")
}

func TestScenarioCancellationKeepsAuditTrail(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.UpsertRegistration(testRegistration()))

	removed, err := repo.ArchiveAndRemove(42, "Москва", "user cancel")
	require.NoError(t, err)
	require.True(t, removed)

	regs, err := repo.FindRegistrations(42)
	require.NoError(t, err)
	require.Empty(t, regs)

	archived, err := repo.ArchivedRegistrations()
	require.NoError(t, err)
	require.Len(t, archived, 1)

	// Re-registering after cancellation starts clean.
	require.NoError(t, repo.UpsertRegistration(testRegistration()))
	reg, err := repo.FindRegistration(42, "Москва")
	require.NoError(t, err)
	require.Equal(t, PaymentStatusNone, reg.PaymentStatus)
}

func TestScenarioAbandonedSessionWritesNothing(t *testing.T) {
	repo := newTestRepo(t)
	dm := NewDialogManager(0, 0) // everything expires immediately

	s := Session{State: StateAwaitYearLetter, ChatID: 100}
	s.Draft = Registration{UserID: 42, TargetCity: "Москва", FullName: "Иванов Иван"}
	dm.Put(42, s)

	expired := dm.Expire()
	require.Len(t, expired, 1)

	// The draft only ever lived in the session.
	reg, err := repo.FindRegistration(42, "Москва")
	require.NoError(t, err)
	require.Nil(t, reg)
}

func TestScenarioPartialPayments(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.UpsertRegistration(testRegistration()))

	due := PaymentDue{Regular: 4000, Discounted: 3500, Formula: 4000}
	_, err := repo.RecordPaymentSubmission(42, "Москва", due, "proof-1")
	require.NoError(t, err)

	// The admin confirms two partial transfers.
	_, err = repo.UpdatePaymentStatus(42, "Москва", PaymentStatusConfirmed, "", 1000)
	require.NoError(t, err)
	_, err = repo.UpdatePaymentStatus(42, "Москва", PaymentStatusConfirmed, "", 500)
	require.NoError(t, err)

	reg, err := repo.FindRegistration(42, "Москва")
	require.NoError(t, err)
	require.Equal(t, 1500, reg.PaymentAmount)

	history, err := repo.PaymentHistory(42, "Москва")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, 1500, history[1].TotalAfter)
}
