package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCityLookup(t *testing.T) {
	cfg := &Config{Cities: defaultCities()}

	city, ok := cfg.City("Москва")
	require.True(t, ok)
	require.Equal(t, 1000, city.Base)
	require.Equal(t, 200, city.Step)
	require.False(t, city.FeeExempt)

	city, ok = cfg.City("Белгород")
	require.True(t, ok)
	require.True(t, city.FeeExempt)

	_, ok = cfg.City("Воронеж")
	require.False(t, ok)
}

func TestIsAdmin(t *testing.T) {
	cfg := &Config{AdminUsers: []string{"org1", "org2"}}
	require.True(t, cfg.IsAdmin("org1"))
	require.False(t, cfg.IsAdmin("someone"))
	require.False(t, cfg.IsAdmin(""))
}

func TestLoadCitiesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.yaml")
	content := `
reference_year: 2026
payment_recipient: "+7 911 111-11-11"
cities:
  - name: "Казань"
    event_date: "2026-09-12"
    base: 500
    step: 100
    cap: 3000
    discount: 300
  - name: "Белгород"
    fee_exempt: true
    event_date: "2026-08-22"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := &Config{Cities: defaultCities(), ReferenceYear: 2025}
	require.NoError(t, cfg.loadCitiesFile(path))

	require.Equal(t, 2026, cfg.ReferenceYear)
	require.Equal(t, "+7 911 111-11-11", cfg.PaymentRecipient)
	require.Len(t, cfg.Cities, 2, "file replaces the built-in table")

	kazan, ok := cfg.City("Казань")
	require.True(t, ok)
	require.Equal(t, 500, kazan.Base)
	require.Equal(t, 3000, kazan.Cap)

	belgorod, ok := cfg.City("Белгород")
	require.True(t, ok)
	require.True(t, belgorod.FeeExempt)
}

func TestLoadCitiesFileMissing(t *testing.T) {
	cfg := &Config{Cities: defaultCities()}
	require.Error(t, cfg.loadCitiesFile("/no/such/file.yaml"))
}

func TestParseCommaSeparated(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, parseCommaSeparated(" a , b "))
	require.Empty(t, parseCommaSeparated(" , "))
}
