package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// CityConfig describes one event location and its fee parameters.
// Amounts are integers in the smallest currency unit.
type CityConfig struct {
	Name      string `yaml:"name"`
	FeeExempt bool   `yaml:"fee_exempt"`
	EventDate string `yaml:"event_date"` // YYYY-MM-DD, display only
	Venue     string `yaml:"venue"`
	Base      int    `yaml:"base"`     // formula base
	Step      int    `yaml:"step"`     // added per year since graduation
	Cap       int    `yaml:"cap"`      // hard ceiling for the regular amount
	Discount  int    `yaml:"discount"` // flat early-registration discount
}

// Config represents the bot configuration.
type Config struct {
	BotToken         string
	AdminUsers       []string
	AuditChatID      int64
	DBPath           string
	ReferenceYear    int    // event season year used by the fee formula
	PaymentRecipient string // card/phone the user transfers to
	Cities           []CityConfig
}

// citiesFile is the optional YAML overlay for the season table.
type citiesFile struct {
	ReferenceYear    int          `yaml:"reference_year"`
	PaymentRecipient string       `yaml:"payment_recipient"`
	Cities           []CityConfig `yaml:"cities"`
}

// defaultCities is the built-in season table, used when no CITIES_FILE is given.
func defaultCities() []CityConfig {
	return []CityConfig{
		{Name: "Москва", EventDate: "2025-09-27", Venue: "бар «Выпускной»", Base: 1000, Step: 200, Cap: 5000, Discount: 500},
		{Name: "Санкт-Петербург", EventDate: "2025-10-04", Venue: "лофт на Лиговском", Base: 800, Step: 150, Cap: 4000, Discount: 400},
		{Name: "Белгород", EventDate: "2025-08-23", Venue: "школьный двор", FeeExempt: true},
	}
}

// LoadConfig loads configuration from .env file, environment variables and
// the optional YAML city table.
func LoadConfig() (*Config, error) {
	config := &Config{
		AdminUsers:       []string{},
		DBPath:           "./bot.db",
		ReferenceYear:    2025,
		PaymentRecipient: "+7 900 000-00-00 (Сбер)",
		Cities:           defaultCities(),
	}

	// Try to load from .env file
	if err := loadEnvFile(".env"); err == nil {
		fmt.Fprintln(os.Stderr, "loaded .env file")
	}

	config.BotToken = os.Getenv("BOT_TOKEN")

	if adminUsers := os.Getenv("ADMIN_USERS"); adminUsers != "" {
		config.AdminUsers = parseCommaSeparated(adminUsers)
	}

	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		config.DBPath = dbPath
	}

	if chatID := os.Getenv("AUDIT_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid AUDIT_CHAT_ID: %w", err)
		}
		config.AuditChatID = id
	}

	if refYear := os.Getenv("REFERENCE_YEAR"); refYear != "" {
		year, err := strconv.Atoi(refYear)
		if err != nil {
			return nil, fmt.Errorf("invalid REFERENCE_YEAR: %w", err)
		}
		config.ReferenceYear = year
	}

	if citiesPath := os.Getenv("CITIES_FILE"); citiesPath != "" {
		if err := config.loadCitiesFile(citiesPath); err != nil {
			return nil, err
		}
	}

	if config.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}
	if len(config.Cities) == 0 {
		return nil, fmt.Errorf("city table is empty")
	}

	return config, nil
}

// loadCitiesFile replaces the built-in season table with the YAML one.
func (c *Config) loadCitiesFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read cities file: %w", err)
	}
	var f citiesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse cities file: %w", err)
	}
	if len(f.Cities) > 0 {
		c.Cities = f.Cities
	}
	if f.ReferenceYear != 0 {
		c.ReferenceYear = f.ReferenceYear
	}
	if f.PaymentRecipient != "" {
		c.PaymentRecipient = f.PaymentRecipient
	}
	return nil
}

// City looks up a city by name.
func (c *Config) City(name string) (CityConfig, bool) {
	for _, city := range c.Cities {
		if city.Name == name {
			return city, true
		}
	}
	return CityConfig{}, false
}

// IsAdmin checks if a username is in the list of admin users.
func (c *Config) IsAdmin(username string) bool {
	for _, admin := range c.AdminUsers {
		if admin == username {
			return true
		}
	}
	return false
}

// loadEnvFile loads environment variables from a .env file.
func loadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			value = strings.Trim(value, `"'`)
			os.Setenv(key, value)
		}
	}

	return scanner.Err()
}

// parseCommaSeparated parses a comma-separated string into a slice.
func parseCommaSeparated(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
