package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fixedNow pins the sliding graduation-year bound for deterministic tests.
var fixedNow = time.Date(2025, time.September, 1, 12, 0, 0, 0, time.UTC)

func TestValidateFullName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"surname and name", "Иванов Иван", true},
		{"three words", "Иванова Анна Сергеевна", true},
		{"hyphenated surname", "Петрова-Водкина Мария", true},
		{"single word", "Иванов", false},
		{"empty", "", false},
		{"spaces only", "   ", false},
		{"latin letters", "Ivanov Ivan", false},
		{"digits inside", "Иванов Иван2", false},
		{"punctuation", "Иванов, Иван", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFullName(tt.input)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestValidateGraduationYear(t *testing.T) {
	require.NoError(t, ValidateGraduationYear(1996, fixedNow))
	require.NoError(t, ValidateGraduationYear(2010, fixedNow))
	require.NoError(t, ValidateGraduationYear(2024, fixedNow))

	require.ErrorIs(t, ValidateGraduationYear(1995, fixedNow), errYearFloor)

	// Current year through current+4 means the person has not graduated yet.
	require.ErrorIs(t, ValidateGraduationYear(2025, fixedNow), errNotYet)
	require.ErrorIs(t, ValidateGraduationYear(2029, fixedNow), errNotYet)

	// Further out is a typo, reported with a distinct message.
	require.ErrorIs(t, ValidateGraduationYear(2030, fixedNow), errYearFuture)
}

func TestValidateGraduationYearTracksClock(t *testing.T) {
	// The bound is relative to the clock, not a constant: the same year
	// flips from invalid to valid as time passes.
	later := time.Date(2030, time.June, 1, 0, 0, 0, 0, time.UTC)
	require.ErrorIs(t, ValidateGraduationYear(2025, fixedNow), errNotYet)
	require.NoError(t, ValidateGraduationYear(2025, later))
}

func TestValidateClassLetter(t *testing.T) {
	require.NoError(t, ValidateClassLetter("А"))
	require.NoError(t, ValidateClassLetter("б"))
	require.NoError(t, ValidateClassLetter(" В "))

	require.Error(t, ValidateClassLetter(""))
	require.Error(t, ValidateClassLetter("АБ"))
	require.Error(t, ValidateClassLetter("1"))
	require.Error(t, ValidateClassLetter("A")) // latin
}

func TestParseYearAndLetter(t *testing.T) {
	t.Run("space separated", func(t *testing.T) {
		year, letter, err := ParseYearAndLetter("2010 А", fixedNow)
		require.NoError(t, err)
		require.Equal(t, 2010, year)
		require.Equal(t, "А", letter)
	})

	t.Run("concatenated", func(t *testing.T) {
		year, letter, err := ParseYearAndLetter("2010А", fixedNow)
		require.NoError(t, err)
		require.Equal(t, 2010, year)
		require.Equal(t, "А", letter)
	})

	t.Run("bare year asks for the letter", func(t *testing.T) {
		year, letter, err := ParseYearAndLetter("2010", fixedNow)
		require.ErrorIs(t, err, ErrLetterNeeded)
		require.Equal(t, 2010, year)
		require.Empty(t, letter)
	})

	t.Run("garbage is a format error", func(t *testing.T) {
		_, _, err := ParseYearAndLetter("abc", fixedNow)
		require.ErrorIs(t, err, errYearLetter)
	})

	t.Run("empty input", func(t *testing.T) {
		_, _, err := ParseYearAndLetter("   ", fixedNow)
		require.ErrorIs(t, err, errYearLetter)
	})

	t.Run("year validator wins first", func(t *testing.T) {
		_, _, err := ParseYearAndLetter("1990 А", fixedNow)
		require.ErrorIs(t, err, errYearFloor)
	})

	t.Run("letter validator runs after the year", func(t *testing.T) {
		_, _, err := ParseYearAndLetter("2010 АБ", fixedNow)
		require.ErrorIs(t, err, errLetter)
	})

	t.Run("trailing tokens are not dropped", func(t *testing.T) {
		_, _, err := ParseYearAndLetter("2010 А Б", fixedNow)
		require.ErrorIs(t, err, errLetter)
	})

	t.Run("bad year in pair", func(t *testing.T) {
		_, _, err := ParseYearAndLetter("двадцать А", fixedNow)
		require.ErrorIs(t, err, errYearLetter)
	})

	t.Run("extra whitespace", func(t *testing.T) {
		year, letter, err := ParseYearAndLetter("  2010   б  ", fixedNow)
		require.NoError(t, err)
		require.Equal(t, 2010, year)
		require.Equal(t, "б", letter)
	})
}
