package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// graduationYearFloor is the first year the school produced graduates.
const graduationYearFloor = 1996

// ErrLetterNeeded is returned by ParseYearAndLetter when the input carried a
// valid year but no class letter; the caller should prompt for the letter
// alone instead of treating the input as malformed.
var ErrLetterNeeded = errors.New("class letter needed")

var (
	errNameFormat = errors.New("Пожалуйста, напишите фамилию и имя полностью, русскими буквами. Например: Иванов Иван")
	errYearFloor  = fmt.Errorf("Год выпуска не может быть раньше %d.", graduationYearFloor)
	errYearFuture = errors.New("Такой год выпуска ещё не наступил. Проверьте, не опечатались ли вы.")
	errNotYet     = errors.New("Бот предназначен только для выпускников. Похоже, вы ещё учитесь — приходите после выпуска!")
	errLetter     = errors.New("Буква класса — это одна русская буква. Например: А")
	errYearLetter = errors.New("Не получилось разобрать год выпуска и букву класса. Напишите их так: 2010 А")
)

// isRussianLetter reports whether r belongs to the Russian alphabet.
func isRussianLetter(r rune) bool {
	return (r >= 'А' && r <= 'я') || r == 'Ё' || r == 'ё'
}

// ValidateFullName checks that the name has at least two words and contains
// only Russian letters, spaces and hyphens.
func ValidateFullName(name string) error {
	trimmed := strings.TrimSpace(name)
	if len(strings.Fields(trimmed)) < 2 {
		return errNameFormat
	}
	for _, r := range trimmed {
		if !isRussianLetter(r) && r != ' ' && r != '-' {
			return errNameFormat
		}
	}
	return nil
}

// ValidateGraduationYear checks the year against the sliding valid range.
// The upper bound depends on the current date, so callers pass "now".
func ValidateGraduationYear(year int, now time.Time) error {
	if year < graduationYearFloor {
		return errYearFloor
	}
	current := now.Year()
	switch {
	case year >= current && year <= current+4:
		// Still in school: the event is for those who already graduated.
		return errNotYet
	case year > current+4:
		return errYearFuture
	}
	return nil
}

// ValidateClassLetter checks that letter is exactly one Russian letter.
func ValidateClassLetter(letter string) error {
	runes := []rune(strings.TrimSpace(letter))
	if len(runes) != 1 {
		return errLetter
	}
	if !isRussianLetter(runes[0]) || unicode.IsDigit(runes[0]) {
		return errLetter
	}
	return nil
}

// ParseYearAndLetter parses the combined "год выпуска + буква класса" input.
// Accepted shapes: "2010" (year only, letter asked next — ErrLetterNeeded),
// "2010 А" and "2010А". Anything else splits on the first whitespace and is
// tried the same way. The first failing validator's error wins.
func ParseYearAndLetter(text string, now time.Time) (int, string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, "", errYearLetter
	}

	var yearStr, letter string
	fields := strings.Fields(trimmed)
	if len(fields) >= 2 {
		// Everything after the year must be the letter; "2010 А Б" is malformed.
		yearStr, letter = fields[0], strings.Join(fields[1:], " ")
	} else {
		runes := []rune(trimmed)
		if allDigits(runes) {
			year, err := strconv.Atoi(trimmed)
			if err != nil {
				return 0, "", errYearLetter
			}
			if err := ValidateGraduationYear(year, now); err != nil {
				return 0, "", err
			}
			return year, "", ErrLetterNeeded
		}
		if len(runes) > 4 && allDigits(runes[:4]) {
			// concatenated "2010А"
			yearStr, letter = string(runes[:4]), string(runes[4:])
		} else {
			return 0, "", errYearLetter
		}
	}

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return 0, "", errYearLetter
	}
	if err := ValidateGraduationYear(year, now); err != nil {
		return 0, "", err
	}
	if err := ValidateClassLetter(letter); err != nil {
		return 0, "", err
	}
	return year, strings.TrimSpace(letter), nil
}

func allDigits(runes []rune) bool {
	if len(runes) == 0 {
		return false
	}
	for _, r := range runes {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
