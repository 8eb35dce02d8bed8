package services

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var ratingPattern = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParsePriceCents normalises a price string into cents. Currency symbols,
// thousands separators, and surrounding text are stripped, so "$1,299.99"
// and "1299.99" both parse to 129999.
func ParsePriceCents(raw string) (int64, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-':
			return r
		default:
			return -1
		}
	}, raw)
	if cleaned == "" {
		return 0, errors.New("price is empty")
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, errors.New("price is not a number")
	}
	if value < 0 {
		return 0, errors.New("price must not be negative")
	}

	return int64(math.Round(value * 100)), nil
}

// ParseRating extracts a 0-5 star rating from free text such as
// "4.1 out of 5 stars".
func ParseRating(raw string) (float64, error) {
	match := ratingPattern.FindString(raw)
	if match == "" {
		return 0, errors.New("rating contains no number")
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, errors.New("rating is not a number")
	}
	if value < 0 || value > 5 {
		return 0, errors.New("rating must be between 0 and 5")
	}
	return value, nil
}
