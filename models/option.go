package models

import (
	"strconv"
	"time"
	"unicode"
)

// Right is the option contract type.
type Right string

const (
	RightCall Right = "call"
	RightPut  Right = "put"
)

const strikeDigits = 8

// OptionContract is an option symbol decomposed into its parts.
type OptionContract struct {
	Underlying string
	Expiry     time.Time
	Right      Right
	Strike     float64
}

// ParseOptionSymbol parses compact option symbols of the form
// {UNDERLYING}{YYMMDD}{C|P}{STRIKE}, where the strike is exactly eight
// digits in thousandths (AAPL250117C00150000). The second return value is
// false when the symbol is not an option.
func ParseOptionSymbol(symbol string) (OptionContract, bool) {
	// underlying(>=1) + date(6) + right(1) + strike(8)
	if len(symbol) < 1+6+1+strikeDigits {
		return OptionContract{}, false
	}

	strikeStr := symbol[len(symbol)-strikeDigits:]
	for _, r := range strikeStr {
		if !unicode.IsDigit(r) {
			return OptionContract{}, false
		}
	}

	rightCh := symbol[len(symbol)-strikeDigits-1]
	var right Right
	switch rightCh {
	case 'C':
		right = RightCall
	case 'P':
		right = RightPut
	default:
		return OptionContract{}, false
	}

	dateStr := symbol[len(symbol)-strikeDigits-1-6 : len(symbol)-strikeDigits-1]
	expiry, err := time.Parse("060102", dateStr)
	if err != nil {
		return OptionContract{}, false
	}

	underlying := symbol[:len(symbol)-strikeDigits-1-6]
	if underlying == "" {
		return OptionContract{}, false
	}
	for _, r := range underlying {
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return OptionContract{}, false
		}
	}

	strikeInt, err := strconv.ParseInt(strikeStr, 10, 64)
	if err != nil {
		return OptionContract{}, false
	}

	return OptionContract{
		Underlying: underlying,
		Expiry:     expiry,
		Right:      right,
		Strike:     float64(strikeInt) / 1000,
	}, true
}
