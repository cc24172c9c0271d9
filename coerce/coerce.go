// Package coerce converts raw feed tokens (fixed-width substrings, CSV cells)
// into typed values. The legacy back ends use padding and zero sentinels
// instead of real nulls, so most helpers here map blank/zero tokens to null.
package coerce

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var (
	locOnce sync.Once
	loc     *time.Location
)

// Location returns the business timezone the feeds' naive timestamps are
// interpreted in. Override with FEED_TIMEZONE; falls back to UTC only if the
// zone cannot be loaded.
func Location() *time.Location {
	locOnce.Do(func() {
		name := strings.TrimSpace(os.Getenv("FEED_TIMEZONE"))
		if name == "" {
			name = "America/New_York"
		}
		var err error
		loc, err = time.LoadLocation(name)
		if err != nil {
			loc = time.UTC
		}
	})
	return loc
}

// Cell trims left/right padding (spaces) from a token.
func Cell(tok string) string {
	return strings.TrimSpace(tok)
}

// IsBlankOrZeros reports whether a token is a null sentinel: empty, all spaces,
// or all zeros.
func IsBlankOrZeros(tok string) bool {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return true
	}
	for _, r := range tok {
		if r != '0' {
			return false
		}
	}
	return true
}

// NullIfBlankOrZeros maps the zero/blank sentinel to the empty string and trims
// padding otherwise.
func NullIfBlankOrZeros(tok string) string {
	if IsBlankOrZeros(tok) {
		return ""
	}
	return strings.TrimSpace(tok)
}

// Amount parses an unsigned digit string with an implied decimal point at the
// given scale, e.g. Amount("000000012345", 2) => 123.45. Blank and all-zero
// tokens are the legacy null sentinel.
func Amount(tok string, scale int32) decimal.NullDecimal {
	tok = strings.TrimSpace(tok)
	if IsBlankOrZeros(tok) {
		return decimal.NullDecimal{}
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: decimal.New(n, -scale), Valid: true}
}

// DecimalCell parses a delimited-dialect numeric cell carrying a literal
// decimal point. Leading/trailing space is trimmed before coercion; a blank
// cell is null.
func DecimalCell(tok string) decimal.NullDecimal {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(tok)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// IntCell parses an integer cell; blank or unparsable is zero.
func IntCell(tok string) int {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return 0
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0
	}
	return n
}

// PortCode trims a port / transport mode code; a multi-digit code that trims to
// all zeros is null.
func PortCode(tok string) string {
	return NullIfBlankOrZeros(tok)
}

// Timestamp parses a bare YYYYMMDDHHmm (or date-only YYYYMMDD) token in the
// business timezone. Blank/zero tokens and unparsable tokens are null.
//
// A known upstream bug emits a minutes component of exactly 60 (e.g. "...2260");
// it is normalized by rolling into the next hour of the same nominal date
// rather than rejected.
func Timestamp(tok string) *time.Time {
	tok = strings.TrimSpace(tok)
	if IsBlankOrZeros(tok) {
		return nil
	}

	if len(tok) < 8 {
		return nil
	}
	year, err := strconv.Atoi(tok[0:4])
	if err != nil {
		return nil
	}
	month, err := strconv.Atoi(tok[4:6])
	if err != nil {
		return nil
	}
	day, err := strconv.Atoi(tok[6:8])
	if err != nil {
		return nil
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}

	hour, minute := 0, 0
	if len(tok) >= 12 {
		hour, err = strconv.Atoi(tok[8:10])
		if err != nil {
			return nil
		}
		minute, err = strconv.Atoi(tok[10:12])
		if err != nil {
			return nil
		}
		if minute == 60 {
			hour++
			minute = 0
		}
		if hour > 24 || minute > 59 {
			return nil
		}
	}

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, Location())
	return &t
}

// SplitStateCode splits a 3-character pseudo-country code into a real country
// code plus a US state sub-code. The legacy layouts prefix state-level origin
// with "U" (e.g. "UCA" => country US, state CA); anything else passes through
// as a plain country code.
func SplitStateCode(code string) (country string, state string) {
	code = strings.TrimSpace(code)
	if len(code) == 3 && code[0] == 'U' {
		return "US", code[1:]
	}
	if len(code) > 2 {
		return code[:2], ""
	}
	return code, ""
}
