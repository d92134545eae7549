// Package dates turns the assorted date representations found in journal
// exports (native dates, YYYYMMDD integers, spreadsheet serials, free text)
// into civil.Date values.
package dates

import (
	"math"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// spreadsheetEpoch is day zero of the serial date system used by spreadsheets
// (1900 date system, including its phantom leap day).
var spreadsheetEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// textLayouts are tried in order after separators have been folded to '-'.
var textLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-1-2 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"01-02-2006",
	"1-2-2006",
}

// Normalize converts a single cell into a calendar date. The zero civil.Date
// (IsValid() == false) marks a value that could not be interpreted.
func Normalize(v any) civil.Date {
	switch x := v.(type) {
	case nil:
		return civil.Date{}
	case civil.Date:
		return x
	case *civil.Date:
		if x == nil {
			return civil.Date{}
		}
		return *x
	case civil.DateTime:
		return x.Date
	case time.Time:
		if x.IsZero() {
			return civil.Date{}
		}
		return civil.DateOf(x)
	case *time.Time:
		if x == nil || x.IsZero() {
			return civil.Date{}
		}
		return civil.DateOf(*x)
	case int:
		return fromNumber(float64(x))
	case int32:
		return fromNumber(float64(x))
	case int64:
		return fromNumber(float64(x))
	case uint:
		return fromNumber(float64(x))
	case uint32:
		return fromNumber(float64(x))
	case uint64:
		return fromNumber(float64(x))
	case float32:
		return fromNumber(float64(x))
	case float64:
		return fromNumber(x)
	case decimal.Decimal:
		f, _ := x.Float64()
		return fromNumber(f)
	case string:
		return fromText(x)
	default:
		return civil.Date{}
	}
}

// NormalizeColumn applies Normalize to every value of a column.
func NormalizeColumn(values []any) []civil.Date {
	out := make([]civil.Date, len(values))
	for i, v := range values {
		out[i] = Normalize(v)
	}
	return out
}

// fromNumber handles numeric cells: an 8-digit integer part is YYYYMMDD,
// anything else is a spreadsheet serial day count.
func fromNumber(f float64) civil.Date {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return civil.Date{}
	}
	whole := math.Trunc(f)
	if math.Abs(whole) < 1e15 {
		if s := strconv.FormatInt(int64(whole), 10); isEightDigits(s) {
			if d, ok := parseCompact(s); ok {
				return d
			}
			return civil.Date{}
		}
	}
	return fromSerial(f)
}

func fromSerial(f float64) civil.Date {
	days := math.Floor(f)
	// Beyond roughly ±5 million years time.Duration arithmetic overflows.
	if math.Abs(days) > 2e6 {
		return civil.Date{}
	}
	return civil.DateOf(spreadsheetEpoch.AddDate(0, 0, int(days)))
}

func fromText(s string) civil.Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return civil.Date{}
	}
	cleaned := strings.NewReplacer(".", "-", "/", "-").Replace(s)
	for _, layout := range textLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return civil.DateOf(t)
		}
	}
	if isEightDigits(cleaned) {
		if d, ok := parseCompact(cleaned); ok {
			return d
		}
	}
	return civil.Date{}
}

func parseCompact(s string) (civil.Date, bool) {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return civil.Date{}, false
	}
	return civil.DateOf(t), true
}

func isEightDigits(s string) bool {
	if len(s) != 8 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
