package journal

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Table is a fully loaded tabular dataset as produced by an ingestion source.
// Cells hold nil, string, float64/int64, bool, time.Time, civil.Date or decimal.Decimal.
type Table struct {
	Headers []string
	Rows    [][]any
}

// NewTable builds a table and pads short rows to the header width.
func NewTable(headers []string, rows [][]any) *Table {
	t := &Table{Headers: headers, Rows: make([][]any, len(rows))}
	for i, r := range rows {
		if len(r) < len(headers) {
			padded := make([]any, len(headers))
			copy(padded, r)
			r = padded
		}
		t.Rows[i] = r
	}
	return t
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the position of the header named name (whitespace-insensitive), or -1.
func (t *Table) ColumnIndex(name string) int {
	want := strings.TrimSpace(name)
	for i, h := range t.Headers {
		if strings.TrimSpace(h) == want {
			return i
		}
	}
	return -1
}

// Cell returns the value at row i, column c, or nil when out of range.
func (t *Table) Cell(i, c int) any {
	if c < 0 || i < 0 || i >= len(t.Rows) || c >= len(t.Rows[i]) {
		return nil
	}
	return t.Rows[i][c]
}

// Column returns a copy of column c.
func (t *Table) Column(c int) []any {
	out := make([]any, len(t.Rows))
	for i := range t.Rows {
		out[i] = t.Cell(i, c)
	}
	return out
}

// CellString renders a cell as text for grouping keys and keyword search.
// Integral floats print without a fractional part so that 1001 and 1001.0 agree.
func CellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return CellString(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case decimal.Decimal:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	case civil.Date:
		return x.String()
	case *big.Rat:
		if x == nil {
			return ""
		}
		return strings.TrimRight(strings.TrimRight(x.FloatString(9), "0"), ".")
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// IsBlank reports whether a cell is missing: nil, NaN or whitespace-only text.
func IsBlank(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case float64:
		return math.IsNaN(x)
	default:
		return false
	}
}

// ToDecimal coerces a cell to a number. Missing or unparsable values become zero,
// with ok reporting whether a number was actually found.
func ToDecimal(v any) (d decimal.Decimal, ok bool) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return x, true
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, false
		}
		return *x, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(x), true
	case float32:
		return ToDecimal(float64(x))
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int32:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case uint32:
		return decimal.NewFromInt(int64(x)), true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", "")
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case *big.Rat:
		if x == nil {
			return decimal.Zero, false
		}
		return ToDecimal(x.FloatString(9))
	default:
		return decimal.Zero, false
	}
}

// DisplayValue converts a cell to a value encoding/json renders as a plain
// JSON scalar. Decimals become numbers and non-finite numbers become null.
func DisplayValue(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case float32:
		return DisplayValue(float64(x))
	case decimal.Decimal:
		return x.InexactFloat64()
	case *big.Rat:
		if x == nil {
			return nil
		}
		f, _ := x.Float64()
		return f
	default:
		return v
	}
}
