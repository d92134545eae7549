package rules

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Operator is a numeric comparison.
type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpEqual        Operator = "=="
	OpLessEqual    Operator = "<="
	OpLess         Operator = "<"
)

// ParseOperator accepts the five comparison symbols; "=" is read as "==".
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(strings.TrimSpace(s)); op {
	case OpGreater, OpGreaterEqual, OpEqual, OpLessEqual, OpLess:
		return op, nil
	case "=":
		return OpEqual, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedOperator, s)
	}
}

// Valid reports whether o is one of the supported comparisons.
func (o Operator) Valid() bool {
	switch o {
	case OpGreater, OpGreaterEqual, OpEqual, OpLessEqual, OpLess:
		return true
	}
	return false
}

// Compare evaluates a <o> b. Unsupported operators compare false.
func (o Operator) Compare(a, b decimal.Decimal) bool {
	c := a.Cmp(b)
	switch o {
	case OpGreater:
		return c > 0
	case OpGreaterEqual:
		return c >= 0
	case OpEqual:
		return c == 0
	case OpLessEqual:
		return c <= 0
	case OpLess:
		return c < 0
	default:
		return false
	}
}
