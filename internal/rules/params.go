package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownRule         = errors.New("unknown rule")
	ErrUnsupportedOperator = errors.New("unsupported operator")
	ErrInvalidValue        = errors.New("invalid rule value")
)

// Value is a rule parameter that callers send either as a JSON number or as
// text. It keeps the textual form; rules parse it as they need.
type Value string

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
	case '[':
		var items []any
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		parts := make([]string, 0, len(items))
		for _, it := range items {
			parts = append(parts, fmt.Sprint(it))
		}
		*v = Value(strings.Join(parts, ","))
	case '{':
		return fmt.Errorf("%w: object value", ErrInvalidValue)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			var b bool
			if errB := json.Unmarshal(data, &b); errB == nil {
				*v = Value(fmt.Sprint(b))
				return nil
			}
			return err
		}
		*v = Value(n.String())
	}
	return nil
}

// Decimal parses the value as a number; an empty value is zero.
func (v Value) Decimal() (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(string(v)), ",", "")
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, string(v))
	}
	return d, nil
}

// Params are the parameters of one rule as sent by callers.
type Params struct {
	Op     string `json:"op,omitempty"`
	Value  Value  `json:"value,omitempty"`
	Target string `json:"target,omitempty"`
	Mode   string `json:"mode,omitempty"`
}

// UnmarshalJSON accepts the object form as well as a bare string or number,
// which older clients send for keyword_search ("접대비,상품권").
func (p *Params) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		type plain Params
		var raw plain
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*p = Params(raw)
		return nil
	}
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	*p = Params{Value: v}
	return nil
}

// Build resolves a wire identifier and its parameters into a Rule. On error
// the returned rule is an Unknown that flags nothing, so callers may still
// evaluate it.
func Build(id string, p Params) (Rule, error) {
	switch KindOf(id) {
	case KindWeekendOrHoliday:
		return WeekendOrHoliday{}, nil
	case KindAmountThreshold:
		return buildAmount(id, p)
	case KindKeywordSearch:
		return buildKeyword(id, p)
	case KindPartyFrequency:
		op, value, err := comparison(p)
		if err != nil {
			return Unknown{ID: id}, fmt.Errorf("Build: %s: %w", id, err)
		}
		return PartyFrequency{Op: op, Value: value}, nil
	case KindRoundMillion:
		return RoundMillion{}, nil
	case KindUniformAccountSet:
		return UniformAccountSet{}, nil
	case KindUnbalancedSet:
		return UnbalancedSet{}, nil
	default:
		return Unknown{ID: id}, fmt.Errorf("Build: %w: %q", ErrUnknownRule, id)
	}
}

func buildAmount(id string, p Params) (Rule, error) {
	op, value, err := comparison(p)
	if err != nil {
		return Unknown{ID: id}, fmt.Errorf("Build: %s: %w", id, err)
	}
	var target Target
	switch t := strings.ToLower(strings.TrimSpace(p.Target)); t {
	case "":
		target = TargetEither
	case "debit", "차변":
		target = TargetDebit
	case "credit", "대변":
		target = TargetCredit
	default:
		return Unknown{ID: id}, fmt.Errorf("Build: %s: %w: target %q", id, ErrInvalidValue, p.Target)
	}
	return AmountThreshold{Target: target, Op: op, Value: value}, nil
}

func buildKeyword(id string, p Params) (Rule, error) {
	var mode Mode
	switch m := strings.ToLower(strings.TrimSpace(p.Mode)); m {
	case "", "include":
		mode = ModeInclude
	case "exclude":
		mode = ModeExclude
	default:
		return Unknown{ID: id}, fmt.Errorf("Build: %s: %w: mode %q", id, ErrInvalidValue, p.Mode)
	}
	return KeywordSearch{Keywords: ParseKeywords(string(p.Value)), Mode: mode}, nil
}

// comparison reads op and value. A missing operator means ">" and a missing
// value means zero, as the first clients assumed.
func comparison(p Params) (Operator, decimal.Decimal, error) {
	op := OpGreater
	if strings.TrimSpace(p.Op) != "" {
		var err error
		if op, err = ParseOperator(p.Op); err != nil {
			return "", decimal.Zero, err
		}
	}
	value, err := p.Value.Decimal()
	if err != nil {
		return "", decimal.Zero, err
	}
	return op, value, nil
}

// ParseKeywords splits a comma-separated list, trimming entries and dropping empties.
func ParseKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
