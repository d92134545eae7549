// Package rules implements the journal risk predicates. Every rule maps the
// whole ledger to a Mask with one entry per row; rules never fail on data
// problems, they flag nothing instead.
package rules

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind enumerates the supported rule kinds. The numeric value of a known kind
// is its fixed position in the legacy rule order.
type Kind int

const (
	KindUnknown Kind = iota
	KindWeekendOrHoliday
	KindAmountThreshold
	KindKeywordSearch
	KindPartyFrequency
	KindRoundMillion
	KindUniformAccountSet
	KindUnbalancedSet
)

// Kinds lists the known kinds in legacy order.
var Kinds = []Kind{
	KindWeekendOrHoliday,
	KindAmountThreshold,
	KindKeywordSearch,
	KindPartyFrequency,
	KindRoundMillion,
	KindUniformAccountSet,
	KindUnbalancedSet,
}

var kindIDs = map[Kind]string{
	KindWeekendOrHoliday:  "weekend_txn",
	KindAmountThreshold:   "amount_over",
	KindKeywordSearch:     "keyword_search",
	KindPartyFrequency:    "party_frequency",
	KindRoundMillion:      "round_million",
	KindUniformAccountSet: "uniform_account_set",
	KindUnbalancedSet:     "unbalanced_set",
}

var kindNames = map[Kind]string{
	KindWeekendOrHoliday:  "주말·공휴일 거래",
	KindAmountThreshold:   "금액 조건",
	KindKeywordSearch:     "특정 키워드",
	KindPartyFrequency:    "거래처 빈도",
	KindRoundMillion:      "백만원 단위 금액",
	KindUniformAccountSet: "단일 계정 전표",
	KindUnbalancedSet:     "대차 불일치 전표",
}

// ID returns the wire identifier of k ("" for KindUnknown).
func (k Kind) ID() string { return kindIDs[k] }

// DisplayName returns the Korean label shown to users and sent to the coach.
func (k Kind) DisplayName() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "알 수 없는 규칙"
}

func (k Kind) String() string {
	if id := k.ID(); id != "" {
		return id
	}
	return "unknown"
}

// KindOf resolves a wire identifier. Unrecognised ids yield KindUnknown.
func KindOf(id string) Kind {
	id = strings.TrimSpace(id)
	for k, v := range kindIDs {
		if v == id {
			return k
		}
	}
	return KindUnknown
}

// Rule is one configured predicate. The set of implementations is closed.
type Rule interface {
	Kind() Kind
	isRule()
}

// Target selects the amount column compared by AmountThreshold.
type Target string

const (
	// TargetEither compares both columns and flags a row when either matches.
	TargetEither Target = ""
	TargetDebit  Target = "debit"
	TargetCredit Target = "credit"
)

// Mode selects whether KeywordSearch flags matches or non-matches.
type Mode string

const (
	ModeInclude Mode = "include"
	ModeExclude Mode = "exclude"
)

type (
	// WeekendOrHoliday flags rows posted on a Saturday, Sunday or public holiday.
	WeekendOrHoliday struct{}

	// AmountThreshold compares an amount column against Value.
	AmountThreshold struct {
		Target Target
		Op     Operator
		Value  decimal.Decimal
	}

	// KeywordSearch looks for any keyword in the account subject or description.
	KeywordSearch struct {
		Keywords []string
		Mode     Mode
	}

	// PartyFrequency compares, per row, how many distinct voucher sets the
	// row's counterparty appears in.
	PartyFrequency struct {
		Op    Operator
		Value decimal.Decimal
	}

	// RoundMillion flags non-zero amounts that are exact multiples of 1,000,000.
	RoundMillion struct{}

	// UniformAccountSet flags rows of voucher sets that use a single account subject.
	UniformAccountSet struct{}

	// UnbalancedSet flags rows of voucher sets whose debit and credit sums differ.
	UnbalancedSet struct{}

	// Unknown stands in for an identifier or configuration that could not be
	// resolved. It never flags a row.
	Unknown struct {
		ID string
	}
)

func (WeekendOrHoliday) Kind() Kind  { return KindWeekendOrHoliday }
func (AmountThreshold) Kind() Kind   { return KindAmountThreshold }
func (KeywordSearch) Kind() Kind     { return KindKeywordSearch }
func (PartyFrequency) Kind() Kind    { return KindPartyFrequency }
func (RoundMillion) Kind() Kind      { return KindRoundMillion }
func (UniformAccountSet) Kind() Kind { return KindUniformAccountSet }
func (UnbalancedSet) Kind() Kind     { return KindUnbalancedSet }
func (Unknown) Kind() Kind           { return KindUnknown }

func (WeekendOrHoliday) isRule()  {}
func (AmountThreshold) isRule()   {}
func (KeywordSearch) isRule()     {}
func (PartyFrequency) isRule()    {}
func (RoundMillion) isRule()      {}
func (UniformAccountSet) isRule() {}
func (UnbalancedSet) isRule()     {}
func (Unknown) isRule()           {}

// Describe renders a rule with its parameters for logs, CLI output and prompts.
func Describe(r Rule) string {
	switch x := r.(type) {
	case AmountThreshold:
		col := "차변/대변"
		switch x.Target {
		case TargetDebit:
			col = "차변"
		case TargetCredit:
			col = "대변"
		}
		return fmt.Sprintf("%s (%s %s %s)", x.Kind().DisplayName(), col, x.Op, x.Value.String())
	case KeywordSearch:
		return fmt.Sprintf("%s (%s: %s)", x.Kind().DisplayName(), x.Mode, strings.Join(x.Keywords, ", "))
	case PartyFrequency:
		return fmt.Sprintf("%s (전표 수 %s %s)", x.Kind().DisplayName(), x.Op, x.Value.String())
	case Unknown:
		return fmt.Sprintf("%s (%q)", x.Kind().DisplayName(), x.ID)
	case nil:
		return Unknown{}.Kind().DisplayName()
	default:
		return r.Kind().DisplayName()
	}
}

// Info describes one catalogue entry.
type Info struct {
	ID     string   `json:"id"`
	Number int      `json:"number"`
	Name   string   `json:"name"`
	Params []string `json:"params,omitempty"`
}

// Catalogue lists every known rule in legacy order with its accepted parameters.
func Catalogue() []Info {
	params := map[Kind][]string{
		KindAmountThreshold: {"op", "value", "target"},
		KindKeywordSearch:   {"value", "mode"},
		KindPartyFrequency:  {"op", "value"},
	}
	out := make([]Info, 0, len(Kinds))
	for _, k := range Kinds {
		out = append(out, Info{ID: k.ID(), Number: int(k), Name: k.DisplayName(), Params: params[k]})
	}
	return out
}
