package rules

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/isony10/EntryChecker/internal/dates"
	"github.com/isony10/EntryChecker/internal/holiday"
	"github.com/isony10/EntryChecker/internal/journal"
	"github.com/isony10/EntryChecker/internal/voucher"
	"github.com/shopspring/decimal"
)

var million = decimal.NewFromInt(1_000_000)

// Env is the per-call evaluation context. Derived data (normalized dates and
// the voucher index) is computed on first use and shared by every rule
// evaluated against the same Env. An Env is not safe for concurrent use.
type Env struct {
	Ledger   *journal.Ledger
	Holidays holiday.Calendar

	dates    []civil.Date
	vouchers *voucher.Index
}

// NewEnv prepares an evaluation context. A nil calendar means no holidays.
func NewEnv(l *journal.Ledger, cal holiday.Calendar) *Env {
	if cal == nil {
		cal = holiday.None{}
	}
	if l == nil {
		l = journal.Load(nil, nil)
	}
	return &Env{Ledger: l, Holidays: cal}
}

// Len is the number of rows every mask must cover.
func (e *Env) Len() int { return e.Ledger.Len() }

// Vouchers returns the voucher index, grouping the ledger on first call.
func (e *Env) Vouchers() *voucher.Index {
	if e.vouchers == nil {
		e.vouchers = voucher.Build(e.Ledger)
	}
	return e.vouchers
}

// Dates returns the normalized posting dates.
func (e *Env) Dates() []civil.Date {
	if e.dates == nil {
		e.dates = dates.NormalizeColumn(e.Ledger.PostingDates())
	}
	return e.dates
}

// Evaluate applies r to every row. Missing columns and unresolved rules give
// an all-false mask.
func Evaluate(env *Env, r Rule) Mask {
	switch x := r.(type) {
	case WeekendOrHoliday:
		return weekendOrHoliday(env)
	case AmountThreshold:
		return amountThreshold(env, x)
	case KeywordSearch:
		return keywordSearch(env, x)
	case PartyFrequency:
		return partyFrequency(env, x)
	case RoundMillion:
		return roundMillion(env)
	case UniformAccountSet:
		return uniformAccountSet(env)
	case UnbalancedSet:
		return unbalancedSet(env)
	default:
		return NewMask(env.Len())
	}
}

func weekendOrHoliday(env *Env) Mask {
	m := NewMask(env.Len())
	if !env.Ledger.Has(journal.FieldPostingDate) {
		return m
	}
	for i, d := range env.Dates() {
		if !d.IsValid() {
			continue
		}
		switch d.In(time.UTC).Weekday() {
		case time.Saturday, time.Sunday:
			m[i] = true
		default:
			m[i] = env.Holidays.IsHoliday(d)
		}
	}
	return m
}

func amountThreshold(env *Env, r AmountThreshold) Mask {
	m := NewMask(env.Len())
	switch {
	case !r.Op.Valid():
		return m
	case r.Target != TargetEither && r.Target != TargetDebit && r.Target != TargetCredit:
		return m
	}
	useDebit := r.Target != TargetCredit && env.Ledger.Has(journal.FieldDebit)
	useCredit := r.Target != TargetDebit && env.Ledger.Has(journal.FieldCredit)
	for i, e := range env.Ledger.Entries {
		m[i] = (useDebit && r.Op.Compare(e.Debit, r.Value)) ||
			(useCredit && r.Op.Compare(e.Credit, r.Value))
	}
	return m
}

func keywordSearch(env *Env, r KeywordSearch) Mask {
	m := NewMask(env.Len())
	if len(r.Keywords) == 0 || !env.Ledger.Has(journal.FieldAccount) {
		return m
	}
	if r.Mode != ModeInclude && r.Mode != ModeExclude {
		return m
	}
	needles := make([]string, len(r.Keywords))
	for i, k := range r.Keywords {
		needles[i] = strings.ToLower(k)
	}
	for i, e := range env.Ledger.Entries {
		subject := strings.ToLower(e.AccountSubject)
		desc := strings.ToLower(e.Description)
		for _, n := range needles {
			if strings.Contains(subject, n) || strings.Contains(desc, n) {
				m[i] = true
				break
			}
		}
	}
	if r.Mode == ModeExclude {
		return m.Not()
	}
	return m
}

func partyFrequency(env *Env, r PartyFrequency) Mask {
	m := NewMask(env.Len())
	if !r.Op.Valid() || !env.Ledger.Has(journal.FieldCounterparty, journal.FieldPostingDate, journal.FieldVoucherNo) {
		return m
	}
	idx := env.Vouchers()
	for i, e := range env.Ledger.Entries {
		if e.Counterparty == "" {
			continue
		}
		m[i] = r.Op.Compare(decimal.NewFromInt(int64(idx.PartyCount(e.Counterparty))), r.Value)
	}
	return m
}

func roundMillion(env *Env) Mask {
	m := NewMask(env.Len())
	for i, e := range env.Ledger.Entries {
		m[i] = isRoundMillion(e.Debit) || isRoundMillion(e.Credit)
	}
	return m
}

func isRoundMillion(d decimal.Decimal) bool {
	return !d.IsZero() && d.Abs().Mod(million).IsZero()
}

func uniformAccountSet(env *Env) Mask {
	m := NewMask(env.Len())
	if !env.Ledger.Has(journal.FieldPostingDate, journal.FieldVoucherNo, journal.FieldAccount) {
		return m
	}
	idx := env.Vouchers()
	for i := range m {
		if s := idx.SetOf(i); s != nil {
			m[i] = s.DistinctAccounts() == 1
		}
	}
	return m
}

func unbalancedSet(env *Env) Mask {
	m := NewMask(env.Len())
	if !env.Ledger.Has(journal.FieldPostingDate, journal.FieldVoucherNo, journal.FieldDebit, journal.FieldCredit) {
		return m
	}
	idx := env.Vouchers()
	for i := range m {
		if s := idx.SetOf(i); s != nil {
			m[i] = !s.Balanced()
		}
	}
	return m
}
