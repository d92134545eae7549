// Package voucher groups journal entries into voucher sets (all lines that
// share a posting date and voucher number) and precomputes the set-level
// aggregates the set-based rules look up per row.
package voucher

import (
	"github.com/isony10/EntryChecker/internal/dates"
	"github.com/isony10/EntryChecker/internal/journal"
	"github.com/shopspring/decimal"
)

// Key identifies a voucher set.
type Key struct {
	Date      string `json:"date"`
	VoucherNo string `json:"voucherNo"`
}

// Set is one voucher set with its aggregates.
type Set struct {
	Key      Key
	Rows     []int
	Debit    decimal.Decimal
	Credit   decimal.Decimal
	accounts map[string]struct{}
}

// Balanced reports whether summed debit equals summed credit.
func (s *Set) Balanced() bool {
	return s.Debit.Equal(s.Credit)
}

// DistinctAccounts is the number of distinct account subjects in the set.
func (s *Set) DistinctAccounts() int {
	return len(s.accounts)
}

// Index is the result of one grouping pass over a ledger.
type Index struct {
	sets        []*Set
	rowSet      []int // set position per row, -1 when the row has no key
	partyCounts map[string]int
}

// Build groups the ledger in a single pass. Sets keep first-appearance order.
// Rows with a blank posting date or voucher number belong to no set.
func Build(l *journal.Ledger) *Index {
	idx := &Index{
		rowSet:      make([]int, l.Len()),
		partyCounts: make(map[string]int),
	}
	if !l.Has(journal.FieldPostingDate, journal.FieldVoucherNo) {
		for i := range idx.rowSet {
			idx.rowSet[i] = -1
		}
		return idx
	}

	positions := make(map[Key]int)
	partySets := make(map[string]map[int]struct{})

	for i, e := range l.Entries {
		key, ok := keyOf(e)
		if !ok {
			idx.rowSet[i] = -1
			continue
		}

		pos, exists := positions[key]
		if !exists {
			pos = len(idx.sets)
			positions[key] = pos
			idx.sets = append(idx.sets, &Set{Key: key, accounts: make(map[string]struct{})})
		}
		idx.rowSet[i] = pos

		s := idx.sets[pos]
		s.Rows = append(s.Rows, i)
		s.Debit = s.Debit.Add(e.Debit)
		s.Credit = s.Credit.Add(e.Credit)
		s.accounts[e.AccountSubject] = struct{}{}

		if e.Counterparty != "" {
			if partySets[e.Counterparty] == nil {
				partySets[e.Counterparty] = make(map[int]struct{})
			}
			partySets[e.Counterparty][pos] = struct{}{}
		}
	}

	for party, sets := range partySets {
		idx.partyCounts[party] = len(sets)
	}
	return idx
}

// keyOf derives the grouping key. Dates that normalize are keyed by their
// calendar date so that 20240106 and "2024-01-06" land in the same set.
func keyOf(e journal.Entry) (Key, bool) {
	if e.PostingDate == nil || e.VoucherNo == "" {
		return Key{}, false
	}
	date := journal.CellString(e.PostingDate)
	if d := dates.Normalize(e.PostingDate); d.IsValid() {
		date = d.String()
	}
	return Key{Date: date, VoucherNo: e.VoucherNo}, true
}

// Sets returns the voucher sets in first-appearance order.
func (x *Index) Sets() []*Set {
	return x.sets
}

// SetOf returns the set containing row i, or nil.
func (x *Index) SetOf(i int) *Set {
	if i < 0 || i >= len(x.rowSet) || x.rowSet[i] < 0 {
		return nil
	}
	return x.sets[x.rowSet[i]]
}

// PartyCount is the number of distinct voucher sets involving the counterparty.
func (x *Index) PartyCount(party string) int {
	return x.partyCounts[party]
}

// Unbalanced returns the sets whose debit and credit sums differ.
func (x *Index) Unbalanced() []*Set {
	var out []*Set
	for _, s := range x.sets {
		if !s.Balanced() {
			out = append(out, s)
		}
	}
	return out
}
