package audit

import (
	"sort"

	"github.com/isony10/EntryChecker/internal/journal"
	"github.com/isony10/EntryChecker/internal/rules"
)

// AppliedRule describes one numbered rule of an analysis.
type AppliedRule struct {
	Number  int    `json:"number"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Matched int    `json:"matched"`
}

// Result is the outcome of one analysis.
type Result struct {
	Headers []string         `json:"headers"`
	Rows    []map[string]any `json:"rows"`
	// FlaggedIndices are the rows selected by the whole expression, ascending.
	FlaggedIndices []int `json:"flagged_indices"`
	// RuleMap lists, for every row, the numbers of all rules the row matched,
	// whether or not the row ended up flagged.
	RuleMap map[int][]int `json:"rule_map"`
	Rules   []AppliedRule `json:"rules"`

	Ledger *journal.Ledger `json:"-"`
}

// IsFlagged reports whether row i was flagged.
func (r *Result) IsFlagged(i int) bool {
	j := sort.SearchInts(r.FlaggedIndices, i)
	return j < len(r.FlaggedIndices) && r.FlaggedIndices[j] == i
}

// RuleName returns the description of the rule with the given number.
func (r *Result) RuleName(number int) string {
	for _, a := range r.Rules {
		if a.Number == number {
			return a.Name
		}
	}
	return ""
}

func pack(l *journal.Ledger, mask rules.Mask, ruleMap [][]int, applied []AppliedRule) *Result {
	res := &Result{
		Headers:        append([]string{}, l.Table.Headers...),
		Rows:           make([]map[string]any, l.Len()),
		FlaggedIndices: mask.Indices(),
		RuleMap:        make(map[int][]int, l.Len()),
		Rules:          applied,
		Ledger:         l,
	}
	if res.Rules == nil {
		res.Rules = []AppliedRule{}
	}
	for i := 0; i < l.Len(); i++ {
		res.Rows[i] = l.DisplayRecord(i)
		res.RuleMap[i] = ruleMap[i]
	}
	return res
}
