// Package audit evaluates rule expressions over a journal table and packages
// the flagged rows together with per-row rule attribution.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/isony10/EntryChecker/internal/holiday"
	"github.com/isony10/EntryChecker/internal/journal"
	"github.com/isony10/EntryChecker/internal/logger"
	"github.com/isony10/EntryChecker/internal/rules"
	"github.com/rs/zerolog"
)

var (
	// ErrNoRules is returned when a request carries neither a logic tree nor a rule set.
	ErrNoRules = errors.New("no logic tree or rule set supplied")
	// ErrMalformedNode marks a tree node that names no rule or uses an unknown combinator.
	ErrMalformedNode = errors.New("malformed logic node")
)

// RuleSet is the flat legacy activation form: active rule ids, their
// parameters and a single combinator applied across all active rules.
type RuleSet struct {
	Active []string
	Values map[string]rules.Params
	// Op is AND or OR. Empty means OR.
	Op string
}

// Request selects the rules for one analysis. A non-empty Tree wins over Rules.
type Request struct {
	Tree  *LogicNode
	Rules *RuleSet
}

// legacySlots is the fixed rule order of the flat form. Numbers are reserved
// even for inactive rules so that attribution stays stable between calls.
var legacySlots = []struct {
	id     string
	number int
}{
	{"weekend_txn", 1},
	{"amount_over", 2},
	{"keyword_search", 3},
	{"party_frequency", 4},
	{"round_million", 5},
	{"uniform_account_set", 6},
	{"unbalanced_set", 7},
}

// Analyzer runs analyses. It holds no per-call state and may be shared.
type Analyzer struct {
	holidays holiday.Calendar
	columns  journal.Columns
	log      zerolog.Logger
}

// Option customises an Analyzer.
type Option func(*Analyzer)

// WithColumns overrides the header aliases used to find journal columns.
func WithColumns(c journal.Columns) Option {
	return func(a *Analyzer) { a.columns = c }
}

// NewAnalyzer creates an analyzer using cal for the weekend/holiday rule.
func NewAnalyzer(cal holiday.Calendar, log zerolog.Logger, opts ...Option) *Analyzer {
	if cal == nil {
		cal = holiday.None{}
	}
	a := &Analyzer{holidays: cal, columns: journal.DefaultColumns(), log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze evaluates the request against t. Rule configuration problems never
// fail the call; the affected rule flags nothing and a warning is logged.
func (a *Analyzer) Analyze(ctx context.Context, t *journal.Table, req Request) (*Result, error) {
	start := time.Now()
	log := logger.FromContextOr(ctx, a.log)

	useTree := req.Tree != nil && !req.Tree.IsEmpty()
	if !useTree && req.Rules == nil {
		return nil, fmt.Errorf("Analyze: %w", ErrNoRules)
	}

	ledger := journal.Load(t, a.columns)
	ev := newEvaluator(rules.NewEnv(ledger, a.holidays), log)

	var (
		mask rules.Mask
		mode string
	)
	if useTree {
		mode = "tree"
		mask = ev.node(req.Tree)
	} else {
		mode = "legacy"
		mask = ev.legacy(req.Rules)
	}

	res := pack(ledger, mask, ev.ruleMap, ev.applied)
	if ev.usedCalendar() {
		a.checkLunarCoverage(log, ev.env.Dates())
	}

	log.Info().
		Str("mode", mode).
		Int("rows", ledger.Len()).
		Int("rules", len(ev.applied)).
		Int("flagged", len(res.FlaggedIndices)).
		Dur("duration", time.Since(start)).
		Msg("Journal analyzed")

	return res, nil
}

// checkLunarCoverage warns when posting years fall outside the official lunar
// holiday table of the Korean calendar.
func (a *Analyzer) checkLunarCoverage(log zerolog.Logger, ds []civil.Date) {
	if _, ok := a.holidays.(*holiday.Korea); !ok {
		return
	}
	first, last := holiday.LunarYears()

	var computed, unknown []int
	seen := make(map[int]bool)
	for _, d := range ds {
		if !d.IsValid() || seen[d.Year] || (d.Year >= first && d.Year <= last) {
			continue
		}
		seen[d.Year] = true
		if holiday.LunarKnown(d.Year) {
			computed = append(computed, d.Year)
		} else {
			unknown = append(unknown, d.Year)
		}
	}
	if len(computed) > 0 {
		sort.Ints(computed)
		log.Warn().
			Ints("years", computed).
			Int("table_first", first).
			Int("table_last", last).
			Msg("Lunar holidays for these posting years are computed, not taken from the official table")
	}
	if len(unknown) > 0 {
		sort.Ints(unknown)
		log.Warn().
			Ints("years", unknown).
			Msg("Lunar holidays unknown for these posting years, only fixed-date holidays apply")
	}
}

type evaluator struct {
	env     *rules.Env
	log     zerolog.Logger
	counter int
	ruleMap [][]int
	applied []AppliedRule
}

func newEvaluator(env *rules.Env, log zerolog.Logger) *evaluator {
	ruleMap := make([][]int, env.Len())
	for i := range ruleMap {
		ruleMap[i] = []int{}
	}
	return &evaluator{env: env, log: log, ruleMap: ruleMap}
}

// usedCalendar reports whether a holiday-aware rule was applied.
func (ev *evaluator) usedCalendar() bool {
	for _, r := range ev.applied {
		if rules.KindOf(r.ID) == rules.KindWeekendOrHoliday {
			return true
		}
	}
	return false
}

// node evaluates n depth-first, left to right.
func (ev *evaluator) node(n *LogicNode) rules.Mask {
	if n != nil && n.IsGroup() {
		return ev.group(n)
	}
	ev.counter++
	return ev.leaf(ev.counter, n)
}

func (ev *evaluator) group(n *LogicNode) rules.Mask {
	masks := make([]rules.Mask, 0, len(n.Items))
	for _, child := range n.Items {
		masks = append(masks, ev.node(child))
	}

	op := strings.ToUpper(strings.TrimSpace(n.Op))
	if op == "" {
		op = "AND"
	}
	if op != "AND" && op != "OR" {
		ev.log.Warn().Err(ErrMalformedNode).Str("op", n.Op).Msg("Unknown group operator, group flags nothing")
		return rules.NewMask(ev.env.Len())
	}
	return combine(op, masks, ev.env.Len())
}

// leaf resolves and applies one rule under the given number. Malformed leaves
// keep their number but attribute nothing.
func (ev *evaluator) leaf(number int, n *LogicNode) rules.Mask {
	if n == nil || n.Rule == "" {
		ev.log.Warn().Err(ErrMalformedNode).Int("rule_number", number).Msg("Logic node names no rule")
		ev.applied = append(ev.applied, AppliedRule{Number: number, Name: rules.Describe(rules.Unknown{})})
		return rules.NewMask(ev.env.Len())
	}
	return ev.apply(number, n.Rule, n.Params)
}

func (ev *evaluator) apply(number int, id string, p rules.Params) rules.Mask {
	r, err := rules.Build(id, p)
	if err != nil {
		ev.log.Warn().Err(err).Str("rule", id).Int("rule_number", number).Msg("Rule misconfigured, rule flags nothing")
	}

	m := rules.Evaluate(ev.env, r)
	for _, i := range m.Indices() {
		ev.ruleMap[i] = append(ev.ruleMap[i], number)
	}
	ev.applied = append(ev.applied, AppliedRule{
		Number:  number,
		ID:      id,
		Name:    rules.Describe(r),
		Matched: m.Count(),
	})
	ev.log.Debug().Str("rule", id).Int("rule_number", number).Int("matched", m.Count()).Msg("Rule evaluated")
	return m
}

// legacy evaluates the flat form in fixed slot order.
func (ev *evaluator) legacy(rs *RuleSet) rules.Mask {
	active := make(map[string]bool, len(rs.Active))
	for _, id := range rs.Active {
		id = strings.TrimSpace(id)
		active[id] = true
		if rules.KindOf(id) == rules.KindUnknown {
			ev.log.Warn().Err(rules.ErrUnknownRule).Str("rule", id).Msg("Active rule ignored")
		}
	}

	op := strings.ToUpper(strings.TrimSpace(rs.Op))
	switch op {
	case "AND", "OR":
	case "":
		op = "OR"
	default:
		ev.log.Warn().Err(ErrMalformedNode).Str("op", rs.Op).Msg("Unknown logic operator, using OR")
		op = "OR"
	}

	var masks []rules.Mask
	for _, slot := range legacySlots {
		if !active[slot.id] {
			continue
		}
		masks = append(masks, ev.apply(slot.number, slot.id, rs.Values[slot.id]))
	}
	return combine(op, masks, ev.env.Len())
}

// combine folds masks with op. No masks gives an all-false mask.
func combine(op string, masks []rules.Mask, n int) rules.Mask {
	if len(masks) == 0 {
		return rules.NewMask(n)
	}
	out := masks[0]
	for _, m := range masks[1:] {
		if op == "AND" {
			out = out.And(m)
		} else {
			out = out.Or(m)
		}
	}
	return out
}
