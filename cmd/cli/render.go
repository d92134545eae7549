package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"cloud.google.com/go/civil"
	"github.com/isony10/EntryChecker/internal/audit"
	"github.com/isony10/EntryChecker/internal/coach"
	"github.com/isony10/EntryChecker/internal/holiday"
	"github.com/isony10/EntryChecker/internal/rules"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.Korean)

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// formatCell renders a journal cell; whole amounts get thousands separators.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return printer.Sprintf("%d", int64(x))
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return printer.Sprintf("%d", x)
	case int:
		return printer.Sprintf("%d", x)
	case decimal.Decimal:
		if x.IsInteger() {
			return printer.Sprintf("%d", x.IntPart())
		}
		return x.String()
	case civil.Date:
		return x.String()
	case string:
		return strings.ReplaceAll(x, "\t", " ")
	default:
		return fmt.Sprint(x)
	}
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

// writeTable prints rows with their matched rule numbers, then a rule summary.
func writeTable(w io.Writer, res *audit.Result, onlyFlagged bool) error {
	tw := newTabWriter(w)

	fmt.Fprint(tw, "행\t플래그\t규칙")
	for _, h := range res.Headers {
		fmt.Fprintf(tw, "\t%s", h)
	}
	fmt.Fprintln(tw)

	for i, row := range res.Rows {
		flagged := res.IsFlagged(i)
		if onlyFlagged && !flagged {
			continue
		}
		mark := ""
		if flagged {
			mark = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s", i, mark, joinInts(res.RuleMap[i]))
		for _, h := range res.Headers {
			fmt.Fprintf(tw, "\t%s", formatCell(row[h]))
		}
		fmt.Fprintln(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n%s of %s rows flagged\n", formatCell(len(res.FlaggedIndices)), formatCell(len(res.Rows)))
	if len(res.Rules) == 0 {
		return nil
	}

	tw = newTabWriter(w)
	fmt.Fprintln(tw, "번호\t규칙\t일치")
	for _, r := range res.Rules {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Number, r.Name, formatCell(r.Matched))
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeFindings(w io.Writer, findings []coach.Finding) error {
	if len(findings) == 0 {
		_, err := fmt.Fprintln(w, "No voucher errors found.")
		return err
	}
	for i, f := range findings {
		fmt.Fprintf(w, "\n%d. %s %s (%d entries)\n", i+1, f.Date, f.VoucherNo, len(f.Entries))
		fmt.Fprintf(w, "   Error type: %s\n", f.Analysis.ErrorType)
		fmt.Fprintf(w, "   Cause:      %s\n", f.Analysis.Cause)
		fmt.Fprintf(w, "   Solution:   %s\n", f.Analysis.Solution)
	}
	_, err := fmt.Fprintln(w)
	return err
}

func writeHolidays(w io.Writer, entries []holiday.Entry) error {
	tw := newTabWriter(w)
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Date, e.Date.In(time.UTC).Weekday().String()[:3], e.Name)
	}
	return tw.Flush()
}

func writeCatalogue(w io.Writer, catalogue []rules.Info) error {
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "번호\tID\t이름\t파라미터")
	for _, info := range catalogue {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", info.Number, info.ID, info.Name, strings.Join(info.Params, ","))
	}
	return tw.Flush()
}
