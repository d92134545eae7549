// Package journal holds the in-memory journal model: the raw table as loaded,
// header resolution, and the coerced Entry view every rule reads from.
package journal

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Field identifies a logical journal column.
type Field string

const (
	FieldPostingDate  Field = "posting_date"
	FieldVoucherNo    Field = "voucher_no"
	FieldAccount      Field = "account_subject"
	FieldDescription  Field = "description"
	FieldDebit        Field = "debit_amount"
	FieldCredit       Field = "credit_amount"
	FieldCounterparty Field = "counterparty_code"
)

// Fields lists every logical column in display order.
var Fields = []Field{
	FieldPostingDate, FieldVoucherNo, FieldAccount, FieldDescription,
	FieldDebit, FieldCredit, FieldCounterparty,
}

// Columns maps each logical field to the header names accepted for it.
// The first alias that is present in a table wins.
type Columns map[Field][]string

// DefaultColumns accepts the Korean headers used by domestic ERP exports plus English aliases.
func DefaultColumns() Columns {
	return Columns{
		FieldPostingDate:  {"전표일자", "일자", "posting_date", "date"},
		FieldVoucherNo:    {"전표번호", "voucher_no", "voucher"},
		FieldAccount:      {"계정과목", "account_subject", "account"},
		FieldDescription:  {"적요", "description", "memo"},
		FieldDebit:        {"차변금액", "차변", "debit_amount", "debit"},
		FieldCredit:       {"대변금액", "대변", "credit_amount", "credit"},
		FieldCounterparty: {"거래처코드", "거래처", "counterparty_code", "counterparty"},
	}
}

// Resolve finds the column index of every field present in t.
func (c Columns) Resolve(t *Table) map[Field]int {
	out := make(map[Field]int, len(c))
	for field, aliases := range c {
		for _, alias := range aliases {
			if idx := t.ColumnIndex(alias); idx >= 0 {
				out[field] = idx
				break
			}
			if idx := indexFold(t.Headers, alias); idx >= 0 {
				out[field] = idx
				break
			}
		}
	}
	return out
}

func indexFold(headers []string, name string) int {
	for i, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i
		}
	}
	return -1
}

// Entry is one journal line with amounts coerced to numbers.
type Entry struct {
	RowIndex       int
	PostingDate    any
	VoucherNo      string
	AccountSubject string
	Description    string
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	Counterparty   string
}

// Ledger is the read-only view of a table for one analysis call.
type Ledger struct {
	Table   *Table
	Entries []Entry
	columns map[Field]int
}

// Load resolves columns and coerces amounts once, before any rule runs.
// The source table is not modified.
func Load(t *Table, cols Columns) *Ledger {
	if cols == nil {
		cols = DefaultColumns()
	}
	if t == nil {
		t = &Table{}
	}
	l := &Ledger{
		Table:   t,
		Entries: make([]Entry, len(t.Rows)),
		columns: cols.Resolve(t),
	}

	for i := range t.Rows {
		e := Entry{RowIndex: i}
		e.PostingDate = l.cell(i, FieldPostingDate)
		e.VoucherNo = strings.TrimSpace(CellString(l.cell(i, FieldVoucherNo)))
		e.AccountSubject = CellString(l.cell(i, FieldAccount))
		e.Description = CellString(l.cell(i, FieldDescription))
		e.Debit, _ = ToDecimal(l.cell(i, FieldDebit))
		e.Credit, _ = ToDecimal(l.cell(i, FieldCredit))
		e.Counterparty = strings.TrimSpace(CellString(l.cell(i, FieldCounterparty)))
		l.Entries[i] = e
	}
	return l
}

func (l *Ledger) cell(i int, f Field) any {
	idx, ok := l.columns[f]
	if !ok {
		return nil
	}
	v := l.Table.Cell(i, idx)
	if IsBlank(v) {
		return nil
	}
	return v
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Entries)
}

// Has reports whether every given field is present as a column.
func (l *Ledger) Has(fields ...Field) bool {
	for _, f := range fields {
		if _, ok := l.columns[f]; !ok {
			return false
		}
	}
	return true
}

// ColumnIndex returns the table column backing f, or -1.
func (l *Ledger) ColumnIndex(f Field) int {
	if idx, ok := l.columns[f]; ok {
		return idx
	}
	return -1
}

// Header returns the table header backing f, or "".
func (l *Ledger) Header(f Field) string {
	if idx := l.ColumnIndex(f); idx >= 0 {
		return l.Table.Headers[idx]
	}
	return ""
}

// PostingDates returns the raw posting-date column (nil cells for blanks).
func (l *Ledger) PostingDates() []any {
	out := make([]any, len(l.Entries))
	for i, e := range l.Entries {
		out[i] = e.PostingDate
	}
	return out
}

// Record returns row i as a header → value map, with coerced amounts in place
// of the raw amount cells.
func (l *Ledger) Record(i int) map[string]any {
	rec := make(map[string]any, len(l.Table.Headers))
	for c, h := range l.Table.Headers {
		rec[h] = l.Table.Cell(i, c)
	}
	if h := l.Header(FieldDebit); h != "" {
		rec[h] = l.Entries[i].Debit
	}
	if h := l.Header(FieldCredit); h != "" {
		rec[h] = l.Entries[i].Credit
	}
	return rec
}

// DisplayRecord is Record with every value converted by DisplayValue.
func (l *Ledger) DisplayRecord(i int) map[string]any {
	rec := l.Record(i)
	for k, v := range rec {
		rec[k] = DisplayValue(v)
	}
	return rec
}
