// Package ingest turns uploaded journal files into journal tables.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/isony10/EntryChecker/internal/journal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyTable        = errors.New("file has no header row")
)

// delimiters are the separators tried when sniffing a CSV dialect.
var delimiters = []rune{',', ';', '\t', '|'}

const sniffLines = 20

// Read parses a journal file, choosing the reader by the extension of name.
func Read(name string, r io.Reader) (*journal.Table, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".csv", ".txt", ".tsv":
		return ReadCSV(r)
	case ".xlsx", ".xlsm":
		return ReadExcel(r)
	default:
		return nil, fmt.Errorf("Read: %w: %q", ErrUnsupportedFormat, ext)
	}
}

// Supported reports whether Read accepts files named like name.
func Supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", ".tsv", ".xlsx", ".xlsm":
		return true
	}
	return false
}

// ReadCSV parses delimited text. UTF-8 (with or without BOM), UTF-16 with BOM
// and CP949/EUC-KR input are accepted; the delimiter is sniffed.
func ReadCSV(r io.Reader) (*journal.Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ReadCSV: read: %w", err)
	}
	text, err := decodeText(raw)
	if err != nil {
		return nil, fmt.Errorf("ReadCSV: decode: %w", err)
	}

	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = sniffDelimiter(text)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("ReadCSV: parse: %w", err)
	}
	return buildTable(records)
}

// ReadExcel parses the first sheet of a workbook using raw cell values, so
// dates arrive as spreadsheet serials and amounts without number formatting.
func ReadExcel(r io.Reader) (*journal.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("ReadExcel: open: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("ReadExcel: %w", ErrEmptyTable)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("ReadExcel: rows of %q: %w", sheet, err)
	}
	return buildTable(rows)
}

func decodeText(raw []byte) (string, error) {
	switch {
	case bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}),
		bytes.HasPrefix(raw, []byte{0xFE, 0xFF}),
		bytes.HasPrefix(raw, []byte{0xFF, 0xFE}):
		out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), raw)
		return string(out), err
	case utf8.Valid(raw):
		return string(raw), nil
	default:
		out, _, err := transform.Bytes(korean.EUCKR.NewDecoder(), raw)
		return string(out), err
	}
}

// sniffDelimiter picks the candidate that splits the leading lines into the
// most consistent multi-column shape. Comma wins when nothing else does.
func sniffDelimiter(text string) rune {
	lines := make([]string, 0, sniffLines)
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
		if len(lines) == sniffLines {
			break
		}
	}
	if len(lines) == 0 {
		return ','
	}
	sample := strings.Join(lines, "\n")

	best, bestConsistent, bestWidth := ',', 0, 1
	for _, d := range delimiters {
		cr := csv.NewReader(strings.NewReader(sample))
		cr.Comma = d
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true
		records, err := cr.ReadAll()
		if err != nil || len(records) == 0 {
			continue
		}
		width := len(records[0])
		if width < 2 {
			continue
		}
		consistent := 0
		for _, rec := range records {
			if len(rec) == width {
				consistent++
			}
		}
		if consistent > bestConsistent || (consistent == bestConsistent && width > bestWidth) {
			best, bestConsistent, bestWidth = d, consistent, width
		}
	}
	return best
}

// buildTable takes the first record as headers and types the remaining cells
// column by column.
func buildTable(records [][]string) (*journal.Table, error) {
	if len(records) == 0 {
		return nil, ErrEmptyTable
	}
	headers := make([]string, 0, len(records[0]))
	for _, h := range records[0] {
		headers = append(headers, strings.TrimSpace(h))
	}
	for len(headers) > 0 && headers[len(headers)-1] == "" {
		headers = headers[:len(headers)-1]
	}
	if len(headers) == 0 {
		return nil, ErrEmptyTable
	}

	body := records[1:]
	rows := make([][]any, len(body))
	for i := range rows {
		rows[i] = make([]any, len(headers))
	}
	for c := range headers {
		numeric := isNumericColumn(body, c)
		for i, rec := range body {
			rows[i][c] = typedCell(rec, c, numeric)
		}
	}
	return journal.NewTable(headers, rows), nil
}

func cellAt(rec []string, c int) string {
	if c < len(rec) {
		return strings.TrimSpace(rec[c])
	}
	return ""
}

// isNumericColumn reports whether every non-empty cell of column c parses as
// a number and at least one cell is present.
func isNumericColumn(body [][]string, c int) bool {
	seen := false
	for _, rec := range body {
		s := cellAt(rec, c)
		if s == "" {
			continue
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

func typedCell(rec []string, c int, numeric bool) any {
	s := cellAt(rec, c)
	if s == "" {
		return nil
	}
	if numeric {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	return s
}
