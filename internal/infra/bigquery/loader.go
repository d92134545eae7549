// Package bigquery loads journal tables from BigQuery query results.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/isony10/EntryChecker/internal/journal"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
)

// ErrEmptyQuery is returned when Load is called without SQL.
var ErrEmptyQuery = errors.New("empty query")

// numericScale is the fixed scale of BigQuery NUMERIC values.
const numericScale = 9

// Source is implemented by Loader and by test fakes.
type Source interface {
	Load(ctx context.Context, sql string, params ...bigquery.QueryParameter) (*journal.Table, error)
}

// Loader runs journal queries against BigQuery with a shared client.
type Loader struct {
	client *bigquery.Client
}

// NewLoader creates a Loader billed to projectID.
func NewLoader(ctx context.Context, projectID string) (*Loader, error) {
	if projectID == "" {
		projectID = bigquery.DetectProjectID
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewLoader: creating client: %w", err)
	}
	return &Loader{client: client}, nil
}

// Close closes the BigQuery client connection.
func (l *Loader) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

// Load runs sql and returns the result set as a table. Headers are the
// result schema's field names in order.
func (l *Loader) Load(ctx context.Context, sql string, params ...bigquery.QueryParameter) (*journal.Table, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, fmt.Errorf("Load: %w", ErrEmptyQuery)
	}

	q := l.client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("Load: query read: %w", err)
	}

	t, err := collect(it, func() bigquery.Schema { return it.Schema })
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return t, nil
}

type rowIterator interface {
	Next(dst interface{}) error
}

// collect drains it. The schema is read after the first Next call because
// RowIterator only populates it then.
func collect(it rowIterator, schema func() bigquery.Schema) (*journal.Table, error) {
	var rows [][]any
	for {
		var vals []bigquery.Value
		err := it.Next(&vals)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating rows: %w", err)
		}
		row := make([]any, len(vals))
		for i, v := range vals {
			row[i] = convertValue(v)
		}
		rows = append(rows, row)
	}

	fields := schema()
	headers := make([]string, len(fields))
	for i, f := range fields {
		headers[i] = f.Name
	}
	return journal.NewTable(headers, rows), nil
}

// convertValue maps BigQuery cell values onto the cell types the journal
// package understands. DATE stays civil.Date and NUMERIC becomes decimal.
func convertValue(v bigquery.Value) any {
	switch x := v.(type) {
	case nil:
		return nil
	case *big.Rat:
		if x == nil {
			return nil
		}
		d, err := decimal.NewFromString(x.FloatString(numericScale))
		if err != nil {
			return nil
		}
		return d
	case []bigquery.Value:
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = journal.CellString(convertValue(item))
		}
		return strings.Join(parts, ",")
	case []byte:
		return string(x)
	default:
		return x
	}
}
