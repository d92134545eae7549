package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/isony10/EntryChecker/internal/config"
	"github.com/isony10/EntryChecker/internal/gcs"
	infraBQ "github.com/isony10/EntryChecker/internal/infra/bigquery"
	"github.com/isony10/EntryChecker/internal/ingest"
	"github.com/isony10/EntryChecker/internal/journal"
)

var errNoSource = errors.New("one of -file, -gcs-uri or -bq-query is required")

// sourceFlags selects where a command reads its journal from.
type sourceFlags struct {
	file      *string
	gcsURI    *string
	bqQuery   *string
	bqProject string
	maxBytes  int64
}

func addSourceFlags(fs *flag.FlagSet, cfg *config.Config) *sourceFlags {
	return &sourceFlags{
		file:      fs.String("file", "", "Path to a local journal file (.csv, .txt, .tsv, .xlsx, .xlsm)"),
		gcsURI:    fs.String("gcs-uri", "", "GCS URI of a journal file"),
		bqQuery:   fs.String("bq-query", "", "BigQuery SQL returning journal rows"),
		bqProject: cfg.BQProject,
		maxBytes:  cfg.MaxUploadMB << 20,
	}
}

// load reads the selected journal and returns it with a label for logging.
func (s *sourceFlags) load(ctx context.Context) (*journal.Table, string, error) {
	switch {
	case *s.file != "":
		f, err := os.Open(*s.file)
		if err != nil {
			return nil, "", fmt.Errorf("load: open %q: %w", *s.file, err)
		}
		defer f.Close()
		t, err := ingest.Read(*s.file, f)
		return t, *s.file, err

	case *s.gcsURI != "":
		client, err := gcs.NewClient(ctx, s.maxBytes)
		if err != nil {
			return nil, "", fmt.Errorf("load: %w", err)
		}
		defer client.Close()

		obj, err := client.Fetch(ctx, *s.gcsURI)
		if err != nil {
			return nil, "", fmt.Errorf("load: %w", err)
		}
		t, err := ingest.Read(obj.Name, bytes.NewReader(obj.Data))
		return t, *s.gcsURI, err

	case *s.bqQuery != "":
		loader, err := infraBQ.NewLoader(ctx, s.bqProject)
		if err != nil {
			return nil, "", fmt.Errorf("load: %w", err)
		}
		defer loader.Close()

		t, err := loader.Load(ctx, *s.bqQuery)
		return t, "bigquery", err
	}
	return nil, "", errNoSource
}
