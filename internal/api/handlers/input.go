package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/isony10/EntryChecker/internal/api/middleware"
	"github.com/isony10/EntryChecker/internal/gcs"
	"github.com/isony10/EntryChecker/internal/ingest"
	"github.com/isony10/EntryChecker/internal/journal"
)

// httpError carries the status code a handler should answer with.
type httpError struct {
	status  int
	message string
	err     error
}

func (e *httpError) Error() string {
	if e.err != nil {
		return e.message + ": " + e.err.Error()
	}
	return e.message
}

func (e *httpError) Unwrap() error { return e.err }

func badRequest(message string, err error) *httpError {
	return &httpError{status: http.StatusBadRequest, message: message, err: err}
}

// writeFailure answers with the status carried by err, or 500.
func writeFailure(w http.ResponseWriter, err error) {
	var he *httpError
	if errors.As(err, &he) {
		middleware.WriteError(w, he.status, he.message)
		return
	}
	middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
}

// journalInput reads the journal of a multipart request from its "file" part
// or, when absent, from the object named by the "gcs_uri" field.
type journalInput struct {
	storage   gcs.Store
	maxMemory int64
	columns   journal.Columns
}

// ledger resolves t with the configured header aliases.
func (in journalInput) ledger(t *journal.Table) *journal.Ledger {
	return journal.Load(t, in.columns)
}

func (in journalInput) parseForm(r *http.Request) error {
	if err := r.ParseMultipartForm(in.maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &httpError{status: http.StatusRequestEntityTooLarge, message: "Upload too large", err: err}
		}
		return badRequest("Expected a multipart/form-data body", err)
	}
	return nil
}

// read returns the parsed table and a label naming where it came from.
func (in journalInput) read(r *http.Request) (*journal.Table, string, error) {
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		name := filepath.Base(header.Filename)
		t, err := parseJournal(name, file)
		return t, name, err
	case errors.Is(err, http.ErrMissingFile):
	default:
		return nil, "", badRequest("Could not read uploaded file", err)
	}

	uri := strings.TrimSpace(r.FormValue("gcs_uri"))
	if uri == "" {
		return nil, "", badRequest("A journal file or gcs_uri is required", nil)
	}
	if in.storage == nil {
		return nil, "", &httpError{status: http.StatusServiceUnavailable, message: "GCS input is not configured"}
	}
	// skip the download when the object could not be parsed anyway
	if _, _, err := gcs.ParseURI(uri); err == nil && !ingest.Supported(uri) {
		return nil, "", unsupportedType(gcs.BaseName(uri), ingest.ErrUnsupportedFormat)
	}

	obj, err := in.storage.Fetch(r.Context(), uri)
	switch {
	case errors.Is(err, gcs.ErrInvalidURI):
		return nil, "", badRequest("Invalid gcs_uri", err)
	case errors.Is(err, gcs.ErrObjectTooLarge):
		return nil, "", &httpError{status: http.StatusRequestEntityTooLarge, message: "GCS object too large", err: err}
	case err != nil:
		return nil, "", &httpError{status: http.StatusBadGateway, message: "Failed to fetch gcs_uri", err: err}
	}

	t, err := parseJournal(obj.Name, bytes.NewReader(obj.Data))
	return t, uri, err
}

func parseJournal(name string, r io.Reader) (*journal.Table, error) {
	t, err := ingest.Read(name, r)
	switch {
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return nil, unsupportedType(name, err)
	case err != nil:
		return nil, badRequest("Could not parse journal file", err)
	}
	return t, nil
}

func unsupportedType(name string, err error) *httpError {
	return &httpError{status: http.StatusUnsupportedMediaType, message: fmt.Sprintf("Unsupported file type %q", filepath.Ext(name)), err: err}
}
