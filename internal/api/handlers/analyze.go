package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/isony10/EntryChecker/internal/api/middleware"
	"github.com/isony10/EntryChecker/internal/audit"
	"github.com/isony10/EntryChecker/internal/gcs"
	"github.com/isony10/EntryChecker/internal/logger"
	"github.com/isony10/EntryChecker/internal/rules"
	"github.com/rs/zerolog"
)

// AnalyzeHandler handles journal analysis.
type AnalyzeHandler struct {
	analyzer *audit.Analyzer
	input    journalInput
	log      zerolog.Logger
}

// NewAnalyzeHandler creates a new analyze handler.
func NewAnalyzeHandler(a *audit.Analyzer, storage gcs.Store, maxMemory int64, log zerolog.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{
		analyzer: a,
		input:    journalInput{storage: storage, maxMemory: maxMemory},
		log:      log,
	}
}

// Analyze handles POST /api/analyze
//
// Form fields: file or gcs_uri, plus either logic_tree (JSON) or the flat
// active_rules (JSON array), values (JSON object) and logic_op (AND|OR).
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContextOr(ctx, h.log)

	if err := h.input.parseForm(r); err != nil {
		writeFailure(w, err)
		return
	}

	req, err := analysisRequest(r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	table, source, err := h.input.read(r)
	if err != nil {
		log.Warn().Err(err).Msg("Journal input rejected")
		writeFailure(w, err)
		return
	}

	res, err := h.analyzer.Analyze(ctx, table, req)
	if errors.Is(err, audit.ErrNoRules) {
		middleware.WriteError(w, http.StatusBadRequest, "Select at least one rule or send a logic_tree")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("source", source).Msg("Analysis failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Analysis failed")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, res)
}

func analysisRequest(r *http.Request) (audit.Request, error) {
	var req audit.Request

	tree, err := audit.ParseTree([]byte(r.FormValue("logic_tree")))
	if err != nil {
		return req, badRequest("Invalid logic_tree", err)
	}
	req.Tree = tree

	active := strings.TrimSpace(r.FormValue("active_rules"))
	if active == "" {
		return req, nil
	}

	rs := &audit.RuleSet{Op: strings.TrimSpace(r.FormValue("logic_op"))}
	if err := json.Unmarshal([]byte(active), &rs.Active); err != nil {
		return req, badRequest("Invalid active_rules", err)
	}
	if values := strings.TrimSpace(r.FormValue("values")); values != "" {
		if err := json.Unmarshal([]byte(values), &rs.Values); err != nil {
			return req, badRequest("Invalid values", err)
		}
	}
	if rs.Values == nil {
		rs.Values = map[string]rules.Params{}
	}
	req.Rules = rs
	return req, nil
}
