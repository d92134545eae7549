package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/isony10/EntryChecker/internal/api/middleware"
	"github.com/isony10/EntryChecker/internal/coach"
	"github.com/isony10/EntryChecker/internal/gcs"
	"github.com/isony10/EntryChecker/internal/journal"
	"github.com/isony10/EntryChecker/internal/logger"
	"github.com/isony10/EntryChecker/internal/rules"
	"github.com/rs/zerolog"
)

// CoachHandler handles AI coaching endpoints.
type CoachHandler struct {
	coach    *coach.Coach
	reviewer *coach.Reviewer
	input    journalInput
	log      zerolog.Logger
}

// NewCoachHandler creates a new coach handler.
func NewCoachHandler(c *coach.Coach, rv *coach.Reviewer, storage gcs.Store, cols journal.Columns, maxMemory int64, log zerolog.Logger) *CoachHandler {
	return &CoachHandler{
		coach:    c,
		reviewer: rv,
		input:    journalInput{storage: storage, maxMemory: maxMemory, columns: cols},
		log:      log,
	}
}

// SuggestEntry handles POST /api/coach/entry
func (h *CoachHandler) SuggestEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Entry map[string]any `json:"entry"`
		Rule  string         `json:"rule"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Entry) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "entry is required")
		return
	}

	// clients may send a rule id instead of its display name
	ruleName := strings.TrimSpace(req.Rule)
	if k := rules.KindOf(ruleName); k != rules.KindUnknown {
		ruleName = k.DisplayName()
	}

	s, err := h.coach.SuggestForEntry(r.Context(), req.Entry, ruleName)
	if err != nil {
		h.writeCoachError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, s)
}

// ReviewVouchers handles POST /api/coach/vouchers
func (h *CoachHandler) ReviewVouchers(w http.ResponseWriter, r *http.Request) {
	if err := h.input.parseForm(r); err != nil {
		writeFailure(w, err)
		return
	}
	table, _, err := h.input.read(r)
	if err != nil {
		writeFailure(w, err)
		return
	}

	findings, err := h.reviewer.ReviewUnbalanced(r.Context(), h.input.ledger(table))
	if err != nil {
		h.writeCoachError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"findings": findings,
		"count":    len(findings),
	})
}

func (h *CoachHandler) writeCoachError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContextOr(r.Context(), h.log)
	switch {
	case errors.Is(err, coach.ErrNotConfigured):
		middleware.WriteError(w, http.StatusServiceUnavailable, "AI coach is not configured")
	case errors.Is(err, coach.ErrMalformedResponse):
		log.Warn().Err(err).Msg("Unusable AI response")
		middleware.WriteError(w, http.StatusBadGateway, "AI returned an unusable response")
	default:
		log.Error().Err(err).Msg("AI request failed")
		middleware.WriteError(w, http.StatusBadGateway, "AI request failed")
	}
}
