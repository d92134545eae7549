package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/isony10/EntryChecker/internal/journal"
	"github.com/isony10/EntryChecker/internal/logger"
	"github.com/isony10/EntryChecker/internal/voucher"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Analysis is the model's verdict on one voucher set.
type Analysis struct {
	ID        int    `json:"id"`
	IsError   bool   `json:"isError"`
	ErrorType string `json:"errorType"`
	Cause     string `json:"cause"`
	Solution  string `json:"solution"`
}

// Finding is an unbalanced voucher set the model confirmed as an error.
type Finding struct {
	Date      string           `json:"date"`
	VoucherNo string           `json:"voucherNo"`
	Analysis  Analysis         `json:"analysis"`
	Entries   []map[string]any `json:"entries"`
}

// ReviewerConfig bounds the batched review.
type ReviewerConfig struct {
	BatchSize   int
	Concurrency int
	RatePerSec  float64
}

// Reviewer sends unbalanced voucher sets to the model in batches.
type Reviewer struct {
	gen     Generator
	log     zerolog.Logger
	cfg     ReviewerConfig
	limiter *rate.Limiter
}

// NewReviewer creates a Reviewer. Non-positive settings fall back to one set
// per batch, one batch at a time and one request per second.
func NewReviewer(gen Generator, log zerolog.Logger, cfg ReviewerConfig) *Reviewer {
	if gen == nil {
		gen = Unconfigured{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	return &Reviewer{
		gen:     gen,
		log:     log,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
	}
}

type pendingSet struct {
	Date      string           `json:"date"`
	VoucherNo string           `json:"voucherNo"`
	Entries   []map[string]any `json:"entries"`
}

// ReviewUnbalanced reviews every unbalanced voucher set of l. A batch whose
// reply cannot be used is logged and skipped. Findings keep voucher order.
func (r *Reviewer) ReviewUnbalanced(ctx context.Context, l *journal.Ledger) ([]Finding, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := logger.FromContextOr(ctx, r.log).With().Str("review_id", runID).Logger()

	unbalanced := voucher.Build(l).Unbalanced()
	if len(unbalanced) == 0 {
		log.Info().Msg("No unbalanced voucher sets to review")
		return []Finding{}, nil
	}

	pending := make([]pendingSet, len(unbalanced))
	for i, s := range unbalanced {
		entries := make([]map[string]any, 0, len(s.Rows))
		for _, row := range s.Rows {
			entries = append(entries, l.DisplayRecord(row))
		}
		pending[i] = pendingSet{Date: s.Key.Date, VoucherNo: s.Key.VoucherNo, Entries: entries}
	}

	var batches [][]pendingSet
	for i := 0; i < len(pending); i += r.cfg.BatchSize {
		end := min(i+r.cfg.BatchSize, len(pending))
		batches = append(batches, pending[i:end])
	}

	results := make([][]Finding, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for b, batch := range batches {
		g.Go(func() error {
			if err := r.limiter.Wait(gctx); err != nil {
				return err
			}
			findings, err := r.reviewBatch(gctx, batch)
			if errors.Is(err, ErrNotConfigured) {
				return err
			}
			if err != nil {
				log.Warn().Err(err).Int("batch", b+1).Int("sets", len(batch)).Msg("Voucher batch skipped")
				return nil
			}
			results[b] = findings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ReviewUnbalanced: %w", err)
	}

	out := []Finding{}
	for _, f := range results {
		out = append(out, f...)
	}

	log.Info().
		Int("unbalanced", len(unbalanced)).
		Int("batches", len(batches)).
		Int("findings", len(out)).
		Dur("duration", time.Since(start)).
		Msg("Voucher review completed")
	return out, nil
}

func (r *Reviewer) reviewBatch(ctx context.Context, batch []pendingSet) ([]Finding, error) {
	prompt, err := batchPrompt(batch)
	if err != nil {
		return nil, fmt.Errorf("reviewBatch: build prompt: %w", err)
	}
	raw, err := r.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("reviewBatch: generate: %w", err)
	}

	var analyses []Analysis
	if err := decodeArray(raw, &analyses); err != nil {
		return nil, fmt.Errorf("reviewBatch: %w", err)
	}

	var out []Finding
	used := make([]bool, len(batch))
	for pos, a := range analyses {
		if !a.IsError {
			continue
		}
		// ids are 1-based positions in the batch; fall back to reply order
		idx := a.ID - 1
		if idx < 0 || idx >= len(batch) {
			idx = pos
		}
		if idx >= len(batch) || used[idx] {
			continue
		}
		used[idx] = true
		set := batch[idx]
		out = append(out, Finding{Date: set.Date, VoucherNo: set.VoucherNo, Analysis: a, Entries: set.Entries})
	}
	return out, nil
}

func batchPrompt(batch []pendingSet) (string, error) {
	type item struct {
		ID int `json:"id"`
		pendingSet
		IsBalanced bool `json:"is_balanced"`
	}
	items := make([]item, len(batch))
	for i, s := range batch {
		items[i] = item{ID: i + 1, pendingSet: s}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("당신은 회계감사 시스템에 내장된 감사 도우미입니다.\n")
	b.WriteString("아래 전표는 모두 차변 합계와 대변 합계가 다릅니다. 전표마다 회계 원칙 위반이나 내부통제상 허점이 있는지 따로 판단하세요.\n\n")
	b.WriteString("[분석 대상 전표]\n")
	b.Write(data)
	b.WriteString("\n\n")
	b.WriteString("전표마다 하나씩, 입력과 같은 id를 가진 JSON 객체의 배열만 반환하세요. 다른 설명은 쓰지 마세요.\n")
	b.WriteString(`[{"id": 1, "isError": true, "errorType": "오류 유형", "cause": "원인", "solution": "해결 절차"}, {"id": 2, "isError": false, "errorType": "", "cause": "", "solution": ""}]`)
	b.WriteString("\n")
	return b.String(), nil
}
