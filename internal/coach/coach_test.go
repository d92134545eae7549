package coach

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/isony10/EntryChecker/internal/config"
	"github.com/isony10/EntryChecker/internal/journal"
	"github.com/isony10/EntryChecker/internal/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockGenerator is a function-field Generator for tests.
type MockGenerator struct {
	GenerateFunc func(ctx context.Context, prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt)
	}
	return `{"errorType":"","cause":"","solution":""}`, nil
}

func (m *MockGenerator) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func TestCleanModelJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		open byte
		end  byte
		want string
	}{
		{"plain object", `{"a":1}`, '{', '}', `{"a":1}`},
		{"fenced object", "```json\n{\"a\":1}\n```", '{', '}', `{"a":1}`},
		{"chatter around array", "Here you go:\n[1,2]\nThanks", '[', ']', `[1,2]`},
		{"bare fence", "```\n[]\n```", '[', ']', `[]`},
		{"html", "<html>error</html>", '{', '}', "<html>error</html>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanModelJSON(tt.in, tt.open, tt.end))
		})
	}
}

func TestSuggestForEntry(t *testing.T) {
	gen := &MockGenerator{GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
		return "```json\n{\"errorType\":\"주말 거래\",\"cause\":\"c\",\"solution\":\"s\"}\n```", nil
	}}
	c := New(gen, zerolog.Nop())

	s, err := c.SuggestForEntry(context.Background(), map[string]any{"계정과목": "접대비"}, "주말·공휴일 거래")
	require.NoError(t, err)

	assert.Equal(t, &Suggestion{ErrorType: "주말 거래", Cause: "c", Solution: "s"}, s)
	require.Equal(t, 1, gen.calls())
	assert.Contains(t, gen.prompts[0], "접대비")
	assert.Contains(t, gen.prompts[0], "주말·공휴일 거래")
}

func TestSuggestForEntry_Failures(t *testing.T) {
	boom := errors.New("quota exceeded")
	tests := []struct {
		name    string
		reply   string
		err     error
		wantErr error
	}{
		{"html reply", "<!DOCTYPE html><html></html>", nil, ErrMalformedResponse},
		{"broken json", `{"errorType": }`, nil, ErrMalformedResponse},
		{"array reply", `["a"]`, nil, ErrMalformedResponse},
		{"transport error", "", boom, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &MockGenerator{GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
				return tt.reply, tt.err
			}}
			_, err := New(gen, zerolog.Nop()).SuggestForEntry(context.Background(), map[string]any{}, "rule")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSuggestForEntry_NotConfigured(t *testing.T) {
	_, err := New(nil, zerolog.Nop()).SuggestForEntry(context.Background(), map[string]any{}, "rule")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

// unbalancedLedger has three unbalanced sets (V1, V3, V4) and one balanced set (V2).
func unbalancedLedger() *journal.Ledger {
	return journal.Load(journal.NewTable(
		[]string{"전표일자", "전표번호", "계정과목", "차변금액", "대변금액"},
		[][]any{
			{"2024-01-08", "V1", "현금", 100.0, 0.0},
			{"2024-01-08", "V2", "현금", 100.0, 0.0},
			{"2024-01-08", "V2", "매출", 0.0, 100.0},
			{"2024-01-09", "V3", "현금", 0.0, 50.0},
			{"2024-01-10", "V4", "현금", 70.0, 0.0},
			{"2024-01-10", "V4", "매출", 0.0, 60.0},
		},
	), nil)
}

func testReviewer(gen Generator, log zerolog.Logger) *Reviewer {
	return NewReviewer(gen, log, ReviewerConfig{BatchSize: 2, Concurrency: 2, RatePerSec: 1000})
}

func TestReviewUnbalanced_KeepsErrorsInOrder(t *testing.T) {
	gen := &MockGenerator{GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
		return `[{"id":1,"isError":true,"errorType":"대차차액","cause":"c","solution":"s"},
			{"id":2,"isError":false}]`, nil
	}}

	findings, err := testReviewer(gen, zerolog.Nop()).ReviewUnbalanced(context.Background(), unbalancedLedger())
	require.NoError(t, err)

	assert.Equal(t, 2, gen.calls(), "three sets in batches of two")
	require.Len(t, findings, 2)
	assert.Equal(t, "V1", findings[0].VoucherNo)
	assert.Equal(t, "2024-01-08", findings[0].Date)
	assert.Equal(t, "V4", findings[1].VoucherNo)
	assert.Equal(t, "대차차액", findings[1].Analysis.ErrorType)
	require.Len(t, findings[1].Entries, 2)
	assert.Equal(t, 70.0, findings[1].Entries[0]["차변금액"])
}

func TestReviewUnbalanced_SkipsFailedBatch(t *testing.T) {
	buf := &bytes.Buffer{}
	gen := &MockGenerator{GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "V4") {
			return "<html>rate limited</html>", nil
		}
		return `[{"id":2,"isError":true,"errorType":"e"}]`, nil
	}}

	findings, err := testReviewer(gen, logger.NewWithWriter(buf)).ReviewUnbalanced(context.Background(), unbalancedLedger())
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Equal(t, "V3", findings[0].VoucherNo)
	assert.Contains(t, buf.String(), "Voucher batch skipped")
}

func TestReviewUnbalanced_IDFallsBackToPosition(t *testing.T) {
	gen := &MockGenerator{GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
		return `[{"isError":true},{"id":9,"isError":true}]`, nil
	}}
	r := NewReviewer(gen, zerolog.Nop(), ReviewerConfig{BatchSize: 10, Concurrency: 1, RatePerSec: 1000})

	findings, err := r.ReviewUnbalanced(context.Background(), unbalancedLedger())
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "V1", findings[0].VoucherNo)
	assert.Equal(t, "V3", findings[1].VoucherNo)
}

func TestReviewUnbalanced_RepeatedIDReportedOnce(t *testing.T) {
	gen := &MockGenerator{GenerateFunc: func(ctx context.Context, prompt string) (string, error) {
		return `[{"id":1,"isError":true,"errorType":"first"},
			{"id":1,"isError":true,"errorType":"again"},
			{"id":3,"isError":true,"errorType":"third"}]`, nil
	}}
	r := NewReviewer(gen, zerolog.Nop(), ReviewerConfig{BatchSize: 10, Concurrency: 1, RatePerSec: 1000})

	findings, err := r.ReviewUnbalanced(context.Background(), unbalancedLedger())
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, "V1", findings[0].VoucherNo)
	assert.Equal(t, "first", findings[0].Analysis.ErrorType)
	assert.Equal(t, "V4", findings[1].VoucherNo)
}

func TestReviewUnbalanced_UsesContextLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(buf).With().Str("job_id", "j1").Logger())
	l := journal.Load(journal.NewTable(
		[]string{"전표일자", "전표번호", "계정과목", "차변금액", "대변금액"},
		[][]any{{"2024-01-08", "V1", "현금", 10.0, 10.0}},
	), nil)

	_, err := testReviewer(&MockGenerator{}, zerolog.Nop()).ReviewUnbalanced(ctx, l)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "No unbalanced voucher sets to review")
	assert.Contains(t, buf.String(), `"job_id":"j1"`)
}

func TestReviewUnbalanced_NothingToReview(t *testing.T) {
	gen := &MockGenerator{}
	l := journal.Load(journal.NewTable(
		[]string{"전표일자", "전표번호", "계정과목", "차변금액", "대변금액"},
		[][]any{{"2024-01-08", "V1", "현금", 10.0, 10.0}},
	), nil)

	findings, err := testReviewer(gen, zerolog.Nop()).ReviewUnbalanced(context.Background(), l)
	require.NoError(t, err)
	assert.Empty(t, findings)
	assert.Zero(t, gen.calls())
}

func TestReviewUnbalanced_NotConfigured(t *testing.T) {
	_, err := testReviewer(Unconfigured{}, zerolog.Nop()).ReviewUnbalanced(context.Background(), unbalancedLedger())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestReviewUnbalanced_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testReviewer(&MockGenerator{}, zerolog.Nop()).ReviewUnbalanced(ctx, unbalancedLedger())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewGenerator(t *testing.T) {
	t.Setenv("GOOGLE_GENAI_USE_VERTEXAI", "")

	tests := []struct {
		name string
		cfg  config.Config
		want any
	}{
		{"none", config.Config{AIProvider: "none"}, Unconfigured{}},
		{"gemini without key", config.Config{AIProvider: "gemini"}, Unconfigured{}},
		{"openai without key", config.Config{AIProvider: "openai"}, Unconfigured{}},
		{"openai", config.Config{AIProvider: "openai", OpenAIAPIKey: "sk-test"}, &OpenAIGenerator{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			g, err := NewGenerator(context.Background(), &cfg)
			require.NoError(t, err)
			assert.IsType(t, tt.want, g)
		})
	}

	_, err := NewGenerator(context.Background(), &config.Config{AIProvider: "llama"})
	assert.Error(t, err)
}
