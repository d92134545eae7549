package coach

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Suggestion is the coaching reply for one flagged entry.
type Suggestion struct {
	ErrorType string `json:"errorType"`
	Cause     string `json:"cause"`
	Solution  string `json:"solution"`
}

// Coach explains single flagged entries.
type Coach struct {
	gen Generator
	log zerolog.Logger
}

// New creates a Coach. A nil generator behaves as Unconfigured.
func New(gen Generator, log zerolog.Logger) *Coach {
	if gen == nil {
		gen = Unconfigured{}
	}
	return &Coach{gen: gen, log: log}
}

// SuggestForEntry asks the model why entry may have tripped the rule named
// ruleName and how to fix it.
func (c *Coach) SuggestForEntry(ctx context.Context, entry map[string]any, ruleName string) (*Suggestion, error) {
	start := time.Now()

	prompt, err := entryPrompt(entry, ruleName)
	if err != nil {
		return nil, fmt.Errorf("SuggestForEntry: build prompt: %w", err)
	}

	raw, err := c.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("SuggestForEntry: generate: %w", err)
	}

	var s Suggestion
	if err := decodeObject(raw, &s); err != nil {
		c.log.Warn().Err(err).Str("rule", ruleName).Msg("Coach reply rejected")
		return nil, fmt.Errorf("SuggestForEntry: %w", err)
	}

	c.log.Info().
		Str("rule", ruleName).
		Str("error_type", s.ErrorType).
		Dur("duration", time.Since(start)).
		Msg("Entry suggestion generated")
	return &s, nil
}

func entryPrompt(entry map[string]any, ruleName string) (string, error) {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("당신은 회계 경험이 적은 실무자를 돕는 친절한 회계 코치입니다.\n")
	b.WriteString("아래 분개가 내부 감사 규칙에 걸렸습니다. 왜 위험한지 회계 원칙과 내부통제 관점에서 설명하고,\n")
	b.WriteString("실무자가 바로 따라 할 수 있는 단계별 조치를 제시하세요.\n\n")
	b.WriteString("[분개 데이터]\n")
	b.Write(data)
	b.WriteString("\n\n[위반 규칙]\n")
	b.WriteString(ruleName)
	b.WriteString("\n\n")
	b.WriteString("응답은 아래 형식의 JSON 객체 하나만 반환하세요. 코드 블록이나 다른 설명은 쓰지 마세요.\n")
	b.WriteString(`{"errorType": "오류 유형 한 줄 요약", "cause": "원인 설명", "solution": "단계별 해결 방안"}`)
	b.WriteString("\n")
	return b.String(), nil
}
