package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/isony10/EntryChecker/internal/journal"
	"github.com/joho/godotenv"
)

// Config holds runtime settings shared by the API server and the CLI.
// Values come from a .env file (if present), then the process environment.
// Commands may override individual fields from their own flags.
type Config struct {
	Port      string
	LogLevel  string
	LogPretty bool

	AIProvider   string
	AIModel      string
	GeminiAPIKey string
	OpenAIAPIKey string

	CoachBatchSize   int
	CoachConcurrency int
	CoachRatePerSec  float64

	MaxUploadMB int64
	GCSBucket   string
	BQProject   string

	// HolidayExtra lists one-off public holidays (elections, temporary holidays)
	// that are not part of the statutory calendar.
	HolidayExtra []civil.Date

	// Columns are the accepted journal headers per field: COLUMN_ALIASES
	// entries first, then the built-in aliases.
	Columns journal.Columns
}

// Default values used when neither the environment nor flags provide one.
const (
	DefaultPort             = "8000"
	DefaultLogLevel         = "info"
	DefaultAIProvider       = "gemini"
	DefaultGeminiModel      = "gemini-2.5-flash"
	DefaultOpenAIModel      = "gpt-4o-mini"
	DefaultCoachBatchSize   = 10
	DefaultCoachConcurrency = 2
	DefaultCoachRatePerSec  = 1.0
	DefaultMaxUploadMB      = 32
)

// Load reads envFiles (default ".env") and the environment into a Config.
// A missing env file is not an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("config.Load: reading %s: %w", f, err)
		}
	}

	cfg := &Config{
		Port:         getEnv("PORT", DefaultPort),
		LogLevel:     getEnv("LOG_LEVEL", DefaultLogLevel),
		AIProvider:   strings.ToLower(getEnv("AI_PROVIDER", DefaultAIProvider)),
		AIModel:      os.Getenv("AI_MODEL"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		GCSBucket:    os.Getenv("GCS_BUCKET"),
		BQProject:    os.Getenv("BQ_PROJECT"),
	}

	var err error
	if cfg.LogPretty, err = getBool("LOG_PRETTY", true); err != nil {
		return nil, err
	}
	if cfg.CoachBatchSize, err = getInt("COACH_BATCH_SIZE", DefaultCoachBatchSize); err != nil {
		return nil, err
	}
	if cfg.CoachConcurrency, err = getInt("COACH_CONCURRENCY", DefaultCoachConcurrency); err != nil {
		return nil, err
	}
	if cfg.CoachRatePerSec, err = getFloat("COACH_RATE_PER_SEC", DefaultCoachRatePerSec); err != nil {
		return nil, err
	}
	maxUpload, err := getInt("MAX_UPLOAD_MB", DefaultMaxUploadMB)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadMB = int64(maxUpload)

	if cfg.HolidayExtra, err = ParseDates(os.Getenv("HOLIDAY_EXTRA")); err != nil {
		return nil, fmt.Errorf("config.Load: HOLIDAY_EXTRA: %w", err)
	}

	if cfg.Columns, err = ParseColumns(os.Getenv("COLUMN_ALIASES")); err != nil {
		return nil, fmt.Errorf("config.Load: COLUMN_ALIASES: %w", err)
	}

	if cfg.AIModel == "" {
		cfg.AIModel = defaultModel(cfg.AIProvider)
	}

	return cfg, cfg.Validate()
}

// Validate checks values that would otherwise fail much later at call time.
func (c *Config) Validate() error {
	switch c.AIProvider {
	case "gemini", "openai", "none":
	default:
		return fmt.Errorf("config: unsupported AI_PROVIDER %q (want gemini, openai or none)", c.AIProvider)
	}
	if c.CoachBatchSize <= 0 {
		return fmt.Errorf("config: COACH_BATCH_SIZE must be positive, got %d", c.CoachBatchSize)
	}
	if c.CoachConcurrency <= 0 {
		return fmt.Errorf("config: COACH_CONCURRENCY must be positive, got %d", c.CoachConcurrency)
	}
	if c.CoachRatePerSec <= 0 {
		return fmt.Errorf("config: COACH_RATE_PER_SEC must be positive, got %v", c.CoachRatePerSec)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("config: MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB)
	}
	return nil
}

// ParseDates parses a comma-separated list of YYYY-MM-DD dates. Blank items are skipped.
func ParseDates(s string) ([]civil.Date, error) {
	var out []civil.Date
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		d, err := civil.ParseDate(item)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", item, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// ParseColumns reads extra header aliases as a JSON object keyed by field,
// e.g. {"posting_date":["Posting Dt"],"debit_amount":["Dr"]}, and puts them
// ahead of the defaults. Blank input gives the defaults.
func ParseColumns(s string) (journal.Columns, error) {
	cols := journal.DefaultColumns()
	if strings.TrimSpace(s) == "" {
		return cols, nil
	}

	var extra map[journal.Field][]string
	if err := json.Unmarshal([]byte(s), &extra); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	for field, aliases := range extra {
		if _, ok := cols[field]; !ok {
			return nil, fmt.Errorf("unknown journal field %q", field)
		}
		var keep []string
		for _, a := range aliases {
			if a = strings.TrimSpace(a); a != "" {
				keep = append(keep, a)
			}
		}
		cols[field] = append(keep, cols[field]...)
	}
	return cols, nil
}

func defaultModel(provider string) string {
	if provider == "openai" {
		return DefaultOpenAIModel
	}
	return DefaultGeminiModel
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}

func getBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}
