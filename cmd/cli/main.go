package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/isony10/EntryChecker/internal/audit"
	"github.com/isony10/EntryChecker/internal/coach"
	"github.com/isony10/EntryChecker/internal/config"
	"github.com/isony10/EntryChecker/internal/gcs"
	"github.com/isony10/EntryChecker/internal/holiday"
	"github.com/isony10/EntryChecker/internal/ingest"
	"github.com/isony10/EntryChecker/internal/journal"
	"github.com/isony10/EntryChecker/internal/logger"
	"github.com/isony10/EntryChecker/internal/rules"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{Level: cfg.LogLevel, Pretty: cfg.LogPretty, Out: os.Stderr})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "audit":
		runAudit(cfg, log)
	case "review":
		runReview(cfg, log)
	case "explain":
		runExplain(cfg, log)
	case "upload":
		runUpload(cfg, log)
	case "holidays":
		runHolidays(cfg)
	case "rules":
		runRules()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("EntryChecker CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  audit     Run audit rules over a journal")
	fmt.Println("  review    Ask the AI coach to review unbalanced voucher sets")
	fmt.Println("  explain   Ask the AI coach about one journal row")
	fmt.Println("  upload    Upload a journal file to GCS")
	fmt.Println("  holidays  List the public holidays used by the weekend rule")
	fmt.Println("  rules     List the available rules")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nJournal sources: -file PATH, -gcs-uri gs://bucket/object or -bq-query SQL.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

func runAudit(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	src := addSourceFlags(fs, cfg)
	ruleIDs := fs.String("rules", "", "Comma-separated rule ids for the flat form (see 'cli rules')")
	values := fs.String("values", "", `Rule parameters as JSON, e.g. {"amount_over":{"op":">","value":1000000}}`)
	logicOp := fs.String("logic", "OR", "Combinator for the flat form: AND or OR")
	tree := fs.String("tree", "", "Logic tree as JSON, or @path to a JSON file; overrides -rules")
	format := fs.String("format", "table", "Output format: table or json")
	onlyFlagged := fs.Bool("only-flagged", true, "Print only flagged rows in table output")
	fs.Parse(os.Args[2:])

	req, err := auditRequest(*ruleIDs, *values, *logicOp, *tree)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid rule selection")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	table, source, err := src.load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load journal")
	}
	log.Info().Str("source", source).Int("rows", table.Len()).Msg("Journal loaded")

	res, err := newAnalyzer(cfg, log).Analyze(ctx, table, req)
	if err != nil {
		log.Fatal().Err(err).Msg("Analysis failed")
	}

	switch *format {
	case "json":
		err = writeJSON(os.Stdout, res)
	default:
		err = writeTable(os.Stdout, res, *onlyFlagged)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to write output")
	}
}

func newAnalyzer(cfg *config.Config, log zerolog.Logger) *audit.Analyzer {
	return audit.NewAnalyzer(holiday.NewKorea(cfg.HolidayExtra...), log, audit.WithColumns(cfg.Columns))
}

// auditRequest builds the analysis request from the audit flags.
func auditRequest(ruleIDs, values, logicOp, tree string) (audit.Request, error) {
	var req audit.Request

	if strings.HasPrefix(tree, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(tree, "@"))
		if err != nil {
			return req, fmt.Errorf("auditRequest: reading tree file: %w", err)
		}
		tree = string(data)
	}
	n, err := audit.ParseTree([]byte(tree))
	if err != nil {
		return req, fmt.Errorf("auditRequest: %w", err)
	}
	req.Tree = n

	var active []string
	for _, id := range strings.Split(ruleIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			active = append(active, id)
		}
	}
	if len(active) == 0 {
		if req.Tree == nil {
			return req, fmt.Errorf("auditRequest: %w: pass -rules or -tree", audit.ErrNoRules)
		}
		return req, nil
	}

	rs := &audit.RuleSet{Active: active, Op: logicOp, Values: map[string]rules.Params{}}
	if strings.TrimSpace(values) != "" {
		if err := json.Unmarshal([]byte(values), &rs.Values); err != nil {
			return req, fmt.Errorf("auditRequest: parsing -values: %w", err)
		}
	}
	req.Rules = rs
	return req, nil
}

func runReview(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("review", flag.ExitOnError)
	src := addSourceFlags(fs, cfg)
	batchSize := fs.Int("batch-size", cfg.CoachBatchSize, "Voucher sets per AI request")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	gen, err := coach.NewGenerator(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create AI generator")
	}

	table, source, err := src.load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load journal")
	}

	reviewer := coach.NewReviewer(gen, log, coach.ReviewerConfig{
		BatchSize:   *batchSize,
		Concurrency: cfg.CoachConcurrency,
		RatePerSec:  cfg.CoachRatePerSec,
	})

	log.Info().Str("source", source).Msg("Reviewing unbalanced voucher sets")

	findings, err := reviewer.ReviewUnbalanced(ctx, journal.Load(table, cfg.Columns))
	if err != nil {
		log.Fatal().Err(err).Msg("Review failed")
	}
	if err := writeFindings(os.Stdout, findings); err != nil {
		log.Fatal().Err(err).Msg("Failed to write output")
	}
}

func runExplain(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("explain", flag.ExitOnError)
	src := addSourceFlags(fs, cfg)
	row := fs.Int("row", -1, "Row index as printed by 'cli audit'")
	rule := fs.String("rule", "", "Rule id, name, or rule number from 'cli audit' (needs the same -rules/-tree)")
	ruleIDs := fs.String("rules", "", "Rule selection used to resolve a rule number, as for 'cli audit'")
	values := fs.String("values", "", "Rule parameters as JSON, as for 'cli audit'")
	logicOp := fs.String("logic", "OR", "Combinator for the flat form: AND or OR")
	tree := fs.String("tree", "", "Logic tree as JSON, or @path to a JSON file")
	fs.Parse(os.Args[2:])

	if *row < 0 {
		log.Fatal().Msg("Usage: cli explain -file PATH -row N [-rule ID]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	gen, err := coach.NewGenerator(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create AI generator")
	}

	table, _, err := src.load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load journal")
	}
	l := journal.Load(table, cfg.Columns)
	if *row >= l.Len() {
		log.Fatal().Int("row", *row).Int("rows", l.Len()).Msg("Row out of range")
	}

	var res *audit.Result
	if isRuleNumber(*rule) {
		req, err := auditRequest(*ruleIDs, *values, *logicOp, *tree)
		if err != nil {
			log.Fatal().Err(err).Msg("A rule number needs the -rules or -tree it was printed with")
		}
		if res, err = newAnalyzer(cfg, log).Analyze(ctx, table, req); err != nil {
			log.Fatal().Err(err).Msg("Analysis failed")
		}
	}
	ruleName, err := ruleLabel(*rule, res)
	if err != nil {
		log.Fatal().Err(err).Msg("Unknown rule")
	}

	s, err := coach.New(gen, log).SuggestForEntry(ctx, l.DisplayRecord(*row), ruleName)
	if err != nil {
		log.Fatal().Err(err).Msg("AI suggestion failed")
	}

	fmt.Printf("\n=== Row %d ===\n", *row)
	fmt.Printf("Error type: %s\n", s.ErrorType)
	fmt.Printf("Cause:      %s\n", s.Cause)
	fmt.Printf("Solution:   %s\n\n", s.Solution)
}

func isRuleNumber(rule string) bool {
	_, err := strconv.Atoi(strings.TrimSpace(rule))
	return err == nil
}

// ruleLabel turns the -rule flag into the rule name given to the coach. A
// number refers to the rules applied in res.
func ruleLabel(rule string, res *audit.Result) (string, error) {
	rule = strings.TrimSpace(rule)
	if n, err := strconv.Atoi(rule); err == nil {
		if res == nil {
			return "", fmt.Errorf("ruleLabel: rule number %d needs an analysis", n)
		}
		name := res.RuleName(n)
		if name == "" {
			return "", fmt.Errorf("ruleLabel: no rule numbered %d", n)
		}
		return name, nil
	}
	if k := rules.KindOf(rule); k != rules.KindUnknown {
		return k.DisplayName(), nil
	}
	return rule, nil
}

func runUpload(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", cfg.GCSBucket, "GCS bucket name (or set GCS_BUCKET env)")
	objectName := fs.String("object", "", "GCS object name (defaults to filename)")
	filePath := fs.String("file", "", "Path to local journal file (.csv, .txt, .tsv, .xlsx, .xlsm)")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}

	object, err := uploadObject(*filePath, *objectName)
	if err != nil {
		log.Fatal().Err(err).Msg("Refusing upload")
	}

	ctx := logger.WithContext(context.Background(), log)

	client, err := gcs.NewClient(ctx, 0)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer client.Close()

	log.Info().
		Str("bucket", *bucketName).
		Str("object", object).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	if err := client.Upload(ctx, *bucketName, object, *filePath); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to %s\n", *filePath, gcs.URI(*bucketName, object))
}

// uploadObject picks the object name for an upload and rejects files the
// audit commands could not read back.
func uploadObject(filePath, object string) (string, error) {
	if !ingest.Supported(filePath) {
		return "", fmt.Errorf("uploadObject: %w: %q", ingest.ErrUnsupportedFormat, filepath.Ext(filePath))
	}
	if object == "" {
		object = filepath.Base(filePath)
	}
	return object, nil
}

func runHolidays(cfg *config.Config) {
	fs := flag.NewFlagSet("holidays", flag.ExitOnError)
	year := fs.Int("year", time.Now().Year(), "Calendar year")
	fs.Parse(os.Args[2:])

	cal := holiday.NewKorea(cfg.HolidayExtra...)
	from := civil.Date{Year: *year, Month: time.January, Day: 1}
	to := civil.Date{Year: *year, Month: time.December, Day: 31}

	if err := writeHolidays(os.Stdout, cal.Between(from, to)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		os.Exit(1)
	}
}

func runRules() {
	if err := writeCatalogue(os.Stdout, rules.Catalogue()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		os.Exit(1)
	}
}
