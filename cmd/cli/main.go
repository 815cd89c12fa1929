package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvloznov/ledger-ingest/internal/app"
	"github.com/dvloznov/ledger-ingest/internal/cascade"
	"github.com/dvloznov/ledger-ingest/internal/config"
	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/importer"
	"github.com/dvloznov/ledger-ingest/internal/ingest"
	"github.com/dvloznov/ledger-ingest/internal/logger"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	log := logger.NewWithLevel(cfg.LogLevel)

	switch os.Args[1] {
	case "help", "-h", "--help":
		printUsage()
		return
	case "ingest", "upload", "delete", "refs", "accounts", "add-account", "runs":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise backends")
	}
	defer a.Close()

	args := os.Args[2:]
	switch os.Args[1] {
	case "ingest":
		err = runIngest(ctx, a, args)
	case "upload":
		err = runUpload(ctx, a, args)
	case "delete":
		err = runDelete(ctx, a, args)
	case "refs":
		err = runRefs(ctx, a, args)
	case "accounts":
		err = runAccounts(ctx, a)
	case "add-account":
		err = runAddAccount(ctx, a, args)
	case "runs":
		err = runRuns(ctx, a, args)
	}
	if err != nil {
		// Deferred closes do not run after Fatal.
		_ = a.Close()
		log.Fatal().Err(err).Msg(os.Args[1] + " failed")
	}
}

func printUsage() {
	fmt.Println("Ledger Ingest CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  ingest       Ingest transactions from a CSV file or gs:// URI")
	fmt.Println("  upload       Upload a CSV file to GCS")
	fmt.Println("  delete       Delete transactions and their splits")
	fmt.Println("  refs         List reference numbers of an account for a year")
	fmt.Println("  accounts     List bank accounts")
	fmt.Println("  add-account  Create a bank account")
	fmt.Println("  runs         Show recent ingestion runs")
	fmt.Println("  help         Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// progressPrinter renders progress events as one line per event.
func progressPrinter(w io.Writer) domain.ProgressFunc {
	return func(p domain.Progress) {
		phase := p.Phase
		if phase == "" {
			phase = domain.PhaseIngest
		}
		fmt.Fprintf(w, "[%-15s] %6d/%-6d %3d%%\n", phase, p.Completed, p.Total, p.Percentage)
	}
}

func printResult(w io.Writer, r domain.Result) {
	fmt.Fprintf(w, "Succeeded: %d\nFailed:    %d\n", r.Success, r.Failed)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  - %s\n", e)
	}
}

func runIngest(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	file := fs.String("file", "", "Local CSV path or gs://bucket/object URI")
	maxRetries := fs.Int("max-retries", 0, "Attempts per chunk (default from INGEST_MAX_RETRIES)")
	dryRun := fs.Bool("dry-run", false, "Parse and validate only")
	_ = fs.Parse(args)

	if *file == "" {
		return errors.New("-file is required")
	}

	pending, err := a.Importer.Load(ctx, *file)
	if err != nil {
		return err
	}
	if *dryRun {
		fmt.Printf("Parsed %d transactions from %s\n", len(pending), importer.FilenameFromLocation(*file))
		return nil
	}

	report, err := a.Ingester.Ingest(ctx, pending, ingest.Options{
		OnProgress: progressPrinter(os.Stderr),
		MaxRetries: *maxRetries,
	})
	if report.Total() > 0 {
		fmt.Printf("Run:        %s\nStrategy:   %s\nAllocation: %s\n", report.RunID, report.Strategy, report.Allocation)
		if report.AllocationReason != "" {
			fmt.Printf("Fallback:   %s (records flagged for review)\n", report.AllocationReason)
		}
		if report.SerialFallback {
			fmt.Println("Note:       selected strategy failed, serial writes were used")
		}
		printResult(os.Stdout, report.Result)
		fmt.Printf("Duration:   %s\n", report.Duration.Round(time.Millisecond))
	}
	return err
}

func runUpload(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucket := fs.String("bucket", a.Config.GCSBucket, "GCS bucket name (or set GCS_BUCKET env)")
	object := fs.String("object", "", "GCS object name (defaults to imports/<date>/<filename>)")
	file := fs.String("file", "", "Path to local CSV file")
	_ = fs.Parse(args)

	if *bucket == "" || *file == "" {
		return errors.New("usage: cli upload -bucket NAME -file PATH")
	}
	if a.Storage == nil {
		return errors.New("no storage client configured")
	}
	if *object == "" {
		*object = fmt.Sprintf("imports/%s/%s", time.Now().Format("2006/01/02"), filepath.Base(*file))
	}

	log := logger.FromContext(ctx)
	log.Info().Str("bucket", *bucket).Str("object", *object).Str("file", *file).Msg("Uploading file to GCS")

	if err := a.Storage.UploadFile(ctx, *bucket, *object, *file); err != nil {
		return err
	}
	fmt.Printf("Uploaded %s to gs://%s/%s\n", *file, *bucket, *object)
	return nil
}

func runDelete(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	ids := fs.String("ids", "", "Comma separated transaction ids")
	idsFile := fs.String("ids-file", "", "File with one transaction id per line")
	_ = fs.Parse(args)

	list := splitIDs(*ids, ",")
	if *idsFile != "" {
		data, err := os.ReadFile(*idsFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", *idsFile, err)
		}
		list = append(list, splitIDs(string(data), "\n")...)
	}
	if len(list) == 0 {
		return errors.New("-ids or -ids-file is required")
	}

	result := a.Deleter.DeleteMany(ctx, list, cascade.Options{OnProgress: progressPrinter(os.Stderr)})
	printResult(os.Stdout, result)
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d deletions failed", result.Failed, result.Total())
	}
	return nil
}

func splitIDs(s, sep string) []string {
	var out []string
	for _, id := range strings.Split(s, sep) {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func runRefs(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("refs", flag.ExitOnError)
	account := fs.String("account", "", "Bank account id")
	year := fs.Int("year", time.Now().Year(), "Year")
	_ = fs.Parse(args)

	if *account == "" {
		return errors.New("-account is required")
	}

	refs, err := a.Allocator.ListReferenceNumbers(ctx, *account, *year)
	if err != nil {
		return err
	}
	for _, r := range refs {
		fmt.Println(r)
	}
	fmt.Fprintf(os.Stderr, "%d reference numbers\n", len(refs))
	return nil
}

func runAccounts(ctx context.Context, a *app.App) error {
	list, err := a.Accounts.ListBankAccounts(ctx)
	if err != nil {
		return err
	}
	for _, acct := range list {
		fmt.Printf("%-24s %-6s %-30s %s\n", acct.ID, acct.Token(), acct.Name, acct.CurrentBalance.StringFixed(2))
	}
	return nil
}

func runAddAccount(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("add-account", flag.ExitOnError)
	name := fs.String("name", "", "Account name")
	number := fs.String("number", "", "Account number; its last four characters scope reference numbers")
	_ = fs.Parse(args)

	if *name == "" {
		return errors.New("-name is required")
	}

	id, err := a.Accounts.SaveBankAccount(ctx, &domain.BankAccount{Name: *name, AccountNumber: *number})
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runRuns(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of runs to show")
	_ = fs.Parse(args)

	list, err := a.Recorder.ListRuns(ctx, *limit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No runs recorded (is BIGQUERY_DATASET set?)")
		return nil
	}
	for _, r := range list {
		fmt.Printf("%s  %-6s %-8s %-16s total=%d ok=%d failed=%d  %s\n",
			r.StartedAt.Format(time.RFC3339), r.Operation, r.Status, r.Strategy, r.Total, r.Success, r.Failed, r.RunID)
	}
	return nil
}
