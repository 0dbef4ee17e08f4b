// tbcompare compares a screenshot file against a reference file.
//
// Usage:
//
//	tbcompare [flags] reference.png screenshot.png
//	tbcompare --history comparisons.db --stats reference.png
//
// The verdict is printed as JSON on stdout. With --stats the recorded history
// of a reference is printed instead. The exit status is 0 when the
// images match, 1 when they differ and larger for usage or I/O errors.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/vaadin/testbench-sub002/internal/config"
	"github.com/vaadin/testbench-sub002/internal/errs"
	"github.com/vaadin/testbench-sub002/internal/history"
	"github.com/vaadin/testbench-sub002/internal/imagefile"
	"github.com/vaadin/testbench-sub002/internal/obs"
	"github.com/vaadin/testbench-sub002/internal/report"
	"github.com/vaadin/testbench-sub002/internal/screenshot"
)

type output struct {
	Reference  string             `json:"reference"`
	Screenshot string             `json:"screenshot"`
	Verdict    screenshot.Verdict `json:"verdict"`
	Report     *report.Files      `json:"report,omitempty"`
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	fs := pflag.NewFlagSet("tbcompare", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg.BindFlags(fs)
	name := fs.StringP("name", "n", "", "Name used for report files (default: screenshot file name).")
	noReport := fs.Bool("no-report", false, "Do not write report files on mismatch.")
	stats := fs.String("stats", "", "Print the recorded history of this reference instead of comparing (needs --history).")
	limit := fs.Int("limit", 10, "Number of recent comparisons printed with --stats.")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: tbcompare [flags] reference.png screenshot.png\n")
		fmt.Fprintf(stderr, "       tbcompare --history DB --stats REFERENCE\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return errs.ExitCode(errs.Wrap(errs.InvalidArgument, "bad flags", err))
	}
	if *stats != "" {
		return runStats(ctx, cfg, *stats, *limit, fs.NArg(), stdout, stderr)
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return errs.ExitCode(errs.New(errs.InvalidArgument, "expected two image files"))
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return errs.ExitCode(errs.Wrap(errs.InvalidArgument, "invalid configuration", err))
	}
	obs.SetLevel(cfg.LogLevel)

	out, err := compareFiles(ctx, cfg, fs.Arg(0), fs.Arg(1), *name, !*noReport)
	if err != nil {
		fmt.Fprintf(stderr, "tbcompare: %v\n", err)
		return errs.ExitCode(err)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stderr, "tbcompare: %v\n", err)
		return errs.ExitCode(err)
	}
	if !out.Verdict.Matched || out.Verdict.Cropped {
		return errs.ExitMismatch
	}
	return 0
}

func compareFiles(ctx context.Context, cfg *config.Config, refPath, shotPath, name string, writeReport bool) (output, error) {
	out := output{Reference: refPath, Screenshot: shotPath}
	ref, err := imagefile.Load(refPath)
	if err != nil {
		return out, err
	}
	shot, err := imagefile.Load(shotPath)
	if err != nil {
		return out, err
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(shotPath), filepath.Ext(shotPath))
	}

	runID := history.NewRunID()
	ctx = obs.WithCorrelation(ctx, obs.Correlation{RunID: runID, Reference: filepath.Base(refPath)})
	out.Verdict = screenshot.Compare(ref, shot, screenshot.Options{
		Tolerance:       cfg.Tolerance,
		CursorDetection: cfg.CursorDetection,
	})

	if cfg.HistoryDB != "" {
		if err := recordHistory(ctx, cfg, runID, filepath.Base(refPath), shot, out.Verdict); err != nil {
			return out, err
		}
	}

	if out.Verdict.Matched && !out.Verdict.Cropped {
		obs.From(ctx).Debug("images match", "cursor_suppressed", out.Verdict.CursorSuppressed)
		return out, nil
	}
	if !writeReport {
		return out, nil
	}
	reporter, err := report.New(cfg.ErrorDir, cfg.Highlight)
	if err != nil {
		return out, err
	}
	files, err := reporter.Write(name, filepath.Base(refPath), shot, ref, out.Verdict)
	if err != nil {
		return out, err
	}
	out.Report = &files
	return out, nil
}

func recordHistory(ctx context.Context, cfg *config.Config, runID, reference string, shot image.Image, v screenshot.Verdict) error {
	key, err := cfg.HistoryDBKey()
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "history key", err)
	}
	ledger, err := history.Open(cfg.HistoryDB, key)
	if err != nil {
		return err
	}
	defer ledger.Close()
	return ledger.Record(ctx, history.EntryFromVerdict(runID, reference, 1, screenshot.Hash(shot), v))
}

type statsOutput struct {
	Reference string          `json:"reference"`
	Stats     history.Stats   `json:"stats"`
	Recent    []recentAttempt `json:"recent"`
}

type recentAttempt struct {
	RunID            string    `json:"run_id"`
	Attempt          int       `json:"attempt"`
	Matched          bool      `json:"matched"`
	Cropped          bool      `json:"cropped"`
	CursorSuppressed bool      `json:"cursor_suppressed"`
	Regions          int       `json:"regions"`
	ScreenshotHash   string    `json:"screenshot_hash"`
	CreatedAt        time.Time `json:"created_at"`
}

func runStats(ctx context.Context, cfg *config.Config, reference string, limit, nargs int, stdout, stderr io.Writer) int {
	out, err := statsFor(ctx, cfg, reference, limit, nargs)
	if err == nil {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(out)
	}
	if err != nil {
		fmt.Fprintf(stderr, "tbcompare: %v\n", err)
		return errs.ExitCode(err)
	}
	return 0
}

func statsFor(ctx context.Context, cfg *config.Config, reference string, limit, nargs int) (statsOutput, error) {
	if nargs != 0 {
		return statsOutput{}, errs.New(errs.InvalidArgument, "--stats takes no image files")
	}
	if cfg.HistoryDB == "" {
		return statsOutput{}, errs.New(errs.InvalidArgument, "--stats needs --history or TESTBENCH_HISTORY_DB")
	}
	if err := cfg.Validate(); err != nil {
		return statsOutput{}, errs.Wrap(errs.InvalidArgument, "invalid configuration", err)
	}
	obs.SetLevel(cfg.LogLevel)
	return loadStats(ctx, cfg, reference, limit)
}

func loadStats(ctx context.Context, cfg *config.Config, reference string, limit int) (statsOutput, error) {
	key, err := cfg.HistoryDBKey()
	if err != nil {
		return statsOutput{}, errs.Wrap(errs.InvalidArgument, "history key", err)
	}
	ledger, err := history.Open(cfg.HistoryDB, key)
	if err != nil {
		return statsOutput{}, err
	}
	defer ledger.Close()

	out := statsOutput{Reference: reference, Recent: []recentAttempt{}}
	if out.Stats, err = ledger.Stats(ctx, reference); err != nil {
		return out, err
	}
	entries, err := ledger.Recent(ctx, reference, limit)
	if err != nil {
		return out, err
	}
	for _, e := range entries {
		out.Recent = append(out.Recent, recentAttempt{
			RunID:            e.RunID,
			Attempt:          e.Attempt,
			Matched:          e.Matched,
			Cropped:          e.Cropped,
			CursorSuppressed: e.CursorSuppressed,
			Regions:          len(e.Regions),
			ScreenshotHash:   e.ScreenshotHash,
			CreatedAt:        e.CreatedAt,
		})
	}
	return out, nil
}
