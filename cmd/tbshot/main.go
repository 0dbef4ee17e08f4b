// tbshot opens a page in a browser, takes a screenshot and compares it with
// the stored reference.
//
// Usage:
//
//	tbshot [flags] --id login-form https://app.example.com/login
//
// With --update the screenshot replaces the reference instead. --list prints
// the stored references whose names start with --id.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/vaadin/testbench-sub002/internal/capture"
	"github.com/vaadin/testbench-sub002/internal/config"
	"github.com/vaadin/testbench-sub002/internal/errs"
	"github.com/vaadin/testbench-sub002/internal/history"
	"github.com/vaadin/testbench-sub002/internal/obs"
	"github.com/vaadin/testbench-sub002/internal/refstore"
	"github.com/vaadin/testbench-sub002/internal/report"
	"github.com/vaadin/testbench-sub002/internal/s3client"
	"github.com/vaadin/testbench-sub002/internal/screenshot"
	"github.com/vaadin/testbench-sub002/internal/verify"
)

type options struct {
	url      string
	id       string
	selector string
	browser  string
	headed   bool
	width    int
	height   int
	fullPage bool
	update   bool
	list     bool
	timeout  time.Duration
	// plain keeps reference names as given instead of adding the platform
	// and browser.
	plain bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, opts, err := parseArgs(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "tbshot: %v\n", err)
		return errs.ExitCode(err)
	}
	obs.SetLevel(cfg.LogLevel)
	log := obs.Pkg("tbshot")
	if strings.EqualFold(cfg.LogLevel, "debug") {
		fmt.Fprintln(stderr, "Configuration:")
		cfg.PrintSummary(stderr)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "tbshot: %v\n", err)
		return errs.ExitCode(err)
	}
	if opts.list {
		if err := listReferences(ctx, store, opts.id, stdout); err != nil {
			fmt.Fprintf(stderr, "tbshot: %v\n", err)
			return errs.ExitCode(err)
		}
		return 0
	}
	reporter, err := report.New(cfg.ErrorDir, cfg.Highlight)
	if err != nil {
		fmt.Fprintf(stderr, "tbshot: %v\n", err)
		return errs.ExitCode(err)
	}

	browser, err := capture.Launch(capture.Options{Browser: opts.browser, Headless: !opts.headed})
	if err != nil {
		fmt.Fprintf(stderr, "tbshot: %v\n", err)
		return errs.ExitCode(err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			log.Warn("could not close browser", "error", err)
		}
	}()

	page, err := browser.Open(ctx, opts.url, capture.Viewport{Width: opts.width, Height: opts.height})
	if err != nil {
		fmt.Fprintf(stderr, "tbshot: %v\n", err)
		return errs.ExitCode(err)
	}
	defer page.Close()

	verifierOpts := []verify.Option{
		verify.WithComparison(screenshot.Options{Tolerance: cfg.Tolerance, CursorDetection: cfg.CursorDetection}),
		verify.WithRetries(cfg.MaxRetries, cfg.RetryDelay),
	}
	if !opts.plain {
		verifierOpts = append(verifierOpts, verify.WithCapabilities(browser.Capabilities()))
	}
	if cfg.HistoryDB != "" {
		key, err := cfg.HistoryDBKey()
		if err != nil {
			fmt.Fprintf(stderr, "tbshot: %v\n", err)
			return errs.ExitCode(errs.Wrap(errs.InvalidArgument, "history key", err))
		}
		ledger, err := history.Open(cfg.HistoryDB, key)
		if err != nil {
			fmt.Fprintf(stderr, "tbshot: %v\n", err)
			return errs.ExitCode(err)
		}
		defer ledger.Close()
		verifierOpts = append(verifierOpts, verify.WithRecorder(ledger))
	}
	v := verify.New(store, reporter, verifierOpts...)
	shoot := verify.Shooter(page.Shooter(opts.selector, opts.fullPage))

	if opts.update {
		if err := v.UpdateReference(ctx, opts.id, shoot); err != nil {
			fmt.Fprintf(stderr, "tbshot: %v\n", err)
			return errs.ExitCode(err)
		}
		fmt.Fprintf(stdout, "updated %s\n", v.ReferenceName(opts.id))
		return 0
	}

	res, err := v.CompareScreen(ctx, opts.id, shoot)
	if err != nil {
		fmt.Fprintf(stderr, "tbshot: %v\n", err)
		return errs.ExitCode(err)
	}
	if err := printResult(stdout, res); err != nil {
		fmt.Fprintf(stderr, "tbshot: %v\n", err)
		return errs.ExitCode(err)
	}
	if !res.Matched {
		return errs.ExitMismatch
	}
	return 0
}

func parseArgs(args []string, stderr io.Writer) (*config.Config, options, error) {
	cfg := config.Load()
	var opts options
	fs := pflag.NewFlagSet("tbshot", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg.BindFlags(fs)
	fs.StringVar(&opts.id, "id", "", "Reference screenshot identifier (required).")
	fs.StringVarP(&opts.selector, "selector", "s", "", "CSS selector of the element to capture (default: viewport).")
	fs.StringVarP(&opts.browser, "browser", "b", "chromium", "Browser to use (chromium, firefox, webkit).")
	fs.BoolVar(&opts.headed, "headed", false, "Show the browser window.")
	fs.IntVar(&opts.width, "width", capture.DefaultViewport.Width, "Viewport width in CSS pixels.")
	fs.IntVar(&opts.height, "height", capture.DefaultViewport.Height, "Viewport height in CSS pixels.")
	fs.BoolVar(&opts.fullPage, "full-page", false, "Capture the whole scrollable page.")
	fs.BoolVarP(&opts.update, "update", "u", false, "Store the screenshot as the new reference.")
	fs.BoolVar(&opts.list, "list", false, "List stored references starting with --id and exit.")
	fs.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Overall time limit.")
	fs.BoolVar(&opts.plain, "plain-names", false, "Use --id as the reference file name without browser details.")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: tbshot [flags] --id NAME URL\n       tbshot --list [--id PREFIX]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, opts, errs.Wrap(errs.InvalidArgument, "bad flags", err)
	}
	if opts.list {
		if fs.NArg() != 0 {
			return nil, opts, errs.New(errs.InvalidArgument, "--list takes no URL")
		}
	} else {
		if fs.NArg() != 1 {
			fs.Usage()
			return nil, opts, errs.New(errs.InvalidArgument, "expected one URL")
		}
		opts.url = fs.Arg(0)
		if opts.id == "" {
			return nil, opts, errs.New(errs.InvalidArgument, "--id is required")
		}
	}
	if opts.width <= 0 || opts.height <= 0 {
		return nil, opts, errs.New(errs.InvalidArgument, "--width and --height must be positive")
	}
	if opts.timeout <= 0 {
		return nil, opts, errs.New(errs.InvalidArgument, "--timeout must be positive")
	}
	if err := cfg.Validate(); err != nil {
		return nil, opts, errs.Wrap(errs.InvalidArgument, "invalid configuration", err)
	}
	return cfg, opts, nil
}

func openStore(ctx context.Context, cfg *config.Config) (refstore.Store, error) {
	if !cfg.UseS3 {
		return refstore.NewDirStore(cfg.ReferenceDir), nil
	}
	client, err := s3client.New(ctx, s3client.Config{
		Endpoint:        cfg.AWSEndpointS3,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		BucketName:      cfg.AWSBucketName,
		Prefix:          cfg.ReferencePrefix,
		UsePathStyle:    cfg.AWSEndpointS3 != "",
	})
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "could not configure S3", err)
	}
	obs.From(ctx).Debug("using S3 reference store", "bucket", client.BucketName(), "prefix", client.Prefix())
	return refstore.NewBucketStore(client), nil
}

func listReferences(ctx context.Context, store refstore.Store, prefix string, w io.Writer) error {
	lister, ok := store.(refstore.Lister)
	if !ok {
		return errs.New(errs.FailedPrecondition, fmt.Sprintf("%T cannot list references", store))
	}
	names, err := lister.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(w, name)
	}
	return nil
}

type resultJSON struct {
	Matched   bool               `json:"matched"`
	Reference string             `json:"reference,omitempty"`
	Missing   bool               `json:"missing,omitempty"`
	Attempts  int                `json:"attempts"`
	RunID     string             `json:"run_id"`
	Verdict   screenshot.Verdict `json:"verdict"`
	Report    report.Files       `json:"report"`
}

func printResult(w io.Writer, res verify.Result) error {
	if res.Verdict.Regions == nil {
		res.Verdict.Regions = []screenshot.ErrorRegion{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resultJSON{
		Matched:   res.Matched,
		Reference: res.Reference,
		Missing:   res.Missing,
		Attempts:  res.Attempts,
		RunID:     res.RunID,
		Verdict:   res.Verdict,
		Report:    res.Report,
	})
}
