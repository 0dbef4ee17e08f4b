// Package verify takes screenshots and checks them against stored references,
// retrying while the page settles and reporting the final failure.
package verify

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vaadin/testbench-sub002/internal/errs"
	"github.com/vaadin/testbench-sub002/internal/history"
	"github.com/vaadin/testbench-sub002/internal/obs"
	"github.com/vaadin/testbench-sub002/internal/refstore"
	"github.com/vaadin/testbench-sub002/internal/report"
	"github.com/vaadin/testbench-sub002/internal/screenshot"
)

const (
	DefaultMaxRetries = 2
	DefaultRetryDelay = 500 * time.Millisecond
)

// Shooter takes one screenshot.
type Shooter func(ctx context.Context) (image.Image, error)

// Recorder stores comparison attempts. *history.Ledger implements it.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Result describes the outcome of CompareScreen.
type Result struct {
	Matched bool
	// Reference is the reference that matched, or the primary reference on
	// failure. Empty when no reference exists.
	Reference string
	// Verdict of the matching comparison, or of the last comparison against
	// the primary reference.
	Verdict  screenshot.Verdict
	Attempts int
	// Missing is set when no reference exists for the name.
	Missing bool
	// Report lists the files written for a failure.
	Report report.Files
	RunID  string
}

// Verifier compares screenshots against references.
type Verifier struct {
	store      refstore.Store
	reporter   *report.Reporter
	recorder   Recorder
	caps       *refstore.Capabilities
	opts       screenshot.Options
	maxRetries int
	retryDelay time.Duration
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithComparison sets the tolerance and cursor detection.
func WithComparison(opts screenshot.Options) Option {
	return func(v *Verifier) { v.opts = opts }
}

// WithRetries sets how many screenshots are taken before giving up and the
// pause between them.
func WithRetries(maxRetries int, delay time.Duration) Option {
	return func(v *Verifier) {
		v.maxRetries = max(1, maxRetries)
		v.retryDelay = max(0, delay)
	}
}

// WithRecorder records every comparison attempt.
func WithRecorder(r Recorder) Option {
	return func(v *Verifier) { v.recorder = r }
}

// WithCapabilities enables older-browser reference lookup.
func WithCapabilities(caps refstore.Capabilities) Option {
	return func(v *Verifier) { v.caps = &caps }
}

// New returns a verifier reading references from store and writing failures
// through reporter.
func New(store refstore.Store, reporter *report.Reporter, opts ...Option) *Verifier {
	v := &Verifier{
		store:      store,
		reporter:   reporter,
		opts:       screenshot.Options{Tolerance: screenshot.DefaultTolerance},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type reference struct {
	name string
	img  image.Image
}

// CompareScreen takes up to the configured number of screenshots and
// compares each against every reference for id (the primary one and its
// alternatives). With capabilities configured the reference name is
// generated from id and the browser, see refstore.GenerateName. The first match wins. Images of different sizes never match,
// even when their common area does. When no reference exists the screenshot
// is saved for review and the result is a failure with Missing set.
func (v *Verifier) CompareScreen(ctx context.Context, id string, shoot Shooter) (Result, error) {
	name := v.ReferenceName(id)
	res := Result{RunID: history.NewRunID()}
	ctx = obs.WithCorrelation(ctx, obs.Correlation{RunID: res.RunID, Reference: name})
	if v.caps != nil {
		ctx = obs.WithCorrelation(ctx, obs.Correlation{Browser: v.caps.Browser})
	}
	log := obs.From(ctx)

	refs, err := v.loadReferences(ctx, name)
	if err != nil {
		return res, err
	}

	limiter := rate.NewLimiter(rate.Every(v.retryDelay), 1)
	var (
		lastShot image.Image
		primary  screenshot.Verdict
	)
	for attempt := 1; attempt <= v.maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return res, fmt.Errorf("waiting before screenshot attempt %d: %w", attempt, err)
		}
		res.Attempts = attempt

		shot, err := shoot(ctx)
		if err != nil {
			return res, errs.Wrap(errs.Unavailable, "could not take screenshot", err)
		}
		lastShot = shot

		if len(refs) == 0 {
			res.Missing = true
			path, err := v.reporter.WriteMissingReference(name, shot)
			if err != nil {
				return res, err
			}
			res.Report.Screenshot = path
			log.Error("no reference screenshot found", "name", name)
			return res, nil
		}

		hash := screenshot.Hash(shot)
		for i, ref := range refs {
			verdict := screenshot.Compare(ref.img, shot, v.opts)
			v.record(ctx, history.EntryFromVerdict(res.RunID, ref.name, attempt, hash, verdict))

			if verdict.Matched && !verdict.Cropped {
				log.Info("screenshot matched reference", "candidate", ref.name, "attempt", attempt)
				res.Matched = true
				res.Reference = ref.name
				res.Verdict = verdict
				return res, nil
			}
			if verdict.Cropped {
				log.Debug("screenshot and reference sizes differ", "candidate", ref.name,
					"content_matched", verdict.Matched, "width", verdict.Width, "height", verdict.Height)
			}
			if i == 0 {
				primary = verdict
			}
		}
		log.Debug("screenshot did not match any reference", "attempt", attempt, "references", len(refs))
	}

	res.Reference = refs[0].name
	res.Verdict = primary
	files, err := v.reporter.Write(name, refs[0].name, lastShot, refs[0].img, primary)
	if err != nil {
		return res, err
	}
	res.Report = files
	log.Warn("screenshot does not match reference",
		"attempts", res.Attempts,
		"regions", len(primary.Regions),
		"cropped", primary.Cropped,
		"diff", files.Diff,
	)
	return res, nil
}

// UpdateReference takes one screenshot and stores it as the primary
// reference for id, replacing any existing one.
func (v *Verifier) UpdateReference(ctx context.Context, id string, shoot Shooter) error {
	name := v.ReferenceName(id)
	shot, err := shoot(ctx)
	if err != nil {
		return errs.Wrap(errs.Unavailable, "could not take screenshot", err)
	}
	if err := v.store.Write(ctx, name, shot); err != nil {
		return err
	}
	obs.From(ctx).Info("updated reference screenshot", "reference", name,
		"width", shot.Bounds().Dx(), "height", shot.Bounds().Dy())
	return nil
}

// ReferenceName returns the primary reference file name used for id.
func (v *Verifier) ReferenceName(id string) string {
	if v.caps == nil {
		return refstore.WithExt(id)
	}
	return refstore.GenerateName(strings.TrimSuffix(id, ".png"), *v.caps)
}

func (v *Verifier) loadReferences(ctx context.Context, name string) ([]reference, error) {
	names, err := refstore.ReferenceNames(ctx, v.store, name, v.caps)
	if err != nil {
		return nil, err
	}
	refs := make([]reference, 0, len(names))
	for _, n := range names {
		img, err := v.store.Read(ctx, n)
		if err != nil {
			return nil, err
		}
		refs = append(refs, reference{name: n, img: img})
	}
	return refs, nil
}

func (v *Verifier) record(ctx context.Context, e history.Entry) {
	if v.recorder == nil {
		return
	}
	if err := v.recorder.Record(ctx, e); err != nil {
		obs.From(ctx).Warn("could not record comparison", "error", err)
	}
}
