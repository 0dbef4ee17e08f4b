package main

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/vaadin/testbench-sub002/internal/errs"
	"github.com/vaadin/testbench-sub002/internal/imagefile"
	"github.com/vaadin/testbench-sub002/internal/report"
	"github.com/vaadin/testbench-sub002/internal/screenshot"
)

// view is what the window shows. Reference may be nil when a report was
// written without one.
type view struct {
	Title      string
	Reference  image.Image
	Screenshot image.Image
	Diff       image.Image
	Verdict    screenshot.Verdict
}

// Status describes the verdict in one line.
func (v view) Status() string {
	switch {
	case v.Verdict.Matched && v.Verdict.Cropped:
		return fmt.Sprintf("Content matches but sizes differ (compared %dx%d)", v.Verdict.Width, v.Verdict.Height)
	case v.Verdict.Matched && v.Verdict.CursorSuppressed:
		return "Match (text cursor ignored)"
	case v.Verdict.Matched:
		return "Match"
	}
	s := fmt.Sprintf("%d differing region(s), %d failed block(s)", len(v.Verdict.Regions), v.Verdict.FailedBlocks)
	if v.Verdict.Cropped {
		s += fmt.Sprintf(", sizes differ (compared %dx%d)", v.Verdict.Width, v.Verdict.Height)
	}
	return s
}

// loadPair compares two image files.
func loadPair(refPath, shotPath string, opts screenshot.Options, highlight string) (view, error) {
	ref, err := imagefile.Load(refPath)
	if err != nil {
		return view{}, err
	}
	shot, err := imagefile.Load(shotPath)
	if err != nil {
		return view{}, err
	}
	r, err := report.New("", highlight)
	if err != nil {
		return view{}, err
	}
	v := screenshot.Compare(ref, shot, opts)
	return view{
		Title:      filepath.Base(shotPath),
		Reference:  ref,
		Screenshot: shot,
		Diff:       report.DrawRegions(shot, v.Regions, r.Highlight()),
		Verdict:    v,
	}, nil
}

// loadSummary reopens a failure report from its JSON summary.
func loadSummary(path string) (view, error) {
	sum, err := report.ReadSummary(path)
	if err != nil {
		return view{}, err
	}
	files := report.Layout(filepath.Dir(path), strings.TrimSuffix(filepath.Base(path), ".json"))

	shot, err := imagefile.Load(files.Screenshot)
	if err != nil {
		return view{}, err
	}
	diff, err := imagefile.Load(files.Diff)
	if err != nil {
		return view{}, err
	}
	var ref image.Image
	if _, statErr := os.Stat(files.Reference); statErr == nil {
		if ref, err = imagefile.Load(files.Reference); err != nil {
			return view{}, err
		}
	}
	title := sum.Name
	if sum.Reference != "" {
		title += " vs " + sum.Reference
	}
	return view{Title: title, Reference: ref, Screenshot: shot, Diff: diff, Verdict: sum.Verdict}, nil
}

func load(args []string, opts screenshot.Options, highlight string) (view, error) {
	switch {
	case len(args) == 1 && strings.HasSuffix(args[0], ".json"):
		return loadSummary(args[0])
	case len(args) == 2:
		return loadPair(args[0], args[1], opts, highlight)
	}
	return view{}, errs.New(errs.InvalidArgument, "expected REPORT.json or REFERENCE SCREENSHOT")
}
