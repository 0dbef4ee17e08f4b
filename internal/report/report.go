// Package report writes failing screenshots, boxed diff images and a JSON
// summary of every failed comparison into the error directory.
package report

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/vaadin/testbench-sub002/internal/errs"
	"github.com/vaadin/testbench-sub002/internal/imagefile"
	"github.com/vaadin/testbench-sub002/internal/obs"
	"github.com/vaadin/testbench-sub002/internal/screenshot"
)

// DefaultHighlight is the color of region boxes in diff images.
const DefaultHighlight = "#ff00ff"

const (
	diffDir      = "diff"
	referenceDir = "reference"
)

// Reporter writes failure artifacts below a directory.
type Reporter struct {
	dir       string
	highlight color.Color
	now       func() time.Time
}

// Summary is the JSON document written next to a failing screenshot.
type Summary struct {
	Name           string             `json:"name"`
	Reference      string             `json:"reference,omitempty"`
	Verdict        screenshot.Verdict `json:"verdict"`
	ScreenshotHash string             `json:"screenshot_hash"`
	ReferenceHash  string             `json:"reference_hash,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Files lists the paths written for one failure.
type Files struct {
	Screenshot string `json:"screenshot,omitempty"`
	Diff       string `json:"diff,omitempty"`
	Reference  string `json:"reference,omitempty"`
	Summary    string `json:"summary,omitempty"`
}

// New returns a reporter writing to dir and boxing regions in the given hex
// color, e.g. "#ff00ff". An empty color selects DefaultHighlight.
func New(dir, highlight string) (*Reporter, error) {
	if highlight == "" {
		highlight = DefaultHighlight
	}
	c, err := colorful.Hex(highlight)
	if err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, fmt.Sprintf("invalid highlight color %q", highlight), err)
	}
	return &Reporter{dir: dir, highlight: c, now: time.Now}, nil
}

// Dir returns the error directory.
func (r *Reporter) Dir() string { return r.dir }

// Highlight returns the region box color.
func (r *Reporter) Highlight() color.Color { return r.highlight }

func logger() *slog.Logger {
	return obs.Pkg("report")
}

// Write stores the failing screenshot, a copy with every region of v boxed,
// the reference it was compared against (when not nil) and a JSON summary.
// refName names the reference in the summary and may be empty.
func (r *Reporter) Write(name, refName string, shot, reference image.Image, v screenshot.Verdict) (Files, error) {
	base := baseName(name)
	files := Layout(r.dir, name)
	refPath := files.Reference
	files.Reference = ""

	if err := imagefile.Save(files.Screenshot, shot); err != nil {
		return Files{}, err
	}
	if err := imagefile.Save(files.Diff, DrawRegions(shot, v.Regions, r.highlight)); err != nil {
		return Files{}, err
	}

	sum := Summary{
		Name:           base,
		Reference:      refName,
		Verdict:        v,
		ScreenshotHash: screenshot.Hash(shot),
		CreatedAt:      r.now().UTC(),
	}
	if reference != nil {
		files.Reference = refPath
		if err := imagefile.Save(files.Reference, reference); err != nil {
			return Files{}, err
		}
		sum.ReferenceHash = screenshot.Hash(reference)
	}

	if err := writeJSON(files.Summary, sum); err != nil {
		return Files{}, err
	}

	logger().Info("wrote screenshot failure report",
		"name", base,
		"regions", len(v.Regions),
		"cropped", v.Cropped,
		"dir", r.dir,
	)
	return files, nil
}

// WriteMissingReference stores a screenshot for which no reference exists so
// it can be reviewed and promoted to a reference.
func (r *Reporter) WriteMissingReference(name string, shot image.Image) (string, error) {
	path := filepath.Join(r.dir, baseName(name)+".png")
	if err := imagefile.Save(path, shot); err != nil {
		return "", err
	}
	logger().Warn("reference screenshot missing, wrote screenshot for review", "name", baseName(name), "path", path)
	return path, nil
}

// ReadSummary loads a summary written by Write.
func ReadSummary(path string) (Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Summary{}, fmt.Errorf("read summary: %w", err)
	}
	var sum Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return Summary{}, errs.Wrap(errs.InvalidArgument, "malformed summary "+path, err)
	}
	return sum, nil
}

// Layout returns where Write puts the files for name below dir.
func Layout(dir, name string) Files {
	base := baseName(name)
	return Files{
		Screenshot: filepath.Join(dir, base+".png"),
		Diff:       filepath.Join(dir, diffDir, base+".png"),
		Reference:  filepath.Join(dir, referenceDir, base+".png"),
		Summary:    filepath.Join(dir, base+".json"),
	}
}

// DrawRegions returns a copy of img with a 1 pixel outline in color c around
// every region. Outlines sit one pixel outside the region where the image
// allows and are clamped to the image bounds.
func DrawRegions(img image.Image, regions []screenshot.ErrorRegion, c color.Color) image.Image {
	b := img.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(img, -b.Min.X, -b.Min.Y)
	dc.SetColor(c)
	dc.SetLineWidth(1)

	for _, reg := range regions {
		box := outline(reg, b.Dx(), b.Dy())
		if box.Empty() {
			continue
		}
		// Pixel centers keep the 1 pixel line crisp.
		dc.DrawRectangle(float64(box.Min.X)+0.5, float64(box.Min.Y)+0.5,
			float64(box.Dx()-1), float64(box.Dy()-1))
		dc.Stroke()
	}
	return dc.Image()
}

// outline returns the pixel rectangle whose border is drawn for reg. The
// rectangle is inclusive of its border on all sides.
func outline(reg screenshot.ErrorRegion, width, height int) image.Rectangle {
	x0, y0 := reg.X, reg.Y
	if x0 > 0 {
		x0--
	}
	if y0 > 0 {
		y0--
	}
	x1 := min(reg.X+reg.Width()+1, width)
	y1 := min(reg.Y+reg.Height()+1, height)
	return image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, width, height))
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func baseName(name string) string {
	return strings.TrimSuffix(filepath.Base(filepath.FromSlash(name)), ".png")
}
