package screenshot

import (
	"image"
	"log/slog"

	"github.com/vaadin/testbench-sub002/internal/obs"
)

// DefaultTolerance allows a 1% mean RGB difference per block.
const DefaultTolerance = 0.01

// Options configures a comparison.
type Options struct {
	// Tolerance is the largest accepted mean RGB difference ratio of a
	// block, in [0, 1].
	Tolerance float64
	// CursorDetection enables the blinking text cursor heuristic.
	CursorDetection bool
}

// Verdict is the outcome of a comparison.
type Verdict struct {
	Matched bool `json:"matched"`
	// Regions lists the merged differing areas, empty (never nil) when Matched.
	Regions []ErrorRegion `json:"regions"`
	// Cropped is set when the images had different sizes and were compared
	// over their common area only. It does not affect Matched.
	Cropped bool `json:"cropped"`
	// CursorSuppressed is set when the only difference was a text cursor.
	CursorSuppressed bool `json:"cursor_suppressed"`
	// FailedBlocks is the number of differing blocks before cursor handling.
	FailedBlocks int `json:"failed_blocks"`
	// Width and Height are the compared (post-crop) dimensions.
	Width  int `json:"width"`
	Height int `json:"height"`
}

func logger() *slog.Logger {
	return obs.Pkg("screenshot")
}

// Compare compares screenshot against reference. Images of different sizes
// are cropped from the origin to their common size and compared silently;
// Verdict.Cropped tells the caller this happened. Neither image is modified,
// and Compare is safe for concurrent use, also on shared images.
func Compare(reference, screenshot image.Image, opts Options) Verdict {
	ref, ss := normalize(reference), normalize(screenshot)

	v := Verdict{Regions: []ErrorRegion{}}
	if !sameSize(ref, ss) {
		ref, ss = cropToSameSize(ref, ss)
		v.Cropped = true
	}
	v.Width, v.Height = ref.Bounds().Dx(), ref.Bounds().Dy()

	grid := NewDiffGrid(v.Width, v.Height)
	if grid.scan(ref, ss, opts.Tolerance) {
		v.Matched = true
		return v
	}
	v.FailedBlocks = grid.Count()

	if opts.CursorDetection {
		if pos, ok := possibleCursorPosition(grid); ok {
			if cursorIsOnlyDifference(pos, ref, ss, opts.Tolerance) {
				logger().Debug("screenshot matched reference after removing cursor", "x", pos.X, "y", pos.Y)
				v.Matched = true
				v.CursorSuppressed = true
				return v
			}
			logger().Debug("screenshot did not match reference after removing cursor", "x", pos.X, "y", pos.Y)
		}
	}

	v.Regions = MergeRegions(grid)
	return v
}
