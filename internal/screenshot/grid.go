package screenshot

import (
	"image"
	"image/color"
	"strings"
)

// DiffGrid holds the per-block comparison results of one image pair. A true
// cell marks a block that differs.
type DiffGrid struct {
	width  int
	height int
	cols   int
	rows   int
	cells  []bool
}

// NewDiffGrid returns an empty grid covering an image of the given size.
func NewDiffGrid(width, height int) *DiffGrid {
	cols, rows := NrBlocks(width), NrBlocks(height)
	return &DiffGrid{
		width:  width,
		height: height,
		cols:   cols,
		rows:   rows,
		cells:  make([]bool, cols*rows),
	}
}

// Cols returns the number of block columns.
func (g *DiffGrid) Cols() int { return g.cols }

// Rows returns the number of block rows.
func (g *DiffGrid) Rows() int { return g.rows }

// Get returns the cell at block coordinates (bx, by).
func (g *DiffGrid) Get(bx, by int) bool {
	return g.cells[by*g.cols+bx]
}

// Set marks the cell at block coordinates (bx, by).
func (g *DiffGrid) Set(bx, by int, v bool) {
	g.cells[by*g.cols+bx] = v
}

// Clear unmarks the cell at block coordinates (bx, by).
func (g *DiffGrid) Clear(bx, by int) {
	g.cells[by*g.cols+bx] = false
}

// Any reports whether at least one cell is marked.
func (g *DiffGrid) Any() bool {
	for _, c := range g.cells {
		if c {
			return true
		}
	}
	return false
}

// Count returns the number of marked cells.
func (g *DiffGrid) Count() int {
	n := 0
	for _, c := range g.cells {
		if c {
			n++
		}
	}
	return n
}

// Clone returns an independent copy of the grid.
func (g *DiffGrid) Clone() *DiffGrid {
	c := *g
	c.cells = append([]bool(nil), g.cells...)
	return &c
}

// String renders the grid one row per line, '#' for marked cells.
func (g *DiffGrid) String() string {
	var sb strings.Builder
	for by := 0; by < g.rows; by++ {
		for bx := 0; bx < g.cols; bx++ {
			if g.Get(bx, by) {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ForEachBlock calls fn once for every block of the image: first the full
// blocks, then the partial right-edge column, the partial bottom-edge row and
// finally the bottom-right corner block. bx, by are block coordinates and x, y
// the pixel coordinates of the block's top-left corner.
func (g *DiffGrid) ForEachBlock(fn func(bx, by, x, y int)) {
	w, h := g.width, g.height
	for y := 0; y < h-(BlockSize-1); y += BlockSize {
		for x := 0; x < w-(BlockSize-1); x += BlockSize {
			fn(x/BlockSize, y/BlockSize, x, y)
		}
	}

	partialCol := w%BlockSize != 0
	partialRow := h%BlockSize != 0
	lastX := (g.cols - 1) * BlockSize
	lastY := (g.rows - 1) * BlockSize

	if partialCol {
		for y := 0; y < h-(BlockSize-1); y += BlockSize {
			fn(g.cols-1, y/BlockSize, lastX, y)
		}
	}
	if partialRow {
		for x := 0; x < w-(BlockSize-1); x += BlockSize {
			fn(x/BlockSize, g.rows-1, x, lastY)
		}
	}
	if partialCol && partialRow {
		fn(g.cols-1, g.rows-1, lastX, lastY)
	}
}

// scan compares ref and ss block by block, marking differing blocks in g.
// Both images must have the grid's size. It reports whether all blocks matched.
func (g *DiffGrid) scan(ref, ss *image.NRGBA, tolerance float64) bool {
	equal := true
	refBuf := make([]color.NRGBA, 0, blockPixels)
	ssBuf := make([]color.NRGBA, 0, blockPixels)
	g.ForEachBlock(func(bx, by, x, y int) {
		refBuf = SampleBlock(ref, x, y, refBuf)
		ssBuf = SampleBlock(ss, x, y, ssBuf)
		if BlocksDiffer(refBuf, ssBuf, tolerance) {
			g.Set(bx, by, true)
			equal = false
		}
	})
	return equal
}
