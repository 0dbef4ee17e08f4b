package screenshot

import "image"

// ErrorRegion is a rectangle of differing blocks. X and Y are the pixel
// coordinates of its top-left corner; XBlocks and YBlocks its extent in blocks.
type ErrorRegion struct {
	X       int `json:"x"`
	Y       int `json:"y"`
	XBlocks int `json:"x_blocks"`
	YBlocks int `json:"y_blocks"`
}

// Rect returns the pixel rectangle covered by the region. Regions touching
// the right or bottom edge may extend past a partial edge block.
func (r ErrorRegion) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.XBlocks*BlockSize, r.Y+r.YBlocks*BlockSize)
}

// Width returns the region width in pixels.
func (r ErrorRegion) Width() int { return r.XBlocks * BlockSize }

// Height returns the region height in pixels.
func (r ErrorRegion) Height() int { return r.YBlocks * BlockSize }

// MergeRegions collects the marked cells of g into rectangular regions in
// row-major discovery order. It consumes the grid: every cell that ends up in
// a region is cleared.
//
// The growth order below (row continuation wrapping back to the region's
// leftmost column, leftward extension on each new row) determines the exact
// region boundaries downstream reports show. Keep it as is.
func MergeRegions(g *DiffGrid) []ErrorRegion {
	var regions []ErrorRegion
	cols, rows := g.Cols(), g.Rows()
	maxSteps := cols * rows

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if !g.Get(x, y) {
				continue
			}
			region := ErrorRegion{X: x * BlockSize, Y: y * BlockSize, XBlocks: 1, YBlocks: 1}
			g.Clear(x, y)

			x1, xmin, y1 := x, x, y
			for steps := 1; ; steps++ {
				x1++
				if x1 >= cols {
					x1 = xmin
				}

				if g.Get(x1, y1) {
					region.XBlocks++
					g.Clear(x1, y1)
				} else {
					x1 = xmin
					if connectedBelow(g, x1, y1, region.XBlocks) {
						y1++
						region.YBlocks++

						if x1-1 >= 0 {
							for g.Get(x1-1, y1) {
								g.Clear(x1-1, y1)
								region.XBlocks++
								x1--
								region.X -= BlockSize
								if x1 == 0 {
									break
								}
							}
							xmin = x1
						}

						// Skip the cells already inside the region on this row.
						x1 = x1 + region.XBlocks - 1
					} else {
						clearRegion(g, region)
						break
					}
				}

				if steps == maxSteps {
					break
				}
			}
			regions = append(regions, region)
		}
	}
	return regions
}

// connectedBelow reports whether the row below y1 has a marked cell within
// the span of n columns starting at x1.
func connectedBelow(g *DiffGrid, x1, y1, n int) bool {
	found := false
	for fx := x1; fx < x1+n; fx++ {
		if fx == g.Cols() || y1+1 == g.Rows() {
			break
		}
		if g.Get(fx, y1+1) {
			found = true
		}
	}
	return found
}

// clearRegion unmarks every cell inside the region's bounding box.
func clearRegion(g *DiffGrid, r ErrorRegion) {
	x0, y0 := r.X/BlockSize, r.Y/BlockSize
	for j := 0; j < r.YBlocks; j++ {
		for i := 0; i < r.XBlocks; i++ {
			if x0+i < g.Cols() && y0+j < g.Rows() {
				g.Clear(x0+i, y0+j)
			}
		}
	}
}
