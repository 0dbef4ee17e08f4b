package screenshot

import (
	"image"
	"image/color"
)

const (
	// A cursor pixel is dark in one image and bright in the other.
	cursorDarkMax   = 50
	cursorBrightMin = 150

	// Shorter vertical runs are not accepted as a cursor unless clipped by
	// the top or bottom edge of the image.
	cursorMinRun = 5

	// The cursor search window spans at most two blocks vertically.
	cursorWindowHeight = 2 * BlockSize
)

// possibleCursorPosition inspects the failed blocks for the single pattern a
// blinking text cursor produces: one failing block, or two failing blocks
// directly on top of each other. It returns the pixel position of the upper
// block.
func possibleCursorPosition(g *DiffGrid) (image.Point, bool) {
	first := image.Point{}
	found := false
	for by := 0; by < g.Rows(); by++ {
		for bx := 0; bx < g.Cols(); bx++ {
			if !g.Get(bx, by) {
				continue
			}
			if !found {
				first = image.Pt(bx, by)
				found = true
				continue
			}
			if bx != first.X || by != first.Y+1 {
				return image.Point{}, false
			}
		}
	}
	if !found {
		return image.Point{}, false
	}
	return image.Pt(first.X*BlockSize, first.Y*BlockSize), true
}

// isCursorPixel compares the luminance of the same pixel in both images.
func isCursorPixel(a, b color.NRGBA) bool {
	la, lb := luminance(a), luminance(b)
	return (la < cursorDarkMax && lb > cursorBrightMin) ||
		(la > cursorBrightMin && lb < cursorDarkMax)
}

// cursorIsOnlyDifference looks for a vertical cursor line in the block at pos
// and reports whether the images match once that line is removed. Pixels on
// the line are always taken from the reference, whichever image shows the
// cursor. Neither input image is modified.
func cursorIsOnlyDifference(pos image.Point, ref, ss *image.NRGBA, tolerance float64) bool {
	log := logger()
	width, height := ref.Bounds().Dx(), ref.Bounds().Dy()
	x, y := pos.X, pos.Y

	cursorAt := func(i, j int) bool {
		return isCursorPixel(ref.NRGBAAt(i, j), ss.NRGBAAt(i, j))
	}

	cursorX, startY := -1, -1
search:
	for j := y; j < y+BlockSize && j < height; j++ {
		for i := x; i < x+BlockSize && i < width; i++ {
			if !cursorAt(i, j) {
				continue
			}
			// A lone differing pixel (horizontal edge, anti-aliasing) is not a cursor.
			if j < height-1 && !cursorAt(i, j+1) {
				continue
			}
			cursorX, startY = i, j
			break search
		}
	}
	if cursorX == -1 {
		log.Debug("cursor not found", "x", x, "y", y)
		return false
	}

	endY := startY
	for endY < height-1 && endY < y+cursorWindowHeight && cursorAt(cursorX, endY+1) {
		endY++
	}

	if endY-startY < cursorMinRun && startY > 0 && endY < height-1 {
		log.Debug("cursor rejected", "x", cursorX, "start_y", startY, "end_y", endY)
		return false
	}
	log.Debug("cursor candidate", "x", cursorX, "start_y", startY, "end_y", endY)

	area := cursorWindow(x, y, width, height)
	refCopy := crop(ref, area)
	ssCopy := cloneRegion(ss, area)
	for j := startY; j <= endY; j++ {
		ssCopy.SetNRGBA(cursorX-area.Min.X, j-area.Min.Y, ref.NRGBAAt(cursorX, j))
	}

	return NewDiffGrid(area.Dx(), area.Dy()).scan(refCopy, ssCopy, tolerance)
}

// cursorWindow returns the block-aligned 16x32 area starting at (x, y). Near
// the right or bottom edge the area is moved back to a block boundary and
// widened to reach the edge instead of extending past the image.
func cursorWindow(x, y, width, height int) image.Rectangle {
	areaX, areaY := x, y
	w, h := BlockSize, cursorWindowHeight
	if areaX > width-BlockSize {
		areaX = max(0, (width-BlockSize)&^(BlockSize-1))
		w = width - areaX
	}
	if areaY > height-cursorWindowHeight {
		areaY = max(0, (height-cursorWindowHeight)&^(BlockSize-1))
		h = height - areaY
	}
	return image.Rect(areaX, areaY, areaX+w, areaY+h)
}
