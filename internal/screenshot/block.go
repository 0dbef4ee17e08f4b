// Package screenshot compares a captured screenshot against a reference image.
//
// Images are compared in 16x16 pixel blocks. A block fails when the mean
// per-channel RGB difference exceeds the configured tolerance. Failing blocks
// are collected into a DiffGrid, optionally checked for a blinking text cursor,
// and merged into rectangular ErrorRegions for reporting.
//
// NOTE: the 16 pixel block size is assumed throughout the package (grid
// arithmetic, cursor window alignment, region extents). It is not a tunable.
package screenshot

import (
	"image"
	"image/color"
	"slices"
)

// BlockSize is the edge length of a comparison block in pixels.
const BlockSize = 16

// blockPixels is the pixel count of a full block.
const blockPixels = BlockSize * BlockSize

// NrBlocks returns the number of blocks used for a dimension of the given
// size. All blocks are full size except possibly the last one.
func NrBlocks(pixels int) int {
	return (pixels + BlockSize - 1) / BlockSize
}

// SampleBlock returns the pixels of the block whose top-left corner is (x, y),
// clipped to the image bounds, in row-major order. buf is reused when it has
// enough capacity. (x, y) must lie inside the image.
func SampleBlock(img *image.NRGBA, x, y int, buf []color.NRGBA) []color.NRGBA {
	b := img.Bounds()
	w := min(BlockSize, b.Max.X-x)
	h := min(BlockSize, b.Max.Y-y)

	if cap(buf) < w*h {
		buf = make([]color.NRGBA, 0, blockPixels)
	}
	buf = buf[:0]
	for j := 0; j < h; j++ {
		off := img.PixOffset(x, y+j)
		for i := 0; i < w; i++ {
			p := img.Pix[off : off+4 : off+4]
			buf = append(buf, color.NRGBA{R: p[0], G: p[1], B: p[2], A: p[3]})
			off += 4
		}
	}
	return buf
}

// BlocksDiffer reports whether two same-position blocks differ by more than
// tolerance. Pixels that are not fully opaque on either side are masked and
// do not contribute to the difference.
func BlocksDiffer(a, b []color.NRGBA, tolerance float64) bool {
	if slices.Equal(a, b) {
		return false
	}
	return DifferenceRatio(a, b) > tolerance
}

// DifferenceRatio returns the summed absolute RGB difference of two blocks
// divided by the largest possible difference for a block of that size. The
// result is in [0, 1].
func DifferenceRatio(a, b []color.NRGBA) float64 {
	if len(a) == 0 {
		return 0
	}
	sum := 0
	for i := range a {
		pa, pb := a[i], b[i]
		if pa.A < 255 || pb.A < 255 {
			continue
		}
		sum += absDiff(pa.R, pb.R)
		sum += absDiff(pa.G, pb.G)
		sum += absDiff(pa.B, pb.B)
	}
	return float64(sum) / (float64(len(a)) * 255 * 3)
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
