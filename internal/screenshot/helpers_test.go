package screenshot

import (
	"image"
	"image/color"

	"pgregory.net/rapid"
)

var (
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	black = color.NRGBA{A: 255}
	gray  = color.NRGBA{R: 128, G: 128, B: 128, A: 255}
)

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func fillRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

// verticalLine draws a line of the given width from row y0 to y1 inclusive.
func verticalLine(img *image.NRGBA, x, width, y0, y1 int, c color.NRGBA) {
	fillRect(img, image.Rect(x, y0, x+width, y1+1), c)
}

func cloneNRGBA(img *image.NRGBA) *image.NRGBA {
	return cloneRegion(img, img.Bounds())
}

func gridFromCells(cols, rows int, cells ...image.Point) *DiffGrid {
	g := NewDiffGrid(cols*BlockSize, rows*BlockSize)
	for _, c := range cells {
		g.Set(c.X, c.Y, true)
	}
	return g
}

// drawImage generates an opaque image of up to maxSize pixels per side.
func drawImage(t *rapid.T, label string, maxSize int) *image.NRGBA {
	w := rapid.IntRange(1, maxSize).Draw(t, label+"_w")
	h := rapid.IntRange(1, maxSize).Draw(t, label+"_h")
	pix := rapid.SliceOfN(rapid.Byte(), w*h*3, w*h*3).Draw(t, label+"_pix")
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		img.Pix[i*4] = pix[i*3]
		img.Pix[i*4+1] = pix[i*3+1]
		img.Pix[i*4+2] = pix[i*3+2]
		img.Pix[i*4+3] = 255
	}
	return img
}

// drawVariant returns a copy of img with a few pixels changed.
func drawVariant(t *rapid.T, img *image.NRGBA) *image.NRGBA {
	out := cloneNRGBA(img)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	n := rapid.IntRange(0, 8).Draw(t, "changes")
	for i := 0; i < n; i++ {
		x := rapid.IntRange(0, w-1).Draw(t, "change_x")
		y := rapid.IntRange(0, h-1).Draw(t, "change_y")
		v := rapid.Byte().Draw(t, "change_v")
		out.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
	}
	return out
}
