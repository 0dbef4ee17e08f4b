package screenshot

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// normalize returns img as an *image.NRGBA whose bounds start at the origin.
// Images that already have that shape are returned as-is and never written to.
func normalize(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		if n.Bounds().Min == (image.Point{}) {
			return n
		}
		return crop(n, n.Bounds())
	}
	return imaging.Clone(img)
}

// sameSize reports whether two images have identical dimensions.
func sameSize(a, b image.Image) bool {
	return a.Bounds().Dx() == b.Bounds().Dx() && a.Bounds().Dy() == b.Bounds().Dy()
}

// cropToSameSize crops both images, from the origin, to the smallest common
// width and height. The returned images share pixel memory with the inputs.
func cropToSameSize(a, b *image.NRGBA) (*image.NRGBA, *image.NRGBA) {
	if sameSize(a, b) {
		return a, b
	}
	w := min(a.Bounds().Dx(), b.Bounds().Dx())
	h := min(a.Bounds().Dy(), b.Bounds().Dy())
	return crop(a, image.Rect(0, 0, w, h)), crop(b, image.Rect(0, 0, w, h))
}

// crop returns the r sub-image of img, rebased so its bounds start at the
// origin. The result shares pixel memory with img; use cloneRegion for a copy
// that may be written to.
func crop(img *image.NRGBA, r image.Rectangle) *image.NRGBA {
	sub := img.SubImage(r).(*image.NRGBA)
	return &image.NRGBA{
		Pix:    sub.Pix,
		Stride: sub.Stride,
		Rect:   image.Rect(0, 0, r.Dx(), r.Dy()),
	}
}

// cloneRegion copies the r sub-image of img into a fresh image at the origin.
// As with crop, r is in img's coordinates.
func cloneRegion(img *image.NRGBA, r image.Rectangle) *image.NRGBA {
	return imaging.Crop(img, r)
}

// luminance returns the monochrome luminance of c in the 0-255 range.
func luminance(c color.NRGBA) float64 {
	return 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
}
