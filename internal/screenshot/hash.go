package screenshot

import (
	"crypto/md5"
	"encoding/hex"
	"image"
)

// fuzzyMask drops the two least significant bits of every channel.
const fuzzyMask = 0xFC

// Hash returns a fingerprint of the image's RGB content. The two low bits of
// each channel are ignored, so images differing only by tiny color noise hash
// the same. Alpha is ignored.
func Hash(img image.Image) string {
	n := normalize(img)
	w, h := n.Bounds().Dx(), n.Bounds().Dy()
	data := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		off := n.PixOffset(0, y)
		for x := 0; x < w; x++ {
			p := n.Pix[off : off+3 : off+3]
			data = append(data, p[0]&fuzzyMask, p[1]&fuzzyMask, p[2]&fuzzyMask)
			off += 4
		}
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
