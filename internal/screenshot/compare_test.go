package screenshot

import (
	"encoding/json"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testCompareIdentity(t *rapid.T) {
	img := drawImage(t, "img", 48)
	tol := rapid.Float64Range(0, 1).Draw(t, "tolerance")
	cursor := rapid.Bool().Draw(t, "cursor")

	v := Compare(img, img, Options{Tolerance: tol, CursorDetection: cursor})
	if !v.Matched || len(v.Regions) != 0 || v.FailedBlocks != 0 {
		t.Fatalf("image does not match itself: %+v", v)
	}
}

func TestCompare_Identity(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCompareIdentity)
}

func testCompareSymmetric(t *rapid.T) {
	a := drawImage(t, "a", 40)
	b := drawVariant(t, a)
	tol := rapid.Float64Range(0, 0.1).Draw(t, "tolerance")
	opts := Options{Tolerance: tol}

	ab, ba := Compare(a, b, opts), Compare(b, a, opts)
	if ab.Matched != ba.Matched || ab.FailedBlocks != ba.FailedBlocks {
		t.Fatalf("asymmetric verdicts: %+v vs %+v", ab, ba)
	}
}

func TestCompare_Symmetric(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCompareSymmetric)
}

func testCompareToleranceMonotonic(t *rapid.T) {
	a := drawImage(t, "a", 40)
	b := drawVariant(t, a)
	lo := rapid.Float64Range(0, 0.5).Draw(t, "lo")
	hi := rapid.Float64Range(lo, 1).Draw(t, "hi")

	vlo := Compare(a, b, Options{Tolerance: lo})
	vhi := Compare(a, b, Options{Tolerance: hi})
	if vlo.Matched && !vhi.Matched {
		t.Fatalf("matched at tolerance %v but not at %v", lo, hi)
	}
	if vhi.FailedBlocks > vlo.FailedBlocks {
		t.Fatalf("more failed blocks at higher tolerance: %d > %d", vhi.FailedBlocks, vlo.FailedBlocks)
	}
}

func TestCompare_ToleranceMonotonic(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCompareToleranceMonotonic)
}

func testCompareFullToleranceMatches(t *rapid.T) {
	a := drawImage(t, "a", 40)
	b := drawImage(t, "b", 40)
	v := Compare(a, b, Options{Tolerance: 1})
	if !v.Matched {
		t.Fatalf("tolerance 1 must accept any pair: %+v", v)
	}
}

func TestCompare_FullToleranceMatches(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testCompareFullToleranceMatches)
}

func TestCompare_CornerBlockDifference(t *testing.T) {
	t.Parallel()
	ref := solidImage(17, 17, gray)
	ss := cloneNRGBA(ref)
	ss.SetNRGBA(16, 16, white)

	v := Compare(ref, ss, Options{Tolerance: DefaultTolerance})
	require.False(t, v.Matched)
	assert.Equal(t, 1, v.FailedBlocks)
	require.Len(t, v.Regions, 1)
	assert.Equal(t, 16, v.Regions[0].X)
	assert.Equal(t, 16, v.Regions[0].Y)
}

func TestCompare_ToleranceBoundary(t *testing.T) {
	t.Parallel()
	ref := solidImage(32, 32, black)
	ss := cloneNRGBA(ref)
	fillRect(ss, image.Rect(0, 0, 4, 1), white)

	assert.False(t, Compare(ref, ss, Options{Tolerance: 0.01}).Matched)
	assert.True(t, Compare(ref, ss, Options{Tolerance: 0.02}).Matched)
}

func TestCompare_MaskedReferenceIgnored(t *testing.T) {
	t.Parallel()
	ref := solidImage(32, 32, white)
	ss := cloneNRGBA(ref)
	fillRect(ref, image.Rect(0, 0, 16, 16), color.NRGBA{A: 0})
	fillRect(ss, image.Rect(0, 0, 16, 16), black)

	v := Compare(ref, ss, Options{Tolerance: 0})
	assert.True(t, v.Matched)
}

func TestCompare_SizeMismatchCropsFromOrigin(t *testing.T) {
	t.Parallel()
	ref := solidImage(40, 30, gray)
	ss := solidImage(48, 24, gray)
	fillRect(ss, image.Rect(40, 0, 48, 24), white)

	v := Compare(ref, ss, Options{Tolerance: DefaultTolerance})
	assert.True(t, v.Matched)
	assert.True(t, v.Cropped)
	assert.Equal(t, 40, v.Width)
	assert.Equal(t, 24, v.Height)
}

func TestCompare_AcceptsAnyImageType(t *testing.T) {
	t.Parallel()
	ref := image.NewRGBA(image.Rect(0, 0, 20, 20))
	ss := image.NewGray(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			ref.Set(x, y, color.RGBA{R: 90, G: 90, B: 90, A: 255})
			ss.SetGray(x, y, color.Gray{Y: 90})
		}
	}
	assert.True(t, Compare(ref, ss, Options{}).Matched)
}

func TestCompare_OffsetBounds(t *testing.T) {
	t.Parallel()
	big := solidImage(64, 64, gray)
	fillRect(big, image.Rect(32, 32, 48, 48), white)
	sub := big.SubImage(image.Rect(32, 32, 64, 64))

	ref := solidImage(32, 32, gray)
	fillRect(ref, image.Rect(0, 0, 16, 16), white)
	assert.True(t, Compare(ref, sub, Options{}).Matched)
}

func TestDiffGrid_Scan(t *testing.T) {
	t.Parallel()
	ref := solidImage(48, 32, gray)
	ss := cloneNRGBA(ref)
	fillRect(ss, image.Rect(16, 16, 32, 32), white)

	g := NewDiffGrid(48, 32)
	assert.False(t, g.scan(ref, ss, DefaultTolerance))
	assert.Equal(t, "...\n.#.\n", g.String())
}

func TestCompare_MatchedRegionsEncodeAsEmptyList(t *testing.T) {
	t.Parallel()
	img := solidImage(20, 20, gray)
	v := Compare(img, img, Options{Tolerance: DefaultTolerance})
	require.True(t, v.Matched)
	require.NotNil(t, v.Regions)

	data, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"regions":[]`)
}

func TestCompare_ConcurrentOnSharedImages(t *testing.T) {
	t.Parallel()
	ref := solidImage(67, 45, white)
	fillRect(ref, image.Rect(40, 30, 60, 40), gray)
	ss := cloneNRGBA(ref)
	verticalLine(ss, 5, 1, 4, 23, black)
	fillRect(ss, image.Rect(48, 0, 67, 10), black)
	refHash, ssHash := Hash(ref), Hash(ss)
	refPix := append([]byte(nil), ref.Pix...)
	ssPix := append([]byte(nil), ss.Pix...)

	opts := Options{Tolerance: DefaultTolerance, CursorDetection: true}
	want := Compare(ref, ss, opts)
	require.False(t, want.Matched)

	const workers = 16
	results := make([]Verdict, workers*4)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 4; i++ {
				// Alternate argument order so both images are read as either side.
				if i%2 == 0 {
					results[w*4+i] = Compare(ref, ss, opts)
				} else {
					results[w*4+i] = Compare(ss, ref, opts)
				}
			}
		}(w)
	}
	wg.Wait()

	reversed := Compare(ss, ref, opts)
	for i, got := range results {
		if i%2 == 0 {
			assert.Equal(t, want, got, "result %d", i)
		} else {
			assert.Equal(t, reversed, got, "result %d", i)
		}
	}
	assert.Equal(t, refHash, Hash(ref))
	assert.Equal(t, ssHash, Hash(ss))
	assert.Equal(t, refPix, ref.Pix)
	assert.Equal(t, ssPix, ss.Pix)
}

func TestHash(t *testing.T) {
	t.Parallel()
	a := solidImage(8, 8, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
	b := solidImage(8, 8, color.NRGBA{R: 101, G: 102, B: 103, A: 255})
	c := solidImage(8, 8, color.NRGBA{R: 104, G: 100, B: 100, A: 255})
	d := solidImage(8, 8, color.NRGBA{R: 100, G: 100, B: 100, A: 10})

	assert.Len(t, Hash(a), 32)
	assert.Equal(t, Hash(a), Hash(b), "low bits are ignored")
	assert.NotEqual(t, Hash(a), Hash(c))
	assert.Equal(t, Hash(a), Hash(d), "alpha is ignored")
}
