package report

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaadin/testbench-sub002/internal/errs"
	"github.com/vaadin/testbench-sub002/internal/imagefile"
	"github.com/vaadin/testbench-sub002/internal/screenshot"
)

func grayImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 128, 128, 128, 255
	}
	return img
}

func isMagenta(c color.Color) bool {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return n.R > 240 && n.G < 16 && n.B > 240
}

func TestNew_RejectsBadColor(t *testing.T) {
	t.Parallel()
	_, err := New(t.TempDir(), "purple")
	require.Error(t, err)
	assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err))

	r, err := New(t.TempDir(), "")
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestDrawRegions_BoxOutsideRegion(t *testing.T) {
	t.Parallel()
	img := grayImage(64, 64)
	region := screenshot.ErrorRegion{X: 16, Y: 16, XBlocks: 1, YBlocks: 1}
	magenta := color.NRGBA{R: 255, B: 255, A: 255}

	out := DrawRegions(img, []screenshot.ErrorRegion{region}, magenta)

	for _, p := range []image.Point{{20, 15}, {15, 20}, {32, 24}, {24, 32}} {
		assert.True(t, isMagenta(out.At(p.X, p.Y)), "expected outline at %v", p)
	}
	for _, p := range []image.Point{{16, 16}, {24, 24}, {31, 31}, {14, 14}, {33, 33}} {
		assert.False(t, isMagenta(out.At(p.X, p.Y)), "unexpected outline at %v", p)
	}
	// The input is left untouched.
	assert.Equal(t, color.NRGBA{R: 128, G: 128, B: 128, A: 255}, img.NRGBAAt(15, 15))
}

func TestDrawRegions_ClampedToImage(t *testing.T) {
	t.Parallel()
	img := grayImage(20, 20)
	region := screenshot.ErrorRegion{X: 0, Y: 0, XBlocks: 2, YBlocks: 2}

	out := DrawRegions(img, []screenshot.ErrorRegion{region}, color.NRGBA{R: 255, B: 255, A: 255})
	assert.Equal(t, img.Bounds(), out.Bounds())
	assert.True(t, isMagenta(out.At(0, 10)))
	assert.True(t, isMagenta(out.At(19, 10)))
	assert.True(t, isMagenta(out.At(10, 19)))
	assert.False(t, isMagenta(out.At(10, 10)))
}

func TestOutline(t *testing.T) {
	t.Parallel()
	assert.Equal(t, image.Rect(15, 15, 33, 33), outline(screenshot.ErrorRegion{X: 16, Y: 16, XBlocks: 1, YBlocks: 1}, 64, 64))
	assert.Equal(t, image.Rect(0, 0, 17, 17), outline(screenshot.ErrorRegion{X: 0, Y: 0, XBlocks: 1, YBlocks: 1}, 64, 64))
	assert.Equal(t, image.Rect(47, 0, 50, 40), outline(screenshot.ErrorRegion{X: 48, Y: 0, XBlocks: 4, YBlocks: 3}, 50, 40))
}

func TestWrite(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	r, err := New(dir, "#00ff00")
	require.NoError(t, err)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	ref := grayImage(48, 32)
	shot := grayImage(48, 32)
	v := screenshot.Verdict{
		Regions:      []screenshot.ErrorRegion{{X: 16, Y: 0, XBlocks: 1, YBlocks: 1}},
		FailedBlocks: 1,
		Width:        48,
		Height:       32,
	}

	files, err := r.Write("forms/login.png", "login_1.png", shot, ref, v)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "login.png"), files.Screenshot)
	assert.Equal(t, filepath.Join(dir, "diff", "login.png"), files.Diff)
	assert.Equal(t, filepath.Join(dir, "reference", "login.png"), files.Reference)
	assert.Equal(t, Layout(dir, "forms/login.png"), files)

	for _, p := range []string{files.Screenshot, files.Diff, files.Reference, files.Summary} {
		_, err := os.Stat(p)
		require.NoError(t, err, p)
	}

	diff, err := imagefile.Load(files.Diff)
	require.NoError(t, err)
	g := color.NRGBAModel.Convert(diff.At(15, 8)).(color.NRGBA)
	assert.Equal(t, uint8(255), g.G)
	assert.Less(t, g.R, uint8(16))

	sum, err := ReadSummary(files.Summary)
	require.NoError(t, err)
	assert.Equal(t, "login", sum.Name)
	assert.Equal(t, "login_1.png", sum.Reference)
	assert.Equal(t, v.Regions, sum.Verdict.Regions)
	assert.Equal(t, screenshot.Hash(shot), sum.ScreenshotHash)
	assert.Equal(t, sum.ScreenshotHash, sum.ReferenceHash)
	assert.True(t, fixed.Equal(sum.CreatedAt))
}

func TestWrite_WithoutReference(t *testing.T) {
	t.Parallel()
	r, err := New(t.TempDir(), "")
	require.NoError(t, err)

	files, err := r.Write("grid", "", grayImage(16, 16), nil, screenshot.Verdict{})
	require.NoError(t, err)
	assert.Empty(t, files.Reference)

	sum, err := ReadSummary(files.Summary)
	require.NoError(t, err)
	assert.Empty(t, sum.ReferenceHash)
}

func TestWriteMissingReference(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	r, err := New(dir, "")
	require.NoError(t, err)

	path, err := r.WriteMissingReference("menu.png", grayImage(8, 8))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "menu.png"), path)

	img, err := imagefile.Load(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 8), img.Bounds())
}

func TestReadSummary_Malformed(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err := ReadSummary(path)
	assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
}
