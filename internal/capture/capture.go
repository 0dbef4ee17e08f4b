// Package capture takes browser screenshots with Playwright.
package capture

import (
	"context"
	"fmt"
	"image"
	"math"
	"runtime"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/vaadin/testbench-sub002/internal/errs"
	"github.com/vaadin/testbench-sub002/internal/imagefile"
	"github.com/vaadin/testbench-sub002/internal/logutil"
	"github.com/vaadin/testbench-sub002/internal/obs"
	"github.com/vaadin/testbench-sub002/internal/refstore"
)

// DefaultTimeout bounds every browser operation when the context has no
// earlier deadline.
const DefaultTimeout = 10 * time.Second

// Options configures the browser.
type Options struct {
	// Browser is "chromium" (default), "firefox" or "webkit".
	Browser  string
	Headless bool
}

// Viewport is the page size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// DefaultViewport matches a common laptop screen.
var DefaultViewport = Viewport{Width: 1280, Height: 800}

// Browser is a running Playwright browser.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	name    string
}

// Launch starts Playwright and the requested browser.
func Launch(opts Options) (*Browser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "playwright not available", err)
	}

	name := strings.ToLower(opts.Browser)
	var bt playwright.BrowserType
	switch name {
	case "", "chromium", "chrome":
		name, bt = "chromium", pw.Chromium
	case "firefox":
		bt = pw.Firefox
	case "webkit", "safari":
		name, bt = "webkit", pw.WebKit
	default:
		_ = pw.Stop()
		return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("unknown browser %q", opts.Browser))
	}

	browser, err := bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, errs.Wrap(errs.Unavailable, "could not launch "+name, err)
	}
	obs.Pkg("capture").Debug("launched browser", "browser", name, "version", browser.Version())
	return &Browser{pw: pw, browser: browser, name: name}, nil
}

// Capabilities describes the browser for reference naming.
func (b *Browser) Capabilities() refstore.Capabilities {
	return refstore.Capabilities{
		Platform: runtime.GOOS,
		Browser:  b.name,
		Version:  b.browser.Version(),
	}
}

// Close shuts down the browser and Playwright.
func (b *Browser) Close() error {
	var first error
	if err := b.browser.Close(); err != nil {
		first = err
	}
	if err := b.pw.Stop(); err != nil && first == nil {
		first = err
	}
	return first
}

// Page is an open browser page.
type Page struct {
	page playwright.Page
}

// Open loads url in a new page of the given size and waits for the network
// to go idle.
func (b *Browser) Open(ctx context.Context, url string, vp Viewport) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if vp.Width <= 0 || vp.Height <= 0 {
		vp = DefaultViewport
	}
	page, err := b.browser.NewPage(playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{Width: vp.Width, Height: vp.Height},
	})
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "could not create page", err)
	}
	timeout := timeoutMS(ctx)
	page.SetDefaultTimeout(timeout)
	page.SetDefaultNavigationTimeout(timeout)

	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		_ = page.Close()
		return nil, errs.Wrap(errs.Unavailable, "could not load "+url, err)
	}
	obs.From(ctx).Debug("opened page", "url", url, "width", vp.Width, "height", vp.Height)
	return &Page{page: page}, nil
}

// Close closes the page.
func (p *Page) Close() error {
	return p.page.Close()
}

// Shoot takes a screenshot of the viewport, or of the whole page when
// fullPage is set.
func (p *Page) Shoot(ctx context.Context, fullPage bool) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage:   playwright.Bool(fullPage),
		Animations: playwright.ScreenshotAnimationsDisabled,
		Caret:      playwright.ScreenshotCaretInitial,
		Timeout:    playwright.Float(timeoutMS(ctx)),
	})
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "page screenshot failed", err)
	}
	return imagefile.DecodeBytes(data)
}

// ShootElement takes a screenshot of the first element matching selector.
// When the browser cannot take element screenshots the element is cut out of
// a full page screenshot instead.
func (p *Page) ShootElement(ctx context.Context, selector string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	loc := p.page.Locator(selector).First()
	timeout := playwright.Float(timeoutMS(ctx))
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeout,
	}); err != nil {
		return nil, errs.Wrap(errs.NotFound, fmt.Sprintf("element %q not visible", selector), err)
	}

	data, err := loc.Screenshot(playwright.LocatorScreenshotOptions{
		Animations: playwright.ScreenshotAnimationsDisabled,
		Caret:      playwright.ScreenshotCaretInitial,
		Timeout:    timeout,
	})
	if err == nil {
		return imagefile.DecodeBytes(data)
	}
	obs.From(ctx).Debug("element screenshot failed, cropping page screenshot",
		"selector", selector, "error", logutil.TruncateForLog(err.Error(), 200))

	box, err := loc.BoundingBox()
	if err != nil || box == nil {
		return nil, errs.Wrap(errs.NotFound, fmt.Sprintf("element %q has no bounding box", selector), err)
	}
	full, err := p.Shoot(ctx, true)
	if err != nil {
		return nil, err
	}
	return CropToElement(full, image.Rect(
		int(math.Round(box.X)), int(math.Round(box.Y)),
		int(math.Round(box.X+box.Width)), int(math.Round(box.Y+box.Height)),
	))
}

// Shooter returns a function taking a screenshot of selector, or of the
// viewport when selector is empty. It fits verify.Shooter.
func (p *Page) Shooter(selector string, fullPage bool) func(ctx context.Context) (image.Image, error) {
	return func(ctx context.Context) (image.Image, error) {
		if selector == "" {
			return p.Shoot(ctx, fullPage)
		}
		return p.ShootElement(ctx, selector)
	}
}

// CropToElement cuts the element box out of a full page screenshot. The
// element's top-left corner must lie inside the screenshot; the parts of the
// element past the right or bottom edge are dropped.
func CropToElement(full image.Image, box image.Rectangle) (image.Image, error) {
	b := full.Bounds()
	if box.Min.X < 0 || box.Min.X >= b.Dx() {
		return nil, errs.New(errs.FailedPrecondition,
			fmt.Sprintf("element x is outside the screenshot (x: %d, y: %d)", box.Min.X, box.Min.Y))
	}
	if box.Min.Y < 0 || box.Min.Y >= b.Dy() {
		return nil, errs.New(errs.FailedPrecondition,
			fmt.Sprintf("element y is outside the screenshot (x: %d, y: %d)", box.Min.X, box.Min.Y))
	}
	r := box.Add(b.Min).Intersect(b)
	if r.Empty() {
		return nil, errs.New(errs.FailedPrecondition, "element has no visible area")
	}
	sub, ok := full.(interface {
		SubImage(image.Rectangle) image.Image
	})
	if !ok {
		return nil, errs.New(errs.Internal, fmt.Sprintf("cannot crop %T", full))
	}
	return sub.SubImage(r), nil
}

func timeoutMS(ctx context.Context) float64 {
	d := DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		d = min(d, time.Until(deadline))
	}
	return float64(max(d, time.Millisecond).Milliseconds())
}
