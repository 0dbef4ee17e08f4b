// tbview shows a reference, a screenshot and the boxed differences side by
// side.
//
// Usage:
//
//	tbview [flags] reference.png screenshot.png
//	tbview target/error-screenshots/login.json
package main

import (
	"fmt"
	"image"
	"os"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/spf13/pflag"

	"github.com/vaadin/testbench-sub002/internal/config"
	"github.com/vaadin/testbench-sub002/internal/errs"
	"github.com/vaadin/testbench-sub002/internal/obs"
	"github.com/vaadin/testbench-sub002/internal/screenshot"
)

func main() {
	cfg := config.Load()
	fs := pflag.NewFlagSet("tbview", pflag.ExitOnError)
	cfg.BindFlags(fs)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tbview [flags] REFERENCE SCREENSHOT\n       tbview REPORT.json\n\nFlags:\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(errs.ExitCode(errs.Wrap(errs.InvalidArgument, "invalid configuration", err)))
	}
	obs.SetLevel(cfg.LogLevel)

	v, err := load(fs.Args(), screenshot.Options{Tolerance: cfg.Tolerance, CursorDetection: cfg.CursorDetection}, cfg.Highlight)
	if err != nil {
		if errs.CodeOf(err) == errs.InvalidArgument && fs.NArg() == 0 {
			fs.Usage()
		}
		fmt.Fprintf(os.Stderr, "tbview: %v\n", err)
		os.Exit(errs.ExitCode(err))
	}

	a := app.New()
	w := a.NewWindow("tbview: " + v.Title)
	w.Resize(fyne.NewSize(1280, 800))

	panes := container.NewHBox(
		pane("Reference", v.Reference),
		pane("Screenshot", v.Screenshot),
		pane("Differences", v.Diff),
	)
	status := widget.NewLabel(v.Status())
	w.SetContent(container.NewBorder(nil, status, nil, nil, container.NewScroll(panes)))
	w.ShowAndRun()
}

func pane(title string, img image.Image) fyne.CanvasObject {
	label := widget.NewLabel(title)
	if img == nil {
		return container.NewBorder(label, nil, nil, nil, widget.NewLabel("(none)"))
	}
	ci := canvas.NewImageFromImage(img)
	ci.FillMode = canvas.ImageFillOriginal
	return container.NewBorder(label, nil, nil, nil, ci)
}
