package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaadin/testbench-sub002/internal/errs"
	"github.com/vaadin/testbench-sub002/internal/refstore"
	"github.com/vaadin/testbench-sub002/internal/screenshot"
	"github.com/vaadin/testbench-sub002/internal/verify"
)

func TestParseArgs_Defaults(t *testing.T) {
	cfg, opts, err := parseArgs([]string{"--id", "login", "http://localhost:8080/"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/", opts.url)
	assert.Equal(t, "login", opts.id)
	assert.Equal(t, "chromium", opts.browser)
	assert.Equal(t, 1280, opts.width)
	assert.Equal(t, 800, opts.height)
	assert.Equal(t, 2*time.Minute, opts.timeout)
	assert.False(t, opts.update)
	assert.Equal(t, 2, cfg.MaxRetries)
}

func TestParseArgs_Overrides(t *testing.T) {
	cfg, opts, err := parseArgs([]string{
		"--id", "grid", "-s", "#grid", "-b", "firefox", "-u",
		"--retries", "4", "--cursor", "-t", "0.05", "--width", "800", "--height", "600",
		"https://example.test/",
	}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "#grid", opts.selector)
	assert.Equal(t, "firefox", opts.browser)
	assert.True(t, opts.update)
	assert.Equal(t, 800, opts.width)
	assert.Equal(t, 4, cfg.MaxRetries)
	assert.True(t, cfg.CursorDetection)
	assert.InDelta(t, 0.05, cfg.Tolerance, 1e-12)
}

func TestParseArgs_Errors(t *testing.T) {
	cases := map[string][]string{
		"no url":        {"--id", "x"},
		"no id":         {"http://localhost/"},
		"bad size":      {"--id", "x", "--width", "0", "http://localhost/"},
		"bad tolerance": {"--id", "x", "-t", "-1", "http://localhost/"},
		"unknown flag":  {"--id", "x", "--bogus", "http://localhost/"},
		"s3 no bucket":  {"--id", "x", "--s3", "http://localhost/"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("BUCKET_NAME", "")
			_, _, err := parseArgs(args, io.Discard)
			require.Error(t, err)
			assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
		})
	}
}

func TestRun_InvalidArgsExitCode(t *testing.T) {
	var stderr bytes.Buffer
	code := run(context.Background(), []string{"--id", "x"}, io.Discard, &stderr)
	assert.Equal(t, errs.ExitCode(errs.New(errs.InvalidArgument, "")), code)
	assert.Contains(t, stderr.String(), "Usage: tbshot")
}

func TestOpenStore(t *testing.T) {
	cfg, _, err := parseArgs([]string{"--id", "x", "--reference-dir", t.TempDir(), "http://localhost/"}, io.Discard)
	require.NoError(t, err)
	store, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &refstore.DirStore{}, store)

	cfg.UseS3 = true
	cfg.AWSBucketName = "refs"
	cfg.AWSAccessKeyID = "key"
	cfg.AWSSecretAccessKey = "secret"
	cfg.AWSEndpointS3 = "http://127.0.0.1:9"
	store, err = openStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &refstore.BucketStore{}, store)
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, verify.Result{
		Reference: "login_linux_chromium_120.png",
		Attempts:  2,
		RunID:     "run-1",
		Verdict: screenshot.Verdict{
			Regions: []screenshot.ErrorRegion{{X: 16, Y: 0, XBlocks: 2, YBlocks: 1}},
			Width:   64, Height: 32,
		},
	}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, false, got["matched"])
	assert.Equal(t, "login_linux_chromium_120.png", got["reference"])
	assert.EqualValues(t, 2, got["attempts"])
	assert.NotContains(t, got, "missing")
	verdict := got["verdict"].(map[string]any)
	assert.Len(t, verdict["regions"], 1)
}

func TestRun_ListReferences(t *testing.T) {
	dir := t.TempDir()
	store := refstore.NewDirStore(dir)
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for _, name := range []string{"login_linux_chromium_120.png", "login_1.png", "menu.png"} {
		require.NoError(t, store.Write(context.Background(), name, img))
	}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--list", "--id", "login", "--reference-dir", dir, "--log-level", "debug"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Equal(t, "login_1.png\nlogin_linux_chromium_120.png\n", stdout.String())
	assert.Contains(t, stderr.String(), "References: "+dir)
}

func TestParseArgs_ListTakesNoURL(t *testing.T) {
	_, opts, err := parseArgs([]string{"--list"}, io.Discard)
	require.NoError(t, err)
	assert.True(t, opts.list)

	_, _, err = parseArgs([]string{"--list", "http://localhost/"}, io.Discard)
	assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
}

func TestPrintResult_MissingReferenceHasEmptyRegions(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, verify.Result{Missing: true, Attempts: 1}))
	assert.Contains(t, buf.String(), `"regions": []`)
}
