package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qaflow/pkg/report"
	"qaflow/pkg/timeline"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func zipWithScreenshot(t *testing.T, name string) []byte {
	t.Helper()
	var img bytes.Buffer
	require.NoError(t, png.Encode(&img, image.NewRGBA(image.Rect(0, 0, 40, 30))))

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("screenshots/" + name)
	require.NoError(t, err)
	_, err = w.Write(img.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestTimeline(t *testing.T) {
	dir := t.TempDir()
	stdout := writeFile(t, dir, "stdout.txt", []byte("open page\n[SCREENSHOT] home.png\n\nclick"))

	var out bytes.Buffer
	tl, err := Timeline(TimelineConfig{StdoutFile: stdout, Out: &out})
	require.NoError(t, err)

	want := timeline.Timeline{
		{Kind: timeline.KindLog, Content: "open page"},
		{Kind: timeline.KindScreenshot, Content: "home.png"},
		{Kind: timeline.KindLog, Content: "click"},
	}
	assert.Equal(t, want, tl)

	var decoded timeline.Timeline
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, want, decoded)
}

func TestTimeline_Rules(t *testing.T) {
	dir := t.TempDir()
	stdout := writeFile(t, dir, "stdout.txt", []byte("Screenshot saved: a.png\n[SCREENSHOT] b.png"))
	rules := writeFile(t, dir, "rules.yaml", []byte(
		"include_marker: false\nrules:\n  - name: saved\n    pattern: '^Screenshot saved: (?P<file>\\S+)$'\n"))

	tl, err := Timeline(TimelineConfig{StdoutFile: stdout, RulesFile: rules})
	require.NoError(t, err)
	require.Len(t, tl, 2)
	assert.Equal(t, timeline.Entry{Kind: timeline.KindScreenshot, Content: "a.png"}, tl[0])
	assert.Equal(t, timeline.KindLog, tl[1].Kind)
}

func TestTimeline_Errors(t *testing.T) {
	_, err := Timeline(TimelineConfig{})
	assert.Error(t, err)
	_, err = Timeline(TimelineConfig{StdoutFile: filepath.Join(t.TempDir(), "missing.txt")})
	assert.Error(t, err)
}

func TestRender_LocalArchive(t *testing.T) {
	dir := t.TempDir()
	stdout := writeFile(t, dir, "stdout.txt", []byte("login\n[SCREENSHOT] login.png\n[SCREENSHOT] missing.png"))
	zipPath := writeFile(t, dir, "artifacts.zip", zipWithScreenshot(t, "login.png"))
	output := filepath.Join(dir, "report.pdf")

	var msg bytes.Buffer
	doc, err := Render(context.Background(), RenderConfig{
		StdoutFile: stdout,
		Archive:    zipPath,
		Output:     output,
		SessionID:  "chat-1",
		Stdout:     &msg,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	written, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, doc.Bytes, written)
	assert.True(t, bytes.HasPrefix(written, []byte("%PDF-")))
	assert.Contains(t, msg.String(), "1 screenshots")

	var kinds []report.BlockKind
	for _, p := range doc.Pages {
		for _, b := range p.Blocks {
			kinds = append(kinds, b.Kind)
		}
	}
	assert.Equal(t, []report.BlockKind{report.BlockHeader, report.BlockLog, report.BlockScreenshot, report.BlockNotFound}, kinds)
}

func TestRender_RemoteArchive(t *testing.T) {
	archiveBytes := zipWithScreenshot(t, "a.png")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archiveBytes)
	}))
	defer srv.Close()

	dir := t.TempDir()
	stdout := writeFile(t, dir, "stdout.txt", []byte("[SCREENSHOT] a.png"))
	doc, err := Render(context.Background(), RenderConfig{
		StdoutFile: stdout,
		Archive:    srv.URL + "/artifacts.zip",
		Output:     filepath.Join(dir, "out.pdf"),
		Client:     srv.Client(),
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Pages)
}

func TestRender_Validation(t *testing.T) {
	_, err := Render(context.Background(), RenderConfig{Archive: "a.zip"})
	assert.Error(t, err)
	_, err = Render(context.Background(), RenderConfig{Output: "out.pdf"})
	assert.Error(t, err)

	dir := t.TempDir()
	stdout := writeFile(t, dir, "stdout.txt", []byte("x"))
	_, err = Render(context.Background(), RenderConfig{
		StdoutFile: stdout,
		Archive:    filepath.Join(dir, "nope.zip"),
		Output:     filepath.Join(dir, "out.pdf"),
	})
	assert.Error(t, err)
}
