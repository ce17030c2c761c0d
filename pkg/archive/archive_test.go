package archive

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string][]byte, order ...string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(files[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func serve(t *testing.T, status int, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(t *testing.T) (*Fetcher, string) {
	t.Helper()
	dir := t.TempDir()
	return NewFetcher(Options{TempDir: dir, Logger: zerolog.Nop()}), dir
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch files left behind")
}

func TestFetch_ExtractsOnlyScreenshots(t *testing.T) {
	files := map[string][]byte{
		"screenshots/a.PNG":     []byte("png-a"),
		"screenshots/b.jpg":     []byte("jpg-b"),
		"notes/readme.txt":      []byte("hello"),
		"screenshots/":          nil,
		"videos/run.webm":       []byte("webm"),
		"screenshots/notes.txt": []byte("nope"),
	}
	data := buildZip(t, files, "screenshots/", "screenshots/a.PNG", "notes/readme.txt", "screenshots/b.jpg", "videos/run.webm", "screenshots/notes.txt")
	srv := serve(t, http.StatusOK, data)

	f, dir := newTestFetcher(t)
	assets, err := f.Fetch(context.Background(), srv.URL+"/bundle.zip?X-Amz-Signature=abc")
	require.NoError(t, err)

	require.Len(t, assets, 2)
	assert.Equal(t, []string{"a.PNG", "b.jpg"}, assets.Names())
	assert.Equal(t, []byte("png-a"), assets[0].Content)
	assert.Equal(t, FormatPNG, assets[0].Format)
	assert.Equal(t, FormatJPG, assets[1].Format)
	assertEmptyDir(t, dir)
}

func TestFetch_NestedAndUppercasePaths(t *testing.T) {
	files := map[string][]byte{
		"run-42/Screenshots/step_1.jpeg": []byte("one"),
		"myscreenshots/step_2.png":       []byte("two"),
	}
	data := buildZip(t, files, "run-42/Screenshots/step_1.jpeg", "myscreenshots/step_2.png")
	srv := serve(t, http.StatusOK, data)

	f, _ := newTestFetcher(t)
	assets, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "step_1.jpeg", assets[0].Filename)
	assert.Equal(t, FormatJPEG, assets[0].Format)
}

func TestFetch_ExpiredURL(t *testing.T) {
	srv := serve(t, http.StatusForbidden, []byte("<Error>AccessDenied</Error>"))

	f, dir := newTestFetcher(t)
	_, err := f.Fetch(context.Background(), srv.URL+"/bundle.zip?X-Amz-Signature=secret")
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrExpired))
	assert.True(t, errors.Is(err, ErrFetchFailed))
	assert.False(t, errors.Is(err, ErrExtractionFailed))
	assert.Contains(t, err.Error(), "expired")
	assert.NotContains(t, err.Error(), "secret")

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusForbidden, fetchErr.StatusCode)
	assertEmptyDir(t, dir)
}

func TestFetch_OtherHTTPFailure(t *testing.T) {
	srv := serve(t, http.StatusNotFound, nil)

	f, _ := newTestFetcher(t)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailed))
	assert.False(t, errors.Is(err, ErrExpired))
	assert.Contains(t, err.Error(), "404")
}

func TestFetch_InvalidURL(t *testing.T) {
	f, _ := newTestFetcher(t)
	for _, raw := range []string{"", "not a url", "ftp://example.com/a.zip", "/relative.zip"} {
		_, err := f.Fetch(context.Background(), raw)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, ErrFetchFailed), raw)
	}
}

func TestFetch_TooLarge(t *testing.T) {
	srv := serve(t, http.StatusOK, bytes.Repeat([]byte("x"), 2048))

	f := NewFetcher(Options{TempDir: t.TempDir(), MaxBytes: 1024, Logger: zerolog.Nop()})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailed))
}

func TestFetch_MalformedZipCleansUp(t *testing.T) {
	srv := serve(t, http.StatusOK, []byte("this is not a zip archive"))

	f, dir := newTestFetcher(t)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExtractionFailed))
	assert.False(t, errors.Is(err, ErrFetchFailed))
	assertEmptyDir(t, dir)
}

func TestExtract_ScratchWriteFailure(t *testing.T) {
	f := NewFetcher(Options{TempDir: "/nonexistent/qaflow/scratch", Logger: zerolog.Nop()})
	_, err := f.Extract([]byte("PK"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExtractionFailed))
}

func TestExtract_EntryTooLarge(t *testing.T) {
	data := buildZip(t, map[string][]byte{"screenshots/big.png": bytes.Repeat([]byte("a"), 64)}, "screenshots/big.png")

	dir := t.TempDir()
	f := NewFetcher(Options{TempDir: dir, MaxEntryBytes: 16, Logger: zerolog.Nop()})
	_, err := f.Extract(data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExtractionFailed))
	assertEmptyDir(t, dir)
}

func TestFetch_ContextCancelled(t *testing.T) {
	srv := serve(t, http.StatusOK, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f, _ := newTestFetcher(t)
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(err, ErrFetchFailed))
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		name string
		want Format
		ok   bool
	}{
		{"a.png", FormatPNG, true},
		{"A.PNG", FormatPNG, true},
		{"b.JpG", FormatJPG, true},
		{"c.jpeg", FormatJPEG, true},
		{"d.gif", "", false},
		{"noext", "", false},
	}
	for _, tt := range tests {
		got, ok := FormatOf(tt.name)
		assert.Equal(t, tt.want, got, tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
	}
}

func TestAssets_ByName(t *testing.T) {
	assets := Assets{
		{Filename: "a.png", Content: []byte("1")},
		{Filename: "b.png", Content: []byte("2")},
		{Filename: "a.png", Content: []byte("3")},
	}
	byName := assets.ByName()
	assert.Len(t, byName, 2)
	assert.Equal(t, []byte("3"), byName["a.png"].Content)
}
