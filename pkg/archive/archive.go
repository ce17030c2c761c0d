package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout bounds a single archive download.
	DefaultTimeout = 2 * time.Minute
	// DefaultMaxBytes caps the buffered archive size.
	DefaultMaxBytes int64 = 256 << 20
	// DefaultMaxEntryBytes caps a single decompressed screenshot.
	DefaultMaxEntryBytes int64 = 32 << 20

	screenshotsDir = "screenshots/"
)

// Format is an image encoding inferred from a filename extension.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPG  Format = "jpg"
	FormatJPEG Format = "jpeg"
)

// FormatOf returns the image format for name, or false for non-image names.
func FormatOf(name string) (Format, bool) {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return FormatPNG, true
	case ".jpg":
		return FormatJPG, true
	case ".jpeg":
		return FormatJPEG, true
	default:
		return "", false
	}
}

// Asset is a screenshot extracted from an archive.
type Asset struct {
	Filename string
	Content  []byte
	Format   Format
}

// Assets preserves archive order.
type Assets []Asset

// Names returns the asset filenames in archive order.
func (a Assets) Names() []string {
	names := make([]string, 0, len(a))
	for _, asset := range a {
		names = append(names, asset.Filename)
	}
	return names
}

// ByName indexes assets by base filename. Later entries win on duplicates.
func (a Assets) ByName() map[string]Asset {
	out := make(map[string]Asset, len(a))
	for _, asset := range a {
		out[asset.Filename] = asset
	}
	return out
}

// Options configures a Fetcher.
type Options struct {
	Client        *http.Client
	TempDir       string
	MaxBytes      int64
	MaxEntryBytes int64
	Logger        zerolog.Logger
}

// Fetcher downloads ZIP bundles over HTTP(S).
type Fetcher struct {
	client        *http.Client
	tempDir       string
	maxBytes      int64
	maxEntryBytes int64
	log           zerolog.Logger
}

// NewFetcher applies defaults to opts and returns a Fetcher.
func NewFetcher(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.MaxEntryBytes <= 0 {
		opts.MaxEntryBytes = DefaultMaxEntryBytes
	}
	return &Fetcher{
		client:        client,
		tempDir:       opts.TempDir,
		maxBytes:      opts.MaxBytes,
		maxEntryBytes: opts.MaxEntryBytes,
		log:           opts.Logger,
	}
}

// Fetch downloads the archive at rawURL and returns the images stored under a
// screenshots/ directory.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Assets, error) {
	data, err := f.Download(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	f.log.Debug().Int("bytes", len(data)).Msg("archive downloaded")

	assets, err := f.Extract(data)
	if err != nil {
		return nil, err
	}
	f.log.Debug().Int("screenshots", len(assets)).Msg("archive extracted")
	return assets, nil
}

// Download issues a single GET for rawURL and buffers the body.
func (f *Fetcher) Download(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, &FetchError{URL: redact(rawURL), Message: "invalid URL", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{URL: redact(rawURL), Message: "failed to create request", Cause: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: redact(rawURL), Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{
			URL:        redact(rawURL),
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: redact(rawURL), Message: "failed to read response body", Cause: err}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &FetchError{URL: redact(rawURL), Message: fmt.Sprintf("archive exceeds %d bytes", f.maxBytes)}
	}
	return data, nil
}

// Extract writes data to a uniquely named scratch file, reads the screenshot
// entries from it and removes the file on every path.
func (f *Fetcher) Extract(data []byte) (Assets, error) {
	dir := f.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	scratch := filepath.Join(dir, fmt.Sprintf("archive_%s.zip", uuid.NewString()))

	if err := os.WriteFile(scratch, data, 0o600); err != nil {
		_ = os.Remove(scratch)
		return nil, &ExtractionError{Op: "write scratch file", Cause: err}
	}
	defer func() {
		if err := os.Remove(scratch); err != nil && !os.IsNotExist(err) {
			f.log.Warn().Err(err).Str("path", scratch).Msg("remove scratch archive")
		}
	}()

	reader, err := zip.OpenReader(scratch)
	if err != nil {
		return nil, &ExtractionError{Op: "open zip", Cause: err}
	}
	defer reader.Close()

	var assets Assets
	for _, file := range reader.File {
		if !isScreenshot(file) {
			continue
		}
		content, err := f.readEntry(file)
		if err != nil {
			return nil, &ExtractionError{Op: "read " + file.Name, Cause: err}
		}
		name := path.Base(strings.ReplaceAll(file.Name, "\\", "/"))
		format, _ := FormatOf(name)
		assets = append(assets, Asset{Filename: name, Content: content, Format: format})
	}
	return assets, nil
}

func (f *Fetcher) readEntry(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, f.maxEntryBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > f.maxEntryBytes {
		return nil, fmt.Errorf("entry exceeds %d bytes", f.maxEntryBytes)
	}
	return content, nil
}

func isScreenshot(file *zip.File) bool {
	if file.FileInfo().IsDir() {
		return false
	}
	name := strings.ToLower(strings.ReplaceAll(file.Name, "\\", "/"))
	if !strings.HasPrefix(name, screenshotsDir) && !strings.Contains(name, "/"+screenshotsDir) {
		return false
	}
	_, ok := FormatOf(name)
	return ok
}

// redact drops the query string so signatures never reach logs or errors.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
