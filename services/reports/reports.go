package reports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"qaflow/pkg/archive"
	"qaflow/pkg/render"
	"qaflow/pkg/report"
	"qaflow/pkg/telemetry"
	"qaflow/pkg/timeline"
	"qaflow/services/executions"
)

// ErrNoResults is returned when a session has no stored output or no archive
// to build a report from.
var ErrNoResults = errors.New("no test results for session")

// Fetcher retrieves the screenshots of an artifact archive.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (archive.Assets, error)
}

// Presigner issues fresh download URLs for stored archives.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Uploader stores generated reports.
type Uploader interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Options configures a Service. Store, Fetcher and Renderer are required.
type Options struct {
	Store     executions.Store
	Fetcher   Fetcher
	Renderer  *report.Renderer
	Templates *render.Engine
	Extractor *timeline.Extractor

	// Presigner, when set, replaces stored signed URLs for records that
	// carry an artifact key.
	Presigner  Presigner
	PresignTTL time.Duration

	// Uploader, when set, receives every generated report.
	Uploader Uploader

	Title        string
	FetchTimeout time.Duration
	Metrics      *telemetry.Metrics
	Logger       zerolog.Logger
	Now          func() time.Time
}

// Report is a generated document and where it came from.
type Report struct {
	SessionID string
	Filename  string
	Document  *report.Document
	Timeline  timeline.Timeline
	Assets    int
	ObjectKey string
}

// Service generates reports.
type Service struct {
	opts Options
}

// New validates opts and returns a Service.
func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.Renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if opts.Extractor == nil {
		opts.Extractor = timeline.New()
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = archive.DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{opts: opts}, nil
}

// Filename is the attachment name used for a session's report.
func Filename(sessionID string) string {
	return fmt.Sprintf("report-%s.pdf", sessionID)
}

// Generate builds the report for sessionID. Archive errors are returned
// wrapped so callers can match archive.ErrExpired and friends.
func (s *Service) Generate(ctx context.Context, sessionID string) (*Report, error) {
	start := time.Now()
	log := s.opts.Logger.With().Str("session_id", sessionID).Logger()

	rec, err := s.opts.Store.Record(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if rec == nil || strings.TrimSpace(rec.Stdout) == "" {
		return nil, fmt.Errorf("%w %s", ErrNoResults, sessionID)
	}

	url := s.archiveURL(ctx, log, rec)
	if url == "" {
		return nil, fmt.Errorf("%w %s: no archive URL", ErrNoResults, sessionID)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	assets, err := s.opts.Fetcher.Fetch(fetchCtx, url)
	cancel()
	s.opts.Metrics.ArchiveFetch(fetchResult(err))
	if err != nil {
		log.Warn().Err(err).Msg("fetch artifact archive")
		return nil, err
	}

	tl := s.opts.Extractor.Extract(rec.Stdout)
	header, err := s.header(rec, tl, len(assets))
	if err != nil {
		return nil, err
	}

	doc, err := s.opts.Renderer.Render(tl, assets, report.Options{Title: s.opts.Title, Header: header})
	if err != nil {
		return nil, err
	}

	out := &Report{
		SessionID: sessionID,
		Filename:  Filename(sessionID),
		Document:  doc,
		Timeline:  tl,
		Assets:    len(assets),
	}
	s.upload(ctx, log, out)

	s.opts.Metrics.ObserveRender(time.Since(start))
	log.Info().
		Int("pages", len(doc.Pages)).
		Int("screenshots", len(assets)).
		Int("bytes", len(doc.Bytes)).
		Msg("report generated")
	return out, nil
}

// archiveURL prefers a freshly presigned URL over the stored one.
func (s *Service) archiveURL(ctx context.Context, log zerolog.Logger, rec *executions.Record) string {
	if s.opts.Presigner == nil || rec.ArtifactKey == "" {
		return rec.SignedURL
	}
	fresh, err := s.opts.Presigner.PresignGet(ctx, rec.ArtifactKey, s.opts.PresignTTL)
	if err != nil {
		log.Warn().Err(err).Str("key", rec.ArtifactKey).Msg("presign archive, using stored URL")
		return rec.SignedURL
	}
	return fresh
}

func (s *Service) header(rec *executions.Record, tl timeline.Timeline, assets int) ([]string, error) {
	if s.opts.Templates == nil {
		return nil, nil
	}
	logs, shots := tl.Counts()
	lines, err := s.opts.Templates.Lines(render.ReportHeaderTemplate, render.ReportHeader{
		SessionID:    rec.SessionID,
		GeneratedAt:  s.opts.Now(),
		ResultStatus: rec.ResultStatus,
		ReturnCode:   rec.ReturnCode,
		Logs:         logs,
		Screenshots:  shots,
		Assets:       assets,
	})
	if err != nil {
		return nil, fmt.Errorf("render report header: %w", err)
	}
	return lines, nil
}

// upload stores the report. Failures are logged and leave ObjectKey empty.
func (s *Service) upload(ctx context.Context, log zerolog.Logger, r *Report) {
	if s.opts.Uploader == nil {
		return
	}
	key := fmt.Sprintf("reports/%s/%s.pdf", r.SessionID, uuid.NewString())
	digest, err := s.opts.Uploader.PutObject(ctx, key, r.Document.Bytes, "application/pdf")
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("upload report")
		return
	}
	r.ObjectKey = key
	log.Debug().Str("key", key).Str("sha256", digest).Msg("report uploaded")
}

func fetchResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, archive.ErrExpired):
		return "expired"
	case errors.Is(err, archive.ErrExtractionFailed):
		return "extraction_failed"
	default:
		return "fetch_failed"
	}
}
