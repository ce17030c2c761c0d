package ctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"qaflow/pkg/archive"
	"qaflow/pkg/render"
	"qaflow/pkg/report"
	"qaflow/pkg/timeline"
)

// TimelineConfig describes a timeline extraction run.
type TimelineConfig struct {
	StdoutFile string
	RulesFile  string
	Out        io.Writer
}

// Timeline reads a captured stdout file and writes its timeline as JSON.
func Timeline(cfg TimelineConfig) (timeline.Timeline, error) {
	if cfg.StdoutFile == "" {
		return nil, errors.New("stdout file is required")
	}
	extractor, err := extractorFor(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(cfg.StdoutFile)
	if err != nil {
		return nil, fmt.Errorf("read stdout: %w", err)
	}

	tl := extractor.Extract(string(raw))
	if cfg.Out != nil {
		enc := json.NewEncoder(cfg.Out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(tl); err != nil {
			return nil, err
		}
	}
	return tl, nil
}

// RenderConfig describes an offline report build.
type RenderConfig struct {
	StdoutFile string
	RulesFile  string
	// Archive is a local zip path or an http(s) URL.
	Archive   string
	Output    string
	Title     string
	SessionID string
	WrapWidth int
	Client    *http.Client
	Stdout    io.Writer
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Render builds a PDF report from a stdout capture and an artifact archive.
func Render(ctx context.Context, cfg RenderConfig) (*report.Document, error) {
	if cfg.Output == "" {
		return nil, errors.New("output path is required")
	}
	if cfg.Archive == "" {
		return nil, errors.New("archive is required")
	}
	tl, err := Timeline(TimelineConfig{StdoutFile: cfg.StdoutFile, RulesFile: cfg.RulesFile})
	if err != nil {
		return nil, err
	}

	fetcher := archive.NewFetcher(archive.Options{Client: cfg.Client, Logger: cfg.Logger})
	assets, err := loadAssets(ctx, fetcher, cfg.Archive)
	if err != nil {
		return nil, err
	}

	engine, err := render.New()
	if err != nil {
		return nil, err
	}
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}
	logs, shots := tl.Counts()
	header, err := engine.Lines(render.ReportHeaderTemplate, render.ReportHeader{
		SessionID:   cfg.SessionID,
		GeneratedAt: now(),
		Logs:        logs,
		Screenshots: shots,
		Assets:      len(assets),
	})
	if err != nil {
		return nil, err
	}

	layout := report.DefaultLayout()
	if cfg.WrapWidth > 0 {
		layout.WrapWidth = cfg.WrapWidth
	}
	title := cfg.Title
	if title == "" {
		title = "Test Execution Report"
	}
	doc, err := report.New(layout, cfg.Logger).Render(tl, assets, report.Options{Title: title, Header: header})
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(cfg.Output, doc.Bytes, 0o644); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	if cfg.Stdout != nil {
		fmt.Fprintf(cfg.Stdout, "wrote %s (%d pages, %d screenshots)\n", cfg.Output, len(doc.Pages), len(assets))
	}
	return doc, nil
}

func loadAssets(ctx context.Context, fetcher *archive.Fetcher, src string) (archive.Assets, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return fetcher.Fetch(ctx, src)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return fetcher.Extract(data)
}

func extractorFor(rulesFile string) (*timeline.Extractor, error) {
	if rulesFile == "" {
		return timeline.New(), nil
	}
	rules, err := timeline.LoadRules(rulesFile)
	if err != nil {
		return nil, err
	}
	return timeline.New(rules...), nil
}
