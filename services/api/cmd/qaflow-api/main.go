package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"qaflow/pkg/archive"
	"qaflow/pkg/bus"
	"qaflow/pkg/config"
	"qaflow/pkg/db"
	"qaflow/pkg/render"
	"qaflow/pkg/report"
	gos3 "qaflow/pkg/s3"
	"qaflow/pkg/telemetry"
	"qaflow/pkg/timeline"
	"qaflow/services/api"
	"qaflow/services/executions"
	"qaflow/services/reports"
)

const serviceName = "qaflow-api"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	boot := zerolog.New(os.Stderr).With().Timestamp().Str("service", serviceName).Logger()

	cfg, err := config.Load(ctx)
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}

	logger, err := telemetry.NewLogger(os.Stderr, serviceName, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		boot.Fatal().Err(err).Msg("init logger")
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("qaflow-api")
	}
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	cleanup, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cleanup(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown otel")
		}
	}()

	pool, err := db.Open(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}

	orm, err := db.OpenORM(ctx, pool)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.CloseORM(orm); err != nil {
			log.Error().Err(err).Msg("close orm")
		}
	}()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	store, err := executions.NewPGStore(pool)
	if err != nil {
		return err
	}
	results, err := executions.NewGormResults(orm)
	if err != nil {
		return err
	}
	scripts, err := api.NewGormScripts(orm)
	if err != nil {
		return err
	}

	ready := []api.Pinger{db.Pinger{Pool: pool}}

	var publisher executions.Publisher
	if cfg.NATSURL != "" {
		b, err := bus.New(cfg.NATSURL)
		if err != nil {
			return err
		}
		defer b.Close()
		if err := b.EnsureStream(); err != nil {
			return err
		}
		publisher = b
		ready = append(ready, b)

		ingestor, err := executions.NewIngestor(b, results, log)
		if err != nil {
			return err
		}
		if err := ingestor.Start(ctx); err != nil {
			return err
		}
		defer ingestor.Close()
	} else {
		log.Warn().Msg("NATS_URL not set, lifecycle events disabled and results accepted over HTTP only")
	}

	var presigner *gos3.Client
	if cfg.S3.Enabled() {
		presigner, err = gos3.NewClient(ctx, cfg.S3)
		if err != nil {
			return err
		}
	}

	extractor := timeline.New()
	if cfg.TimelineRulesFile != "" {
		rules, err := timeline.LoadRules(cfg.TimelineRulesFile)
		if err != nil {
			return err
		}
		extractor = timeline.New(rules...)
	}

	var trigger executions.Trigger = executions.NopTrigger{}
	if cfg.Executor.URL != "" {
		trigger, err = executions.NewHTTPTrigger(cfg.Executor.URL, &http.Client{
			Timeout:   cfg.Executor.Timeout,
			Transport: telemetry.Transport(http.DefaultTransport),
		})
		if err != nil {
			return err
		}
	}

	poller, err := executions.NewPoller(executions.PollerOptions{
		Store:     store,
		Trigger:   trigger,
		Extractor: extractor,
		Publisher: publisher,
		Metrics:   metrics,
		Interval:  cfg.Poll.Interval,
		Timeout:   cfg.Poll.Timeout,
		Logger:    log.With().Str("component", "poller").Logger(),
	})
	if err != nil {
		return err
	}

	templates, err := render.New()
	if err != nil {
		return err
	}
	layout := report.DefaultLayout()
	layout.WrapWidth = cfg.Report.WrapWidth

	reportOpts := reports.Options{
		Store: store,
		Fetcher: archive.NewFetcher(archive.Options{
			Client: &http.Client{
				Timeout:   cfg.Archive.Timeout,
				Transport: telemetry.Transport(http.DefaultTransport),
			},
			TempDir:       cfg.Archive.TempDir,
			MaxBytes:      cfg.Archive.MaxBytes,
			MaxEntryBytes: cfg.Archive.MaxEntryBytes,
			Logger:        log.With().Str("component", "archive").Logger(),
		}),
		Renderer:     report.New(layout, log.With().Str("component", "report").Logger()),
		Templates:    templates,
		Extractor:    extractor,
		Title:        cfg.Report.Title,
		FetchTimeout: cfg.Archive.Timeout,
		Metrics:      metrics,
		Logger:       log.With().Str("component", "reports").Logger(),
	}
	deps := api.Deps{
		Poller:  poller,
		Scripts: scripts,
		Results: results,
		Ready:   ready,
		Metrics: promhttp.Handler(),
	}
	if presigner != nil {
		reportOpts.Presigner = presigner
		reportOpts.PresignTTL = cfg.S3.PresignTTL
		if cfg.Report.Upload {
			reportOpts.Uploader = presigner
		}
		deps.Presigner = presigner
	}
	reportSvc, err := reports.New(reportOpts)
	if err != nil {
		return err
	}
	deps.Reports = reportSvc

	a, err := api.New(deps, api.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimit,
		PresignTTL:     cfg.S3.PresignTTL,
		Middleware:     telemetry.Middleware(serviceName, log),
	}, log)
	if err != nil {
		return err
	}
	handler, err := a.Routes()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Msg("starting qaflow-api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown server")
		}
		return nil
	})
	return g.Wait()
}
