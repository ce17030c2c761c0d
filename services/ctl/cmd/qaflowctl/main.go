package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"qaflow/pkg/config"
	"qaflow/pkg/db"
	gos3 "qaflow/pkg/s3"
	"qaflow/pkg/telemetry"
	"qaflow/services/ctl"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "qaflowctl",
		Short:         "Utility for qaflow timelines, reports and storage",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newTimelineCommand())
	cmd.AddCommand(newRenderCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newPresignCommand())
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newTimelineCommand() *cobra.Command {
	var stdoutFile, rulesFile string

	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Print the timeline extracted from a captured stdout file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctl.Timeline(ctl.TimelineConfig{
				StdoutFile: stdoutFile,
				RulesFile:  rulesFile,
				Out:        cmd.OutOrStdout(),
			})
			return err
		},
	}

	cmd.Flags().StringVar(&stdoutFile, "stdout", "", "File holding the test runner's stdout")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "Optional YAML screenshot rule set")
	_ = cmd.MarkFlagRequired("stdout")
	return cmd
}

func newRenderCommand() *cobra.Command {
	var (
		stdoutFile string
		rulesFile  string
		archiveSrc string
		output     string
		title      string
		sessionID  string
		wrapWidth  int
		timeout    time.Duration
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Build a PDF report from a stdout capture and an artifact archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if verbose {
				level = "debug"
			}
			logger, err := telemetry.NewLogger(cmd.ErrOrStderr(), "qaflowctl", level, "console")
			if err != nil {
				return err
			}
			_, err = ctl.Render(commandContext(cmd), ctl.RenderConfig{
				StdoutFile: stdoutFile,
				RulesFile:  rulesFile,
				Archive:    archiveSrc,
				Output:     output,
				Title:      title,
				SessionID:  sessionID,
				WrapWidth:  wrapWidth,
				Client:     &http.Client{Timeout: timeout},
				Stdout:     cmd.OutOrStdout(),
				Logger:     logger,
			})
			return err
		},
	}

	cmd.Flags().StringVar(&stdoutFile, "stdout", "", "File holding the test runner's stdout")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "Optional YAML screenshot rule set")
	cmd.Flags().StringVar(&archiveSrc, "archive", "", "Artifact archive path or URL")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination PDF file")
	cmd.Flags().StringVar(&title, "title", "", "Report title")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id shown in the report header")
	cmd.Flags().IntVar(&wrapWidth, "wrap", 0, "Maximum characters per log line")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Archive download timeout")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log archive and layout details")
	_ = cmd.MarkFlagRequired("stdout")
	_ = cmd.MarkFlagRequired("archive")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations using DB_DSN",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}
			pool, err := db.Open(ctx, cfg.DBDSN)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := db.Migrate(ctx, pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newPresignCommand() *cobra.Command {
	var (
		key    string
		ttl    time.Duration
		upload bool
	)

	cmd := &cobra.Command{
		Use:   "presign",
		Short: "Print a presigned URL for an object in the S3 bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, err := config.Load(ctx)
			if err != nil {
				return err
			}
			client, err := gos3.NewClient(ctx, cfg.S3)
			if err != nil {
				return fmt.Errorf("s3 client: %w", err)
			}
			presign := client.PresignGet
			if upload {
				presign = client.PresignPut
			}
			url, err := presign(ctx, key, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "Object key")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "URL lifetime (defaults to S3_PRESIGN_TTL)")
	cmd.Flags().BoolVar(&upload, "put", false, "Presign an upload instead of a download")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
