package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/browndog-tests/internal/adapter/junit"
	"github.com/fairyhunter13/browndog-tests/internal/adapter/observability"
	"github.com/fairyhunter13/browndog-tests/internal/app"
	"github.com/fairyhunter13/browndog-tests/internal/config"
	"github.com/fairyhunter13/browndog-tests/internal/domain"
	obsctx "github.com/fairyhunter13/browndog-tests/internal/observability"
	"github.com/fairyhunter13/browndog-tests/internal/usecase"
)

type reportFlags struct {
	junitXML     string
	console      bool
	mailServer   string
	server       string
	dbURL        string
	kafkaBrokers []string
	redisURL     string
	watchers     string
	timeout      time.Duration
	metricsFile  string
}

// newRootCmd builds the command around cfg, the loaded environment; flags
// default to it and override it.
func newRootCmd(cfg config.Config) *cobra.Command {
	var f reportFlags
	cmd := &cobra.Command{
		Use:          "report",
		Short:        "Report a Brown Dog test run",
		Long:         "report reads the JUnit XML of a test run, prints it and hands it to every configured sink.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd, cfg, f)
		},
	}
	cmd.SetVersionTemplate(`{{printf "report version %s\n" .Version}}`)

	fl := cmd.Flags()
	fl.StringVar(&f.junitXML, "junitxml", cfg.JUnitXML, "JUnit XML file to report")
	fl.BoolVar(&f.console, "console", false, "print the report to stdout")
	fl.StringVar(&f.mailServer, "mailserver", cfg.MailServer, "SMTP server used to mail the watchers")
	fl.StringVar(&f.server, "server", cfg.ReportServer, "server the run was executed against (DEV or PROD)")
	fl.StringVar(&f.dbURL, "db-url", cfg.DBURL, "Postgres URL of the run store")
	fl.StringSliceVar(&f.kafkaBrokers, "kafka-brokers", cfg.KafkaBrokers, "brokers of the run topic")
	fl.StringVar(&f.redisURL, "redis-url", cfg.RedisURL, "Redis URL of the duplicate guard")
	fl.StringVar(&f.watchers, "watchers", cfg.WatchersFile, "YAML file with the report recipients")
	fl.DurationVar(&f.timeout, "timeout", 2*time.Minute, "deadline for delivering the report")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write a Prometheus text snapshot to this path on exit")
	return cmd
}

func (f reportFlags) apply(cfg config.Config) (config.Config, error) {
	server := strings.ToUpper(strings.TrimSpace(f.server))
	if server != "DEV" && server != "PROD" {
		return cfg, fmt.Errorf("%w: --server must be DEV or PROD, got %q", domain.ErrInvalidArgument, f.server)
	}
	cfg.ReportServer = server
	cfg.JUnitXML = f.junitXML
	cfg.MailServer = f.mailServer
	cfg.DBURL = f.dbURL
	cfg.KafkaBrokers = f.kafkaBrokers
	cfg.RedisURL = f.redisURL
	cfg.WatchersFile = f.watchers
	return cfg, nil
}

func runReport(cmd *cobra.Command, cfg config.Config, f reportFlags) (err error) {
	cfg, err = f.apply(cfg)
	if err != nil {
		return err
	}
	logger := observability.SetupLoggerTo(cfg, cmd.ErrOrStderr())
	observability.InitMetrics()
	if f.metricsFile != "" {
		defer func() {
			if merr := observability.WriteMetricsFile(f.metricsFile); merr != nil && err == nil {
				err = merr
			}
		}()
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
	defer cancel()
	ctx = obsctx.ContextWithLogger(ctx, logger)

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	run, raw, err := junit.ParseFile(cfg.JUnitXML, junit.Meta{Host: host, Server: cfg.ReportServer})
	if err != nil {
		return err
	}
	if f.console {
		usecase.RenderConsole(cmd.OutOrStdout(), run)
	}

	svc, scope, err := app.BuildReportService(ctx, cfg, host)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := scope.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("close report sinks", slog.Any("error", cerr))
		}
	}()

	res, err := svc.Dispatch(ctx, run, usecase.Fingerprint(raw))
	if err != nil {
		return err
	}
	logger.Info("report dispatched",
		slog.String("run_id", res.RunID),
		slog.Bool("duplicate", res.Duplicate),
		slog.Int("recipients", len(res.Recipients)),
		slog.Bool("stored", res.Stored),
		slog.Bool("published", res.Published))
	return nil
}
