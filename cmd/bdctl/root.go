package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/fairyhunter13/browndog-tests/internal/adapter/browndog"
	"github.com/fairyhunter13/browndog-tests/internal/adapter/observability"
	"github.com/fairyhunter13/browndog-tests/internal/config"
	obsctx "github.com/fairyhunter13/browndog-tests/internal/observability"
	"github.com/fairyhunter13/browndog-tests/internal/usecase"
)

type globalFlags struct {
	host        string
	stats       bool
	metricsFile string
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	cmd := &cobra.Command{
		Use:          "bdctl",
		Short:        "Drive the Brown Dog API by hand",
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate(`{{printf "bdctl version %s\n" .Version}}`)
	cmd.PersistentFlags().StringVar(&g.host, "host", "", "Brown Dog API root (defaults to BD_HOST)")
	cmd.PersistentFlags().BoolVar(&g.stats, "stats", false, "print per-operation call statistics on exit")
	cmd.PersistentFlags().StringVar(&g.metricsFile, "metrics-file", "", "write a Prometheus text snapshot to this path on exit")

	cmd.AddCommand(newConvertCmd(&g), newExtractCmd(&g), newGraphCmd(&g))
	return cmd
}

// session carries what every subcommand needs once a token is issued.
type session struct {
	cfg    config.Config
	client *browndog.Client
	token  string
}

// withSession loads the configuration, opens a key and token, runs fn and
// deletes the credential again whatever fn returned.
func withSession(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, s session) error) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if g.host != "" {
		cfg.Host = strings.TrimRight(g.host, "/")
	}
	logger := observability.SetupLoggerTo(cfg, cmd.ErrOrStderr())
	ctx := obsctx.ContextWithLogger(cmd.Context(), logger)
	observability.InitMetrics()

	client := browndog.NewFromConfig(cfg)
	sess := usecase.NewSession(client)
	if _, err := sess.Open(ctx); err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.RequestTimeout*2)
		defer cancel()
		if cerr := sess.Close(cctx); cerr != nil {
			logger.Warn("close session", slog.Any("error", cerr))
			if err == nil {
				err = cerr
			}
		}
		if g.stats {
			renderStats(cmd.ErrOrStderr(), client)
		}
		if g.metricsFile != "" {
			if merr := observability.WriteMetricsFile(g.metricsFile); merr != nil && err == nil {
				err = merr
			}
		}
	}()
	return fn(ctx, session{cfg: cfg, client: client, token: sess.Token()})
}

func renderStats(w io.Writer, c *browndog.Client) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"OPERATION", "TOTAL", "OK", "FAIL", "TIMEOUT", "AVG"})
	for _, st := range c.Stats() {
		t.AppendRow(table.Row{st.Operation, st.Total, st.Success, st.Failure, st.Timeout, st.AvgLatency.Round(time.Millisecond)})
	}
	t.Render()
}

func printKV(w io.Writer, rows [][2]any) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	for _, r := range rows {
		t.AppendRow(table.Row{r[0], r[1]})
	}
	t.Render()
}
