package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"racecal/internal/config"
	appLog "racecal/internal/log"
	"racecal/internal/pipeline"
	"racecal/internal/runlog"
	"racecal/internal/web"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "racecal",
	Short:   "Race calendar feed from season spreadsheet exports",
	Long:    "racecal acquires per-season race spreadsheets, reconciles overlapping seasons into one deduplicated set, and publishes a stable iCalendar feed.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			appLog.SetLevel(appLog.LevelDebug)
		}
		if cmd.Name() == "version" {
			return nil
		}
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "racecal.yaml", "Path to config file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("racecal", version)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the acquisition and feed-generation pipeline once",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := signalContext()

		history, err := runlog.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer history.Close()

		p := pipeline.New(cfg, history)
		res, err := p.Run(ctx)
		if err != nil {
			return err
		}
		if res.Degraded {
			appLog.Warn("run succeeded with degradation",
				"missing_seasons", strings.Join(res.MissingSeasons, ","))
		}
		fmt.Printf("published %d events from %d source files (%d rows dropped)\n",
			res.PublishedCount, len(res.Sources), res.DroppedRows)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the feed and debug UI, refreshing on the configured schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := signalContext()

		history, err := runlog.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer history.Close()

		p := pipeline.New(cfg, history)

		var srv *web.Server
		runOnce := func() {
			res, err := p.Run(ctx)
			if err != nil {
				// Fatal for this run only; the serve loop keeps going and
				// the previous feed stays published.
				appLog.Error("scheduled run failed", err)
				return
			}
			srv.SetResult(res)
		}
		srv = web.NewServer(cfg, runOnce)

		c := cron.New()
		if _, err := c.AddFunc(cfg.RefreshCron, runOnce); err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", cfg.RefreshCron, err)
		}
		c.Start()
		defer c.Stop()

		httpSrv := &http.Server{Addr: cfg.Listen, Handler: srv.Handler()}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutdownCtx)
		}()

		// Initial run so the UI has data before the first cron tick.
		go runOnce()

		appLog.Info("serving", "listen", "http://"+cfg.Listen, "refresh", cfg.RefreshCron)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		appLog.Info("racecal exiting")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent pipeline runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		history, err := runlog.Open(cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer history.Close()

		runs, err := history.Recent(10)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no recorded runs")
			return nil
		}
		for _, r := range runs {
			line := fmt.Sprintf("%s  %-8s  %d events, %d sources, %d rows dropped",
				r.StartedAt.Format("2006-01-02 15:04"), r.Status, r.Events, r.SourceCount, r.DroppedRows)
			if len(r.MissingSeasons) > 0 {
				line += "  missing=" + strings.Join(r.MissingSeasons, ",")
			}
			if r.Detail != "" {
				line += "  (" + r.Detail + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

// signalContext returns a context canceled on SIGINT/SIGTERM.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()
	return ctx
}
