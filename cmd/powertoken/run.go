package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/willtech3/powertoken/internal/api"
	"github.com/willtech3/powertoken/internal/clock"
	"github.com/willtech3/powertoken/internal/fitbit"
	"github.com/willtech3/powertoken/internal/health"
	"github.com/willtech3/powertoken/internal/retention"
	"github.com/willtech3/powertoken/internal/syncloop"
	"github.com/willtech3/powertoken/internal/weconnect"
)

func init() {
	var once bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Poll WEconnect and push progress to Fitbit until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx, once)
		},
	}
	runCmd.Flags().BoolVar(&once, "once", false, "Run a single pass and exit")
	rootCmd.AddCommand(runCmd)
}

func runWorker(ctx context.Context, once bool) error {
	log.Info().
		Str("environment", string(cfg.Environment)).
		Dur("poll_interval", cfg.PollInterval).
		Int("http_port", cfg.HTTPPort).
		Msg("PowerToken worker starting")

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.DB().Close() }()

	clk := clock.New()
	source := weconnect.New(cfg.WEconnectURL, cfg.HTTPTimeout, cfg.APIRateLimit)
	sink := fitbit.NewSink(fitbit.Options{
		BaseURL:   cfg.FitbitURL,
		StepGoal:  cfg.StepGoal,
		Timeout:   cfg.HTTPTimeout,
		RateLimit: cfg.APIRateLimit,
		Clock:     clk,
	})
	loop := syncloop.New(st, source, sink, clk, syncloop.Config{
		PollInterval:  cfg.PollInterval,
		SweepInterval: cfg.SweepInterval,
	}, log).WithSweeper(retention.New(st, log))

	if once {
		rep := loop.RunOnce(ctx)
		log.Info().Str("cycle", rep.ID).Int("users", len(rep.Users)).Dur("duration", rep.Duration).Msg("single pass finished")
		return rep.Err
	}

	svc := health.NewService(log, health.NewPingChecker("store", st, log, 2*time.Second), loop)
	go svc.Start(ctx, 15*time.Second)

	var server *http.Server
	if cfg.HTTPPort > 0 {
		server = &http.Server{
			Addr:         cfg.GetHTTPAddr(),
			Handler:      api.NewRouter(st, clk, svc),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("HTTP server failed")
			}
		}()
	}

	err = loop.Run(ctx)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := server.Shutdown(shutdownCtx); serr != nil {
			log.Error().Err(serr).Msg("HTTP server forced to shutdown")
		}
	}
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("PowerToken worker stopped")
		return nil
	}
	return err
}
