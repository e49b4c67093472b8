package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"quizstreak-service/internal/config"
	"quizstreak-service/internal/scheduler"
	transport "quizstreak-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	var noCron bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the API server and the job scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port, !noCron)
		},
	}
	cmd.Flags().BoolVar(&noCron, "no-cron", false, "do not run scheduled jobs in this process")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string, withCron bool) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	rt, err := newRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.close()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	if cfg.Auth.JWTSecret == "" {
		log.Warn("auth.jwtSecret is empty; every API call will be rejected")
	}
	stream := transport.NewLeaderboardStream(rt.hub, rt.service, log)
	if rt.relay != nil {
		stream.WithSnapshots(rt.relay)
	}
	router := transport.NewRouter(transport.RouterConfig{
		API:         transport.NewAPI(rt.service, log),
		Auth:        transport.NewAuthenticator(cfg.Auth.JWTSecret),
		Stream:      stream,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	if rt.relay != nil {
		go func() {
			if err := rt.relay.Relay(ctx, rt.hub); err != nil {
				log.Error("leaderboard relay stopped", "error", err)
			}
		}()
	}

	var sched *scheduler.Scheduler
	if withCron {
		sched, err = scheduler.New(rt.handlers, schedulerSpecs(cfg), log)
		if err != nil {
			return err
		}
		sched.Start()
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting quizstreak service", "port", finalPort, "cron", withCron)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down server")
	case err := <-serveErr:
		if err != nil {
			log.Error("server failed", "error", err)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	return server.Shutdown(shutdownCtx)
}

func schedulerSpecs(cfg config.Config) scheduler.Specs {
	return scheduler.Specs{
		StreakReset:  cfg.Schedule.StreakReset,
		Leaderboards: cfg.Schedule.Leaderboards,
		Reminders:    cfg.Schedule.Reminders,
		Sessions:     cfg.Schedule.Sessions,
	}
}
