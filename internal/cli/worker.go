package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"quizstreak-service/internal/app"
	"quizstreak-service/internal/domain"
	redisinfra "quizstreak-service/internal/infra/redis"
)

// NewWorkerCmd consumes quiz completion events from the Redis stream.
func NewWorkerCmd(configPath *string) *cobra.Command {
	var (
		consumer  string
		claimIdle time.Duration
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume quiz completion events from the Redis stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []redisinfra.ConsumerOption{redisinfra.WithClaimIdle(claimIdle)}
			if consumer != "" {
				opts = append(opts, redisinfra.WithConsumerName(consumer))
			}
			return runWorker(cmd.Context(), *configPath, opts...)
		},
	}
	cmd.Flags().StringVar(&consumer, "consumer", "", "consumer name within the group (default host-pid)")
	cmd.Flags().DurationVar(&claimIdle, "claim-idle", 30*time.Second, "reclaim entries pending longer than this")
	return cmd
}

func runWorker(ctx context.Context, configPath string, opts ...redisinfra.ConsumerOption) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := requireSharedStore(cfg, "worker"); err != nil {
		return err
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("worker needs redis.addr")
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.close()

	stream := cfg.Redis.Stream
	if stream == "" {
		stream = redisinfra.DefaultStream
	}
	group := cfg.Redis.Group
	if group == "" {
		group = redisinfra.DefaultGroup
	}

	window := rt.retryWindow()
	handle := func(ctx context.Context, evt domain.QuizCompletionEvent) error {
		return app.Retry(ctx, window, func(ctx context.Context) error {
			_, err := rt.handlers.OnQuizSubmitted(ctx, evt)
			return err
		})
	}

	c := redisinfra.NewEventConsumer(rt.redis, stream, group, handle, log, opts...)
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}
	log.Info("worker started", "stream", stream, "group", group)
	return c.Run(ctx)
}
