package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"quizstreak-service/internal/app"
	"quizstreak-service/internal/scheduler"
)

// NewRunJobCmd runs one scheduled job once, for external schedulers.
func NewRunJobCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:       "run-job <" + strings.Join(scheduler.Names(), "|") + ">",
		Short:     "Run one scheduled job immediately",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: scheduler.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), *configPath, args[0], cmd.OutOrStdout())
		},
	}
}

func runJob(ctx context.Context, configPath, name string, out io.Writer) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := requireSharedStore(cfg, "run-job"); err != nil {
		return err
	}
	rt, err := newRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.close()

	job, err := scheduler.Lookup(rt.handlers, name)
	if err != nil {
		return err
	}
	var report app.JobReport
	err = app.Retry(ctx, rt.retryWindow(), func(ctx context.Context) error {
		var runErr error
		report, runErr = job(ctx)
		return runErr
	})
	fmt.Fprintf(out, "%s: scanned=%d updated=%d skipped=%d failed=%d\n",
		name, report.Scanned, report.Updated, report.Skipped, report.Failed)
	return err
}
