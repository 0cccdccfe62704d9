package main

import (
	"PushUpCounter/config"
	"PushUpCounter/counter"
	"PushUpCounter/logger"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runFunc performs one counting run; tests swap it out.
type runFunc func(ctx context.Context, cfg *config.Config, uri string) counter.Result

func countVideo(ctx context.Context, cfg *config.Config, uri string) counter.Result {
	runner, err := counter.NewRunner(cfg, nil)
	if err != nil {
		return counter.Failure(fmt.Errorf("%w: %w", counter.ErrProcessing, err))
	}
	return runner.Run(ctx, uri)
}

// newRootCmd builds the command. Help and usage go to stderr; helped is set
// when help was shown instead of a run.
func newRootCmd(stderr io.Writer, run runFunc, result *counter.Result, helped *bool) *cobra.Command {
	var configPath string
	var verbose bool
	cmd := &cobra.Command{
		Use:           "pushupcount <video>",
		Short:         "Count push-up repetitions in a video",
		Long:          "Tracks the elbow against the shoulder with a pose model and prints the number of completed push-ups, or 0 on failure.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				*result = counter.Failure(counter.ErrUsage)
				return nil
			}
			path, explicit := config.Path(configPath)
			cfg, err := config.Load(path, explicit)
			if err != nil {
				logger.Log().Error("Config load failed", zap.String("path", path), zap.Error(err))
				*result = counter.Failure(fmt.Errorf("%w: %w", counter.ErrProcessing, err))
				return nil
			}
			level := cfg.Logging.Level
			if verbose {
				level = "debug"
			}
			if err := logger.InitWithLevel(level, cfg.Logging.Development); err != nil {
				*result = counter.Failure(fmt.Errorf("%w: %w", counter.ErrProcessing, err))
				return nil
			}
			defer logger.Sync()
			*result = run(cmd.Context(), cfg, args[0])
			return nil
		},
	}
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)
	showHelp := cmd.HelpFunc()
	cmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		*helped = true
		showHelp(c, args)
	})
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default $"+config.EnvPath+" or "+config.DefaultPath+")")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")
	return cmd
}

// execute runs the command and renders the result: one line on stdout and
// the exit status. Asking for help prints nothing on stdout.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer, run runFunc) int {
	// until the config names a level, only problems reach stderr
	_ = logger.InitWithLevel("warn", false)
	var result counter.Result
	var helped bool
	cmd := newRootCmd(stderr, run, &result, &helped)
	if args == nil {
		args = []string{}
	}
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		// bad flags end up here
		result = counter.Failure(fmt.Errorf("%w: %w", counter.ErrUsage, err))
	} else if helped {
		return 0
	}
	if errors.Is(result.Err, counter.ErrUsage) {
		logger.Log().Warn("No video to count", zap.Error(result.Err))
	}
	fmt.Fprintln(stdout, result.Output())
	return result.ExitCode()
}

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr, countVideo))
}
