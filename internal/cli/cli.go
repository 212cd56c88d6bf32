// Package cli builds the cobra root command shared by the train, infer and
// threshold-search binaries.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/fraudkit/internal/config"
	"github.com/YuminosukeSato/fraudkit/internal/pipeline"
	"github.com/YuminosukeSato/fraudkit/internal/report"
	"github.com/YuminosukeSato/fraudkit/internal/tracking"
	"github.com/YuminosukeSato/fraudkit/pkg/errors"
	"github.com/YuminosukeSato/fraudkit/pkg/log"
)

// DefaultConfigPath is the value of --config when the flag is not given.
const DefaultConfigPath = "config.yaml"

// RunFunc executes one pipeline command.
type RunFunc func(ctx context.Context, cfg *config.Config, deps pipeline.Deps) error

// Command describes one binary.
type Command struct {
	Name  string
	Short string
	Long  string
	Run   RunFunc
}

// NewRootCommand returns the cobra command for c. Its only flag is --config.
func NewRootCommand(c Command) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           c.Name,
		Short:         c.Short,
		Long:          c.Long,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd.Context(), c, cfgFile, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", DefaultConfigPath, "path to the YAML configuration")
	return cmd
}

func execute(ctx context.Context, c Command, cfgFile string, stdout io.Writer) (err error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := log.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return errors.Wrap(err, "setup logging")
	}

	runID := uuid.NewString()
	started := time.Now()
	logger := log.GetLoggerWithName("cmd."+c.Name).With(
		log.RunIDKey, runID,
		log.ConfigFileKey, cfgFile,
	)
	deps := pipeline.Deps{
		Logger: logger,
		Stdout: stdout,
		RunID:  runID,
	}

	if path := cfg.Tracking.DBPath; path != "" {
		ledger, lerr := openLedger(ctx, path)
		if lerr != nil {
			return lerr
		}
		defer ledger.Close()

		run := tracking.Run{ID: runID, Command: c.Name, ConfigPath: cfgFile, StartedAt: started}
		if lerr := ledger.StartRun(ctx, run); lerr != nil {
			return lerr
		}
		defer func() {
			// The run is closed even when ctx was cancelled.
			ferr := ledger.FinishRun(context.WithoutCancel(ctx), runID, time.Now(), err)
			if err == nil {
				err = ferr
			}
		}()
		deps.Ledger = ledger
	}

	if path := cfg.Metrics.Textfile; path != "" {
		deps.Metrics = report.NewMetrics()
		defer func() {
			deps.Metrics.ObserveRun(c.Name, started, time.Now())
			if werr := deps.Metrics.WriteTextfile(path); werr != nil {
				logger.Warn("metrics textfile not written", log.PathKey, path, log.ErrAttrKey, werr)
			}
		}()
	}

	logger.Info("command started", log.OperationKey, c.Name)
	err = c.Run(ctx, cfg, deps)
	if err != nil {
		logger.Error("command failed", err, log.OperationKey, c.Name)
		return err
	}
	logger.Info("command finished",
		log.OperationKey, c.Name,
		log.DurationMsKey, time.Since(started).Milliseconds(),
	)
	return nil
}

func openLedger(ctx context.Context, path string) (*tracking.Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create ledger dir for %s", path)
	}
	return tracking.Open(ctx, path)
}

// FoldProgress renders a fold progress bar of total steps on w and returns
// the callback advancing it.
func FoldProgress(w io.Writer, total int, description string) func(pipeline.FoldResult) {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
	return func(pipeline.FoldResult) {
		_ = bar.Add(1)
	}
}

// Main runs c as the process entry point. SIGINT and SIGTERM cancel the
// context; any error is printed to stderr and exits with status 1.
func Main(c Command) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.GetLogger().Info("received interrupt signal, shutting down")
		cancel()
	}()

	err := NewRootCommand(c).ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
