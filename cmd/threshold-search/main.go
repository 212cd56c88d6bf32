// Command threshold-search re-runs cross-validation and selects a decision
// threshold on the out-of-fold probabilities.
package main

import (
	"context"
	"os"

	"github.com/YuminosukeSato/fraudkit/internal/cli"
	"github.com/YuminosukeSato/fraudkit/internal/config"
	"github.com/YuminosukeSato/fraudkit/internal/pipeline"
)

func main() {
	cli.Main(cli.Command{
		Name:  "threshold-search",
		Short: "Select a decision threshold from out-of-fold probabilities",
		Long: `threshold-search repeats the training cross-validation, then applies
threshold.strategy: max_f1 sweeps every distinct probability, positive_quota
evaluates threshold.positive_quota_grid. The grid is written to
paths.threshold_results_csv.`,
		Run: func(ctx context.Context, cfg *config.Config, deps pipeline.Deps) error {
			deps.OnFold = cli.FoldProgress(os.Stderr, cfg.CV.NSplits, "cross-validation")
			_, err := pipeline.ThresholdSearch(ctx, cfg, deps)
			return err
		},
	})
}
