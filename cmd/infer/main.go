// Command infer scores paths.test_csv with the saved fold models and writes
// a timestamped submission file.
package main

import (
	"context"

	"github.com/YuminosukeSato/fraudkit/internal/cli"
	"github.com/YuminosukeSato/fraudkit/internal/config"
	"github.com/YuminosukeSato/fraudkit/internal/pipeline"
)

func main() {
	cli.Main(cli.Command{
		Name:  "infer",
		Short: "Score the test set with the fold ensemble",
		Long: `infer averages the probabilities of every gbdt_fold<i>.msgpack model in
paths.model_dir, applies threshold.default and writes
submission_gbdt_thr<thr>_<timestamp>.csv to paths.submissions_dir.`,
		Run: func(ctx context.Context, cfg *config.Config, deps pipeline.Deps) error {
			_, err := pipeline.Infer(ctx, cfg, deps)
			return err
		},
	})
}
