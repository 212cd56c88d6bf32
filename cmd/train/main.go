// Command train cross-validates the fraud classifier and saves one model per
// fold together with the feature schema and out-of-fold probabilities.
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
		Name:  "train",
		Short: "Train one gradient-boosted model per stratified fold",
		Long: `train reads paths.train_csv, engineers features, runs stratified k-fold
cross-validation and writes the fold models, feature_schema.yaml and the
out-of-fold probabilities to paths.model_dir.`,
		Run: func(ctx context.Context, cfg *config.Config, deps pipeline.Deps) error {
			deps.OnFold = cli.FoldProgress(os.Stderr, cfg.CV.NSplits, "training folds")
			_, err := pipeline.Train(ctx, cfg, deps)
			return err
		},
	})
}
