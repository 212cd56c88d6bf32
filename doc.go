// Package fraudkit is a batch pipeline for tabular insurance-claim fraud
// classification.
//
// The pipeline has three commands, each configured by one YAML file:
//
//   - train: engineers features, runs stratified k-fold cross-validation of a
//     gradient-boosted tree classifier and saves one model per fold together
//     with the feature schema and the out-of-fold probabilities.
//   - infer: averages the fold models' probabilities on the test set, applies
//     a threshold and writes a timestamped submission CSV.
//   - threshold-search: re-derives the out-of-fold probabilities and selects a
//     threshold, either the one maximizing macro-F1 or the best of a grid of
//     positive-count quotas.
//
// # Quick Start
//
//	go run ./cmd/train --config config.yaml
//	go run ./cmd/threshold-search --config config.yaml
//	go run ./cmd/infer --config config.yaml
//
// Every configuration key can be overridden from the environment with the
// FRAUDKIT_ prefix, for example FRAUDKIT_CV_N_SPLITS=10.
//
// # Packages
//
//   - core/frame: column table with numeric and categorical columns, CSV I/O
//   - core/model: model persistence and fitted-state guard
//   - core/parallel: bounded fan-out helpers
//   - preprocessing: FeatureBuilder and the feature schema
//   - sklearn/gbdt: binary gradient-boosted trees with native categoricals
//   - sklearn/model_selection: KFold and StratifiedKFold
//   - metrics: macro-F1, AUC, log-loss and threshold selection
//   - pkg/errors, pkg/log: structured errors and logging
//   - internal/pipeline: the train, infer and threshold-search operations
//
// Using the library directly:
//
//	X, y := loadClaims()
//	features, schema := preprocessing.NewFeatureBuilder().FitTransform(X)
//
//	clf := gbdt.NewClassifier(gbdt.DefaultParams())
//	if err := clf.Fit(ctx, features, y, nil); err != nil {
//	    log.Fatal(err)
//	}
//	proba, err := clf.PredictProba(preprocessing.NewFeatureBuilder().TransformWithSchema(Xtest, schema))
package fraudkit
