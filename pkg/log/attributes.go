// Package log defines standard attribute keys for pipeline logging.
//
// Keys follow a hierarchical naming convention ("model.name",
// "data.samples") so records from the train, infer and threshold-search
// commands can be filtered the same way.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the estimator, e.g. "GBDTClassifier".
	ModelNameKey = "model.name"

	// RunIDKey is the identifier shared by every record of one pipeline run.
	RunIDKey = "run.id"

	// OperationKey is the pipeline operation: "train", "infer", "threshold_search".
	OperationKey = "ml.operation"

	// ComponentKey is the package emitting the record.
	ComponentKey = "ml.component"

	// PhaseKey is the lifecycle phase, see the Phase* constants.
	PhaseKey = "ml.phase"

	// FoldKey is the 1-based fold number during cross-validation.
	FoldKey = "cv.fold"

	// NFoldsKey is the configured number of folds.
	NFoldsKey = "cv.n_folds"
)

// Data Shape and Characteristics
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"

	// PositivesKey counts rows whose label is 1.
	PositivesKey = "data.positives"

	// ColumnKey names a single table column.
	ColumnKey = "data.column"

	// PathKey is a file read or written by the operation.
	PathKey = "io.path"
)

// Performance Metrics
const (
	DurationMsKey = "perf.duration_ms"

	LossKey    = "metrics.loss"
	MacroF1Key = "metrics.macro_f1"
	AUCKey     = "metrics.auc"

	// IterationKey is the boosting round.
	IterationKey = "training.iteration"

	// BestIterationKey is the round kept after early stopping.
	BestIterationKey = "training.best_iteration"
)

// Prediction and Output Context
const (
	PredsKey = "preds.count"

	// ThresholdKey is the decision threshold applied to probabilities.
	ThresholdKey = "preds.threshold"

	// TargetPositivesKey is the requested positive count in quota search.
	TargetPositivesKey = "preds.target_pos"

	// StrategyKey is the threshold selection strategy.
	StrategyKey = "preds.strategy"
)

// Error Context
const (
	ErrorTypeKey = "error.type"
)

// Hyperparameters and Configuration
const (
	HyperParamsKey = "model.hyperparams"

	LearningRateKey = "hyperparams.learning_rate"

	RandomSeedKey = "config.random_seed"

	ConfigFileKey = "config.file"
)

// Standard attribute values.
const (
	OperationTrain           = "train"
	OperationInfer           = "infer"
	OperationThresholdSearch = "threshold_search"
	OperationFit             = "fit"
	OperationPredict         = "predict"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
)
