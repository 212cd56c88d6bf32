package model

import (
	"context"

	"github.com/YuminosukeSato/fraudkit/core/frame"
)

// ProbabilisticClassifier is a binary classifier trained on a frame.
type ProbabilisticClassifier interface {
	// Fit trains on X and 0/1 labels y. eval, when non-nil, is a held-out
	// set used for early stopping.
	Fit(ctx context.Context, X *frame.Frame, y []float64, eval *EvalSet) error

	// PredictProba returns the probability of the positive class per row.
	PredictProba(X *frame.Frame) ([]float64, error)
}

// EvalSet is a validation set monitored during training.
type EvalSet struct {
	X *frame.Frame
	Y []float64
}
