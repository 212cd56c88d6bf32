package gbdt

import (
	"math"

	"github.com/YuminosukeSato/fraudkit/pkg/errors"
)

// ObjectiveFunction defines the interface for loss functions used in gradient boosting.
type ObjectiveFunction interface {
	// CalculateGradient calculates the gradient for a single sample
	CalculateGradient(prediction, target float64) float64

	// CalculateHessian calculates the hessian for a single sample
	CalculateHessian(prediction, target float64) float64

	// CalculateLoss calculates the loss for a single sample
	CalculateLoss(prediction, target float64) float64

	// GetInitScore returns the initial raw score for this objective
	GetInitScore(targets []float64) float64

	// Name returns the name of the objective
	Name() string
}

// hessianFloor keeps leaf denominators away from zero once predictions saturate.
const hessianFloor = 1e-16

// BinaryLogloss is the binary cross-entropy objective on raw (logit) scores.
// Positive samples are weighted by PosWeight.
type BinaryLogloss struct {
	PosWeight float64
}

// NewBinaryLogloss creates a binary log-loss objective.
func NewBinaryLogloss(posWeight float64) *BinaryLogloss {
	if posWeight <= 0 {
		posWeight = 1
	}
	return &BinaryLogloss{PosWeight: posWeight}
}

func (o *BinaryLogloss) weight(target float64) float64 {
	if target > 0.5 {
		return o.PosWeight
	}
	return 1
}

// CalculateGradient returns w * (sigmoid(f) - y).
func (o *BinaryLogloss) CalculateGradient(prediction, target float64) float64 {
	return o.weight(target) * (errors.Sigmoid(prediction) - target)
}

// CalculateHessian returns w * p * (1 - p).
func (o *BinaryLogloss) CalculateHessian(prediction, target float64) float64 {
	p := errors.Sigmoid(prediction)
	return math.Max(o.weight(target)*p*(1-p), hessianFloor)
}

// CalculateLoss returns the weighted negative log-likelihood.
func (o *BinaryLogloss) CalculateLoss(prediction, target float64) float64 {
	p := errors.ClipValue(errors.Sigmoid(prediction), 1e-15, 1-1e-15)
	return -o.weight(target) * (target*math.Log(p) + (1-target)*math.Log(1-p))
}

// GetInitScore returns the log-odds of the weighted positive rate.
func (o *BinaryLogloss) GetInitScore(targets []float64) float64 {
	var pos, neg float64
	for _, t := range targets {
		if t > 0.5 {
			pos += o.PosWeight
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		// Degenerate fold: a single class. Start from a clipped prior.
		p := errors.ClipValue(pos/(pos+neg), 1e-6, 1-1e-6)
		return math.Log(p / (1 - p))
	}
	return math.Log(pos / neg)
}

// Name returns the objective name.
func (o *BinaryLogloss) Name() string {
	return "binary_logloss"
}
