package gbdt

import "math"

// EarlyStopping tracks the best validation score seen during boosting.
// With Rounds == 0 it only records the best iteration and never stops.
type EarlyStopping struct {
	Rounds          int     // Number of rounds without improvement to stop
	BestScore       float64 // Best validation score so far
	BestIteration   int     // Iteration with best score, -1 before the first update
	RoundsNoImprove int     // Current rounds without improvement
	Minimize        bool    // Whether to minimize the metric
}

// NewEarlyStopping creates a tracker for a loss (lower is better).
func NewEarlyStopping(rounds int) *EarlyStopping {
	if rounds < 0 {
		rounds = 0
	}
	return &EarlyStopping{
		Rounds:        rounds,
		BestScore:     math.Inf(1),
		BestIteration: -1,
		Minimize:      true,
	}
}

// Update records the score of an iteration and returns whether training should stop.
func (es *EarlyStopping) Update(iteration int, score float64) bool {
	improved := false
	if es.Minimize {
		improved = score < es.BestScore
	} else {
		improved = score > es.BestScore
	}

	if improved {
		es.BestScore = score
		es.BestIteration = iteration
		es.RoundsNoImprove = 0
	} else {
		es.RoundsNoImprove++
	}

	return es.ShouldStop()
}

// ShouldStop returns whether training should stop
func (es *EarlyStopping) ShouldStop() bool {
	return es.Rounds > 0 && es.RoundsNoImprove >= es.Rounds
}
