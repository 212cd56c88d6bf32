package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Fit",
			kind:    "invalid input",
			err:     fmt.Errorf("test error"),
			wantMsg: "fraudkit: Fit: invalid input: test error",
		},
		{
			name:    "without original error",
			op:      "PredictProba",
			kind:    "corrupt model",
			err:     nil,
			wantMsg: "fraudkit: PredictProba: corrupt model",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			// 基本的なエラーメッセージの確認
			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestModelErrorUnwrap(t *testing.T) {
	err := NewModelError("LoadModel", "decode failed", ErrEmptyData)
	if !Is(err, ErrEmptyData) {
		t.Error("Expected ModelError to unwrap to its cause")
	}
}

func TestNewDimensionError(t *testing.T) {
	tests := []struct {
		name string
		axis int
		want string
	}{
		{"rows", 0, "fraudkit: Fit: dimension mismatch on axis 0 (rows). Expected 10, got 8"},
		{"features", 1, "fraudkit: Fit: dimension mismatch on axis 1 (features). Expected 10, got 8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewDimensionError("Fit", 10, 8, tt.axis)
			if err.Error() != tt.want {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.want)
			}
			var dimErr *DimensionError
			if !As(err, &dimErr) {
				t.Error("Error should be castable to *DimensionError")
			}
		})
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("GBDTClassifier", "PredictProba")

	want := "fraudkit: GBDTClassifier: this model is not fitted yet. Call Fit() before using PredictProba()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("label", "must be 0 or 1", 2.0)

	want := "fraudkit: validation failed for parameter 'label': must be 0 or 1 (got: 2)"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var valErr *ValidationError
	if !As(err, &valErr) {
		t.Fatal("Error should be castable to *ValidationError")
	}
	if valErr.ParamName != "label" {
		t.Errorf("ParamName = %q, want label", valErr.ParamName)
	}
}

func TestNewValueError(t *testing.T) {
	err := NewValueError("SetParams", "learning_rate: -0.5 (must be positive)")

	want := "fraudkit: SetParams: learning_rate: -0.5 (must be positive)"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var valErr *ValueError
	if !As(err, &valErr) {
		t.Error("Error should be castable to *ValueError")
	}
}

func TestWarnUsesConfiguredHandler(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })
	defer SetWarningHandler(func(w error) {})

	Warn(NewUndefinedMetricWarning("f1", "no positive samples", 0))
	Warn(NewIgnoredParameterWarning("gbdt", "border_count"))

	if len(got) != 2 {
		t.Fatalf("expected 2 warnings, got %d", len(got))
	}
	if !strings.Contains(got[0].Error(), "'f1' is ill-defined") {
		t.Errorf("unexpected warning text: %v", got[0])
	}
	if !strings.Contains(got[1].Error(), `"border_count"`) {
		t.Errorf("unexpected warning text: %v", got[1])
	}
}

func TestWarnPrefersZerologFunc(t *testing.T) {
	var handled, zl int
	SetWarningHandler(func(w error) { handled++ })
	SetZerologWarnFunc(func(w error) { zl++ })
	defer func() {
		SetZerologWarnFunc(nil)
		SetWarningHandler(func(w error) {})
	}()

	Warn(NewDataConversionWarning("driver_age", "string", "float64", "schema expects numeric"))

	if zl != 1 || handled != 0 {
		t.Errorf("zerolog func calls = %d, handler calls = %d", zl, handled)
	}
}

func TestWrapAndIs(t *testing.T) {
	wrapped := Wrap(ErrNotImplemented, "in Inferencer.Run")

	if !Is(wrapped, ErrNotImplemented) {
		t.Error("Expected Is(wrapped, ErrNotImplemented) to be true")
	}
	if !strings.Contains(wrapped.Error(), "in Inferencer.Run") {
		t.Error("Expected wrapped error to contain wrapping message")
	}
}

func TestWrapf(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d, got %d", "PredictProba", 10, 5)

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}
	expectedMsg := "in PredictProba: expected 10, got 5"
	if !strings.Contains(wrapped.Error(), expectedMsg) {
		t.Errorf("Expected wrapped error to contain %q", expectedMsg)
	}
}

func TestErrorChaining(t *testing.T) {
	err1 := fmt.Errorf("base error")
	err2 := Wrap(err1, "wrapped once")
	err3 := NewModelError("Operation", "failed", err2)

	if !strings.Contains(err3.Error(), "base error") {
		t.Error("Expected error chain to contain base error")
	}

	// スタックトレースの確認（詳細表示）
	formatted := fmt.Sprintf("%+v", err3)
	if !strings.Contains(formatted, "errors_test.go") {
		t.Error("Expected detailed error to contain stack trace")
	}
}

func TestCheckNumericalStability(t *testing.T) {
	if err := CheckNumericalStability("leaf_value", []float64{0.1, -2, 3}, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := CheckNumericalStability("leaf_value", []float64{0.1, nan(), 3}, 4)
	var numErr *NumericalInstabilityError
	if !As(err, &numErr) {
		t.Fatalf("expected NumericalInstabilityError, got %v", err)
	}
	if numErr.Iteration != 4 || len(numErr.Values) != 1 {
		t.Errorf("unexpected error payload: %+v", numErr)
	}
}

func TestSigmoid(t *testing.T) {
	tests := []struct {
		x    float64
		want float64
	}{
		{0, 0.5},
		{1000, 1},
		{-1000, 0},
	}
	for _, tt := range tests {
		if got := Sigmoid(tt.x); got != tt.want {
			t.Errorf("Sigmoid(%v) = %v, want %v", tt.x, got, tt.want)
		}
	}
}

func TestStabilizeLogAndClip(t *testing.T) {
	if got := StabilizeLog(0); got > -34 || got < -35 {
		t.Errorf("StabilizeLog(0) = %v", got)
	}
	if got := ClipValue(2, 0, 1); got != 1 {
		t.Errorf("ClipValue(2, 0, 1) = %v", got)
	}
	if got := ClipValue(-2, 0, 1); got != 0 {
		t.Errorf("ClipValue(-2, 0, 1) = %v", got)
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}
