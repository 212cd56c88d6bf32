package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecover_WithPanic(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "fitFold")
		panic("index out of range")
	}

	err := testFunc()
	require.Error(t, err)

	var panicErr *PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, "fitFold", panicErr.Operation)
	assert.Equal(t, "index out of range", panicErr.PanicValue)
	assert.NotEmpty(t, panicErr.StackTrace)
	assert.Equal(t, "panic in fitFold: index out of range", panicErr.Error())
}

func TestRecover_WithoutPanic(t *testing.T) {
	testFunc := func() (err error) {
		defer Recover(&err, "fitFold")
		return nil
	}
	assert.NoError(t, testFunc())
}

func TestRecover_WithExistingError(t *testing.T) {
	originalErr := fmt.Errorf("original error")

	testFunc := func() (err error) {
		defer Recover(&err, "fitFold")
		err = originalErr
		panic("panic after error")
	}

	err := testFunc()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in fitFold")
	assert.Contains(t, err.Error(), "original error")
	assert.True(t, errors.Is(err, originalErr))
}

func TestSafeExecute(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		assert.NoError(t, SafeExecute("op", func() error { return nil }))
	})

	t.Run("function error", func(t *testing.T) {
		originalErr := fmt.Errorf("function error")
		err := SafeExecute("op", func() error { return originalErr })
		assert.Same(t, originalErr, err)
	})

	t.Run("panic", func(t *testing.T) {
		err := SafeExecute("op", func() error { panic("boom") })
		var panicErr *PanicError
		require.True(t, errors.As(err, &panicErr))
		assert.Equal(t, "boom", panicErr.PanicValue)
	})
}

func TestPanicError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("cause")

	assert.Nil(t, NewPanicError("op", "plain value").Unwrap())
	assert.Equal(t, cause, NewPanicError("op", cause).Unwrap())

	str := NewPanicError("op", "v").String()
	assert.Contains(t, str, "Stack trace:")
	assert.Contains(t, str, "panic in op: v")
}

func TestRecover_DifferentPanicTypes(t *testing.T) {
	testCases := []struct {
		name       string
		panicValue interface{}
	}{
		{"string panic", "string panic"},
		{"int panic", 42},
		{"error panic", fmt.Errorf("error as panic")},
		{"struct panic", struct{ Msg string }{"struct message"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			testFunc := func() (err error) {
				defer Recover(&err, "TypeTest")
				panic(tc.panicValue)
			}

			var panicErr *PanicError
			require.True(t, errors.As(testFunc(), &panicErr))
			assert.Equal(t, fmt.Sprintf("%v", tc.panicValue), fmt.Sprintf("%v", panicErr.PanicValue))
		})
	}
}

func BenchmarkSafeExecute_NoPanic(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = SafeExecute("BenchmarkOp", func() error { return nil })
	}
}
