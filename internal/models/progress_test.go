package models

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/learning-center-api/pkg/errors"
)

func TestNewProgressRoundTripsWholeRange(t *testing.T) {
	for p := 0; p <= 100; p++ {
		got, err := NewProgress(p)
		require.NoError(t, err)
		assert.Equal(t, p, got.Percentage())
		assert.Equal(t, p == 100, got.IsCompleted())
	}
}

func TestNewProgressRejectsOutOfRange(t *testing.T) {
	for _, p := range []int{-1, -100, 101, 1000} {
		_, err := NewProgress(p)
		assert.True(t, errors.Is(err, appErrors.ErrValidation), "percentage %d", p)
	}
}

func TestProgressIncreaseSaturates(t *testing.T) {
	p, err := NewProgress(90)
	require.NoError(t, err)
	next, err := p.Increase(50)
	require.NoError(t, err)
	assert.Equal(t, 100, next.Percentage())
	assert.Equal(t, 90, p.Percentage())

	_, err = p.Increase(-91)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestProgressFromRatioFloors(t *testing.T) {
	p, err := ProgressFromRatio(1, 3)
	require.NoError(t, err)
	assert.Equal(t, 33, p.Percentage())

	p, err = ProgressFromRatio(2, 3)
	require.NoError(t, err)
	assert.Equal(t, 66, p.Percentage())

	p, err = ProgressFromRatio(3, 3)
	require.NoError(t, err)
	assert.True(t, p.IsCompleted())

	_, err = ProgressFromRatio(1, 0)
	assert.Error(t, err)
	_, err = ProgressFromRatio(4, 3)
	assert.Error(t, err)
}

func TestProgressScanAndJSON(t *testing.T) {
	var p Progress
	require.NoError(t, p.Scan(int64(42)))
	assert.Equal(t, 42, p.Percentage())
	require.NoError(t, p.Scan([]byte("7")))
	assert.Equal(t, 7, p.Percentage())
	assert.Error(t, p.Scan(int64(101)))

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Equal(t, "7", string(raw))
	assert.Error(t, json.Unmarshal([]byte("-3"), &p))
}
