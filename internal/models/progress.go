package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	appErrors "github.com/noah-isme/learning-center-api/pkg/errors"
)

const (
	minProgress = 0
	maxProgress = 100
)

// Progress is an immutable completion percentage in [0,100].
type Progress struct {
	percentage int
}

// NewProgress validates the percentage range.
func NewProgress(percentage int) (Progress, error) {
	if percentage < minProgress || percentage > maxProgress {
		return Progress{}, appErrors.Validation("progress must be between 0 and 100, got: %d", percentage)
	}
	return Progress{percentage: percentage}, nil
}

// ZeroProgress is the starting point of every enrollment.
func ZeroProgress() Progress {
	return Progress{}
}

// ProgressFromRatio converts completed/total into a floored percentage.
func ProgressFromRatio(completed, total int) (Progress, error) {
	if total <= 0 {
		return Progress{}, appErrors.Validation("course has no lessons")
	}
	if completed < 0 || completed > total {
		return Progress{}, appErrors.Validation("completed lessons %d out of range for %d lessons", completed, total)
	}
	return NewProgress(completed * 100 / total)
}

// Percentage returns the stored value.
func (p Progress) Percentage() int {
	return p.percentage
}

// IsCompleted reports whether the percentage reached 100.
func (p Progress) IsCompleted() bool {
	return p.percentage == maxProgress
}

// Increase returns a new Progress clipped to 100. Only a negative result is rejected.
func (p Progress) Increase(amount int) (Progress, error) {
	next := p.percentage + amount
	if next > maxProgress {
		next = maxProgress
	}
	return NewProgress(next)
}

func (p Progress) String() string {
	return fmt.Sprintf("%d%%", p.percentage)
}

// Value stores the percentage as an integer column.
func (p Progress) Value() (driver.Value, error) {
	return int64(p.percentage), nil
}

// Scan reads the integer column, rejecting out of range data.
func (p *Progress) Scan(value interface{}) error {
	var raw int64
	switch v := value.(type) {
	case nil:
		*p = Progress{}
		return nil
	case int64:
		raw = v
	case int:
		raw = int64(v)
	case int32:
		raw = int64(v)
	case []byte:
		if _, err := fmt.Sscan(string(v), &raw); err != nil {
			return fmt.Errorf("scan progress: %w", err)
		}
	default:
		return fmt.Errorf("unsupported type %T for Progress", value)
	}
	parsed, err := NewProgress(int(raw))
	if err != nil {
		return fmt.Errorf("scan progress: %w", err)
	}
	*p = parsed
	return nil
}

// MarshalJSON renders the bare percentage.
func (p Progress) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.percentage)
}

// UnmarshalJSON accepts a bare percentage.
func (p *Progress) UnmarshalJSON(data []byte) error {
	var raw int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewProgress(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
