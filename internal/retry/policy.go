// Package retry computes how long a failed job waits before its next attempt.
// Every Policy is non-decreasing in the retry count and bounded by its cap.
package retry

import (
	"fmt"
	"time"

	"github.com/joshu-sajeev/notifyqueue/internal/config"
)

// Policy returns the delay before the attempt that follows the given number of
// failed attempts. retries is 1-based; values below 1 are treated as 1.
type Policy interface {
	Delay(retries int) time.Duration
}

// ExponentialCap is the longest delay Exponential will return.
const ExponentialCap = 24 * time.Hour

// Exponential waits 2^retries minutes, capped at one day.
type Exponential struct{}

func (Exponential) Delay(retries int) time.Duration {
	if retries < 1 {
		retries = 1
	}
	// 2^11 minutes already exceeds the cap
	if retries > 10 {
		return ExponentialCap
	}
	d := time.Duration(1<<retries) * time.Minute
	return min(d, ExponentialCap)
}

// DefaultSteps are the escalating waits used by Table.
var DefaultSteps = []time.Duration{
	1 * time.Hour,
	2 * time.Hour,
	4 * time.Hour,
	8 * time.Hour,
	24 * time.Hour,
	48 * time.Hour,
}

// Table walks a fixed list of delays and stays on the last one.
type Table struct {
	Steps []time.Duration
}

func NewTable(steps ...time.Duration) *Table {
	if len(steps) == 0 {
		steps = DefaultSteps
	}
	return &Table{Steps: steps}
}

// Delay uses DefaultSteps when Steps is empty.
func (t *Table) Delay(retries int) time.Duration {
	steps := t.Steps
	if len(steps) == 0 {
		steps = DefaultSteps
	}
	if retries < 1 {
		retries = 1
	}
	return steps[min(retries-1, len(steps)-1)]
}

// FromName resolves the BACKOFF_STRATEGY setting.
func FromName(name string) (Policy, error) {
	switch name {
	case "", config.BackoffExponential:
		return Exponential{}, nil
	case config.BackoffTable:
		return NewTable(), nil
	default:
		return nil, fmt.Errorf("unknown backoff strategy %q", name)
	}
}
