package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponential_Delay(t *testing.T) {
	tests := []struct {
		retries int
		want    time.Duration
	}{
		{-3, 2 * time.Minute},
		{0, 2 * time.Minute},
		{1, 2 * time.Minute},
		{2, 4 * time.Minute},
		{3, 8 * time.Minute},
		{6, 64 * time.Minute},
		{10, 1024 * time.Minute},
		{11, 24 * time.Hour},
		{64, 24 * time.Hour},
		{1 << 20, 24 * time.Hour},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Exponential{}.Delay(tt.retries), "retries=%d", tt.retries)
	}
}

func TestTable_Delay(t *testing.T) {
	p := NewTable()

	tests := []struct {
		retries int
		want    time.Duration
	}{
		{0, time.Hour},
		{1, time.Hour},
		{2, 2 * time.Hour},
		{3, 4 * time.Hour},
		{4, 8 * time.Hour},
		{5, 24 * time.Hour},
		{6, 48 * time.Hour},
		{7, 48 * time.Hour},
		{100, 48 * time.Hour},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.retries), "retries=%d", tt.retries)
	}
}

func TestTable_ZeroValue(t *testing.T) {
	var p Table
	assert.NotPanics(t, func() { p.Delay(1) })
	assert.Equal(t, time.Hour, p.Delay(1))
	assert.Equal(t, 48*time.Hour, p.Delay(100))

	empty := &Table{Steps: []time.Duration{}}
	assert.Equal(t, 2*time.Hour, empty.Delay(2))
}

func TestPolicies_MonotonicAndBounded(t *testing.T) {
	policies := map[string]struct {
		policy Policy
		cap    time.Duration
	}{
		"exponential": {Exponential{}, ExponentialCap},
		"table":       {NewTable(), 48 * time.Hour},
	}

	for name, tc := range policies {
		t.Run(name, func(t *testing.T) {
			prev := time.Duration(0)
			for n := 0; n <= 200; n++ {
				d := tc.policy.Delay(n)
				assert.GreaterOrEqual(t, d, prev, "Delay(%d) decreased", n)
				assert.LessOrEqual(t, d, tc.cap, "Delay(%d) above cap", n)
				assert.Positive(t, d)
				prev = d
			}
		})
	}
}

func TestFromName(t *testing.T) {
	p, err := FromName("")
	require.NoError(t, err)
	assert.IsType(t, Exponential{}, p)

	p, err = FromName("table")
	require.NoError(t, err)
	assert.IsType(t, &Table{}, p)

	_, err = FromName("fibonacci")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backoff strategy")
}
