package typing

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/tessera/internal/apperror"
)

// mockBaselines implements BaselineReader for testing.
type mockBaselines struct {
	typingBaselineFn func(ctx context.Context, email string) ([]float64, *float64, error)
}

func (m *mockBaselines) TypingBaseline(ctx context.Context, email string) ([]float64, *float64, error) {
	if m.typingBaselineFn != nil {
		return m.typingBaselineFn(ctx, email)
	}
	return nil, nil, nil
}

func withAverage(avg float64) *mockBaselines {
	return &mockBaselines{
		typingBaselineFn: func(ctx context.Context, email string) ([]float64, *float64, error) {
			return nil, &avg, nil
		},
	}
}

func TestAverage(t *testing.T) {
	avg, ok := Average([]float64{4.0, 6.0})
	require.True(t, ok)
	assert.Equal(t, 5.0, avg)

	avg, ok = Average([]float64{5.0, 5.2, 4.8, 5.0})
	require.True(t, ok)
	assert.InDelta(t, 5.0, avg, 1e-9)

	_, ok = Average(nil)
	assert.False(t, ok)

	_, ok = Average([]float64{1, math.NaN()})
	assert.False(t, ok)
}

func TestValidateSamples(t *testing.T) {
	require.NoError(t, ValidateSamples([]float64{5, 5.2, 4.8, 5}))

	for _, samples := range [][]float64{nil, {5, 5, 5}, {5, 5, 5, 5, 5}, {5, 5, 5, -1}, {5, 5, 5, math.Inf(1)}} {
		err := ValidateSamples(samples)
		assert.True(t, apperror.Is(err, apperror.TypeValidation), "samples %v", samples)
	}
}

func TestVerify_FixedBand(t *testing.T) {
	avg, _ := Average([]float64{4.0, 6.0})
	a := NewAnalyzer(withAverage(avg))
	ctx := context.Background()

	ok, err := a.Verify(ctx, "alice@example.com", 7.9)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = a.Verify(ctx, "alice@example.com", 8.1)
	assert.False(t, ok)

	ok, _ = a.Verify(ctx, "alice@example.com", 8.0)
	assert.True(t, ok, "upper edge is inclusive")

	ok, _ = a.Verify(ctx, "alice@example.com", 2.0)
	assert.True(t, ok, "lower edge is inclusive")

	ok, _ = a.Verify(ctx, "alice@example.com", 1.9)
	assert.False(t, ok)
}

func TestVerify_FailsClosedWithoutAverage(t *testing.T) {
	a := NewAnalyzer(&mockBaselines{})
	ok, err := a.Verify(context.Background(), "alice@example.com", 5.0)
	require.NoError(t, err)
	assert.False(t, ok)

	a = NewAnalyzer(withAverage(math.NaN()))
	ok, err = a.Verify(context.Background(), "alice@example.com", 5.0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerify_StoreError(t *testing.T) {
	storeErr := errors.New("store down")
	a := NewAnalyzer(&mockBaselines{
		typingBaselineFn: func(ctx context.Context, email string) ([]float64, *float64, error) {
			return nil, nil, storeErr
		},
	})
	ok, err := a.Verify(context.Background(), "alice@example.com", 5.0)
	assert.False(t, ok)
	assert.ErrorIs(t, err, storeErr)
}

func TestVerifyRecovery_RelativeBand(t *testing.T) {
	a := NewAnalyzer(withAverage(10.0))
	ctx := context.Background()

	cases := []struct {
		duration float64
		want     bool
	}{
		{6.0, true},
		{5.9, false},
		{14.0, true},
		{14.1, false},
		{10.0, true},
	}
	for _, tc := range cases {
		ok, err := a.VerifyRecovery(ctx, "alice@example.com", tc.duration, Phrase)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ok, "duration %.1f", tc.duration)
	}
}

func TestVerifyRecovery_PolicyDiffersFromPrimary(t *testing.T) {
	a := NewAnalyzer(withAverage(5.0))
	ctx := context.Background()

	primary, _ := a.Verify(ctx, "alice@example.com", 7.9)
	recovery, _ := a.VerifyRecovery(ctx, "alice@example.com", 7.9, Phrase)
	assert.True(t, primary)
	assert.False(t, recovery, "7.9 is outside 5.0 +-40%")
}

func TestVerifyRecovery_RequiresPhrase(t *testing.T) {
	a := NewAnalyzer(withAverage(5.0))
	ctx := context.Background()

	ok, _ := a.VerifyRecovery(ctx, "alice@example.com", 5.0, "  "+Phrase+"\n")
	assert.True(t, ok)

	ok, _ = a.VerifyRecovery(ctx, "alice@example.com", 5.0, "the quick brown fox")
	assert.False(t, ok)
}
