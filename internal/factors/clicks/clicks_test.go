package clicks

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/tessera/internal/apperror"
	"github.com/keyxmakerx/tessera/internal/plugins/users"
)

var baseline = []users.Point{{X: 0, Y: 0}, {X: 10, Y: 10}, {X: 20, Y: 20}}

func TestVerify_ExactMatch(t *testing.T) {
	assert.True(t, Verify(baseline, baseline))
}

func TestVerify_OrderSensitive(t *testing.T) {
	reversed := []users.Point{{X: 20, Y: 20}, {X: 10, Y: 10}, {X: 0, Y: 0}}
	assert.False(t, Verify(baseline, reversed))
	assert.Equal(t, 0, Check(baseline, reversed))
}

func TestVerify_ToleranceBoundary(t *testing.T) {
	onEdge := []users.Point{{X: 35, Y: 0}, {X: 10, Y: 10}, {X: 20, Y: 20}}
	assert.True(t, Verify(baseline, onEdge), "35.0px is inside the closed interval")

	pastEdge := []users.Point{{X: 35.01, Y: 0}, {X: 10, Y: 10}, {X: 20, Y: 20}}
	assert.False(t, Verify(baseline, pastEdge))
}

func TestVerify_DiagonalDistance(t *testing.T) {
	// 21^2 + 28^2 = 35^2
	attempt := []users.Point{{X: 21, Y: 28}, {X: 10, Y: 10}, {X: 20, Y: 20}}
	assert.True(t, Verify(baseline, attempt))
}

func TestVerify_OneMissFailsAll(t *testing.T) {
	attempt := []users.Point{{X: 0, Y: 0}, {X: 10, Y: 10}, {X: 200, Y: 20}}
	assert.False(t, Verify(baseline, attempt))
	assert.Equal(t, 2, Check(baseline, attempt))
}

func TestVerify_FailsClosed(t *testing.T) {
	cases := map[string]struct {
		baseline, attempt []users.Point
	}{
		"empty baseline":  {nil, baseline},
		"empty attempt":   {baseline, nil},
		"two points":      {baseline, baseline[:2]},
		"four points":     {baseline, append(append([]users.Point{}, baseline...), users.Point{})},
		"nan coordinate":  {baseline, []users.Point{{X: math.NaN(), Y: 0}, {X: 10, Y: 10}, {X: 20, Y: 20}}},
		"infinite stored": {[]users.Point{{X: math.Inf(1), Y: 0}, {X: 10, Y: 10}, {X: 20, Y: 20}}, baseline},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.False(t, Verify(tc.baseline, tc.attempt))
		})
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(baseline))

	err := Validate(baseline[:2])
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.TypeValidation))

	err = Validate([]users.Point{{X: math.NaN()}, {}, {}})
	assert.True(t, apperror.Is(err, apperror.TypeValidation))
}
