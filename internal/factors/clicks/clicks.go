// Package clicks matches a login click attempt against the saved click
// profile. Points are compared index by index: the first click must land
// near the first saved point, and so on. There is no permutation matching.
package clicks

import (
	"fmt"
	"math"

	"github.com/keyxmakerx/tessera/internal/apperror"
	"github.com/keyxmakerx/tessera/internal/plugins/users"
)

// TolerancePx is the radius, in image pixels, within which an attempted click
// matches its saved point. The boundary is inclusive.
const TolerancePx = 35.0

// Validate checks that points form a complete profile: exactly three finite
// coordinates.
func Validate(points []users.Point) error {
	if len(points) != users.ClickPoints {
		return apperror.NewValidation(fmt.Sprintf("select exactly %d points (got %d)", users.ClickPoints, len(points)))
	}
	for _, p := range points {
		if !finite(p) {
			return apperror.NewValidation("click coordinates must be numbers")
		}
	}
	return nil
}

// Check compares attempt to baseline and returns the index of the first point
// that misses, or -1 on a match. Malformed input of either side returns 0.
func Check(baseline, attempt []users.Point) int {
	if len(baseline) != users.ClickPoints || len(attempt) != users.ClickPoints {
		return 0
	}
	for i := range baseline {
		if !finite(baseline[i]) || !finite(attempt[i]) {
			return i
		}
		if distance(baseline[i], attempt[i]) > TolerancePx {
			return i
		}
	}
	return -1
}

// Verify reports whether every attempted click lies within TolerancePx of the
// saved point at the same index. It fails closed on malformed input.
func Verify(baseline, attempt []users.Point) bool {
	return Check(baseline, attempt) == -1
}

func distance(a, b users.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func finite(p users.Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}
