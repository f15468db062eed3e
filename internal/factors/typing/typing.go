// Package typing scores typing cadence on a fixed phrase. A user calibrates
// by typing the phrase several times at registration; the mean duration
// becomes their baseline.
//
// Two tolerance policies exist and are never unified: the primary
// cadence check uses a fixed band of seconds around the baseline, the
// recovery check used during step-up uses a band proportional to it.
package typing

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/keyxmakerx/tessera/internal/apperror"
)

// Phrase is the text typed during calibration and recovery.
const Phrase = "the quick brown fox jumps over the lazy dog"

// RequiredSamples is the number of timed calibration runs at registration.
const RequiredSamples = 4

// Tolerances for the two policies.
const (
	FixedToleranceSeconds = 3.0
	RecoveryRatio         = 0.40
)

// Average returns the arithmetic mean of samples. The second result is false
// for an empty input or one containing non-finite values.
func Average(samples []float64) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return 0, false
		}
		sum += s
	}
	return sum / float64(len(samples)), true
}

// ValidateSamples checks a calibration submission.
func ValidateSamples(samples []float64) error {
	if len(samples) != RequiredSamples {
		return apperror.NewValidation(fmt.Sprintf("type the phrase exactly %d times (got %d)", RequiredSamples, len(samples)))
	}
	for _, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) || s <= 0 {
			return apperror.NewValidation("typing durations must be positive numbers of seconds")
		}
	}
	return nil
}

// Policy decides whether an attempt duration matches a baseline average.
type Policy interface {
	Accept(average, duration float64) bool
}

// FixedBand accepts durations within Tolerance seconds of the average.
type FixedBand struct {
	Tolerance float64
}

// Accept implements Policy. The band is closed on both ends.
func (b FixedBand) Accept(average, duration float64) bool {
	if !usable(average) || !usable(duration) {
		return false
	}
	return average-b.Tolerance <= duration && duration <= average+b.Tolerance
}

// RelativeBand accepts durations within Ratio of the average on either side.
type RelativeBand struct {
	Ratio float64
}

// Accept implements Policy. The band is closed on both ends.
func (b RelativeBand) Accept(average, duration float64) bool {
	if !usable(average) || !usable(duration) {
		return false
	}
	return average*(1-b.Ratio) <= duration && duration <= average*(1+b.Ratio)
}

// Primary and Recovery are the policies used by the login flow.
var (
	Primary  Policy = FixedBand{Tolerance: FixedToleranceSeconds}
	Recovery Policy = RelativeBand{Ratio: RecoveryRatio}
)

// BaselineReader supplies a user's stored calibration.
type BaselineReader interface {
	TypingBaseline(ctx context.Context, email string) ([]float64, *float64, error)
}

// Analyzer verifies typing attempts against the stored baseline.
type Analyzer struct {
	baselines BaselineReader
}

// NewAnalyzer creates an analyzer reading baselines from the record store.
func NewAnalyzer(baselines BaselineReader) *Analyzer {
	return &Analyzer{baselines: baselines}
}

// Verify applies the primary fixed band. It fails closed when no average has
// been stored. Store errors are returned unchanged.
func (a *Analyzer) Verify(ctx context.Context, email string, duration float64) (bool, error) {
	avg, err := a.average(ctx, email)
	if err != nil || avg == nil {
		return false, err
	}
	return Primary.Accept(*avg, duration), nil
}

// VerifyRecovery applies the proportional band used during step-up. The
// typed text must be the phrase itself, ignoring surrounding whitespace.
func (a *Analyzer) VerifyRecovery(ctx context.Context, email string, duration float64, typed string) (bool, error) {
	avg, err := a.average(ctx, email)
	if err != nil || avg == nil {
		return false, err
	}
	if strings.TrimSpace(typed) != Phrase {
		return false, nil
	}
	return Recovery.Accept(*avg, duration), nil
}

func (a *Analyzer) average(ctx context.Context, email string) (*float64, error) {
	_, avg, err := a.baselines.TypingBaseline(ctx, email)
	if err != nil {
		return nil, err
	}
	if avg == nil || math.IsNaN(*avg) {
		return nil, nil
	}
	return avg, nil
}

func usable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
