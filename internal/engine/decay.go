package engine

// Crispness scoring:
//   - Each record's freshness falls linearly from 100 at its anchor time to
//     0 at the end of the decay period (7 days fast, 365 days medium).
//     "none" never decays: freshness is 100.
//   - The score is the weight-averaged freshness over the records the
//     policy selects (active only, or all). No records scores 0.
//   - One record is scored like any other set; there is no special case.
//   - Output is clamped to [0, 100] and rounded to two decimals, so the
//     score is reproducible and independent of record order.

import (
	"fmt"
	"math"
	"time"

	"github.com/lazypower/totemic/internal/store"
)

const (
	fastPeriod   = 7 * 24 * time.Hour
	mediumPeriod = 365 * 24 * time.Hour

	maxScore = 100.0
)

// DecayPeriod returns how long a record takes to go fully stale under the
// model. ok is false for "none", which never decays.
func DecayPeriod(model store.DecayModel) (period time.Duration, ok bool, err error) {
	switch model {
	case store.DecayFast:
		return fastPeriod, true, nil
	case store.DecayMedium:
		return mediumPeriod, true, nil
	case store.DecayNone:
		return 0, false, nil
	}
	return 0, false, fmt.Errorf("%w: unknown decay model %q", ErrIntegrity, model)
}

// Freshness is one record's 0-100 freshness at now.
func Freshness(rec store.EngagementRecord, model store.DecayModel, now time.Time, anchor Anchor) (float64, error) {
	period, decays, err := DecayPeriod(model)
	if err != nil {
		return 0, err
	}

	ref, err := anchorTime(rec, anchor)
	if err != nil {
		return 0, err
	}
	if !decays {
		return maxScore, nil
	}

	age := now.Sub(ref)
	if age < 0 {
		age = 0
	}
	f := maxScore * (1 - float64(age)/float64(period))
	return clamp(f), nil
}

// Score computes the crispness of a record set under the policy.
func Score(records []store.EngagementRecord, model store.DecayModel, now time.Time, p Policy) (float64, error) {
	var sum, weights float64
	for _, rec := range records {
		if p.Subjects != SubjectsAll && !rec.Active {
			continue
		}
		if rec.Weight < 0 || math.IsNaN(rec.Weight) || math.IsInf(rec.Weight, 0) {
			return 0, fmt.Errorf("%w: subject %s has weight %v", ErrIntegrity, rec.SubjectID, rec.Weight)
		}

		f, err := Freshness(rec, model, now, p.Anchor)
		if err != nil {
			return 0, err
		}
		sum += f * rec.Weight
		weights += rec.Weight
	}

	// The model is validated even when nothing qualifies.
	if _, _, err := DecayPeriod(model); err != nil {
		return 0, err
	}
	if weights == 0 {
		return 0, nil
	}
	return round2(clamp(sum / weights)), nil
}

func anchorTime(rec store.EngagementRecord, anchor Anchor) (time.Time, error) {
	ref := rec.FirstEngagedAt
	if anchor == AnchorLastTransition {
		ref = rec.LastTransitionAt
	}
	if ref.IsZero() {
		return time.Time{}, fmt.Errorf("%w: subject %s has no %s timestamp", ErrIntegrity, rec.SubjectID, anchor)
	}
	return ref, nil
}

func clamp(f float64) float64 {
	return math.Max(0, math.Min(maxScore, f))
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
