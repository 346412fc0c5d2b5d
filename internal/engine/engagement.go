package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/lazypower/totemic/internal/store"
)

// Action is what a subject asks to do with a totem.
type Action string

const (
	ActionLike    Action = "like"
	ActionUnlike  Action = "unlike"
	ActionRefresh Action = "refresh"
)

// ParseAction accepts an action name in any case.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionLike, ActionUnlike, ActionRefresh:
		return a, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, s)
}

// Outcome tags a successful transition.
type Outcome string

const (
	OutcomeNew     Outcome = "new"
	OutcomeRelike  Outcome = "relike"
	OutcomeUnlike  Outcome = "unlike"
	OutcomeRefresh Outcome = "refresh"
)

// State is a subject's engagement state on one totem.
type State int

const (
	StateNoRecord State = iota
	StateActive
	StateInactive
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	default:
		return "no-record"
	}
}

// StateOf finds the subject's record and state. It fails if the subject
// has more than one record.
func StateOf(records []store.EngagementRecord, subjectID string) (int, State, error) {
	idx := -1
	for i := range records {
		if records[i].SubjectID != subjectID {
			continue
		}
		if idx >= 0 {
			return -1, StateNoRecord, fmt.Errorf("%w: subject %s has duplicate engagement records", ErrIntegrity, subjectID)
		}
		idx = i
	}

	switch {
	case idx < 0:
		return -1, StateNoRecord, nil
	case records[idx].Active:
		return idx, StateActive, nil
	default:
		return idx, StateInactive, nil
	}
}

// Transition applies action for subjectID and returns a new record slice.
// The input is never modified. Illegal transitions return a typed error
// and no records.
//
//	NoRecord --like-->    Active    (new)
//	Active   --unlike-->  Inactive  (unlike)
//	Inactive --like-->    Active    (relike)
//	Active   --refresh--> Active    (refresh)
//
// Everything else is an error.
func Transition(records []store.EngagementRecord, subjectID string, action Action, now time.Time, p Policy) ([]store.EngagementRecord, Outcome, error) {
	idx, state, err := StateOf(records, subjectID)
	if err != nil {
		return nil, "", err
	}

	out := make([]store.EngagementRecord, len(records), len(records)+1)
	copy(out, records)

	switch action {
	case ActionLike:
		switch state {
		case StateNoRecord:
			out = append(out, store.EngagementRecord{
				SubjectID:        subjectID,
				FirstEngagedAt:   now,
				LastTransitionAt: now,
				Active:           true,
				Weight:           1,
			})
			return out, OutcomeNew, nil
		case StateInactive:
			rec := &out[idx]
			rec.Active = true
			rec.LastTransitionAt = now
			if p.Relike == RelikeReset {
				rec.FirstEngagedAt = now
			}
			return out, OutcomeRelike, nil
		default:
			return nil, "", fmt.Errorf("%w: subject %s", ErrAlreadyEngaged, subjectID)
		}

	case ActionUnlike:
		switch state {
		case StateActive:
			rec := &out[idx]
			rec.Active = false
			rec.LastTransitionAt = now
			return out, OutcomeUnlike, nil
		case StateInactive:
			return nil, "", fmt.Errorf("%w: subject %s", ErrNotEngaged, subjectID)
		default:
			return nil, "", fmt.Errorf("%w: no engagement for subject %s", ErrNotFound, subjectID)
		}

	case ActionRefresh:
		switch state {
		case StateActive:
			// Both timestamps move so the decay restarts under either anchor.
			rec := &out[idx]
			rec.FirstEngagedAt = now
			rec.LastTransitionAt = now
			return out, OutcomeRefresh, nil
		case StateInactive:
			return nil, "", fmt.Errorf("%w: cannot refresh for subject %s", ErrNotEngaged, subjectID)
		default:
			return nil, "", fmt.Errorf("%w: no engagement to refresh for subject %s", ErrNotFound, subjectID)
		}
	}

	return nil, "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action)
}

// ActiveCount returns how many records are currently active.
func ActiveCount(records []store.EngagementRecord) int {
	n := 0
	for _, r := range records {
		if r.Active {
			n++
		}
	}
	return n
}
