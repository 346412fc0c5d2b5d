package engine

import (
	"fmt"
	"strings"
)

// Subjects selects which engagement records contribute to a score.
type Subjects string

const (
	SubjectsActive Subjects = "active" // only currently endorsing subjects
	SubjectsAll    Subjects = "all"    // every record, active or not
)

// Anchor selects the timestamp a record's decay is measured from.
type Anchor string

const (
	AnchorFirstEngaged   Anchor = "first_engaged"
	AnchorLastTransition Anchor = "last_transition"
)

// Relike selects what happens to FirstEngagedAt when an inactive record
// becomes active again.
type Relike string

const (
	RelikePreserve Relike = "preserve" // keep the original engagement time
	RelikeReset    Relike = "reset"    // start the decay window over
)

// Policy is the scoring and lifecycle policy. Historical variants of the
// engagement rules disagree on all three choices, so they are explicit.
type Policy struct {
	Subjects Subjects
	Anchor   Anchor
	Relike   Relike
}

var (
	// PolicyActiveOnly scores active records from their first engagement and
	// keeps that origin across a relike. This is the default.
	PolicyActiveOnly = Policy{Subjects: SubjectsActive, Anchor: AnchorFirstEngaged, Relike: RelikePreserve}

	// PolicyAllRecords scores every record regardless of state, so an
	// unlike does not erase the freshness a subject once contributed.
	PolicyAllRecords = Policy{Subjects: SubjectsAll, Anchor: AnchorFirstEngaged, Relike: RelikePreserve}
)

// DefaultPolicy returns PolicyActiveOnly.
func DefaultPolicy() Policy {
	return PolicyActiveOnly
}

// ParsePolicy builds a Policy from its string settings. Empty values fall
// back to the default policy's choice.
func ParsePolicy(subjects, anchor, relike string) (Policy, error) {
	p := DefaultPolicy()

	switch s := Subjects(strings.ToLower(strings.TrimSpace(subjects))); s {
	case "":
	case SubjectsActive, SubjectsAll:
		p.Subjects = s
	default:
		return Policy{}, fmt.Errorf("%w: unknown subjects policy %q", ErrInvalidInput, subjects)
	}

	switch a := Anchor(strings.ToLower(strings.TrimSpace(anchor))); a {
	case "":
	case AnchorFirstEngaged, AnchorLastTransition:
		p.Anchor = a
	default:
		return Policy{}, fmt.Errorf("%w: unknown anchor policy %q", ErrInvalidInput, anchor)
	}

	switch r := Relike(strings.ToLower(strings.TrimSpace(relike))); r {
	case "":
	case RelikePreserve, RelikeReset:
		p.Relike = r
	default:
		return Policy{}, fmt.Errorf("%w: unknown relike policy %q", ErrInvalidInput, relike)
	}

	return p, nil
}

func (p Policy) String() string {
	return fmt.Sprintf("subjects=%s anchor=%s relike=%s", p.Subjects, p.Anchor, p.Relike)
}
