package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/lazypower/totemic/internal/store"
)

func TestTransitionTable(t *testing.T) {
	now := t0.Add(day)
	inactive := activeAt("u1", t0)
	inactive.Active = false

	cases := []struct {
		name    string
		records []store.EngagementRecord
		action  Action
		outcome Outcome
		err     error
	}{
		{"like new", nil, ActionLike, OutcomeNew, nil},
		{"like active", []store.EngagementRecord{activeAt("u1", t0)}, ActionLike, "", ErrAlreadyEngaged},
		{"like inactive", []store.EngagementRecord{inactive}, ActionLike, OutcomeRelike, nil},
		{"unlike active", []store.EngagementRecord{activeAt("u1", t0)}, ActionUnlike, OutcomeUnlike, nil},
		{"unlike inactive", []store.EngagementRecord{inactive}, ActionUnlike, "", ErrNotEngaged},
		{"unlike missing", nil, ActionUnlike, "", ErrNotFound},
		{"refresh active", []store.EngagementRecord{activeAt("u1", t0)}, ActionRefresh, OutcomeRefresh, nil},
		{"refresh inactive", []store.EngagementRecord{inactive}, ActionRefresh, "", ErrNotEngaged},
		{"refresh missing", nil, ActionRefresh, "", ErrNotFound},
		{"unknown action", nil, Action("poke"), "", ErrInvalidInput},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, outcome, err := Transition(tc.records, "u1", tc.action, now, DefaultPolicy())
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("err = %v, want %v", err, tc.err)
				}
				if out != nil {
					t.Errorf("records returned on error: %+v", out)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if outcome != tc.outcome {
				t.Errorf("outcome = %q, want %q", outcome, tc.outcome)
			}
			if n := countSubject(out, "u1"); n != 1 {
				t.Errorf("u1 has %d records, want 1", n)
			}
		})
	}
}

func countSubject(records []store.EngagementRecord, subject string) int {
	n := 0
	for _, r := range records {
		if r.SubjectID == subject {
			n++
		}
	}
	return n
}

func TestLikeNewRecord(t *testing.T) {
	out, _, err := Transition(nil, "u1", ActionLike, t0, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	rec := out[0]
	if !rec.Active || rec.Weight != 1 || !rec.FirstEngagedAt.Equal(t0) || !rec.LastTransitionAt.Equal(t0) {
		t.Errorf("new record = %+v", rec)
	}
}

func TestUnlikeKeepsFirstEngaged(t *testing.T) {
	now := t0.Add(2 * day)
	out, _, err := Transition([]store.EngagementRecord{activeAt("u1", t0)}, "u1", ActionUnlike, now, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Active || !out[0].FirstEngagedAt.Equal(t0) || !out[0].LastTransitionAt.Equal(now) {
		t.Errorf("record after unlike = %+v", out[0])
	}
}

func TestRelikePolicy(t *testing.T) {
	inactive := activeAt("u1", t0)
	inactive.Active = false
	now := t0.Add(3 * day)

	kept, _, err := Transition([]store.EngagementRecord{inactive}, "u1", ActionLike, now, Policy{Relike: RelikePreserve})
	if err != nil {
		t.Fatal(err)
	}
	if !kept[0].FirstEngagedAt.Equal(t0) || !kept[0].LastTransitionAt.Equal(now) || !kept[0].Active {
		t.Errorf("preserve: %+v", kept[0])
	}

	reset, _, err := Transition([]store.EngagementRecord{inactive}, "u1", ActionLike, now, Policy{Relike: RelikeReset})
	if err != nil {
		t.Fatal(err)
	}
	if !reset[0].FirstEngagedAt.Equal(now) {
		t.Errorf("reset: FirstEngagedAt = %v, want %v", reset[0].FirstEngagedAt, now)
	}
}

func TestRefreshMovesAnchor(t *testing.T) {
	now := t0.Add(5 * day)
	out, _, err := Transition([]store.EngagementRecord{activeAt("u1", t0)}, "u1", ActionRefresh, now, DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if !out[0].FirstEngagedAt.Equal(now) || !out[0].LastTransitionAt.Equal(now) || !out[0].Active {
		t.Errorf("record after refresh = %+v", out[0])
	}
}

func TestTransitionDoesNotMutateInput(t *testing.T) {
	in := []store.EngagementRecord{activeAt("u1", t0), activeAt("u2", t0)}
	if _, _, err := Transition(in, "u1", ActionUnlike, t0.Add(day), DefaultPolicy()); err != nil {
		t.Fatal(err)
	}
	if !in[0].Active || !in[0].LastTransitionAt.Equal(t0) {
		t.Errorf("input mutated: %+v", in[0])
	}
}

func TestTransitionOtherSubjectsUntouched(t *testing.T) {
	in := []store.EngagementRecord{activeAt("u1", t0), activeAt("u2", t0)}
	out, outcome, err := Transition(in, "u3", ActionLike, t0.Add(day), DefaultPolicy())
	if err != nil {
		t.Fatal(err)
	}
	if outcome != OutcomeNew || len(out) != 3 {
		t.Fatalf("outcome = %q, len = %d", outcome, len(out))
	}
	if out[0] != in[0] || out[1] != in[1] {
		t.Error("other subjects' records changed")
	}
}

func TestUnlikeRelikeCycleKeepsOneRecord(t *testing.T) {
	var records []store.EngagementRecord
	actions := []Action{ActionLike, ActionUnlike, ActionLike, ActionUnlike, ActionLike, ActionRefresh}
	for i, a := range actions {
		var err error
		records, _, err = Transition(records, "u1", a, t0.Add(time.Duration(i)*time.Hour), DefaultPolicy())
		if err != nil {
			t.Fatalf("step %d (%s): %v", i, a, err)
		}
		if len(records) != 1 {
			t.Fatalf("step %d: %d records, want 1", i, len(records))
		}
	}
	if ActiveCount(records) != 1 {
		t.Errorf("ActiveCount = %d, want 1", ActiveCount(records))
	}
}

func TestDuplicateSubjectIsIntegrityError(t *testing.T) {
	in := []store.EngagementRecord{activeAt("u1", t0), activeAt("u1", t0)}
	if _, _, err := StateOf(in, "u1"); !errors.Is(err, ErrIntegrity) {
		t.Errorf("StateOf err = %v, want ErrIntegrity", err)
	}
	if _, _, err := Transition(in, "u1", ActionUnlike, t0, DefaultPolicy()); !errors.Is(err, ErrIntegrity) {
		t.Errorf("Transition err = %v, want ErrIntegrity", err)
	}
}

func TestParseAction(t *testing.T) {
	if a, err := ParseAction(" LIKE "); err != nil || a != ActionLike {
		t.Errorf("ParseAction = %q, %v", a, err)
	}
	if _, err := ParseAction("boost"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("", "", "")
	if err != nil || p != DefaultPolicy() {
		t.Errorf("empty = %v, %v", p, err)
	}
	p, err = ParsePolicy("ALL", "last_transition", "reset")
	if err != nil {
		t.Fatal(err)
	}
	if p.Subjects != SubjectsAll || p.Anchor != AnchorLastTransition || p.Relike != RelikeReset {
		t.Errorf("parsed = %v", p)
	}
	if _, err := ParsePolicy("some", "", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v", err)
	}
}
