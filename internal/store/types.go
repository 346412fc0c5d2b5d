package store

import (
	"fmt"
	"strings"
	"time"
)

// DecayModel names how fast a totem's endorsements go stale.
type DecayModel string

const (
	DecayFast   DecayModel = "fast"   // 7 days
	DecayMedium DecayModel = "medium" // 365 days
	DecayNone   DecayModel = "none"   // never decays
)

// ParseDecayModel accepts the model name in any case.
func ParseDecayModel(s string) (DecayModel, error) {
	switch m := DecayModel(strings.ToLower(strings.TrimSpace(s))); m {
	case DecayFast, DecayMedium, DecayNone:
		return m, nil
	}
	return "", fmt.Errorf("unknown decay model %q", s)
}

// EngagementRecord is one subject's endorsement of one totem.
type EngagementRecord struct {
	SubjectID        string    `json:"subject_id"`
	FirstEngagedAt   time.Time `json:"first_engaged_at"`
	LastTransitionAt time.Time `json:"last_transition_at"`
	Active           bool      `json:"active"`
	Weight           float64   `json:"weight"`
}

// Totem is a label on an answer that other users can endorse.
// Score is a cache of the decay scorer over EngagementRecords.
type Totem struct {
	Name              string             `json:"name"`
	DecayModel        DecayModel         `json:"decay_model"`
	Score             float64            `json:"score"`
	EngagementRecords []EngagementRecord `json:"engagement_records"`
	RelatedTotemNames []string           `json:"related_totem_names,omitempty"`

	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	ActiveCount      int       `json:"active_count"`
	TotalEngagements int       `json:"total_engagements"`
}

// Answer is free text plus the totems attached to it.
type Answer struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Totems []Totem `json:"totems"`
}

// Document is the unit of storage and of transactional isolation: a post
// with all its answers, totems and engagement records.
type Document struct {
	ID        string    `json:"id"`
	Answers   []Answer  `json:"answers"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeName returns the canonical form of a totem name: trimmed,
// lowercased, inner whitespace collapsed to single spaces.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Answer returns the answer with the given id, or nil.
func (d *Document) Answer(id string) *Answer {
	for i := range d.Answers {
		if d.Answers[i].ID == id {
			return &d.Answers[i]
		}
	}
	return nil
}

// FindTotem returns the first answer carrying a totem with the given name.
func (d *Document) FindTotem(name string) (*Answer, *Totem) {
	for i := range d.Answers {
		if t := d.Answers[i].Totem(name); t != nil {
			return &d.Answers[i], t
		}
	}
	return nil, nil
}

// Totem looks up a totem by name, case-insensitively.
func (a *Answer) Totem(name string) *Totem {
	key := NormalizeName(name)
	for i := range a.Totems {
		if NormalizeName(a.Totems[i].Name) == key {
			return &a.Totems[i]
		}
	}
	return nil
}

// AddTotem appends a new totem and returns a pointer to it. If a totem with
// the same canonical name exists, that one is returned instead.
func (a *Answer) AddTotem(name string, model DecayModel, now time.Time) *Totem {
	if t := a.Totem(name); t != nil {
		return t
	}
	a.Totems = append(a.Totems, Totem{
		Name:       NormalizeName(name),
		DecayModel: model,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	return &a.Totems[len(a.Totems)-1]
}

// TotemNames returns the canonical names of the answer's totems, in order.
func (a *Answer) TotemNames() []string {
	names := make([]string, 0, len(a.Totems))
	for _, t := range a.Totems {
		names = append(names, NormalizeName(t.Name))
	}
	return names
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Answers = make([]Answer, len(d.Answers))
	for i, a := range d.Answers {
		out.Answers[i] = a
		out.Answers[i].Totems = make([]Totem, len(a.Totems))
		for j, t := range a.Totems {
			t.EngagementRecords = append([]EngagementRecord(nil), t.EngagementRecords...)
			t.RelatedTotemNames = append([]string(nil), t.RelatedTotemNames...)
			out.Answers[i].Totems[j] = t
		}
	}
	return &out
}
