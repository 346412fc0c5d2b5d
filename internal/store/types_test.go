package store

import (
	"testing"
	"time"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Go", "go"},
		{"  SQLite  ", "sqlite"},
		{"Write  Ahead\tLog", "write ahead log"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseDecayModel(t *testing.T) {
	for _, in := range []string{"fast", "FAST", " Medium ", "none"} {
		if _, err := ParseDecayModel(in); err != nil {
			t.Errorf("ParseDecayModel(%q): %v", in, err)
		}
	}
	if _, err := ParseDecayModel("glacial"); err == nil {
		t.Error("expected error for unknown model")
	}
}

func TestAnswerTotemCaseInsensitive(t *testing.T) {
	now := time.Now()
	a := &Answer{ID: "a1"}
	first := a.AddTotem("Golang", DecayFast, now)
	second := a.AddTotem("  GOLANG ", DecayMedium, now)

	if first != second {
		t.Error("AddTotem created a duplicate for a name differing only by case")
	}
	if len(a.Totems) != 1 {
		t.Fatalf("len(Totems) = %d, want 1", len(a.Totems))
	}
	if a.Totems[0].Name != "golang" {
		t.Errorf("Name = %q, want canonical golang", a.Totems[0].Name)
	}
	if a.Totem("gOlAnG") == nil {
		t.Error("Totem lookup should ignore case")
	}
}

func TestDocumentFindTotem(t *testing.T) {
	doc := sampleDocument("doc")
	doc.Answers = append(doc.Answers, Answer{ID: "a2", Totems: []Totem{{Name: "go"}}})

	a, tot := doc.FindTotem("GO")
	if a == nil || a.ID != "a2" || tot.Name != "go" {
		t.Fatalf("FindTotem = %v, %v", a, tot)
	}
	if a, _ := doc.FindTotem("rust"); a != nil {
		t.Error("expected nil for missing totem")
	}
	if doc.Answer("nope") != nil {
		t.Error("expected nil for missing answer")
	}
}

func TestCloneIsDeep(t *testing.T) {
	doc := sampleDocument("doc")
	doc.Answers[0].Totems[0].EngagementRecords = []EngagementRecord{{SubjectID: "u1", Active: true, Weight: 1}}
	doc.Answers[0].Totems[0].RelatedTotemNames = []string{"wal"}

	c := doc.Clone()
	c.Answers[0].Totems[0].EngagementRecords[0].Active = false
	c.Answers[0].Totems[0].RelatedTotemNames[0] = "changed"
	c.Answers[0].Text = "changed"

	orig := doc.Answers[0]
	if !orig.Totems[0].EngagementRecords[0].Active {
		t.Error("record mutation leaked through Clone")
	}
	if orig.Totems[0].RelatedTotemNames[0] != "wal" {
		t.Error("related names mutation leaked through Clone")
	}
	if orig.Text == "changed" {
		t.Error("answer mutation leaked through Clone")
	}
}
