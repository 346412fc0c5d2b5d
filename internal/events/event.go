// Package events carries engagement events from the coordinator to an
// event stream. Publishing is best effort: the engagement has already
// committed by the time an event exists.
package events

import (
	"context"
	"errors"
	"time"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeEngagementApplied is emitted after an engagement commits.
	EventTypeEngagementApplied = "totem.engagement.applied"
)

// ErrNilEvent indicates a nil event was handed to a publisher.
var ErrNilEvent = errors.New("nil engagement event")

// EngagementEvent is a transport-neutral payload for one committed
// like, unlike, relike or refresh.
type EngagementEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`

	DocumentID string  `json:"document_id"`
	Version    int64   `json:"document_version"`
	AnswerID   string  `json:"answer_id"`
	Totem      string  `json:"totem"`
	SubjectID  string  `json:"subject_id"`
	Outcome    string  `json:"outcome"`
	Score      float64 `json:"score"`
	Active     int     `json:"active_count"`
}

// Publisher publishes engagement events to a stream backend.
type Publisher interface {
	PublishEngagement(ctx context.Context, event *EngagementEvent) error
	Close() error
}
