package events

import "context"

// NopPublisher drops every event. It is used in tests and when no stream
// is configured.
type NopPublisher struct{}

// NewNopPublisher creates a no-op publisher.
func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}

// PublishEngagement validates input and otherwise does nothing.
func (p *NopPublisher) PublishEngagement(_ context.Context, event *EngagementEvent) error {
	if event == nil {
		return ErrNilEvent
	}
	return nil
}

// Close is a no-op.
func (p *NopPublisher) Close() error {
	return nil
}
