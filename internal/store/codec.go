package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// encode stamps the version and timestamps a committed write will carry and
// serializes the result.
func encode(w pendingWrite, now time.Time) (*Document, []byte, error) {
	doc := w.doc.Clone()
	stamp(doc, w.version+1, now)
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	return doc, body, nil
}

func stamp(doc *Document, version int64, now time.Time) {
	doc.Version = version
	doc.UpdatedAt = now
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
}

func decode(id string, body []byte, version int64) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", id, err)
	}
	doc.Version = version
	return &doc, nil
}
