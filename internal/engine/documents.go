package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/totemic/internal/store"
)

// TotemInput names a totem to attach when an answer is created.
type TotemInput struct {
	Name       string           `json:"name"`
	DecayModel store.DecayModel `json:"decay_model,omitempty"`
}

// AnswerInput is a new answer. An empty ID gets a generated one.
type AnswerInput struct {
	ID     string       `json:"id,omitempty"`
	Text   string       `json:"text"`
	Totems []TotemInput `json:"totems,omitempty"`
}

// DocumentInput is a new document. An empty ID gets a generated one.
type DocumentInput struct {
	ID      string        `json:"id,omitempty"`
	Answers []AnswerInput `json:"answers"`
}

// Get returns the stored document.
func (c *Coordinator) Get(ctx context.Context, documentID string) (*store.Document, error) {
	documentID = strings.TrimSpace(documentID)
	doc, err := c.store.Get(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, wrapErr("get", documentID, fmt.Errorf("%w: document %s", ErrNotFound, documentID))
	}
	if err != nil {
		return nil, wrapErr("get", documentID, err)
	}
	return doc, nil
}

// CreateDocument stores a new document. Totem names on each answer are
// normalized and deduplicated.
func (c *Coordinator) CreateDocument(ctx context.Context, in DocumentInput) (*store.Document, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}

	var created *store.Document
	_, err := c.transact(ctx, "create", id, func(ctx context.Context, tx store.Tx) error {
		created = nil
		now := c.now()

		if _, err := tx.Get(ctx, id); err == nil {
			return fmt.Errorf("%w: document %s", ErrExists, id)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		doc := &store.Document{ID: id, CreatedAt: now}
		for _, a := range in.Answers {
			if _, err := c.appendAnswer(doc, a); err != nil {
				return err
			}
		}
		if c.relations == RelationsSync {
			ApplyRelations(doc, c.cluster)
		}
		if err := tx.Set(ctx, doc); err != nil {
			return err
		}
		created = doc
		return nil
	})
	if err != nil {
		return nil, wrapErr("create", id, err)
	}

	c.log.Debug("document created", zap.String("document_id", id), zap.Int("answers", len(created.Answers)))
	c.deferRelations(id)
	return created, nil
}

// AddAnswer appends an answer to an existing document and returns the
// updated document and the new answer's id.
func (c *Coordinator) AddAnswer(ctx context.Context, documentID string, in AnswerInput) (*store.Document, string, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, "", wrapErr("add answer", documentID, fmt.Errorf("%w: document id required", ErrInvalidInput))
	}

	var (
		updated  *store.Document
		answerID string
	)
	_, err := c.transact(ctx, "add answer", documentID, func(ctx context.Context, tx store.Tx) error {
		updated, answerID = nil, ""

		doc, err := c.read(ctx, tx, documentID)
		if err != nil {
			return err
		}
		id, err := c.appendAnswer(doc, in)
		if err != nil {
			return err
		}
		if c.relations == RelationsSync {
			ApplyRelations(doc, c.cluster)
		}
		if err := tx.Set(ctx, doc); err != nil {
			return err
		}
		updated, answerID = doc, id
		return nil
	})
	if err != nil {
		return nil, "", wrapErr("add answer", documentID, err)
	}

	c.deferRelations(documentID)
	return updated, answerID, nil
}

func (c *Coordinator) appendAnswer(doc *store.Document, in AnswerInput) (string, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.NewString()
	}
	if doc.Answer(id) != nil {
		return "", fmt.Errorf("%w: answer %s already exists", ErrInvalidInput, id)
	}

	now := c.now()
	answer := store.Answer{ID: id, Text: in.Text}
	for _, t := range in.Totems {
		if store.NormalizeName(t.Name) == "" {
			return "", fmt.Errorf("%w: empty totem name on answer %s", ErrInvalidInput, id)
		}
		model := c.model
		if t.DecayModel != "" {
			m, err := store.ParseDecayModel(string(t.DecayModel))
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			model = m
		}
		answer.AddTotem(t.Name, model, now)
	}
	doc.Answers = append(doc.Answers, answer)
	return id, nil
}

// Rescore recomputes every cached score in the document at the current
// time. Decay advances with the clock even when nobody engages, so stored
// scores drift until rescored. Nothing is written if no score changed.
func (c *Coordinator) Rescore(ctx context.Context, documentID string) (*store.Document, error) {
	documentID = strings.TrimSpace(documentID)
	var (
		out     *store.Document
		changed int
	)
	_, err := c.transact(ctx, "rescore", documentID, func(ctx context.Context, tx store.Tx) error {
		out, changed = nil, 0
		now := c.now()

		doc, err := c.read(ctx, tx, documentID)
		if err != nil {
			return err
		}
		for i := range doc.Answers {
			for j := range doc.Answers[i].Totems {
				t := &doc.Answers[i].Totems[j]
				score, err := Score(t.EngagementRecords, t.DecayModel, now, c.policy)
				if err != nil {
					return fmt.Errorf("score %q: %w", t.Name, err)
				}
				active := ActiveCount(t.EngagementRecords)
				if score != t.Score || active != t.ActiveCount {
					t.Score = score
					t.ActiveCount = active
					changed++
				}
			}
		}

		out = doc
		if changed == 0 {
			return nil
		}
		return tx.Set(ctx, doc)
	})
	if err != nil {
		return nil, wrapErr("rescore", documentID, err)
	}

	c.log.Debug("document rescored", zap.String("document_id", documentID), zap.Int("changed", changed))
	return out, nil
}

// RecomputeRelations rebuilds the relationship graph and replaces every
// totem's related names in one transaction.
func (c *Coordinator) RecomputeRelations(ctx context.Context, documentID string) ([]Edge, error) {
	documentID = strings.TrimSpace(documentID)
	var edges []Edge
	_, err := c.transact(ctx, "relations", documentID, func(ctx context.Context, tx store.Tx) error {
		edges = nil

		doc, err := c.read(ctx, tx, documentID)
		if err != nil {
			return err
		}
		edges = ApplyRelations(doc, c.cluster)
		return tx.Set(ctx, doc)
	})
	if err != nil {
		return nil, wrapErr("relations", documentID, err)
	}

	c.log.Debug("relations recomputed", zap.String("document_id", documentID), zap.Int("edges", len(edges)))
	return edges, nil
}

// AnswerSuggestions is the ranked suggestion list for one answer.
type AnswerSuggestions struct {
	AnswerID    string       `json:"answer_id"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Suggestions computes totem suggestions from the stored document without
// writing anything. Answers with no suggestions are omitted.
func (c *Coordinator) Suggestions(ctx context.Context, documentID string) ([]AnswerSuggestions, error) {
	doc, err := c.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}

	byIndex := Suggest(doc.Answers, Cluster(doc.Answers, c.cluster))
	out := make([]AnswerSuggestions, 0, len(byIndex))
	for i := range doc.Answers {
		if list, ok := byIndex[i]; ok {
			out = append(out, AnswerSuggestions{AnswerID: doc.Answers[i].ID, Suggestions: list})
		}
	}
	return out, nil
}

// Graph computes the relationship graph from the stored document without
// writing anything.
func (c *Coordinator) Graph(ctx context.Context, documentID string) ([]Edge, error) {
	doc, err := c.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return BuildGraph(doc.Answers, Cluster(doc.Answers, c.cluster)), nil
}
