// Package engine implements totem engagement: the like/unlike lifecycle,
// decay scoring, answer similarity clustering, and the coordinator that
// applies them to stored documents under optimistic transactions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/totemic/internal/events"
	"github.com/lazypower/totemic/internal/logger"
	"github.com/lazypower/totemic/internal/store"
)

// RelationsMode selects when totem relationships are recomputed after a
// write.
type RelationsMode string

const (
	RelationsSync     RelationsMode = "sync"     // inside the engagement transaction
	RelationsDeferred RelationsMode = "deferred" // handed to a RelationsScheduler
	RelationsOff      RelationsMode = "off"
)

// ParseRelationsMode accepts a mode name in any case. Empty means sync.
func ParseRelationsMode(s string) (RelationsMode, error) {
	switch m := RelationsMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return RelationsSync, nil
	case RelationsSync, RelationsDeferred, RelationsOff:
		return m, nil
	}
	return "", fmt.Errorf("%w: unknown relations mode %q", ErrInvalidInput, s)
}

// RelationsScheduler queues a background relationship recompute. Enqueue
// reports whether the document was accepted.
type RelationsScheduler interface {
	Enqueue(documentID string) bool
}

const (
	DefaultMaxAttempts = 5
	defaultBackoffBase = 10 * time.Millisecond
	defaultBackoffMax  = 200 * time.Millisecond
)

// Coordinator applies engagements to documents. Each call is one
// read-modify-write transaction, retried on optimistic conflicts.
type Coordinator struct {
	store     store.Store
	log       *zap.Logger
	now       func() time.Time
	policy    Policy
	relations RelationsMode
	cluster   ClusterOptions
	publisher events.Publisher
	model     store.DecayModel

	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration

	mu        sync.RWMutex
	scheduler RelationsScheduler
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.log = logger.OrNop(l) }
}

// WithPolicy sets the scoring and relike policy.
func WithPolicy(p Policy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithRelations sets when relationships are recomputed.
func WithRelations(m RelationsMode) Option {
	return func(c *Coordinator) { c.relations = m }
}

// WithClusterOptions tunes the similarity pass.
func WithClusterOptions(o ClusterOptions) Option {
	return func(c *Coordinator) { c.cluster = o.withDefaults() }
}

// WithPublisher sets where engagement events go.
func WithPublisher(p events.Publisher) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.publisher = p
		}
	}
}

// WithDefaultDecayModel sets the model for totems created without one.
func WithDefaultDecayModel(m store.DecayModel) Option {
	return func(c *Coordinator) { c.model = m }
}

// WithMaxAttempts bounds how many times a conflicting transaction runs.
func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff sets the first and the largest wait between attempts.
func WithBackoff(base, maxWait time.Duration) Option {
	return func(c *Coordinator) {
		if base > 0 {
			c.backoffBase = base
		}
		if maxWait > 0 {
			c.backoffMax = maxWait
		}
	}
}

// NewCoordinator creates a coordinator over s.
func NewCoordinator(s store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       s,
		log:         zap.NewNop(),
		now:         time.Now,
		policy:      DefaultPolicy(),
		relations:   RelationsSync,
		cluster:     DefaultClusterOptions(),
		publisher:   events.NewNopPublisher(),
		model:       store.DecayMedium,
		maxAttempts: DefaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		backoffMax:  defaultBackoffMax,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetRelationsScheduler configures the deferred recompute queue.
func (c *Coordinator) SetRelationsScheduler(s RelationsScheduler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduler = s
}

// Policy returns the policy in effect.
func (c *Coordinator) Policy() Policy {
	return c.policy
}

// Request asks for one engagement action. AnswerID may be empty, in which
// case the first answer carrying the totem is used; creating a new totem
// needs an explicit answer.
type Request struct {
	DocumentID string
	AnswerID   string
	TotemName  string
	SubjectID  string
	Action     Action

	// DecayModel applies only when the like creates the totem.
	DecayModel store.DecayModel
}

// Result is a committed engagement.
type Result struct {
	Document *store.Document
	AnswerID string
	Totem    store.Totem
	Outcome  Outcome
	Attempts int
}

func (r Request) validate() error {
	switch {
	case r.DocumentID == "":
		return fmt.Errorf("%w: document id required", ErrInvalidInput)
	case store.NormalizeName(r.TotemName) == "":
		return fmt.Errorf("%w: totem name required", ErrInvalidInput)
	case strings.TrimSpace(r.SubjectID) == "":
		return fmt.Errorf("%w: subject id required", ErrInvalidInput)
	}
	switch r.Action {
	case ActionLike, ActionUnlike, ActionRefresh:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidInput, r.Action)
	}
	if r.DecayModel != "" {
		if _, err := store.ParseDecayModel(string(r.DecayModel)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return nil
}

// Apply runs one engagement action. The record transition, the new score
// and, in sync mode, the relationship graph are written in a single
// transaction. Transition and lookup errors abort without writing and are
// never retried.
func (c *Coordinator) Apply(ctx context.Context, req Request) (*Result, error) {
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	req.AnswerID = strings.TrimSpace(req.AnswerID)
	if err := req.validate(); err != nil {
		return nil, wrapErr("apply", req.DocumentID, err)
	}
	subject := strings.TrimSpace(req.SubjectID)

	var res *Result
	attempts, err := c.transact(ctx, "apply", req.DocumentID, func(ctx context.Context, tx store.Tx) error {
		res = nil
		now := c.now()

		doc, err := c.read(ctx, tx, req.DocumentID)
		if err != nil {
			return err
		}

		answer, totem, err := c.locate(doc, req, now)
		if err != nil {
			return err
		}

		records, outcome, err := Transition(totem.EngagementRecords, subject, req.Action, now, c.policy)
		if err != nil {
			return fmt.Errorf("%s %q: %w", req.Action, totem.Name, err)
		}
		if err := c.rescore(totem, records, now); err != nil {
			return err
		}
		if outcome == OutcomeNew || outcome == OutcomeRelike {
			totem.TotalEngagements++
		}

		if c.relations == RelationsSync {
			ApplyRelations(doc, c.cluster)
		}
		if err := tx.Set(ctx, doc); err != nil {
			return err
		}

		res = &Result{
			Document: doc,
			AnswerID: answer.ID,
			Totem:    *totem,
			Outcome:  outcome,
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("apply", req.DocumentID, err)
	}

	res.Attempts = attempts

	c.log.Debug("engagement applied",
		zap.String("document_id", req.DocumentID),
		zap.String("totem", res.Totem.Name),
		zap.String("subject_id", subject),
		zap.String("action", string(req.Action)),
		zap.String("outcome", string(res.Outcome)),
		zap.Float64("score", res.Totem.Score),
		zap.Int("attempt", attempts),
	)

	c.publish(ctx, req, subject, res)
	c.deferRelations(req.DocumentID)
	return res, nil
}

// locate finds the target answer and totem, creating the totem on a like.
func (c *Coordinator) locate(doc *store.Document, req Request, now time.Time) (*store.Answer, *store.Totem, error) {
	var answer *store.Answer
	var totem *store.Totem

	if req.AnswerID != "" {
		answer = doc.Answer(req.AnswerID)
		if answer == nil {
			return nil, nil, fmt.Errorf("%w: answer %s", ErrNotFound, req.AnswerID)
		}
		totem = answer.Totem(req.TotemName)
	} else {
		answer, totem = doc.FindTotem(req.TotemName)
	}

	if totem != nil {
		return answer, totem, nil
	}
	if req.Action != ActionLike || answer == nil {
		return nil, nil, fmt.Errorf("%w: totem %q", ErrNotFound, store.NormalizeName(req.TotemName))
	}

	model := req.DecayModel
	if model == "" {
		model = c.model
	}
	return answer, answer.AddTotem(req.TotemName, model, now), nil
}

// rescore installs records on t and refreshes every derived field.
func (c *Coordinator) rescore(t *store.Totem, records []store.EngagementRecord, now time.Time) error {
	score, err := Score(records, t.DecayModel, now, c.policy)
	if err != nil {
		return fmt.Errorf("score %q: %w", t.Name, err)
	}
	t.EngagementRecords = records
	t.Score = score
	t.ActiveCount = ActiveCount(records)
	t.UpdatedAt = now
	return nil
}

func (c *Coordinator) read(ctx context.Context, tx store.Tx, id string) (*store.Document, error) {
	doc, err := tx.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return doc, err
}

// transact runs fn in a store transaction, retrying with exponential
// backoff while the store reports conflicts. It returns how many attempts
// ran.
func (c *Coordinator) transact(ctx context.Context, op, documentID string, fn func(ctx context.Context, tx store.Tx) error) (int, error) {
	attempts := 0

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.backoffBase
	b.MaxInterval = c.backoffMax

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := c.store.RunTransaction(ctx, fn)
		if err != nil && !store.IsConflict(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(c.maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.log.Debug("transaction conflict, retrying",
				zap.String("op", op),
				zap.String("document_id", documentID),
				zap.Int("attempt", attempts),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}),
	)
	if err == nil {
		return attempts, nil
	}
	if store.IsConflict(err) {
		c.log.Warn("retry budget exhausted",
			zap.String("op", op),
			zap.String("document_id", documentID),
			zap.Int("attempt", attempts),
		)
		return attempts, fmt.Errorf("%w after %d attempts: %v", ErrContention, attempts, err)
	}
	return attempts, err
}

func (c *Coordinator) publish(ctx context.Context, req Request, subject string, res *Result) {
	if c.publisher == nil {
		return
	}
	event := &events.EngagementEvent{
		SchemaVersion: events.SchemaVersionV1,
		EventType:     events.EventTypeEngagementApplied,
		EventID:       uuid.NewString(),
		EmittedAt:     c.now(),
		DocumentID:    req.DocumentID,
		Version:       res.Document.Version,
		AnswerID:      res.AnswerID,
		Totem:         res.Totem.Name,
		SubjectID:     subject,
		Outcome:       string(res.Outcome),
		Score:         res.Totem.Score,
		Active:        res.Totem.ActiveCount,
	}
	if err := c.publisher.PublishEngagement(ctx, event); err != nil {
		c.log.Warn("publish engagement event",
			zap.String("document_id", req.DocumentID),
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) deferRelations(documentID string) {
	if c.relations != RelationsDeferred {
		return
	}
	c.mu.RLock()
	s := c.scheduler
	c.mu.RUnlock()
	if s == nil {
		c.log.Debug("no relations scheduler, skipping recompute", zap.String("document_id", documentID))
		return
	}
	s.Enqueue(documentID)
}
