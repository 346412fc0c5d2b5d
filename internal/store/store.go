// Package store holds the document model and the transactional document
// stores the engagement engine runs against.
//
// Every backend offers the same optimistic contract: a transaction reads
// documents, buffers writes, and on commit verifies that no document it read
// has changed since. If one has, the commit fails with ErrConflict and
// nothing is written.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a document doesn't exist.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned when a transaction lost an optimistic race.
	// It is the only store error worth retrying.
	ErrConflict = errors.New("transaction conflict")
)

// Store is a transactional document store.
type Store interface {
	// Get reads a committed document outside any transaction.
	Get(ctx context.Context, id string) (*Document, error)

	// RunTransaction runs fn once. If fn returns nil the buffered writes are
	// committed atomically; otherwise they are discarded and fn's error is
	// returned. Retrying on ErrConflict is the caller's business. After a
	// commit, every document passed to Tx.Set carries the committed version
	// and timestamps.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Close releases the backend's resources.
	Close() error
}

// Tx is the view of the store inside a transaction.
type Tx interface {
	// Get returns a private copy of the document. A document read twice in
	// one transaction must not have changed in between.
	Get(ctx context.Context, id string) (*Document, error)

	// Set buffers a full replacement of the document.
	Set(ctx context.Context, doc *Document) error
}

// pendingWrite is a buffered document together with the version the
// transaction observed for it. Version 0 means "must not exist yet".
type pendingWrite struct {
	doc     *Document
	version int64
}

// backend is what each concrete store implements; txn does the rest.
type backend interface {
	load(ctx context.Context, id string) (*Document, int64, error)
	commit(ctx context.Context, writes []pendingWrite, now time.Time) error
}

type txn struct {
	b      backend
	reads  map[string]int64
	writes map[string]*Document
	origin map[string]*Document
	order  []string
}

func newTxn(b backend) *txn {
	return &txn{
		b:      b,
		reads:  make(map[string]int64),
		writes: make(map[string]*Document),
		origin: make(map[string]*Document),
	}
}

func (t *txn) Get(ctx context.Context, id string) (*Document, error) {
	if doc, ok := t.writes[id]; ok {
		return doc.Clone(), nil
	}

	doc, version, err := t.b.load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		version = 0
	} else if err != nil {
		return nil, err
	}

	if seen, ok := t.reads[id]; ok && seen != version {
		return nil, fmt.Errorf("%w: %s changed during transaction", ErrConflict, id)
	}
	t.reads[id] = version

	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc, nil
}

func (t *txn) Set(_ context.Context, doc *Document) error {
	if doc == nil {
		return errors.New("cannot store nil document")
	}
	if strings.TrimSpace(doc.ID) == "" {
		return errors.New("document id required")
	}
	if _, ok := t.writes[doc.ID]; !ok {
		t.order = append(t.order, doc.ID)
	}
	t.writes[doc.ID] = doc.Clone()
	t.origin[doc.ID] = doc
	return nil
}

// pending returns the buffered writes in first-write order. Documents that
// were written without being read are treated as creates.
func (t *txn) pending() []pendingWrite {
	out := make([]pendingWrite, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, pendingWrite{doc: t.writes[id], version: t.reads[id]})
	}
	return out
}

func runTransaction(ctx context.Context, b backend, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t := newTxn(b)
	if err := fn(ctx, t); err != nil {
		return err
	}
	if len(t.order) == 0 {
		return nil
	}

	// A caller that gave up must not have its writes land.
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if err := b.commit(ctx, t.pending(), now); err != nil {
		return err
	}
	for _, id := range t.order {
		stamp(t.origin[id], t.reads[id]+1, now)
	}
	return nil
}

// Pinger is implemented by stores that can check their connection.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Ping checks s if it supports it.
func Ping(ctx context.Context, s Store) error {
	if p, ok := s.(Pinger); ok {
		return p.PingContext(ctx)
	}
	return nil
}

// IsConflict reports whether err is a retryable optimistic conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*DB)(nil)
	_ Store = (*Postgres)(nil)
	_ Store = (*Redis)(nil)
)
