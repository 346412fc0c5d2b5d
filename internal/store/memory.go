package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-memory Store. Documents are kept serialized so every read
// hands out an independent copy, as a real database would.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]memoryEntry

	// injected is the number of upcoming commits that fail with ErrConflict
	// before touching any document.
	injected int

	// beforeCommit runs outside the lock at the start of every commit.
	beforeCommit func()
}

type memoryEntry struct {
	version int64
	body    []byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string]memoryEntry)}
}

// InjectConflicts makes the next n commits fail with ErrConflict.
func (m *Memory) InjectConflicts(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.injected += n
}

// SetCommitHook installs fn to run at the start of every commit, before the
// version check. Tests use it to interleave a competing writer.
func (m *Memory) SetCommitHook(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beforeCommit = fn
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, id string) (*Document, error) {
	doc, _, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// RunTransaction implements Store.
func (m *Memory) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return runTransaction(ctx, m, fn)
}

// PingContext always succeeds.
func (m *Memory) PingContext(context.Context) error {
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

// Len returns the number of stored documents.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *Memory) load(_ context.Context, id string) (*Document, int64, error) {
	m.mu.RLock()
	entry, ok := m.docs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	doc, err := decode(id, entry.body, entry.version)
	if err != nil {
		return nil, 0, err
	}
	return doc, entry.version, nil
}

func (m *Memory) commit(ctx context.Context, writes []pendingWrite, now time.Time) error {
	m.mu.RLock()
	hook := m.beforeCommit
	m.mu.RUnlock()
	if hook != nil {
		hook()
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.injected > 0 {
		m.injected--
		return fmt.Errorf("%w: injected", ErrConflict)
	}

	for _, w := range writes {
		if current := m.docs[w.doc.ID].version; current != w.version {
			return fmt.Errorf("%w: %s at version %d, expected %d", ErrConflict, w.doc.ID, current, w.version)
		}
	}

	encoded := make([]memoryEntry, len(writes))
	for i, w := range writes {
		doc, body, err := encode(w, now)
		if err != nil {
			return err
		}
		encoded[i] = memoryEntry{version: doc.Version, body: body}
	}

	for i, w := range writes {
		m.docs[w.doc.ID] = encoded[i]
	}
	return nil
}
