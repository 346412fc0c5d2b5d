package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lazypower/totemic/internal/logger"
)

var (
	defaultRelationsWorkers   = 2
	defaultRelationsQueueSize = 256
	defaultRelationsTimeout   = 30 * time.Second
)

// Recomputer rebuilds a document's relationship graph. *Coordinator
// implements it.
type Recomputer interface {
	RecomputeRelations(ctx context.Context, documentID string) ([]Edge, error)
}

// RelationsWorkerConfig configures a RelationsWorker.
type RelationsWorkerConfig struct {
	Recomputer Recomputer

	// NumWorkers is the number of background goroutines (defaults to 2).
	NumWorkers int

	// QueueSize bounds the number of waiting documents (defaults to 256).
	QueueSize int

	// Timeout bounds a single recompute (defaults to 30s).
	Timeout time.Duration

	Logger *zap.Logger
}

type relationsJob struct {
	documentID string
	retry      bool
}

// RelationsWorker recomputes relationship graphs off the request path.
// A document already waiting in the queue is not queued twice, and
// concurrent recomputes of one document share a single run. A document
// accepted while its previous run is in flight gets a fresh run, and a run
// that loses to write contention is retried once.
type RelationsWorker struct {
	rc      Recomputer
	timeout time.Duration
	log     *zap.Logger
	queue   chan relationsJob
	group   singleflight.Group
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending map[string]bool
	closed  bool
}

// NewRelationsWorker starts the worker goroutines.
func NewRelationsWorker(cfg RelationsWorkerConfig) (*RelationsWorker, error) {
	if cfg.Recomputer == nil {
		return nil, errors.New("relations worker: recomputer required")
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = defaultRelationsWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultRelationsQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRelationsTimeout
	}

	w := &RelationsWorker{
		rc:      cfg.Recomputer,
		timeout: cfg.Timeout,
		log:     logger.OrNop(cfg.Logger),
		queue:   make(chan relationsJob, cfg.QueueSize),
		pending: make(map[string]bool),
	}

	w.wg.Add(cfg.NumWorkers)
	for i := range cfg.NumWorkers {
		go w.run(i)
	}
	return w, nil
}

// Enqueue schedules a recompute. It returns true if the document is queued
// (or already was) and false if the queue is full or the worker is closed.
func (w *RelationsWorker) Enqueue(documentID string) bool {
	return w.enqueue(relationsJob{documentID: documentID})
}

func (w *RelationsWorker) enqueue(job relationsJob) bool {
	documentID := job.documentID

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false
	}
	if w.pending[documentID] {
		return true
	}

	select {
	case w.queue <- job:
		w.pending[documentID] = true
		// A run already in flight predates this write.
		w.group.Forget(documentID)
		w.log.Debug("relations recompute queued", zap.String("document_id", documentID))
		return true
	default:
		w.log.Error("relations queue full, recompute dropped", zap.String("document_id", documentID))
		return false
	}
}

// Close stops accepting work and waits for queued recomputes to finish.
func (w *RelationsWorker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *RelationsWorker) run(id int) {
	defer w.wg.Done()
	w.log.Debug("relations worker started", zap.Int("worker_id", id))

	for job := range w.queue {
		// Cleared before the run so writes landing mid-recompute queue
		// another pass.
		w.mu.Lock()
		delete(w.pending, job.documentID)
		w.mu.Unlock()

		w.process(job)
	}

	w.log.Debug("relations worker stopped", zap.Int("worker_id", id))
}

func (w *RelationsWorker) process(job relationsJob) {
	documentID := job.documentID
	_, err, shared := w.group.Do(documentID, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		defer cancel()
		return w.rc.RecomputeRelations(ctx, documentID)
	})
	if err != nil && errors.Is(err, ErrContention) && !job.retry {
		requeued := w.enqueue(relationsJob{documentID: documentID, retry: true})
		w.log.Warn("relations recompute contended, retrying",
			zap.String("document_id", documentID),
			zap.Bool("requeued", requeued),
		)
		return
	}
	if err != nil {
		w.log.Error("relations recompute failed",
			zap.String("document_id", documentID),
			zap.Error(err),
		)
		return
	}
	w.log.Debug("relations recomputed in background",
		zap.String("document_id", documentID),
		zap.Bool("shared", shared),
	)
}
