package playkit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FailedOperation is a consume or acknowledge call the billing service rejected.
type FailedOperation struct {
	ID            string
	Operation     string
	PurchaseToken string
	Products      []string
	Result        Result
	Timestamp     time.Time
}

// DeadLetterQueue keeps failed billing operations for inspection. The manager
// never re-drives them; a purchase that failed to consume is picked up again
// on the next purchase refresh.
type DeadLetterQueue interface {
	// Add adds a failed operation to the queue and assigns its ID.
	Add(ctx context.Context, op *FailedOperation) error
	// GetFailed returns up to limit operations, oldest first.
	GetFailed(ctx context.Context, limit int) ([]*FailedOperation, error)
	// Remove removes an operation from the queue.
	Remove(ctx context.Context, id string) error
}

// InMemoryDeadLetterQueue is a simple in-memory implementation.
type InMemoryDeadLetterQueue struct {
	ops map[string]*FailedOperation
	mu  sync.RWMutex
}

func NewInMemoryDeadLetterQueue() *InMemoryDeadLetterQueue {
	return &InMemoryDeadLetterQueue{
		ops: make(map[string]*FailedOperation),
	}
}

func (dlq *InMemoryDeadLetterQueue) Add(ctx context.Context, op *FailedOperation) error {
	dlq.mu.Lock()
	defer dlq.mu.Unlock()

	op.ID = uuid.NewString()
	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now()
	}
	dlq.ops[op.ID] = op
	return nil
}

func (dlq *InMemoryDeadLetterQueue) GetFailed(ctx context.Context, limit int) ([]*FailedOperation, error) {
	dlq.mu.RLock()
	defer dlq.mu.RUnlock()

	failed := make([]*FailedOperation, 0, len(dlq.ops))
	for _, op := range dlq.ops {
		failed = append(failed, op)
	}
	sort.Slice(failed, func(i, j int) bool {
		return failed[i].Timestamp.Before(failed[j].Timestamp)
	})
	if limit >= 0 && len(failed) > limit {
		failed = failed[:limit]
	}
	return failed, nil
}

func (dlq *InMemoryDeadLetterQueue) Remove(ctx context.Context, id string) error {
	dlq.mu.Lock()
	defer dlq.mu.Unlock()

	delete(dlq.ops, id)
	return nil
}
