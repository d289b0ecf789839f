// Package outbox queues record-level replication so that a failed remote call
// is retried later instead of being lost.
//
// Operations are keyed by record ID. A newer operation for an ID replaces the
// pending one but keeps its place in line, so the queue never holds more than
// one operation per record.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/neurapath/internal/domain"
)

// Kind is the remote operation to perform.
type Kind int

const (
	Create Kind = iota + 1
	Update
	Delete
)

func (k Kind) String() string {
	switch k {
	case Create:
		return "create"
	case Update:
		return "update"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Op is one pending remote operation.
type Op struct {
	ID         string // unique per enqueue, for log correlation
	Kind       Kind
	RecordID   string
	Record     domain.Record // zero for Delete
	Attempts   int
	LastErr    error
	EnqueuedAt time.Time
}

// SendFunc performs one operation against the remote.
type SendFunc func(ctx context.Context, op Op) error

// Outbox is a per-record coalescing queue of pending remote operations. It is
// safe for concurrent use.
type Outbox struct {
	mu    sync.Mutex
	ops   map[string]*Op
	order []string
	now   func() time.Time
}

// New creates an empty outbox. now may be nil.
func New(now func() time.Time) *Outbox {
	if now == nil {
		now = time.Now
	}
	return &Outbox{ops: make(map[string]*Op), now: now}
}

// Create queues a remote create of rec.
func (o *Outbox) Create(rec domain.Record) {
	o.enqueue(Create, rec.ID, rec.Clone())
}

// Update queues a remote update of rec. A pending create for the same ID stays
// a create, carrying the newer record.
func (o *Outbox) Update(rec domain.Record) {
	o.enqueue(Update, rec.ID, rec.Clone())
}

// Delete queues a remote delete of id, superseding anything pending for it.
func (o *Outbox) Delete(id string) {
	o.enqueue(Delete, id, domain.Record{})
}

func (o *Outbox) enqueue(kind Kind, recordID string, rec domain.Record) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if prev, ok := o.ops[recordID]; ok {
		if kind == Update && prev.Kind == Create {
			kind = Create
		}
	} else {
		o.order = append(o.order, recordID)
	}
	o.ops[recordID] = &Op{
		ID:         uuid.NewString(),
		Kind:       kind,
		RecordID:   recordID,
		Record:     rec,
		EnqueuedAt: o.now(),
	}
}

// Len returns the number of pending operations.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.ops)
}

// Pending returns a snapshot of the queue in send order.
func (o *Outbox) Pending() []Op {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Op, 0, len(o.order))
	for _, id := range o.order {
		out = append(out, *o.ops[id])
	}
	return out
}

// Clear drops every pending operation. Used once a full database save has
// made the remote match local state.
func (o *Outbox) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = make(map[string]*Op)
	o.order = nil
}

// Flush sends every pending operation in order. Successful operations are
// removed; failed ones stay queued and their errors are joined.
func (o *Outbox) Flush(ctx context.Context, send SendFunc) error {
	o.mu.Lock()
	ids := append([]string(nil), o.order...)
	o.mu.Unlock()
	return o.flush(ctx, send, ids)
}

// FlushIDs sends only the pending operations for the given record IDs.
func (o *Outbox) FlushIDs(ctx context.Context, send SendFunc, recordIDs ...string) error {
	return o.flush(ctx, send, recordIDs)
}

func (o *Outbox) flush(ctx context.Context, send SendFunc, recordIDs []string) error {
	var errs []error
	for _, recordID := range recordIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		o.mu.Lock()
		pending, ok := o.ops[recordID]
		var op Op
		if ok {
			op = *pending
		}
		o.mu.Unlock()
		if !ok {
			continue
		}

		err := send(ctx, op)

		o.mu.Lock()
		current, still := o.ops[recordID]
		// The op may have been replaced while we were sending; only settle it
		// if it is the one we sent.
		if still && current.ID == op.ID {
			if err == nil {
				o.removeLocked(recordID)
			} else {
				current.Attempts++
				current.LastErr = err
			}
		}
		o.mu.Unlock()

		if err != nil {
			errs = append(errs, fmt.Errorf("failed to %s %s: %w", op.Kind, recordID, err))
		}
	}
	return errors.Join(errs...)
}

func (o *Outbox) removeLocked(recordID string) {
	delete(o.ops, recordID)
	for i, id := range o.order {
		if id == recordID {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}
