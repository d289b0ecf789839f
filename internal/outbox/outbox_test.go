package outbox

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/conorfennell/neurapath/internal/domain"
)

type recorder struct {
	sent []string
	fail map[string]error
}

func (r *recorder) send(_ context.Context, op Op) error {
	r.sent = append(r.sent, op.Kind.String()+" "+op.RecordID)
	return r.fail[op.RecordID]
}

func TestCoalescing(t *testing.T) {
	testCases := []struct {
		name     string
		enqueue  func(o *Outbox)
		wantKind Kind
	}{
		{
			name: "update after create stays create",
			enqueue: func(o *Outbox) {
				o.Create(domain.Record{ID: "a", ContentType: domain.Extract})
				o.Update(domain.Record{ID: "a", ContentType: domain.Extract, IsFlagged: true})
			},
			wantKind: Create,
		},
		{
			name: "delete supersedes create",
			enqueue: func(o *Outbox) {
				o.Create(domain.Record{ID: "a"})
				o.Delete("a")
			},
			wantKind: Delete,
		},
		{
			name: "create after delete",
			enqueue: func(o *Outbox) {
				o.Delete("a")
				o.Create(domain.Record{ID: "a"})
			},
			wantKind: Create,
		},
		{
			name: "update after update",
			enqueue: func(o *Outbox) {
				o.Update(domain.Record{ID: "a"})
				o.Update(domain.Record{ID: "a", IsPublic: true})
			},
			wantKind: Update,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			o := New(nil)
			tc.enqueue(o)
			pending := o.Pending()
			if len(pending) != 1 {
				t.Fatalf("Expected one pending op, got %d", len(pending))
			}
			if pending[0].Kind != tc.wantKind {
				t.Errorf("Expected %v, got %v", tc.wantKind, pending[0].Kind)
			}
		})
	}
}

func TestCoalescedOpCarriesNewestRecord(t *testing.T) {
	o := New(nil)
	o.Create(domain.Record{ID: "a"})
	o.Update(domain.Record{ID: "a", IsFlagged: true})
	if !o.Pending()[0].Record.IsFlagged {
		t.Error("Expected the pending create to carry the updated record")
	}
}

func TestFlushOrderAndRetry(t *testing.T) {
	o := New(nil)
	o.Delete("old/a")
	o.Delete("old/a/b")
	o.Create(domain.Record{ID: "new/a"})
	o.Create(domain.Record{ID: "new/a/b"})

	rec := &recorder{fail: map[string]error{"new/a": errors.New("boom")}}
	err := o.Flush(context.Background(), rec.send)
	if err == nil {
		t.Fatal("Expected the failed create to be reported")
	}

	wantSent := []string{"delete old/a", "delete old/a/b", "create new/a", "create new/a/b"}
	if !reflect.DeepEqual(rec.sent, wantSent) {
		t.Errorf("sent = %v, want %v", rec.sent, wantSent)
	}

	pending := o.Pending()
	if len(pending) != 1 || pending[0].RecordID != "new/a" {
		t.Fatalf("Expected only new/a to remain, got %+v", pending)
	}
	if pending[0].Attempts != 1 || pending[0].LastErr == nil {
		t.Errorf("Expected attempt bookkeeping, got %+v", pending[0])
	}

	rec.fail = nil
	if err := o.Flush(context.Background(), rec.send); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if o.Len() != 0 {
		t.Errorf("Expected an empty outbox, got %d", o.Len())
	}
}

func TestFlushIDs(t *testing.T) {
	o := New(nil)
	o.Create(domain.Record{ID: "a"})
	o.Create(domain.Record{ID: "b"})

	rec := &recorder{}
	if err := o.FlushIDs(context.Background(), rec.send, "b", "missing"); err != nil {
		t.Fatalf("FlushIDs: %v", err)
	}
	if !reflect.DeepEqual(rec.sent, []string{"create b"}) {
		t.Errorf("sent = %v", rec.sent)
	}
	if o.Len() != 1 || o.Pending()[0].RecordID != "a" {
		t.Errorf("Expected a to remain queued, got %+v", o.Pending())
	}
}

func TestFlushStopsOnCancelledContext(t *testing.T) {
	o := New(nil)
	o.Create(domain.Record{ID: "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	err := o.Flush(ctx, rec.send)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(rec.sent) != 0 || o.Len() != 1 {
		t.Error("Nothing should be sent once the context is done")
	}
}

func TestReplacedWhileSending(t *testing.T) {
	o := New(nil)
	o.Create(domain.Record{ID: "a"})

	send := func(_ context.Context, op Op) error {
		// A newer edit lands while the first create is in flight.
		o.Update(domain.Record{ID: "a", IsFlagged: true})
		return nil
	}
	if err := o.Flush(context.Background(), send); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	pending := o.Pending()
	if len(pending) != 1 || !pending[0].Record.IsFlagged {
		t.Errorf("Expected the newer op to survive the flush, got %+v", pending)
	}
}

func TestClear(t *testing.T) {
	o := New(nil)
	o.Create(domain.Record{ID: "a"})
	o.Delete("b")
	o.Clear()
	if o.Len() != 0 || len(o.Pending()) != 0 {
		t.Error("Clear left operations behind")
	}
}
