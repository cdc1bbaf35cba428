package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/fidelity-labs/receipt-extractor/constants"
	"github.com/fidelity-labs/receipt-extractor/internal/entity"
	"github.com/fidelity-labs/receipt-extractor/internal/recognition"
)

func TestEventQueueProcessesAllEvents(t *testing.T) {
	proc := &fakeProcessor{}
	d := NewDispatcher(proc, recognition.ModeDetect, nil)
	q := NewEventQueue(d, nil, WithWorkers(2), WithQueueSize(8))

	for i := 0; i < 8; i++ {
		ev := ChangeEvent{Type: EventInsert, Record: entity.ReceiptRecord{
			ID: "r" + string(rune('0'+i)), Status: constants.StatusPending,
		}}
		if err := q.Enqueue(context.Background(), ev); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	if len(proc.calls) != 8 {
		t.Fatalf("pipeline calls = %d, want 8", len(proc.calls))
	}
}

func TestEventQueueDropsAfterShutdown(t *testing.T) {
	proc := &fakeProcessor{}
	d := NewDispatcher(proc, recognition.ModeDetect, nil)
	q := NewEventQueue(d, nil, WithWorkers(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Shutdown(ctx)

	ev := ChangeEvent{Type: EventInsert, Record: entity.ReceiptRecord{
		ID: "late", Status: constants.StatusPending,
	}}
	if err := q.Enqueue(context.Background(), ev); err != nil {
		t.Fatalf("Enqueue after shutdown must not error, got %v", err)
	}
	if len(proc.calls) != 0 {
		t.Fatalf("pipeline calls = %d, want 0", len(proc.calls))
	}
}
