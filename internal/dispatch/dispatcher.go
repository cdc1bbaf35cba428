// Package dispatch decides when the pipeline runs: it consumes store change
// events and feeds eligible records to the processor.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/fidelity-labs/receipt-extractor/constants"
	"github.com/fidelity-labs/receipt-extractor/internal/entity"
	"github.com/fidelity-labs/receipt-extractor/internal/pipeline"
	"github.com/fidelity-labs/receipt-extractor/internal/recognition"
)

// EventType mirrors the store's change-notification operation types.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventModify EventType = "MODIFY"
	EventRemove EventType = "REMOVE"
)

// ChangeEvent is one change notification carrying the record's new image.
type ChangeEvent struct {
	Type   EventType
	Record entity.ReceiptRecord
}

// RecordProcessor is what the dispatcher needs from the pipeline.
type RecordProcessor interface {
	Process(ctx context.Context, rec *entity.ReceiptRecord, mode recognition.Mode) (pipeline.Outcome, error)
}

// Dispatcher filters change events down to newly inserted PENDING records
// and runs the pipeline for each. Delivery is at-least-once; the claim step
// downstream makes duplicates safe.
type Dispatcher struct {
	proc   RecordProcessor
	mode   recognition.Mode
	logger *slog.Logger
}

func NewDispatcher(proc RecordProcessor, mode recognition.Mode, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{proc: proc, mode: mode, logger: logger}
}

// HandleEvent runs the pipeline for an eligible event. Errors never
// propagate to the trigger source: there is no caller to report to, so they
// are logged and the record's FAILED status carries the outcome.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev ChangeEvent) {
	if ev.Type != EventInsert {
		return
	}
	if ev.Record.Status != constants.StatusPending {
		d.logger.Debug("dispatch.ignore", "record_id", ev.Record.ID, "status", ev.Record.Status)
		return
	}

	rec := ev.Record
	out, err := d.proc.Process(ctx, &rec, d.mode)
	if err != nil {
		d.logger.Error("dispatch.process.failed", "record_id", rec.ID, "error", err)
		return
	}
	if out.Skipped {
		d.logger.Debug("dispatch.duplicate", "record_id", rec.ID)
		return
	}
	d.logger.Info("dispatch.processed", "record_id", rec.ID)
}
