// Package pipeline holds the record state machine: the single path that moves
// a receipt record from PENDING to PROCESSED or FAILED.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fidelity-labs/receipt-extractor/constants"
	"github.com/fidelity-labs/receipt-extractor/internal/common"
	"github.com/fidelity-labs/receipt-extractor/internal/entity"
	"github.com/fidelity-labs/receipt-extractor/internal/extract"
	"github.com/fidelity-labs/receipt-extractor/internal/recognition"
	"github.com/fidelity-labs/receipt-extractor/internal/repository"
	"github.com/fidelity-labs/receipt-extractor/internal/storage"
)

// Processor coordinates recognition → reduction → terminal write for one
// record at a time. Every trigger source funnels through it.
type Processor struct {
	repo          repository.RecordRepository
	recognizer    recognition.Recognizer
	store         storage.ObjectStore
	defaultBucket string
	logger        *slog.Logger
}

func NewProcessor(
	repo repository.RecordRepository,
	recognizer recognition.Recognizer,
	store storage.ObjectStore,
	defaultBucket string,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		repo:          repo,
		recognizer:    recognizer,
		store:         store,
		defaultBucket: defaultBucket,
		logger:        logger,
	}
}

// Outcome reports what one pipeline invocation did for a record.
type Outcome struct {
	RecordID string
	// Skipped is set when the record was not PENDING, or another worker won
	// the claim. A skip is a silent no-op, never an error.
	Skipped bool
	// Fields holds what the extractor produced on a successful run.
	Fields extract.Fields
}

// Process runs the pipeline for a record the caller already holds. Exactly
// one terminal write occurs per run: PROCESSED with the extracted fields, or
// FAILED alone. A record that is no longer PENDING is a no-op.
func (p *Processor) Process(ctx context.Context, rec *entity.ReceiptRecord, mode recognition.Mode) (Outcome, error) {
	out := Outcome{RecordID: rec.ID}
	if rec.ID == "" {
		return out, fmt.Errorf("%w: record id is empty", common.ErrMalformedInput)
	}
	// Only a record that can still be claimed is eligible; anything already
	// PROCESSING or terminal is a silent no-op.
	if !constants.CanTransition(rec.Status, constants.StatusProcessing) {
		p.logger.Info("pipeline.skip", "record_id", rec.ID, "status", rec.Status)
		out.Skipped = true
		return out, nil
	}

	claimed, err := p.repo.Claim(ctx, rec.ID)
	if err != nil {
		// The record is still PENDING; a re-trigger can recover it.
		return out, err
	}
	if !claimed {
		p.logger.Info("pipeline.claim.lost", "record_id", rec.ID)
		out.Skipped = true
		return out, nil
	}

	ref := rec.ObjectRef(p.defaultBucket)
	if ref.IsZero() {
		return out, p.fail(ctx, rec.ID, fmt.Errorf("%w: record %s has no object reference", common.ErrMalformedInput, rec.ID))
	}
	if err := p.store.Ensure(ctx, ref); err != nil {
		return out, p.fail(ctx, rec.ID, err)
	}

	start := time.Now()
	fields, err := p.recognize(ctx, ref, mode)
	if err != nil {
		return out, p.fail(ctx, rec.ID, err)
	}

	if err := p.repo.MarkProcessed(ctx, rec.ID, fields); err != nil {
		return out, p.fail(ctx, rec.ID, err)
	}
	out.Fields = fields

	p.logger.Info("pipeline.processed",
		"record_id", rec.ID,
		"mode", string(mode),
		"line_items", len(fields.LineItems),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// ProcessByID loads the record first; the stored record is the source of
// truth for the object reference, with fallback used only when the record
// carries none (direct trigger payloads include one).
func (p *Processor) ProcessByID(ctx context.Context, id string, fallback entity.ObjectRef, mode recognition.Mode) (Outcome, error) {
	rec, err := p.repo.GetByID(ctx, id)
	if err != nil {
		return Outcome{RecordID: id}, err
	}
	if rec.S3Key == "" && !fallback.IsZero() {
		rec.S3Key = fallback.Key
		rec.Bucket = fallback.Bucket
	}
	return p.Process(ctx, rec, mode)
}

func (p *Processor) recognize(ctx context.Context, ref entity.ObjectRef, mode recognition.Mode) (extract.Fields, error) {
	switch mode {
	case recognition.ModeAnalyzeExpense:
		res, err := p.recognizer.AnalyzeExpense(ctx, ref)
		if err != nil {
			return extract.Fields{}, err
		}
		return extract.ReduceExpense(res), nil
	default:
		res, err := p.recognizer.Detect(ctx, ref)
		if err != nil {
			return extract.Fields{}, err
		}
		return extract.ReduceDetection(res), nil
	}
}

// fail degrades the record to FAILED so it is never left stuck in
// PROCESSING, then hands the original cause back to the trigger layer.
func (p *Processor) fail(ctx context.Context, id string, cause error) error {
	if werr := p.repo.MarkFailed(ctx, id); werr != nil {
		p.logger.Error("pipeline.failed.write", "record_id", id, "error", werr)
	}
	p.logger.Warn("pipeline.failed", "record_id", id, "reason", cause)
	return cause
}
