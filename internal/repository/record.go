package repository

import (
	"context"

	"github.com/fidelity-labs/receipt-extractor/constants"
	"github.com/fidelity-labs/receipt-extractor/internal/entity"
	"github.com/fidelity-labs/receipt-extractor/internal/extract"
)

// RecordRepository is the structured-store boundary: keyed reads and
// single-record conditional/keyed updates. The record's status is writable
// only through Claim, MarkProcessed and MarkFailed.
type RecordRepository interface {
	GetByID(ctx context.Context, id string) (*entity.ReceiptRecord, error)

	// Claim transitions PENDING -> PROCESSING, guarded by the stored status
	// still being PENDING. A failed guard means another worker already holds
	// the record and is reported as (false, nil), not an error.
	Claim(ctx context.Context, id string) (bool, error)

	// MarkProcessed writes status=PROCESSED together with whichever fields
	// the extractor produced, in a single atomic update. Fields the
	// extractor did not produce are left unset.
	MarkProcessed(ctx context.Context, id string, fields extract.Fields) error

	// MarkFailed writes status=FAILED alone; no extraction fields are touched.
	MarkFailed(ctx context.Context, id string) error

	// List scans records, optionally filtered to one status. Serves the
	// listing/export collaborators, not the pipeline.
	List(ctx context.Context, status *constants.RecordStatus) ([]*entity.ReceiptRecord, error)
}
