package entity

import (
	"path"
	"strings"
	"time"

	"github.com/fidelity-labs/receipt-extractor/constants"
)

// ObjectRef points at an uploaded binary in the object store.
type ObjectRef struct {
	Bucket string
	Key    string
}

func (r ObjectRef) IsZero() bool {
	return r.Key == ""
}

func (r ObjectRef) String() string {
	return r.Bucket + "/" + r.Key
}

// LineItem is one extracted receipt line. Absent fields stay nil and are
// never written to the store as empty values.
type LineItem struct {
	Description *string `dynamodbav:"description,omitempty" json:"description,omitempty"`
	Price       *string `dynamodbav:"price,omitempty" json:"price,omitempty"`
	Quantity    *string `dynamodbav:"quantity,omitempty" json:"quantity,omitempty"`
}

// ReceiptRecord is the persisted unit of work: one uploaded receipt and its
// processing state. Extraction fields are set exactly once, by the terminal
// PROCESSED write.
type ReceiptRecord struct {
	ID      string `dynamodbav:"id" json:"id"`
	OwnerID string `dynamodbav:"owner" json:"owner"`
	S3Key   string `dynamodbav:"s3Key" json:"s3Key"`
	Bucket  string `dynamodbav:"bucket,omitempty" json:"bucket,omitempty"`

	Status constants.RecordStatus `dynamodbav:"status" json:"status"`

	Vendor        *string    `dynamodbav:"vendor,omitempty" json:"vendor,omitempty"`
	Total         *string    `dynamodbav:"total,omitempty" json:"total,omitempty"`
	ReceiptDate   *string    `dynamodbav:"receiptDate,omitempty" json:"receiptDate,omitempty"`
	LineItems     []LineItem `dynamodbav:"lineItems,omitempty" json:"lineItems,omitempty"`
	ExtractedText *string    `dynamodbav:"extractedText,omitempty" json:"extractedText,omitempty"`
	Confidence    *float64   `dynamodbav:"confidence,omitempty" json:"confidence,omitempty"`

	CreatedAt time.Time `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `dynamodbav:"updatedAt" json:"updatedAt"`
}

// ObjectRef resolves the record's object reference, falling back to
// defaultBucket when the record does not pin one.
func (r *ReceiptRecord) ObjectRef(defaultBucket string) ObjectRef {
	bucket := r.Bucket
	if bucket == "" {
		bucket = defaultBucket
	}
	return ObjectRef{Bucket: bucket, Key: r.S3Key}
}

// RecordIDFromKey derives the record ID embedded in an uploaded object key:
// the key basename up to the first '-'. Upload keys are written as
// "<prefix>/<recordID>-<original filename>".
func RecordIDFromKey(key string) string {
	base := path.Base(key)
	if i := strings.IndexByte(base, '-'); i >= 0 {
		return base[:i]
	}
	return base
}
