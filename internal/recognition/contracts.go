package recognition

import (
	"context"
	"fmt"

	"github.com/fidelity-labs/receipt-extractor/internal/common"
	"github.com/fidelity-labs/receipt-extractor/internal/entity"
)

// Mode selects the recognition strategy for a pipeline run.
type Mode string

const (
	ModeDetect         Mode = "detect"         // raw text lines with confidence
	ModeAnalyzeExpense Mode = "analyzeExpense" // semantically typed expense fields
)

// ParseMode validates a caller-supplied mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDetect, ModeAnalyzeExpense:
		return Mode(s), nil
	case "":
		return ModeDetect, nil
	}
	return "", fmt.Errorf("%w: unknown recognition mode %q", common.ErrMalformedInput, s)
}

// BlockType tags a detection block. Only LINE blocks carry receipt text the
// extractor consumes.
type BlockType string

const BlockTypeLine BlockType = "LINE"

// Block is one detected text block with a confidence score in [0,100].
type Block struct {
	Type       BlockType
	Text       string
	Confidence float64
}

// DetectionResult is the normalized output of detection mode.
type DetectionResult struct {
	Blocks []Block
}

// TypedField is a key/value pair typed by the recognition service
// (e.g. VENDOR_NAME, TOTAL, ITEM). Value is nil when the service typed the
// field but detected no value; absence is data, not failure.
type TypedField struct {
	Type  string
	Value *string
}

// LineItemFields is the field set of a single line item.
type LineItemFields struct {
	Fields []TypedField
}

// LineItemGroup is an ordered group of line items within one expense document.
type LineItemGroup struct {
	Items []LineItemFields
}

// ExpenseDocument is one recognized expense document. A receipt normally
// yields exactly one.
type ExpenseDocument struct {
	SummaryFields  []TypedField
	LineItemGroups []LineItemGroup
}

// ExpenseResult is the normalized output of expense-analysis mode.
type ExpenseResult struct {
	Documents []ExpenseDocument
}

// Recognizer invokes the external document-recognition service on a stored
// object. Implementations perform no retries and no side effects beyond the
// remote call; every failure surfaces as a *common.RecognitionError.
type Recognizer interface {
	Detect(ctx context.Context, ref entity.ObjectRef) (DetectionResult, error)
	AnalyzeExpense(ctx context.Context, ref entity.ObjectRef) (ExpenseResult, error)
}
