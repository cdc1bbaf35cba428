package recognition

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/aws/smithy-go"

	"github.com/fidelity-labs/receipt-extractor/internal/common"
	"github.com/fidelity-labs/receipt-extractor/internal/entity"
)

// TextractAPI is the subset of the Textract client the adapter uses.
type TextractAPI interface {
	DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
	AnalyzeExpense(ctx context.Context, in *textract.AnalyzeExpenseInput, optFns ...func(*textract.Options)) (*textract.AnalyzeExpenseOutput, error)
}

// TextractRecognizer adapts AWS Textract to the Recognizer contract. Each
// call is bounded by timeout; a timeout is converted into a recognition
// failure like any other service fault.
type TextractRecognizer struct {
	client  TextractAPI
	timeout time.Duration
	logger  *slog.Logger
}

func NewTextractRecognizer(client TextractAPI, timeout time.Duration, logger *slog.Logger) *TextractRecognizer {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TextractRecognizer{client: client, timeout: timeout, logger: logger}
}

func (r *TextractRecognizer) Detect(ctx context.Context, ref entity.ObjectRef) (DetectionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	out, err := r.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: document(ref),
	})
	if err != nil {
		return DetectionResult{}, r.recognitionError(err, ref)
	}

	blocks := make([]Block, 0, len(out.Blocks))
	for _, b := range out.Blocks {
		blocks = append(blocks, Block{
			Type:       BlockType(b.BlockType),
			Text:       aws.ToString(b.Text),
			Confidence: float64(aws.ToFloat32(b.Confidence)),
		})
	}
	r.logger.Debug("recognition.detect.ok",
		"object", ref.String(),
		"blocks", len(blocks),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return DetectionResult{Blocks: blocks}, nil
}

func (r *TextractRecognizer) AnalyzeExpense(ctx context.Context, ref entity.ObjectRef) (ExpenseResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	out, err := r.client.AnalyzeExpense(ctx, &textract.AnalyzeExpenseInput{
		Document: document(ref),
	})
	if err != nil {
		return ExpenseResult{}, r.recognitionError(err, ref)
	}

	docs := make([]ExpenseDocument, 0, len(out.ExpenseDocuments))
	for _, d := range out.ExpenseDocuments {
		doc := ExpenseDocument{
			SummaryFields: expenseFields(d.SummaryFields),
		}
		for _, g := range d.LineItemGroups {
			group := LineItemGroup{Items: make([]LineItemFields, 0, len(g.LineItems))}
			for _, it := range g.LineItems {
				group.Items = append(group.Items, LineItemFields{
					Fields: expenseFields(it.LineItemExpenseFields),
				})
			}
			doc.LineItemGroups = append(doc.LineItemGroups, group)
		}
		docs = append(docs, doc)
	}
	r.logger.Debug("recognition.expense.ok",
		"object", ref.String(),
		"documents", len(docs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return ExpenseResult{Documents: docs}, nil
}

func document(ref entity.ObjectRef) *types.Document {
	return &types.Document{
		S3Object: &types.S3Object{
			Bucket: aws.String(ref.Bucket),
			Name:   aws.String(ref.Key),
		},
	}
}

func expenseFields(fields []types.ExpenseField) []TypedField {
	out := make([]TypedField, 0, len(fields))
	for _, f := range fields {
		tf := TypedField{}
		if f.Type != nil {
			tf.Type = aws.ToString(f.Type.Text)
		}
		if f.ValueDetection != nil && f.ValueDetection.Text != nil {
			tf.Value = f.ValueDetection.Text
		}
		out = append(out, tf)
	}
	return out
}

// recognitionError collapses service, object and timeout faults into the
// single error the pipeline acts on.
func (r *TextractRecognizer) recognitionError(err error, ref entity.ObjectRef) error {
	reason := "recognition service failure"
	var apiErr smithy.APIError
	switch {
	case errors.As(err, &apiErr):
		reason = apiErr.ErrorCode() + ": " + apiErr.ErrorMessage()
	case errors.Is(err, context.DeadlineExceeded):
		reason = "recognition call timed out"
	}
	r.logger.Warn("recognition.failed", "object", ref.String(), "reason", reason)
	return common.NewRecognitionError(reason, err)
}
