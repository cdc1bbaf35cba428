// Package extract turns normalized recognition results into structured
// receipt fields. Both reductions are pure: no I/O, no errors. Absent input
// fields mean "not found", never failure.
package extract

import (
	"strings"

	"github.com/fidelity-labs/receipt-extractor/internal/entity"
	"github.com/fidelity-labs/receipt-extractor/internal/recognition"
)

// Field type labels produced by the recognition service in expense mode.
const (
	FieldVendorName  = "VENDOR_NAME"
	FieldTotal       = "TOTAL"
	FieldReceiptDate = "INVOICE_RECEIPT_DATE"
	FieldItem        = "ITEM"
	FieldPrice       = "PRICE"
	FieldQuantity    = "QUANTITY"
)

// Fields is everything one pipeline run may produce for a record. Nil fields
// were not produced and must stay unset in the store.
type Fields struct {
	Vendor        *string
	Total         *string
	ReceiptDate   *string
	LineItems     []entity.LineItem
	ExtractedText *string
	Confidence    *float64
}

// ReduceDetection folds detection blocks into the raw receipt text and the
// mean per-line confidence. Blocks that are not LINE are ignored; with no
// LINE blocks the text is empty and the confidence is 0.
func ReduceDetection(res recognition.DetectionResult) Fields {
	var (
		lines []string
		sum   float64
		count int
	)
	for _, b := range res.Blocks {
		if b.Type != recognition.BlockTypeLine {
			continue
		}
		lines = append(lines, b.Text)
		sum += b.Confidence
		count++
	}

	confidence := 0.0
	if count > 0 {
		confidence = sum / float64(count)
	}
	text := strings.TrimRight(strings.Join(lines, "\n"), " \t\r\n")
	return Fields{ExtractedText: &text, Confidence: &confidence}
}

// ReduceExpense folds expense documents into vendor/total/date and line
// items. The first occurrence of each summary field wins; later documents
// never overwrite an already-set field. Line items keep source order and are
// kept only when a description or price was detected.
func ReduceExpense(res recognition.ExpenseResult) Fields {
	var f Fields
	for _, doc := range res.Documents {
		for _, sf := range doc.SummaryFields {
			if sf.Value == nil {
				continue
			}
			switch sf.Type {
			case FieldVendorName:
				if f.Vendor == nil {
					f.Vendor = sf.Value
				}
			case FieldTotal:
				if f.Total == nil {
					f.Total = sf.Value
				}
			case FieldReceiptDate:
				if f.ReceiptDate == nil {
					f.ReceiptDate = sf.Value
				}
			}
		}

		for _, group := range doc.LineItemGroups {
			for _, it := range group.Items {
				var item entity.LineItem
				for _, lf := range it.Fields {
					if lf.Value == nil {
						continue
					}
					switch lf.Type {
					case FieldItem:
						if item.Description == nil {
							item.Description = lf.Value
						}
					case FieldPrice:
						if item.Price == nil {
							item.Price = lf.Value
						}
					case FieldQuantity:
						if item.Quantity == nil {
							item.Quantity = lf.Value
						}
					}
				}
				if item.Description != nil || item.Price != nil {
					f.LineItems = append(f.LineItems, item)
				}
			}
		}
	}
	return f
}
