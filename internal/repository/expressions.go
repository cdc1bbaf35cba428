package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/fidelity-labs/receipt-extractor/constants"
	"github.com/fidelity-labs/receipt-extractor/internal/extract"
)

// statusName aliases the reserved word "status" in hand-written expressions.
const statusName = "#status"

// recordUpdate is an UpdateItem payload under construction.
type recordUpdate struct {
	sets   []string
	names  map[string]string
	values map[string]types.AttributeValue
	err    error
}

func newRecordUpdate() *recordUpdate {
	return &recordUpdate{
		names:  map[string]string{},
		values: map[string]types.AttributeValue{},
	}
}

// set adds one assignment, routing the attribute through an expression name
// alias. Several record attributes (status, total) are reserved words, so no
// raw attribute name may appear in the expression.
func (u *recordUpdate) set(attr string, v any) {
	if u.err != nil {
		return
	}
	av, err := attributevalue.Marshal(v)
	if err != nil {
		u.err = fmt.Errorf("marshal %s: %w", attr, err)
		return
	}
	name := "#" + attr
	placeholder := ":" + attr
	u.names[name] = attr
	u.sets = append(u.sets, name+" = "+placeholder)
	u.values[placeholder] = av
}

func (u *recordUpdate) expression() string {
	return "SET " + strings.Join(u.sets, ", ")
}

// buildTerminalUpdate assembles the single atomic update for a terminal
// transition. For PROCESSED, only fields the extractor produced are written;
// for FAILED, fields must be the zero value and the status is the sole
// change besides updatedAt.
func buildTerminalUpdate(status constants.RecordStatus, fields extract.Fields, now time.Time) (*recordUpdate, error) {
	u := newRecordUpdate()
	u.set("status", string(status))
	u.set("updatedAt", now.UTC())

	if fields.Vendor != nil {
		u.set("vendor", *fields.Vendor)
	}
	if fields.Total != nil {
		u.set("total", *fields.Total)
	}
	if fields.ReceiptDate != nil {
		u.set("receiptDate", *fields.ReceiptDate)
	}
	if fields.LineItems != nil {
		u.set("lineItems", fields.LineItems)
	}
	if fields.ExtractedText != nil {
		u.set("extractedText", *fields.ExtractedText)
	}
	if fields.Confidence != nil {
		u.set("confidence", *fields.Confidence)
	}

	if u.err != nil {
		return nil, u.err
	}
	return u, nil
}
