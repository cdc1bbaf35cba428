package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/fidelity-labs/receipt-extractor/constants"
	"github.com/fidelity-labs/receipt-extractor/internal/common"
	"github.com/fidelity-labs/receipt-extractor/internal/entity"
	"github.com/fidelity-labs/receipt-extractor/internal/extract"
)

type fakeDynamo struct {
	getOut  *dynamodb.GetItemOutput
	getErr  error
	scanOut []*dynamodb.ScanOutput

	updateIn  *dynamodb.UpdateItemInput
	updateErr error
}

func (f *fakeDynamo) GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return f.getOut, f.getErr
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updateIn = in
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	out := f.scanOut[0]
	f.scanOut = f.scanOut[1:]
	return out, nil
}

func newTestRepo(db *fakeDynamo) *recordRepository {
	r := NewRecordRepository(db, "receipts", nil).(*recordRepository)
	r.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return r
}

func strptr(s string) *string { return &s }

func TestBuildTerminalUpdateWritesOnlyProducedFields(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	conf := 97.0
	u, err := buildTerminalUpdate(constants.StatusProcessed, extract.Fields{
		Vendor:     strptr("Store X"),
		Confidence: &conf,
	}, now)
	if err != nil {
		t.Fatalf("buildTerminalUpdate: %v", err)
	}

	expr := u.expression()
	for _, want := range []string{"#status = :status", "#updatedAt = :updatedAt", "#vendor = :vendor", "#confidence = :confidence"} {
		if !strings.Contains(expr, want) {
			t.Errorf("expression %q missing %q", expr, want)
		}
	}
	for _, absent := range []string{"total", "receiptDate", "lineItems", "extractedText"} {
		if strings.Contains(expr, absent) {
			t.Errorf("expression %q must not touch %q", expr, absent)
		}
	}
	if u.names["#status"] != "status" {
		t.Errorf("names = %v, want #status aliased", u.names)
	}
}

func TestBuildTerminalUpdateFailedWritesStatusOnly(t *testing.T) {
	u, err := buildTerminalUpdate(constants.StatusFailed, extract.Fields{}, time.Now())
	if err != nil {
		t.Fatalf("buildTerminalUpdate: %v", err)
	}
	if got := u.expression(); got != "SET #status = :status, #updatedAt = :updatedAt" {
		t.Errorf("expression = %q", got)
	}
}

// Several record attributes (status, total) collide with DynamoDB reserved
// words, so the builder must never emit a raw attribute name: every
// assignment target must be a # alias resolved by ExpressionAttributeNames.
func TestBuildTerminalUpdateAliasesEveryAttribute(t *testing.T) {
	conf := 97.0
	u, err := buildTerminalUpdate(constants.StatusProcessed, extract.Fields{
		Vendor:        strptr("Store X"),
		Total:         strptr("12.50"),
		ReceiptDate:   strptr("2024-06-01"),
		LineItems:     []entity.LineItem{{Description: strptr("Coffee")}},
		ExtractedText: strptr("Store X"),
		Confidence:    &conf,
	}, time.Now())
	if err != nil {
		t.Fatalf("buildTerminalUpdate: %v", err)
	}

	expr := strings.TrimPrefix(u.expression(), "SET ")
	for _, assign := range strings.Split(expr, ", ") {
		target, _, ok := strings.Cut(assign, " = ")
		if !ok {
			t.Fatalf("malformed assignment %q", assign)
		}
		if !strings.HasPrefix(target, "#") {
			t.Errorf("raw attribute name %q in expression; reserved words would be rejected", target)
			continue
		}
		if _, aliased := u.names[target]; !aliased {
			t.Errorf("alias %q has no ExpressionAttributeNames entry", target)
		}
	}
	if u.names["#total"] != "total" {
		t.Errorf("names = %v, want #total -> total", u.names)
	}
}

func TestClaimGuardsOnPending(t *testing.T) {
	db := &fakeDynamo{}
	repo := newTestRepo(db)

	claimed, err := repo.Claim(context.Background(), "r1")
	if err != nil || !claimed {
		t.Fatalf("Claim = (%v, %v), want (true, nil)", claimed, err)
	}

	in := db.updateIn
	if got := aws.ToString(in.ConditionExpression); got != "#status = :pending" {
		t.Errorf("condition = %q", got)
	}
	if _, ok := in.ExpressionAttributeValues[":processing"]; !ok {
		t.Error("update must set the PROCESSING status")
	}
}

func TestClaimLostIsNotAnError(t *testing.T) {
	db := &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{}}
	repo := newTestRepo(db)

	claimed, err := repo.Claim(context.Background(), "r1")
	if err != nil {
		t.Fatalf("a lost claim must not error, got %v", err)
	}
	if claimed {
		t.Fatal("Claim = true, want false")
	}
}

func TestMarkProcessedOnMissingRecord(t *testing.T) {
	db := &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{}}
	repo := newTestRepo(db)

	err := repo.MarkProcessed(context.Background(), "ghost", extract.Fields{})
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	db := &fakeDynamo{getOut: &dynamodb.GetItemOutput{}}
	repo := newTestRepo(db)

	_, err := repo.GetByID(context.Background(), "ghost")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListFollowsPagination(t *testing.T) {
	item := func(id string) map[string]types.AttributeValue {
		av, err := attributevalue.MarshalMap(&entity.ReceiptRecord{ID: id, Status: constants.StatusProcessed})
		if err != nil {
			t.Fatalf("marshal item: %v", err)
		}
		return av
	}
	db := &fakeDynamo{scanOut: []*dynamodb.ScanOutput{
		{
			Items:            []map[string]types.AttributeValue{item("r1")},
			LastEvaluatedKey: map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: "r1"}},
		},
		{Items: []map[string]types.AttributeValue{item("r2")}},
	}}
	repo := newTestRepo(db)

	status := constants.StatusProcessed
	records, err := repo.List(context.Background(), &status)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 || records[0].ID != "r1" || records[1].ID != "r2" {
		t.Fatalf("records = %+v, want r1 and r2", records)
	}
}
