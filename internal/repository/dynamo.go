package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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

// DynamoAPI is the subset of the DynamoDB client the repository uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type recordRepository struct {
	db     DynamoAPI
	table  string
	logger *slog.Logger
	now    func() time.Time
}

func NewRecordRepository(db DynamoAPI, table string, logger *slog.Logger) RecordRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &recordRepository{db: db, table: table, logger: logger, now: time.Now}
}

func recordKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"id": &types.AttributeValueMemberS{Value: id},
	}
}

func (r *recordRepository) GetByID(ctx context.Context, id string) (*entity.ReceiptRecord, error) {
	out, err := r.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            recordKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		r.logger.Error("record get failed", "record_id", id, "error", err)
		return nil, common.NewStoreError("get record "+id, err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: id=%s", common.ErrNotFound, id)
	}

	var rec entity.ReceiptRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, common.NewStoreError("decode record "+id, err)
	}
	return &rec, nil
}

func (r *recordRepository) Claim(ctx context.Context, id string) (bool, error) {
	_, err := r.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.table),
		Key:                 recordKey(id),
		UpdateExpression:    aws.String("SET " + statusName + " = :processing, updatedAt = :updatedAt"),
		ConditionExpression: aws.String(statusName + " = :pending"),
		ExpressionAttributeNames: map[string]string{
			statusName: "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":processing": &types.AttributeValueMemberS{Value: string(constants.StatusProcessing)},
			":pending":    &types.AttributeValueMemberS{Value: string(constants.StatusPending)},
			":updatedAt":  &types.AttributeValueMemberS{Value: r.now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			// Another worker holds the record (or it is already terminal).
			r.logger.Debug("record claim lost", "record_id", id)
			return false, nil
		}
		r.logger.Error("record claim failed", "record_id", id, "error", err)
		return false, common.NewStoreError("claim record "+id, err)
	}
	r.logger.Info("record claimed", "record_id", id)
	return true, nil
}

func (r *recordRepository) MarkProcessed(ctx context.Context, id string, fields extract.Fields) error {
	return r.terminal(ctx, id, constants.StatusProcessed, fields)
}

func (r *recordRepository) MarkFailed(ctx context.Context, id string) error {
	return r.terminal(ctx, id, constants.StatusFailed, extract.Fields{})
}

func (r *recordRepository) terminal(ctx context.Context, id string, status constants.RecordStatus, fields extract.Fields) error {
	u, err := buildTerminalUpdate(status, fields, r.now())
	if err != nil {
		return common.NewStoreError("build update for record "+id, err)
	}

	_, err = r.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.table),
		Key:                       recordKey(id),
		UpdateExpression:          aws.String(u.expression()),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeNames:  u.names,
		ExpressionAttributeValues: u.values,
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			// The update is keyed by id alone; a missing record is fatal.
			return fmt.Errorf("%w: id=%s", common.ErrNotFound, id)
		}
		r.logger.Error("record terminal write failed", "record_id", id, "status", status, "error", err)
		return common.NewStoreError(fmt.Sprintf("write %s for record %s", status, id), err)
	}
	r.logger.Info("record transitioned", "record_id", id, "status", status)
	return nil
}

func (r *recordRepository) List(ctx context.Context, status *constants.RecordStatus) ([]*entity.ReceiptRecord, error) {
	in := &dynamodb.ScanInput{
		TableName: aws.String(r.table),
	}
	if status != nil {
		in.FilterExpression = aws.String(statusName + " = :status")
		in.ExpressionAttributeNames = map[string]string{statusName: "status"}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(*status)},
		}
	}

	var records []*entity.ReceiptRecord
	for {
		out, err := r.db.Scan(ctx, in)
		if err != nil {
			r.logger.Error("record scan failed", "error", err)
			return nil, common.NewStoreError("scan records", err)
		}
		page := make([]*entity.ReceiptRecord, len(out.Items))
		for i := range out.Items {
			var rec entity.ReceiptRecord
			if err := attributevalue.UnmarshalMap(out.Items[i], &rec); err != nil {
				return nil, common.NewStoreError("decode record page", err)
			}
			page[i] = &rec
		}
		records = append(records, page...)

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return records, nil
}
