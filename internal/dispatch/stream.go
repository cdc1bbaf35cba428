package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	streamsav "github.com/aws/aws-sdk-go-v2/feature/dynamodbstreams/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"

	"github.com/fidelity-labs/receipt-extractor/internal/entity"
)

// StreamsAPI is the subset of the DynamoDB Streams client the poller uses.
type StreamsAPI interface {
	DescribeStream(ctx context.Context, in *dynamodbstreams.DescribeStreamInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error)
	GetShardIterator(ctx context.Context, in *dynamodbstreams.GetShardIteratorInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, in *dynamodbstreams.GetRecordsInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error)
}

type PollConfig struct {
	StreamARN string
	Interval  time.Duration // pause between polling rounds
	BatchSize int32         // max records per GetRecords call
}

// StartPoller tails the table's change stream and emits decoded change
// events until ctx is done. It mirrors the store's at-least-once delivery:
// consumers must tolerate duplicates.
func StartPoller(ctx context.Context, client StreamsAPI, cfg PollConfig, logger *slog.Logger) (<-chan ChangeEvent, <-chan error, error) {
	if cfg.StreamARN == "" {
		return nil, nil, errors.New("stream ARN is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	evCh := make(chan ChangeEvent, 256)
	errCh := make(chan error, 1)

	p := &poller{
		client:    client,
		cfg:       cfg,
		logger:    logger,
		iterators: map[string]string{},
	}

	go func() {
		defer close(evCh)
		defer close(errCh)

		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		for {
			if err := p.poll(ctx, evCh); err != nil {
				logger.Error("stream poll failed", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return evCh, errCh, nil
}

type poller struct {
	client    StreamsAPI
	cfg       PollConfig
	logger    *slog.Logger
	iterators map[string]string // shard ID -> next iterator
}

// poll runs one round: refresh the shard set, then drain one batch per shard.
func (p *poller) poll(ctx context.Context, evCh chan<- ChangeEvent) error {
	shards, err := p.listShards(ctx)
	if err != nil {
		return err
	}

	for _, shardID := range shards {
		iter, ok := p.iterators[shardID]
		if !ok {
			iter, err = p.shardIterator(ctx, shardID)
			if err != nil {
				return err
			}
		}

		out, err := p.client.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{
			ShardIterator: aws.String(iter),
			Limit:         aws.Int32(p.cfg.BatchSize),
		})
		if err != nil {
			var expired *types.ExpiredIteratorException
			var trimmed *types.TrimmedDataAccessException
			if errors.As(err, &expired) || errors.As(err, &trimmed) {
				// Re-acquire on the next round.
				delete(p.iterators, shardID)
				continue
			}
			return err
		}

		for _, rec := range out.Records {
			ev, ok := p.decode(rec)
			if !ok {
				continue
			}
			select {
			case evCh <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if out.NextShardIterator == nil {
			// Shard closed and fully consumed.
			delete(p.iterators, shardID)
			continue
		}
		p.iterators[shardID] = aws.ToString(out.NextShardIterator)
	}
	return nil
}

func (p *poller) listShards(ctx context.Context) ([]string, error) {
	var (
		shards []string
		start  *string
	)
	for {
		out, err := p.client.DescribeStream(ctx, &dynamodbstreams.DescribeStreamInput{
			StreamArn:             aws.String(p.cfg.StreamARN),
			ExclusiveStartShardId: start,
		})
		if err != nil {
			return nil, err
		}
		if out.StreamDescription == nil {
			return shards, nil
		}
		for _, s := range out.StreamDescription.Shards {
			shards = append(shards, aws.ToString(s.ShardId))
		}
		if out.StreamDescription.LastEvaluatedShardId == nil {
			return shards, nil
		}
		start = out.StreamDescription.LastEvaluatedShardId
	}
}

func (p *poller) shardIterator(ctx context.Context, shardID string) (string, error) {
	out, err := p.client.GetShardIterator(ctx, &dynamodbstreams.GetShardIteratorInput{
		StreamArn:         aws.String(p.cfg.StreamARN),
		ShardId:           aws.String(shardID),
		ShardIteratorType: types.ShardIteratorTypeTrimHorizon,
	})
	if err != nil {
		return "", err
	}
	iter := aws.ToString(out.ShardIterator)
	p.iterators[shardID] = iter
	return iter, nil
}

func (p *poller) decode(rec types.Record) (ChangeEvent, bool) {
	if rec.Dynamodb == nil || len(rec.Dynamodb.NewImage) == 0 {
		return ChangeEvent{}, false
	}
	var record entity.ReceiptRecord
	if err := streamsav.UnmarshalMap(rec.Dynamodb.NewImage, &record); err != nil {
		p.logger.Warn("stream record decode failed", "error", err)
		return ChangeEvent{}, false
	}
	return ChangeEvent{Type: EventType(rec.EventName), Record: record}, true
}
