package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fidelity-labs/receipt-extractor/internal/common"
	"github.com/fidelity-labs/receipt-extractor/internal/entity"
)

// ObjectStore is the read-only object-store boundary. Ensure confirms the
// referenced object is durable before recognition is invoked on it.
type ObjectStore interface {
	Ensure(ctx context.Context, ref entity.ObjectRef) error
}

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type s3Store struct {
	client S3API
	logger *slog.Logger
}

func NewS3ObjectStore(client S3API, logger *slog.Logger) ObjectStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &s3Store{client: client, logger: logger}
}

func (s *s3Store) Ensure(ctx context.Context, ref entity.ObjectRef) error {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			s.logger.Warn("object missing", "object", ref.String())
			return common.NewRecognitionError("object not found: "+ref.String(), err)
		}
		s.logger.Error("object head failed", "object", ref.String(), "error", err)
		return common.NewRecognitionError("object store failure: "+ref.String(), err)
	}
	return nil
}
