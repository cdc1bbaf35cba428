package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/joho/godotenv"

	"github.com/fidelity-labs/receipt-extractor/internal/common"
	"github.com/fidelity-labs/receipt-extractor/internal/entity"
	"github.com/fidelity-labs/receipt-extractor/internal/pipeline"
	"github.com/fidelity-labs/receipt-extractor/internal/recognition"
	"github.com/fidelity-labs/receipt-extractor/internal/repository"
	"github.com/fidelity-labs/receipt-extractor/internal/storage"
)

// runextract runs the pipeline once for a single record: runextract
// <record-id> [s3-key]. The key is only a fallback for records created
// before the upload surface started writing one.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	if len(os.Args) < 2 || len(os.Args) > 3 {
		logger.Error("usage", "cmd", "runextract <record-id> [s3-key]")
		os.Exit(2)
	}
	recordID := os.Args[1]
	var fallback entity.ObjectRef
	if len(os.Args) == 3 {
		fallback.Key = os.Args[2]
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	mode, err := recognition.ParseMode(cfg.Recognition.Mode)
	if err != nil {
		logger.Error("invalid recognition mode", "error", err)
		os.Exit(1)
	}
	fallback.Bucket = cfg.Storage.Bucket

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("load aws config", "error", err)
		os.Exit(1)
	}

	repo := repository.NewRecordRepository(dynamodb.NewFromConfig(awsCfg), cfg.Store.TableName, logger)
	recognizer := recognition.NewTextractRecognizer(textract.NewFromConfig(awsCfg), cfg.Recognition.Timeout, logger)
	store := storage.NewS3ObjectStore(s3.NewFromConfig(awsCfg), logger)
	proc := pipeline.NewProcessor(repo, recognizer, store, cfg.Storage.Bucket, logger)

	start := time.Now()
	out, err := proc.ProcessByID(ctx, recordID, fallback, mode)
	dur := time.Since(start)

	if err != nil {
		logger.Error("extraction failed",
			"record_id", recordID, "error", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}
	if out.Skipped {
		logger.Info("record already processed", "record_id", recordID)
		return
	}

	conf := 0.0
	if out.Fields.Confidence != nil {
		conf = *out.Fields.Confidence
	}
	logger.Info("extraction OK",
		"record_id", recordID,
		"confidence", conf,
		"line_items", len(out.Fields.LineItems),
		"duration_ms", dur.Milliseconds(),
	)
}
