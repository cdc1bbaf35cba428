package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/fidelity-labs/receipt-extractor/internal/common"
	"github.com/fidelity-labs/receipt-extractor/internal/dispatch"
	"github.com/fidelity-labs/receipt-extractor/internal/pipeline"
	"github.com/fidelity-labs/receipt-extractor/internal/recognition"
	"github.com/fidelity-labs/receipt-extractor/internal/repository"
	"github.com/fidelity-labs/receipt-extractor/internal/server"
	"github.com/fidelity-labs/receipt-extractor/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})).With("instance_id", uuid.NewString())
	slog.SetDefault(logger)

	_ = godotenv.Load()

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	if cfg.AWS.AccessKeyID != "" && cfg.AWS.SecretAccessKey != "" {
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		logger.Error("load aws config", "error", err)
		os.Exit(1)
	}

	repo := repository.NewRecordRepository(dynamodb.NewFromConfig(awsCfg), cfg.Store.TableName, logger)
	recognizer := recognition.NewTextractRecognizer(textract.NewFromConfig(awsCfg), cfg.Recognition.Timeout, logger)
	store := storage.NewS3ObjectStore(s3.NewFromConfig(awsCfg), logger)
	proc := pipeline.NewProcessor(repo, recognizer, store, cfg.Storage.Bucket, logger)

	dispatcher := dispatch.NewDispatcher(proc, mode, logger)
	queue := dispatch.NewEventQueue(dispatcher, logger,
		dispatch.WithWorkers(cfg.Dispatch.Workers),
		dispatch.WithQueueSize(cfg.Dispatch.QueueSize),
		dispatch.WithProcessTimeout(cfg.Dispatch.ProcessTimeout),
	)

	if cfg.Store.StreamARN != "" {
		evCh, errCh, err := dispatch.StartPoller(ctx, dynamodbstreams.NewFromConfig(awsCfg), dispatch.PollConfig{
			StreamARN: cfg.Store.StreamARN,
			Interval:  cfg.Store.PollInterval,
		}, logger)
		if err != nil {
			logger.Error("start stream poller", "error", err)
			os.Exit(1)
		}
		go func() {
			for ev := range evCh {
				_ = queue.Enqueue(ctx, ev)
			}
		}()
		go func() {
			for range errCh {
				// Already logged by the poller; keep the channel drained.
			}
		}()
		logger.Info("stream poller started", "stream_arn", cfg.Store.StreamARN)
	} else {
		logger.Warn("RECEIPT_TABLE_STREAM_ARN not set; running with the synchronous trigger only")
	}

	srv := server.New(proc, cfg.Storage.Bucket, mode, logger)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.HTTPAddr)
		if err := srv.Listen(cfg.Server.HTTPAddr); err != nil {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	logger.Info("stopped")
}
