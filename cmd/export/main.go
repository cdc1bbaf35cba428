package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"

	"github.com/fidelity-labs/receipt-extractor/constants"
	"github.com/fidelity-labs/receipt-extractor/internal/common"
	"github.com/fidelity-labs/receipt-extractor/internal/export"
	"github.com/fidelity-labs/receipt-extractor/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	statusFlag := flag.String("status", "", "export only records with this status (PENDING|PROCESSING|PROCESSED|FAILED)")
	outFlag := flag.String("o", "receipts.xlsx", "output file path")
	flag.Parse()

	var status *constants.RecordStatus
	if *statusFlag != "" {
		s := constants.RecordStatus(*statusFlag)
		status = &s
	}

	cfg := common.LoadConfig()
	if cfg.Store.TableName == "" {
		logger.Error("RECEIPT_TABLE_NAME required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Error("load aws config", "error", err)
		os.Exit(1)
	}

	repo := repository.NewRecordRepository(dynamodb.NewFromConfig(awsCfg), cfg.Store.TableName, logger)
	svc := export.NewService(repo, logger)

	data, err := svc.ExportRecordsXLSX(ctx, status)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outFlag, data, 0o644); err != nil {
		logger.Error("write output", "path", *outFlag, "error", err)
		os.Exit(1)
	}
	logger.Info("export written", "path", *outFlag, "bytes", len(data))
}
