package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/fidelity-labs/receipt-extractor/constants"
	"github.com/fidelity-labs/receipt-extractor/internal/entity"
	"github.com/fidelity-labs/receipt-extractor/internal/repository"
)

// Service is a tiny façade over the record repository that produces XLSX
// bytes for exports.
type Service struct {
	repo   repository.RecordRepository
	logger *slog.Logger
}

func NewService(repo repository.RecordRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ExportRecordsXLSX returns an XLSX workbook (as bytes) with one row per
// record, optionally filtered to a single status.
func (s *Service) ExportRecordsXLSX(ctx context.Context, status *constants.RecordStatus) ([]byte, error) {
	start := time.Now()

	recs, err := s.repo.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Receipts"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Record ID",
		"Owner",
		"Object Key",
		"Status",
		"Vendor",
		"Total",
		"Receipt Date",
		"Line Items",
		"Confidence",
		"Updated At",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, r.ID)
		write(2, r.OwnerID)
		write(3, r.S3Key)
		write(4, string(r.Status))
		write(5, deref(r.Vendor))
		write(6, deref(r.Total))
		write(7, deref(r.ReceiptDate))
		write(8, formatLineItems(r.LineItems))
		if r.Confidence != nil {
			write(9, *r.Confidence)
		}
		if !r.UpdatedAt.IsZero() {
			write(10, r.UpdatedAt.UTC().Format(time.RFC3339))
		}

		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 28) // id
	_ = f.SetColWidth(sheet, "B", "C", 32) // owner, key
	_ = f.SetColWidth(sheet, "E", "E", 28) // vendor
	_ = f.SetColWidth(sheet, "H", "H", 60) // line items
	_ = f.SetColWidth(sheet, "J", "J", 22) // updated at

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// formatLineItems flattens items to "description @ price" pairs, one per
// line, so the column stays readable in a spreadsheet.
func formatLineItems(items []entity.LineItem) string {
	if len(items) == 0 {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		desc := deref(it.Description)
		if desc == "" {
			desc = "(no description)"
		}
		part := desc
		if it.Quantity != nil {
			part += " x" + *it.Quantity
		}
		if it.Price != nil {
			part += " @ " + *it.Price
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "\n")
}
