// Package server exposes the synchronous trigger surface: a small HTTP API
// that runs the extraction pipeline for one record on demand.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/fidelity-labs/receipt-extractor/internal/common"
	"github.com/fidelity-labs/receipt-extractor/internal/entity"
	"github.com/fidelity-labs/receipt-extractor/internal/pipeline"
	"github.com/fidelity-labs/receipt-extractor/internal/recognition"
)

// Extractor is what the server needs from the pipeline.
type Extractor interface {
	ProcessByID(ctx context.Context, id string, fallback entity.ObjectRef, mode recognition.Mode) (pipeline.Outcome, error)
}

type Server struct {
	app           *fiber.App
	proc          Extractor
	defaultBucket string
	defaultMode   recognition.Mode
	logger        *slog.Logger
}

func New(proc Extractor, defaultBucket string, defaultMode recognition.Mode, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		proc:          proc,
		defaultBucket: defaultBucket,
		defaultMode:   defaultMode,
		logger:        logger,
	}

	app := fiber.New(fiber.Config{
		AppName:               "receipt-extractor",
		DisableStartupMessage: true,
	})
	// Browser clients send a preflight probe before the extract call; answer
	// it with an empty success, no business logic.
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "*",
	}))

	app.Get("/healthz", s.handleHealth)
	app.Post("/extract", s.handleExtract)

	s.app = app
	return s
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

type extractRequest struct {
	RecordID string `json:"recordId"`
	S3Key    string `json:"s3Key"`
	Mode     string `json:"mode"`
}

type extractResponse struct {
	Message       string            `json:"message"`
	RecordID      string            `json:"recordId"`
	Skipped       bool              `json:"skipped,omitempty"`
	ExtractedText *string           `json:"extractedText,omitempty"`
	Confidence    *float64          `json:"confidence,omitempty"`
	Vendor        *string           `json:"vendor,omitempty"`
	Total         *string           `json:"total,omitempty"`
	ReceiptDate   *string           `json:"receiptDate,omitempty"`
	LineItems     []entity.LineItem `json:"lineItems,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleExtract(c *fiber.Ctx) error {
	body := c.Body()

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "malformed request: invalid JSON"})
	}
	if err := extractRequestSchema.Validate(raw); err != nil {
		s.logger.Warn("extract request rejected", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "malformed request: " + err.Error()})
	}

	var req extractRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "malformed request: " + err.Error()})
	}

	if req.RecordID == "" {
		// Upload keys embed the record ID; derive it the way the upload
		// collaborator writes it.
		req.RecordID = entity.RecordIDFromKey(req.S3Key)
	}

	mode := s.defaultMode
	if req.Mode != "" {
		var err error
		if mode, err = recognition.ParseMode(req.Mode); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
		}
	}

	fallback := entity.ObjectRef{Bucket: s.defaultBucket, Key: req.S3Key}
	out, err := s.proc.ProcessByID(c.UserContext(), req.RecordID, fallback, mode)
	if err != nil {
		return s.renderError(c, req.RecordID, err)
	}

	if out.Skipped {
		return c.JSON(extractResponse{
			Message:  "record already processed",
			RecordID: req.RecordID,
			Skipped:  true,
		})
	}

	f := out.Fields
	return c.JSON(extractResponse{
		Message:       "extraction succeeded",
		RecordID:      req.RecordID,
		ExtractedText: f.ExtractedText,
		Confidence:    f.Confidence,
		Vendor:        f.Vendor,
		Total:         f.Total,
		ReceiptDate:   f.ReceiptDate,
		LineItems:     f.LineItems,
	})
}

func (s *Server) renderError(c *fiber.Ctx, recordID string, err error) error {
	s.logger.Error("extract request failed", "record_id", recordID, "error", err)
	switch {
	case errors.Is(err, common.ErrMalformedInput):
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: err.Error()})
	case errors.Is(err, common.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(errorResponse{Error: err.Error()})
	case errors.Is(err, common.ErrRecognitionFailed):
		return c.Status(fiber.StatusBadGateway).JSON(errorResponse{Error: err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{Error: err.Error()})
	}
}
