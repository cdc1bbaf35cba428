package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fidelity-labs/receipt-extractor/internal/common"
	"github.com/fidelity-labs/receipt-extractor/internal/entity"
	"github.com/fidelity-labs/receipt-extractor/internal/extract"
	"github.com/fidelity-labs/receipt-extractor/internal/pipeline"
	"github.com/fidelity-labs/receipt-extractor/internal/recognition"
)

type fakeExtractor struct {
	lastID   string
	lastRef  entity.ObjectRef
	lastMode recognition.Mode

	out pipeline.Outcome
	err error
}

func (f *fakeExtractor) ProcessByID(_ context.Context, id string, fallback entity.ObjectRef, mode recognition.Mode) (pipeline.Outcome, error) {
	f.lastID = id
	f.lastRef = fallback
	f.lastMode = mode
	return f.out, f.err
}

func strptr(s string) *string { return &s }

func TestExtractSuccess(t *testing.T) {
	conf := 97.0
	ext := &fakeExtractor{out: pipeline.Outcome{
		RecordID: "r1",
		Fields: extract.Fields{
			Vendor:        strptr("Store X"),
			Total:         strptr("12.50"),
			ExtractedText: strptr("Store X\nTotal 12.50"),
			Confidence:    &conf,
		},
	}}
	srv := New(ext, "uploads-bucket", recognition.ModeDetect, nil)

	req := httptest.NewRequest("POST", "/extract",
		strings.NewReader(`{"recordId":"r1","s3Key":"uploads/r1-receipt.png"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body extractResponse
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("unmarshal response: %v (%s)", err, raw)
	}
	if body.RecordID != "r1" || body.Vendor == nil || *body.Vendor != "Store X" {
		t.Errorf("unexpected response: %s", raw)
	}
	if body.Confidence == nil || *body.Confidence != 97 {
		t.Errorf("confidence = %v, want 97", body.Confidence)
	}

	if ext.lastID != "r1" {
		t.Errorf("record id passed to pipeline = %q", ext.lastID)
	}
	if ext.lastRef.Bucket != "uploads-bucket" || ext.lastRef.Key != "uploads/r1-receipt.png" {
		t.Errorf("fallback ref = %+v", ext.lastRef)
	}
	if ext.lastMode != recognition.ModeDetect {
		t.Errorf("mode = %q, want detect", ext.lastMode)
	}
}

func TestExtractModeOverride(t *testing.T) {
	ext := &fakeExtractor{}
	srv := New(ext, "b", recognition.ModeDetect, nil)

	req := httptest.NewRequest("POST", "/extract",
		strings.NewReader(`{"recordId":"r1","s3Key":"k","mode":"analyzeExpense"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ext.lastMode != recognition.ModeAnalyzeExpense {
		t.Errorf("mode = %q, want analyzeExpense", ext.lastMode)
	}
}

func TestExtractDerivesRecordIDFromKey(t *testing.T) {
	ext := &fakeExtractor{}
	srv := New(ext, "b", recognition.ModeDetect, nil)

	req := httptest.NewRequest("POST", "/extract",
		strings.NewReader(`{"s3Key":"uploads/abc123-receipt.png"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ext.lastID != "abc123" {
		t.Errorf("derived record id = %q, want abc123", ext.lastID)
	}
}

func TestExtractSkippedRecord(t *testing.T) {
	ext := &fakeExtractor{out: pipeline.Outcome{RecordID: "r1", Skipped: true}}
	srv := New(ext, "b", recognition.ModeDetect, nil)

	req := httptest.NewRequest("POST", "/extract",
		strings.NewReader(`{"recordId":"r1","s3Key":"k"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body extractResponse
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !body.Skipped || body.Message != "record already processed" {
		t.Errorf("unexpected response: %s", raw)
	}
}

func TestExtractBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"recordId":`},
		{"missing s3Key", `{"recordId":"r1"}`},
		{"empty recordId", `{"recordId":"","s3Key":"k"}`},
		{"unknown mode", `{"recordId":"r1","s3Key":"k","mode":"ocr"}`},
		{"unknown field", `{"recordId":"r1","s3Key":"k","extra":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext := &fakeExtractor{}
			srv := New(ext, "b", recognition.ModeDetect, nil)

			req := httptest.NewRequest("POST", "/extract", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := srv.App().Test(req)
			if err != nil {
				t.Fatalf("Test: %v", err)
			}
			if resp.StatusCode != 400 {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if ext.lastID != "" {
				t.Error("pipeline must not run for a rejected request")
			}
		})
	}
}

func TestExtractErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unknown record", common.ErrNotFound, 404},
		{"recognition failure", common.NewRecognitionError("unsupported format", nil), 502},
		{"malformed record", common.ErrMalformedInput, 400},
		{"store failure", common.NewStoreError("write PROCESSED", common.ErrPersistenceFailed), 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := New(&fakeExtractor{err: tt.err}, "b", recognition.ModeDetect, nil)

			req := httptest.NewRequest("POST", "/extract",
				strings.NewReader(`{"recordId":"r1","s3Key":"k"}`))
			req.Header.Set("Content-Type", "application/json")
			resp, err := srv.App().Test(req)
			if err != nil {
				t.Fatalf("Test: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestPreflightRequest(t *testing.T) {
	srv := New(&fakeExtractor{}, "b", recognition.ModeDetect, nil)

	req := httptest.NewRequest("OPTIONS", "/extract", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if resp.StatusCode != 204 {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestHealthz(t *testing.T) {
	srv := New(&fakeExtractor{}, "b", recognition.ModeDetect, nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("Test: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
