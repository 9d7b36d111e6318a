package stdout

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/convtrail/convtrail/internal/model"
)

func record() model.InvocationRecord {
	return model.InvocationRecord{
		InvocationID: "req-1",
		ModelID:      "anthropic.claude-3-haiku-20240307-v1:0",
		Operation:    "Converse",
		Timestamp:    time.Date(2026, 2, 23, 10, 0, 0, 0, time.UTC),
		Output: &model.OutputPayload{
			Message: model.Message{Role: "assistant", Content: []model.ContentBlock{{Text: "hi"}}},
			Raw:     json.RawMessage(`{"x":1}`),
		},
		Metadata: model.Metadata{
			RawShape:   model.ShapeSingle,
			StopReason: "end_turn",
			Usage:      model.Usage{TotalTokens: 17},
			LatencyMS:  420,
		},
	}
}

func TestNDJSON(t *testing.T) {
	var buf bytes.Buffer
	o := New(NDJSON, WithWriter(&buf))
	if err := o.Write(context.Background(), record()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := o.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	var got model.InvocationRecord
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if got.InvocationID != "req-1" {
		t.Errorf("unexpected id: %q", got.InvocationID)
	}
	if got.Metadata.RawShape != model.ShapeSingle {
		t.Errorf("unexpected shape: %q", got.Metadata.RawShape)
	}
	if got.Output.Raw != nil {
		t.Error("raw payload must be stripped by default")
	}
}

func TestNDJSON_WithRaw(t *testing.T) {
	var buf bytes.Buffer
	o := New(NDJSON, WithWriter(&buf), WithRaw())
	if err := o.Write(context.Background(), record()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got model.InvocationRecord
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if string(got.Output.Raw) != `{"x":1}` {
		t.Errorf("expected raw payload kept, got %q", got.Output.Raw)
	}
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	o := New(Table, WithWriter(&buf))
	rec := record()
	rec.Metadata.Incomplete = true
	if err := o.Write(context.Background(), rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := o.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "TIMESTAMP") {
		t.Errorf("missing header: %q", got)
	}
	if !strings.Contains(got, "anthropic.claude-3-haiku-20240307-v1:0") {
		t.Errorf("missing model id: %q", got)
	}
	if !strings.Contains(got, "end_turn") {
		t.Errorf("missing stop reason: %q", got)
	}
	if !strings.Contains(got, "incomplete") {
		t.Errorf("missing incomplete flag: %q", got)
	}
}
