package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/convtrail/convtrail/internal/model"
)

func TestFormat_StripsRaw(t *testing.T) {
	rec := model.InvocationRecord{
		Input:  &model.InputPayload{Raw: json.RawMessage(`{"a":1}`)},
		Output: &model.OutputPayload{Raw: json.RawMessage(`{"b":2}`)},
	}
	got := Format(rec, false)

	if got.Input.Raw != nil || got.Output.Raw != nil {
		t.Error("expected raw payloads stripped")
	}
	if rec.Input.Raw == nil || rec.Output.Raw == nil {
		t.Error("original record must not be mutated")
	}
}

func TestFormat_KeepsRaw(t *testing.T) {
	rec := model.InvocationRecord{
		Input: &model.InputPayload{Raw: json.RawMessage(`{"a":1}`)},
	}
	got := Format(rec, true)
	if string(got.Input.Raw) != `{"a":1}` {
		t.Errorf("expected raw kept, got %q", got.Input.Raw)
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, []model.Warning{
		{Reason: model.WarnMalformedRecord},
		{Reason: model.WarnUnsupportedOperation},
		{Reason: model.WarnMalformedRecord},
	})
	got := buf.String()
	if !strings.Contains(got, "skipped 3 line(s)") {
		t.Errorf("missing count: %q", got)
	}
	if !strings.Contains(got, "malformed_record=2") {
		t.Errorf("missing malformed count: %q", got)
	}
	if !strings.Contains(got, "unsupported_operation=1") {
		t.Errorf("missing unsupported count: %q", got)
	}
}

func TestWriteSummary_NoWarnings(t *testing.T) {
	var buf bytes.Buffer
	WriteSummary(&buf, nil)
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}
