package stream

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/convtrail/convtrail/internal/model"
)

var t0 = time.Date(2026, 2, 23, 10, 0, 0, 0, time.UTC)

func deltaEvent(id string, seq int, blockIndex int, text string) model.RawEvent {
	s := seq
	return model.RawEvent{
		Shape:        model.ShapeChunk,
		InvocationID: id,
		ModelID:      "anthropic.claude-3-haiku-20240307-v1:0",
		Region:       "us-east-1",
		Operation:    "ConverseStream",
		Timestamp:    t0.Add(time.Duration(seq) * time.Second),
		EventID:      "evt-" + id,
		Chunk: &model.ChunkFrame{
			Sequence:          &s,
			ContentBlockIndex: blockIndex,
			DeltaText:         text,
		},
	}
}

func terminalEvent(id string, seq int, stopReason string) model.RawEvent {
	s := seq
	return model.RawEvent{
		Shape:        model.ShapeChunk,
		InvocationID: id,
		ModelID:      "anthropic.claude-3-haiku-20240307-v1:0",
		Region:       "us-east-1",
		Operation:    "ConverseStream",
		Timestamp:    t0.Add(time.Duration(seq) * time.Second),
		EventID:      "evt-term",
		Chunk: &model.ChunkFrame{
			Sequence:   &s,
			StopReason: stopReason,
			Usage:      &model.Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
			LatencyMS:  1500,
		},
	}
}

func TestReassemble_ConcatenatesDeltas(t *testing.T) {
	g := NewGroup(deltaEvent("abc", 0, 0, "Hel"))
	g.Add(deltaEvent("abc", 1, 0, "lo, "))
	g.Add(deltaEvent("abc", 2, 0, "world"))
	g.Add(terminalEvent("abc", 3, "end_turn"))

	if !g.Complete() {
		t.Fatal("expected group complete after terminal frame")
	}

	rec, warns := g.Reassemble()
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %+v", warns)
	}
	if rec.Output.Message.Content[0].Text != "Hello, world" {
		t.Errorf("unexpected reassembled text: %q", rec.Output.Message.Content[0].Text)
	}
	if rec.Output.Message.Role != "assistant" {
		t.Errorf("unexpected role: %q", rec.Output.Message.Role)
	}
	if rec.Metadata.StopReason != "end_turn" {
		t.Errorf("unexpected stop reason: %q", rec.Metadata.StopReason)
	}
	if rec.Metadata.Usage.TotalTokens != 30 {
		t.Errorf("unexpected usage: %+v", rec.Metadata.Usage)
	}
	if rec.Metadata.LatencyMS != 1500 {
		t.Errorf("unexpected latency: %d", rec.Metadata.LatencyMS)
	}
	if rec.Metadata.Incomplete {
		t.Error("terminated stream must not be incomplete")
	}
	if rec.Metadata.RawShape != model.ShapeChunk {
		t.Errorf("unexpected raw shape: %q", rec.Metadata.RawShape)
	}
	if !rec.Timestamp.Equal(t0) {
		t.Errorf("expected first-frame timestamp, got %v", rec.Timestamp)
	}
}

// Reordering frames that carry explicit sequence indices must not change
// the reassembled record.
func TestReassemble_PermutationIdempotent(t *testing.T) {
	ordered := []model.RawEvent{
		deltaEvent("xyz", 0, 0, "one "),
		deltaEvent("xyz", 1, 0, "two "),
		deltaEvent("xyz", 2, 0, "three"),
		terminalEvent("xyz", 3, "end_turn"),
	}
	permuted := []model.RawEvent{ordered[2], ordered[3], ordered[0], ordered[1]}

	build := func(events []model.RawEvent) model.InvocationRecord {
		g := NewGroup(events[0])
		for _, ev := range events[1:] {
			g.Add(ev)
		}
		rec, _ := g.Reassemble()
		return rec
	}

	a, b := build(ordered), build(permuted)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("records differ under permutation:\n%+v\n%+v", a, b)
	}
	if a.Output.Message.Content[0].Text != "one two three" {
		t.Errorf("unexpected text: %q", a.Output.Message.Content[0].Text)
	}
}

// Indexed frames must sort by sequence even when an index-less frame
// (here the request-body frame) sits between them in arrival order.
func TestReassemble_IndexedFramesSortPastRequestFrame(t *testing.T) {
	req := model.RawEvent{
		Shape:        model.ShapeChunk,
		InvocationID: "abc",
		ModelID:      "m",
		Operation:    "ConverseStream",
		Timestamp:    t0,
		Input: &model.InputPayload{
			Messages: []model.Message{{Role: "user", Content: []model.ContentBlock{{Text: "go"}}}},
		},
	}

	g := NewGroup(deltaEvent("abc", 1, 0, "B"))
	g.Add(req)
	g.Add(deltaEvent("abc", 0, 0, "A"))
	g.Add(terminalEvent("abc", 2, "end_turn"))

	rec, warns := g.Reassemble()
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %+v", warns)
	}
	if got := rec.Output.Message.Content[0].Text; got != "AB" {
		t.Errorf("indexed frames not ordered by sequence: got %q, want %q", got, "AB")
	}
	if rec.Input == nil || rec.Input.Messages[0].Content[0].Text != "go" {
		t.Errorf("request frame lost during reordering: %+v", rec.Input)
	}
}

func TestReassemble_IncompleteStream(t *testing.T) {
	g := NewGroup(deltaEvent("xyz", 0, 0, "partial "))
	g.Add(deltaEvent("xyz", 1, 0, "answer"))

	if g.Complete() {
		t.Fatal("group without terminal frame must not be complete")
	}

	rec, warns := g.Reassemble()
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %+v", warns)
	}
	if !rec.Metadata.Incomplete {
		t.Error("expected incomplete flag")
	}
	if rec.Output.Message.Content[0].Text != "partial answer" {
		t.Errorf("unexpected text: %q", rec.Output.Message.Content[0].Text)
	}
	if rec.Metadata.StopReason != "" {
		t.Errorf("truncated stream must have no stop reason, got %q", rec.Metadata.StopReason)
	}
}

func TestReassemble_MalformedChunkSkipped(t *testing.T) {
	empty := deltaEvent("abc", 1, 0, "") // neither delta nor stream stop

	g := NewGroup(deltaEvent("abc", 0, 0, "ok"))
	g.Add(empty)
	g.Add(terminalEvent("abc", 2, "end_turn"))

	rec, warns := g.Reassemble()
	if len(warns) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warns))
	}
	if warns[0].Reason != model.WarnMalformedChunk {
		t.Errorf("unexpected warning reason: %q", warns[0].Reason)
	}
	if warns[0].InvocationID != "abc" {
		t.Errorf("warning must name the invocation, got %q", warns[0].InvocationID)
	}
	if rec.Output.Message.Content[0].Text != "ok" {
		t.Errorf("good frames must survive a malformed sibling, got %q",
			rec.Output.Message.Content[0].Text)
	}
	if rec.Metadata.Incomplete {
		t.Error("group with terminal frame stays complete despite skipped chunk")
	}
}

func TestReassemble_ToolUseFragments(t *testing.T) {
	frag := func(seq int, fragment string) model.RawEvent {
		ev := deltaEvent("tool", seq, 1, "")
		ev.Chunk.ToolUse = &model.ToolUseDelta{InputFragment: fragment}
		return ev
	}
	first := frag(1, `{"locat`)
	first.Chunk.ToolUse.ToolUseID = "tu-1"
	first.Chunk.ToolUse.Name = "get_weather"

	g := NewGroup(deltaEvent("tool", 0, 0, "checking "))
	g.Add(first)
	g.Add(frag(2, `ion": "Tokyo"}`))
	g.Add(terminalEvent("tool", 3, "tool_use"))

	rec, warns := g.Reassemble()
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %+v", warns)
	}
	content := rec.Output.Message.Content
	if len(content) != 2 {
		t.Fatalf("expected 2 content blocks, got %d", len(content))
	}
	if content[0].Text != "checking " {
		t.Errorf("unexpected text block: %q", content[0].Text)
	}
	tu := content[1].ToolUse
	if tu == nil {
		t.Fatal("expected tool use block")
	}
	if tu.ToolUseID != "tu-1" || tu.Name != "get_weather" {
		t.Errorf("unexpected tool identity: %+v", tu)
	}
	var input map[string]string
	if err := json.Unmarshal(tu.Input, &input); err != nil {
		t.Fatalf("merged tool input is not valid JSON: %v", err)
	}
	if input["location"] != "Tokyo" {
		t.Errorf("unexpected tool input: %+v", input)
	}
}

func TestReassemble_InputFromFirstFrame(t *testing.T) {
	req := model.RawEvent{
		Shape:        model.ShapeChunk,
		InvocationID: "abc",
		ModelID:      "m",
		Operation:    "ConverseStream",
		Timestamp:    t0,
		Input: &model.InputPayload{
			Messages:        []model.Message{{Role: "user", Content: []model.ContentBlock{{Text: "go"}}}},
			InferenceConfig: map[string]any{"temperature": 0.5},
		},
	}
	g := NewGroup(req)
	g.Add(deltaEvent("abc", 0, 0, "done"))
	g.Add(terminalEvent("abc", 1, "end_turn"))

	rec, _ := g.Reassemble()
	if rec.Input == nil || rec.Input.Messages[0].Content[0].Text != "go" {
		t.Errorf("expected request body from first frame, got %+v", rec.Input)
	}
	if rec.Metadata.InferenceConfig["temperature"] != 0.5 {
		t.Errorf("expected inference config in metadata, got %+v", rec.Metadata.InferenceConfig)
	}
}

// The synthesized raw body must look like a synchronous response.
func TestReassemble_SynthesizedRaw(t *testing.T) {
	g := NewGroup(deltaEvent("abc", 0, 0, "hi"))
	g.Add(terminalEvent("abc", 1, "end_turn"))

	rec, _ := g.Reassemble()
	var resp struct {
		Output struct {
			Message model.Message `json:"message"`
		} `json:"output"`
		StopReason string      `json:"stopReason"`
		Usage      model.Usage `json:"usage"`
		Metrics    struct {
			LatencyMS int64 `json:"latencyMs"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(rec.Output.Raw, &resp); err != nil {
		t.Fatalf("synthesized raw does not parse: %v", err)
	}
	if resp.Output.Message.Content[0].Text != "hi" {
		t.Errorf("unexpected raw message: %+v", resp.Output.Message)
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("unexpected raw stop reason: %q", resp.StopReason)
	}
	if resp.Usage.TotalTokens != 30 {
		t.Errorf("unexpected raw usage: %+v", resp.Usage)
	}
	if resp.Metrics.LatencyMS != 1500 {
		t.Errorf("unexpected raw latency: %d", resp.Metrics.LatencyMS)
	}
}

func TestGroupStart_TakesEarliestTimestamp(t *testing.T) {
	g := NewGroup(deltaEvent("abc", 2, 0, "late"))
	g.Add(deltaEvent("abc", 0, 0, "early"))

	if !g.Start().Equal(t0) {
		t.Errorf("expected earliest timestamp %v, got %v", t0, g.Start())
	}
}
