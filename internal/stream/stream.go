// Package stream reassembles the frames of one ConverseStream invocation
// into the record a synchronous call would have produced.
package stream

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/convtrail/convtrail/internal/model"
)

// Group accumulates the chunk events of one invocation. Members share an
// invocation id and model id; the group is complete once a terminal frame
// (one carrying a stop reason) has arrived.
type Group struct {
	invocationID string
	modelID      string
	region       string
	operation    string
	start        time.Time
	events       []model.RawEvent
	terminal     bool
}

// NewGroup starts a group from its first chunk event.
func NewGroup(first model.RawEvent) *Group {
	g := &Group{
		invocationID: first.InvocationID,
		modelID:      first.ModelID,
		region:       first.Region,
		operation:    first.Operation,
		start:        first.Timestamp,
	}
	g.Add(first)
	return g
}

// Add appends a chunk event in arrival order.
func (g *Group) Add(ev model.RawEvent) {
	g.events = append(g.events, ev)
	if ev.Timestamp.Before(g.start) {
		g.start = ev.Timestamp
	}
	if ev.Chunk != nil && ev.Chunk.Terminal() {
		g.terminal = true
	}
}

// Complete reports whether the terminal frame has arrived.
func (g *Group) Complete() bool {
	return g.terminal
}

// Start returns the earliest timestamp seen in the group.
func (g *Group) Start() time.Time {
	return g.start
}

// InvocationID returns the shared invocation identity.
func (g *Group) InvocationID() string {
	return g.invocationID
}

type blockBuilder struct {
	text      strings.Builder
	toolID    string
	toolName  string
	toolInput strings.Builder
	hasTool   bool
}

// Reassemble folds the accumulated frames into one InvocationRecord.
// Frames with a declared sequence index order by that index among
// themselves; index-less frames stay pinned to arrival order. Text and
// tool-input deltas concatenate per content block; the terminal frame
// contributes stop reason, usage, and latency. A frame with neither
// content nor a terminal marker is skipped with a warning instead of
// failing the group, and a group that never saw its terminal frame is
// flagged incomplete rather than dropped.
func (g *Group) Reassemble() (model.InvocationRecord, []model.Warning) {
	events := orderFrames(g.events)

	var (
		warnings   []model.Warning
		input      *model.InputPayload
		stopReason string
		usage      model.Usage
		latency    int64
		sawMeta    bool
	)
	blocks := make(map[int]*blockBuilder)

	for _, ev := range events {
		if input == nil && ev.Input != nil {
			input = ev.Input
		}
		c := ev.Chunk
		if c == nil {
			continue // request-body-only frame
		}
		switch {
		case c.Terminal():
			stopReason = c.StopReason
			if c.Usage != nil {
				usage = *c.Usage
			}
			if c.LatencyMS != 0 {
				latency = c.LatencyMS
			}
			sawMeta = true
		case c.DeltaText != "" || c.ToolUse != nil:
			b := blocks[c.ContentBlockIndex]
			if b == nil {
				b = &blockBuilder{}
				blocks[c.ContentBlockIndex] = b
			}
			b.text.WriteString(c.DeltaText)
			if c.ToolUse != nil {
				b.hasTool = true
				if c.ToolUse.ToolUseID != "" {
					b.toolID = c.ToolUse.ToolUseID
				}
				if c.ToolUse.Name != "" {
					b.toolName = c.ToolUse.Name
				}
				b.toolInput.WriteString(c.ToolUse.InputFragment)
			}
		default:
			warnings = append(warnings, model.Warning{
				EventID:      ev.EventID,
				InvocationID: g.invocationID,
				Reason:       model.WarnMalformedChunk,
				Detail:       "frame carries neither content delta nor stream stop",
			})
		}
	}

	// No explicit terminator: best effort, counters from the last frame
	// that has any.
	if !sawMeta {
		for i := len(events) - 1; i >= 0; i-- {
			c := events[i].Chunk
			if c == nil {
				continue
			}
			if c.Usage != nil {
				usage = *c.Usage
			}
			if c.LatencyMS != 0 {
				latency = c.LatencyMS
			}
			break
		}
	}

	out := &model.OutputPayload{
		Message:    assembleMessage(blocks),
		StopReason: stopReason,
		Usage:      usage,
		LatencyMS:  latency,
	}
	out.Raw = synthesizeRaw(out)

	md := model.Metadata{
		StopReason: stopReason,
		Usage:      usage,
		LatencyMS:  latency,
		RawShape:   model.ShapeChunk,
		Incomplete: !g.terminal,
	}
	md.ApplyInput(input)

	return model.InvocationRecord{
		InvocationID: g.invocationID,
		ModelID:      g.modelID,
		Region:       g.region,
		Operation:    g.operation,
		Timestamp:    g.start,
		Input:        input,
		Output:       out,
		Metadata:     md,
	}, warnings
}

// orderFrames sorts the indexed frames by sequence number within the
// positions they occupy, leaving index-less frames (the request-body
// frame, frames without sequenceNumber) in arrival order. Sorting the
// whole slice with a comparator that punts on index-less frames would not
// be a strict weak ordering and could leave indexed frames unsorted.
func orderFrames(events []model.RawEvent) []model.RawEvent {
	out := make([]model.RawEvent, len(events))
	copy(out, events)

	positions := make([]int, 0, len(out))
	for i, ev := range out {
		if ev.Chunk != nil && ev.Chunk.Sequence != nil {
			positions = append(positions, i)
		}
	}
	indexed := make([]model.RawEvent, len(positions))
	for i, p := range positions {
		indexed[i] = out[p]
	}
	sort.SliceStable(indexed, func(i, j int) bool {
		return *indexed[i].Chunk.Sequence < *indexed[j].Chunk.Sequence
	})
	for i, p := range positions {
		out[p] = indexed[i]
	}
	return out
}

// assembleMessage turns per-block builders into an assistant message with
// blocks in content-index order.
func assembleMessage(blocks map[int]*blockBuilder) model.Message {
	indices := make([]int, 0, len(blocks))
	for i := range blocks {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	content := make([]model.ContentBlock, 0, len(indices))
	for _, i := range indices {
		b := blocks[i]
		block := model.ContentBlock{Text: b.text.String()}
		if b.hasTool {
			block.ToolUse = &model.ToolUseBlock{
				ToolUseID: b.toolID,
				Name:      b.toolName,
				Input:     toolInputJSON(b.toolInput.String()),
			}
		}
		content = append(content, block)
	}
	return model.Message{Role: "assistant", Content: content}
}

// toolInputJSON returns the merged fragments as raw JSON when they form a
// valid document, otherwise as a JSON string so nothing is lost.
func toolInputJSON(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	quoted, _ := json.Marshal(s)
	return quoted
}

// synthesizedResponse mirrors the Converse response wire shape so the raw
// view renders streamed calls the same way as synchronous ones.
type synthesizedResponse struct {
	Output struct {
		Message model.Message `json:"message"`
	} `json:"output"`
	StopReason string      `json:"stopReason,omitempty"`
	Usage      model.Usage `json:"usage"`
	Metrics    struct {
		LatencyMS int64 `json:"latencyMs"`
	} `json:"metrics"`
}

func synthesizeRaw(out *model.OutputPayload) json.RawMessage {
	var resp synthesizedResponse
	resp.Output.Message = out.Message
	resp.StopReason = out.StopReason
	resp.Usage = out.Usage
	resp.Metrics.LatencyMS = out.LatencyMS
	raw, _ := json.Marshal(resp)
	return raw
}
