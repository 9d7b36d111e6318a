package model

import (
	"encoding/json"
	"time"
)

// Shape discriminates the two invocation log wire shapes.
type Shape string

const (
	// ShapeSingle is a complete synchronous Converse call: one log line
	// carrying the full request and response.
	ShapeSingle Shape = "single"

	// ShapeChunk is one frame of a ConverseStream call. Frames sharing an
	// invocation id are reassembled into a single logical response.
	ShapeChunk Shape = "chunk"
)

// Usage holds token counters as reported by the service.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
	TotalTokens  int `json:"totalTokens"`
}

// SystemBlock is one entry of a request's system prompt list.
type SystemBlock struct {
	Text string `json:"text,omitempty"`
}

// ToolUseBlock is a completed tool call inside a message content list.
type ToolUseBlock struct {
	ToolUseID string          `json:"toolUseId,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
}

// ContentBlock is one element of a message's content list: text or a tool
// call, mirroring the Converse message schema.
type ContentBlock struct {
	Text    string        `json:"text,omitempty"`
	ToolUse *ToolUseBlock `json:"toolUse,omitempty"`
}

// Message is one conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// InputPayload is the structured request body of an invocation. Raw retains
// the body's original JSON text for lossless re-display; S3Path is set
// instead of the structured fields when the service offloaded the body.
type InputPayload struct {
	System                       []SystemBlock   `json:"system,omitempty"`
	Messages                     []Message       `json:"messages,omitempty"`
	InferenceConfig              map[string]any  `json:"inferenceConfig,omitempty"`
	AdditionalModelRequestFields map[string]any  `json:"additionalModelRequestFields,omitempty"`
	S3Path                       string          `json:"s3Path,omitempty"`
	Raw                          json.RawMessage `json:"raw,omitempty"`
}

// OutputPayload is the structured response body of an invocation. For a
// streamed call, Raw is synthesized from the reassembled frames in the same
// shape a synchronous call would have produced.
type OutputPayload struct {
	Message    Message         `json:"message"`
	StopReason string          `json:"stopReason,omitempty"`
	Usage      Usage           `json:"usage"`
	LatencyMS  int64           `json:"latencyMs"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// ToolUseDelta is a fragment of a streamed tool call. InputFragment is
// partial JSON text; fragments concatenate in block order.
type ToolUseDelta struct {
	ToolUseID     string
	Name          string
	InputFragment string
}

// ChunkFrame is the decoded output section of one ConverseStream log line.
// A frame carries either incremental content (DeltaText / ToolUse) or, on
// the terminal frame, the stream's closing metadata.
type ChunkFrame struct {
	Sequence          *int
	ContentBlockIndex int
	DeltaText         string
	ToolUse           *ToolUseDelta
	StopReason        string
	Usage             *Usage
	LatencyMS         int64
	Raw               json.RawMessage
}

// Terminal reports whether the frame closes its stream.
func (c *ChunkFrame) Terminal() bool {
	return c.StopReason != ""
}

// RawEvent is one decoded invocation log line, tagged with its wire shape.
// Exactly one of Output (single) or Chunk (chunk) is set; Input is present
// on single events and on the stream frame that carried the request body.
type RawEvent struct {
	Shape         Shape
	InvocationID  string
	ModelID       string
	Region        string
	Operation     string
	Timestamp     time.Time
	SchemaVersion string
	ErrorCode     string
	EventID       string
	Raw           string

	Input  *InputPayload
	Output *OutputPayload
	Chunk  *ChunkFrame
}
