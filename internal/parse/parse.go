// Package parse decodes raw invocation log lines into typed events,
// discriminating the synchronous Converse shape from ConverseStream
// frames. The original JSON text is preserved at every level so the raw
// view stays lossless.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/convtrail/convtrail/internal/model"
)

// Supported operations. Anything else is recognizable but out of scope.
const (
	OperationConverse       = "Converse"
	OperationConverseStream = "ConverseStream"
)

var (
	// ErrMalformed marks a line that is not valid JSON or lacks the
	// minimal invocation log fields.
	ErrMalformed = errors.New("malformed record")

	// ErrUnsupportedOperation marks a well-formed invocation log for an
	// operation the pipeline does not cover.
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// Wire types (unexported).

type invocationLog struct {
	SchemaType    string         `json:"schemaType"`
	SchemaVersion string         `json:"schemaVersion"`
	Timestamp     string         `json:"timestamp"` // RFC 3339
	Region        string         `json:"region"`
	RequestID     string         `json:"requestId"`
	Operation     string         `json:"operation"`
	ModelID       string         `json:"modelId"`
	ErrorCode     string         `json:"errorCode"`
	Input         *inputSection  `json:"input"`
	Output        *outputSection `json:"output"`
}

type inputSection struct {
	InputContentType string          `json:"inputContentType"`
	InputBodyJSON    json.RawMessage `json:"inputBodyJson"`
	InputBodyS3Path  string          `json:"inputBodyS3Path"`
	InputTokenCount  int             `json:"inputTokenCount"`
}

type outputSection struct {
	OutputContentType string          `json:"outputContentType"`
	OutputBodyJSON    json.RawMessage `json:"outputBodyJson"`
	OutputTokenCount  int             `json:"outputTokenCount"`
}

// converseRequest is the Converse request body carried in inputBodyJson.
type converseRequest struct {
	System                       []model.SystemBlock `json:"system"`
	Messages                     []model.Message     `json:"messages"`
	InferenceConfig              map[string]any      `json:"inferenceConfig"`
	AdditionalModelRequestFields map[string]any      `json:"additionalModelRequestFields"`
}

// converseResponse is the complete Converse response body.
type converseResponse struct {
	Output struct {
		Message model.Message `json:"message"`
	} `json:"output"`
	StopReason string      `json:"stopReason"`
	Usage      model.Usage `json:"usage"`
	Metrics    struct {
		LatencyMS int64 `json:"latencyMs"`
	} `json:"metrics"`
}

// streamFrame is one ConverseStream frame carried in outputBodyJson:
// either an incremental delta or the terminal frame with stop reason and
// final usage.
type streamFrame struct {
	SequenceNumber    *int `json:"sequenceNumber"`
	ContentBlockIndex int  `json:"contentBlockIndex"`
	Delta             *struct {
		Text    string `json:"text"`
		ToolUse *struct {
			ToolUseID string `json:"toolUseId"`
			Name      string `json:"name"`
			Input     string `json:"input"` // partial JSON text
		} `json:"toolUse"`
	} `json:"delta"`
	StopReason string       `json:"stopReason"`
	Usage      *model.Usage `json:"usage"`
	Metrics    *struct {
		LatencyMS int64 `json:"latencyMs"`
	} `json:"metrics"`
}

// Line decodes one raw log line into a RawEvent. Errors wrap ErrMalformed
// or ErrUnsupportedOperation; callers classify with errors.Is. No side
// effects either way.
func Line(line model.RawLogLine) (model.RawEvent, error) {
	var wire invocationLog
	if err := json.Unmarshal([]byte(line.Message), &wire); err != nil {
		return model.RawEvent{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wire.ModelID == "" {
		return model.RawEvent{}, fmt.Errorf("%w: missing modelId", ErrMalformed)
	}
	if wire.Operation == "" {
		return model.RawEvent{}, fmt.Errorf("%w: missing operation", ErrMalformed)
	}
	if wire.Input == nil && wire.Output == nil {
		return model.RawEvent{}, fmt.Errorf("%w: no input or output section", ErrMalformed)
	}

	switch wire.Operation {
	case OperationConverse:
		return parseSingle(line, &wire)
	case OperationConverseStream:
		return parseChunk(line, &wire)
	default:
		return model.RawEvent{}, fmt.Errorf("%w: %q", ErrUnsupportedOperation, wire.Operation)
	}
}

func parseSingle(line model.RawLogLine, wire *invocationLog) (model.RawEvent, error) {
	ev := newEvent(line, wire, model.ShapeSingle)

	// A single-shot line without a request id still yields a record; it
	// just cannot collide with anything, so synthesize an identity.
	if ev.InvocationID == "" {
		ev.InvocationID = uuid.NewString()
	}

	input, err := parseInput(wire.Input)
	if err != nil {
		return model.RawEvent{}, err
	}
	ev.Input = input

	if wire.Output != nil && len(wire.Output.OutputBodyJSON) > 0 {
		var resp converseResponse
		if err := json.Unmarshal(wire.Output.OutputBodyJSON, &resp); err != nil {
			return model.RawEvent{}, fmt.Errorf("%w: output body: %v", ErrMalformed, err)
		}
		ev.Output = &model.OutputPayload{
			Message:    resp.Output.Message,
			StopReason: resp.StopReason,
			Usage:      resp.Usage,
			LatencyMS:  resp.Metrics.LatencyMS,
			Raw:        wire.Output.OutputBodyJSON,
		}
	} else if wire.ErrorCode == "" {
		return model.RawEvent{}, fmt.Errorf("%w: Converse event without output body or errorCode", ErrMalformed)
	}

	return ev, nil
}

func parseChunk(line model.RawLogLine, wire *invocationLog) (model.RawEvent, error) {
	ev := newEvent(line, wire, model.ShapeChunk)

	// Chunks correlate by request id; without one the frame cannot join
	// any stream.
	if ev.InvocationID == "" {
		return model.RawEvent{}, fmt.Errorf("%w: stream frame without requestId", ErrMalformed)
	}

	input, err := parseInput(wire.Input)
	if err != nil {
		return model.RawEvent{}, err
	}
	ev.Input = input

	if wire.Output != nil && len(wire.Output.OutputBodyJSON) > 0 {
		var frame streamFrame
		if err := json.Unmarshal(wire.Output.OutputBodyJSON, &frame); err != nil {
			return model.RawEvent{}, fmt.Errorf("%w: stream frame body: %v", ErrMalformed, err)
		}
		chunk := &model.ChunkFrame{
			Sequence:          frame.SequenceNumber,
			ContentBlockIndex: frame.ContentBlockIndex,
			StopReason:        frame.StopReason,
			Usage:             frame.Usage,
			Raw:               wire.Output.OutputBodyJSON,
		}
		if frame.Delta != nil {
			chunk.DeltaText = frame.Delta.Text
			if frame.Delta.ToolUse != nil {
				chunk.ToolUse = &model.ToolUseDelta{
					ToolUseID:     frame.Delta.ToolUse.ToolUseID,
					Name:          frame.Delta.ToolUse.Name,
					InputFragment: frame.Delta.ToolUse.Input,
				}
			}
		}
		if frame.Metrics != nil {
			chunk.LatencyMS = frame.Metrics.LatencyMS
		}
		ev.Chunk = chunk
	} else if ev.Input == nil {
		return model.RawEvent{}, fmt.Errorf("%w: stream frame without input or output body", ErrMalformed)
	}

	return ev, nil
}

func newEvent(line model.RawLogLine, wire *invocationLog, shape model.Shape) model.RawEvent {
	ts := line.Timestamp
	if wire.Timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, wire.Timestamp); err == nil {
			ts = parsed
		}
	}
	return model.RawEvent{
		Shape:         shape,
		InvocationID:  wire.RequestID,
		ModelID:       wire.ModelID,
		Region:        wire.Region,
		Operation:     wire.Operation,
		Timestamp:     ts,
		SchemaVersion: wire.SchemaVersion,
		ErrorCode:     wire.ErrorCode,
		EventID:       line.EventID,
		Raw:           line.Message,
	}
}

func parseInput(in *inputSection) (*model.InputPayload, error) {
	if in == nil {
		return nil, nil
	}
	if in.InputBodyS3Path != "" {
		return &model.InputPayload{S3Path: in.InputBodyS3Path}, nil
	}
	if len(in.InputBodyJSON) == 0 {
		return nil, nil
	}
	var req converseRequest
	if err := json.Unmarshal(in.InputBodyJSON, &req); err != nil {
		return nil, fmt.Errorf("%w: input body: %v", ErrMalformed, err)
	}
	return &model.InputPayload{
		System:                       req.System,
		Messages:                     req.Messages,
		InferenceConfig:              req.InferenceConfig,
		AdditionalModelRequestFields: req.AdditionalModelRequestFields,
		Raw:                          in.InputBodyJSON,
	}, nil
}
