package model

import "time"

// Metadata is the queryable summary attached to every InvocationRecord,
// covering what the sidebar/detail views need without touching the bodies.
type Metadata struct {
	StopReason                   string         `json:"stopReason,omitempty"`
	Usage                        Usage          `json:"usage"`
	LatencyMS                    int64          `json:"latencyMs"`
	RawShape                     Shape          `json:"rawShape"`
	Incomplete                   bool           `json:"incomplete"`
	ErrorCode                    string         `json:"errorCode,omitempty"`
	InputS3Path                  string         `json:"inputS3Path,omitempty"`
	InferenceConfig              map[string]any `json:"inferenceConfig,omitempty"`
	AdditionalModelRequestFields map[string]any `json:"additionalModelRequestFields,omitempty"`
}

// ApplyInput copies the request-side details an input payload contributes
// to record metadata.
func (m *Metadata) ApplyInput(in *InputPayload) {
	if in == nil {
		return
	}
	m.InputS3Path = in.S3Path
	m.InferenceConfig = in.InferenceConfig
	m.AdditionalModelRequestFields = in.AdditionalModelRequestFields
}

// InvocationRecord is the pipeline's output type: one normalized model
// invocation, whether it arrived as a single event or as a reassembled
// stream. Created once, never mutated.
type InvocationRecord struct {
	InvocationID string         `json:"invocationId"`
	ModelID      string         `json:"modelId"`
	Region       string         `json:"region,omitempty"`
	Operation    string         `json:"operation"`
	Timestamp    time.Time      `json:"timestamp"`
	Input        *InputPayload  `json:"input,omitempty"`
	Output       *OutputPayload `json:"output,omitempty"`
	Metadata     Metadata       `json:"metadata"`
}

// Warning reasons, one per recoverable record-level problem.
const (
	WarnMalformedRecord      = "malformed_record"
	WarnUnsupportedOperation = "unsupported_operation"
	WarnMalformedChunk       = "malformed_chunk"
)

// Warning describes one skipped or degraded log line. Warnings are the
// pipeline's side channel: they never abort a run and each problem line is
// accounted for exactly once.
type Warning struct {
	RunID        string `json:"runId,omitempty"`
	EventID      string `json:"eventId,omitempty"`
	InvocationID string `json:"invocationId,omitempty"`
	Reason       string `json:"reason"`
	Detail       string `json:"detail,omitempty"`
}
