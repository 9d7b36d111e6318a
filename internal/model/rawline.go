package model

import "time"

// RawLogLine is one log event as returned by the log store, before any
// decoding. Message holds the original JSON text verbatim.
type RawLogLine struct {
	Timestamp     time.Time
	IngestionTime time.Time
	LogStream     string
	EventID       string
	Message       string
}
