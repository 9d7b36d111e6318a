package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/convtrail/convtrail/internal/model"
	"github.com/convtrail/convtrail/internal/output"
)

// Format selects the rendering mode.
type Format string

const (
	// NDJSON emits one JSON object per record.
	NDJSON Format = "ndjson"
	// Table emits an aligned human-readable table.
	Table Format = "table"
)

// Output renders invocation records to a writer, stdout by default.
type Output struct {
	w          io.Writer
	enc        *json.Encoder
	tab        *tabwriter.Writer
	format     Format
	includeRaw bool
	pretty     bool
	wroteHdr   bool
}

// Option configures an Output.
type Option func(*Output)

// WithWriter redirects output away from stdout.
func WithWriter(w io.Writer) Option {
	return func(o *Output) { o.w = w }
}

// WithPretty indents NDJSON output. No effect on table format.
func WithPretty() Option {
	return func(o *Output) { o.pretty = true }
}

// WithRaw keeps the raw wire payloads in NDJSON output.
func WithRaw() Option {
	return func(o *Output) { o.includeRaw = true }
}

// New creates an Output in the given format.
func New(format Format, opts ...Option) *Output {
	o := &Output{w: os.Stdout, format: format}
	for _, opt := range opts {
		opt(o)
	}
	if o.format == Table {
		o.tab = tabwriter.NewWriter(o.w, 2, 4, 2, ' ', 0)
	} else {
		o.format = NDJSON
		o.enc = json.NewEncoder(o.w)
		if o.pretty {
			o.enc.SetIndent("", "  ")
		}
	}
	return o
}

func (o *Output) Write(_ context.Context, rec model.InvocationRecord) error {
	if o.format == Table {
		return o.writeRow(rec)
	}
	if err := o.enc.Encode(output.Format(rec, o.includeRaw)); err != nil {
		return fmt.Errorf("stdout output: %w", err)
	}
	return nil
}

func (o *Output) writeRow(rec model.InvocationRecord) error {
	if !o.wroteHdr {
		fmt.Fprintln(o.tab, "TIMESTAMP\tMODEL\tSHAPE\tTOKENS\tLATENCY\tSTOP\tFLAGS")
		o.wroteHdr = true
	}
	flags := ""
	if rec.Metadata.Incomplete {
		flags = "incomplete"
	}
	if rec.Metadata.ErrorCode != "" {
		if flags != "" {
			flags += ","
		}
		flags += "error:" + rec.Metadata.ErrorCode
	}
	_, err := fmt.Fprintf(o.tab, "%s\t%s\t%s\t%d\t%dms\t%s\t%s\n",
		rec.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
		rec.ModelID,
		rec.Metadata.RawShape,
		rec.Metadata.Usage.TotalTokens,
		rec.Metadata.LatencyMS,
		rec.Metadata.StopReason,
		flags,
	)
	if err != nil {
		return fmt.Errorf("stdout output: %w", err)
	}
	return nil
}

// Close flushes the table writer. NDJSON output needs no teardown.
func (o *Output) Close() error {
	if o.tab != nil {
		return o.tab.Flush()
	}
	return nil
}
