package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/convtrail/convtrail/internal/model"
	"github.com/convtrail/convtrail/internal/output"
)

// Output appends invocation records as NDJSON to a file. One fetch cycle
// is bounded, so there is no rotation; reopen for each run if separation
// matters.
type Output struct {
	f          *os.File
	w          *bufio.Writer
	includeRaw bool
}

// New opens (or creates) path for appending.
func New(path string, includeRaw bool) (*Output, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("file output: %w", err)
	}
	return &Output{f: f, w: bufio.NewWriter(f), includeRaw: includeRaw}, nil
}

func (o *Output) Write(_ context.Context, rec model.InvocationRecord) error {
	data, err := json.Marshal(output.Format(rec, o.includeRaw))
	if err != nil {
		return fmt.Errorf("file output: %w", err)
	}
	data = append(data, '\n')
	if _, err := o.w.Write(data); err != nil {
		return fmt.Errorf("file output: %w", err)
	}
	return nil
}

// Close flushes buffered records and closes the file.
func (o *Output) Close() error {
	if err := o.w.Flush(); err != nil {
		o.f.Close()
		return fmt.Errorf("file output: %w", err)
	}
	if err := o.f.Close(); err != nil {
		return fmt.Errorf("file output: %w", err)
	}
	return nil
}
