package multi

import (
	"context"
	"errors"

	"github.com/convtrail/convtrail/internal/model"
	"github.com/convtrail/convtrail/internal/output"
)

// Multi fans one record out to several destinations, e.g. a table on the
// terminal plus an NDJSON file. A failing destination does not stop
// delivery to the rest; errors are joined.
type Multi struct {
	outputs []output.Output
}

// New creates a Multi over the given outputs.
func New(outputs ...output.Output) *Multi {
	return &Multi{outputs: outputs}
}

func (m *Multi) Write(ctx context.Context, rec model.InvocationRecord) error {
	var errs []error
	for _, o := range m.outputs {
		if err := o.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every wrapped output, collecting errors.
func (m *Multi) Close() error {
	var errs []error
	for _, o := range m.outputs {
		if err := o.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
