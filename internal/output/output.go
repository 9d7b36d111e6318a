package output

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/convtrail/convtrail/internal/model"
)

// Output defines the interface for invocation record destinations.
type Output interface {
	Write(ctx context.Context, rec model.InvocationRecord) error
	Close() error
}

// Format returns a copy of the record with the raw wire payloads stripped
// unless includeRaw is set. The original record is never touched.
func Format(rec model.InvocationRecord, includeRaw bool) model.InvocationRecord {
	if includeRaw {
		return rec
	}
	if rec.Input != nil {
		in := *rec.Input
		in.Raw = nil
		rec.Input = &in
	}
	if rec.Output != nil {
		out := *rec.Output
		out.Raw = nil
		rec.Output = &out
	}
	return rec
}

// WriteSummary prints a one-line account of skipped records, the partial
// results companion the warning side channel exists for. No output when
// there is nothing to report.
func WriteSummary(w io.Writer, warnings []model.Warning) {
	if len(warnings) == 0 {
		return
	}
	counts := make(map[string]int)
	for _, warn := range warnings {
		counts[warn.Reason]++
	}
	reasons := make([]string, 0, len(counts))
	for r := range counts {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)

	fmt.Fprintf(w, "skipped %d line(s):", len(warnings))
	for _, r := range reasons {
		fmt.Fprintf(w, " %s=%d", r, counts[r])
	}
	fmt.Fprintln(w)
}
