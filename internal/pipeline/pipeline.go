// Package pipeline orchestrates fetch, parse, and stream reassembly into
// an ordered sequence of invocation records.
package pipeline

import (
	"container/heap"
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/convtrail/convtrail/internal/fetch"
	"github.com/convtrail/convtrail/internal/metrics"
	"github.com/convtrail/convtrail/internal/model"
	"github.com/convtrail/convtrail/internal/parse"
	"github.com/convtrail/convtrail/internal/stream"
)

// Fetcher yields raw log lines for a query. *fetch.Fetcher satisfies it;
// tests substitute slice-backed fakes.
type Fetcher interface {
	Lines(ctx context.Context, q fetch.Query) iter.Seq2[model.RawLogLine, error]
}

// Pipeline normalizes invocation logs. Safe for concurrent Runs: all
// mutable accumulation state lives in the per-Run Stream.
type Pipeline struct {
	fetcher Fetcher
	metrics *metrics.Metrics
}

// New creates a Pipeline on top of a fetcher.
func New(f Fetcher) *Pipeline {
	return &Pipeline{
		fetcher: f,
		metrics: metrics.Default(),
	}
}

// Stream is one run's output: a lazy record sequence plus the warning side
// channel. Warnings accumulate as Records is consumed and are complete
// once the sequence ends.
type Stream struct {
	runID    string
	records  iter.Seq2[model.InvocationRecord, error]
	warnings []model.Warning
}

// RunID identifies this run in diagnostics and warnings.
func (s *Stream) RunID() string {
	return s.runID
}

// Records returns the normalized records in non-decreasing timestamp
// order. The sequence is lazy: stop ranging and no further store pages are
// fetched. The only error it yields is the fetcher's fatal failure, and it
// terminates the sequence.
func (s *Stream) Records() iter.Seq2[model.InvocationRecord, error] {
	return s.records
}

// Warnings returns the skipped/degraded line reports collected so far.
func (s *Stream) Warnings() []model.Warning {
	return s.warnings
}

func (s *Stream) warn(m *metrics.Metrics, w model.Warning) {
	w.RunID = s.runID
	s.warnings = append(s.warnings, w)
	m.WarningsTotal.WithLabelValues(w.Reason).Inc()
	slog.Debug("record skipped", "run", s.runID, "event", w.EventID,
		"reason", w.Reason, "detail", w.Detail)
}

// Run starts one fetch-and-normalize cycle. Each call owns fresh state, so
// concurrent or repeated runs cannot leak records or warnings into each
// other.
func (p *Pipeline) Run(ctx context.Context, q fetch.Query) *Stream {
	s := &Stream{runID: ulid.Make().String()}
	s.records = func(yield func(model.InvocationRecord, error) bool) {
		groups := make(map[string]*stream.Group)
		closed := make(map[string]bool)
		ready := &recordHeap{}
		seq := 0

		push := func(rec model.InvocationRecord) {
			heap.Push(ready, heapItem{rec: rec, seq: seq})
			seq++
		}

		// emitReady drains completed records whose timestamp cannot be
		// preceded by anything still mid-stream. With final set, everything
		// drains. Returns false once the consumer stops pulling.
		emitReady := func(final bool) bool {
			for ready.Len() > 0 {
				if !final {
					if min, open := minGroupStart(groups); open && (*ready)[0].rec.Timestamp.After(min) {
						return true
					}
				}
				rec := heap.Pop(ready).(heapItem).rec
				p.metrics.RecordsTotal.WithLabelValues(string(rec.Metadata.RawShape)).Inc()
				if !yield(rec, nil) {
					return false
				}
			}
			return true
		}

		for line, err := range p.fetcher.Lines(ctx, q) {
			if err != nil {
				yield(model.InvocationRecord{}, err)
				return
			}
			p.metrics.LinesTotal.Inc()

			ev, perr := parse.Line(line)
			if perr != nil {
				reason := model.WarnMalformedRecord
				if errors.Is(perr, parse.ErrUnsupportedOperation) {
					reason = model.WarnUnsupportedOperation
				}
				s.warn(p.metrics, model.Warning{
					EventID: line.EventID,
					Reason:  reason,
					Detail:  perr.Error(),
				})
				continue
			}

			switch ev.Shape {
			case model.ShapeSingle:
				push(normalizeSingle(ev))
			case model.ShapeChunk:
				// A frame for an already-emitted stream must not open a
				// second group under the same invocation id.
				if closed[ev.InvocationID] {
					s.warn(p.metrics, model.Warning{
						EventID:      line.EventID,
						InvocationID: ev.InvocationID,
						Reason:       model.WarnMalformedChunk,
						Detail:       "frame arrived after its stream already closed",
					})
					continue
				}
				g, ok := groups[ev.InvocationID]
				if !ok {
					groups[ev.InvocationID] = stream.NewGroup(ev)
					g = groups[ev.InvocationID]
				} else {
					g.Add(ev)
				}
				if g.Complete() {
					delete(groups, ev.InvocationID)
					closed[ev.InvocationID] = true
					rec, warns := g.Reassemble()
					for _, w := range warns {
						s.warn(p.metrics, w)
					}
					push(rec)
				}
			}

			if !emitReady(false) {
				return
			}
		}

		// Window exhausted: flush still-open groups as incomplete.
		for _, g := range groups {
			rec, warns := g.Reassemble()
			for _, w := range warns {
				s.warn(p.metrics, w)
			}
			push(rec)
		}
		emitReady(true)
	}
	return s
}

// normalizeSingle folds a complete Converse event into a record. Events
// that errored before producing output keep zero-valued usage and latency
// rather than absent metadata.
func normalizeSingle(ev model.RawEvent) model.InvocationRecord {
	md := model.Metadata{
		RawShape:  model.ShapeSingle,
		ErrorCode: ev.ErrorCode,
	}
	if ev.Output != nil {
		md.StopReason = ev.Output.StopReason
		md.Usage = ev.Output.Usage
		md.LatencyMS = ev.Output.LatencyMS
	}
	md.ApplyInput(ev.Input)

	return model.InvocationRecord{
		InvocationID: ev.InvocationID,
		ModelID:      ev.ModelID,
		Region:       ev.Region,
		Operation:    ev.Operation,
		Timestamp:    ev.Timestamp,
		Input:        ev.Input,
		Output:       ev.Output,
		Metadata:     md,
	}
}

// minGroupStart returns the earliest start timestamp among open groups.
func minGroupStart(groups map[string]*stream.Group) (time.Time, bool) {
	var min time.Time
	found := false
	for _, g := range groups {
		if !found || g.Start().Before(min) {
			min = g.Start()
			found = true
		}
	}
	return min, found
}
