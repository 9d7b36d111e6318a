// Package fetch pulls raw model invocation log lines out of CloudWatch
// Logs, one page at a time, as a lazy pull-based sequence. Stopping the
// consumer stops the store calls; that is the cancellation contract.
package fetch

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"golang.org/x/time/rate"

	"github.com/convtrail/convtrail/internal/metrics"
	"github.com/convtrail/convtrail/internal/model"
)

// DefaultFilterPattern restricts the fetch to the two invocation modes the
// pipeline understands.
const DefaultFilterPattern = `{($.operation = "Converse") || ($.operation = "ConverseStream")}`

const (
	defaultMaxRetries  = 3
	defaultBackoffBase = time.Second
	defaultPageRPS     = 5
)

// CloudWatchLogsAPI is the subset of the CloudWatch Logs client the fetcher
// uses. *cloudwatchlogs.Client satisfies it; tests substitute fakes.
type CloudWatchLogsAPI interface {
	FilterLogEvents(ctx context.Context, params *cloudwatchlogs.FilterLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error)
	DescribeLogStreams(ctx context.Context, params *cloudwatchlogs.DescribeLogStreamsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogStreamsOutput, error)
}

// Query defines one fetch: a log group and time window plus optional
// filter, event limit, and page cap. A zero End leaves the window open.
type Query struct {
	LogGroup      string
	Start         time.Time
	End           time.Time
	FilterPattern string
	Limit         int
	MaxPages      int

	// LatestStreamOnly scopes the fetch to the log stream with the most
	// recent events, matching how the invocation log group is usually laid
	// out (one active stream per delivery).
	LatestStreamOnly bool
}

// Fetcher retrieves raw log lines from a log store. Each Lines call is a
// fresh query; the fetcher holds no state across calls.
type Fetcher struct {
	client     CloudWatchLogsAPI
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	metrics    *metrics.Metrics
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMaxRetries sets how many times a throttled page fetch is retried
// before the fetch fails. Default: 3.
func WithMaxRetries(n int) Option {
	return func(f *Fetcher) {
		f.maxRetries = n
	}
}

// WithBackoffBase sets the first retry delay; subsequent delays double.
// Default: 1s (so 1s, 2s, 4s).
func WithBackoffBase(d time.Duration) Option {
	return func(f *Fetcher) {
		f.backoff = d
	}
}

// WithPageRate caps page requests per second. Default: 5.
func WithPageRate(rps float64) Option {
	return func(f *Fetcher) {
		f.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// New creates a Fetcher on top of a CloudWatch Logs client.
func New(client CloudWatchLogsAPI, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(defaultPageRPS), 1),
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoffBase,
		metrics:    metrics.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Lines returns the raw log lines matching q, in store-return order, as a
// lazy sequence. Pagination tokens are followed transparently; the next
// page is requested only when the consumer keeps pulling. An empty window
// yields an empty sequence. The only error the sequence yields is a
// *FetchFailedError, and it is terminal.
func (f *Fetcher) Lines(ctx context.Context, q Query) iter.Seq2[model.RawLogLine, error] {
	return func(yield func(model.RawLogLine, error) bool) {
		input := &cloudwatchlogs.FilterLogEventsInput{
			LogGroupName: aws.String(q.LogGroup),
		}
		if !q.Start.IsZero() {
			input.StartTime = aws.Int64(q.Start.UnixMilli())
		}
		if !q.End.IsZero() {
			input.EndTime = aws.Int64(q.End.UnixMilli())
		}
		if q.FilterPattern != "" {
			input.FilterPattern = aws.String(q.FilterPattern)
		}
		if q.Limit > 0 && q.Limit < 10000 {
			input.Limit = aws.Int32(int32(q.Limit))
		}

		if q.LatestStreamOnly {
			name, err := f.latestStream(ctx, q.LogGroup)
			if err != nil {
				yield(model.RawLogLine{}, err)
				return
			}
			if name == "" {
				return
			}
			input.LogStreamNames = []string{name}
		}

		seen := 0
		pages := 0
		for {
			out, err := f.filterPage(ctx, input)
			if err != nil {
				yield(model.RawLogLine{}, err)
				return
			}
			pages++
			f.metrics.PagesTotal.Inc()

			for _, ev := range out.Events {
				if !yield(toRawLine(ev), nil) {
					return
				}
				seen++
				if q.Limit > 0 && seen >= q.Limit {
					return
				}
			}

			if out.NextToken == nil || *out.NextToken == "" {
				return
			}
			if q.MaxPages > 0 && pages >= q.MaxPages {
				return
			}
			input.NextToken = out.NextToken
		}
	}
}

// latestStream returns the name of the stream with the most recent events,
// or "" when the group has no streams.
func (f *Fetcher) latestStream(ctx context.Context, logGroup string) (string, error) {
	var out *cloudwatchlogs.DescribeLogStreamsOutput
	err := f.withRetry(ctx, func() error {
		var err error
		out, err = f.client.DescribeLogStreams(ctx, &cloudwatchlogs.DescribeLogStreamsInput{
			LogGroupIdentifier: aws.String(logGroup),
			OrderBy:            types.OrderByLastEventTime,
			Descending:         aws.Bool(true),
			Limit:              aws.Int32(1),
		})
		return err
	})
	if err != nil {
		return "", err
	}
	if len(out.LogStreams) == 0 {
		return "", nil
	}
	return aws.ToString(out.LogStreams[0].LogStreamName), nil
}

// filterPage fetches one page, retrying on throttling.
func (f *Fetcher) filterPage(ctx context.Context, in *cloudwatchlogs.FilterLogEventsInput) (*cloudwatchlogs.FilterLogEventsOutput, error) {
	var out *cloudwatchlogs.FilterLogEventsOutput
	err := f.withRetry(ctx, func() error {
		var err error
		out, err = f.client.FilterLogEvents(ctx, in)
		return err
	})
	return out, err
}

// withRetry runs call with bounded exponential backoff on throttling
// errors. Backoff: base, 2*base, 4*base. Anything other than throttling
// fails immediately; exhausting the budget surfaces the last cause.
func (f *Fetcher) withRetry(ctx context.Context, call func() error) error {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			wait := f.backoff << (attempt - 1)
			slog.Warn("log store throttled, backing off",
				"attempt", attempt, "wait", wait)
			f.metrics.RetriesTotal.Inc()
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return &FetchFailedError{Cause: ctx.Err(), Attempts: attempt}
			case <-t.C:
			}
		}

		if err := f.limiter.Wait(ctx); err != nil {
			return &FetchFailedError{Cause: err, Attempts: attempt + 1}
		}

		err := call()
		if err == nil {
			return nil
		}
		if !throttled(err) {
			return &FetchFailedError{Cause: err, Attempts: attempt + 1}
		}
		lastErr = err
	}
	return &FetchFailedError{Cause: lastErr, Attempts: f.maxRetries + 1}
}

func toRawLine(ev types.FilteredLogEvent) model.RawLogLine {
	return model.RawLogLine{
		Timestamp:     time.UnixMilli(aws.ToInt64(ev.Timestamp)).UTC(),
		IngestionTime: time.UnixMilli(aws.ToInt64(ev.IngestionTime)).UTC(),
		LogStream:     aws.ToString(ev.LogStreamName),
		EventID:       aws.ToString(ev.EventId),
		Message:       aws.ToString(ev.Message),
	}
}
