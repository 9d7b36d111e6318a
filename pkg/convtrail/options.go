package convtrail

import (
	"time"

	"github.com/convtrail/convtrail/internal/fetch"
)

type options struct {
	region           string
	logGroup         string
	filterPattern    string
	limit            int
	maxPages         int
	window           time.Duration
	latestStreamOnly bool
	store            fetch.CloudWatchLogsAPI
	fetchOpts        []fetch.Option
}

// Option configures a Client.
type Option func(*options)

// WithRegion sets the AWS region of the log group. Default: us-east-1.
func WithRegion(region string) Option {
	return func(o *options) { o.region = region }
}

// WithLogGroup sets the invocation log group name.
// Default: bedrock-invoke-logging-us-east-1.
func WithLogGroup(name string) Option {
	return func(o *options) { o.logGroup = name }
}

// WithFilterPattern overrides the log store filter. The default restricts
// the fetch to Converse and ConverseStream operations.
func WithFilterPattern(pattern string) Option {
	return func(o *options) { o.filterPattern = pattern }
}

// WithLimit caps how many raw log lines one fetch consumes. Default: 100.
// Zero means no cap.
func WithLimit(n int) Option {
	return func(o *options) { o.limit = n }
}

// WithMaxPages caps how many store pages one fetch follows. Zero (default)
// follows the pagination token until exhausted.
func WithMaxPages(n int) Option {
	return func(o *options) { o.maxPages = n }
}

// WithWindow sets how far back from now each fetch reaches. Default: 24h.
func WithWindow(d time.Duration) Option {
	return func(o *options) { o.window = d }
}

// WithAllStreams queries the whole log group instead of only the stream
// with the most recent events.
func WithAllStreams() Option {
	return func(o *options) { o.latestStreamOnly = false }
}

// WithStore injects a log store client, replacing the real CloudWatch Logs
// client. Intended for tests.
func WithStore(store fetch.CloudWatchLogsAPI) Option {
	return func(o *options) { o.store = store }
}

// WithFetchOptions passes options through to the underlying fetcher
// (retry budget, backoff, page rate).
func WithFetchOptions(opts ...fetch.Option) Option {
	return func(o *options) { o.fetchOpts = append(o.fetchOpts, opts...) }
}

func defaultOptions() options {
	return options{
		region:           "us-east-1",
		logGroup:         "bedrock-invoke-logging-us-east-1",
		filterPattern:    fetch.DefaultFilterPattern,
		limit:            100,
		window:           24 * time.Hour,
		latestStreamOnly: true,
	}
}

// QueryOption adjusts a single FetchAndNormalize call.
type QueryOption func(*fetch.Query)

// WithTimeRange fetches an explicit window instead of one relative to now.
func WithTimeRange(start, end time.Time) QueryOption {
	return func(q *fetch.Query) {
		q.Start = start
		q.End = end
	}
}

// WithQueryLimit overrides the line cap for this call.
func WithQueryLimit(n int) QueryOption {
	return func(q *fetch.Query) { q.Limit = n }
}
