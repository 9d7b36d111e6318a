package convtrail

import (
	"context"
	"fmt"
	"time"

	"github.com/convtrail/convtrail/internal/fetch"
	"github.com/convtrail/convtrail/internal/pipeline"
)

// Client fetches and normalizes model invocation logs. Safe for concurrent
// use; every FetchAndNormalize call owns its own run state.
type Client struct {
	pipeline *pipeline.Pipeline
	defaults fetch.Query
	window   time.Duration
	now      func() time.Time
}

// Stream is one run's lazily produced records plus its warning side
// channel. See pipeline.Stream.
type Stream = pipeline.Stream

// New creates a Client. Unless WithStore injects one, the CloudWatch Logs
// client is built from the environment's default credential chain.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = fetch.NewClient(ctx, o.region)
		if err != nil {
			return nil, fmt.Errorf("convtrail: %w", err)
		}
	}

	f := fetch.New(store, o.fetchOpts...)
	return &Client{
		pipeline: pipeline.New(f),
		defaults: fetch.Query{
			LogGroup:         o.logGroup,
			FilterPattern:    o.filterPattern,
			Limit:            o.limit,
			MaxPages:         o.maxPages,
			LatestStreamOnly: o.latestStreamOnly,
		},
		window: o.window,
		now:    time.Now,
	}, nil
}

// FetchAndNormalize starts one fetch cycle over the configured window and
// returns its record stream. Nothing touches the network until Records is
// ranged, and stopping early stops the store calls.
func (c *Client) FetchAndNormalize(ctx context.Context, opts ...QueryOption) *Stream {
	q := c.defaults
	q.Start = c.now().Add(-c.window)
	for _, opt := range opts {
		opt(&q)
	}
	return c.pipeline.Run(ctx, q)
}
