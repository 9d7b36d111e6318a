package fetch

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
)

// NewClient builds a CloudWatch Logs client for the given region using the
// environment's default credential chain (env vars, shared config, IMDS).
func NewClient(ctx context.Context, region string) (*cloudwatchlogs.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("fetch: load aws config: %w", err)
	}
	return cloudwatchlogs.NewFromConfig(cfg), nil
}
