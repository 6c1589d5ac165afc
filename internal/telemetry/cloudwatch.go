// Package telemetry publishes request, gateway and artifact metrics.
//
// CloudWatchCollector buffers datums in memory and ships them with
// PutMetricData on Flush; LogCollector only logs them at DEBUG and is used
// when METRICS_ENABLED is false.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"sitescore/internal/config"
	"sitescore/internal/types"
)

const (
	// maxDatumsPerCall is the PutMetricData batch limit.
	maxDatumsPerCall = 1000
	// maxBuffered caps datums held between flushes; newer datums are dropped.
	maxBuffered = 20000
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Collector is the metrics sink shared by the HTTP middleware, the remote
// gateways, the model cache, the report orchestrator and the janitor.
type Collector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
	RecordUpstream(ctx context.Context, source, outcome string)
	RecordCount(ctx context.Context, metric string, value float64, dims map[string]string)
	Flush(ctx context.Context) error
}

// New returns a CloudWatchCollector when metrics are enabled and a
// LogCollector otherwise.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Collector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Observability.MetricsEnabled {
		return NewLogCollector(logger), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Storage.Region))
	if err != nil {
		return nil, fmt.Errorf("telemetry: loading AWS config: %w", err)
	}
	return NewCloudWatchCollector(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger), nil
}

var _ Collector = (*CloudWatchCollector)(nil)

// CloudWatchCollector buffers metric datums for a single namespace.
// Publishing failures are logged, never returned to the recording caller.
type CloudWatchCollector struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	buf     []cwtypes.MetricDatum
	dropped int
}

// NewCloudWatchCollector creates a CloudWatchCollector.
func NewCloudWatchCollector(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchCollector{
		client:    client,
		namespace: namespace,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordRequest records the latency and a count for one HTTP request.
func (c *CloudWatchCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		dimension(types.DimEndpoint, endpoint),
		dimension(types.DimMethod, method),
		dimension(types.DimStatusCode, status),
	}
	ts := aws.Time(c.now())
	c.add(
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPILatency),
			Value:      aws.Float64(float64(duration.Milliseconds())),
			Unit:       cwtypes.StandardUnitMilliseconds,
			Timestamp:  ts,
			Dimensions: dims,
		},
		cwtypes.MetricDatum{
			MetricName: aws.String(types.MetricAPIRequests),
			Value:      aws.Float64(1),
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  ts,
			Dimensions: dims,
		},
	)
}

// RecordUpstream records one remote gateway call outcome. Its signature
// matches external.OutcomeFunc.
func (c *CloudWatchCollector) RecordUpstream(ctx context.Context, source, outcome string) {
	c.RecordCount(ctx, types.MetricUpstreamCall, 1, map[string]string{
		types.DimSource:  source,
		types.DimOutcome: outcome,
	})
}

// RecordCount records a count metric. Dimensions are sorted by name.
func (c *CloudWatchCollector) RecordCount(_ context.Context, metric string, value float64, dims map[string]string) {
	c.add(cwtypes.MetricDatum{
		MetricName: aws.String(metric),
		Value:      aws.Float64(value),
		Unit:       cwtypes.StandardUnitCount,
		Timestamp:  aws.Time(c.now()),
		Dimensions: sortedDimensions(dims),
	})
}

func (c *CloudWatchCollector) add(datums ...cwtypes.MetricDatum) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range datums {
		if len(c.buf) >= maxBuffered {
			c.dropped++
			continue
		}
		c.buf = append(c.buf, d)
	}
}

// Pending returns the number of buffered datums.
func (c *CloudWatchCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// Flush publishes every buffered datum in batches of up to 1000. Datums of
// a failed batch are discarded; the first error is returned.
func (c *CloudWatchCollector) Flush(ctx context.Context) error {
	c.mu.Lock()
	pending := c.buf
	dropped := c.dropped
	c.buf = nil
	c.dropped = 0
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.WarnContext(ctx, "metric buffer full; datums dropped", "dropped", dropped)
	}

	var firstErr error
	for start := 0; start < len(pending); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(pending))
		input := &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: pending[start:end],
		}
		if _, err := c.client.PutMetricData(ctx, input); err != nil {
			c.logger.ErrorContext(ctx, "failed to publish metrics",
				"error", err.Error(),
				"datums", end-start,
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("telemetry: put metric data: %w", err)
			}
		}
	}
	return firstErr
}

// Run flushes every interval until ctx is cancelled, then flushes once more
// with a short detached deadline.
func (c *CloudWatchCollector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = c.Flush(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			_ = c.Flush(final)
			cancel()
			return
		}
	}
}

func dimension(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

func sortedDimensions(dims map[string]string) []cwtypes.Dimension {
	if len(dims) == 0 {
		return nil
	}
	names := make([]string, 0, len(dims))
	for k := range dims {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]cwtypes.Dimension, 0, len(names))
	for _, n := range names {
		out = append(out, dimension(n, dims[n]))
	}
	return out
}
