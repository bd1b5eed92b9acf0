package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names emitted under the Bellefleur namespace.
const (
	MetricPaymentsConfirmed      = "PaymentsConfirmed"
	MetricDuplicateConfirmations = "DuplicateConfirmations"
	MetricEmailFailures          = "EmailFailures"
)

const metricNamespace = "Bellefleur/Orders"

// Metrics emits operational counters to CloudWatch.
type Metrics struct {
	client  CloudWatchAPI
	nowFunc func() time.Time
}

// NewMetrics returns a Metrics emitter.
func NewMetrics(client CloudWatchAPI) *Metrics {
	return &Metrics{
		client:  client,
		nowFunc: time.Now,
	}
}

// Count publishes a single count datum for the given metric name.
func (m *Metrics) Count(ctx context.Context, name string, value float64) error {
	now := m.nowFunc()
	input := &cloudwatch.PutMetricDataInput{
		Namespace: awsString(metricNamespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: &name,
				Timestamp:  &now,
				Unit:       cwtypes.StandardUnitCount,
				Value:      &value,
			},
		},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
