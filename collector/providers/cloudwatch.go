package providers

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"

	"github.com/c360studio/healthwatch/collector"
)

// cloudWatchLogBudget caps how many events one log group query returns.
const cloudWatchLogBudget = 500

// LogsAPI is the CloudWatch Logs client surface the adapter uses.
type LogsAPI interface {
	FilterLogEvents(ctx context.Context, params *cloudwatchlogs.FilterLogEventsInput,
		optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error)
}

// MetricsAPI is the CloudWatch client surface the adapter uses.
type MetricsAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput,
		optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// CloudWatch pulls error logs from CloudWatch Logs and Lambda metrics
// from CloudWatch. Log group discovery by service name is not an AWS
// concept, so a small set of conventional group name patterns is tried
// in order.
type CloudWatch struct {
	logs    LogsAPI
	metrics MetricsAPI
}

// NewCloudWatch creates a CloudWatch adapter over already-credentialed
// AWS clients.
func NewCloudWatch(logs LogsAPI, metrics MetricsAPI) *CloudWatch {
	return &CloudWatch{logs: logs, metrics: metrics}
}

// Kind implements collector.LogSource and collector.MetricSource.
func (c *CloudWatch) Kind() collector.Kind { return collector.KindCloudWatch }

// logGroupPatterns are the conventional log group names tried for a
// service, in order.
func logGroupPatterns(serviceName string) []string {
	return []string{
		"/aws/lambda/" + serviceName,
		"/ecs/" + serviceName,
		"/aws/ecs/" + serviceName,
		"/" + serviceName,
	}
}

// Logs filters each candidate log group for ERROR events in the window.
// A missing log group is skipped; collection stops once the limit is
// reached.
func (c *CloudWatch) Logs(ctx context.Context, q collector.Query, limit int) ([]collector.LogEntry, error) {
	var logs []collector.LogEntry

	for _, group := range logGroupPatterns(q.ServiceName) {
		if len(logs) >= limit {
			break
		}

		budget := limit - len(logs)
		if budget > cloudWatchLogBudget {
			budget = cloudWatchLogBudget
		}

		out, err := c.logs.FilterLogEvents(ctx, &cloudwatchlogs.FilterLogEventsInput{
			LogGroupName:  aws.String(group),
			FilterPattern: aws.String("ERROR"),
			StartTime:     aws.Int64(q.WeekStart.UnixMilli()),
			EndTime:       aws.Int64(q.WeekEnd.UnixMilli()),
			Limit:         aws.Int32(int32(budget)),
		})
		if err != nil {
			// Log group may simply not exist for this pattern.
			continue
		}

		for _, event := range out.Events {
			message := aws.ToString(event.Message)
			logs = append(logs, collector.LogEntry{
				Timestamp:  time.UnixMilli(aws.ToInt64(event.Timestamp)).UTC(),
				Level:      collector.DetectLogLevel(message),
				Message:    message,
				Attributes: map[string]string{"logGroup": group},
			})
		}
	}
	return logs, nil
}

// Metrics queries AWS/Lambda statistics for the service's function. The
// error rate is derived from error and invocation sums; throughput is
// invocations per minute across the window.
func (c *CloudWatch) Metrics(ctx context.Context, q collector.Query) (collector.Sample, error) {
	var sample collector.Sample
	dimensions := []cwtypes.Dimension{{
		Name:  aws.String("FunctionName"),
		Value: aws.String(q.ServiceName),
	}}

	duration, err := c.metrics.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:          aws.String("AWS/Lambda"),
		MetricName:         aws.String("Duration"),
		Dimensions:         dimensions,
		StartTime:          aws.Time(q.WeekStart),
		EndTime:            aws.Time(q.WeekEnd),
		Period:             aws.Int32(3600),
		ExtendedStatistics: []string{"p99"},
	})
	if err == nil {
		var values []float64
		for _, dp := range duration.Datapoints {
			if p99, ok := dp.ExtendedStatistics["p99"]; ok {
				values = append(values, p99)
			} else if dp.Average != nil {
				values = append(values, *dp.Average)
			}
		}
		if v, ok := avg(values); ok {
			sample.LatencyP99 = ptr(v)
		}
	}

	errorSum, errErr := c.sumStatistic(ctx, "Errors", dimensions, q)
	invocationSum, invErr := c.sumStatistic(ctx, "Invocations", dimensions, q)
	if errErr == nil && invErr == nil && invocationSum > 0 {
		rate := (errorSum / invocationSum) * 100
		sample.ErrorRate = ptr(rate)
		sample.Availability = ptr(100.0 - rate)

		totalHours := q.WeekEnd.Sub(q.WeekStart).Hours()
		if totalHours > 0 {
			sample.Throughput = ptr(invocationSum / (totalHours * 60))
		}
	}
	return sample, nil
}

func (c *CloudWatch) sumStatistic(ctx context.Context, metricName string, dimensions []cwtypes.Dimension, q collector.Query) (float64, error) {
	out, err := c.metrics.GetMetricStatistics(ctx, &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String("AWS/Lambda"),
		MetricName: aws.String(metricName),
		Dimensions: dimensions,
		StartTime:  aws.Time(q.WeekStart),
		EndTime:    aws.Time(q.WeekEnd),
		Period:     aws.Int32(3600),
		Statistics: []cwtypes.Statistic{cwtypes.StatisticSum},
	})
	if err != nil {
		return 0, err
	}

	sum := 0.0
	for _, dp := range out.Datapoints {
		if dp.Sum != nil {
			sum += *dp.Sum
		}
	}
	return sum, nil
}
