package cloud

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSClient publishes threshold notifications to an SNS topic.
type SNSClient struct {
	svc      snsAPI
	topicArn string
}

// NewSNSClient creates a new SNS client instance
func NewSNSClient(ctx context.Context, region, topicArn string) (*SNSClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return &SNSClient{
		svc:      sns.NewFromConfig(cfg),
		topicArn: topicArn,
	}, nil
}

// SendAlert publishes a message to the configured topic.
func (c *SNSClient) SendAlert(ctx context.Context, subject, message string) error {
	input := &sns.PublishInput{
		TopicArn: aws.String(c.topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	}

	result, err := c.svc.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to publish to SNS: %w", err)
	}

	log.Debug().Str("message_id", aws.ToString(result.MessageId)).Msg("sns alert sent")
	return nil
}

// SendThresholdNotification formats and sends an alert for a threshold violation.
func (c *SNSClient) SendThresholdNotification(ctx context.Context, entry domain.AutoSaveLogEntry) error {
	subject, message := formatThresholdAlert(entry)
	return c.SendAlert(ctx, subject, message)
}

func formatThresholdAlert(entry domain.AutoSaveLogEntry) (string, string) {
	direction := "above upper"
	if entry.Reason == domain.TriggerLowerThreshold {
		direction = "below lower"
	}
	subject := fmt.Sprintf("Containment Alert: device %d %s %s threshold", entry.DeviceID, entry.Metric, strings.Fields(direction)[0])

	var b strings.Builder
	b.WriteString("Threshold Violation\n\n")
	fmt.Fprintf(&b, "Device: %d\n", entry.DeviceID)
	fmt.Fprintf(&b, "Metric: %s\n", entry.Metric)
	if entry.MeasuredValue != nil {
		fmt.Fprintf(&b, "Measured: %.2f\n", *entry.MeasuredValue)
	}
	if entry.ThresholdValue != nil {
		fmt.Fprintf(&b, "Threshold (%s): %.2f\n", direction, *entry.ThresholdValue)
	}
	fmt.Fprintf(&b, "Status: %s\n", entry.Status)
	fmt.Fprintf(&b, "Time: %s\n", entry.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	return subject, b.String()
}

// LogNotifier stands in for SNS when cloud services are disabled.
type LogNotifier struct{}

func (LogNotifier) SendThresholdNotification(_ context.Context, entry domain.AutoSaveLogEntry) error {
	subject, _ := formatThresholdAlert(entry)
	log.Warn().Int64("entry_id", entry.ID).Int64("device_id", entry.DeviceID).Msg(subject)
	return nil
}
