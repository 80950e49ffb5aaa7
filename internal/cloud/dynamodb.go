package cloud

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// SampleMirror copies persisted samples into a DynamoDB table keyed by
// containment and timestamp.
type SampleMirror struct {
	svc   dynamoAPI
	table string
}

func NewSampleMirror(ctx context.Context, region, table string) (*SampleMirror, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return &SampleMirror{
		svc:   dynamodb.NewFromConfig(cfg),
		table: table,
	}, nil
}

// mirroredSample is the DynamoDB item layout.
type mirroredSample struct {
	ContainmentID string   `dynamodbav:"containmentId"`
	Timestamp     int64    `dynamodbav:"timestamp"`
	DeviceID      string   `dynamodbav:"deviceId"`
	SampleID      int64    `dynamodbav:"sampleId"`
	RackID        int64    `dynamodbav:"rackId"`
	Temperature   *float64 `dynamodbav:"temperature,omitempty"`
	Humidity      *float64 `dynamodbav:"humidity,omitempty"`
	ReceivedAt    int64    `dynamodbav:"receivedAt"`
}

// PutSample stores a copy of sample.
func (m *SampleMirror) PutSample(ctx context.Context, device domain.Device, sample domain.SensorSample) error {
	item, err := attributevalue.MarshalMap(mirroredSample{
		ContainmentID: strconv.FormatInt(device.ContainmentID, 10),
		Timestamp:     sample.Timestamp.Unix(),
		DeviceID:      strconv.FormatInt(sample.DeviceID, 10),
		SampleID:      sample.ID,
		RackID:        device.RackID,
		Temperature:   sample.Temperature,
		Humidity:      sample.Humidity,
		ReceivedAt:    sample.ReceivedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}

	_, err = m.svc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(m.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put item in DynamoDB: %w", err)
	}
	return nil
}
