package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// EventArchive stores closed emergency events as JSON objects in S3.
type EventArchive struct {
	svc    s3API
	bucket string
}

func NewEventArchive(ctx context.Context, region, bucket string) (*EventArchive, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	return &EventArchive{
		svc:    s3.NewFromConfig(cfg),
		bucket: bucket,
	}, nil
}

// EventKey is the object key of an archived event.
func EventKey(ev domain.EmergencyEvent) string {
	start := ev.StartTime.UTC()
	return fmt.Sprintf("emergency-events/%s/%04d/%02d/%d.json", ev.Channel, start.Year(), start.Month(), ev.ID)
}

type archivedEvent struct {
	ID              int64           `json:"id"`
	Channel         string          `json:"channel"`
	ContainmentID   int64           `json:"containment_id"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         *time.Time      `json:"end_time,omitempty"`
	DurationSeconds float64         `json:"duration_seconds"`
	RawPayload      json.RawMessage `json:"raw_payload,omitempty"`
}

// ArchiveEvent uploads ev.
func (a *EventArchive) ArchiveEvent(ctx context.Context, ev domain.EmergencyEvent) error {
	doc := archivedEvent{
		ID:            ev.ID,
		Channel:       string(ev.Channel),
		ContainmentID: ev.ContainmentID,
		StartTime:     ev.StartTime,
		EndTime:       ev.EndTime,
	}
	if ev.Duration != nil {
		doc.DurationSeconds = ev.Duration.Seconds()
	}
	if json.Valid(ev.RawPayload) {
		doc.RawPayload = ev.RawPayload
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = a.svc.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(EventKey(ev)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"archived-at": time.Now().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}
