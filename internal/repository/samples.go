package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

type sampleRow struct {
	ID          int64     `db:"id"`
	DeviceID    int64     `db:"device_id"`
	Timestamp   time.Time `db:"timestamp"`
	ReceivedAt  time.Time `db:"received_at"`
	Temperature *float64  `db:"temperature"`
	Humidity    *float64  `db:"humidity"`
	RawPayload  []byte    `db:"raw_payload"`
}

func (r sampleRow) toDomain() domain.SensorSample {
	return domain.SensorSample{
		ID:          r.ID,
		DeviceID:    r.DeviceID,
		Timestamp:   r.Timestamp,
		ReceivedAt:  r.ReceivedAt,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		RawPayload:  r.RawPayload,
	}
}

// jsonb rejects empty input; store NULL instead.
func rawJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func (r *Repos) InsertSample(ctx context.Context, s *domain.SensorSample) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO sensor_samples (device_id, timestamp, received_at, temperature, humidity, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		s.DeviceID, s.Timestamp, s.ReceivedAt, s.Temperature, s.Humidity, rawJSON(s.RawPayload),
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("insert sample for device %d: %w", s.DeviceID, err)
	}
	return nil
}

// LatestSample returns the most recent sample of a device, or nil when it
// has none.
func (r *Repos) LatestSample(ctx context.Context, deviceID int64) (*domain.SensorSample, error) {
	var row sampleRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, device_id, timestamp, received_at, temperature, humidity, raw_payload
		FROM sensor_samples
		WHERE device_id = $1
		ORDER BY timestamp DESC
		LIMIT 1`, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest sample for device %d: %w", deviceID, err)
	}
	s := row.toDomain()
	return &s, nil
}

// SampleExistsBetween reports whether a sample of the device has a
// timestamp in the inclusive range [from, to].
func (r *Repos) SampleExistsBetween(ctx context.Context, deviceID int64, from, to time.Time) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM sensor_samples
			WHERE device_id = $1 AND timestamp BETWEEN $2 AND $3
		)`, deviceID, from, to)
	if err != nil {
		return false, fmt.Errorf("sample lookup for device %d: %w", deviceID, err)
	}
	return exists, nil
}
