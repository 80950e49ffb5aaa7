package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

const maxLogLimit = 500

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func (r *Repos) InsertAutoSaveLog(ctx context.Context, e *domain.AutoSaveLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO auto_save_logs (
			sample_id, device_id, configuration_id, reason, metric,
			measured_value, threshold_value, status, notification_sent, notified_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		nullID(e.SampleID), e.DeviceID, e.ConfigurationID, e.Reason, e.Metric,
		e.MeasuredValue, e.ThresholdValue, e.Status, e.NotificationSent, e.NotifiedAt, e.CreatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("insert auto-save log for device %d: %w", e.DeviceID, err)
	}
	return nil
}

func (r *Repos) MarkNotified(ctx context.Context, entryID int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE auto_save_logs SET notification_sent = TRUE, notified_at = $2 WHERE id = $1`,
		entryID, at)
	if err != nil {
		return fmt.Errorf("mark auto-save log %d notified: %w", entryID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("auto-save log %d: %w", entryID, domain.ErrNotFound)
	}
	return nil
}

// ListAutoSaveLogs returns the newest entries of a device first.
func (r *Repos) ListAutoSaveLogs(ctx context.Context, deviceID int64, limit int) ([]domain.AutoSaveLogEntry, error) {
	if limit <= 0 || limit > maxLogLimit {
		limit = maxLogLimit
	}
	var out []domain.AutoSaveLogEntry
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, COALESCE(sample_id, 0) AS sample_id, device_id, configuration_id, reason, metric,
		       measured_value, threshold_value, status, notification_sent, notified_at, created_at
		FROM auto_save_logs
		WHERE device_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list auto-save logs for device %d: %w", deviceID, err)
	}
	return out, nil
}
