package repository

import (
	"context"
	"fmt"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

const activityColumns = `device_id, state, last_seen, last_status_change, consecutive_failures`

func (r *Repos) ListActivityStatuses(ctx context.Context) ([]domain.DeviceActivityStatus, error) {
	var out []domain.DeviceActivityStatus
	err := r.db.SelectContext(ctx, &out, `SELECT `+activityColumns+` FROM device_activity_status ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("list activity statuses: %w", err)
	}
	return out, nil
}

func (r *Repos) ActivityStatus(ctx context.Context, deviceID int64) (domain.DeviceActivityStatus, error) {
	var st domain.DeviceActivityStatus
	err := r.db.GetContext(ctx, &st, `SELECT `+activityColumns+` FROM device_activity_status WHERE device_id = $1`, deviceID)
	if err != nil {
		return domain.DeviceActivityStatus{}, fmt.Errorf("activity status of device %d: %w", deviceID, notFound(err))
	}
	return st, nil
}

func (r *Repos) UpsertActivityStatus(ctx context.Context, st domain.DeviceActivityStatus) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO device_activity_status (`+activityColumns+`)
		VALUES (:device_id, :state, :last_seen, :last_status_change, :consecutive_failures)
		ON CONFLICT (device_id) DO UPDATE SET
			state = EXCLUDED.state,
			last_seen = EXCLUDED.last_seen,
			last_status_change = EXCLUDED.last_status_change,
			consecutive_failures = EXCLUDED.consecutive_failures`, st)
	if err != nil {
		return fmt.Errorf("upsert activity status of device %d: %w", st.DeviceID, err)
	}
	return nil
}
