package repository

import (
	"context"
	"fmt"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

// deviceColumns resolves the containment directly or through the rack.
const deviceColumns = `
	d.id,
	d.name,
	COALESCE(d.topic, '') AS topic,
	COALESCE(d.rack_id, 0) AS rack_id,
	COALESCE(d.containment_id, r.containment_id, 0) AS containment_id,
	d.type
FROM devices d
LEFT JOIN racks r ON r.id = d.rack_id`

func (r *Repos) ListDevices(ctx context.Context) ([]domain.Device, error) {
	var out []domain.Device
	if err := r.db.SelectContext(ctx, &out, `SELECT `+deviceColumns+` ORDER BY d.id`); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return out, nil
}

func (r *Repos) DeviceByID(ctx context.Context, id int64) (domain.Device, error) {
	var d domain.Device
	err := r.db.GetContext(ctx, &d, `SELECT `+deviceColumns+` WHERE d.id = $1`, id)
	if err != nil {
		return domain.Device{}, fmt.Errorf("device %d: %w", id, notFound(err))
	}
	return d, nil
}
