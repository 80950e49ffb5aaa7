package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

type emergencyRow struct {
	ID            int64      `db:"id"`
	Channel       string     `db:"channel"`
	ContainmentID int64      `db:"containment_id"`
	Status        bool       `db:"status"`
	StartTime     time.Time  `db:"start_time"`
	EndTime       *time.Time `db:"end_time"`
	DurationMS    *int64     `db:"duration_ms"`
	IsOpen        bool       `db:"is_open"`
	RawPayload    []byte     `db:"raw_payload"`
}

func (r emergencyRow) toDomain() domain.EmergencyEvent {
	ev := domain.EmergencyEvent{
		ID:            r.ID,
		Channel:       domain.EmergencyChannel(r.Channel),
		ContainmentID: r.ContainmentID,
		Status:        r.Status,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		IsOpen:        r.IsOpen,
		RawPayload:    r.RawPayload,
	}
	if r.DurationMS != nil {
		d := time.Duration(*r.DurationMS) * time.Millisecond
		ev.Duration = &d
	}
	return ev
}

func (r *Repos) OpenEmergencyEvents(ctx context.Context) ([]domain.EmergencyEvent, error) {
	var rows []emergencyRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, channel, containment_id, status, start_time, end_time, duration_ms, is_open, raw_payload
		FROM emergency_events
		WHERE is_open
		ORDER BY start_time, id`)
	if err != nil {
		return nil, fmt.Errorf("list open emergency events: %w", err)
	}
	out := make([]domain.EmergencyEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *Repos) InsertEmergencyEvent(ctx context.Context, ev *domain.EmergencyEvent) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO emergency_events (channel, containment_id, status, start_time, is_open, raw_payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		ev.Channel, ev.ContainmentID, ev.Status, ev.StartTime, ev.IsOpen, rawJSON(ev.RawPayload),
	).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("insert %s emergency event: %w", ev.Channel, err)
	}
	return nil
}

// CloseEmergencyEvent stores the end of ev. Only open rows are updated.
func (r *Repos) CloseEmergencyEvent(ctx context.Context, ev domain.EmergencyEvent) error {
	var durationMS *int64
	if ev.Duration != nil {
		ms := ev.Duration.Milliseconds()
		durationMS = &ms
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE emergency_events
		SET status = FALSE, is_open = FALSE, end_time = $2, duration_ms = $3
		WHERE id = $1 AND is_open`,
		ev.ID, ev.EndTime, durationMS)
	if err != nil {
		return fmt.Errorf("close emergency event %d: %w", ev.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("open emergency event %d: %w", ev.ID, domain.ErrNotFound)
	}
	return nil
}
