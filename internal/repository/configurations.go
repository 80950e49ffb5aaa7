package repository

import (
	"context"
	"fmt"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

type intervalRow struct {
	ID              int64  `db:"id"`
	TargetType      string `db:"target_type"`
	TargetID        *int64 `db:"target_id"`
	IntervalMinutes int    `db:"interval_minutes"`
	Enabled         bool   `db:"enabled"`
}

func (r intervalRow) toDomain() (domain.IntervalConfiguration, error) {
	scope, err := domain.ParseScope(r.TargetType, r.TargetID)
	if err != nil {
		return domain.IntervalConfiguration{}, fmt.Errorf("interval configuration %d: %w", r.ID, err)
	}
	return domain.IntervalConfiguration{
		ID:              r.ID,
		Scope:           scope,
		IntervalMinutes: r.IntervalMinutes,
		Enabled:         r.Enabled,
	}, nil
}

// ListIntervalConfigurations returns the enabled interval configurations.
func (r *Repos) ListIntervalConfigurations(ctx context.Context) ([]domain.IntervalConfiguration, error) {
	var rows []intervalRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, target_type, target_id, interval_minutes, enabled
		FROM interval_configurations
		WHERE enabled
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list interval configurations: %w", err)
	}
	out := make([]domain.IntervalConfiguration, 0, len(rows))
	for _, row := range rows {
		cfg, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

type thresholdRow struct {
	ID                  int64    `db:"id"`
	TargetType          string   `db:"target_type"`
	TargetID            *int64   `db:"target_id"`
	Metric              string   `db:"metric"`
	ColdMin             float64  `db:"cold_min"`
	ColdMax             float64  `db:"cold_max"`
	NormalMin           float64  `db:"normal_min"`
	NormalMax           float64  `db:"normal_max"`
	WarmMin             float64  `db:"warm_min"`
	WarmMax             float64  `db:"warm_max"`
	HotMin              float64  `db:"hot_min"`
	HotMax              float64  `db:"hot_max"`
	CriticalMin         float64  `db:"critical_min"`
	CriticalMax         float64  `db:"critical_max"`
	Upper               *float64 `db:"upper_threshold"`
	Lower               *float64 `db:"lower_threshold"`
	CheckEnabled        bool     `db:"check_enabled"`
	AutoSaveUpper       bool     `db:"auto_save_upper"`
	AutoSaveLower       bool     `db:"auto_save_lower"`
	NotificationEnabled bool     `db:"notification_enabled"`
	Enabled             bool     `db:"enabled"`
}

func (r thresholdRow) toDomain() (domain.ThresholdConfiguration, error) {
	scope, err := domain.ParseScope(r.TargetType, r.TargetID)
	if err != nil {
		return domain.ThresholdConfiguration{}, fmt.Errorf("threshold configuration %d: %w", r.ID, err)
	}
	return domain.ThresholdConfiguration{
		ID:     r.ID,
		Scope:  scope,
		Metric: domain.Metric(r.Metric),
		Ranges: [5]domain.BandRange{
			{Min: r.ColdMin, Max: r.ColdMax},
			{Min: r.NormalMin, Max: r.NormalMax},
			{Min: r.WarmMin, Max: r.WarmMax},
			{Min: r.HotMin, Max: r.HotMax},
			{Min: r.CriticalMin, Max: r.CriticalMax},
		},
		Upper:               r.Upper,
		Lower:               r.Lower,
		CheckEnabled:        r.CheckEnabled,
		AutoSaveUpper:       r.AutoSaveUpper,
		AutoSaveLower:       r.AutoSaveLower,
		NotificationEnabled: r.NotificationEnabled,
		Enabled:             r.Enabled,
	}, nil
}

// ListThresholdConfigurations returns the enabled threshold configurations.
func (r *Repos) ListThresholdConfigurations(ctx context.Context) ([]domain.ThresholdConfiguration, error) {
	var rows []thresholdRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, target_type, target_id, metric,
		       cold_min, cold_max, normal_min, normal_max, warm_min, warm_max,
		       hot_min, hot_max, critical_min, critical_max,
		       upper_threshold, lower_threshold,
		       check_enabled, auto_save_upper, auto_save_lower, notification_enabled, enabled
		FROM threshold_configurations
		WHERE enabled
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list threshold configurations: %w", err)
	}
	out := make([]domain.ThresholdConfiguration, 0, len(rows))
	for _, row := range rows {
		cfg, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}
