package threshold

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/metrics"
)

// LogStore appends auto-save log entries.
type LogStore interface {
	// InsertAutoSaveLog stores entry and sets its ID.
	InsertAutoSaveLog(ctx context.Context, entry *domain.AutoSaveLogEntry) error
	MarkNotified(ctx context.Context, entryID int64, at time.Time) error
}

// Notifier delivers threshold notifications.
type Notifier interface {
	SendThresholdNotification(ctx context.Context, entry domain.AutoSaveLogEntry) error
}

// Retrigger selects when a sustained breach produces another log entry.
type Retrigger int

const (
	// RetriggerEvery logs every persisted sample beyond a bound.
	RetriggerEvery Retrigger = iota
	// RetriggerOnTransition logs once per breach episode; the value must
	// come back inside the bound before the next entry.
	RetriggerOnTransition
)

func ParseRetrigger(s string) (Retrigger, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "every":
		return RetriggerEvery, nil
	case "transition":
		return RetriggerOnTransition, nil
	default:
		return RetriggerEvery, fmt.Errorf("unknown threshold retrigger policy %q", s)
	}
}

type episodeKey struct {
	deviceID int64
	metric   domain.Metric
}

// Outcome is what Record did with one reading.
type Outcome struct {
	Band       domain.StatusBand
	Violation  *Violation
	Entry      *domain.AutoSaveLogEntry
	Suppressed bool
	Notified   bool
}

// Recorder turns violations into auto-save log entries and notifications.
// A failed notification never removes the entry already written.
type Recorder struct {
	store    LogStore
	notifier Notifier
	policy   Retrigger
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   zerolog.Logger

	// episodes maps episodeKey to the domain.TriggerReason currently breached.
	episodes sync.Map
}

func NewRecorder(store LogStore, notifier Notifier, policy Retrigger, m *metrics.Metrics) *Recorder {
	return &Recorder{
		store:    store,
		notifier: notifier,
		policy:   policy,
		metrics:  m,
		now:      time.Now,
		logger:   log.With().Str("component", "threshold").Logger(),
	}
}

// Record evaluates the sample's metric against cfg. The sample must
// already be persisted.
func (r *Recorder) Record(ctx context.Context, sample domain.SensorSample, metric domain.Metric, cfg domain.ThresholdConfiguration) (Outcome, error) {
	v, ok := sample.Value(metric)
	if !ok {
		return Outcome{}, nil
	}
	band, violation := Evaluate(v, cfg)
	out := Outcome{Band: band, Violation: violation}

	key := episodeKey{deviceID: sample.DeviceID, metric: metric}
	if violation == nil {
		r.episodes.Delete(key)
		return out, nil
	}
	prev, ongoing := r.episodes.Swap(key, violation.Reason)
	if r.policy == RetriggerOnTransition && ongoing && prev.(domain.TriggerReason) == violation.Reason {
		out.Suppressed = true
		return out, nil
	}

	measured, threshold := v, violation.Threshold
	entry := &domain.AutoSaveLogEntry{
		SampleID:        sample.ID,
		DeviceID:        sample.DeviceID,
		ConfigurationID: cfg.ID,
		Reason:          violation.Reason,
		Metric:          metric,
		MeasuredValue:   &measured,
		ThresholdValue:  &threshold,
		Status:          band,
		CreatedAt:       r.now(),
	}
	if err := r.store.InsertAutoSaveLog(ctx, entry); err != nil {
		// Forget the episode so the next breaching sample tries again.
		r.episodes.Delete(key)
		return out, fmt.Errorf("insert auto-save log for device %d: %w", sample.DeviceID, err)
	}
	out.Entry = entry
	r.metrics.IncViolation(string(violation.Reason), string(metric))
	r.logger.Info().
		Int64("device_id", sample.DeviceID).
		Str("metric", string(metric)).
		Str("reason", string(violation.Reason)).
		Float64("value", v).
		Float64("threshold", threshold).
		Str("band", string(band)).
		Msg("threshold violation recorded")

	if cfg.NotificationEnabled && r.notifier != nil {
		out.Notified = r.notify(ctx, entry)
	}
	return out, nil
}

func (r *Recorder) notify(ctx context.Context, entry *domain.AutoSaveLogEntry) bool {
	if err := r.notifier.SendThresholdNotification(ctx, *entry); err != nil {
		r.metrics.IncNotification("failed")
		r.logger.Error().Err(err).Int64("entry_id", entry.ID).Msg("threshold notification failed")
		return false
	}
	r.metrics.IncNotification("sent")
	at := r.now()
	entry.NotificationSent = true
	entry.NotifiedAt = &at
	if err := r.store.MarkNotified(ctx, entry.ID, at); err != nil {
		r.logger.Error().Err(err).Int64("entry_id", entry.ID).Msg("mark notification sent")
	}
	return true
}
