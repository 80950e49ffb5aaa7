package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

// SampleStore is the slice of the storage collaborator the scheduler reads.
type SampleStore interface {
	// LatestSample returns the most recent sample of a device, or nil.
	LatestSample(ctx context.Context, deviceID int64) (*domain.SensorSample, error)
	SampleExistsBetween(ctx context.Context, deviceID int64, from, to time.Time) (bool, error)
}

type Reason string

const (
	ReasonScheduled   Reason = "scheduled"
	ReasonOffSchedule Reason = "off-schedule"
	ReasonDuplicate   Reason = "duplicate"
	ReasonStale       Reason = "stale"
)

type Decision struct {
	Persist bool
	Window  time.Time
	Reason  Reason
}

type lastSave struct {
	window time.Time
	at     time.Time
}

// Scheduler selects the one reading per device and window that gets
// persisted. Callers must serialize Decide/MarkPersisted for the same
// device; different devices never contend.
type Scheduler struct {
	store     SampleStore
	tolerance time.Duration
	// last maps device id to *lastSave.
	last sync.Map
}

func New(store SampleStore, tolerance time.Duration) *Scheduler {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Scheduler{store: store, tolerance: tolerance}
}

// ShouldPersist is Decide reduced to its verdict.
func (s *Scheduler) ShouldPersist(ctx context.Context, deviceID int64, intervalMinutes int, ts time.Time) (bool, error) {
	d, err := s.Decide(ctx, deviceID, intervalMinutes, ts)
	return d.Persist, err
}

// Decide reports whether the reading at ts is the scheduled sample of its
// window and that window has not been persisted yet.
//
// The cached last-saved window is only a pre-filter. A miss always falls
// through to the store, so a restart or a cache eviction can never cause
// a window to be written twice.
func (s *Scheduler) Decide(ctx context.Context, deviceID int64, intervalMinutes int, ts time.Time) (Decision, error) {
	window := WindowStart(ts, intervalMinutes)
	if !OnSchedule(ts, intervalMinutes, s.tolerance) {
		return Decision{Window: window, Reason: ReasonOffSchedule}, nil
	}

	last, err := s.lastSave(ctx, deviceID)
	if err != nil {
		return Decision{Window: window}, err
	}
	if last != nil {
		if last.window.Equal(window) {
			return Decision{Window: window, Reason: ReasonDuplicate}, nil
		}
		if last.window.After(window) {
			// Older windows are never backfilled.
			return Decision{Window: window, Reason: ReasonStale}, nil
		}
	}

	exists, err := s.store.SampleExistsBetween(ctx, deviceID, window, window.Add(s.tolerance))
	if err != nil {
		return Decision{Window: window}, fmt.Errorf("check window %s for device %d: %w", window.Format(time.RFC3339), deviceID, err)
	}
	if exists {
		s.remember(deviceID, window, ts)
		return Decision{Window: window, Reason: ReasonDuplicate}, nil
	}
	return Decision{Persist: true, Window: window, Reason: ReasonScheduled}, nil
}

// MarkPersisted records that the window's sample was written.
func (s *Scheduler) MarkPersisted(deviceID int64, window, ts time.Time) {
	s.remember(deviceID, window, ts)
}

// Forget drops the cached state of a device.
func (s *Scheduler) Forget(deviceID int64) {
	s.last.Delete(deviceID)
}

func (s *Scheduler) remember(deviceID int64, window, ts time.Time) {
	if v, ok := s.last.Load(deviceID); ok {
		if prev := v.(*lastSave); !window.After(prev.window) {
			return
		}
	}
	s.last.Store(deviceID, &lastSave{window: window, at: ts})
}

func (s *Scheduler) lastSave(ctx context.Context, deviceID int64) (*lastSave, error) {
	if v, ok := s.last.Load(deviceID); ok {
		return v.(*lastSave), nil
	}
	latest, err := s.store.LatestSample(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("latest sample for device %d: %w", deviceID, err)
	}
	if latest == nil {
		return nil, nil
	}
	// Persisted samples sit within tolerance of their window start, so
	// truncating to the minute recovers the window.
	ls := &lastSave{window: latest.Timestamp.Truncate(time.Minute), at: latest.Timestamp}
	s.last.Store(deviceID, ls)
	return ls, nil
}
