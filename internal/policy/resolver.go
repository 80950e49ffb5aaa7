// Package policy resolves the effective interval and threshold
// configuration of a device: device scope, then containment scope, then
// the global default.
package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

// ErrNoGlobalConfig means the mandatory global interval configuration is missing.
var ErrNoGlobalConfig = errors.New("no global interval configuration")

type Store interface {
	ListIntervalConfigurations(ctx context.Context) ([]domain.IntervalConfiguration, error)
	ListThresholdConfigurations(ctx context.Context) ([]domain.ThresholdConfiguration, error)
}

type scopeKey struct {
	kind domain.ScopeKind
	id   int64
}

func keyOf(s domain.Scope) scopeKey {
	k := scopeKey{kind: s.Kind()}
	if id := domain.ScopeTarget(s); id != nil {
		k.id = *id
	}
	return k
}

type thresholdKey struct {
	metric domain.Metric
	scope  scopeKey
}

type snapshot struct {
	intervals  map[scopeKey]domain.IntervalConfiguration
	thresholds map[thresholdKey]domain.ThresholdConfiguration
	at         time.Time
}

// Resolver answers effective-configuration queries from an in-memory
// snapshot of every enabled configuration, reloaded at most once per ttl,
// so the hot path costs at most one bulk query per ttl.
type Resolver struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger

	mu   sync.Mutex
	snap *snapshot
}

func NewResolver(store Store, ttl time.Duration) *Resolver {
	return &Resolver{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		logger: log.With().Str("component", "policy").Logger(),
	}
}

// Interval returns the effective interval configuration for a device, or
// nil when none applies. containmentID may be zero.
func (r *Resolver) Interval(ctx context.Context, deviceID, containmentID int64) (*domain.IntervalConfiguration, error) {
	snap, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range candidates(deviceID, containmentID) {
		if c, ok := snap.intervals[k]; ok {
			return &c, nil
		}
	}
	return nil, nil
}

// Threshold returns the effective threshold configuration of metric for a
// device, or nil when threshold handling is not configured.
func (r *Resolver) Threshold(ctx context.Context, deviceID, containmentID int64, metric domain.Metric) (*domain.ThresholdConfiguration, error) {
	snap, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range candidates(deviceID, containmentID) {
		if c, ok := snap.thresholds[thresholdKey{metric: metric, scope: k}]; ok {
			return &c, nil
		}
	}
	return nil, nil
}

// Validate reports ErrNoGlobalConfig when the global interval default is
// absent. It is meant to be called once at startup.
func (r *Resolver) Validate(ctx context.Context) error {
	snap, err := r.current(ctx)
	if err != nil {
		return err
	}
	if _, ok := snap.intervals[scopeKey{kind: domain.ScopeGlobal}]; !ok {
		return ErrNoGlobalConfig
	}
	return nil
}

// Invalidate drops the snapshot so the next query reloads it.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.snap = nil
	r.mu.Unlock()
}

func candidates(deviceID, containmentID int64) []scopeKey {
	keys := make([]scopeKey, 0, 3)
	if deviceID != 0 {
		keys = append(keys, scopeKey{kind: domain.ScopeDevice, id: deviceID})
	}
	if containmentID != 0 {
		keys = append(keys, scopeKey{kind: domain.ScopeContainment, id: containmentID})
	}
	return append(keys, scopeKey{kind: domain.ScopeGlobal})
}

func (r *Resolver) current(ctx context.Context) (*snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap != nil && r.now().Sub(r.snap.at) < r.ttl {
		return r.snap, nil
	}
	snap, err := r.load(ctx)
	if err != nil {
		if r.snap != nil {
			r.logger.Warn().Err(err).Msg("configuration reload failed, serving cached snapshot")
			return r.snap, nil
		}
		return nil, err
	}
	r.snap = snap
	return snap, nil
}

func (r *Resolver) load(ctx context.Context) (*snapshot, error) {
	intervals, err := r.store.ListIntervalConfigurations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list interval configurations: %w", err)
	}
	thresholds, err := r.store.ListThresholdConfigurations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list threshold configurations: %w", err)
	}

	snap := &snapshot{
		intervals:  make(map[scopeKey]domain.IntervalConfiguration),
		thresholds: make(map[thresholdKey]domain.ThresholdConfiguration),
		at:         r.now(),
	}
	for _, c := range intervals {
		if !c.Enabled || c.Scope == nil {
			continue
		}
		if !domain.IsAllowedInterval(c.IntervalMinutes) {
			r.logger.Error().Int64("config_id", c.ID).Int("interval", c.IntervalMinutes).Msg("interval not allowed, ignoring configuration")
			continue
		}
		k := keyOf(c.Scope)
		if prev, dup := snap.intervals[k]; dup {
			r.logger.Warn().Int64("kept", prev.ID).Int64("ignored", c.ID).Str("scope", string(k.kind)).Msg("duplicate enabled interval configuration")
			continue
		}
		snap.intervals[k] = c
	}
	for _, c := range thresholds {
		if !c.Enabled || c.Scope == nil {
			continue
		}
		if err := c.Validate(); err != nil {
			r.logger.Error().Err(err).Int64("config_id", c.ID).Msg("invalid threshold configuration ignored")
			continue
		}
		metric := c.Metric
		if metric == "" {
			metric = domain.MetricTemperature
		}
		k := thresholdKey{metric: metric, scope: keyOf(c.Scope)}
		if prev, dup := snap.thresholds[k]; dup {
			r.logger.Warn().Int64("kept", prev.ID).Int64("ignored", c.ID).Msg("duplicate enabled threshold configuration")
			continue
		}
		snap.thresholds[k] = c
	}
	return snap, nil
}
