// Package activity tracks device liveness: Unknown, Online and Offline,
// driven by heartbeats and a periodic sweep.
package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/metrics"
)

type Store interface {
	ListActivityStatuses(ctx context.Context) ([]domain.DeviceActivityStatus, error)
	UpsertActivityStatus(ctx context.Context, status domain.DeviceActivityStatus) error
}

type DeviceLister interface {
	ListDevices(ctx context.Context) ([]domain.Device, error)
}

// StatusPublisher announces state transitions, e.g. as retained broker messages.
type StatusPublisher interface {
	PublishDeviceStatus(ctx context.Context, deviceID int64, state domain.ActivityState) error
}

type Config struct {
	SweepInterval  time.Duration
	OnlineTimeout  time.Duration
	OfflineTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		SweepInterval:  2 * time.Minute,
		OnlineTimeout:  5 * time.Minute,
		OfflineTimeout: 10 * time.Minute,
	}
}

type entry struct {
	mu     sync.Mutex
	status domain.DeviceActivityStatus
	// dirty marks changes not yet written to the store; the next sweep
	// flushes them.
	dirty bool
}

type transition struct {
	deviceID int64
	state    domain.ActivityState
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Checked     int
	WentOnline  int
	WentOffline int
}

// Monitor owns the liveness state machine of every monitored device. Each
// device has its own lock, so heartbeats for different devices never
// contend with each other.
type Monitor struct {
	store     Store
	devices   DeviceLister
	publisher StatusPublisher
	cfg       Config
	metrics   *metrics.Metrics
	now       func() time.Time
	logger    zerolog.Logger

	// entries maps device id to *entry.
	entries sync.Map
}

func NewMonitor(store Store, devices DeviceLister, publisher StatusPublisher, cfg Config, m *metrics.Metrics) *Monitor {
	def := DefaultConfig()
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.OnlineTimeout <= 0 {
		cfg.OnlineTimeout = def.OnlineTimeout
	}
	if cfg.OfflineTimeout <= 0 {
		cfg.OfflineTimeout = def.OfflineTimeout
	}
	return &Monitor{
		store:     store,
		devices:   devices,
		publisher: publisher,
		cfg:       cfg,
		metrics:   m,
		now:       time.Now,
		logger:    log.With().Str("component", "activity").Logger(),
	}
}

// Restore seeds the in-memory state from stored statuses.
func (m *Monitor) Restore(ctx context.Context) error {
	statuses, err := m.store.ListActivityStatuses(ctx)
	if err != nil {
		return fmt.Errorf("list activity statuses: %w", err)
	}
	for _, st := range statuses {
		m.entries.LoadOrStore(st.DeviceID, &entry{status: st})
	}
	m.logger.Info().Int("devices", len(statuses)).Msg("activity state restored")
	return nil
}

// Heartbeat records a message from device seen at seenAt and brings a
// sensor Online if it was not. Other device types only get LastSeen
// recorded; their state stays Unknown. LastSeen never moves backwards.
func (m *Monitor) Heartbeat(ctx context.Context, device domain.Device, seenAt time.Time) error {
	if !device.HasTopic() {
		return nil
	}
	e := m.entry(device.ID)

	e.mu.Lock()
	if seenAt.After(e.status.LastSeen) {
		e.status.LastSeen = seenAt
		e.dirty = true
	}
	if !device.IsSensor() || e.status.State == domain.StateOnline {
		e.mu.Unlock()
		return nil
	}
	from := e.status.State
	e.status.State = domain.StateOnline
	e.status.ConsecutiveFailures = 0
	e.status.LastStatusChange = m.now()
	snapshot := e.status
	err := m.store.UpsertActivityStatus(ctx, snapshot)
	if err == nil {
		e.dirty = false
	}
	e.mu.Unlock()

	m.announce(ctx, from, transition{deviceID: device.ID, state: domain.StateOnline})
	if err != nil {
		return fmt.Errorf("store activity status of device %d: %w", device.ID, err)
	}
	return nil
}

// Status returns the current in-memory status of a device.
func (m *Monitor) Status(deviceID int64) (domain.DeviceActivityStatus, bool) {
	v, ok := m.entries.Load(deviceID)
	if !ok {
		return domain.DeviceActivityStatus{}, false
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, true
}

// Sweep re-evaluates every monitored sensor device at now. Devices that
// go silent beyond the offline timeout become Offline; Offline devices
// heard from within the online timeout become Online; anything between
// the two timeouts keeps its state.
func (m *Monitor) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	devices, err := m.devices.ListDevices(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list devices: %w", err)
	}

	var res SweepResult
	for _, d := range devices {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if !d.HasTopic() {
			continue
		}
		if !d.IsSensor() {
			m.flush(ctx, d.ID)
			continue
		}
		res.Checked++
		from, t, changed := m.evaluate(ctx, d.ID, now)
		if !changed {
			continue
		}
		switch t.state {
		case domain.StateOnline:
			res.WentOnline++
		case domain.StateOffline:
			res.WentOffline++
		}
		m.announce(ctx, from, t)
	}
	return res, nil
}

func (m *Monitor) evaluate(ctx context.Context, deviceID int64, now time.Time) (domain.ActivityState, transition, bool) {
	e := m.entry(deviceID)
	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.status.State
	elapsed := now.Sub(e.status.LastSeen)
	changed := false
	switch {
	case elapsed > m.cfg.OfflineTimeout && from != domain.StateOffline:
		e.status.State = domain.StateOffline
		e.status.ConsecutiveFailures++
		e.status.LastStatusChange = now
		changed = true
	case elapsed <= m.cfg.OnlineTimeout && from == domain.StateOffline:
		e.status.State = domain.StateOnline
		e.status.ConsecutiveFailures = 0
		e.status.LastStatusChange = now
		changed = true
	}

	if changed || e.dirty {
		if err := m.store.UpsertActivityStatus(ctx, e.status); err != nil {
			m.logger.Error().Err(err).Int64("device_id", deviceID).Msg("store activity status")
		} else {
			e.dirty = false
		}
	}
	return from, transition{deviceID: deviceID, state: e.status.State}, changed
}

// flush writes pending LastSeen updates of a device that takes no part in
// state transitions.
func (m *Monitor) flush(ctx context.Context, deviceID int64) {
	v, ok := m.entries.Load(deviceID)
	if !ok {
		return
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.dirty {
		return
	}
	if err := m.store.UpsertActivityStatus(ctx, e.status); err != nil {
		m.logger.Error().Err(err).Int64("device_id", deviceID).Msg("store activity status")
		return
	}
	e.dirty = false
}

// entry returns the state of a device, creating it as Unknown with a
// LastSeen far enough in the past that the first sweep of a silent device
// marks it Offline.
func (m *Monitor) entry(deviceID int64) *entry {
	if v, ok := m.entries.Load(deviceID); ok {
		return v.(*entry)
	}
	now := m.now()
	v, _ := m.entries.LoadOrStore(deviceID, &entry{
		status: domain.DeviceActivityStatus{
			DeviceID:         deviceID,
			State:            domain.StateUnknown,
			LastSeen:         now.Add(-m.cfg.OfflineTimeout - time.Minute),
			LastStatusChange: now,
		},
		dirty: true,
	})
	return v.(*entry)
}

func (m *Monitor) announce(ctx context.Context, from domain.ActivityState, t transition) {
	m.metrics.IncTransition(string(t.state))
	ev := m.logger.Info()
	if t.state == domain.StateOffline {
		ev = m.logger.Warn()
	}
	ev.Int64("device_id", t.deviceID).Str("from", string(from)).Str("to", string(t.state)).Msg("device activity changed")
	if m.publisher == nil {
		return
	}
	if err := m.publisher.PublishDeviceStatus(ctx, t.deviceID, t.state); err != nil {
		m.logger.Error().Err(err).Int64("device_id", t.deviceID).Msg("publish device status")
	}
}

// Run sweeps every SweepInterval until ctx is cancelled. A sweep in
// progress finishes its current device before Run returns.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	m.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.sweepOnce(ctx)
		}
	}
}

func (m *Monitor) sweepOnce(ctx context.Context) {
	res, err := m.Sweep(ctx, m.now())
	if err != nil && ctx.Err() == nil {
		m.logger.Error().Err(err).Msg("activity sweep failed")
		return
	}
	m.logger.Debug().Int("checked", res.Checked).Int("online", res.WentOnline).Int("offline", res.WentOffline).Msg("activity sweep done")
}
