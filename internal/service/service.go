// Package service assembles the ingestion engine from its parts.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/activity"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/broker"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/emergency"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/ingest"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/metrics"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/policy"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/scheduler"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/threshold"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/topic"
)

// Store is everything the engine persists or reads back.
type Store interface {
	topic.Registry
	policy.Store
	scheduler.SampleStore
	threshold.LogStore
	activity.Store
	emergency.Store
	InsertSample(ctx context.Context, s *domain.SensorSample) error
}

// Bus is the broker connection.
type Bus interface {
	ingest.Subscriber
	broker.Publisher
}

// Cloud holds the optional outbound collaborators. Nil fields are skipped,
// except Notifier which must be set.
type Cloud struct {
	Notifier threshold.Notifier
	Mirror   ingest.SampleMirror
	Archive  emergency.Archive
}

type Engine struct {
	Devices       *topic.Resolver
	Policies      *policy.Resolver
	Scheduler     *scheduler.Scheduler
	Recorder      *threshold.Recorder
	Monitor       *activity.Monitor
	Tracker       *emergency.Tracker
	Coordinator   *ingest.Coordinator
	Pool          *ingest.Pool
	Subscriptions *ingest.Subscriptions

	settings Settings
}

func New(store Store, bus Bus, cloud Cloud, s Settings, m *metrics.Metrics) *Engine {
	e := &Engine{settings: s}
	e.Devices = topic.NewResolver(store, s.ConfigCacheTTL, s.DefaultContainmentID)
	e.Policies = policy.NewResolver(store, s.ConfigCacheTTL)
	e.Scheduler = scheduler.New(store, s.ScheduleTolerance)
	e.Recorder = threshold.NewRecorder(store, cloud.Notifier, s.Retrigger, m)
	e.Monitor = activity.NewMonitor(store, store, broker.NewStatusPublisher(bus, s.StatusPublishPrefix), s.Activity, m)
	e.Tracker = emergency.NewTracker(store, cloud.Archive, s.EmergencyScope, m)
	e.Coordinator = ingest.NewCoordinator(ingest.Deps{
		Devices:    e.Devices,
		Configs:    e.Policies,
		Scheduler:  e.Scheduler,
		Samples:    store,
		Thresholds: e.Recorder,
		Activity:   e.Monitor,
		Emergency:  e.Tracker,
		Mirror:     cloud.Mirror,
		Metrics:    m,
	}, ingest.Options{
		StatusTopics:       s.StatusTopics,
		AuditIntervalSaves: s.AuditIntervalSaves,
	})
	e.Pool = ingest.NewPool(e.Coordinator, s.Workers, s.QueueSize, m)
	e.Subscriptions = ingest.NewSubscriptions(bus, store, s.StatusTopics, e.Pool.OnMessage)
	return e
}

// Start restores in-memory state from storage and checks the configuration
// tables. A missing global interval configuration is logged, not fatal.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.Policies.Validate(ctx); err != nil {
		if !errors.Is(err, policy.ErrNoGlobalConfig) {
			return err
		}
		log.Error().Err(err).Msg("devices without a device or containment interval will not be sampled")
	}
	if err := e.Monitor.Restore(ctx); err != nil {
		return err
	}
	return e.Tracker.Restore(ctx)
}

// Run drives the workers, the activity sweep and the subscription refresh
// until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.Pool.Run(ctx) })
	g.Go(func() error { return e.Monitor.Run(ctx) })
	g.Go(func() error { return e.Subscriptions.Run(ctx, e.refresh()) })
	return g.Wait()
}

func (e *Engine) refresh() time.Duration {
	if e.settings.SubscriptionRefresh <= 0 {
		return time.Minute
	}
	return e.settings.SubscriptionRefresh
}
