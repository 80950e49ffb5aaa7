package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/topic"
)

// Subscriber is the part of the broker transport that manages subscriptions.
type Subscriber interface {
	Subscribe(pattern string, handler func(topic string, payload []byte)) error
	Unsubscribe(patterns ...string) error
}

type DeviceLister interface {
	ListDevices(ctx context.Context) ([]domain.Device, error)
}

// Subscriptions keeps the broker subscribed to every registered device
// topic plus the fixed status patterns.
type Subscriptions struct {
	broker  Subscriber
	devices DeviceLister
	static  []string
	onMsg   func(topic string, payload []byte)
	logger  zerolog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

func NewSubscriptions(broker Subscriber, devices DeviceLister, statusTopics []string, onMsg func(topic string, payload []byte)) *Subscriptions {
	return &Subscriptions{
		broker:  broker,
		devices: devices,
		static:  statusTopics,
		onMsg:   onMsg,
		logger:  log.With().Str("component", "subscriptions").Logger(),
		active:  make(map[string]struct{}),
	}
}

// Sync subscribes to new device topics and drops topics of removed
// devices. Device topics already matched by a status pattern are not
// subscribed again. A failure on one topic does not stop the others.
func (s *Subscriptions) Sync(ctx context.Context) error {
	devices, err := s.devices.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	wanted := make(map[string]struct{}, len(devices)+len(s.static))
	for _, p := range s.static {
		wanted[p] = struct{}{}
	}
	for _, d := range devices {
		if !d.HasTopic() {
			continue
		}
		if !topic.ValidPattern(d.Topic) {
			s.logger.Warn().Int64("device_id", d.ID).Str("topic", d.Topic).Msg("invalid device topic, not subscribing")
			continue
		}
		if topic.MatchAny(s.static, d.Topic) {
			continue
		}
		wanted[d.Topic] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for t := range wanted {
		if _, ok := s.active[t]; ok {
			continue
		}
		if err := s.broker.Subscribe(t, s.onMsg); err != nil {
			errs = append(errs, fmt.Errorf("subscribe %s: %w", t, err))
			continue
		}
		s.active[t] = struct{}{}
		s.logger.Info().Str("topic", t).Msg("subscribed")
	}
	var stale []string
	for t := range s.active {
		if _, ok := wanted[t]; !ok {
			stale = append(stale, t)
		}
	}
	if len(stale) > 0 {
		if err := s.broker.Unsubscribe(stale...); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
		} else {
			for _, t := range stale {
				delete(s.active, t)
			}
			s.logger.Info().Strs("topics", stale).Msg("unsubscribed")
		}
	}
	return errors.Join(errs...)
}

// Active returns the subscribed patterns in sorted order.
func (s *Subscriptions) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.active))
	for t := range s.active {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Run syncs immediately and then every interval until ctx is cancelled.
func (s *Subscriptions) Run(ctx context.Context, interval time.Duration) error {
	if err := s.Sync(ctx); err != nil {
		s.logger.Error().Err(err).Msg("subscription sync")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error().Err(err).Msg("subscription sync")
			}
		}
	}
}
