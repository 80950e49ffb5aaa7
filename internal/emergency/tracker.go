// Package emergency collapses repeated boolean alarm readings into
// discrete open/close events.
package emergency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/metrics"
)

type Store interface {
	OpenEmergencyEvents(ctx context.Context) ([]domain.EmergencyEvent, error)
	// InsertEmergencyEvent stores ev and sets its ID.
	InsertEmergencyEvent(ctx context.Context, ev *domain.EmergencyEvent) error
	CloseEmergencyEvent(ctx context.Context, ev domain.EmergencyEvent) error
}

// Archive keeps a copy of closed events outside the primary store.
type Archive interface {
	ArchiveEvent(ctx context.Context, ev domain.EmergencyEvent) error
}

// Scope decides whether alarm state is shared by all containments or
// kept per containment.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeContainment
)

func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "global":
		return ScopeGlobal, nil
	case "containment":
		return ScopeContainment, nil
	default:
		return ScopeGlobal, fmt.Errorf("unknown emergency scope %q", s)
	}
}

// Signal is one boolean reading of an alarm channel.
type Signal struct {
	Channel       domain.EmergencyChannel
	ContainmentID int64
	State         bool
	At            time.Time
	Raw           []byte
}

type Action string

const (
	ActionNone        Action = "none"
	ActionOpened      Action = "opened"
	ActionClosed      Action = "closed"
	ActionAlreadyOpen Action = "already-open"
	ActionNothingOpen Action = "nothing-open"
)

type key struct {
	channel       domain.EmergencyChannel
	containmentID int64
}

type channelState struct {
	mu    sync.Mutex
	known bool
	last  bool
	open  *domain.EmergencyEvent
}

// Tracker holds the last known state of every alarm channel. Each channel
// key has its own lock; different channels never contend.
type Tracker struct {
	store   Store
	archive Archive
	scope   Scope
	metrics *metrics.Metrics
	logger  zerolog.Logger

	// states maps key to *channelState.
	states sync.Map
}

func NewTracker(store Store, archive Archive, scope Scope, m *metrics.Metrics) *Tracker {
	return &Tracker{
		store:   store,
		archive: archive,
		scope:   scope,
		metrics: m,
		logger:  log.With().Str("component", "emergency").Logger(),
	}
}

// Restore marks every channel with a stored open event as active.
func (t *Tracker) Restore(ctx context.Context) error {
	events, err := t.store.OpenEmergencyEvents(ctx)
	if err != nil {
		return fmt.Errorf("list open emergency events: %w", err)
	}
	for i := range events {
		ev := events[i]
		st := t.state(t.keyOf(ev.Channel, ev.ContainmentID))
		st.mu.Lock()
		if st.open != nil {
			t.logger.Warn().Str("channel", string(ev.Channel)).Int64("kept", st.open.ID).Int64("ignored", ev.ID).Msg("more than one open event for channel")
		} else {
			st.open = &ev
			st.known = true
			st.last = true
		}
		st.mu.Unlock()
	}
	return nil
}

// Process applies one reading. A reading equal to the last known state of
// its channel does nothing. false->true opens an event unless one is
// already open; true->false closes the open event.
func (t *Tracker) Process(ctx context.Context, sig Signal) (Action, error) {
	st := t.state(t.keyOf(sig.Channel, sig.ContainmentID))
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.known && st.last == sig.State {
		return ActionNone, nil
	}
	logger := t.logger.With().Str("channel", string(sig.Channel)).Int64("containment_id", sig.ContainmentID).Logger()

	if sig.State {
		if st.open != nil {
			logger.Warn().Int64("event_id", st.open.ID).Msg("emergency already open, keeping it")
			st.known, st.last = true, true
			return ActionAlreadyOpen, nil
		}
		ev := &domain.EmergencyEvent{
			Channel:       sig.Channel,
			ContainmentID: sig.ContainmentID,
			Status:        true,
			StartTime:     sig.At,
			IsOpen:        true,
			RawPayload:    append([]byte(nil), sig.Raw...),
		}
		if err := t.store.InsertEmergencyEvent(ctx, ev); err != nil {
			return ActionNone, fmt.Errorf("open %s event: %w", sig.Channel, err)
		}
		st.open = ev
		st.known, st.last = true, true
		t.metrics.IncEmergency(string(sig.Channel), string(ActionOpened))
		logger.Warn().Int64("event_id", ev.ID).Time("start", ev.StartTime).Msg("emergency opened")
		return ActionOpened, nil
	}

	if st.open == nil {
		logger.Info().Msg("emergency cleared with no open event")
		st.known, st.last = true, false
		return ActionNothingOpen, nil
	}
	closed := *st.open
	closed.Close(sig.At)
	if err := t.store.CloseEmergencyEvent(ctx, closed); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return ActionNone, fmt.Errorf("close %s event %d: %w", sig.Channel, closed.ID, err)
		}
		// Closed or removed elsewhere; nothing left to close here.
		logger.Warn().Int64("event_id", closed.ID).Msg("open emergency event no longer stored, dropping it")
		st.open = nil
		st.known, st.last = true, false
		return ActionNothingOpen, nil
	}
	st.open = nil
	st.known, st.last = true, false
	t.metrics.IncEmergency(string(sig.Channel), string(ActionClosed))
	logger.Info().Int64("event_id", closed.ID).Dur("duration", *closed.Duration).Msg("emergency closed")

	if t.archive != nil {
		if err := t.archive.ArchiveEvent(ctx, closed); err != nil {
			logger.Error().Err(err).Int64("event_id", closed.ID).Msg("archive emergency event")
		}
	}
	return ActionClosed, nil
}

// Open returns the open event of a channel, if any.
func (t *Tracker) Open(channel domain.EmergencyChannel, containmentID int64) (domain.EmergencyEvent, bool) {
	v, ok := t.states.Load(t.keyOf(channel, containmentID))
	if !ok {
		return domain.EmergencyEvent{}, false
	}
	st := v.(*channelState)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.open == nil {
		return domain.EmergencyEvent{}, false
	}
	return *st.open, true
}

func (t *Tracker) keyOf(channel domain.EmergencyChannel, containmentID int64) key {
	if t.scope == ScopeGlobal {
		return key{channel: channel}
	}
	return key{channel: channel, containmentID: containmentID}
}

func (t *Tracker) state(k key) *channelState {
	if v, ok := t.states.Load(k); ok {
		return v.(*channelState)
	}
	v, _ := t.states.LoadOrStore(k, &channelState{})
	return v.(*channelState)
}
