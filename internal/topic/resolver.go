package topic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

// ErrNotFound is returned when no strategy attributes a message to a device.
var ErrNotFound = errors.New("no device matches topic")

// Registry is the read-only device registry.
type Registry interface {
	DeviceByID(ctx context.Context, id int64) (domain.Device, error)
	ListDevices(ctx context.Context) ([]domain.Device, error)
}

var (
	deviceIDPattern      = regexp.MustCompile(`(?i)(?:^|/)device/(\d+)(?:/|$)`)
	containmentIDPattern = regexp.MustCompile(`(?i)(?:^|/)containment/(\d+)(?:/|$)`)

	deviceIDKeys      = []string{"device_id", "deviceId", "DeviceId", "DeviceID"}
	containmentIDKeys = []string{"containment_id", "containmentId", "ContainmentId", "ContainmentID"}
)

// Strategy names the rule that attributed a message to a device.
type Strategy string

const (
	StrategyTopicID    Strategy = "topic-id"
	StrategyPayloadID  Strategy = "payload-id"
	StrategyExactTopic Strategy = "exact-topic"
	StrategyName       Strategy = "name"
)

type snapshot struct {
	byID    map[int64]domain.Device
	byTopic map[string]domain.Device
	// named holds devices with their normalized names, longest first.
	named []namedDevice
	at    time.Time
}

type namedDevice struct {
	norm   string
	device domain.Device
}

// Resolver maps an inbound (topic, payload) pair to a registered device.
// It keeps a snapshot of the registry refreshed at most once per ttl.
type Resolver struct {
	registry             Registry
	ttl                  time.Duration
	defaultContainmentID int64
	now                  func() time.Time

	mu   sync.RWMutex
	snap *snapshot
}

func NewResolver(registry Registry, ttl time.Duration, defaultContainmentID int64) *Resolver {
	return &Resolver{
		registry:             registry,
		ttl:                  ttl,
		defaultContainmentID: defaultContainmentID,
		now:                  time.Now,
	}
}

// Resolve tries, in order: a numeric id embedded in the topic, an id field
// in the payload, an exact registered-topic match and finally the device
// name (spaces to underscores, lower-cased) as a substring of the topic.
func (r *Resolver) Resolve(ctx context.Context, topic string, payload []byte) (domain.Device, Strategy, error) {
	snap, err := r.current(ctx)
	if err != nil {
		return domain.Device{}, "", err
	}

	if id, ok := idFromTopic(deviceIDPattern, topic); ok {
		if d, found, err := r.lookup(ctx, snap, id); err != nil {
			return domain.Device{}, "", err
		} else if found {
			return d, StrategyTopicID, nil
		}
	}

	if id, ok := idFromPayload(payload, deviceIDKeys); ok {
		if d, found, err := r.lookup(ctx, snap, id); err != nil {
			return domain.Device{}, "", err
		} else if found {
			return d, StrategyPayloadID, nil
		}
	}

	if d, ok := snap.byTopic[topic]; ok {
		return d, StrategyExactTopic, nil
	}

	lower := strings.ToLower(topic)
	for _, n := range snap.named {
		if strings.Contains(lower, n.norm) {
			return n.device, StrategyName, nil
		}
	}
	return domain.Device{}, "", fmt.Errorf("%w: %s", ErrNotFound, topic)
}

// ResolveContainment picks the containment of a status message: a topic
// embedded id wins over a payload id, which wins over the default.
func (r *Resolver) ResolveContainment(topic string, payload []byte) int64 {
	if id, ok := idFromTopic(containmentIDPattern, topic); ok {
		return id
	}
	if id, ok := idFromPayload(payload, containmentIDKeys); ok {
		return id
	}
	return r.defaultContainmentID
}

// Devices returns the current registry snapshot.
func (r *Resolver) Devices(ctx context.Context) ([]domain.Device, error) {
	snap, err := r.current(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Device, 0, len(snap.byID))
	for _, d := range snap.byID {
		out = append(out, d)
	}
	return out, nil
}

// Invalidate forces the next call to reload the registry.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.snap = nil
	r.mu.Unlock()
}

func (r *Resolver) lookup(ctx context.Context, snap *snapshot, id int64) (domain.Device, bool, error) {
	if d, ok := snap.byID[id]; ok {
		return d, true, nil
	}
	d, err := r.registry.DeviceByID(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Device{}, false, nil
	}
	if err != nil {
		return domain.Device{}, false, fmt.Errorf("lookup device %d: %w", id, err)
	}
	return d, true, nil
}

func (r *Resolver) current(ctx context.Context) (*snapshot, error) {
	r.mu.RLock()
	snap := r.snap
	r.mu.RUnlock()
	if snap != nil && r.now().Sub(snap.at) < r.ttl {
		return snap, nil
	}

	devices, err := r.registry.ListDevices(ctx)
	if err != nil {
		if snap != nil {
			// Serve the stale snapshot until the registry answers again.
			return snap, nil
		}
		return nil, fmt.Errorf("list devices: %w", err)
	}
	snap = buildSnapshot(devices, r.now())

	r.mu.Lock()
	r.snap = snap
	r.mu.Unlock()
	return snap, nil
}

func buildSnapshot(devices []domain.Device, at time.Time) *snapshot {
	s := &snapshot{
		byID:    make(map[int64]domain.Device, len(devices)),
		byTopic: make(map[string]domain.Device, len(devices)),
		at:      at,
	}
	for _, d := range devices {
		s.byID[d.ID] = d
		if d.Topic != "" {
			s.byTopic[d.Topic] = d
		}
		if n := NormalizeName(d.Name); n != "" {
			s.named = append(s.named, namedDevice{norm: n, device: d})
		}
	}
	// Longest names first so "rack_10" is preferred over "rack_1".
	sort.Slice(s.named, func(i, j int) bool {
		a, b := s.named[i], s.named[j]
		if len(a.norm) != len(b.norm) {
			return len(a.norm) > len(b.norm)
		}
		return a.device.ID < b.device.ID
	})
	return s
}

// NormalizeName lower-cases name and replaces spaces with underscores.
func NormalizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

func idFromTopic(re *regexp.Regexp, topic string) (int64, bool) {
	m := re.FindStringSubmatch(topic)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func idFromPayload(payload []byte, keys []string) (int64, bool) {
	if len(payload) == 0 {
		return 0, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return 0, false
	}
	for _, k := range keys {
		raw, ok := fields[k]
		if !ok {
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			if id, err := n.Int64(); err == nil {
				return id, true
			}
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
				return id, true
			}
		}
	}
	return 0, false
}
