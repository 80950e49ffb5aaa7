// Package ingest turns inbound broker messages into persisted samples,
// threshold log entries, activity updates and emergency events.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/emergency"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/metrics"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/scheduler"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/threshold"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/topic"
)

// Message is one inbound broker message.
type Message struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

type DeviceResolver interface {
	Resolve(ctx context.Context, topic string, payload []byte) (domain.Device, topic.Strategy, error)
	ResolveContainment(topic string, payload []byte) int64
}

type ConfigResolver interface {
	Interval(ctx context.Context, deviceID, containmentID int64) (*domain.IntervalConfiguration, error)
	Threshold(ctx context.Context, deviceID, containmentID int64, metric domain.Metric) (*domain.ThresholdConfiguration, error)
}

type Scheduler interface {
	Decide(ctx context.Context, deviceID int64, intervalMinutes int, ts time.Time) (scheduler.Decision, error)
	MarkPersisted(deviceID int64, window, ts time.Time)
}

type SampleStore interface {
	// InsertSample stores s and sets its ID.
	InsertSample(ctx context.Context, s *domain.SensorSample) error
	InsertAutoSaveLog(ctx context.Context, entry *domain.AutoSaveLogEntry) error
}

type ThresholdRecorder interface {
	Record(ctx context.Context, sample domain.SensorSample, metric domain.Metric, cfg domain.ThresholdConfiguration) (threshold.Outcome, error)
}

type ActivityMonitor interface {
	Heartbeat(ctx context.Context, device domain.Device, seenAt time.Time) error
}

type EmergencyTracker interface {
	Process(ctx context.Context, sig emergency.Signal) (emergency.Action, error)
}

// SampleMirror receives a copy of every persisted sample.
type SampleMirror interface {
	PutSample(ctx context.Context, device domain.Device, sample domain.SensorSample) error
}

type Deps struct {
	Devices    DeviceResolver
	Configs    ConfigResolver
	Scheduler  Scheduler
	Samples    SampleStore
	Thresholds ThresholdRecorder
	Activity   ActivityMonitor
	Emergency  EmergencyTracker
	Mirror     SampleMirror
	Metrics    *metrics.Metrics
}

type Options struct {
	// StatusTopics are the patterns carrying containment alarm states.
	StatusTopics []string
	// AuditIntervalSaves writes an Interval log entry for each scheduled save.
	AuditIntervalSaves bool
}

type Outcome string

const (
	OutcomeMalformed    Outcome = "malformed"
	OutcomeUnresolved   Outcome = "unresolved"
	OutcomeStatus       Outcome = "status"
	OutcomeHeartbeat    Outcome = "heartbeat"
	OutcomeUnconfigured Outcome = "unconfigured"
	OutcomeSkipped      Outcome = "skipped"
	OutcomePersisted    Outcome = "persisted"
	OutcomeFailed       Outcome = "failed"
)

// Result describes what happened to one message.
type Result struct {
	Outcome  Outcome
	DeviceID int64
	Sample   *domain.SensorSample
	Decision scheduler.Decision
}

// Coordinator handles one message at a time per device. It is safe to
// call Handle from many goroutines; messages for the same device are
// serialized, different devices proceed in parallel.
type Coordinator struct {
	deps   Deps
	opts   Options
	locks  *KeyedMutex
	logger zerolog.Logger
}

func NewCoordinator(deps Deps, opts Options) *Coordinator {
	return &Coordinator{
		deps:   deps,
		opts:   opts,
		locks:  NewKeyedMutex(),
		logger: log.With().Str("component", "ingest").Logger(),
	}
}

// Handle processes msg. Only failures the caller can do nothing about
// except log are returned; unresolvable topics and malformed payloads are
// reported through Result and never stop the worker.
func (c *Coordinator) Handle(ctx context.Context, msg Message) (Result, error) {
	res, err := c.handle(ctx, msg)
	c.deps.Metrics.IncMessage(string(res.Outcome))
	return res, err
}

func (c *Coordinator) handle(ctx context.Context, msg Message) (Result, error) {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now()
	}
	logger := c.logger.With().Str("topic", msg.Topic).Logger()

	reading, err := DecodePayload(msg.Payload, msg.ReceivedAt)
	if err != nil {
		logger.Error().Err(err).Msg("discarding message")
		return Result{Outcome: OutcomeMalformed}, nil
	}

	isStatus := topic.MatchAny(c.opts.StatusTopics, msg.Topic)
	if isStatus && len(reading.Emergencies) > 0 {
		c.trackEmergencies(ctx, logger, msg, reading)
	}

	device, strategy, err := c.deps.Devices.Resolve(ctx, msg.Topic, msg.Payload)
	if errors.Is(err, topic.ErrNotFound) {
		if isStatus {
			return Result{Outcome: OutcomeStatus}, nil
		}
		logger.Warn().Msg("no device for topic, dropping message")
		return Result{Outcome: OutcomeUnresolved}, nil
	}
	if err != nil {
		return Result{Outcome: OutcomeFailed}, fmt.Errorf("resolve device: %w", err)
	}
	logger = logger.With().Int64("device_id", device.ID).Str("strategy", string(strategy)).Logger()

	unlock := c.locks.Lock(device.ID)
	defer unlock()

	if err := c.deps.Activity.Heartbeat(ctx, device, msg.ReceivedAt); err != nil {
		logger.Error().Err(err).Msg("activity heartbeat")
	}

	res := Result{Outcome: OutcomeHeartbeat, DeviceID: device.ID}
	if !device.IsSensor() || !reading.HasMeasurements() {
		return res, nil
	}

	interval, err := c.deps.Configs.Interval(ctx, device.ID, device.ContainmentID)
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, fmt.Errorf("resolve interval for device %d: %w", device.ID, err)
	}
	if interval == nil {
		logger.Debug().Msg("no interval configuration, not persisting")
		res.Outcome = OutcomeUnconfigured
		return res, nil
	}

	decision, err := c.deps.Scheduler.Decide(ctx, device.ID, interval.IntervalMinutes, reading.Timestamp)
	res.Decision = decision
	if err != nil {
		res.Outcome = OutcomeFailed
		return res, err
	}
	if !decision.Persist {
		logger.Debug().Str("reason", string(decision.Reason)).Time("ts", reading.Timestamp).Msg("sample not persisted")
		res.Outcome = OutcomeSkipped
		return res, nil
	}

	sample := &domain.SensorSample{
		DeviceID:    device.ID,
		Timestamp:   reading.Timestamp,
		ReceivedAt:  msg.ReceivedAt,
		Temperature: reading.Temperature,
		Humidity:    reading.Humidity,
		RawPayload:  append([]byte(nil), msg.Payload...),
	}
	if err := c.deps.Samples.InsertSample(ctx, sample); err != nil {
		res.Outcome = OutcomeFailed
		return res, fmt.Errorf("insert sample for device %d: %w", device.ID, err)
	}
	c.deps.Scheduler.MarkPersisted(device.ID, decision.Window, reading.Timestamp)
	c.deps.Metrics.IncSamplePersisted()
	res.Outcome = OutcomePersisted
	res.Sample = sample
	logger.Debug().Time("window", decision.Window).Int64("sample_id", sample.ID).Msg("sample persisted")

	if c.deps.Mirror != nil {
		if err := c.deps.Mirror.PutSample(ctx, device, *sample); err != nil {
			logger.Error().Err(err).Msg("mirror sample")
		}
	}

	band := c.evaluateThresholds(ctx, logger, device, *sample)
	if c.opts.AuditIntervalSaves {
		entry := &domain.AutoSaveLogEntry{
			SampleID:        sample.ID,
			DeviceID:        device.ID,
			ConfigurationID: interval.ID,
			Reason:          domain.TriggerInterval,
			Metric:          domain.MetricTemperature,
			MeasuredValue:   sample.Temperature,
			Status:          band,
			CreatedAt:       msg.ReceivedAt,
		}
		if err := c.deps.Samples.InsertAutoSaveLog(ctx, entry); err != nil {
			logger.Error().Err(err).Msg("insert interval audit entry")
		}
	}
	return res, nil
}

// evaluateThresholds runs every configured metric of a persisted sample
// through the recorder and returns the temperature band, if any.
func (c *Coordinator) evaluateThresholds(ctx context.Context, logger zerolog.Logger, device domain.Device, sample domain.SensorSample) domain.StatusBand {
	var band domain.StatusBand
	for _, metric := range domain.Metrics {
		if _, ok := sample.Value(metric); !ok {
			continue
		}
		cfg, err := c.deps.Configs.Threshold(ctx, device.ID, device.ContainmentID, metric)
		if err != nil {
			logger.Error().Err(err).Str("metric", string(metric)).Msg("resolve threshold configuration")
			continue
		}
		if cfg == nil {
			continue
		}
		out, err := c.deps.Thresholds.Record(ctx, sample, metric, *cfg)
		if err != nil {
			logger.Error().Err(err).Str("metric", string(metric)).Msg("record threshold outcome")
		}
		if metric == domain.MetricTemperature {
			band = out.Band
		}
	}
	return band
}

func (c *Coordinator) trackEmergencies(ctx context.Context, logger zerolog.Logger, msg Message, reading Reading) {
	containmentID := c.deps.Devices.ResolveContainment(msg.Topic, msg.Payload)
	for _, e := range reading.Emergencies {
		_, err := c.deps.Emergency.Process(ctx, emergency.Signal{
			Channel:       e.Channel,
			ContainmentID: containmentID,
			State:         e.State,
			At:            reading.Timestamp,
			Raw:           msg.Payload,
		})
		if err != nil {
			logger.Error().Err(err).Str("channel", string(e.Channel)).Msg("emergency tracking")
		}
	}
}
