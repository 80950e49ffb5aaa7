package domain

import (
	"encoding/json"
	"time"
)

type DeviceType string

const (
	DeviceTypeSensor DeviceType = "sensor"
	DeviceTypeCamera DeviceType = "camera"
	DeviceTypeOther  DeviceType = "other"
)

// Device is the identity of a registered device, with its rack and
// containment already resolved by the registry.
type Device struct {
	ID            int64      `db:"id" json:"id"`
	Name          string     `db:"name" json:"name"`
	Topic         string     `db:"topic" json:"topic"`
	RackID        int64      `db:"rack_id" json:"rack_id"`
	ContainmentID int64      `db:"containment_id" json:"containment_id"`
	Type          DeviceType `db:"type" json:"type"`
}

func (d Device) IsSensor() bool { return d.Type == DeviceTypeSensor }

// HasTopic reports whether the device publishes on a registered topic.
func (d Device) HasTopic() bool { return d.Topic != "" }

// SensorSample is a persisted telemetry reading.
type SensorSample struct {
	ID          int64           `db:"id" json:"id"`
	DeviceID    int64           `db:"device_id" json:"device_id"`
	Timestamp   time.Time       `db:"timestamp" json:"timestamp"`
	ReceivedAt  time.Time       `db:"received_at" json:"received_at"`
	Temperature *float64        `db:"temperature" json:"temperature,omitempty"`
	Humidity    *float64        `db:"humidity" json:"humidity,omitempty"`
	RawPayload  json.RawMessage `db:"raw_payload" json:"raw_payload"`
}

// Value returns the reading for metric, if the sample carries it.
func (s SensorSample) Value(m Metric) (float64, bool) {
	var v *float64
	switch m {
	case MetricTemperature:
		v = s.Temperature
	case MetricHumidity:
		v = s.Humidity
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

type Metric string

const (
	MetricTemperature Metric = "temperature"
	MetricHumidity    Metric = "humidity"
)

// Metrics lists every metric a threshold configuration can target.
var Metrics = []Metric{MetricTemperature, MetricHumidity}

type TriggerReason string

const (
	TriggerInterval       TriggerReason = "Interval"
	TriggerUpperThreshold TriggerReason = "UpperThreshold"
	TriggerLowerThreshold TriggerReason = "LowerThreshold"
)

// AutoSaveLogEntry is the append-only audit record written for every
// scheduled save and every threshold violation.
type AutoSaveLogEntry struct {
	ID               int64         `db:"id" json:"id"`
	SampleID         int64         `db:"sample_id" json:"sample_id"`
	DeviceID         int64         `db:"device_id" json:"device_id"`
	ConfigurationID  int64         `db:"configuration_id" json:"configuration_id"`
	Reason           TriggerReason `db:"reason" json:"reason"`
	Metric           Metric        `db:"metric" json:"metric"`
	MeasuredValue    *float64      `db:"measured_value" json:"measured_value,omitempty"`
	ThresholdValue   *float64      `db:"threshold_value" json:"threshold_value,omitempty"`
	Status           StatusBand    `db:"status" json:"status"`
	NotificationSent bool          `db:"notification_sent" json:"notification_sent"`
	NotifiedAt       *time.Time    `db:"notified_at" json:"notified_at,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
}

type ActivityState string

const (
	StateUnknown ActivityState = "Unknown"
	StateOnline  ActivityState = "Online"
	StateOffline ActivityState = "Offline"
)

// DeviceActivityStatus is the liveness record kept per monitored device.
type DeviceActivityStatus struct {
	DeviceID            int64         `db:"device_id" json:"device_id"`
	State               ActivityState `db:"state" json:"state"`
	LastSeen            time.Time     `db:"last_seen" json:"last_seen"`
	LastStatusChange    time.Time     `db:"last_status_change" json:"last_status_change"`
	ConsecutiveFailures int           `db:"consecutive_failures" json:"consecutive_failures"`
}

type EmergencyChannel string

const (
	ChannelSmokeDetector   EmergencyChannel = "SmokeDetector"
	ChannelFSS             EmergencyChannel = "FSS"
	ChannelEmergencyButton EmergencyChannel = "EmergencyButton"
	ChannelEmergencyTemp   EmergencyChannel = "EmergencyTemp"
)

// EmergencyChannels is the closed set of alarm sources.
var EmergencyChannels = []EmergencyChannel{
	ChannelSmokeDetector,
	ChannelFSS,
	ChannelEmergencyButton,
	ChannelEmergencyTemp,
}

// EmergencyEvent is an open/close pair on one alarm channel. EndTime and
// Duration are nil while the event is open.
type EmergencyEvent struct {
	ID            int64            `db:"id" json:"id"`
	Channel       EmergencyChannel `db:"channel" json:"channel"`
	ContainmentID int64            `db:"containment_id" json:"containment_id"`
	Status        bool             `db:"status" json:"status"`
	StartTime     time.Time        `db:"start_time" json:"start_time"`
	EndTime       *time.Time       `db:"end_time" json:"end_time,omitempty"`
	Duration      *time.Duration   `db:"duration" json:"duration,omitempty"`
	IsOpen        bool             `db:"is_open" json:"is_open"`
	RawPayload    json.RawMessage  `db:"raw_payload" json:"raw_payload"`
}

// Close ends the event at end.
func (e *EmergencyEvent) Close(end time.Time) {
	d := end.Sub(e.StartTime)
	if d < 0 {
		d = 0
	}
	e.EndTime = &end
	e.Duration = &d
	e.IsOpen = false
	e.Status = false
}
