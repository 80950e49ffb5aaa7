package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

// ErrMalformedPayload marks a message that is not JSON or carries a field
// of the wrong type.
var ErrMalformedPayload = errors.New("malformed payload")

var (
	timestampKeys   = []string{"timestamp", "Timestamp"}
	temperatureKeys = []string{"temp", "Temp", "temperature", "Temperature"}
	humidityKeys    = []string{"hum", "Hum", "humidity", "Humidity"}

	// channelPrefixes maps a normalized field-name prefix to its channel,
	// e.g. "Smoke Detector status" -> "smokedetectorstatus".
	channelPrefixes = []struct {
		prefix  string
		channel domain.EmergencyChannel
	}{
		{"smokedetector", domain.ChannelSmokeDetector},
		{"fss", domain.ChannelFSS},
		{"firesuppression", domain.ChannelFSS},
		{"emergencybutton", domain.ChannelEmergencyButton},
		{"emergencytemp", domain.ChannelEmergencyTemp},
	}

	timestampLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999",
	}
)

// EmergencyReading is one boolean alarm field found in a payload.
type EmergencyReading struct {
	Channel domain.EmergencyChannel
	State   bool
}

// Reading is the decoded content of an inbound message.
type Reading struct {
	// Timestamp is the origin time from the payload, or the receive time
	// when the payload has none.
	Timestamp    time.Time
	HasTimestamp bool
	Temperature  *float64
	Humidity     *float64
	Emergencies  []EmergencyReading
}

func (r Reading) HasMeasurements() bool {
	return r.Temperature != nil || r.Humidity != nil
}

// DecodePayload extracts the fields the engine uses. Missing fields are
// fine and unknown ones are ignored; a numeric or alarm field holding an
// unusable value makes the whole message malformed.
func DecodePayload(payload []byte, receivedAt time.Time) (Reading, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	r := Reading{Timestamp: receivedAt}
	if raw, ok := first(fields, timestampKeys); ok {
		if ts, ok := parseTimestamp(raw); ok {
			r.Timestamp = ts
			r.HasTimestamp = true
		}
	}

	var err error
	if r.Temperature, err = number(fields, temperatureKeys); err != nil {
		return Reading{}, err
	}
	if r.Humidity, err = number(fields, humidityKeys); err != nil {
		return Reading{}, err
	}

	seen := make(map[domain.EmergencyChannel]bool)
	for name, raw := range fields {
		channel, ok := channelFor(name)
		if !ok || seen[channel] || string(raw) == "null" {
			continue
		}
		state, ok := boolean(raw)
		if !ok {
			return Reading{}, fmt.Errorf("%w: field %q is not a boolean state", ErrMalformedPayload, name)
		}
		seen[channel] = true
		r.Emergencies = append(r.Emergencies, EmergencyReading{Channel: channel, State: state})
	}
	sort.Slice(r.Emergencies, func(i, j int) bool {
		return r.Emergencies[i].Channel < r.Emergencies[j].Channel
	})
	return r, nil
}

func first(fields map[string]json.RawMessage, keys []string) (json.RawMessage, bool) {
	for _, k := range keys {
		if raw, ok := fields[k]; ok && string(raw) != "null" {
			return raw, true
		}
	}
	return nil, false
}

func number(fields map[string]json.RawMessage, keys []string) (*float64, error) {
	raw, ok := first(fields, keys)
	if !ok {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is not numeric", ErrMalformedPayload, keys[0])
}

func parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func channelFor(field string) (domain.EmergencyChannel, bool) {
	norm := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-':
			return -1
		}
		return r
	}, strings.ToLower(field))
	for _, p := range channelPrefixes {
		if strings.HasPrefix(norm, p.prefix) {
			return p.channel, true
		}
	}
	return "", false
}

func boolean(raw json.RawMessage) (bool, bool) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f != 0, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "1", "on", "active", "alarm":
			return true, true
		case "false", "0", "off", "inactive", "normal":
			return false, true
		}
	}
	return false, false
}
