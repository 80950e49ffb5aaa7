package threshold

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/metrics"
)

type memLogStore struct {
	mu        sync.Mutex
	entries   []domain.AutoSaveLogEntry
	notified  map[int64]time.Time
	insertErr error
}

func (m *memLogStore) InsertAutoSaveLog(_ context.Context, e *domain.AutoSaveLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memLogStore) MarkNotified(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.notified == nil {
		m.notified = make(map[int64]time.Time)
	}
	m.notified[id] = at
	return nil
}

type fakeNotifier struct {
	sent []domain.AutoSaveLogEntry
	err  error
}

func (f *fakeNotifier) SendThresholdNotification(_ context.Context, e domain.AutoSaveLogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, e)
	return nil
}

func upperConfig(notify bool) domain.ThresholdConfiguration {
	upper := 30.0
	return domain.ThresholdConfiguration{
		ID:                  5,
		Scope:               domain.GlobalScope{},
		Metric:              domain.MetricTemperature,
		Ranges:              bands(),
		Upper:               &upper,
		CheckEnabled:        true,
		AutoSaveUpper:       true,
		NotificationEnabled: notify,
		Enabled:             true,
	}
}

func sample(id int64, temp float64) domain.SensorSample {
	return domain.SensorSample{ID: id, DeviceID: 7, Timestamp: time.Now(), Temperature: &temp}
}

func runSequence(t *testing.T, r *Recorder, values []float64) {
	t.Helper()
	for i, v := range values {
		_, err := r.Record(context.Background(), sample(int64(i+1), v), domain.MetricTemperature, upperConfig(false))
		require.NoError(t, err)
	}
}

func TestRecord_TransitionLogsOncePerBreach(t *testing.T) {
	store := &memLogStore{}
	r := NewRecorder(store, nil, RetriggerOnTransition, nil)

	runSequence(t, r, []float64{25, 32, 33, 34, 20})

	require.Len(t, store.entries, 1)
	e := store.entries[0]
	assert.Equal(t, int64(2), e.SampleID)
	assert.Equal(t, 32.0, *e.MeasuredValue)
	assert.Equal(t, 30.0, *e.ThresholdValue)
	assert.Equal(t, domain.TriggerUpperThreshold, e.Reason)
	assert.Equal(t, int64(5), e.ConfigurationID)
}

func TestRecord_TransitionRearmsAfterRecovery(t *testing.T) {
	store := &memLogStore{}
	r := NewRecorder(store, nil, RetriggerOnTransition, nil)

	runSequence(t, r, []float64{25, 32, 33, 34, 20, 31})

	require.Len(t, store.entries, 2)
	assert.Equal(t, 31.0, *store.entries[1].MeasuredValue)
}

func TestRecord_EveryLogsEachBreach(t *testing.T) {
	store := &memLogStore{}
	m := metrics.New()
	r := NewRecorder(store, nil, RetriggerEvery, m)

	runSequence(t, r, []float64{25, 32, 33, 34, 20})

	require.Len(t, store.entries, 3)
	assert.Equal(t, []float64{32, 33, 34}, []float64{
		*store.entries[0].MeasuredValue,
		*store.entries[1].MeasuredValue,
		*store.entries[2].MeasuredValue,
	})
	assert.Equal(t, 3.0, counterValue(t, m, "containment_threshold_violations_total"))
}

func counterValue(t *testing.T, m *metrics.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func TestRecord_SuppressedOutcome(t *testing.T) {
	r := NewRecorder(&memLogStore{}, nil, RetriggerOnTransition, nil)

	out, err := r.Record(context.Background(), sample(1, 32), domain.MetricTemperature, upperConfig(false))
	require.NoError(t, err)
	assert.NotNil(t, out.Entry)
	assert.False(t, out.Suppressed)

	out, err = r.Record(context.Background(), sample(2, 33), domain.MetricTemperature, upperConfig(false))
	require.NoError(t, err)
	assert.Nil(t, out.Entry)
	assert.True(t, out.Suppressed)
	assert.Equal(t, domain.BandWarm, out.Band)
}

func TestRecord_MissingMetricIsIgnored(t *testing.T) {
	store := &memLogStore{}
	r := NewRecorder(store, nil, RetriggerEvery, nil)

	s := domain.SensorSample{ID: 1, DeviceID: 7}
	out, err := r.Record(context.Background(), s, domain.MetricTemperature, upperConfig(false))
	require.NoError(t, err)
	assert.Nil(t, out.Violation)
	assert.Empty(t, store.entries)
}

func TestRecord_NotificationFailureKeepsEntry(t *testing.T) {
	store := &memLogStore{}
	notifier := &fakeNotifier{err: errors.New("sns down")}
	r := NewRecorder(store, notifier, RetriggerEvery, nil)

	out, err := r.Record(context.Background(), sample(1, 35), domain.MetricTemperature, upperConfig(true))
	require.NoError(t, err)
	require.NotNil(t, out.Entry)
	assert.False(t, out.Notified)
	assert.Len(t, store.entries, 1)
	assert.Empty(t, store.notified)
}

func TestRecord_NotificationMarksEntry(t *testing.T) {
	store := &memLogStore{}
	notifier := &fakeNotifier{}
	r := NewRecorder(store, notifier, RetriggerEvery, nil)

	out, err := r.Record(context.Background(), sample(1, 35), domain.MetricTemperature, upperConfig(true))
	require.NoError(t, err)
	assert.True(t, out.Notified)
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, store.notified, out.Entry.ID)
	assert.True(t, out.Entry.NotificationSent)
}

func TestRecord_InsertFailureRearms(t *testing.T) {
	store := &memLogStore{insertErr: errors.New("db down")}
	r := NewRecorder(store, nil, RetriggerOnTransition, nil)

	_, err := r.Record(context.Background(), sample(1, 32), domain.MetricTemperature, upperConfig(false))
	require.Error(t, err)

	store.insertErr = nil
	out, err := r.Record(context.Background(), sample(2, 33), domain.MetricTemperature, upperConfig(false))
	require.NoError(t, err)
	assert.NotNil(t, out.Entry)
}

func TestParseRetrigger(t *testing.T) {
	p, err := ParseRetrigger("Transition")
	require.NoError(t, err)
	assert.Equal(t, RetriggerOnTransition, p)

	p, err = ParseRetrigger("")
	require.NoError(t, err)
	assert.Equal(t, RetriggerEvery, p)

	_, err = ParseRetrigger("sometimes")
	assert.Error(t, err)
}
