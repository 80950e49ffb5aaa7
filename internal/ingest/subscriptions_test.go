package ingest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

type fakeSubscriber struct {
	mu           sync.Mutex
	subscribed   map[string]func(string, []byte)
	unsubscribed []string
	failOn       string
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subscribed: make(map[string]func(string, []byte))}
}

func (f *fakeSubscriber) Subscribe(pattern string, handler func(string, []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pattern == f.failOn {
		return errors.New("not authorized")
	}
	f.subscribed[pattern] = handler
	return nil
}

func (f *fakeSubscriber) Unsubscribe(patterns ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range patterns {
		delete(f.subscribed, p)
	}
	f.unsubscribed = append(f.unsubscribed, patterns...)
	return nil
}

type deviceList struct{ devices []domain.Device }

func (d *deviceList) ListDevices(context.Context) ([]domain.Device, error) { return d.devices, nil }

func TestSubscriptions_Sync(t *testing.T) {
	broker := newFakeSubscriber()
	devices := &deviceList{devices: []domain.Device{
		{ID: 1, Topic: "dc/device/1"},
		{ID: 2, Topic: "dc/device/2"},
		{ID: 3, Topic: ""},
		{ID: 4, Topic: "dc/#/bad"},
	}}
	var got []string
	s := NewSubscriptions(broker, devices, []string{"containment/+/status"}, func(topic string, _ []byte) {
		got = append(got, topic)
	})

	require.NoError(t, s.Sync(context.Background()))
	assert.Equal(t, []string{"containment/+/status", "dc/device/1", "dc/device/2"}, s.Active())

	broker.subscribed["dc/device/1"]("dc/device/1", nil)
	assert.Equal(t, []string{"dc/device/1"}, got)

	devices.devices = devices.devices[1:]
	require.NoError(t, s.Sync(context.Background()))
	assert.Equal(t, []string{"dc/device/1"}, broker.unsubscribed)
	assert.Equal(t, []string{"containment/+/status", "dc/device/2"}, s.Active())
}

func TestSubscriptions_SkipsTopicsCoveredByStatusPatterns(t *testing.T) {
	broker := newFakeSubscriber()
	s := NewSubscriptions(broker, &deviceList{devices: []domain.Device{
		{ID: 1, Topic: "rack1/status"},
		{ID: 2, Topic: "dc/device/2"},
	}}, []string{"+/status"}, func(string, []byte) {})

	require.NoError(t, s.Sync(context.Background()))
	assert.Equal(t, []string{"+/status", "dc/device/2"}, s.Active())
	assert.NotContains(t, broker.subscribed, "rack1/status")
}

func TestSubscriptions_PartialFailure(t *testing.T) {
	broker := newFakeSubscriber()
	broker.failOn = "dc/device/2"
	s := NewSubscriptions(broker, &deviceList{devices: []domain.Device{
		{ID: 1, Topic: "dc/device/1"},
		{ID: 2, Topic: "dc/device/2"},
	}}, nil, func(string, []byte) {})

	err := s.Sync(context.Background())
	require.Error(t, err)
	active := s.Active()
	sort.Strings(active)
	assert.Equal(t, []string{"dc/device/1"}, active)

	broker.failOn = ""
	require.NoError(t, s.Sync(context.Background()))
	assert.Len(t, s.Active(), 2)
}
