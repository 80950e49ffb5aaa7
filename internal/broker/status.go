package broker

import (
	"context"
	"fmt"
	"strings"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/domain"
)

// Publisher is the publishing half of the transport.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
}

// StatusPublisher publishes device activity as retained messages on
// {prefix}/{deviceId}/status.
type StatusPublisher struct {
	pub    Publisher
	prefix string
}

func NewStatusPublisher(pub Publisher, prefix string) *StatusPublisher {
	return &StatusPublisher{pub: pub, prefix: strings.TrimSuffix(prefix, "/")}
}

func (s *StatusPublisher) Topic(deviceID int64) string {
	return fmt.Sprintf("%s/%d/status", s.prefix, deviceID)
}

func (s *StatusPublisher) PublishDeviceStatus(_ context.Context, deviceID int64, state domain.ActivityState) error {
	return s.pub.Publish(s.Topic(deviceID), []byte(strings.ToLower(string(state))), true)
}
