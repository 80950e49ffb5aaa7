package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/metrics"
)

// Handler processes one message.
type Handler interface {
	Handle(ctx context.Context, msg Message) (Result, error)
}

// Pool feeds broker messages to a fixed set of workers through a bounded
// queue. When the queue is full the message is dropped; nothing is
// buffered beyond it.
type Pool struct {
	handler Handler
	queue   chan Message
	workers int
	metrics *metrics.Metrics
	now     func() time.Time
	logger  zerolog.Logger
}

func NewPool(handler Handler, workers, queueSize int, m *metrics.Metrics) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Pool{
		handler: handler,
		queue:   make(chan Message, queueSize),
		workers: workers,
		metrics: m,
		now:     time.Now,
		logger:  log.With().Str("component", "pool").Logger(),
	}
}

// Submit enqueues a message without blocking and reports whether it was
// accepted. Its signature fits a broker subscription callback.
func (p *Pool) Submit(topic string, payload []byte) bool {
	msg := Message{Topic: topic, Payload: payload, ReceivedAt: p.now()}
	select {
	case p.queue <- msg:
		return true
	default:
		p.metrics.IncQueueDropped()
		p.logger.Warn().Str("topic", topic).Msg("ingest queue full, dropping message")
		return false
	}
}

// OnMessage is Submit without the verdict.
func (p *Pool) OnMessage(topic string, payload []byte) {
	p.Submit(topic, payload)
}

// Run starts the workers and blocks until ctx is cancelled and every
// worker has finished the message it was handling.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx)
		}()
	}
	wg.Wait()
	return nil
}

func (p *Pool) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-p.queue:
			if _, err := p.handler.Handle(ctx, msg); err != nil {
				p.logger.Error().Err(err).Str("topic", msg.Topic).Msg("message handling failed")
			}
		}
	}
}
