// Package broker wraps the MQTT connection used by the ingestion engine.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrConnectFailed is returned once every connect attempt has failed.
var ErrConnectFailed = errors.New("mqtt connect failed")

const opTimeout = 10 * time.Second

type Options struct {
	Broker         string
	ClientIDPrefix string
	Username       string
	Password       string
	QoS            byte
	ConnectRetries int
	ConnectBackoff time.Duration
}

// MessageHandler receives the topic and payload of a delivered message.
type MessageHandler = func(topic string, payload []byte)

// Client is an MQTT connection that remembers its subscriptions and
// restores them on every (re)connect.
type Client struct {
	client mqtt.Client
	opts   Options
	logger zerolog.Logger

	mu        sync.Mutex
	subs      map[string]MessageHandler
	listeners []func(connected bool)
}

func New(opts Options) *Client {
	if opts.ConnectRetries <= 0 {
		opts.ConnectRetries = 1
	}
	c := &Client{
		opts:   opts,
		logger: log.With().Str("component", "broker").Str("broker", opts.Broker).Logger(),
		subs:   make(map[string]MessageHandler),
	}

	mo := mqtt.NewClientOptions().AddBroker(opts.Broker)
	mo.SetClientID(clientID(opts.ClientIDPrefix))
	if opts.Username != "" {
		mo.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		mo.SetPassword(opts.Password)
	}
	mo.SetAutoReconnect(true)
	mo.SetCleanSession(true)
	mo.SetConnectTimeout(opTimeout)
	mo.SetOnConnectHandler(func(mqtt.Client) { c.onConnect() })
	mo.SetConnectionLostHandler(func(_ mqtt.Client, err error) { c.onConnectionLost(err) })
	c.client = mqtt.NewClient(mo)
	return c
}

func clientID(prefix string) string {
	if prefix == "" {
		prefix = "containment"
	}
	return prefix + "-" + uuid.NewString()[:8]
}

// Connect dials the broker, retrying a fixed number of times with a fixed
// backoff. It gives up with ErrConnectFailed, or earlier if ctx ends.
func (c *Client) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= c.opts.ConnectRetries; attempt++ {
		token := c.client.Connect()
		if !token.WaitTimeout(opTimeout) {
			lastErr = errors.New("connect timed out")
		} else if lastErr = token.Error(); lastErr == nil {
			c.logger.Info().Int("attempt", attempt).Msg("mqtt connected")
			return nil
		}
		c.logger.Warn().Err(lastErr).Int("attempt", attempt).Int("max", c.opts.ConnectRetries).Msg("mqtt connect attempt failed")
		if attempt == c.opts.ConnectRetries {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrConnectFailed, ctx.Err())
		case <-time.After(c.opts.ConnectBackoff):
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrConnectFailed, c.opts.ConnectRetries, lastErr)
}

// Subscribe registers handler for pattern. The subscription is sent now
// when connected and again after every reconnect.
func (c *Client) Subscribe(pattern string, handler MessageHandler) error {
	c.mu.Lock()
	c.subs[pattern] = handler
	c.mu.Unlock()

	if !c.client.IsConnected() {
		return nil
	}
	return c.subscribe(pattern, handler)
}

func (c *Client) Unsubscribe(patterns ...string) error {
	c.mu.Lock()
	for _, p := range patterns {
		delete(c.subs, p)
	}
	c.mu.Unlock()

	if len(patterns) == 0 || !c.client.IsConnected() {
		return nil
	}
	return wait(c.client.Unsubscribe(patterns...), "unsubscribe")
}

func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	return wait(c.client.Publish(topic, c.opts.QoS, retained, payload), "publish "+topic)
}

func (c *Client) IsConnected() bool { return c.client.IsConnected() }

// OnConnectionChange registers fn to be called on every connect and
// connection loss.
func (c *Client) OnConnectionChange(fn func(connected bool)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}

// Subscriptions returns the registered patterns in sorted order.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for p := range c.subs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (c *Client) subscribe(pattern string, handler MessageHandler) error {
	token := c.client.Subscribe(pattern, c.opts.QoS, func(_ mqtt.Client, m mqtt.Message) {
		handler(m.Topic(), m.Payload())
	})
	return wait(token, "subscribe "+pattern)
}

func (c *Client) onConnect() {
	c.mu.Lock()
	subs := make(map[string]MessageHandler, len(c.subs))
	for p, h := range c.subs {
		subs[p] = h
	}
	listeners := append([]func(bool){}, c.listeners...)
	c.mu.Unlock()

	for p, h := range subs {
		if err := c.subscribe(p, h); err != nil {
			c.logger.Error().Err(err).Str("topic", p).Msg("resubscribe failed")
		}
	}
	c.logger.Info().Int("subscriptions", len(subs)).Msg("mqtt session ready")
	for _, fn := range listeners {
		fn(true)
	}
}

func (c *Client) onConnectionLost(err error) {
	c.logger.Warn().Err(err).Msg("mqtt connection lost")
	c.mu.Lock()
	listeners := append([]func(bool){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(false)
	}
}

func wait(token mqtt.Token, op string) error {
	if !token.WaitTimeout(opTimeout) {
		return fmt.Errorf("%s: timed out", op)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
