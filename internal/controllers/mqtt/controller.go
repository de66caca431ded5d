package mqttctrl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Agrid-Dev/redwire/internal/heater"
	"github.com/Agrid-Dev/redwire/internal/ports"
)

var ErrNotConnected = errors.New("mqtt: not connected")

var _ ports.Transport = (*Controller)(nil)

type Config struct {
	// Identity
	DeviceID string

	// MQTT connection
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// Behavior
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration

	// StateTopic, if set, receives a retained JSON snapshot on every state change.
	StateTopic string
}

// Controller is the MQTT transport of the bridge. It keeps a route per subscribed
// topic and re-subscribes all of them whenever the connection is (re)established.
type Controller struct {
	cfg Config
	log *zap.SugaredLogger

	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu     sync.Mutex
	client mqtt.Client
	routes map[string]func(string)
}

func New(cfg Config, log *zap.SugaredLogger) (*Controller, error) {
	// ---- defaults ----

	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}
	if cfg.DeviceID == "" {
		return nil, errors.New("mqtt: DeviceID is required")
	}
	if cfg.ClientID == "" {
		// unique per process so two bridges never kick each other off the broker
		cfg.ClientID = "redwire-" + cfg.DeviceID + "-" + uuid.NewString()[:8]
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.QoS > 1 {
		return nil, errors.New("mqtt: QoS must be 0 or 1")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Controller{
		cfg:       cfg,
		log:       log,
		newClient: mqtt.NewClient,
		routes:    make(map[string]func(string)),
	}, nil
}

func (c *Controller) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second).
		SetOrderMatters(true)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	// Subscribe when connected/reconnected.
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.log.Warnw("mqtt connection lost", "broker", c.cfg.BrokerURL, "err", err)
	})
	return opts
}

// Connect starts the client. If the broker is not reachable within ConnectTimeout
// the client keeps retrying in the background and Connect returns nil.
func (c *Controller) Connect(ctx context.Context) error {
	cl := c.newClient(c.options())
	c.mu.Lock()
	c.client = cl
	c.mu.Unlock()

	tok := cl.Connect()
	select {
	case <-tok.Done():
		if err := tok.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		c.log.Infow("mqtt connected", "broker", c.cfg.BrokerURL, "client_id", c.cfg.ClientID)
	case <-time.After(c.cfg.ConnectTimeout):
		c.log.Warnw("mqtt broker not reachable yet, retrying in background", "broker", c.cfg.BrokerURL)
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Run blocks until ctx is canceled, then disconnects.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	connected := c.client != nil
	c.mu.Unlock()
	if !connected {
		if err := c.Connect(ctx); err != nil {
			return err
		}
	}

	<-ctx.Done()
	c.mu.Lock()
	cl := c.client
	c.mu.Unlock()
	cl.Disconnect(250)
	return ctx.Err()
}

func (c *Controller) onConnect(cl mqtt.Client) {
	c.mu.Lock()
	topics := make([]string, 0, len(c.routes))
	for t := range c.routes {
		topics = append(topics, t)
	}
	c.mu.Unlock()
	sort.Strings(topics)

	for _, t := range topics {
		if err := c.subscribe(cl, t); err != nil {
			c.log.Errorw("mqtt subscribe failed", "topic", t, "err", err)
		}
	}
}

// Subscribe registers handler for topic. The subscription is placed immediately
// when connected and again after every reconnect.
func (c *Controller) Subscribe(topic string, handler func(payload string)) error {
	if topic == "" {
		return errors.New("mqtt: empty topic")
	}
	c.mu.Lock()
	c.routes[topic] = handler
	cl := c.client
	c.mu.Unlock()

	if cl == nil || !cl.IsConnectionOpen() {
		return nil
	}
	return c.subscribe(cl, topic)
}

func (c *Controller) subscribe(cl mqtt.Client, topic string) error {
	tok := cl.Subscribe(topic, c.cfg.QoS, c.onMessage)
	if !tok.WaitTimeout(c.cfg.PublishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	return tok.Error()
}

func (c *Controller) onMessage(_ mqtt.Client, msg mqtt.Message) {
	c.mu.Lock()
	h, ok := c.routes[msg.Topic()]
	c.mu.Unlock()
	if !ok {
		c.log.Debugw("mqtt message on unrouted topic", "topic", msg.Topic())
		return
	}
	h(string(msg.Payload()))
}

// Publish sends a command without the retained flag and without waiting for the broker.
func (c *Controller) Publish(topic, payload string) error {
	return c.publish(topic, payload, false)
}

// PublishRetained is Publish with the retained flag set.
func (c *Controller) PublishRetained(topic, payload string) error {
	return c.publish(topic, payload, true)
}

func (c *Controller) publish(topic string, payload any, retained bool) error {
	c.mu.Lock()
	cl := c.client
	c.mu.Unlock()
	if cl == nil {
		return ErrNotConnected
	}

	tok := cl.Publish(topic, c.cfg.QoS, retained, payload)
	go c.await(tok, topic)
	return nil
}

// await reports a failed delivery after the fact; the caller has already moved on.
func (c *Controller) await(tok mqtt.Token, topic string) {
	if !tok.WaitTimeout(c.cfg.PublishTimeout) {
		c.log.Warnw("mqtt publish not acknowledged in time", "topic", topic, "timeout", c.cfg.PublishTimeout)
		return
	}
	if err := tok.Error(); err != nil {
		c.log.Errorw("mqtt publish failed", "topic", topic, "err", err)
	}
}

type snapshotDTO struct {
	Name               string   `json:"name"`
	TargetTemperature  *int     `json:"target_temperature"`
	HVACMode           string   `json:"hvac_mode"`
	CurrentTemperature *float64 `json:"current_temperature"`
	Available          bool     `json:"available"`
}

// PublishSnapshot publishes s to StateTopic. It is meant to be registered with
// heater.OnChange and is a no-op when no StateTopic is configured.
func (c *Controller) PublishSnapshot(s heater.Snapshot) {
	if c.cfg.StateTopic == "" {
		return
	}
	b, err := json.Marshal(snapshotDTO{
		Name:               s.Name,
		TargetTemperature:  s.TargetTemperature,
		HVACMode:           s.Mode().String(),
		CurrentTemperature: s.AmbientTemperature,
		Available:          s.Available,
	})
	if err != nil {
		c.log.Errorw("state snapshot not encoded", "topic", c.cfg.StateTopic, "err", err)
		return
	}
	if err := c.publish(c.cfg.StateTopic, b, true); err != nil {
		c.log.Warnw("state snapshot not published", "topic", c.cfg.StateTopic, "err", err)
	}
}
