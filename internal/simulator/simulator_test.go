package simulator

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agrid-Dev/redwire/internal/heater"
	"github.com/Agrid-Dev/redwire/internal/sensor"
	"github.com/Agrid-Dev/redwire/internal/testutil"
)

const (
	spTopic     = "kitchen/heater/controller/setpoint"
	powerTopic  = "kitchen/heater/controller/state"
	sensorTopic = "kitchen/sensor/temperature"
)

func testConfig() Config {
	return Config{
		SetpointTopic:   spTopic,
		PowerTopic:      powerTopic,
		SensorTopic:     sensorTopic,
		Interval:        10 * time.Millisecond,
		InitialAmbient:  18.5,
		InitialSetpoint: intPtr(20),
		Regulator:       testRegulator,
	}
}

func TestNewValidation(t *testing.T) {
	tr := testutil.NewFakeTransport()

	cfg := testConfig()
	cfg.SensorTopic = ""
	_, err := New(cfg, tr, nil)
	assert.ErrorIs(t, err, heater.ErrMissingTopic)

	cfg = testConfig()
	cfg.Interval = 0
	_, err = New(cfg, tr, nil)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = New(testConfig(), nil, nil)
	assert.Error(t, err)
}

func TestStartPublishesRetainedState(t *testing.T) {
	tr := testutil.NewFakeTransport()
	s, err := New(testConfig(), tr, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	assert.True(t, tr.Subscribed(spTopic))
	assert.True(t, tr.Subscribed(powerTopic))
	assert.Equal(t, []testutil.Published{
		{Topic: spTopic, Payload: "20", Retained: true},
		{Topic: powerTopic, Payload: "0", Retained: true},
		{Topic: sensorTopic, Payload: "18.50", Retained: true},
	}, tr.Messages())
}

func TestCommandsAreConfirmedOnce(t *testing.T) {
	tr := testutil.NewFakeTransport()
	s, err := New(testConfig(), tr, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	before := len(tr.Messages())

	tr.Deliver(spTopic, "23")
	tr.Deliver(spTopic, "23")
	tr.Deliver(powerTopic, "1")
	tr.Deliver(powerTopic, "1")
	tr.Deliver(spTopic, "hot")

	st := s.State()
	require.NotNil(t, st.Setpoint)
	assert.Equal(t, 23, *st.Setpoint)
	assert.True(t, st.PowerOn)
	assert.Equal(t, []testutil.Published{
		{Topic: spTopic, Payload: "23", Retained: true},
		{Topic: powerTopic, Payload: "1", Retained: true},
	}, tr.Messages()[before:])
}

func TestSensorFieldWrapsReading(t *testing.T) {
	cfg := testConfig()
	cfg.SensorField = "temperature"
	s, err := New(cfg, testutil.NewFakeTransport(), nil)
	require.NoError(t, err)
	assert.Equal(t, `{"temperature":21.30}`, s.sensorPayload(21.3))
}

func TestRunPublishesReadings(t *testing.T) {
	tr := testutil.NewFakeTransport()
	s, err := New(testConfig(), tr, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		n := 0
		for _, m := range tr.Messages() {
			if m.Topic == sensorTopic {
				n++
			}
		}
		return n >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

// loopback is a minimal in-process broker: every publish reaches every subscriber
// of the topic, in publish order, from a dispatch goroutine; retained payloads are
// replayed on subscribe.
type loopback struct {
	mu       sync.Mutex
	handlers map[string][]func(string)
	retained map[string]string
	queue    chan [2]string
}

func newLoopback(t *testing.T) *loopback {
	b := &loopback{
		handlers: map[string][]func(string){},
		retained: map[string]string{},
		queue:    make(chan [2]string, 64),
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for m := range b.queue {
			b.dispatch(m[0], m[1])
		}
	}()
	t.Cleanup(func() {
		close(b.queue)
		<-done
	})
	return b
}

func (b *loopback) Subscribe(topic string, h func(string)) error {
	b.mu.Lock()
	b.handlers[topic] = append(b.handlers[topic], h)
	p, ok := b.retained[topic]
	b.mu.Unlock()
	if ok {
		h(p)
	}
	return nil
}

func (b *loopback) Publish(topic, payload string) error {
	return b.enqueue(topic, payload, false)
}

func (b *loopback) PublishRetained(topic, payload string) error {
	return b.enqueue(topic, payload, true)
}

func (b *loopback) enqueue(topic, payload string, retain bool) error {
	if retain {
		b.mu.Lock()
		b.retained[topic] = payload
		b.mu.Unlock()
	}
	b.queue <- [2]string{topic, payload}
	return nil
}

func (b *loopback) dispatch(topic, payload string) {
	b.mu.Lock()
	hs := slices.Clone(b.handlers[topic])
	b.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}

func TestHeaterDrivesSimulator(t *testing.T) {
	broker := newLoopback(t)

	sim, err := New(testConfig(), broker, nil)
	require.NoError(t, err)
	require.NoError(t, sim.Start())

	feed, err := sensor.New(sensor.Config{Topic: sensorTopic, InitialWait: time.Second}, broker, nil)
	require.NoError(t, err)
	require.NoError(t, feed.Start())

	h, err := heater.New(heater.Config{
		Name:          "Redwire Heater",
		SetpointTopic: spTopic,
		PowerTopic:    powerTopic,
		MinTemp:       10,
		MaxTemp:       30,
	}, broker)
	require.NoError(t, err)
	require.NoError(t, h.Start(t.Context(), broker, feed))

	// retained device state reaches the heater on subscribe
	snap := h.Get()
	require.NotNil(t, snap.TargetTemperature)
	assert.Equal(t, 20, *snap.TargetTemperature)
	assert.False(t, snap.PowerOn)
	require.NotNil(t, snap.AmbientTemperature)
	assert.Equal(t, 18.5, *snap.AmbientTemperature)
	assert.True(t, snap.Available)

	h.SetTemperature(24)
	h.TurnOn()

	require.Eventually(t, func() bool {
		st := sim.State()
		return st.Setpoint != nil && *st.Setpoint == 24 && st.PowerOn
	}, 2*time.Second, 5*time.Millisecond)

	sim.publishAmbient(sim.Step(time.Second))
	assert.True(t, sim.State().Heating)
	require.Eventually(t, func() bool {
		a := h.Get().AmbientTemperature
		return a != nil && *a > 18.5
	}, 2*time.Second, 5*time.Millisecond)

	s := h.Get()
	require.NotNil(t, s.TargetTemperature)
	assert.Equal(t, 24, *s.TargetTemperature)
	assert.True(t, s.PowerOn)
}
