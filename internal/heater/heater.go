package heater

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Publisher sends a command payload to a topic. Publish must not wait for the
// device and must not deliver back into the heater on the calling goroutine;
// a returned error means the transport refused the message outright.
type Publisher interface {
	Publish(topic, payload string) error
}

// Subscriber routes every payload received on topic to handler.
type Subscriber interface {
	Subscribe(topic string, handler func(payload string)) error
}

// SensorFeed is the external temperature sensor the heater reads its ambient value from.
type SensorFeed interface {
	Current(ctx context.Context) (Reading, error)
	Subscribe(handler func(Reading)) error
}

// Config is the static binding of one heater. It is validated before New is called;
// New only re-checks what would break the state invariants.
type Config struct {
	Name          string
	SetpointTopic string
	PowerTopic    string
	MinTemp       int
	MaxTemp       int
}

// state is the single mutable record of the device.
type state struct {
	target    *int
	powerOn   bool
	ambient   *float64
	available bool
}

type Heater struct {
	cfg Config
	pub Publisher
	log *zap.SugaredLogger

	// wmu serializes writers and the observers they notify; mu guards st for readers.
	wmu sync.Mutex
	mu  sync.RWMutex
	st  state

	obsMu     sync.Mutex
	observers map[int]func(Snapshot)
	nextObs   int

	onReject func(Channel, error)
}

type Option func(*Heater)

// WithLogger sets the logger used for dropped messages and transport failures.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(h *Heater) {
		if l != nil {
			h.log = l
		}
	}
}

// WithRejectHook is called for every dropped message or rejected request.
func WithRejectHook(fn func(Channel, error)) Option {
	return func(h *Heater) { h.onReject = fn }
}

// WithUnsetTarget leaves the target temperature absent until the first setpoint
// is received or the heater is switched on.
func WithUnsetTarget() Option {
	return func(h *Heater) { h.st.target = nil }
}

func New(cfg Config, pub Publisher, opts ...Option) (*Heater, error) {
	if cfg.MinTemp > cfg.MaxTemp {
		return nil, ErrInvalidBounds
	}
	if cfg.SetpointTopic == "" || cfg.PowerTopic == "" {
		return nil, ErrMissingTopic
	}
	if pub == nil {
		return nil, fmt.Errorf("heater: publisher is required")
	}
	min := cfg.MinTemp
	h := &Heater{
		cfg:       cfg,
		pub:       pub,
		log:       zap.NewNop().Sugar(),
		st:        state{target: &min},
		observers: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Heater) Get() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLocked()
}

func (h *Heater) snapshotLocked() Snapshot {
	s := Snapshot{
		Name:      h.cfg.Name,
		PowerOn:   h.st.powerOn,
		Available: h.st.available,
		MinTemp:   h.cfg.MinTemp,
		MaxTemp:   h.cfg.MaxTemp,
	}
	if h.st.target != nil {
		v := *h.st.target
		s.TargetTemperature = &v
	}
	if h.st.ambient != nil {
		v := *h.st.ambient
		s.AmbientTemperature = &v
	}
	return s
}

// OnChange registers fn to be called with the new snapshot after every mutation.
// Observers run one at a time in mutation order and must not mutate the heater.
func (h *Heater) OnChange(fn func(Snapshot)) (remove func()) {
	h.obsMu.Lock()
	id := h.nextObs
	h.nextObs++
	h.observers[id] = fn
	h.obsMu.Unlock()

	return func() {
		h.obsMu.Lock()
		delete(h.observers, id)
		h.obsMu.Unlock()
	}
}

// update applies fn to the state and notifies observers, all under the writer lock.
func (h *Heater) update(fn func(st *state)) {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	h.applyLocked(fn)
}

// updateAfter runs send and then fn under one writer lock, so the order of
// commands on the wire is the order their optimistic writes are applied.
func (h *Heater) updateAfter(send func(), fn func(st *state)) {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	send()
	h.applyLocked(fn)
}

// applyLocked requires wmu.
func (h *Heater) applyLocked(fn func(st *state)) {
	h.mu.Lock()
	fn(&h.st)
	snap := h.snapshotLocked()
	h.mu.Unlock()

	h.notify(snap)
}

func (h *Heater) notify(s Snapshot) {
	h.obsMu.Lock()
	fns := make([]func(Snapshot), 0, len(h.observers))
	// registration order
	for i := 0; i < h.nextObs; i++ {
		if fn, ok := h.observers[i]; ok {
			fns = append(fns, fn)
		}
	}
	h.obsMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

func (h *Heater) reject(ch Channel, err error) {
	if h.onReject != nil {
		h.onReject(ch, err)
	}
}

// ensureTarget keeps "on" from ever being observed without a setpoint.
func (h *Heater) ensureTarget(st *state) {
	if st.powerOn && st.target == nil {
		min := h.cfg.MinTemp
		st.target = &min
	}
}

// Start subscribes the setpoint and power topics and attaches the temperature sensor.
func (h *Heater) Start(ctx context.Context, sub Subscriber, feed SensorFeed) error {
	if err := sub.Subscribe(h.cfg.SetpointTopic, h.HandleSetpointMessage); err != nil {
		return fmt.Errorf("subscribe %s: %w", h.cfg.SetpointTopic, err)
	}
	if err := sub.Subscribe(h.cfg.PowerTopic, h.HandlePowerMessage); err != nil {
		return fmt.Errorf("subscribe %s: %w", h.cfg.PowerTopic, err)
	}
	if feed == nil {
		return nil
	}
	return h.AttachSensor(ctx, feed)
}
