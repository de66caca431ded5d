// Package sensor follows an external temperature sensor published on a pub/sub topic.
package sensor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Agrid-Dev/redwire/internal/heater"
)

type Config struct {
	// Topic carries the sensor state, e.g. a Home Assistant statestream topic.
	Topic string
	// JSONField extracts the value from a JSON object payload (zigbee2mqtt style).
	// Empty means the payload is the raw value.
	JSONField string
	// InitialWait bounds how long Current waits for the first (retained) message.
	InitialWait time.Duration
}

// Subscriber is the part of the transport the feed needs.
type Subscriber interface {
	Subscribe(topic string, handler func(payload string)) error
}

// Feed turns sensor topic payloads into heater readings. It caches the latest
// reading so it can answer the initial read and replay it to late subscribers.
type Feed struct {
	cfg Config
	sub Subscriber
	log *zap.SugaredLogger

	mu       sync.Mutex
	latest   heater.Reading
	seq      uint64 // readings received
	handed   uint64 // seq of the reading Current returned
	first    chan struct{}
	handlers []func(heater.Reading)

	// dmu keeps replays and live deliveries in order.
	dmu sync.Mutex
}

func New(cfg Config, sub Subscriber, log *zap.SugaredLogger) (*Feed, error) {
	if cfg.Topic == "" {
		return nil, errors.New("sensor: topic is required")
	}
	if cfg.InitialWait <= 0 {
		cfg.InitialWait = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Feed{
		cfg:   cfg,
		sub:   sub,
		log:   log,
		first: make(chan struct{}),
	}, nil
}

// Start subscribes the sensor topic. It must run before Current so a retained
// value can arrive.
func (f *Feed) Start() error {
	if err := f.sub.Subscribe(f.cfg.Topic, f.onPayload); err != nil {
		return fmt.Errorf("sensor subscribe %s: %w", f.cfg.Topic, err)
	}
	return nil
}

// Current returns the latest reading, waiting up to InitialWait for the first one.
// A sensor that never reported yields an absent reading.
func (f *Feed) Current(ctx context.Context) (heater.Reading, error) {
	timer := time.NewTimer(f.cfg.InitialWait)
	defer timer.Stop()

	select {
	case <-f.first:
	case <-timer.C:
		f.log.Warnw("no sensor value received yet", "topic", f.cfg.Topic, "waited", f.cfg.InitialWait)
		return heater.Reading{}, nil
	case <-ctx.Done():
		return heater.Reading{}, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.handed = f.seq
	return f.latest, nil
}

// Subscribe registers h for every following reading. A reading that arrived after
// the one Current returned is replayed to h first, so nothing between Current and
// Subscribe is lost and nothing is delivered twice.
func (f *Feed) Subscribe(h func(heater.Reading)) error {
	f.dmu.Lock()
	defer f.dmu.Unlock()

	f.mu.Lock()
	f.handlers = append(f.handlers, h)
	latest, missed := f.latest, f.seq > f.handed
	f.mu.Unlock()

	if missed {
		h(latest)
	}
	return nil
}

func (f *Feed) onPayload(payload string) {
	r := f.decode(payload)

	f.dmu.Lock()
	defer f.dmu.Unlock()

	f.mu.Lock()
	f.latest = r
	f.seq++
	if f.seq == 1 {
		close(f.first)
	}
	handlers := slices.Clone(f.handlers)
	f.mu.Unlock()

	for _, h := range handlers {
		h(r)
	}
}

// decode maps a payload to a reading. Empty payloads (retained message cleared) and
// the unknown/unavailable markers mean the sensor has no value.
func (f *Feed) decode(payload string) heater.Reading {
	raw := strings.TrimSpace(payload)
	if f.cfg.JSONField != "" && raw != "" {
		v, ok := f.extract(raw)
		if !ok {
			return heater.Reading{}
		}
		raw = v
	}
	if isAbsent(raw) {
		return heater.Reading{}
	}
	return heater.NewReading(raw)
}

func (f *Feed) extract(raw string) (string, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		f.log.Debugw("sensor payload is not a JSON object", "topic", f.cfg.Topic, "err", err)
		// hand the raw payload on; the heater decides whether it parses
		return raw, true
	}
	switch v := obj[f.cfg.JSONField].(type) {
	case nil:
		return "", false
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case string:
		return v, true
	default:
		return fmt.Sprint(v), true
	}
}

func isAbsent(s string) bool {
	switch strings.ToLower(s) {
	case "", "unknown", "unavailable", "none", "null":
		return true
	}
	return false
}
