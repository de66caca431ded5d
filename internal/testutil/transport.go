package testutil

import (
	"slices"
	"sync"
)

type Published struct {
	Topic    string
	Payload  string
	Retained bool
}

// FakeTransport implements ports.Transport in memory. Deliver routes a payload to
// the handler subscribed on a topic, like a broker would.
type FakeTransport struct {
	mu         sync.Mutex
	Published  []Published
	handlers   map[string][]func(string)
	PublishErr error
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{handlers: make(map[string][]func(string))}
}

func (f *FakeTransport) Publish(topic, payload string) error {
	return f.publish(topic, payload, false)
}

func (f *FakeTransport) PublishRetained(topic, payload string) error {
	return f.publish(topic, payload, true)
}

func (f *FakeTransport) publish(topic, payload string, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishErr != nil {
		return f.PublishErr
	}
	f.Published = append(f.Published, Published{Topic: topic, Payload: payload, Retained: retained})
	return nil
}

func (f *FakeTransport) Subscribe(topic string, handler func(string)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = append(f.handlers[topic], handler)
	return nil
}

func (f *FakeTransport) Deliver(topic, payload string) {
	f.mu.Lock()
	hs := slices.Clone(f.handlers[topic])
	f.mu.Unlock()
	for _, h := range hs {
		h(payload)
	}
}

func (f *FakeTransport) Subscribed(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[topic]) > 0
}

func (f *FakeTransport) Messages() []Published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Published(nil), f.Published...)
}
