package testutil

import (
	"sync"

	"github.com/Agrid-Dev/redwire/internal/heater"
)

// FakeHeaterService is a reusable fake implementing ports.HeaterService.
// Put ONLY what multiple test packages need here.
type FakeHeaterService struct {
	mu sync.Mutex
	S  heater.Snapshot

	SetTemperatureCalls []float64
	SetModeCalls        []heater.Mode

	observers map[int]func(heater.Snapshot)
	next      int
}

func NewFakeHeaterService() *FakeHeaterService {
	target := 21
	ambient := 19.5
	return &FakeHeaterService{
		S: heater.Snapshot{
			Name:               "Redwire Heater",
			TargetTemperature:  &target,
			PowerOn:            false,
			AmbientTemperature: &ambient,
			Available:          true,
			MinTemp:            10,
			MaxTemp:            30,
		},
		observers: make(map[int]func(heater.Snapshot)),
	}
}

func (f *FakeHeaterService) Get() heater.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.S
}

// SetTemperature records the call and applies the value when it is in range,
// rounding the way the real heater does.
func (f *FakeHeaterService) SetTemperature(v float64) {
	f.mu.Lock()
	f.SetTemperatureCalls = append(f.SetTemperatureCalls, v)
	r, err := heater.RoundHalfUp(v)
	if err == nil {
		err = heater.CheckRange(r, f.S.MinTemp, f.S.MaxTemp)
	}
	if err != nil {
		f.mu.Unlock()
		return
	}
	f.S.TargetTemperature = &r
	f.mu.Unlock()
	f.Emit()
}

func (f *FakeHeaterService) SetMode(m heater.Mode) {
	f.mu.Lock()
	f.SetModeCalls = append(f.SetModeCalls, m)
	if !m.Valid() {
		f.mu.Unlock()
		return
	}
	f.S.PowerOn = m == heater.ModeHeat
	f.mu.Unlock()
	f.Emit()
}

func (f *FakeHeaterService) OnChange(fn func(heater.Snapshot)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.observers[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.observers, id)
	}
}

// Observers reports how many change observers are registered.
func (f *FakeHeaterService) Observers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observers)
}

// Emit notifies every observer with the current snapshot.
func (f *FakeHeaterService) Emit() {
	f.mu.Lock()
	s := f.S
	fns := make([]func(heater.Snapshot), 0, len(f.observers))
	for _, fn := range f.observers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// LastTemperatureCall returns the last requested temperature, ok=false when none.
func (f *FakeHeaterService) LastTemperatureCall() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.SetTemperatureCalls) == 0 {
		return 0, false
	}
	return f.SetTemperatureCalls[len(f.SetTemperatureCalls)-1], true
}

// LastModeCall returns the last requested mode, ok=false when none.
func (f *FakeHeaterService) LastModeCall() (heater.Mode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.SetModeCalls) == 0 {
		return heater.ModeUnknown, false
	}
	return f.SetModeCalls[len(f.SetModeCalls)-1], true
}
