package httpctrl

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Agrid-Dev/redwire/internal/heater"
	"github.com/Agrid-Dev/redwire/internal/ports"
)

type Server struct {
	svc      ports.HeaterService
	srv      *http.Server
	deviceID string
	log      *zap.SugaredLogger
	metrics  http.Handler
}

type Option func(*Server)

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns a runnable server.
func New(svc ports.HeaterService, addr string, deviceID string, opts ...Option) *Server {
	s := &Server{svc: svc, deviceID: deviceID, log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()

	// Read
	mux.HandleFunc("GET /v1", s.handleGet)
	mux.HandleFunc("GET /v1/ws", s.handleWS)

	// Write
	mux.HandleFunc("POST /v1/temperature", s.handlePostTemperature)
	mux.HandleFunc("POST /v1/mode", s.handlePostMode)
	mux.HandleFunc("POST /v1/turn_on", s.handleTurn(heater.ModeHeat))
	mux.HandleFunc("POST /v1/turn_off", s.handleTurn(heater.ModeOff))

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// ---- DTOs ----

type snapshotDTO struct {
	DeviceID              string   `json:"device_id"`
	Name                  string   `json:"name"`
	Available             bool     `json:"available"`
	HVACMode              string   `json:"hvac_mode"`
	HVACModes             []string `json:"hvac_modes"`
	TargetTemperature     *int     `json:"target_temperature"`
	TargetTemperatureStep int      `json:"target_temperature_step"`
	MinTemp               int      `json:"min_temp"`
	MaxTemp               int      `json:"max_temp"`
	CurrentTemperature    *float64 `json:"current_temperature"`
	Precision             float64  `json:"precision"`
	TemperatureUnit       string   `json:"temperature_unit"`
}

func toDTO(s heater.Snapshot) snapshotDTO {
	modes := make([]string, len(heater.Modes))
	for i, m := range heater.Modes {
		modes[i] = m.String()
	}
	return snapshotDTO{
		Name:                  s.Name,
		Available:             s.Available,
		HVACMode:              s.Mode().String(),
		HVACModes:             modes,
		TargetTemperature:     s.TargetTemperature,
		TargetTemperatureStep: 1,
		MinTemp:               s.MinTemp,
		MaxTemp:               s.MaxTemp,
		CurrentTemperature:    s.AmbientTemperature,
		Precision:             0.1,
		TemperatureUnit:       "°C",
	}
}

func (s *Server) dto(snap heater.Snapshot) snapshotDTO {
	dto := toDTO(snap)
	dto.DeviceID = s.deviceID
	return dto
}

// ---- Handlers ----

func (s *Server) handleGet(w http.ResponseWriter, _ *http.Request) {
	s.respondSnapshot(w)
}

func (s *Server) handlePostTemperature(w http.ResponseWriter, r *http.Request) {
	// body: {"value": 21.5}
	postValue(s, w, r, func(v float64) error {
		s.svc.SetTemperature(v)
		return nil
	})
}

func (s *Server) handlePostMode(w http.ResponseWriter, r *http.Request) {
	// body: {"value": "heat"}
	postValue(s, w, r, func(v string) error {
		m, err := heater.ParseMode(v)
		if err != nil {
			return err
		}
		s.svc.SetMode(m)
		return nil
	})
}

func (s *Server) handleTurn(m heater.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		s.svc.SetMode(m)
		s.respondSnapshot(w)
	}
}

// ---- generic helpers ----
func (s *Server) respondSnapshot(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, s.dto(s.svc.Get()))
}

func postValue[T any](s *Server, w http.ResponseWriter, r *http.Request, apply func(T) error) {
	dec := json.NewDecoder(r.Body)
	var req struct {
		Value *T `json:"value"`
	}
	if err := dec.Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Value == nil {
		writeErr(w, http.StatusBadRequest, "missing field 'value'")
		return
	}

	if err := apply(*req.Value); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	s.respondSnapshot(w)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
