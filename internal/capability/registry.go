package capability

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/loqalabs/loqa-cast/internal/bus"
	"github.com/loqalabs/loqa-cast/internal/protocol"
)

// Backend records the probed availability of one provider backend.
type Backend struct {
	Concern   string    `json:"concern"` // chat, embedding, tts
	Mode      string    `json:"mode"`
	Available bool      `json:"available"`
	Reason    string    `json:"reason,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Probe checks whether a configured backend can serve. It returns
// availability and a short reason when unavailable.
type Probe func(ctx context.Context) (bool, string)

// Registry probes configured provider backends at startup, announces the
// results on the bus, and lets the runtime fall back to mock backends when
// a configured one is unreachable.
type Registry struct {
	log   *slog.Logger
	bus   *bus.Client
	meter metric.Meter

	mu       sync.RWMutex
	backends map[string]*Backend
}

func NewRegistry(busClient *bus.Client, log *slog.Logger) *Registry {
	r := &Registry{
		log:      log.With(slog.String("component", "capability-registry")),
		bus:      busClient,
		meter:    otel.Meter("github.com/loqalabs/loqa-cast/runtime"),
		backends: make(map[string]*Backend),
	}
	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return r
}

// Register probes the backend for a concern and records the result. Mock
// backends are always available and skip the probe.
func (r *Registry) Register(ctx context.Context, concern, mode string, probe Probe) {
	backend := &Backend{
		Concern:   concern,
		Mode:      mode,
		Available: true,
		CheckedAt: time.Now().UTC(),
	}
	if mode != "mock" && probe != nil {
		available, reason := probe(ctx)
		backend.Available = available
		backend.Reason = reason
	}

	r.mu.Lock()
	r.backends[concern] = backend
	r.mu.Unlock()

	if !backend.Available {
		r.log.Warn("provider backend unavailable",
			slog.String("concern", concern),
			slog.String("mode", mode),
			slog.String("reason", backend.Reason))
	}
	r.announce(backend)
}

// Resolve returns the mode to actually run for a concern: the configured
// mode when its backend probed healthy, otherwise mock.
func (r *Registry) Resolve(concern, configured string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backend, ok := r.backends[concern]
	if !ok || backend.Available {
		return configured
	}
	return "mock"
}

// Snapshot returns the probed backends.
func (r *Registry) Snapshot() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Backend, 0, len(r.backends))
	for _, backend := range r.backends {
		result = append(result, *backend)
	}
	return result
}

// Healthy reports whether every registered backend probed available.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, backend := range r.backends {
		if !backend.Available {
			return false
		}
	}
	return true
}

func (r *Registry) announce(backend *Backend) {
	if r.bus == nil {
		return
	}
	payload, err := json.Marshal(backend)
	if err != nil {
		return
	}
	if err := r.bus.Publish(protocol.SubjectCapabilityAnnounce, payload); err != nil {
		r.log.Warn("failed to announce backend", slog.String("error", err.Error()))
	}
}

func (r *Registry) initMetrics() error {
	if r.meter == nil {
		return nil
	}
	gauge, err := r.meter.Int64ObservableGauge("cast.backends.available",
		metric.WithDescription("Number of provider backends that probed available"))
	if err != nil {
		return err
	}
	total, err := r.meter.Int64ObservableGauge("cast.backends.total",
		metric.WithDescription("Number of registered provider backends"))
	if err != nil {
		return err
	}
	_, err = r.meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		available, registered := r.snapshotCounts()
		obs.ObserveInt64(gauge, available)
		obs.ObserveInt64(total, registered)
		return nil
	}, gauge, total)
	return err
}

func (r *Registry) snapshotCounts() (int64, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var available, total int64
	for _, backend := range r.backends {
		total++
		if backend.Available {
			available++
		}
	}
	return available, total
}
