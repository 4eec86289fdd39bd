package natsserver

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/loqalabs/loqa-cast/internal/config"
)

const readyTimeout = 5 * time.Second

// EmbeddedServer runs a NATS server inside the daemon process so a
// single-binary deployment needs no external broker. JetStream stays off:
// the daemon only publishes fire-and-forget observability traffic.
type EmbeddedServer struct {
	ns  *server.Server
	log *slog.Logger
}

// Start boots the embedded server and waits until it accepts connections.
// Returns (nil, nil) when the config asks for an external broker instead.
func Start(cfg config.BusConfig, log *slog.Logger) (*EmbeddedServer, error) {
	if !cfg.Embedded {
		return nil, nil
	}
	log = log.With(slog.String("component", "embedded-bus"))

	ns, err := server.NewServer(&server.Options{
		ServerName: "loqa-cast-bus",
		Host:       "0.0.0.0",
		Port:       cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(readyTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready after %s", readyTimeout)
	}

	log.Info("embedded NATS server started", slog.Int("port", cfg.Port))
	return &EmbeddedServer{ns: ns, log: log}, nil
}

// Shutdown stops the server and waits for it to exit. Safe on nil.
func (e *EmbeddedServer) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	e.log.Info("shutting down embedded NATS server")
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
