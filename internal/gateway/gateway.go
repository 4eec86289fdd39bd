package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/loqalabs/loqa-cast/internal/protocol"
	"github.com/loqalabs/loqa-cast/internal/session"
)

// Handler owns the websocket endpoint. Each connection gets its own session,
// a read pump, and a serial dispatch loop: the next envelope is not handled
// until the previous request's full event sequence has been written, which
// is what guarantees ordered delivery and a single in-flight request per
// connection. The read pump keeps reading while a request runs so a peer
// close cancels the request context mid-generation.
type Handler struct {
	manager  *session.Manager
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewHandler(manager *session.Manager, log *slog.Logger) *Handler {
	return &Handler{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log.With(slog.String("component", "gateway")),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	sess := h.manager.NewSession()
	// The request context is dead once the connection is hijacked, so the
	// lifecycle context belongs to the read pump: it is cancelled the moment
	// the peer goes away, which stops in-flight provider calls.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer conn.Close()

	h.log.Info("client connected", slog.String("session_id", sess.ID))
	defer h.log.Info("client disconnected", slog.String("session_id", sess.ID))

	frames := make(chan []byte)
	go func() {
		defer cancel()
		defer close(frames)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case frames <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	emit := func(event any) error {
		return conn.WriteJSON(event)
	}

	for data := range frames {
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			if writeErr := emit(protocol.ErrorEvent{Error: "invalid request payload"}); writeErr != nil {
				return
			}
			continue
		}

		if err := h.manager.Dispatch(ctx, sess, env, emit); err != nil {
			// Dispatch only errors when writing to the client failed.
			h.log.Warn("connection write failed",
				slog.String("session_id", sess.ID),
				slog.String("error", err.Error()))
			return
		}
	}
}
