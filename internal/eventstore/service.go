package eventstore

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-cast/internal/bus"
	"github.com/loqalabs/loqa-cast/internal/protocol"
)

// Recorder subscribes to timeline traffic on the bus and persists it. It is
// the durable observability plane; losing an event here never affects a
// client connection.
type Recorder struct {
	store  *Store
	bus    *bus.Client
	logger *slog.Logger
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRecorder(parent context.Context, store *Store, busClient *bus.Client, logger *slog.Logger) *Recorder {
	ctx, cancel := context.WithCancel(parent)
	return &Recorder{
		store:  store,
		bus:    busClient,
		logger: logger.With(slog.String("component", "timeline")),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (r *Recorder) Start() error {
	sub, err := r.bus.Conn().Subscribe(protocol.SubjectTimelinePrefix+".>", r.handle)
	if err != nil {
		return err
	}
	r.sub = sub
	return nil
}

func (r *Recorder) Close() {
	r.cancel()
	if r.sub != nil {
		_ = r.sub.Drain()
	}
}

func (r *Recorder) Healthy() bool {
	return r.sub != nil
}

func (r *Recorder) handle(msg *nats.Msg) {
	var evt protocol.TimelineEvent
	if err := json.Unmarshal(msg.Data, &evt); err != nil {
		r.logger.Warn("failed to decode timeline event", slog.String("error", err.Error()))
		return
	}
	if evt.SessionID == "" {
		return
	}
	err := r.store.AppendEvent(r.ctx, Event{
		SessionID:   evt.SessionID,
		RequestType: evt.RequestType,
		Kind:        evt.Kind,
		Detail:      evt.Detail,
		CreatedAt:   evt.Timestamp,
	})
	if err != nil {
		r.logger.Warn("failed to persist timeline event", slog.String("error", err.Error()))
	}
}
