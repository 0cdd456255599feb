// Package events publishes and consumes content-change notifications over
// NATS so multiple foliod instances invalidate their caches together.
//
// The bus is optional. When events are disabled the daemon runs with a nil
// *Bus, whose methods are all safe no-ops, and cache invalidation stays
// process-local via the repository change hooks.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/foliolabs/foliod/internal/logging"
)

// subjectPrefix namespaces all foliod subjects. The collection name is the
// final token, so "content.changed.*" subscribes to everything.
const subjectPrefix = "content.changed."

// ContentChanged is the payload published on every repository write.
type ContentChanged struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id"`
	Removed    bool      `json:"removed"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Bus wraps a NATS connection for content-change fan-out.
type Bus struct {
	nc     *nats.Conn
	logger *logging.Logger
	sub    *nats.Subscription
}

// Connect dials the NATS server. Reconnection settings tolerate short broker
// outages without dropping the daemon.
func Connect(url string, logger *logging.Logger) (*Bus, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}

	logger.Info(context.Background(), "event bus connected", zap.String("url", url))
	return &Bus{nc: nc, logger: logger}, nil
}

// PublishChange publishes a content-change event. Nil bus is a no-op.
// Publish failures are logged, not returned; the write that triggered the
// event has already committed and must not be rolled back over a bus hiccup.
func (b *Bus) PublishChange(ctx context.Context, collection, id string, removed bool) {
	if b == nil {
		return
	}

	payload, err := json.Marshal(ContentChanged{
		Collection: collection,
		ID:         id,
		Removed:    removed,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		b.logger.Error(ctx, "marshaling change event", zap.Error(err))
		return
	}

	if err := b.nc.Publish(subjectPrefix+collection, payload); err != nil {
		b.logger.Warn(ctx, "publishing change event",
			zap.String("collection", collection),
			zap.Error(err),
		)
	}
}

// SubscribeChanges invokes handler for every content-change event from any
// instance, including this one. Nil bus is a no-op.
func (b *Bus) SubscribeChanges(handler func(ContentChanged)) error {
	if b == nil {
		return nil
	}

	sub, err := b.nc.Subscribe(subjectPrefix+"*", func(msg *nats.Msg) {
		var event ContentChanged
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Warn(context.Background(), "dropping malformed change event",
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
			return
		}
		handler(event)
	})
	if err != nil {
		return fmt.Errorf("subscribing to change events: %w", err)
	}
	b.sub = sub
	return nil
}

// Close drains the subscription and closes the connection. Nil bus is a
// no-op.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	b.nc.Close()
}
