package channel

import (
	"context"

	"go.uber.org/zap"
)

// Broadcaster sends an event to every subscriber reachable from this process.
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any) error
}

// Broadcast implements Broadcaster. Local fan-out cannot fail, zero subscribers included.
func (h *Hub) Broadcast(_ context.Context, event string, payload any) error {
	n := h.Publish(event, payload)
	h.log.Debug("event published", zap.String("event", event), zap.Int("queued", n))
	return nil
}
