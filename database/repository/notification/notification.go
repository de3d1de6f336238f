package notificationRepo

import (
	"context"
	"errors"
	"time"

	"sevaboard/models"

	"go.uber.org/zap"
)

// CollectionName is the collection (or Mongo collection) holding notification records.
const CollectionName = "notifications"

// ErrNotFound is returned when a notification id does not exist.
var ErrNotFound = errors.New("notification not found")

// NotificationRepository defines the store contract the sweeper and admin API depend on.
type NotificationRepository interface {
	// FindDue returns every record with scheduledTime <= now and sent == false.
	// The result is unordered. Records that cannot be decoded are logged and
	// left out; they never fail the whole query.
	FindDue(ctx context.Context, now time.Time) ([]models.Notification, error)
	// MarkSent sets sent=true on the record, but only if it is still unsent.
	// It reports whether this call performed the transition.
	MarkSent(ctx context.Context, id string, at time.Time) (bool, error)
	// Create inserts a new record and assigns its ID.
	Create(ctx context.Context, n *models.Notification) error
	// List returns records ordered by scheduled time.
	List(ctx context.Context, includeSent bool) ([]models.Notification, error)
	// Ping checks connectivity to the backing store.
	Ping(ctx context.Context) error
}

// decodeEach decodes every item and drops the ones that fail, logging each.
// decode returns the record, and its id even on failure.
func decodeEach[T any](items []T, decode func(T) (models.Notification, string, error)) []models.Notification {
	out := make([]models.Notification, 0, len(items))
	for _, item := range items {
		n, id, err := decode(item)
		if err != nil {
			skipUndecodable(id, err)
			continue
		}
		out = append(out, n)
	}
	return out
}

func skipUndecodable(id string, err error) {
	zap.L().Warn("skipping undecodable notification",
		zap.String("collection", CollectionName),
		zap.String("id", id),
		zap.Error(err),
	)
}
