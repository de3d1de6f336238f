package notificationRepo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sevaboard/models"

	"github.com/google/uuid"
)

// MemoryNotificationRepo keeps notifications in process memory.
// Used for local development (STORE_BACKEND=memory) and tests.
type MemoryNotificationRepo struct {
	mu      sync.Mutex
	records map[string]models.Notification
}

// NewMemoryNotificationRepo constructs an empty in-memory repository.
func NewMemoryNotificationRepo() *MemoryNotificationRepo {
	return &MemoryNotificationRepo{records: make(map[string]models.Notification)}
}

func (r *MemoryNotificationRepo) FindDue(ctx context.Context, now time.Time) ([]models.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []models.Notification
	for _, n := range r.records {
		if n.IsDue(now) {
			due = append(due, n)
		}
	}
	return due, nil
}

func (r *MemoryNotificationRepo) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.records[id]
	if !ok {
		return false, fmt.Errorf("mark sent %s: %w", id, ErrNotFound)
	}
	if n.Sent {
		return false, nil
	}
	n.Sent = true
	n.SentAt = &at
	r.records[id] = n
	return true, nil
}

func (r *MemoryNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	r.records[n.ID] = *n
	return nil
}

func (r *MemoryNotificationRepo) List(ctx context.Context, includeSent bool) ([]models.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Notification, 0, len(r.records))
	for _, n := range r.records {
		if n.Sent && !includeSent {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledTime.Before(out[j].ScheduledTime)
	})
	return out, nil
}

// Get returns a copy of a single record.
func (r *MemoryNotificationRepo) Get(id string) (models.Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.records[id]
	return n, ok
}

func (r *MemoryNotificationRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}
