package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	notificationRepo "sevaboard/database/repository/notification"
	"sevaboard/models"
	"sevaboard/services/notification"

	"go.uber.org/zap"
)

// ErrSweepInProgress is returned when a sweep is requested while another is running.
var ErrSweepInProgress = errors.New("sweep already in progress")

// SweepResult summarises one sweep.
type SweepResult struct {
	Due           int           `json:"due"`
	Published     int           `json:"published"`
	PublishFailed int           `json:"publishFailed"`
	Marked        int           `json:"marked"`
	AlreadySent   int           `json:"alreadySent"`
	MarkFailed    int           `json:"markFailed"`
	StartedAt     time.Time     `json:"startedAt"`
	Duration      time.Duration `json:"duration"`
}

// Sweeper finds due notifications, publishes them and marks them sent.
//
// Delivery is a two-step protocol: publish, then persist sent=true. The two
// steps are not atomic. If the write fails after a publish the record stays
// due and is published again on the next sweep, so clients may see a
// notification more than once but never zero times.
type Sweeper struct {
	repo      notificationRepo.NotificationRepository
	publisher notification.Publisher
	now       func() time.Time
	log       *zap.Logger

	// held for the whole sweep; TryLock makes overlapping calls skip
	mu sync.Mutex
}

// SweeperOption customises a Sweeper.
type SweeperOption func(*Sweeper)

// WithClock overrides the time source used to decide eligibility.
func WithClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper wires a sweeper to its store and publisher.
func NewSweeper(repo notificationRepo.NotificationRepository, publisher notification.Publisher, log *zap.Logger, opts ...SweeperOption) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Sweeper{
		repo:      repo,
		publisher: publisher,
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep runs one query-publish-mark cycle. It returns ErrSweepInProgress
// without touching the store if another sweep holds the guard. A failed
// query is returned as an error; per-record failures are only counted and
// logged so one bad record never blocks the rest.
func (s *Sweeper) Sweep(ctx context.Context) (res SweepResult, err error) {
	if !s.mu.TryLock() {
		return SweepResult{}, ErrSweepInProgress
	}
	defer s.mu.Unlock()

	started := time.Now()
	defer func() { res.Duration = time.Since(started) }()

	now := s.now()
	res.StartedAt = now

	due, err := s.repo.FindDue(ctx, now)
	if err != nil {
		s.log.Error("sweep: querying due notifications failed", zap.Error(err))
		return res, fmt.Errorf("find due notifications: %w", err)
	}

	for _, n := range due {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.log.Warn("sweep: interrupted, remaining notifications stay due",
				zap.Int("remaining", len(due)-res.Due), zap.Error(ctxErr))
			return res, ctxErr
		}
		if !n.IsDue(now) {
			continue
		}
		res.Due++
		s.deliver(ctx, n, &res)
	}
	return res, nil
}

func (s *Sweeper) deliver(ctx context.Context, n models.Notification, res *SweepResult) {
	log := s.log.With(zap.String("id", n.ID), zap.Time("scheduledTime", n.ScheduledTime))

	// A broadcast has no acknowledgement, so a failed publish still counts as delivered.
	if err := s.publisher.Publish(ctx, n); err != nil {
		res.PublishFailed++
		log.Warn("sweep: publish failed", zap.Error(err))
	} else {
		res.Published++
	}

	changed, err := s.repo.MarkSent(ctx, n.ID, s.now())
	switch {
	case err != nil:
		res.MarkFailed++
		log.Error("sweep: mark sent failed, notification will be re-delivered", zap.Error(err))
	case !changed:
		res.AlreadySent++
		log.Warn("sweep: notification was already marked sent")
	default:
		res.Marked++
		log.Info("notification delivered", zap.String("message", n.Message))
	}
}
