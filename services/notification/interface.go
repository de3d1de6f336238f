package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	notificationRepo "sevaboard/database/repository/notification"
	"sevaboard/models"
	"sevaboard/services/channel"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

// MaxMessageLength bounds the text of a scheduled notification, in characters.
const MaxMessageLength = 500

// ErrInvalidNotification is returned when a schedule request is rejected.
var ErrInvalidNotification = errors.New("invalid notification")

// Publisher delivers one due notification to every reachable client.
type Publisher interface {
	Publish(ctx context.Context, n models.Notification) error
}

// NotificationService defines scheduling and delivery of broadcast notifications.
type NotificationService interface {
	Publisher
	Schedule(ctx context.Context, message string, at time.Time) (*models.Notification, error)
	List(ctx context.Context, includeSent bool) ([]models.Notification, error)
}

// TopicSender sends an FCM message. *messaging.Client satisfies it.
type TopicSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// DefaultNotificationService is the production implementation.
type DefaultNotificationService struct {
	repo        notificationRepo.NotificationRepository
	broadcaster channel.Broadcaster
	fcm         TopicSender
	fcmTopic    string
	log         *zap.Logger
}

// Option customises a DefaultNotificationService.
type Option func(*DefaultNotificationService)

// WithFCMTopic additionally pushes every notification to an FCM topic.
func WithFCMTopic(sender TopicSender, topic string) Option {
	return func(s *DefaultNotificationService) {
		if sender != nil && topic != "" {
			s.fcm = sender
			s.fcmTopic = topic
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *DefaultNotificationService) {
		if log != nil {
			s.log = log
		}
	}
}

func NewDefaultNotificationService(
	repo notificationRepo.NotificationRepository,
	broadcaster channel.Broadcaster,
	opts ...Option,
) (*DefaultNotificationService, error) {
	if repo == nil || broadcaster == nil {
		return nil, fmt.Errorf("notification service initialization error: repository or broadcaster is nil")
	}
	s := &DefaultNotificationService{
		repo:        repo,
		broadcaster: broadcaster,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Publish broadcasts the notification payload on the socket channel and, if
// configured, to the FCM topic. Each sink is attempted; their errors are joined.
func (s *DefaultNotificationService) Publish(ctx context.Context, n models.Notification) error {
	var errs []error

	if err := s.broadcaster.Broadcast(ctx, models.NotificationEvent, n.Payload()); err != nil {
		errs = append(errs, fmt.Errorf("broadcast %s: %w", n.ID, err))
	}

	if s.fcm != nil {
		if err := s.sendTopic(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *DefaultNotificationService) sendTopic(ctx context.Context, n models.Notification) error {
	msg := &messaging.Message{
		Topic: s.fcmTopic,
		Notification: &messaging.Notification{
			Title: "Seva Board",
			Body:  n.Message,
		},
		Data: map[string]string{
			"type":           models.NotificationEvent,
			"notificationId": n.ID,
			"scheduledTime":  n.ScheduledTime.UTC().Format(time.RFC3339),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}

	id, err := s.fcm.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("fcm topic %s: %w", s.fcmTopic, err)
	}
	s.log.Debug("fcm topic message sent", zap.String("topic", s.fcmTopic), zap.String("messageId", id))
	return nil
}

// Schedule validates and stores a new unsent notification.
func (s *DefaultNotificationService) Schedule(ctx context.Context, message string, at time.Time) (*models.Notification, error) {
	message = strings.TrimSpace(message)
	switch {
	case message == "":
		return nil, fmt.Errorf("%w: message is required", ErrInvalidNotification)
	case utf8.RuneCountInString(message) > MaxMessageLength:
		return nil, fmt.Errorf("%w: message longer than %d characters", ErrInvalidNotification, MaxMessageLength)
	case at.IsZero():
		return nil, fmt.Errorf("%w: scheduledTime is required", ErrInvalidNotification)
	}

	n := &models.Notification{
		Message:       message,
		ScheduledTime: at.UTC(),
		Sent:          false,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("schedule notification: %w", err)
	}
	s.log.Info("notification scheduled", zap.String("id", n.ID), zap.Time("scheduledTime", n.ScheduledTime))
	return n, nil
}

// List returns stored notifications, pending only unless includeSent is set.
func (s *DefaultNotificationService) List(ctx context.Context, includeSent bool) ([]models.Notification, error) {
	out, err := s.repo.List(ctx, includeSent)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}
