package models

import "time"

// NotificationEvent is the event name clients listen for on the socket.
const NotificationEvent = "notification"

// Notification is a scheduled broadcast stored in the "notifications" collection.
// It becomes due once ScheduledTime has passed and stays due until Sent is set.
type Notification struct {
	ID            string     `json:"id" bson:"id" firestore:"-"`
	Message       string     `json:"message" bson:"message" firestore:"message"`
	ScheduledTime time.Time  `json:"scheduledTime" bson:"scheduledTime" firestore:"scheduledTime"`
	Sent          bool       `json:"sent" bson:"sent" firestore:"sent"`
	SentAt        *time.Time `json:"sentAt,omitempty" bson:"sentAt,omitempty" firestore:"sentAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
}

// IsDue reports whether n should be delivered at now. The comparison is inclusive.
func (n Notification) IsDue(now time.Time) bool {
	return !n.Sent && !n.ScheduledTime.After(now)
}

// Payload returns what subscribers receive for n.
func (n Notification) Payload() NotificationPayload {
	return NotificationPayload{
		Message:       n.Message,
		ScheduledTime: n.ScheduledTime,
	}
}

// NotificationPayload is the body of a "notification" event.
type NotificationPayload struct {
	Message       string    `json:"message"`
	ScheduledTime time.Time `json:"scheduledTime"`
}

// ScheduleNotificationRequest is the admin request body for a new notification.
type ScheduleNotificationRequest struct {
	Message       string    `json:"message" binding:"required"`
	ScheduledTime time.Time `json:"scheduledTime" binding:"required"`
}
