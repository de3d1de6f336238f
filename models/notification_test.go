package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotificationIsDue(t *testing.T) {
	now := time.Date(2025, 3, 14, 19, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		n    Notification
		want bool
	}{
		{"past and unsent", Notification{ScheduledTime: now.Add(-time.Minute)}, true},
		{"exactly now", Notification{ScheduledTime: now}, true},
		{"far in the past", Notification{ScheduledTime: now.AddDate(-1, 0, 0)}, true},
		{"future", Notification{ScheduledTime: now.Add(time.Second)}, false},
		{"already sent", Notification{ScheduledTime: now.Add(-time.Minute), Sent: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.n.IsDue(now))
		})
	}
}

func TestNotificationPayload(t *testing.T) {
	at := time.Date(2025, 3, 14, 18, 59, 0, 0, time.UTC)
	n := Notification{ID: "abc", Message: "Aarti at 7pm", ScheduledTime: at}

	assert.Equal(t, NotificationPayload{Message: "Aarti at 7pm", ScheduledTime: at}, n.Payload())
}
