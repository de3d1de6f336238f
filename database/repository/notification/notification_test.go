package notificationRepo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"sevaboard/models"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observeGlobalLogger(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

// runRepositoryContract exercises the behaviour every backend must share.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) NotificationRepository) {
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("create assigns id", func(t *testing.T) {
		repo := newRepo(t)
		n := &models.Notification{Message: "Aarti at 7pm", ScheduledTime: now}
		require.NoError(t, repo.Create(context.Background(), n))
		assert.NotEmpty(t, n.ID)
		assert.False(t, n.CreatedAt.IsZero())
	})

	t.Run("find due is inclusive and skips future and sent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		past := &models.Notification{Message: "past", ScheduledTime: now.Add(-time.Minute)}
		exact := &models.Notification{Message: "exact", ScheduledTime: now}
		future := &models.Notification{Message: "future", ScheduledTime: now.Add(time.Minute)}
		sent := &models.Notification{Message: "sent", ScheduledTime: now.Add(-time.Hour), Sent: true}
		for _, n := range []*models.Notification{past, exact, future, sent} {
			require.NoError(t, repo.Create(ctx, n))
		}

		due, err := repo.FindDue(ctx, now)
		require.NoError(t, err)

		var messages []string
		for _, n := range due {
			messages = append(messages, n.Message)
		}
		assert.ElementsMatch(t, []string{"past", "exact"}, messages)
	})

	t.Run("mark sent transitions once", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		n := &models.Notification{Message: "Kirtan", ScheduledTime: now.Add(-time.Minute)}
		require.NoError(t, repo.Create(ctx, n))

		changed, err := repo.MarkSent(ctx, n.ID, now)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = repo.MarkSent(ctx, n.ID, now)
		require.NoError(t, err)
		assert.False(t, changed)

		due, err := repo.FindDue(ctx, now)
		require.NoError(t, err)
		assert.Empty(t, due)
	})

	t.Run("mark sent unknown id", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.MarkSent(context.Background(), "does-not-exist", now)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list orders by scheduled time", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		late := &models.Notification{Message: "late", ScheduledTime: now.Add(2 * time.Hour)}
		early := &models.Notification{Message: "early", ScheduledTime: now.Add(time.Hour)}
		done := &models.Notification{Message: "done", ScheduledTime: now, Sent: true}
		for _, n := range []*models.Notification{late, early, done} {
			require.NoError(t, repo.Create(ctx, n))
		}

		pending, err := repo.List(ctx, false)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "early", pending[0].Message)
		assert.Equal(t, "late", pending[1].Message)

		all, err := repo.List(ctx, true)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "done", all[0].Message)
	})
}

func TestMemoryNotificationRepo(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) NotificationRepository {
		return NewMemoryNotificationRepo()
	})
}

func TestMemoryNotificationRepo_CancelledContext(t *testing.T) {
	repo := NewMemoryNotificationRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.FindDue(ctx, time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

// TestFirestoreNotificationRepo runs against the Firestore emulator when FIRESTORE_EMULATOR_HOST is set.
func TestFirestoreNotificationRepo(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	runRepositoryContract(t, func(t *testing.T) NotificationRepository {
		// A fresh project id isolates emulator state between subtests.
		client, err := firestore.NewClient(context.Background(), "sevaboard-test-"+uuid.New().String()[:8])
		require.NoError(t, err)
		t.Cleanup(func() { client.Close() })
		return NewFirestoreNotificationRepo(client)
	})
}

// TestMongoNotificationRepo runs against a real server when MONGO_TEST_URL is set.
func TestMongoNotificationRepo(t *testing.T) {
	url := os.Getenv("MONGO_TEST_URL")
	if url == "" {
		t.Skip("MONGO_TEST_URL not set")
	}
	runRepositoryContract(t, func(t *testing.T) NotificationRepository {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
		require.NoError(t, err)

		dbName := "sevaboard_test_" + uuid.New().String()[:8]
		repo, err := NewMongoNotificationRepo(client, dbName)
		require.NoError(t, err)

		t.Cleanup(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = client.Database(dbName).Drop(ctx)
			_ = client.Disconnect(ctx)
		})
		return repo
	})
}

func TestDecodeEach_SkipsRecordsThatFail(t *testing.T) {
	logs := observeGlobalLogger(t)

	raw := []string{"aarti", "", "kirtan"}
	out := decodeEach(raw, func(msg string) (models.Notification, string, error) {
		if msg == "" {
			return models.Notification{}, "broken", errors.New("message is not a string")
		}
		return models.Notification{ID: msg, Message: msg}, msg, nil
	})

	require.Len(t, out, 2)
	assert.Equal(t, "aarti", out[0].Message)
	assert.Equal(t, "kirtan", out[1].Message)

	entries := logs.FilterMessage("skipping undecodable notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "broken", entries[0].ContextMap()["id"])
}

func TestDecodeCursor_SkipsMalformedDocument(t *testing.T) {
	logs := observeGlobalLogger(t)
	at := time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)

	cursor, err := mongo.NewCursorFromDocuments([]interface{}{
		bson.D{{Key: "id", Value: "first"}, {Key: "message", Value: "Mangala Aarti"}, {Key: "scheduledTime", Value: at}, {Key: "sent", Value: false}},
		bson.D{{Key: "id", Value: "broken"}, {Key: "message", Value: int32(42)}, {Key: "scheduledTime", Value: at}, {Key: "sent", Value: false}},
		bson.D{{Key: "id", Value: "second"}, {Key: "message", Value: "Sandhya Aarti"}, {Key: "scheduledTime", Value: at}, {Key: "sent", Value: false}},
	}, nil, bson.DefaultRegistry)
	require.NoError(t, err)

	out, err := decodeCursor(context.Background(), cursor)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].ID)
	assert.Equal(t, "second", out[1].ID)

	entries := logs.FilterMessage("skipping undecodable notification").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "broken", entries[0].ContextMap()["id"])
}

// TestFirestoreNotificationRepo_MalformedDocument needs FIRESTORE_EMULATOR_HOST.
func TestFirestoreNotificationRepo_MalformedDocument(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	client, err := firestore.NewClient(ctx, "sevaboard-test-"+uuid.New().String()[:8])
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	repo := NewFirestoreNotificationRepo(client)

	now := time.Now().UTC()
	_, err = client.Collection(CollectionName).Doc("broken").Set(ctx, map[string]interface{}{
		"message":       42,
		"scheduledTime": now.Add(-time.Minute),
		"sent":          false,
	})
	require.NoError(t, err)
	good := &models.Notification{Message: "Mangala Aarti", ScheduledTime: now.Add(-time.Minute)}
	require.NoError(t, repo.Create(ctx, good))

	due, err := repo.FindDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, good.ID, due[0].ID)
}
