package notificationRepo

import (
	"context"
	"fmt"
	"time"

	"sevaboard/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoNotificationRepo implements NotificationRepository using MongoDB.
type MongoNotificationRepo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoNotificationRepo constructs a repository over db.notifications and ensures its indexes.
func NewMongoNotificationRepo(client *mongo.Client, dbName string) (*MongoNotificationRepo, error) {
	repo := &MongoNotificationRepo{
		client: client,
		coll:   client.Database(dbName).Collection(CollectionName),
	}
	if err := repo.ensureIndexes(); err != nil {
		return nil, err
	}
	return repo, nil
}

// ensureIndexes creates the id index and the partial index the due query runs on.
func (r *MongoNotificationRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{
			Keys:    bson.D{{Key: "scheduledTime", Value: 1}},
			Options: options.Index().SetPartialFilterExpression(bson.M{"sent": false}),
		},
	}
	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create notification indexes: %w", err)
	}
	return nil
}

func (r *MongoNotificationRepo) FindDue(ctx context.Context, now time.Time) ([]models.Notification, error) {
	filter := bson.M{
		"scheduledTime": bson.M{"$lte": now},
		"sent":          false,
	}
	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error querying due notifications: %w", err)
	}
	defer cursor.Close(ctx)

	due, err := decodeCursor(ctx, cursor)
	if err != nil {
		return nil, fmt.Errorf("error reading due notifications: %w", err)
	}
	return due, nil
}

func (r *MongoNotificationRepo) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	filter := bson.M{"id": id, "sent": false}
	update := bson.M{"$set": bson.M{"sent": true, "sentAt": at}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("error marking notification %s sent: %w", id, err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	// Nothing matched: either it was already sent or it does not exist.
	count, err := r.coll.CountDocuments(ctx, bson.M{"id": id})
	if err != nil {
		return false, fmt.Errorf("error checking notification %s: %w", id, err)
	}
	if count == 0 {
		return false, fmt.Errorf("mark sent %s: %w", id, ErrNotFound)
	}
	return false, nil
}

func (r *MongoNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if _, err := r.coll.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("error creating notification: %w", err)
	}
	return nil
}

func (r *MongoNotificationRepo) List(ctx context.Context, includeSent bool) ([]models.Notification, error) {
	filter := bson.M{}
	if !includeSent {
		filter["sent"] = false
	}
	opts := options.Find().SetSort(bson.D{{Key: "scheduledTime", Value: 1}})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing notifications: %w", err)
	}
	defer cursor.Close(ctx)

	out, err := decodeCursor(ctx, cursor)
	if err != nil {
		return nil, fmt.Errorf("error reading notifications: %w", err)
	}
	return out, nil
}

// decodeCursor decodes documents one at a time so a malformed one is skipped
// instead of failing the batch. Only cursor errors are returned.
func decodeCursor(ctx context.Context, cursor *mongo.Cursor) ([]models.Notification, error) {
	out := []models.Notification{}
	for cursor.Next(ctx) {
		var n models.Notification
		if err := cursor.Decode(&n); err != nil {
			id, _ := cursor.Current.Lookup("id").StringValueOK()
			skipUndecodable(id, err)
			continue
		}
		out = append(out, n)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MongoNotificationRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}
