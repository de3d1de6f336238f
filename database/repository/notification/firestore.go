package notificationRepo

import (
	"context"
	"fmt"
	"time"

	"sevaboard/models"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreNotificationRepo implements NotificationRepository on Cloud Firestore.
// The due query needs a composite index on (sent, scheduledTime).
type FirestoreNotificationRepo struct {
	client *firestore.Client
	coll   *firestore.CollectionRef
}

// NewFirestoreNotificationRepo constructs a repository over the notifications collection.
func NewFirestoreNotificationRepo(client *firestore.Client) *FirestoreNotificationRepo {
	return &FirestoreNotificationRepo{
		client: client,
		coll:   client.Collection(CollectionName),
	}
}

func (r *FirestoreNotificationRepo) FindDue(ctx context.Context, now time.Time) ([]models.Notification, error) {
	docs, err := r.coll.
		Where("scheduledTime", "<=", now).
		Where("sent", "==", false).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("error querying due notifications: %w", err)
	}
	return decodeSnapshots(docs), nil
}

// MarkSent runs in a transaction so the sent flag is only flipped from false.
func (r *FirestoreNotificationRepo) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	ref := r.coll.Doc(id)
	var changed bool

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		changed = false
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return fmt.Errorf("mark sent %s: %w", id, ErrNotFound)
			}
			return err
		}
		sent, err := snap.DataAt("sent")
		if err == nil {
			if b, ok := sent.(bool); ok && b {
				return nil
			}
		}
		changed = true
		return tx.Update(ref, []firestore.Update{
			{Path: "sent", Value: true},
			{Path: "sentAt", Value: at},
		})
	})
	if err != nil {
		return false, fmt.Errorf("error marking notification %s sent: %w", id, err)
	}
	return changed, nil
}

func (r *FirestoreNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	ref := r.coll.NewDoc()
	if n.ID != "" {
		ref = r.coll.Doc(n.ID)
	}
	if _, err := ref.Create(ctx, n); err != nil {
		return fmt.Errorf("error creating notification: %w", err)
	}
	n.ID = ref.ID
	return nil
}

func (r *FirestoreNotificationRepo) List(ctx context.Context, includeSent bool) ([]models.Notification, error) {
	q := r.coll.OrderBy("scheduledTime", firestore.Asc)
	if !includeSent {
		q = r.coll.Where("sent", "==", false).OrderBy("scheduledTime", firestore.Asc)
	}
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("error listing notifications: %w", err)
	}
	return decodeSnapshots(docs), nil
}

// Ping performs a single-document read, Firestore has no dedicated health call.
func (r *FirestoreNotificationRepo) Ping(ctx context.Context) error {
	if _, err := r.coll.Limit(1).Documents(ctx).GetAll(); err != nil {
		return fmt.Errorf("firestore ping: %w", err)
	}
	return nil
}

func decodeSnapshots(docs []*firestore.DocumentSnapshot) []models.Notification {
	return decodeEach(docs, func(doc *firestore.DocumentSnapshot) (models.Notification, string, error) {
		var n models.Notification
		if err := doc.DataTo(&n); err != nil {
			return n, doc.Ref.ID, err
		}
		n.ID = doc.Ref.ID
		return n, n.ID, nil
	})
}
