// utils/firebase.go
package utils

import (
	"context"
	"errors"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// ErrMissingFirebaseCredentials is returned when neither an inline key nor a key file is configured.
var ErrMissingFirebaseCredentials = errors.New("firebase: no service account credentials configured")

// FirebaseClients bundles the Firebase services the server uses.
type FirebaseClients struct {
	App       *firebase.App
	Firestore *firestore.Client
	Messaging *messaging.Client
}

// FirebaseCredentials selects the service account source.
// AdminKey is the service account JSON itself; CredentialsFile is a path to it.
type FirebaseCredentials struct {
	AdminKey        string
	CredentialsFile string
	ProjectID       string
}

func (c FirebaseCredentials) clientOption() (option.ClientOption, error) {
	switch {
	case c.AdminKey != "":
		return option.WithCredentialsJSON([]byte(c.AdminKey)), nil
	case c.CredentialsFile != "":
		if _, err := os.Stat(c.CredentialsFile); err != nil {
			return nil, fmt.Errorf("firebase: credentials file: %w", err)
		}
		return option.WithCredentialsFile(c.CredentialsFile), nil
	default:
		return nil, ErrMissingFirebaseCredentials
	}
}

// FirebaseInit initializes the Firebase App with Firestore and Messaging clients.
// Missing or unusable credentials are returned as an error; the caller treats them as fatal.
func FirebaseInit(ctx context.Context, creds FirebaseCredentials) (*FirebaseClients, error) {
	opt, err := creds.clientOption()
	if err != nil {
		return nil, err
	}

	var cfg *firebase.Config
	if creds.ProjectID != "" {
		cfg = &firebase.Config{ProjectID: creds.ProjectID}
	}

	app, err := firebase.NewApp(ctx, cfg, opt)
	if err != nil {
		return nil, fmt.Errorf("firebase: error initializing app: %w", err)
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase: error getting Firestore client: %w", err)
	}

	msg, err := app.Messaging(ctx)
	if err != nil {
		fs.Close()
		return nil, fmt.Errorf("firebase: error getting Messaging client: %w", err)
	}

	return &FirebaseClients{App: app, Firestore: fs, Messaging: msg}, nil
}

// Close releases the Firestore connection.
func (f *FirebaseClients) Close() error {
	if f == nil || f.Firestore == nil {
		return nil
	}
	return f.Firestore.Close()
}
