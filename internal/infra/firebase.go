// README: Firebase Admin SDK initialisation for the Realtime Database client.
package infra

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"google.golang.org/api/option"
)

type FirebaseOptions struct {
	ProjectID   string
	DatabaseURL string
	// CredentialsFile is a service-account JSON path; empty falls back to
	// application-default credentials / GOOGLE_APPLICATION_CREDENTIALS.
	CredentialsFile string
}

// NewFirebaseDB creates an RTDB client bound to opts.DatabaseURL.
func NewFirebaseDB(ctx context.Context, opts FirebaseOptions) (*db.Client, error) {
	if opts.DatabaseURL == "" {
		return nil, fmt.Errorf("firebase: database url is required")
	}
	clientOpts := []option.ClientOption{}
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:   opts.ProjectID,
		DatabaseURL: opts.DatabaseURL,
	}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Database: %w", err)
	}
	return client, nil
}
