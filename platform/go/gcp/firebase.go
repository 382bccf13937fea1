package gcp

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// FirebaseConfig selects the credentials used for the Firebase app. An empty
// CredentialsFile falls back to application default credentials.
type FirebaseConfig struct {
	CredentialsFile string
	ProjectID       string
}

func (c FirebaseConfig) options() []option.ClientOption {
	if c.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(c.CredentialsFile)}
}

// NewFirebaseAuth initializes the Firebase app and returns its Auth client.
func NewFirebaseAuth(ctx context.Context, cfg FirebaseConfig) (*firebaseauth.Client, error) {
	var appCfg *firebase.Config
	if cfg.ProjectID != "" {
		appCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, appCfg, cfg.options()...)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialize firebase auth: %w", err)
	}
	return client, nil
}
