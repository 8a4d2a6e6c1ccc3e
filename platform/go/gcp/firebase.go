package gcp

import (
	"context"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

const (
	// CredentialsPathEnv points at a service account JSON file. When unset the
	// application default credentials are used.
	CredentialsPathEnv = "FIREBASE_CONFIG"
	// ProjectEnv overrides the Firebase project id.
	ProjectEnv = "GCLOUD_PROJECT"
)

// Options configures the Firebase app.
type Options struct {
	CredentialsFile string
	ProjectID       string
}

// OptionsFromEnv reads Options from FIREBASE_CONFIG and GCLOUD_PROJECT.
func OptionsFromEnv() Options {
	return Options{
		CredentialsFile: os.Getenv(CredentialsPathEnv),
		ProjectID:       os.Getenv(ProjectEnv),
	}
}

// GetApp creates a Firebase App instance.
func GetApp(ctx context.Context, opts Options) (*firebase.App, error) {
	var cfg *firebase.Config
	if opts.ProjectID != "" {
		cfg = &firebase.Config{ProjectID: opts.ProjectID}
	}

	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}

	return firebase.NewApp(ctx, cfg, clientOpts...)
}

// InitFirebaseAuth initializes the Firebase App and returns an Auth client.
func InitFirebaseAuth(ctx context.Context, opts Options) (*firebase.App, *firebaseauth.Client, error) {
	app, err := GetApp(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing firebase app [%w]", err)
	}

	fbAuth, err := app.Auth(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing firebase auth [%w]", err)
	}

	return app, fbAuth, nil
}
