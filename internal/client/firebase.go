package client

import (
	"context"
	"encoding/base64"
	"strings"

	"fbdevops/internal/config"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go"
	"github.com/go-faster/errors"
	"google.golang.org/api/option"
)

// Options returns the credentials for the Cloud clients: none when the
// emulator hosts are set, the base64 FIRESTORE_SA service account when
// present, and application default credentials otherwise.
func Options(cfg config.Config) ([]option.ClientOption, error) {
	if config.EmulatorHostsSet() {
		return []option.ClientOption{option.WithoutAuthentication()}, nil
	}
	if cfg.FirestoreSA == "" {
		return nil, nil
	}

	saJSON, err := base64.StdEncoding.DecodeString(strings.TrimSpace(cfg.FirestoreSA))
	if err != nil {
		return nil, errors.Wrap(err, "decode FIRESTORE_SA")
	}
	return []option.ClientOption{option.WithCredentialsJSON(saJSON)}, nil
}

func Firebase(ctx context.Context, cfg config.Config) (*firebase.App, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	conf := &firebase.Config{
		ProjectID:     cfg.ProjectID,
		StorageBucket: cfg.StorageBucket,
	}

	return firebase.NewApp(ctx, conf, opts...)
}

func Firestore(ctx context.Context, cfg config.Config) (*firestore.Client, error) {
	app, err := Firebase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "firestore client")
	}

	return client, nil
}

// Bucket returns the project's default Storage bucket.
func Bucket(ctx context.Context, cfg config.Config) (*gcs.BucketHandle, error) {
	if cfg.StorageBucket == "" {
		return nil, errors.New("FIREBASE_STORAGE_BUCKET is not set")
	}
	app, err := Firebase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sc, err := app.Storage(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "storage client")
	}

	return sc.DefaultBucket()
}

func PubSub(ctx context.Context, cfg config.Config) (*pubsub.Client, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("FIREBASE_PROJECT_ID is not set")
	}
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "pubsub client")
	}

	return client, nil
}
