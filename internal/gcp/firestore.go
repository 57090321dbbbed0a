package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/docxconversionflow/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreConfig reads conversion settings from a single Firestore document.
type FirestoreConfig struct {
	doc *firestore.DocumentRef
}

// NewFirestoreConfig points at collection/document.
func NewFirestoreConfig(client *firestore.Client, collection, document string) *FirestoreConfig {
	return &FirestoreConfig{doc: client.Collection(collection).Doc(document)}
}

// Settings loads the config document. A missing document yields zero settings.
func (c *FirestoreConfig) Settings(ctx context.Context) (models.ConversionSettings, error) {
	var settings models.ConversionSettings
	snap, err := c.doc.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return settings, nil
		}
		return settings, fmt.Errorf("failed to read config document %s: %w", c.doc.Path, err)
	}
	if err := snap.DataTo(&settings); err != nil {
		return settings, fmt.Errorf("failed to decode config document %s: %w", c.doc.Path, err)
	}
	return settings, nil
}

// WorkerURL returns the workerUrl field, or "" when unset.
func (c *FirestoreConfig) WorkerURL(ctx context.Context) (string, error) {
	settings, err := c.Settings(ctx)
	if err != nil {
		return "", err
	}
	return settings.WorkerURL, nil
}
