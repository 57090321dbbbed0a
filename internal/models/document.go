package models

import "time"

// ConversionSettings is the remote configuration document read from
// Firestore. Only fields present in the document are applied.
type ConversionSettings struct {
	WorkerURL string    `firestore:"workerUrl,omitempty"`
	UpdatedAt time.Time `firestore:"updatedAt,omitempty"`
}
