package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/Lllllllleong/docxconversionflow/internal/convert"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// BucketStore reads and writes objects in one Cloud Storage bucket.
type BucketStore struct {
	bucket  *storage.BucketHandle
	name    string
	maxRead int64
}

// NewBucketStore wraps bucketName. Reads larger than maxRead bytes are
// rejected; zero means no limit.
func NewBucketStore(client *storage.Client, bucketName string, maxRead int64) *BucketStore {
	return &BucketStore{bucket: client.Bucket(bucketName), name: bucketName, maxRead: maxRead}
}

// ReadObject returns the content of objectName. A missing object is an
// InvalidArgument error since the caller named it.
func (s *BucketStore) ReadObject(ctx context.Context, objectName string) ([]byte, error) {
	r, err := s.bucket.Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, convert.Errorf(convert.KindInvalidArgument, "storage object gs://%s/%s does not exist", s.name, objectName)
		}
		return nil, convert.Wrap(convert.KindStorageAccessError, err,
			fmt.Sprintf("failed to open gs://%s/%s", s.name, objectName))
	}
	defer r.Close()

	var src io.Reader = r
	if s.maxRead > 0 {
		if r.Attrs.Size > s.maxRead {
			return nil, convert.Errorf(convert.KindInvalidInput,
				"storage object is %d bytes, limit is %d", r.Attrs.Size, s.maxRead)
		}
		src = io.LimitReader(r, s.maxRead)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, convert.Wrap(convert.KindStorageAccessError, err,
			fmt.Sprintf("failed to read gs://%s/%s", s.name, objectName))
	}
	return data, nil
}

// WriteObject stores data at objectName, replacing any existing object.
func (s *BucketStore) WriteObject(ctx context.Context, objectName string, data []byte, contentType string) error {
	writer := s.bucket.Object(objectName).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		slog.Error("Failed to write GCS object.", "gcsObject", objectName, "error", err)
		return convert.Wrap(convert.KindStorageAccessError, err, "failed to write to GCS")
	}
	if err := writer.Close(); err != nil {
		slog.Error("Failed to close GCS writer.", "gcsObject", objectName, "permissionDenied", IsPermissionDenied(err), "error", err)
		return convert.Wrap(convert.KindStorageAccessError, err, "failed to finalize GCS write")
	}
	return nil
}

// SignedURL returns a V4 signed GET URL valid for ttl. Signing needs either a
// service account key or the iam.serviceAccounts.signBlob permission.
func (s *BucketStore) SignedURL(_ context.Context, objectName string, ttl time.Duration) (string, error) {
	u, err := s.bucket.SignedURL(objectName, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for gs://%s/%s: %w", s.name, objectName, err)
	}
	return u, nil
}

// MakePublic grants allUsers read access and returns the object's public URL.
// Fails on buckets with uniform bucket-level access.
func (s *BucketStore) MakePublic(ctx context.Context, objectName string) (string, error) {
	if err := s.bucket.Object(objectName).ACL().Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
		return "", fmt.Errorf("failed to make gs://%s/%s public: %w", s.name, objectName, err)
	}
	return PublicURL(s.name, objectName), nil
}

// PublicURL is the unauthenticated download URL of a public object.
func PublicURL(bucket, objectName string) string {
	u := url.URL{Scheme: "https", Host: "storage.googleapis.com", Path: "/" + bucket + "/" + objectName}
	return u.String()
}

// IsPermissionDenied reports whether err is a 403 from a Google API.
func IsPermissionDenied(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusForbidden
}
