// Package s3store keeps converted documents in an S3-compatible bucket.
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Lllllllleong/docxconversionflow/internal/convert"
)

// Config describes how to reach the bucket.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
	// MaxRead rejects larger objects on read; zero means no limit.
	MaxRead int64
}

// Store implements the gateway object store on top of minio-go.
type Store struct {
	client  *minio.Client
	bucket  string
	host    string
	maxRead int64
}

// New creates a Store. It does not contact the endpoint.
func New(cfg Config) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 endpoint and bucket must be set")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init S3 client: %w", err)
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return &Store{
		client:  client,
		bucket:  cfg.Bucket,
		host:    scheme + "://" + cfg.Endpoint,
		maxRead: cfg.MaxRead,
	}, nil
}

// ReadObject returns the content of key.
func (s *Store) ReadObject(ctx context.Context, key string) ([]byte, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, convert.Errorf(convert.KindInvalidArgument, "storage object s3://%s/%s does not exist", s.bucket, key)
		}
		return nil, convert.Wrap(convert.KindStorageAccessError, err, fmt.Sprintf("stat s3://%s/%s", s.bucket, key))
	}
	if s.maxRead > 0 && info.Size > s.maxRead {
		return nil, convert.Errorf(convert.KindInvalidInput, "storage object is %d bytes, limit is %d", info.Size, s.maxRead)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, convert.Wrap(convert.KindStorageAccessError, err, fmt.Sprintf("get s3://%s/%s", s.bucket, key))
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, convert.Errorf(convert.KindInvalidArgument, "storage object s3://%s/%s does not exist", s.bucket, key)
		}
		return nil, convert.Wrap(convert.KindStorageAccessError, err, fmt.Sprintf("read s3://%s/%s", s.bucket, key))
	}
	return data, nil
}

// WriteObject uploads data to key.
func (s *Store) WriteObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"converted-at": time.Now().UTC().Format(time.RFC3339)},
	})
	if err != nil {
		return convert.Wrap(convert.KindStorageAccessError, err, "upload failed")
	}
	return nil
}

// SignedURL presigns a GET for key. S3 caps the lifetime at seven days.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign s3://%s/%s: %w", s.bucket, key, err)
	}
	return u.String(), nil
}

// MakePublic copies key onto itself with a public-read canned ACL and
// returns its unauthenticated URL.
func (s *Store) MakePublic(ctx context.Context, key string) (string, error) {
	dst := minio.CopyDestOptions{
		Bucket:          s.bucket,
		Object:          key,
		ReplaceMetadata: true,
		UserMetadata: map[string]string{
			"x-amz-acl":    "public-read",
			"Content-Type": convert.PDFContentType,
		},
	}
	src := minio.CopySrcOptions{Bucket: s.bucket, Object: key}
	if _, err := s.client.CopyObject(ctx, dst, src); err != nil {
		return "", fmt.Errorf("make s3://%s/%s public: %w", s.bucket, key, err)
	}
	return s.buildPublicURL(key), nil
}

func (s *Store) buildPublicURL(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("%s/%s/%s", s.host, s.bucket, strings.Join(segments, "/"))
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
