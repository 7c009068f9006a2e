// Package s3storage keeps candidate uploads and generated contract PDFs in
// MinIO/S3 buckets.
package s3storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/PartnerGate/internal/common"
	"github.com/dharsanguruparan/PartnerGate/internal/config"
)

// Bucket selects one of the two logical buckets.
type Bucket int

const (
	Uploads Bucket = iota
	Contracts
)

func (b Bucket) String() string {
	if b == Contracts {
		return "contracts"
	}
	return "uploads"
}

// ObjectStore is the narrow object storage contract used by the upload
// service, the contract worker and the admin endpoints.
type ObjectStore interface {
	Put(ctx context.Context, b Bucket, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, b Bucket, key string) ([]byte, error)
	Presign(ctx context.Context, b Bucket, key string, ttl time.Duration) (string, error)
	Exists(ctx context.Context, b Bucket, key string) (bool, error)
}

// Storage wraps MinIO/S3 interactions.
type Storage struct {
	client  *minio.Client
	buckets map[Bucket]string
	region  string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client: client,
		buckets: map[Bucket]string{
			Uploads:   cfg.UploadBucket,
			Contracts: cfg.ContractBucket,
		},
		region: cfg.S3Region,
	}, nil
}

// EnsureBuckets makes sure both buckets exist before use.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.buckets[Uploads], s.buckets[Contracts]} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

func (s *Storage) Put(ctx context.Context, b Bucket, key string, r io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.buckets[b], key, r, size, opts); err != nil {
		return fmt.Errorf("put %s object: %w", b, err)
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, b Bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.buckets[b], key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s object: %w", b, err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, fmt.Errorf("%s/%s: %w", b, key, common.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s object: %w", b, err)
	}
	return buf, nil
}

// Exists reports whether key is stored in b.
func (s *Storage) Exists(ctx context.Context, b Bucket, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.buckets[b], key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("stat %s object: %w", b, err)
}

// Presign returns a time-limited GET URL.
func (s *Storage) Presign(ctx context.Context, b Bucket, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.buckets[b], key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s object: %w", b, err)
	}
	return u.String(), nil
}

// PutBytes is a convenience for small in-memory payloads such as PDFs.
func PutBytes(ctx context.Context, store ObjectStore, b Bucket, key string, data []byte, contentType string) error {
	return store.Put(ctx, b, key, bytes.NewReader(data), int64(len(data)), contentType)
}
