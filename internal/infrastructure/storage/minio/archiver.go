// Package minio stores renewal export files in object storage.
package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ipdocket/ipdocket/internal/config"
	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
	"github.com/ipdocket/ipdocket/pkg/errors"
)

// objectStore abstracts the minio client for testing.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, name string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, name string, expiry time.Duration, params url.Values) (*url.URL, error)
}

// Archiver stores export files and hands back their object location.
type Archiver struct {
	store  objectStore
	bucket string
	logger logging.Logger
}

// NewArchiver connects to object storage and ensures the export bucket
// exists.
func NewArchiver(cfg config.MinIOConfig, logger logging.Logger) (*Archiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeStorageError, "create minio client")
	}

	a := &Archiver{store: client, bucket: cfg.Bucket, logger: logger.Named("export-archiver")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.ensureBucket(ctx); err != nil {
		return nil, err
	}

	logger.Info("minio connected",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket))
	return a, nil
}

// NewArchiverWithStore is the test constructor.
func NewArchiverWithStore(store objectStore, bucket string, logger logging.Logger) *Archiver {
	return &Archiver{store: store, bucket: bucket, logger: logger}
}

func (a *Archiver) ensureBucket(ctx context.Context) error {
	exists, err := a.store.BucketExists(ctx, a.bucket)
	if err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "check export bucket")
	}
	if exists {
		return nil
	}
	if err := a.store.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrap(err, errors.CodeStorageError, "create export bucket")
	}
	return nil
}

// Store writes one export object and returns its location.
func (a *Archiver) Store(ctx context.Context, name, contentType string, data []byte) (string, error) {
	_, err := a.store.PutObject(ctx, a.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", errors.Wrap(err, errors.CodeStorageError, "store export object")
	}
	location := fmt.Sprintf("s3://%s/%s", a.bucket, name)
	a.logger.Info("export archived",
		logging.String("object", name),
		logging.Int("bytes", len(data)))
	return location, nil
}

// PresignedURL returns a time-limited download link for a stored export.
func (a *Archiver) PresignedURL(ctx context.Context, name string, expiry time.Duration) (string, error) {
	u, err := a.store.PresignedGetObject(ctx, a.bucket, name, expiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeStorageError, "presign export object")
	}
	return u.String(), nil
}
