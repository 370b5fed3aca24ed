package minio

import (
	"context"
	"io"
	"net/url"
	"testing"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipdocket/ipdocket/internal/infrastructure/monitoring/logging"
)

type fakeStore struct {
	objects map[string][]byte
	types   map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeStore) BucketExists(context.Context, string) (bool, error) { return true, nil }

func (f *fakeStore) MakeBucket(context.Context, string, miniogo.MakeBucketOptions) error {
	return nil
}

func (f *fakeStore) PutObject(_ context.Context, _, name string, reader io.Reader, _ int64, opts miniogo.PutObjectOptions) (miniogo.UploadInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return miniogo.UploadInfo{}, err
	}
	f.objects[name] = data
	f.types[name] = opts.ContentType
	return miniogo.UploadInfo{Key: name, Size: int64(len(data))}, nil
}

func (f *fakeStore) PresignedGetObject(_ context.Context, bucket, name string, _ time.Duration, _ url.Values) (*url.URL, error) {
	return url.Parse("https://storage.local/" + bucket + "/" + name)
}

func TestArchiver_StoreReturnsLocation(t *testing.T) {
	store := newFakeStore()
	a := NewArchiverWithStore(store, "ipdocket-exports", logging.NewNopLogger())

	loc, err := a.Store(context.Background(), "renewals/20260815-job1.csv", "text/csv", []byte("task_id,caseref\n1,P100EP00\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3://ipdocket-exports/renewals/20260815-job1.csv", loc)
	assert.Equal(t, "text/csv", store.types["renewals/20260815-job1.csv"])
	assert.Contains(t, string(store.objects["renewals/20260815-job1.csv"]), "P100EP00")
}

func TestArchiver_PresignedURL(t *testing.T) {
	a := NewArchiverWithStore(newFakeStore(), "ipdocket-exports", logging.NewNopLogger())

	u, err := a.PresignedURL(context.Background(), "renewals/x.csv", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://storage.local/ipdocket-exports/renewals/x.csv", u)
}
