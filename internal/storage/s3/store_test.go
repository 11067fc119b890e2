package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/castdb/castdb/internal/query"
	"github.com/castdb/castdb/internal/storage"
)

func TestPutUsesPrefixAndNormalizedKey(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "castdb/prod", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	_, err = store.Put(context.Background(), "/fixtures/sample/movies.parquet", bytes.NewBufferString("abc"), 3, storage.PutOptions{ContentType: "application/octet-stream"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastPutBucket != "bucket-a" {
		t.Fatalf("bucket = %q", fake.lastPutBucket)
	}
	if fake.lastPutKey != "castdb/prod/fixtures/sample/movies.parquet" {
		t.Fatalf("key = %q", fake.lastPutKey)
	}
}

func TestPutDefaultsParquetContentType(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "castdb", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	info, err := store.Put(context.Background(), "fixtures/sample/actors.parquet", bytes.NewBufferString("PAR1"), 4, storage.PutOptions{})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastPutContentType != storage.ContentTypeParquet {
		t.Fatalf("content type = %q", fake.lastPutContentType)
	}
	if info.Key != "fixtures/sample/actors.parquet" {
		t.Fatalf("Put() key = %q, want prefix-relative key", info.Key)
	}
}

func TestListStripsPrefixAndSortsKeys(t *testing.T) {
	fake := &fakeClient{listed: []storage.ObjectInfo{
		{Key: "castdb/fixtures/sample/movies.parquet", Size: 3},
		{Key: "castdb/fixtures/sample/actors.parquet", Size: 2},
	}}
	store, err := NewWithClient("bucket-a", "/castdb/", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	infos, err := store.List(context.Background(), "fixtures/sample/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if fake.lastListPrefix != "castdb/fixtures/sample/" {
		t.Fatalf("list prefix = %q", fake.lastListPrefix)
	}
	if len(infos) != 2 || infos[0].Key != "fixtures/sample/actors.parquet" || infos[1].Key != "fixtures/sample/movies.parquet" {
		t.Fatalf("List() = %+v", infos)
	}

	if _, err := store.List(context.Background(), "../other/"); err == nil {
		t.Fatal("expected path traversal validation error")
	}
}

func TestListTreatsMissingBucketAsEmpty(t *testing.T) {
	store, err := NewWithClient("bucket-a", "", &fakeClient{listErr: storage.ErrObjectNotFound})
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	infos, err := store.List(context.Background(), "fixtures/sample/")
	if err != nil || len(infos) != 0 {
		t.Fatalf("List() = %v, %v", infos, err)
	}
}

func TestPutRejectsPathTraversal(t *testing.T) {
	fake := &fakeClient{}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	_, err = store.Put(context.Background(), "../secrets.txt", bytes.NewBufferString("x"), 1, storage.PutOptions{})
	if err == nil {
		t.Fatal("expected path traversal validation error")
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeClient{bucketExists: false}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}

	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if !fake.createBucketCalled {
		t.Fatal("expected CreateBucket to be called")
	}
}

func TestDeleteIgnoresMissingObject(t *testing.T) {
	fake := &fakeClient{deleteErr: storage.ErrObjectNotFound}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if err := store.Delete(context.Background(), "fixtures/missing/actors.parquet"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestParseEndpoint(t *testing.T) {
	endpoint, secure, err := parseEndpoint("https://minio.example.com", false)
	if err != nil {
		t.Fatalf("parseEndpoint() error = %v", err)
	}
	if endpoint != "minio.example.com" || !secure {
		t.Fatalf("endpoint/secure = %q/%v", endpoint, secure)
	}
}

func TestMapMinioErr(t *testing.T) {
	if err := mapMinioErr(minio.ErrorResponse{Code: "NoSuchKey"}); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("mapMinioErr(NoSuchKey) = %v, want ErrObjectNotFound", err)
	}
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	if err := mapMinioErr(dial); !query.IsConnection(err) {
		t.Fatalf("mapMinioErr(dial) = %T, want ConnectionError", err)
	}
	other := errors.New("access denied")
	if err := mapMinioErr(other); err != other {
		t.Fatalf("mapMinioErr(other) = %v", err)
	}
}

func TestGetSurfacesConnectionError(t *testing.T) {
	fake := &fakeClient{getErr: &query.ConnectionError{Op: "fixture object store request", Err: errors.New("refused")}}
	store, err := NewWithClient("bucket-a", "", fake)
	if err != nil {
		t.Fatalf("NewWithClient() error = %v", err)
	}
	if _, err := store.Get(context.Background(), "fixtures/sample/actors.parquet"); !query.IsConnection(err) {
		t.Fatalf("Get() error = %v, want ConnectionError", err)
	}
}

type fakeClient struct {
	lastPutBucket      string
	lastPutKey         string
	lastPutContentType string
	bucketExists       bool
	createBucketCalled bool
	deleteErr          error
	getErr             error
	lastListPrefix     string
	listed             []storage.ObjectInfo
	listErr            error
}

func (f *fakeClient) Put(_ context.Context, bucket, key string, reader io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	f.lastPutBucket = bucket
	f.lastPutKey = key
	f.lastPutContentType = contentType
	_, _ = io.Copy(io.Discard, reader)
	return storage.ObjectInfo{Key: key, Size: size, ETag: "etag-1"}, nil
}

func (f *fakeClient) Get(_ context.Context, _, key string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return io.NopCloser(strings.NewReader(key)), nil
}

func (f *fakeClient) Stat(_ context.Context, _, key string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{Key: key, Size: 10, LastModified: time.Now().UTC()}, nil
}

func (f *fakeClient) List(_ context.Context, _, prefix string) ([]storage.ObjectInfo, error) {
	f.lastListPrefix = prefix
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listed, nil
}

func (f *fakeClient) Delete(_ context.Context, _, _ string) error {
	return f.deleteErr
}

func (f *fakeClient) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeClient) CreateBucket(_ context.Context, _, _ string) error {
	f.createBucketCalled = true
	return nil
}
