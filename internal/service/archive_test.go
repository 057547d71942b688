package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/devsession/internal/config"
)

type failingArchiver struct{}

func (failingArchiver) Archive(context.Context, ArchiveMeta, string) (StoredObject, error) {
	return StoredObject{}, errors.New("backend down")
}

func testMeta() ArchiveMeta {
	return ArchiveMeta{
		SessionID: "3f1c2a9e-0000-4000-8000-000000000001",
		Host:      "Core-SW/1",
		Time:      time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t,
		"transcripts/core-sw_1/20260314/3f1c2a9e-0000-4000-8000-000000000001.txt",
		ObjectKey("/transcripts/", testMeta()))
	assert.Equal(t,
		"core-sw_1/20260314/3f1c2a9e-0000-4000-8000-000000000001.txt",
		ObjectKey("", testMeta()))
}

func TestLocalArchiver(t *testing.T) {
	dir := t.TempDir()
	a := &LocalArchiver{BaseDir: dir}

	obj, err := a.Archive(context.Background(), testMeta(), "sw1>show clock\n10:00\n")
	require.NoError(t, err)

	path := strings.TrimPrefix(obj.URI, "file://")
	assert.Equal(t, filepath.Join(dir, "core-sw_1", "20260314", "3f1c2a9e-0000-4000-8000-000000000001.txt"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sw1>show clock\n10:00\n", string(data))
	assert.Equal(t, int64(len(data)), obj.Size)
	assert.True(t, strings.HasPrefix(obj.Checksum, "sha256:"))
}

func TestFallbackArchiver(t *testing.T) {
	dir := t.TempDir()
	a := &FallbackArchiver{Primary: failingArchiver{}, Fallback: &LocalArchiver{BaseDir: dir}}

	obj, err := a.Archive(context.Background(), testMeta(), "transcript")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.URI, "file://"+dir))

	_, err = (&FallbackArchiver{Primary: failingArchiver{}}).Archive(context.Background(), testMeta(), "x")
	assert.Error(t, err)
}

func TestNewArchiver(t *testing.T) {
	assert.Nil(t, NewArchiver(config.StorageConfig{Backend: "none"}))
	assert.IsType(t, &LocalArchiver{}, NewArchiver(config.StorageConfig{Backend: "local"}))

	a := NewArchiver(config.StorageConfig{
		Backend: "minio",
		Local:   config.LocalStorageConfig{BaseDir: t.TempDir()},
	})
	fa, ok := a.(*FallbackArchiver)
	require.True(t, ok)

	// 未配置 endpoint 的 MinIO 写入失败后回退到本地
	obj, err := fa.Archive(context.Background(), testMeta(), "transcript")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.URI, "file://"))
}

func TestRetryWithBackoff(t *testing.T) {
	var calls int
	start := time.Now()
	err := retryWithBackoff(context.Background(), []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, func(context.Context) error {
		calls++
		return errors.New("put failed")
	})
	assert.EqualError(t, err, "put failed")
	assert.Equal(t, 3, calls)
	// 最后一次失败后不再等待
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRetryWithBackoffStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := retryWithBackoff(ctx, []time.Duration{time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return errors.New("put failed")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)

	calls = 0
	err = retryWithBackoff(context.Background(), []time.Duration{time.Millisecond}, func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("flaky")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

// fakeObjectStore 只实现归档用到的 S3 接口：bucket 位置、HEAD bucket、PUT object
func fakeObjectStore(t *testing.T) (*httptest.Server, *atomic.Int32, *atomic.Int32) {
	t.Helper()
	var heads, puts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		switch {
		case r.Method == http.MethodGet && r.URL.Query().Has("location"):
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?><LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`)
		case r.Method == http.MethodHead:
			heads.Add(1)
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut:
			puts.Add(1)
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotImplemented)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &heads, &puts
}

func TestMinioArchiverConcurrent(t *testing.T) {
	srv, heads, puts := fakeObjectStore(t)
	a := NewMinioArchiver(config.MinioConfig{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "devsession",
		Prefix:    "transcripts",
	})
	require.NotNil(t, a)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			meta := testMeta()
			meta.SessionID = fmt.Sprintf("session-%d", i)
			obj, err := a.Archive(context.Background(), meta, "sw1#show clock\n10:00\n")
			if err == nil && !strings.HasPrefix(obj.URI, "minio://devsession/transcripts/core-sw_1/") {
				err = fmt.Errorf("unexpected uri %s", obj.URI)
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.EqualValues(t, 8, puts.Load())
	assert.True(t, a.bucketEnsured.Load())

	// bucket 已确认后不再检查
	before := heads.Load()
	_, err := a.Archive(context.Background(), testMeta(), "again")
	require.NoError(t, err)
	assert.Equal(t, before, heads.Load())
}

func TestRequestNormalize(t *testing.T) {
	req := Request{Hostname: " 10.0.0.1 ", Username: " admin", Commands: []string{"show clock", "", "  ", " show vlan "}}
	req.Normalize()

	assert.Equal(t, "10.0.0.1", req.Hostname)
	assert.Equal(t, "admin", req.Username)
	assert.Equal(t, []string{"show clock", "show vlan"}, req.Commands)
	assert.NoError(t, req.Validate())

	req.Port = 70000
	assert.ErrorIs(t, req.Validate(), ErrInvalidRequest)
}
