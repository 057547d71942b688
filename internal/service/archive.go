package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sshcollectorpro/devsession/internal/config"
	"github.com/sshcollectorpro/devsession/pkg/logger"
)

const transcriptContentType = "text/plain; charset=utf-8"

// StoredObject 归档后的对象信息
type StoredObject struct {
	URI         string `json:"uri"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
	ContentType string `json:"content_type"`
}

// ArchiveMeta 归档元数据
type ArchiveMeta struct {
	SessionID string
	Host      string
	Time      time.Time
}

// Archiver 会话原始记录归档
type Archiver interface {
	Archive(ctx context.Context, meta ArchiveMeta, transcript string) (StoredObject, error)
}

// NewArchiver 按 storage.backend 创建归档器；none 返回 nil
func NewArchiver(cfg config.StorageConfig) Archiver {
	local := &LocalArchiver{BaseDir: cfg.Local.BaseDir}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "local":
		return local
	case "minio":
		return &FallbackArchiver{Primary: NewMinioArchiver(cfg.Minio), Fallback: local}
	default:
		return nil
	}
}

// ObjectKey prefix/host/yyyymmdd/session-id.txt
func ObjectKey(prefix string, meta ArchiveMeta) string {
	ts := meta.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return path.Join(strings.Trim(prefix, "/"), slug(meta.Host), ts.Format("20060102"), slug(meta.SessionID)+".txt")
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// FallbackArchiver 主后端失败时回退到本地
type FallbackArchiver struct {
	Primary  Archiver
	Fallback Archiver
}

func (a *FallbackArchiver) Archive(ctx context.Context, meta ArchiveMeta, transcript string) (StoredObject, error) {
	if a.Primary != nil {
		obj, err := a.Primary.Archive(ctx, meta, transcript)
		if err == nil {
			return obj, nil
		}
		logger.Warn("Archive: primary backend failed; falling back to local", "session_id", meta.SessionID, "error", err)
	}
	if a.Fallback == nil {
		return StoredObject{}, fmt.Errorf("no archive backend available")
	}
	return a.Fallback.Archive(ctx, meta, transcript)
}

// LocalArchiver 本地文件归档
type LocalArchiver struct {
	BaseDir string
}

func (a *LocalArchiver) Archive(ctx context.Context, meta ArchiveMeta, transcript string) (StoredObject, error) {
	baseDir := strings.TrimSpace(a.BaseDir)
	if baseDir == "" {
		baseDir = "./data/transcripts"
	}
	fullPath := filepath.Join(baseDir, filepath.FromSlash(ObjectKey("", meta)))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return StoredObject{}, fmt.Errorf("failed to create dir: %w", err)
	}

	data := []byte(transcript)
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return StoredObject{}, fmt.Errorf("failed to write file: %w", err)
	}
	return StoredObject{
		URI:         "file://" + fullPath,
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		ContentType: transcriptContentType,
	}, nil
}

// MinioArchiver MinIO 对象存储归档
type MinioArchiver struct {
	cfg    config.MinioConfig
	client *minio.Client
	// bucketEnsured 并发请求共享，创建失败时保持 false 以便下次重试
	bucketEnsured atomic.Bool
}

// NewMinioArchiver 创建 MinIO 客户端；配置不完整或初始化失败返回 nil
func NewMinioArchiver(cfg config.MinioConfig) *MinioArchiver {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		logger.Warn("MinIO configuration incomplete; endpoint missing")
		return nil
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   16,
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.Secure,
		Transport: transport,
	})
	if err != nil {
		logger.Error("MinIO client initialization failed", "error", err)
		return nil
	}
	return &MinioArchiver{cfg: cfg, client: client}
}

func (a *MinioArchiver) Archive(ctx context.Context, meta ArchiveMeta, transcript string) (StoredObject, error) {
	if a == nil || a.client == nil {
		return StoredObject{}, fmt.Errorf("minio client not initialized")
	}
	bucket := strings.TrimSpace(a.cfg.Bucket)
	if bucket == "" {
		return StoredObject{}, fmt.Errorf("minio bucket not configured")
	}
	if !a.bucketEnsured.Load() {
		if err := a.ensureBucket(ctx, bucket); err != nil {
			return StoredObject{}, fmt.Errorf("minio ensure bucket failed: %w", err)
		}
		a.bucketEnsured.Store(true)
	}

	objectName := ObjectKey(a.cfg.Prefix, meta)
	data := []byte(transcript)

	err := retryWithBackoff(ctx, putBackoffs, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		_, err := a.client.PutObject(attemptCtx, bucket, objectName, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: transcriptContentType})
		return err
	})
	if err != nil {
		return StoredObject{}, fmt.Errorf("minio put object failed after retries: %w", err)
	}

	return StoredObject{
		URI:         "minio://" + path.Join(bucket, objectName),
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		ContentType: transcriptContentType,
	}, nil
}

// putBackoffs 两次重试之间的等待，共 len+1 次尝试
var putBackoffs = []time.Duration{2 * time.Second, 4 * time.Second}

// retryWithBackoff 失败后按 backoffs 等待再试；最后一次失败后立即返回
func retryWithBackoff(ctx context.Context, backoffs []time.Duration, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= len(backoffs) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffs[attempt]):
		}
	}
}

// ensureBucket bucket 不存在时创建
func (a *MinioArchiver) ensureBucket(ctx context.Context, bucket string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	exists, err := a.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return a.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

var slugRe = regexp.MustCompile(`[^a-z0-9._-]+`)

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_").Replace(s)
	s = slugRe.ReplaceAllString(s, "")
	if s == "" {
		s = "unknown"
	}
	return s
}
