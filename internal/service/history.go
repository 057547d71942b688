package service

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sshcollectorpro/devsession/internal/database"
	"github.com/sshcollectorpro/devsession/internal/model"
	sshpkg "github.com/sshcollectorpro/devsession/pkg/ssh"
)

var (
	// ErrSessionNotFound 会话记录不存在
	ErrSessionNotFound = errors.New("session not found")
	// ErrSnapshotNotFound 主机没有设备快照
	ErrSnapshotNotFound = errors.New("device snapshot not found")
)

const (
	writeAttempts = 5
	writeBackoff  = 50 * time.Millisecond
)

// HistoryStore 会话历史与设备快照持久化
type HistoryStore struct {
	db *gorm.DB
}

// NewHistoryStore 创建历史存储
func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// SaveSession 保存会话及其有序条目
func (h *HistoryStore) SaveSession(rec *model.SessionRecord, entries []sshpkg.Entry) error {
	rec.Entries = make([]model.EntryRecord, 0, len(entries))
	for i, e := range entries {
		rec.Entries = append(rec.Entries, model.EntryRecord{
			SessionID: rec.ID,
			Seq:       i,
			Type:      string(e.Type),
			Content:   e.Content,
			Timestamp: e.Timestamp,
		})
	}
	return database.TransactionWithRetry(h.db, func(tx *gorm.DB) error {
		return tx.Create(rec).Error
	}, writeAttempts, writeBackoff)
}

// GetSession 按 ID 读取会话及条目
func (h *HistoryStore) GetSession(id string) (*model.SessionRecord, error) {
	var rec model.SessionRecord
	err := h.db.Preload("Entries", func(db *gorm.DB) *gorm.DB {
		return db.Order("seq ASC")
	}).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListSessions 最近的会话（不含条目），host 为空时不过滤
func (h *HistoryStore) ListSessions(host string, limit int) ([]model.SessionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := h.db.Model(&model.SessionRecord{}).Order("created_at DESC").Limit(limit)
	if host != "" {
		q = q.Where("host = ?", host)
	}
	var recs []model.SessionRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// SaveSnapshot 保存解析后的设备快照
func (h *HistoryStore) SaveSnapshot(snap *model.DeviceSnapshot) error {
	return database.WithRetry(h.db, func(db *gorm.DB) error {
		return db.Create(snap).Error
	}, writeAttempts, writeBackoff)
}

// LatestSnapshot 主机最近一次快照
func (h *HistoryStore) LatestSnapshot(host string) (*model.DeviceSnapshot, error) {
	var snap model.DeviceSnapshot
	err := h.db.Where("host = ?", host).Order("created_at DESC").First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Health 数据库健康检查
func (h *HistoryStore) Health() error {
	return database.Health(h.db)
}
