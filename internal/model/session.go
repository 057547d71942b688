package model

import (
	"time"
)

// SessionRecord 一次命令批次的执行记录（不保存密码）
type SessionRecord struct {
	ID           string        `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Kind         string        `json:"kind" gorm:"type:varchar(16);not null;default:'execute'"`
	Host         string        `json:"host" gorm:"type:varchar(255);not null;index"`
	Port         int           `json:"port" gorm:"not null;default:22"`
	Username     string        `json:"username" gorm:"type:varchar(64)"`
	Family       string        `json:"family" gorm:"type:varchar(16)"`
	Strategy     string        `json:"strategy" gorm:"type:varchar(16)"`
	Legacy       bool          `json:"legacy"`
	Status       string        `json:"status" gorm:"type:varchar(16);not null;default:'pending'"`
	ErrorMsg     string        `json:"error_msg" gorm:"type:text"`
	CommandCount int           `json:"command_count"`
	DeadlineHit  bool          `json:"deadline_hit"`
	ArchiveKey   string        `json:"archive_key" gorm:"type:varchar(512)"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     int64         `json:"duration"` // 执行时长，毫秒
	Entries      []EntryRecord `json:"entries,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time     `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt    time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName 表名
func (SessionRecord) TableName() string {
	return "sessions"
}

// 会话状态
const (
	SessionStatusPending  = "pending"
	SessionStatusSuccess  = "success"
	SessionStatusFailed   = "failed"
	SessionStatusDeadline = "deadline"
)

// 会话类型
const (
	SessionKindExecute = "execute"
	SessionKindTest    = "test"
	SessionKindConfig  = "config"
)

// EntryRecord 会话条目，Seq 保持产生顺序
type EntryRecord struct {
	ID        uint      `json:"-" gorm:"primaryKey;autoIncrement"`
	SessionID string    `json:"session_id" gorm:"type:varchar(64);not null;index:idx_entry_session_seq,priority:1"`
	Seq       int       `json:"seq" gorm:"not null;index:idx_entry_session_seq,priority:2"`
	Type      string    `json:"type" gorm:"type:varchar(16);not null"`
	Content   string    `json:"content" gorm:"type:text"`
	Timestamp time.Time `json:"timestamp"`
}

// TableName 表名
func (EntryRecord) TableName() string {
	return "session_entries"
}

// DeviceSnapshot 配置抓取后解析得到的设备模型快照
type DeviceSnapshot struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	SessionID  string    `json:"session_id" gorm:"type:varchar(64);not null;index"`
	Host       string    `json:"host" gorm:"type:varchar(255);not null;index"`
	Family     string    `json:"family" gorm:"type:varchar(16)"`
	Hostname   string    `json:"hostname" gorm:"type:varchar(255)"`
	Version    string    `json:"version" gorm:"type:varchar(128)"`
	Model      string    `json:"model" gorm:"type:text"` // DeviceModel JSON
	ParseError string    `json:"parse_error" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 表名
func (DeviceSnapshot) TableName() string {
	return "device_snapshots"
}
