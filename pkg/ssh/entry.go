package ssh

import "time"

// EntryType 会话条目类型
type EntryType string

const (
	EntryCommand EntryType = "command"
	EntryOutput  EntryType = "output"
	EntryError   EntryType = "error"
)

// Entry 会话条目：命令、输出或错误，按产生顺序追加
type Entry struct {
	Type      EntryType `json:"type"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func newEntry(t EntryType, content string) Entry {
	return Entry{Type: t, Content: content, Timestamp: time.Now()}
}

// CommandEntry 命令条目
func CommandEntry(command string) Entry { return newEntry(EntryCommand, command) }

// OutputEntry 输出条目
func OutputEntry(content string) Entry { return newEntry(EntryOutput, content) }

// ErrorEntry 错误条目
func ErrorEntry(content string) Entry { return newEntry(EntryError, content) }

// ConnectedMessage 空命令批次时返回的提示信息
func ConnectedMessage(host string) string {
	return "SSH connection to " + host + " established successfully"
}
