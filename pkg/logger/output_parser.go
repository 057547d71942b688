package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// OutputLines 记录的头部和尾部行
type OutputLines struct {
	HeadLines []string `json:"head_lines"`
	TailLines []string `json:"tail_lines"`
}

// ParseOutputLines 提取头尾各 maxLines 行；总行数不超过 maxLines 时尾部为空
func ParseOutputLines(output string, maxLines int) OutputLines {
	if maxLines <= 0 {
		maxLines = 5
	}
	output = strings.ReplaceAll(output, "\r\n", "\n")
	output = strings.TrimRight(output, "\n")
	if output == "" {
		return OutputLines{}
	}

	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return OutputLines{HeadLines: lines}
	}
	head := append([]string(nil), lines[:maxLines]...)
	tailStart := len(lines) - maxLines
	if tailStart < maxLines {
		tailStart = maxLines
	}
	return OutputLines{HeadLines: head, TailLines: append([]string(nil), lines[tailStart:]...)}
}

// FormatOutputLines 格式化为单行字符串
func FormatOutputLines(lines OutputLines) string {
	var parts []string
	if len(lines.HeadLines) > 0 {
		parts = append(parts, "head-lines: ["+strings.Join(lines.HeadLines, " ⟩ ")+"]")
	}
	if len(lines.TailLines) > 0 {
		parts = append(parts, "tail-lines: ["+strings.Join(lines.TailLines, " ⟩ ")+"]")
	}
	return strings.Join(parts, ", ")
}

// DebugTranscript 在 debug 级别记录原始记录的头尾行
func DebugTranscript(label, text string, maxLines int) {
	if !GetLogger().IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	lines := ParseOutputLines(text, maxLines)
	if len(lines.HeadLines) == 0 {
		return
	}
	GetLogger().WithField("label", label).Debug(FormatOutputLines(lines))
}
