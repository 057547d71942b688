package ssh

import (
	"regexp"
	"strings"
)

// 输出末尾残留的提示符行（如 "switch1#"、"R1>exit"、"user@host:~$"）
var trailingPromptRe = regexp.MustCompile(`(?:^|\n)[^\s>#$]*[>#$] ?(?:exit)?[ \t]*\z`)

// Segment 根据命令回显位置将 shell 原始记录切分为（命令，输出）条目
//
// 每条命令在剩余记录中查找首次出现位置，未找到则跳过该命令（不产生条目）。
// 输出范围为回显结束处到下一条可定位命令所在行的行首（最后一条命令取到记录末尾）。
// 处理完一条命令后，从工作副本中移除命令文本及其输出范围，避免相同命令重复匹配已消费区域。
func Segment(transcript string, commands []string) []Entry {
	entries := make([]Entry, 0, len(commands)*2)
	working := transcript

	for i, command := range commands {
		if command == "" {
			continue
		}
		idx := strings.Index(working, command)
		if idx < 0 {
			continue
		}
		start := idx + len(command)
		end := nextBoundary(working, start, commands[i+1:])

		output := strings.TrimSpace(trimTrailingPrompt(working[start:end]))
		entries = append(entries, CommandEntry(command))
		if output != "" {
			entries = append(entries, OutputEntry(output))
		}

		working = working[:idx] + working[end:]
	}
	return entries
}

// nextBoundary 返回下一条可定位命令所在行的行首位置；均未找到时返回记录长度
func nextBoundary(working string, from int, rest []string) int {
	for _, next := range rest {
		if next == "" {
			continue
		}
		rel := strings.Index(working[from:], next)
		if rel < 0 {
			continue
		}
		pos := from + rel
		// 回退到行首，排除下一条命令前的提示符
		if nl := strings.LastIndexByte(working[from:pos], '\n'); nl >= 0 {
			return from + nl + 1
		}
		return pos
	}
	return len(working)
}

func trimTrailingPrompt(s string) string {
	trimmed := strings.TrimRight(s, " \t\r\n")
	loc := trailingPromptRe.FindStringIndex(trimmed)
	if loc == nil || loc[1] != len(trimmed) {
		return s
	}
	return trimmed[:loc[0]]
}
