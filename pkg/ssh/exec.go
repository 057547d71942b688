package ssh

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/sshcollectorpro/devsession/internal/util"
)

// CommandResult 单条命令执行结果
type CommandResult struct {
	Command  string        `json:"command"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// ExecuteCommand 以独立会话执行单个命令
// 返回错误表示执行请求本身失败（通道或 exec 请求被拒绝）；命令非零退出不视为错误
func (c *Client) ExecuteCommand(command string) (*CommandResult, error) {
	startTime := time.Now()
	result := &CommandResult{Command: command}

	session, err := c.newSessionWithRetry()
	if err != nil {
		result.ExitCode = -1
		return result, err
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	err = session.Run(command)
	result.Duration = time.Since(startTime)
	result.Stdout = util.EnsureUTF8Bytes(stdout.Bytes())
	result.Stderr = util.EnsureUTF8Bytes(stderr.Bytes())

	var exitErr *ssh.ExitError
	var missingErr *ssh.ExitMissingError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitStatus()
	case errors.As(err, &missingErr):
		result.ExitCode = -1
	default:
		result.ExitCode = -1
		return result, err
	}
	return result, nil
}

// DirectExec 逐条命令独立执行，严格顺序
// 每条命令产生一个命令条目，随后是一个输出或错误条目；stderr 非空时以错误为准。
// 某条命令执行请求失败时记录错误条目并继续后续命令。
func (c *Client) DirectExec(commands []string) []Entry {
	if len(commands) == 0 {
		return []Entry{OutputEntry(ConnectedMessage(c.info.Host))}
	}
	c.StartDeadline()

	entries := make([]Entry, 0, len(commands)*2)
	for _, command := range commands {
		entries = append(entries, CommandEntry(command))

		result, err := c.ExecuteCommand(command)
		if err != nil {
			if c.Expired() {
				err = fmt.Errorf("%w: %v", ErrDeadline, err)
			}
			entries = append(entries, ErrorEntry(fmt.Sprintf("Error executing \"%s\": %v", command, err)))
			continue
		}
		if stderr := strings.TrimSpace(result.Stderr); stderr != "" {
			entries = append(entries, ErrorEntry(stderr))
			continue
		}
		entries = append(entries, OutputEntry(strings.TrimSpace(result.Stdout)))
	}
	return entries
}
