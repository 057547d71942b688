package ssh

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"github.com/sshcollectorpro/devsession/internal/util"
)

// ElevationKeyword 提权关键字，与提权密码拼接为一行命令
const ElevationKeyword = "enable"

const maskedSecret = "******"

// transcriptWriter 按到达顺序汇总 stdout/stderr，并单独保留 stderr
type transcriptWriter struct {
	mu     sync.Mutex
	all    bytes.Buffer
	stderr bytes.Buffer
}

func (w *transcriptWriter) writer(isErr bool) io.Writer {
	return writerFunc(func(p []byte) (int, error) {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.all.Write(p)
		if isErr {
			w.stderr.Write(p)
		}
		return len(p), nil
	})
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// ShellResult Shell Replay 的原始记录与切分结果
type ShellResult struct {
	Transcript string
	Stderr     string
	Entries    []Entry
}

// ShellReplay 在单个交互通道中依次写入全部命令与 exit，等待通道关闭（或截止时间触发）后按回显切分
// elevationSecret 非空时先执行 "enable <secret>"，其结果置于返回条目最前
func (c *Client) ShellReplay(commands []string, elevationSecret string) *ShellResult {
	if len(commands) == 0 && elevationSecret == "" {
		return &ShellResult{Entries: []Entry{OutputEntry(ConnectedMessage(c.info.Host))}}
	}
	c.StartDeadline()

	lines := make([]string, 0, len(commands)+1)
	if elevationSecret != "" {
		lines = append(lines, ElevationKeyword+" "+elevationSecret)
	}
	lines = append(lines, commands...)

	session, err := c.newSessionWithRetry()
	if err != nil {
		return &ShellResult{Entries: []Entry{ErrorEntry(fmt.Sprintf("Shell error: %v", err))}}
	}
	defer session.Close()

	stdin, stdout, stderr, err := shellPipes(session)
	if err != nil {
		return &ShellResult{Entries: []Entry{ErrorEntry(fmt.Sprintf("Shell error: %v", err))}}
	}

	// 宽终端避免长命令回显被设备折行，保证回显可按原文定位
	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	_ = session.RequestPty("vt100", 24, 511, modes)

	if err := session.Shell(); err != nil {
		return &ShellResult{Entries: []Entry{ErrorEntry(fmt.Sprintf("Shell error: %v", err))}}
	}

	tw := &transcriptWriter{}
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(tw.writer(false), stdout)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(tw.writer(true), stderr)
		return err
	})

	for _, line := range lines {
		if _, err := io.WriteString(stdin, line+"\n"); err != nil {
			break
		}
	}
	_, _ = io.WriteString(stdin, "exit\n")
	_ = stdin.Close()

	// 通道关闭或截止时间强制断开后，两路读取均会结束；此时已到达的部分记录按正常关闭处理
	_ = g.Wait()
	_ = session.Wait()

	tw.mu.Lock()
	transcript := util.NormalizeTranscript(tw.all.Bytes())
	stderrText := strings.TrimSpace(util.NormalizeTranscript(tw.stderr.Bytes()))
	tw.mu.Unlock()

	entries := Segment(transcript, lines)
	if elevationSecret != "" {
		entries = maskSecret(entries, elevationSecret)
		transcript = strings.ReplaceAll(transcript, lines[0], ElevationKeyword+" "+maskedSecret)
	}
	if stderrText != "" {
		entries = append(entries, ErrorEntry(stderrText))
	}
	return &ShellResult{Transcript: transcript, Stderr: stderrText, Entries: entries}
}

func shellPipes(session *ssh.Session) (io.WriteCloser, io.Reader, io.Reader, error) {
	stdin, err := session.StdinPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	return stdin, stdout, stderr, nil
}

// maskSecret 提权命令及其输出条目中不保留密码明文
func maskSecret(entries []Entry, secret string) []Entry {
	line := ElevationKeyword + " " + secret
	if len(entries) == 0 || entries[0].Type != EntryCommand || entries[0].Content != line {
		return entries
	}
	entries[0].Content = ElevationKeyword + " " + maskedSecret
	if len(entries) > 1 && entries[1].Type == EntryOutput {
		entries[1].Content = strings.ReplaceAll(entries[1].Content, secret, maskedSecret)
	}
	return entries
}
