package simulate

import (
	"bufio"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/sshcollectorpro/devsession/pkg/logger"
)

// Server 单台模拟设备的 SSH 服务
type Server struct {
	name     string
	password string
	profile  DeviceProfile
	hostKey  ssh.Signer
	listener net.Listener
	wg       sync.WaitGroup
	execs    atomic.Int64

	// mu 保护 conns 与 closed，保证 Stop 之后不再登记新连接
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// NewServer 创建模拟设备，host key 每次启动随机生成
func NewServer(name, password string, profile DeviceProfile) (*Server, error) {
	signer, err := generateHostKey(profile.HostKeyType)
	if err != nil {
		return nil, fmt.Errorf("failed to init host key: %w", err)
	}
	return &Server{name: name, password: password, profile: profile, hostKey: signer}, nil
}

func generateHostKey(keyType string) (ssh.Signer, error) {
	var key crypto.Signer
	var err error
	switch strings.ToLower(keyType) {
	case "ecdsa":
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	default:
		_, key, err = ed25519.GenerateKey(rand.Reader)
	}
	if err != nil {
		return nil, err
	}
	return ssh.NewSignerFromSigner(key)
}

// Start 在 addr 上监听，addr 为 "127.0.0.1:0" 时随机端口
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	logger.Debug("Simulate: listener started", "device", s.name, "addr", ln.Addr().String())

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			if !s.track(conn) {
				_ = conn.Close()
				return
			}
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.untrack(c)
				s.handleConn(c)
			}(conn)
		}
	}()
	return nil
}

// track 登记连接；服务已停止时返回 false
func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.conns == nil {
		s.conns = make(map[net.Conn]struct{})
	}
	s.wg.Add(1)
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// Port 返回监听端口
func (s *Server) Port() int {
	if s.listener == nil {
		return 0
	}
	return s.listener.Addr().(*net.TCPAddr).Port
}

// ExecCount 已处理的 exec 请求数
func (s *Server) ExecCount() int {
	return int(s.execs.Load())
}

// Stop 停止监听，断开现有连接并等待处理结束
func (s *Server) Stop() {
	s.mu.Lock()
	s.closed = true
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) handleConn(nc net.Conn) {
	check := func(pass string) (*ssh.Permissions, error) {
		if pass == s.password {
			return nil, nil
		}
		return nil, fmt.Errorf("access denied")
	}
	srvCfg := &ssh.ServerConfig{
		PasswordCallback: func(_ ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			return check(string(password))
		},
		KeyboardInteractiveCallback: func(md ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := challenge(md.User(), "", []string{"Password:"}, []bool{false})
			if err != nil {
				return nil, err
			}
			if len(answers) == 0 {
				return nil, fmt.Errorf("access denied")
			}
			return check(answers[0])
		},
	}
	srvCfg.AddHostKey(s.hostKey)

	conn, chans, reqs, err := ssh.NewServerConn(nc, srvCfg)
	if err != nil {
		logger.Debug("Simulate: handshake failed", "device", s.name, "error", err)
		_ = nc.Close()
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)

	for ch := range chans {
		if ch.ChannelType() != "session" {
			_ = ch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := ch.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(conn, channel, requests)
	}
}

func (s *Server) handleSession(conn *ssh.ServerConn, channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		switch req.Type {
		case "pty-req", "env", "window-change":
			_ = req.Reply(true, nil)
		case "shell":
			_ = req.Reply(true, nil)
			s.runShell(conn, channel)
			return
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				return
			}
			s.execs.Add(1)
			if contains(s.profile.RejectExec, payload.Command) {
				_ = req.Reply(false, nil)
				return
			}
			_ = req.Reply(true, nil)
			s.runExec(channel, payload.Command)
			if s.profile.SingleExec {
				// 模拟设备在一次独立执行后断开整个连接
				channel.Close()
				conn.Close()
			}
			return
		default:
			_ = req.Reply(false, nil)
		}
	}
}

func (s *Server) runExec(channel ssh.Channel, cmd string) {
	status := uint32(0)
	if out, ok := s.profile.output(cmd); ok {
		_, _ = io.WriteString(channel, out)
	}
	if errOut, ok := s.profile.Stderr[cmd]; ok {
		_, _ = io.WriteString(channel.Stderr(), errOut)
		status = 1
	}
	_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
}

// runShell Cisco 风格交互：提示符 + 回显 + 输出，支持 enable 提权与 exit
func (s *Server) runShell(conn *ssh.ServerConn, channel ssh.Channel) {
	suffix := s.profile.promptSuffix()
	prompt := func() {
		_, _ = io.WriteString(channel, s.name+suffix)
	}
	prompt()

	reader := bufio.NewReader(channel)
	handled := 0
	for {
		line, err := reader.ReadString('\n')
		cmd := strings.TrimSpace(strings.ReplaceAll(line, "\r", ""))
		if err != nil && cmd == "" {
			return
		}

		if s.profile.StallAfter > 0 && handled >= s.profile.StallAfter {
			// 停止响应但保持通道打开，直到客户端断开
			_, _ = io.Copy(io.Discard, channel)
			_ = conn.Wait()
			return
		}
		handled++

		if !contains(s.profile.NoEcho, cmd) {
			_, _ = io.WriteString(channel, cmd+"\r\n")
		}

		switch {
		case cmd == "":
		case cmd == "exit" || cmd == "quit":
			if s.profile.IgnoreExit {
				_, _ = io.Copy(io.Discard, channel)
				_ = conn.Wait()
				return
			}
			_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
			return
		case cmd == "enable" && s.profile.EnableSecret != "":
			_, _ = io.WriteString(channel, "Password: ")
			pwd, _ := reader.ReadString('\n')
			s.applyEnable(channel, strings.TrimSpace(pwd), &suffix)
		case strings.HasPrefix(cmd, "enable ") && s.profile.EnableSecret != "":
			s.applyEnable(channel, strings.TrimSpace(strings.TrimPrefix(cmd, "enable ")), &suffix)
		default:
			if out, ok := s.profile.output(cmd); ok {
				_, _ = io.WriteString(channel, crlf(out))
			} else if s.profile.isCisco() {
				_, _ = io.WriteString(channel, "% Invalid input detected at '^' marker.\r\n")
			}
			if errOut, ok := s.profile.Stderr[cmd]; ok {
				_, _ = io.WriteString(channel.Stderr(), crlf(errOut))
			}
		}
		prompt()
	}
}

func (s *Server) applyEnable(channel ssh.Channel, secret string, suffix *string) {
	if secret != s.profile.EnableSecret {
		_, _ = io.WriteString(channel, "% Bad secrets\r\n")
		return
	}
	*suffix = "#"
}

// crlf 统一为 CRLF 并保证以换行结尾
func crlf(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")
	if !strings.HasSuffix(s, "\r\n") {
		s += "\r\n"
	}
	return s
}

// Manager 按配置启动多台模拟设备
type Manager struct {
	mu      sync.Mutex
	servers map[string]*Server
}

// Start 启动配置中的全部模拟设备，单台失败不影响其它设备
func Start(cfg *Config) (*Manager, error) {
	m := &Manager{servers: make(map[string]*Server)}
	for name, profile := range cfg.Devices {
		srv, err := NewServer(name, cfg.Password, profile)
		if err != nil {
			return nil, err
		}
		if err := srv.Start(fmt.Sprintf(":%d", profile.Port)); err != nil {
			logger.Error("Simulate: start device failed", "device", name, "port", profile.Port, "error", err)
			continue
		}
		m.servers[name] = srv
		logger.Info("Simulate: device started", "device", name, "port", profile.Port, "family", profile.Family)
	}
	return m, nil
}

// Reload 按新配置重启全部模拟设备
func (m *Manager) Reload(cfg *Config) error {
	m.Stop()
	next, err := Start(cfg)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.servers = next.servers
	m.mu.Unlock()
	return nil
}

// Ports 设备名到监听端口
func (m *Manager) Ports() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.servers))
	for name, srv := range m.servers {
		out[name] = srv.Port()
	}
	return out
}

// Stop 停止全部模拟设备
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	done := make(chan struct{})
	go func() {
		for _, srv := range m.servers {
			srv.Stop()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn("Simulate: stop timed out")
	}
	m.servers = make(map[string]*Server)
}
