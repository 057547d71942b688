package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
)

// DefaultDeadline 命令批次开始后的强制断开时间
const DefaultDeadline = 10 * time.Second

var (
	// ErrNotConnected 连接未建立或已关闭
	ErrNotConnected = errors.New("SSH connection not established")
	// ErrDeadline 批次截止时间到达，连接被强制关闭
	ErrDeadline = errors.New("SSH batch deadline exceeded")
)

// 旧版设备固件所需的算法档位（兼容老 IOS）
var (
	legacyKeyExchanges = []string{
		"diffie-hellman-group1-sha1",
		"ecdh-sha2-nistp256",
		"ecdh-sha2-nistp384",
		"ecdh-sha2-nistp521",
		"diffie-hellman-group-exchange-sha256",
		"diffie-hellman-group14-sha1",
	}
	legacyCiphers = []string{
		"3des-cbc",
		"aes128-cbc",
		"aes128-ctr",
		"aes192-ctr",
		"aes256-ctr",
		"aes128-gcm@openssh.com",
		"aes256-gcm@openssh.com",
	}
	legacyHostKeyAlgorithms = []string{
		"ssh-rsa",
		"ecdsa-sha2-nistp256",
		"ecdsa-sha2-nistp384",
		"ecdsa-sha2-nistp521",
	}
	legacyMACs = []string{
		"hmac-sha2-256",
		"hmac-sha2-512",
		"hmac-sha1",
	}
)

// Config 会话配置
type Config struct {
	Timeout   time.Duration `yaml:"timeout"`
	Deadline  time.Duration `yaml:"deadline"`
	KeepAlive time.Duration `yaml:"keep_alive"`
}

// ConnectionInfo SSH连接信息
type ConnectionInfo struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	// Legacy 使用旧版算法档位协商
	Legacy bool `json:"legacy"`
}

// Address 返回 host:port
func (i *ConnectionInfo) Address() string {
	port := i.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(i.Host, fmt.Sprintf("%d", port))
}

// ConnectionError 连接阶段错误（拨号、握手/算法协商、认证）
type ConnectionError struct {
	Host  string
	Stage string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Host, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Client 单次请求使用的 SSH 会话，不跨请求复用
type Client struct {
	config     *Config
	info       *ConnectionInfo
	connection *ssh.Client
	mutex      sync.Mutex

	deadlineOnce sync.Once
	timer        *time.Timer
	expired      atomic.Bool
	stopKeep     context.CancelFunc
}

// NewClient 创建SSH客户端
func NewClient(config *Config) *Client {
	if config == nil {
		config = &Config{}
	}
	return &Client{config: config}
}

// clientConfig 构建 ssh.ClientConfig；Legacy 时显式给出旧算法列表
func clientConfig(info *ConnectionInfo, timeout time.Duration) *ssh.ClientConfig {
	cfg := &ssh.ClientConfig{
		User:            info.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
		Auth: []ssh.AuthMethod{
			ssh.Password(info.Password),
			// 部分 Cisco 固件只开放 keyboard-interactive，统一以密码应答
			ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = info.Password
				}
				return answers, nil
			}),
		},
	}
	if info.Legacy {
		cfg.KeyExchanges = legacyKeyExchanges
		cfg.Ciphers = legacyCiphers
		cfg.MACs = legacyMACs
		cfg.HostKeyAlgorithms = legacyHostKeyAlgorithms
	}
	return cfg
}

// Connect 建立连接并完成认证；失败时不保留任何连接
func (c *Client) Connect(ctx context.Context, info *ConnectionInfo) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.info = info
	address := info.Address()

	dialer := &net.Dialer{Timeout: c.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return &ConnectionError{Host: address, Stage: "dial", Err: err}
	}

	// 握手阶段同样受连接超时约束
	if c.config.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.config.Timeout))
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, clientConfig(info, c.config.Timeout))
	if err != nil {
		conn.Close()
		stage := "handshake"
		if strings.Contains(err.Error(), "unable to authenticate") {
			stage = "auth"
		}
		return &ConnectionError{Host: address, Stage: stage, Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	c.connection = ssh.NewClient(sshConn, chans, reqs)

	if c.config.KeepAlive > 0 {
		kctx, cancel := context.WithCancel(context.Background())
		c.stopKeep = cancel
		go c.keepAlive(kctx)
	}
	return nil
}

// Info 返回连接参数
func (c *Client) Info() *ConnectionInfo {
	return c.info
}

// StartDeadline 命令批次开始时调用；只生效一次，到期强制关闭底层连接
func (c *Client) StartDeadline() {
	c.deadlineOnce.Do(func() {
		d := c.config.Deadline
		if d <= 0 {
			d = DefaultDeadline
		}
		c.mutex.Lock()
		c.timer = time.AfterFunc(d, func() {
			c.expired.Store(true)
			_ = c.Close()
		})
		c.mutex.Unlock()
	})
}

// Expired 截止时间是否已触发
func (c *Client) Expired() bool {
	return c.expired.Load()
}

// Err 截止时间触发后返回 ErrDeadline
func (c *Client) Err() error {
	if c.Expired() {
		return ErrDeadline
	}
	return nil
}

// newSessionWithRetry 创建会话（带重试）
// 部分网络设备在快速连续打开通道时返回 "administratively prohibited"，短暂退避后重试
func (c *Client) newSessionWithRetry() (*ssh.Session, error) {
	c.mutex.Lock()
	conn := c.connection
	c.mutex.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	backoffs := []time.Duration{0, 200 * time.Millisecond, 500 * time.Millisecond}
	var lastErr error
	for _, d := range backoffs {
		if d > 0 {
			time.Sleep(d)
		}
		sess, err := conn.NewSession()
		if err == nil {
			return sess, nil
		}
		lastErr = err
		msg := strings.ToLower(err.Error())
		if !strings.Contains(msg, "administratively prohibited") && !strings.Contains(msg, "open failed") {
			break
		}
	}
	return nil, lastErr
}

// Close 关闭SSH连接，可重复调用
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.timer != nil {
		c.timer.Stop()
	}
	if c.stopKeep != nil {
		c.stopKeep()
		c.stopKeep = nil
	}
	if c.connection != nil {
		err := c.connection.Close()
		c.connection = nil
		return err
	}
	return nil
}

// IsConnected 检查连接状态
func (c *Client) IsConnected() bool {
	c.mutex.Lock()
	conn := c.connection
	c.mutex.Unlock()
	if conn == nil {
		return false
	}
	// 发送 keepalive 请求而不创建会话，避免触发设备的会话数量限制
	_, _, err := conn.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

// keepAlive 保持连接活跃，连接失效时主动关闭
func (c *Client) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(c.config.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.IsConnected() {
				_ = c.Close()
				return
			}
		}
	}
}
