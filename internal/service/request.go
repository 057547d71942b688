package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest 请求参数校验失败
var ErrInvalidRequest = errors.New("invalid request")

// Request 入站会话请求
type Request struct {
	Hostname string   `json:"hostname"`
	Port     int      `json:"port"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Commands []string `json:"commands"`
	// DeviceFamily switch|router|firewall|linux|windows|unknown，兼容 cisco_ 前缀
	DeviceFamily    string `json:"deviceFamily"`
	ElevationSecret string `json:"elevationSecret"`
	// ForceLegacyShellMode 强制使用 Shell Replay
	ForceLegacyShellMode bool `json:"forceLegacyShellMode"`
}

// Normalize 去除首尾空白，丢弃空命令行
func (r *Request) Normalize() {
	r.Hostname = strings.TrimSpace(r.Hostname)
	r.Username = strings.TrimSpace(r.Username)
	cmds := make([]string, 0, len(r.Commands))
	for _, c := range r.Commands {
		if c = strings.TrimSpace(c); c != "" {
			cmds = append(cmds, c)
		}
	}
	r.Commands = cmds
}

// Validate 校验必填字段
func (r *Request) Validate() error {
	if r.Hostname == "" {
		return fmt.Errorf("%w: hostname is required", ErrInvalidRequest)
	}
	if r.Username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidRequest)
	}
	if r.Port < 0 || r.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidRequest, r.Port)
	}
	return nil
}
