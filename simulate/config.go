package simulate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config simulate.yaml 配置：每台模拟设备独立端口
type Config struct {
	Password string                   `mapstructure:"password"`
	Devices  map[string]DeviceProfile `mapstructure:"devices"`
}

// DeviceProfile 模拟设备行为描述
type DeviceProfile struct {
	Port         int    `mapstructure:"port"`
	Family       string `mapstructure:"family"`
	PromptSuffix string `mapstructure:"prompt_suffix"`
	EnableSecret string `mapstructure:"enable_secret"`
	// SingleExec 完成一次独立执行后断开整个连接（部分 Cisco 固件的行为）
	SingleExec bool `mapstructure:"single_exec"`
	// OutputsDir 命令输出文件目录，文件名为命令（空格替换为下划线）加 .txt
	OutputsDir string            `mapstructure:"outputs_dir"`
	Outputs    map[string]string `mapstructure:"outputs"`
	Stderr     map[string]string `mapstructure:"stderr"`
	// RejectExec 拒绝这些命令的 exec 请求
	RejectExec []string `mapstructure:"reject_exec"`
	// NoEcho shell 中不回显这些命令
	NoEcho []string `mapstructure:"no_echo"`
	// StallAfter shell 处理 N 条命令后停止响应（N<=0 不生效）
	StallAfter int `mapstructure:"stall_after"`
	// IgnoreExit shell 收到 exit 后不关闭通道
	IgnoreExit bool `mapstructure:"ignore_exit"`
	// HostKeyType ed25519（默认）或 ecdsa，老设备只提供 ecdsa/rsa 主机密钥
	HostKeyType string `mapstructure:"host_key_type"`
}

// LoadConfig 读取 simulate.yaml
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetDefault("password", "nova")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read simulate config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal simulate config: %w", err)
	}
	return &cfg, nil
}

// isCisco 非 linux 设备均按 Cisco 风格 CLI 处理
func (p *DeviceProfile) isCisco() bool {
	return !strings.EqualFold(strings.TrimSpace(p.Family), "linux")
}

func (p *DeviceProfile) promptSuffix() string {
	if p.PromptSuffix != "" {
		return p.PromptSuffix
	}
	if p.isCisco() {
		return ">"
	}
	return "$ "
}

// output 查找命令输出：先查内联配置，再查输出目录
func (p *DeviceProfile) output(cmd string) (string, bool) {
	if out, ok := p.Outputs[cmd]; ok {
		return out, true
	}
	if p.OutputsDir == "" {
		return "", false
	}
	for _, name := range []string{cmd, strings.ReplaceAll(cmd, " ", "_")} {
		if bs, err := os.ReadFile(filepath.Join(p.OutputsDir, name+".txt")); err == nil {
			return string(bs), true
		}
	}
	return "", false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
