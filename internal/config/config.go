package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/sshcollectorpro/devsession/pkg/device"
	"github.com/sshcollectorpro/devsession/pkg/logger"
	sshpkg "github.com/sshcollectorpro/devsession/pkg/ssh"
)

// EnvPrefix 环境变量前缀，例如 DEVSESSION_SSH_BATCH_DEADLINE=20s
const EnvPrefix = "DEVSESSION"

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	SSH      SSHConfig      `mapstructure:"ssh"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	SimulateEnable bool          `mapstructure:"simulate_enable"`
	// SimulateConfig 模拟设备配置文件路径
	SimulateConfig string `mapstructure:"simulate_config"`
}

// SSHConfig SSH配置
type SSHConfig struct {
	Port              int           `mapstructure:"port"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	BatchDeadline     time.Duration `mapstructure:"batch_deadline"`
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`
	// LegacyFamilies 默认使用旧版算法档位的设备族
	LegacyFamilies []string `mapstructure:"legacy_families"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

// SQLiteConfig SQLite配置
type SQLiteConfig struct {
	Path            string        `mapstructure:"path"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StorageConfig 会话原始记录归档配置
type StorageConfig struct {
	// Backend none | local | minio
	Backend string             `mapstructure:"backend"`
	Local   LocalStorageConfig `mapstructure:"local"`
	Minio   MinioConfig        `mapstructure:"minio"`
}

// LocalStorageConfig 本地归档目录
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// MinioConfig 对象存储配置
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Secure    bool   `mapstructure:"secure"`
	Prefix    string `mapstructure:"prefix"`
}

var (
	globalConfig *Config
	globalMu     sync.RWMutex
)

// Load 加载配置文件；configPath 为空时按默认目录查找 config.yaml
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 设置默认值
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 兼容旧键名：storage.storage_backend -> storage.backend
	if strings.TrimSpace(config.Storage.Backend) == "" && v.IsSet("storage.storage_backend") {
		config.Storage.Backend = strings.TrimSpace(v.GetString("storage.storage_backend"))
	}

	config = replaceEnvVars(config)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	globalMu.Lock()
	globalConfig = &config
	globalMu.Unlock()
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	// 写超时需覆盖连接超时 + 批次截止时间
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.simulate_enable", false)
	v.SetDefault("server.simulate_config", "simulate/simulate.yaml")

	v.SetDefault("ssh.port", 22)
	v.SetDefault("ssh.connect_timeout", 10*time.Second)
	v.SetDefault("ssh.batch_deadline", sshpkg.DefaultDeadline)
	v.SetDefault("ssh.keep_alive_interval", time.Duration(0))
	v.SetDefault("ssh.legacy_families", []string{"switch", "router", "firewall"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.file_path", "./logs/devsession.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)

	v.SetDefault("database.sqlite.path", "./data/devsession.db")
	v.SetDefault("database.sqlite.max_idle_conns", 5)
	v.SetDefault("database.sqlite.max_open_conns", 1)
	v.SetDefault("database.sqlite.conn_max_lifetime", time.Hour)

	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.local.base_dir", "./data/transcripts")
	v.SetDefault("storage.minio.bucket", "devsession")
	v.SetDefault("storage.minio.prefix", "transcripts")
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Backend) {
	case "", "none", "local", "minio":
	default:
		return fmt.Errorf("invalid storage.backend %q (want none|local|minio)", c.Storage.Backend)
	}
	if c.SSH.Port <= 0 || c.SSH.Port > 65535 {
		return fmt.Errorf("invalid ssh.port %d", c.SSH.Port)
	}
	if c.SSH.BatchDeadline < 0 || c.SSH.ConnectTimeout < 0 {
		return fmt.Errorf("ssh timeouts must not be negative")
	}
	return nil
}

// Get 获取全局配置
func Get() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalConfig
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LoggerConfig 转换为日志初始化参数
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		Output:     c.Log.Output,
		FilePath:   c.Log.FilePath,
		MaxSize:    c.Log.MaxSize,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAge,
		Compress:   c.Log.Compress,
	}
}

// ClientConfig 转换为单次会话的 SSH 参数
func (s SSHConfig) ClientConfig() *sshpkg.Config {
	return &sshpkg.Config{
		Timeout:   s.ConnectTimeout,
		Deadline:  s.BatchDeadline,
		KeepAlive: s.KeepAliveInterval,
	}
}

// IsLegacy 设备族是否默认使用旧版算法档位
func (s SSHConfig) IsLegacy(f device.Family) bool {
	return f.In(s.LegacyFamilies)
}

// replaceEnvVars 替换配置中的 ${VAR} 形式的环境变量引用
func replaceEnvVars(config Config) Config {
	config.Storage.Minio.AccessKey = expandEnv(config.Storage.Minio.AccessKey)
	config.Storage.Minio.SecretKey = expandEnv(config.Storage.Minio.SecretKey)
	config.Storage.Minio.Endpoint = expandEnv(config.Storage.Minio.Endpoint)
	return config
}

func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}
