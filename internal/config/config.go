package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 全局配置
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Session  SessionConfig  `yaml:"session"`
	Redis    RedisConfig    `yaml:"redis"`
	Gate     GateConfig     `yaml:"gate"`
	Health   HealthConfig   `yaml:"health"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig 网关服务器配置
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Mode         string `yaml:"mode"` // debug, release
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`

	/* CORS 跨域配置 */
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"` /* 允许的来源列表，["*"] 表示允许所有（仅开发环境） */

	/* WebSocket 配置 */
	WSMaxConnections int `yaml:"ws_max_connections"` /* 重连推送最大连接数，0 表示不限制 */
}

// UpstreamConfig 预约平台后端配置
type UpstreamConfig struct {
	BaseURL      string `yaml:"base_url"`      // 后端 API 根地址
	LivenessPath string `yaml:"liveness_path"` // 存活探测路径
	LoginPath    string `yaml:"login_path"`    // 凭据认证路径
	WhoAmIPath   string `yaml:"whoami_path"`   // 当前用户解析路径

	WhoAmITimeout  int `yaml:"whoami_timeout"`  // 角色解析超时（秒），默认 6
	RequestTimeout int `yaml:"request_timeout"` // 其余请求超时（秒），默认 10

	/* 后端冷启动吸收：首次角色解析返回 5xx 时的重试预算 */
	RetryAttempts int `yaml:"retry_attempts"` // 最大尝试次数，默认 10
	RetryInterval int `yaml:"retry_interval"` // 重试间隔（秒），默认 1
}

// SessionConfig 会话存储配置
type SessionConfig struct {
	Backend string `yaml:"backend"` // 存储后端: memory, redis
	TabTTL  int    `yaml:"tab_ttl"` // 标签页闲置过期时间（分钟），默认 720
}

// RedisConfig Redis 配置（session.backend = redis 时使用）
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns"`
	MaxRetries   int    `yaml:"max_retries"`
}

// GateConfig 认证闸门配置
type GateConfig struct {
	/*
		后端不可达时是否允许凭本地缓存的 admin 角色放行进入管理区。
		缓存角色未经后端确认，与令牌无密码学绑定，存在越权风险，
		默认关闭；开启后会与令牌自带的 claims 交叉校验作为缓解。
	*/
	AllowCachedAdminFallback bool `yaml:"allow_cached_admin_fallback"`
}

// HealthConfig 健康探测配置
type HealthConfig struct {
	PollInterval int `yaml:"poll_interval"` // 探测周期（秒），默认 7
	ProbeTimeout int `yaml:"probe_timeout"` // 单次探测超时（秒），默认 5
	ProgressTick int `yaml:"progress_tick"` // 恢复进度步进周期（毫秒），默认 150
	ProgressStep int `yaml:"progress_step"` // 每步进度增量，默认 4
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Format     string `yaml:"format"`      // json, console
	OutputPath string `yaml:"output_path"` // 日志文件路径
	MaxSize    int    `yaml:"max_size"`    // 单个日志文件大小(MB)
	MaxBackups int    `yaml:"max_backups"` // 保留的旧日志文件数量
	MaxAge     int    `yaml:"max_age"`     // 保留天数
	Compress   bool   `yaml:"compress"`    // 是否压缩
}

// LoadConfig 从文件加载配置
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.warnInsecureDefaults()
	return config, nil
}

/*
warnInsecureDefaults 检查生产环境下是否使用了不安全的配置
功能：在 release 模式下对 CORS 通配、缓存角色回退等输出警告，
提醒运维人员及时收紧，避免上线后被利用。
*/
func (c *Config) warnInsecureDefaults() {
	if c.Server.Mode != "release" {
		return
	}

	if c.Gate.AllowCachedAdminFallback {
		fmt.Println("[SECURITY WARNING] 生产环境启用了缓存角色回退（gate.allow_cached_admin_fallback），" +
			"后端不可达时将凭未验证的本地角色放行管理区，请确认风险后再使用")
	}
	for _, o := range c.Server.CORSAllowedOrigins {
		if o == "*" {
			fmt.Println("[SECURITY WARNING] 生产环境 CORS 允许所有来源（*），请配置具体域名白名单 server.cors_allowed_origins")
			break
		}
	}
}

// LoadConfigOrDefault 加载配置或使用默认值
func LoadConfigOrDefault(path string) *Config {
	if path == "" {
		return DefaultConfig()
	}

	config, err := LoadConfig(path)
	if err != nil {
		fmt.Printf("Failed to load config: %v, using defaults\n", err)
		return DefaultConfig()
	}

	return config
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8080,
			Mode:               "debug",
			ReadTimeout:        30,
			WriteTimeout:       30,
			CORSAllowedOrigins: []string{"*"}, /* 开发模式默认允许所有，生产环境应改为具体域名 */
			WSMaxConnections:   1000,
		},
		Upstream: UpstreamConfig{
			BaseURL:        "http://localhost:9000",
			LivenessPath:   "/actuator/health",
			LoginPath:      "/api/auth/login",
			WhoAmIPath:     "/api/auth/me",
			WhoAmITimeout:  6,
			RequestTimeout: 10,
			RetryAttempts:  10,
			RetryInterval:  1,
		},
		Session: SessionConfig{
			Backend: "memory",
			TabTTL:  720,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			Password:     "",
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 3,
			MaxRetries:   3,
		},
		Gate: GateConfig{
			AllowCachedAdminFallback: false,
		},
		Health: HealthConfig{
			PollInterval: 7,
			ProbeTimeout: 5,
			ProgressTick: 150,
			ProgressStep: 4,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "./logs/vaxgate.log",
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		},
	}
}

// SaveConfig 保存配置到文件
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	/* 0600：仅所有者可读写，配置文件可能含 Redis 密码等敏感信息 */
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
