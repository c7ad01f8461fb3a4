package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
)

var valid = validator.New()

// EnvPrefix 环境变量前缀（AGENT_SERVER_ADDR -> server.addr）
const EnvPrefix = "AGENT"

// Config 进程级静态配置（模块启用与模块选项由 Store 在 reload 时读取）
type Config struct {
	Server ServerConfig `yaml:"server" mapstructure:"server" comment:"管理HTTP服务配置"`
	Log    ZapLogConfig `yaml:"log" mapstructure:"log" comment:"日志配置"`
	Host   HostConfig   `yaml:"host" mapstructure:"host" comment:"宿主主循环配置"`
	Watch  bool         `yaml:"watch" mapstructure:"watch" env:"AGENT_WATCH" comment:"配置文件变更时自动reload" default:"false"`
}

// ServerConfig 管理HTTP服务配置（/metrics /health /-/reload）
type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr" env:"AGENT_SERVER_ADDR" validate:"required,hostname_port" comment:"HTTP监听地址（格式：ip:port）"`
	ReadTimeout  time.Duration `yaml:"read-timeout" mapstructure:"read-timeout" env:"AGENT_SERVER_READ_TIMEOUT" validate:"required,gt=0" comment:"读取超时时间（如5s）"`
	WriteTimeout time.Duration `yaml:"write-timeout" mapstructure:"write-timeout" env:"AGENT_SERVER_WRITE_TIMEOUT" validate:"required,gt=0" comment:"写入超时时间（如10s）"`
	IdleTimeout  time.Duration `yaml:"idle-timeout" mapstructure:"idle-timeout" env:"AGENT_SERVER_IDLE_TIMEOUT" validate:"required,gt=0" comment:"空闲连接超时时间（如15s）"`
}

// HostConfig 宿主主循环配置，scrape-interval-ticks 以 tick 为单位
type HostConfig struct {
	TickDuration time.Duration `yaml:"tick-duration" mapstructure:"tick-duration" env:"AGENT_HOST_TICK_DURATION" validate:"required,gt=0" comment:"单个tick时长" default:"50ms"`
}

// ZapLogConfig 日志配置，Path 为空时只输出到标准输出
type ZapLogConfig struct {
	Level     string `yaml:"level" mapstructure:"level" env:"AGENT_LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal" comment:"日志级别" default:"info"`
	Format    string `yaml:"format" mapstructure:"format" env:"AGENT_LOG_FORMAT" validate:"required,oneof=json console" comment:"标准输出日志格式（json/console）" default:"console"`
	Path      string `yaml:"path" mapstructure:"path" env:"AGENT_LOG_PATH" comment:"日志存储路径" default:"./logs"`
	MaxSize   int    `yaml:"max-size" mapstructure:"max-size" env:"AGENT_LOG_MAX_SIZE" validate:"gte=0" comment:"单个日志文件最大大小（MB）" default:"100"`
	MaxBackup int    `yaml:"max-backup" mapstructure:"max-backup" env:"AGENT_LOG_MAX_BACKUP" validate:"gte=0" comment:"日志文件最大备份数" default:"30"`
	MaxAge    int    `yaml:"max-age" mapstructure:"max-age" env:"AGENT_LOG_MAX_AGE" validate:"gte=0" comment:"日志文件最大保存天数" default:"7"`
}

// NewDefaultConfig 创建默认配置（所有字段兜底，避免空指针/非法值）
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "127.0.0.1:9108",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  15 * time.Second,
		},
		Log: ZapLogConfig{
			Level:     "info",
			Format:    "console",
			Path:      "./logs",
			MaxSize:   100,
			MaxBackup: 30,
			MaxAge:    7,
		},
		Host: HostConfig{
			TickDuration: 50 * time.Millisecond,
		},
		Watch: false,
	}
}

// LoadConfigWithCli 支持 time.Duration，(Flags + YAML + ENV)
// 返回的 Store 保留 flag 绑定，reload 时重新读取同一个配置文件。
func LoadConfigWithCli(cmd *cobra.Command) (*Config, *Store, error) {
	configFile, _ := cmd.Flags().GetString("config")
	store := NewStore(configFile, cmd.Flags())
	if err := store.Load(); err != nil {
		return nil, nil, err
	}

	cfg := NewDefaultConfig()
	if err := store.Decode(cfg); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, store, nil
}

// newDecoder 解码器（支持 time.Duration 与逗号分隔切片）
func newDecoder(result any) (*mapstructure.Decoder, error) {
	return mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           result,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
}

// ValidateStruct 使用 validate tag 校验任意结构体（模块选项复用）
func ValidateStruct(v any) error {
	return valid.Struct(v)
}

// Validate 配置校验
func (c *Config) Validate() error {
	if err := valid.Struct(c); err != nil {
		return err
	}
	// 	1,校验Server服务配置
	if err := c.Server.Validate(); err != nil {
		return err
	}
	// 	2，校验宿主配置
	if err := c.Host.Validate(); err != nil {
		return err
	}
	// 	3，校验日志配置
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return nil
}
