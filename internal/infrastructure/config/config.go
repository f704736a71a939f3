package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
// 设计说明：使用Viper管理配置，支持YAML文件、环境变量覆盖
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Log        LogConfig        `mapstructure:"log"`
	MQ         MQConfig         `mapstructure:"mq"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	OMS        OMSConfig        `mapstructure:"oms"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Aftersales AftersalesConfig `mapstructure:"aftersales"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // debug | release | test
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// 存储驱动
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory" // 本地开发，不依赖MySQL/Redis
)

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // mysql | memory
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	Charset         string        `mapstructure:"charset"`
	ParseTime       bool          `mapstructure:"parse_time"`
	Loc             string        `mapstructure:"loc"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN 生成MySQL连接字符串
// 格式：user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local
// 注意：loc参数需要URL编码（Asia/Shanghai → Asia%2FShanghai）
func (d DatabaseConfig) DSN() string {
	loc := url.QueryEscape(d.Loc)
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.Charset, d.ParseTime, loc)
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"` // 关闭时OMS同步锁退化为进程内锁
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr 返回Redis地址
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret            string        `mapstructure:"secret"`
	AccessTokenExpire time.Duration `mapstructure:"access_token_expire"`
}

type LogConfig struct {
	Level        string `mapstructure:"level"`  // debug | info | warn | error
	Format       string `mapstructure:"format"` // console | json
	Output       string `mapstructure:"output"` // stdout | stderr | /path/to/file
	EnableCaller bool   `mapstructure:"enable_caller"`
	MaxSizeMB    int    `mapstructure:"max_size_mb"`
	MaxBackups   int    `mapstructure:"max_backups"`
	MaxAgeDays   int    `mapstructure:"max_age_days"`
	Compress     bool   `mapstructure:"compress"`
}

// MQConfig RabbitMQ配置
// 领域事件发布到EventExchange；OMS推送从OMSQueue消费
type MQConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	URL           string   `mapstructure:"url"`
	EventExchange string   `mapstructure:"event_exchange"`
	OMSExchange   string   `mapstructure:"oms_exchange"`
	OMSQueue      string   `mapstructure:"oms_queue"`
	OMSBindings   []string `mapstructure:"oms_bindings"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"` // OTLP gRPC，如 localhost:4317
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// OMSConfig OMS接入配置
// APIKeyHash为bcrypt哈希，明文密钥只在OMS侧保存
type OMSConfig struct {
	AllowedIPs []string      `mapstructure:"allowed_ips"`
	APIKeyHash string        `mapstructure:"api_key_hash"`
	LockTTL    time.Duration `mapstructure:"lock_ttl"`
}

// GatewayConfig 退款网关
type GatewayConfig struct {
	BaseURL string        `mapstructure:"base_url"` // 为空时使用模拟网关
	Timeout time.Duration `mapstructure:"timeout"`

	BreakerMaxRequests uint32        `mapstructure:"breaker_max_requests"`
	BreakerInterval    time.Duration `mapstructure:"breaker_interval"`
	BreakerTimeout     time.Duration `mapstructure:"breaker_timeout"`
	BreakerFailures    uint32        `mapstructure:"breaker_failures"`
}

// AftersalesConfig 售后业务参数
type AftersalesConfig struct {
	ApprovalTimeout       time.Duration `mapstructure:"approval_timeout"`
	ReturnShipmentTimeout time.Duration `mapstructure:"return_shipment_timeout"`
	ReturnReceiptTimeout  time.Duration `mapstructure:"return_receipt_timeout"`
	MaxModifyCount        int           `mapstructure:"max_modify_count"`
	AutoAdvance           bool          `mapstructure:"auto_advance"`
	RefundTimeout         time.Duration `mapstructure:"refund_timeout"`
	TimeoutBatchSize      int           `mapstructure:"timeout_batch_size"`
	SweepInterval         time.Duration `mapstructure:"sweep_interval"`
	LogRetention          time.Duration `mapstructure:"log_retention"`
	ReturnAddress         AddressConfig `mapstructure:"return_address"`
}

// AddressConfig 商家默认退货地址
type AddressConfig struct {
	Name    string `mapstructure:"name"`
	Phone   string `mapstructure:"phone"`
	Address string `mapstructure:"address"`
}

// Load 加载配置文件
// 支持：
// 1. 默认加载config/config.yaml
// 2. 通过环境变量AFTERSALES_ENV指定环境（如config.prod.yaml）
// 3. 环境变量覆盖（如AFTERSALES_DATABASE_PASSWORD）
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	// 环境变量绑定（AFTERSALES_DATABASE_PASSWORD → database.password）
	v.SetEnvPrefix("AFTERSALES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if env := v.GetString("env"); env != "" {
		v.SetConfigName("config." + env)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults 配置文件缺省项
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", DriverMySQL)
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parse_time", true)
	v.SetDefault("database.loc", "Local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("mq.event_exchange", "aftersales.events")
	v.SetDefault("mq.oms_exchange", "oms.events")
	v.SetDefault("mq.oms_queue", "aftersales.oms.sync")
	v.SetDefault("mq.oms_bindings", []string{"oms.aftersales.*"})
	v.SetDefault("tracing.service_name", "aftersales")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("oms.lock_ttl", 10*time.Second)
	v.SetDefault("gateway.timeout", 5*time.Second)
	v.SetDefault("gateway.breaker_max_requests", 1)
	v.SetDefault("gateway.breaker_interval", time.Minute)
	v.SetDefault("gateway.breaker_timeout", 30*time.Second)
	v.SetDefault("gateway.breaker_failures", 5)
	v.SetDefault("aftersales.approval_timeout", 48*time.Hour)
	v.SetDefault("aftersales.return_shipment_timeout", 7*24*time.Hour)
	v.SetDefault("aftersales.return_receipt_timeout", 10*24*time.Hour)
	v.SetDefault("aftersales.max_modify_count", 3)
	v.SetDefault("aftersales.auto_advance", true)
	v.SetDefault("aftersales.refund_timeout", 30*time.Second)
	v.SetDefault("aftersales.timeout_batch_size", 100)
	v.SetDefault("aftersales.sweep_interval", 5*time.Minute)
	v.SetDefault("aftersales.log_retention", 180*24*time.Hour)
}

// validate 配置校验
func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("无效的服务端口: %d", cfg.Server.Port)
	}

	switch cfg.Database.Driver {
	case DriverMySQL, DriverMemory:
	default:
		return fmt.Errorf("不支持的存储驱动: %s", cfg.Database.Driver)
	}

	if cfg.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret 不能为空")
	}
	if cfg.JWT.Secret == "your-secret-key-change-in-production" && cfg.Server.Mode == "release" {
		return fmt.Errorf("生产环境必须修改JWT密钥")
	}

	if cfg.Server.Mode == "release" && cfg.OMS.APIKeyHash == "" {
		return fmt.Errorf("生产环境必须配置oms.api_key_hash")
	}

	a := cfg.Aftersales
	if a.ApprovalTimeout <= 0 || a.ReturnShipmentTimeout <= 0 || a.ReturnReceiptTimeout <= 0 {
		return fmt.Errorf("售后超时时间必须大于0")
	}
	if a.SweepInterval <= 0 {
		return fmt.Errorf("aftersales.sweep_interval 必须大于0")
	}

	return nil
}
