package config

import (
	"fmt"
	"time"
)

// ServerConfig HTTP 服务
type ServerConfig struct {
	Name            string `mapstructure:"name"`
	Mode            string `mapstructure:"mode" validate:"oneof=debug release test"`
	Port            int    `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     int    `mapstructure:"read_timeout"`
	WriteTimeout    int    `mapstructure:"write_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
	// 反向代理地址或网段；为空时不信任 X-Forwarded-For
	TrustedProxies []string `mapstructure:"trusted_proxies" validate:"omitempty,dive,ip|cidr"`
}

// DatabaseConfig driver 为 postgres 或 sqlite
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	Name            string `mapstructure:"name" validate:"required"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 分钟
	LogMode         bool   `mapstructure:"log_mode"`
	SlowThreshold   int    `mapstructure:"slow_threshold"` // 毫秒
	MigrationsTable string `mapstructure:"migrations_table"`
}

// DSN gorm postgres 驱动连接串
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode, d.Timezone)
}

// URL postgres:// 形式连接串
func (d *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// RedisConfig 超时单位为秒
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db" validate:"min=0,max=15"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  int    `mapstructure:"dial_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// Addr host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MQTTConfig 通知事件发布到 MQTT
type MQTTConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Broker         string `mapstructure:"broker" validate:"required_if=Enabled true"`
	ClientIDPrefix string `mapstructure:"client_id_prefix"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	KeepAlive      int    `mapstructure:"keep_alive"`
	AutoReconnect  bool   `mapstructure:"auto_reconnect"`
	ConnectTimeout int    `mapstructure:"connect_timeout"`
	QoS            byte   `mapstructure:"qos" validate:"max=2"`
	TopicPrefix    string `mapstructure:"topic_prefix"`
}

// KafkaConfig 通知事件发布到 Kafka
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers" validate:"required_if=Enabled true"`
	Topic   string   `mapstructure:"topic" validate:"required_if=Enabled true"`
}

// JWTConfig 有效期单位为小时
type JWTConfig struct {
	Secret             string `mapstructure:"secret" validate:"required"`
	AccessTokenExpire  int    `mapstructure:"access_token_expire" validate:"gt=0"`
	RefreshTokenExpire int    `mapstructure:"refresh_token_expire" validate:"gtfield=AccessTokenExpire"`
	Issuer             string `mapstructure:"issuer"`
}

func (j *JWTConfig) AccessTokenDuration() time.Duration {
	return time.Duration(j.AccessTokenExpire) * time.Hour
}

func (j *JWTConfig) RefreshTokenDuration() time.Duration {
	return time.Duration(j.RefreshTokenExpire) * time.Hour
}

// CryptoConfig aes_key 为 32 字节，用于加密银行账号
type CryptoConfig struct {
	AESKey     string `mapstructure:"aes_key" validate:"len=32"`
	BcryptCost int    `mapstructure:"bcrypt_cost" validate:"min=4,max=31"`
}

// SMSConfig provider: aliyun | mock | none
type SMSConfig struct {
	Provider        string            `mapstructure:"provider" validate:"omitempty,oneof=aliyun mock none"`
	AccessKeyID     string            `mapstructure:"access_key_id"`
	AccessKeySecret string            `mapstructure:"access_key_secret"`
	SignName        string            `mapstructure:"sign_name"`
	RegionID        string            `mapstructure:"region_id"`
	Templates       map[string]string `mapstructure:"templates"`
}

// PaystackConfig 超时单位为秒
type PaystackConfig struct {
	BaseURL     string `mapstructure:"base_url" validate:"url"`
	SecretKey   string `mapstructure:"secret_key"`
	CallbackURL string `mapstructure:"callback_url"`
	Timeout     int    `mapstructure:"timeout" validate:"gt=0"`
	Currency    string `mapstructure:"currency" validate:"len=3"`
}

func (p *PaystackConfig) TimeoutDuration() time.Duration {
	return time.Duration(p.Timeout) * time.Second
}

// OSSConfig 付款凭证存储，provider 为 mock 时保存在内存
type OSSConfig struct {
	Provider        string `mapstructure:"provider" validate:"oneof=aliyun mock"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	Bucket          string `mapstructure:"bucket"`
	CustomDomain    string `mapstructure:"custom_domain"`
	UploadDir       string `mapstructure:"upload_dir"`
	MaxFileSize     int64  `mapstructure:"max_file_size" validate:"gt=0"`
}

// LoggerConfig output: stdout | file | both
type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=console json"`
	Output     string `mapstructure:"output" validate:"oneof=stdout file both"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // 天
	Compress   bool   `mapstructure:"compress"`
	Caller     bool   `mapstructure:"caller"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path" validate:"startswith=/"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// RateLimitConfig 每分钟请求数，按客户端 IP 计
type RateLimitConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	TrackPerMin   int  `mapstructure:"track_per_minute"`
	LoginPerMin   int  `mapstructure:"login_per_minute"`
	DefaultPerMin int  `mapstructure:"default_per_minute"`
}

// CORSConfig 来源支持 https://*.example.com 子域通配
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"` // 秒
}

// BusinessConfig 推广与定价规则
type BusinessConfig struct {
	Referral   ReferralConfig   `mapstructure:"referral"`
	Commission CommissionConfig `mapstructure:"commission"`
	Withdrawal WithdrawalConfig `mapstructure:"withdrawal"`
	Pricing    PricingConfig    `mapstructure:"pricing"`
	Portal     PortalConfig     `mapstructure:"portal"`
}

type ReferralConfig struct {
	AttributionWindowDays int  `mapstructure:"attribution_window_days" validate:"gt=0"`
	DedupByIP             bool `mapstructure:"dedup_by_ip"`
}

// AttributionWindow 最近访问可被归因的时长
func (r *ReferralConfig) AttributionWindow() time.Duration {
	return time.Duration(r.AttributionWindowDays) * 24 * time.Hour
}

// CommissionConfig 新推广员的默认佣金比例（百分比）
type CommissionConfig struct {
	DefaultRate float64 `mapstructure:"default_rate" validate:"gte=0,lte=100"`
}

// WithdrawalConfig 最低提现金额（奈拉）
type WithdrawalConfig struct {
	MinAmount float64 `mapstructure:"min_amount" validate:"gt=0"`
}

// PricingConfig 学生数达到阈值后享受批量折扣
type PricingConfig struct {
	VolumeThreshold   int     `mapstructure:"volume_threshold" validate:"gte=0"`
	VolumeDiscountPct float64 `mapstructure:"volume_discount_pct" validate:"gte=0,lt=100"`
}

// PortalConfig 生成推广链接用的前端地址
type PortalConfig struct {
	PublicURL         string `mapstructure:"public_url" validate:"url"`
	AffiliateLinkPath string `mapstructure:"affiliate_link_path"`
}
