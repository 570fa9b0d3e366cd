// Package config 基于 viper 的分层配置：默认值 < 配置文件 < 环境变量
package config

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Crypto    CryptoConfig    `mapstructure:"crypto"`
	SMS       SMSConfig       `mapstructure:"sms"`
	Paystack  PaystackConfig  `mapstructure:"paystack"`
	OSS       OSSConfig       `mapstructure:"oss"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Business  BusinessConfig  `mapstructure:"business"`
}

// Load 读取配置；configPath 为空时依次查找 ./configs/config.yaml 与 ./config.yaml
// 环境变量以下划线分隔层级，如 PAYSTACK_SECRET_KEY 覆盖 paystack.secret_key
func Load(configPath string) (*Config, error) {
	v := newViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !stderrors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Default 仅含默认值的配置，测试与工具使用
func Default() *Config {
	cfg := &Config{}
	_ = newViper().Unmarshal(cfg)
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

// IsDebug 调试模式
func (c *Config) IsDebug() bool {
	return c.Server.Mode == "debug"
}

// IsRelease 发布模式
func (c *Config) IsRelease() bool {
	return c.Server.Mode == "release"
}

// Validate 校验字段取值；发布模式下额外拒绝开发默认密钥
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !c.IsRelease() {
		return nil
	}

	var problems []string
	if c.JWT.Secret == defaultJWTSecret || len(c.JWT.Secret) < 32 {
		problems = append(problems, "jwt.secret must be set to at least 32 characters")
	}
	if c.Crypto.AESKey == defaultAESKey {
		problems = append(problems, "crypto.aes_key must not use the development key")
	}
	if c.Paystack.SecretKey == "" {
		problems = append(problems, "paystack.secret_key is required")
	}
	for _, o := range c.CORS.AllowedOrigins {
		if o == "*" && c.CORS.AllowCredentials {
			problems = append(problems, "cors.allowed_origins cannot be * when allow_credentials is true")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid release config: %s", strings.Join(problems, "; "))
	}
	return nil
}
