package config

const (
	defaultJWTSecret = "change-me-in-production"
	defaultAESKey    = "0123456789abcdef0123456789abcdef"
)

// defaults 键为 viper 路径；需要通过环境变量覆盖的键必须在此登记
var defaults = map[string]interface{}{
	"server.name":             "school-portal-backend",
	"server.mode":             "debug",
	"server.port":             8000,
	"server.read_timeout":     30,
	"server.write_timeout":    30,
	"server.shutdown_timeout": 10,
	"server.trusted_proxies":  []string{},

	"database.driver":            "postgres",
	"database.host":              "localhost",
	"database.port":              5432,
	"database.user":              "postgres",
	"database.password":          "postgres",
	"database.name":              "school_portal",
	"database.sslmode":           "disable",
	"database.timezone":          "Africa/Lagos",
	"database.max_idle_conns":    10,
	"database.max_open_conns":    50,
	"database.conn_max_lifetime": 60,
	"database.log_mode":          false,
	"database.slow_threshold":    200,
	"database.migrations_table":  "schema_migrations",

	"redis.host":           "localhost",
	"redis.port":           6379,
	"redis.password":       "",
	"redis.db":             0,
	"redis.pool_size":      50,
	"redis.min_idle_conns": 5,
	"redis.dial_timeout":   5,
	"redis.read_timeout":   3,
	"redis.write_timeout":  3,

	"mqtt.enabled":          false,
	"mqtt.username":         "",
	"mqtt.password":         "",
	"mqtt.broker":           "tcp://localhost:1883",
	"mqtt.client_id_prefix": "school-portal-",
	"mqtt.keep_alive":       60,
	"mqtt.auto_reconnect":   true,
	"mqtt.connect_timeout":  10,
	"mqtt.qos":              1,
	"mqtt.topic_prefix":     "school-portal/",

	"kafka.enabled": false,
	"kafka.brokers": []string{"localhost:9092"},
	"kafka.topic":   "portal.notifications",

	"jwt.secret":               defaultJWTSecret,
	"jwt.access_token_expire":  24,
	"jwt.refresh_token_expire": 168,
	"jwt.issuer":               "school-portal",

	"crypto.aes_key":     defaultAESKey,
	"crypto.bcrypt_cost": 10,

	"sms.provider":          "mock",
	"sms.region_id":         "cn-hangzhou",
	"sms.access_key_id":     "",
	"sms.access_key_secret": "",
	"sms.sign_name":         "",

	"paystack.base_url":     "https://api.paystack.co",
	"paystack.secret_key":   "",
	"paystack.callback_url": "",
	"paystack.timeout":      10,
	"paystack.currency":     "NGN",

	"oss.provider":          "aliyun",
	"oss.endpoint":          "",
	"oss.access_key_id":     "",
	"oss.access_key_secret": "",
	"oss.bucket":            "",
	"oss.custom_domain":     "",
	"oss.upload_dir":        "payment-evidence/",
	"oss.max_file_size":     10 << 20,

	"logger.level":       "debug",
	"logger.format":      "console",
	"logger.output":      "stdout",
	"logger.file_path":   "./logs/app.log",
	"logger.max_size":    100,
	"logger.max_backups": 10,
	"logger.max_age":     30,
	"logger.compress":    true,
	"logger.caller":      true,

	"metrics.enabled":   true,
	"metrics.namespace": "school_portal",
	"metrics.path":      "/metrics",

	"tracing.enabled":      false,
	"tracing.endpoint":     "",
	"tracing.service_name": "school-portal-backend",
	"tracing.sample_rate":  1.0,

	"ratelimit.enabled":            true,
	"ratelimit.track_per_minute":   30,
	"ratelimit.login_per_minute":   10,
	"ratelimit.default_per_minute": 120,

	// 开发环境放开来源，发布模式需要显式配置
	"cors.allowed_origins":   []string{"*"},
	"cors.allowed_methods":   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
	"cors.allowed_headers":   []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
	"cors.exposed_headers":   []string{"X-Request-ID"},
	"cors.allow_credentials": false,
	"cors.max_age":           86400,

	"business.referral.attribution_window_days": 90,
	"business.referral.dedup_by_ip":             true,
	"business.commission.default_rate":          10.0,
	"business.withdrawal.min_amount":            5000.0,
	"business.pricing.volume_threshold":         100,
	"business.pricing.volume_discount_pct":      20.0,
	"business.portal.public_url":                "http://localhost:5173",
	"business.portal.affiliate_link_path":       "/?ref=",
}
