package internal

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EventsDriverLog   = "log"
	EventsDriverKafka = "kafka"
	EventsDriverSQS   = "sqs"

	LockDriverMemory = "memory"
	LockDriverRedis  = "redis"
)

// DefaultWebhookAllowedIPs are the published source addresses of Paystack
// webhook deliveries.
var DefaultWebhookAllowedIPs = []string{"52.31.139.75", "52.49.173.169", "52.214.14.220"}

var DefaultPaymentChannels = []string{"card", "bank", "ussd", "qr", "mobile_money", "bank_transfer"}

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`
	Events        EventsConfig        `mapstructure:"events"`
	Lock          LockConfig          `mapstructure:"lock"`
	Reconcile     ReconcileConfig     `mapstructure:"reconcile"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTPrivateKey       string        `mapstructure:"jwt_private_key" validate:"required"`
	JWTPublicKey        string        `mapstructure:"jwt_public_key" validate:"required"`
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration" validate:"required,min=1m"`
	BCryptCost          int           `mapstructure:"bcrypt_cost" validate:"min=4,max=15"`
}

type GatewayConfig struct {
	BaseURL         string        `mapstructure:"base_url" validate:"required,url"`
	SecretKey       string        `mapstructure:"secret_key" validate:"required"`
	PublicKey       string        `mapstructure:"public_key"`
	CallbackURL     string        `mapstructure:"callback_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	DefaultChannels []string      `mapstructure:"default_channels"`
}

type WebhookConfig struct {
	// Secret falls back to the gateway secret key when empty.
	Secret            string   `mapstructure:"secret"`
	SignatureHeader   string   `mapstructure:"signature_header"`
	AllowedIPs        []string `mapstructure:"allowed_ips"`
	VerifySourceIP    bool     `mapstructure:"verify_source_ip"`
	TrustProxyHeaders bool     `mapstructure:"trust_proxy_headers"`
}

type EventsConfig struct {
	Driver string      `mapstructure:"driver" validate:"oneof=log kafka sqs"`
	Kafka  KafkaConfig `mapstructure:"kafka"`
	SQS    SQSConfig   `mapstructure:"sqs"`
}

type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

type SQSConfig struct {
	Region          string `mapstructure:"region"`
	QueueURL        string `mapstructure:"queue_url"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type LockConfig struct {
	Driver      string        `mapstructure:"driver" validate:"oneof=memory redis"`
	TTL         time.Duration `mapstructure:"ttl"`
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
	Redis       RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ReconcileConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxWorkers   int           `mapstructure:"max_workers"`
	JobQueueSize int           `mapstructure:"job_queue_size"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// LoadConfigFromEnv builds the configuration for container deployments where
// no config.yml is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("HTTP_BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("HTTP_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Security: SecurityConfig{
			JWTPrivateKey:       getEnv("JWT_PRIVATE_KEY", ""),
			JWTPublicKey:        getEnv("JWT_PUBLIC_KEY", ""),
			AccessTokenDuration: getEnvAsDuration("ACCESS_TOKEN_DURATION", 24*time.Hour),
			BCryptCost:          getEnvAsInt("BCRYPT_COST", 12),
		},
		Gateway: GatewayConfig{
			BaseURL:         getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
			SecretKey:       getEnv("PAYSTACK_SECRET_KEY", ""),
			PublicKey:       getEnv("PAYSTACK_PUBLIC_KEY", ""),
			CallbackURL:     getEnv("PAYSTACK_CALLBACK_URL", ""),
			Timeout:         getEnvAsDuration("PAYSTACK_TIMEOUT", 15*time.Second),
			DefaultChannels: getEnvAsList("PAYSTACK_CHANNELS", DefaultPaymentChannels),
		},
		Webhook: WebhookConfig{
			Secret:            getEnv("WEBHOOK_SECRET", ""),
			SignatureHeader:   getEnv("WEBHOOK_SIGNATURE_HEADER", "x-paystack-signature"),
			AllowedIPs:        getEnvAsList("WEBHOOK_ALLOWED_IPS", DefaultWebhookAllowedIPs),
			VerifySourceIP:    getEnvAsBool("WEBHOOK_VERIFY_SOURCE_IP", true),
			TrustProxyHeaders: getEnvAsBool("WEBHOOK_TRUST_PROXY_HEADERS", false),
		},
		Events: EventsConfig{
			Driver: getEnv("EVENTS_DRIVER", EventsDriverLog),
			Kafka: KafkaConfig{
				Brokers:  getEnvAsList("KAFKA_BROKERS", nil),
				Topic:    getEnv("KAFKA_TOPIC", "payment-events"),
				ClientID: getEnv("KAFKA_CLIENT_ID", "payment-reconciler"),
			},
			SQS: SQSConfig{
				Region:          getEnv("AWS_REGION", "us-east-1"),
				QueueURL:        getEnv("SQS_QUEUE_URL", ""),
				Endpoint:        getEnv("SQS_ENDPOINT", ""),
				AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
				SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			},
		},
		Lock: LockConfig{
			Driver:      getEnv("LOCK_DRIVER", LockDriverMemory),
			TTL:         getEnvAsDuration("LOCK_TTL", 30*time.Second),
			WaitTimeout: getEnvAsDuration("LOCK_WAIT_TIMEOUT", 20*time.Second),
			Redis: RedisConfig{
				Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvAsInt("REDIS_DB", 0),
			},
		},
		Reconcile: ReconcileConfig{
			Interval:     getEnvAsDuration("RECONCILE_INTERVAL", time.Minute),
			StaleAfter:   getEnvAsDuration("RECONCILE_STALE_AFTER", 15*time.Minute),
			BatchSize:    getEnvAsInt("RECONCILE_BATCH_SIZE", 50),
			MaxWorkers:   getEnvAsInt("RECONCILE_MAX_WORKERS", 4),
			JobQueueSize: getEnvAsInt("RECONCILE_JOB_QUEUE_SIZE", 100),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Gateway.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("gateway config: %v", err))
	}

	if err := c.Webhook.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("webhook config: %v", err))
	}

	if err := c.Events.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("events config: %v", err))
	}

	if err := c.Lock.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("lock config: %v", err))
	}

	if err := c.Lock.ValidateAgainst(c.Gateway); err != nil {
		errs = append(errs, fmt.Sprintf("lock config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if _, err := c.GetPrivateKey(); err != nil {
		return fmt.Errorf("invalid JWT private key: %w", err)
	}
	if _, err := c.GetPublicKey(); err != nil {
		return fmt.Errorf("invalid JWT public key: %w", err)
	}
	if c.AccessTokenDuration <= 0 {
		return errors.New("access_token_duration must be positive")
	}
	return nil
}

func (c *SecurityConfig) GetPrivateKey() (*rsa.PrivateKey, error) {
	keyData, err := base64.StdEncoding.DecodeString(c.JWTPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("failed to parse PEM block")
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func (c *SecurityConfig) GetPublicKey() (*rsa.PublicKey, error) {
	keyData, err := base64.StdEncoding.DecodeString(c.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("failed to parse PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return rsaPub, nil
}

func (c *GatewayConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if c.SecretKey == "" {
		return errors.New("secret_key is required")
	}
	if c.Timeout < 0 {
		return errors.New("timeout cannot be negative")
	}
	return nil
}

func (c *GatewayConfig) Channels() []string {
	if len(c.DefaultChannels) == 0 {
		return DefaultPaymentChannels
	}
	return c.DefaultChannels
}

func (c *WebhookConfig) Validate() error {
	for _, ip := range c.AllowedIPs {
		if net.ParseIP(strings.TrimSpace(ip)) == nil {
			return fmt.Errorf("invalid allowed ip %q", ip)
		}
	}
	return nil
}

// ResolveSecret returns the webhook signing secret, defaulting to the
// gateway secret key the way Paystack signs deliveries.
func (c *WebhookConfig) ResolveSecret(gateway GatewayConfig) string {
	if c.Secret != "" {
		return c.Secret
	}
	return gateway.SecretKey
}

func (c *WebhookConfig) Header() string {
	if c.SignatureHeader == "" {
		return "x-paystack-signature"
	}
	return c.SignatureHeader
}

func (c *WebhookConfig) SourceAllowList() []string {
	if !c.VerifySourceIP {
		return nil
	}
	if len(c.AllowedIPs) == 0 {
		return DefaultWebhookAllowedIPs
	}
	return c.AllowedIPs
}

func (c *EventsConfig) Validate() error {
	switch c.Driver {
	case "", EventsDriverLog:
	case EventsDriverKafka:
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers is required for the kafka driver")
		}
		if c.Kafka.Topic == "" {
			return errors.New("kafka.topic is required for the kafka driver")
		}
	case EventsDriverSQS:
		if c.SQS.Region == "" {
			return errors.New("sqs.region is required for the sqs driver")
		}
	default:
		return fmt.Errorf("unknown events driver %q", c.Driver)
	}
	return nil
}

func (c *LockConfig) Validate() error {
	switch c.Driver {
	case "", LockDriverMemory:
	case LockDriverRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown lock driver %q", c.Driver)
	}
	return nil
}

// ValidateAgainst requires a lock holder to outlive one gateway call, so a
// waiter is not turned away while the holder is still verifying.
func (c *LockConfig) ValidateAgainst(gateway GatewayConfig) error {
	if gateway.Timeout <= 0 {
		return nil
	}
	if c.WaitTimeout > 0 && c.WaitTimeout <= gateway.Timeout {
		return fmt.Errorf("wait_timeout (%s) must exceed gateway.timeout (%s)", c.WaitTimeout, gateway.Timeout)
	}
	if c.TTL > 0 && c.TTL <= gateway.Timeout {
		return fmt.Errorf("ttl (%s) must exceed gateway.timeout (%s)", c.TTL, gateway.Timeout)
	}
	return nil
}
