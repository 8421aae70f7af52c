package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	HTTPClient HTTPClientConfig `mapstructure:"http_client"`
	Log        LogConfig        `mapstructure:"log"`
	Auth       AuthConfig       `mapstructure:"auth"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Functions  FunctionsConfig  `mapstructure:"functions"`
	Stripe     StripeConfig     `mapstructure:"stripe"`
	Mpesa      MpesaConfig      `mapstructure:"mpesa"`
	Pesapal    PesapalConfig    `mapstructure:"pesapal"`
	Alipay     AlipayConfig     `mapstructure:"alipay"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Checkout   CheckoutConfig   `mapstructure:"checkout"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration.
// An empty Host disables the database and orders fall back to memory.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode,
	)
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}
	return dsn
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HTTPClientConfig holds outbound HTTP client configuration.
type HTTPClientConfig struct {
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	ResponseTimeout     time.Duration `mapstructure:"response_timeout"`
	KeepAlive           time.Duration `mapstructure:"keep_alive"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds the hosted auth provider's token settings.
// An empty JWTSecret disables token verification; every request is a guest.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
}

// CORSConfig holds allowed storefront origins.
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// FunctionsConfig holds the hosted serverless function endpoint.
type FunctionsConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

// StripeConfig holds Stripe payment configuration.
type StripeConfig struct {
	SecretKey      string `mapstructure:"secret_key"`
	PublishableKey string `mapstructure:"publishable_key"`
	// APIURL overrides the Stripe API base URL (stripe-mock, tests).
	APIURL string `mapstructure:"api_url"`
}

// MpesaConfig holds M-Pesa configuration.
type MpesaConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	FunctionName string `mapstructure:"function_name"`
	CallbackURL  string `mapstructure:"callback_url"`
}

// PesapalConfig holds Pesapal configuration.
type PesapalConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	FunctionName string `mapstructure:"function_name"`
	CallbackURL  string `mapstructure:"callback_url"`
}

// AlipayConfig holds Alipay payment configuration.
type AlipayConfig struct {
	AppID           string `mapstructure:"app_id"`
	PrivateKey      string `mapstructure:"private_key"`       // RSA2 private key (PEM format)
	AlipayPublicKey string `mapstructure:"alipay_public_key"` // Alipay public key (PEM format)
	IsProd          bool   `mapstructure:"is_prod"`
	NotifyURL       string `mapstructure:"notify_url"`
	ReturnURL       string `mapstructure:"return_url"`
}

// PaymentConfig holds payment orchestration settings.
type PaymentConfig struct {
	// Sandbox registers the test provider and allows simulated completion.
	Sandbox             bool          `mapstructure:"sandbox"`
	SandboxDelay        time.Duration `mapstructure:"sandbox_delay"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	PollSlowInterval    time.Duration `mapstructure:"poll_slow_interval"`
	PollSlowAfter       int           `mapstructure:"poll_slow_after"`
	PollMaxAttempts     int           `mapstructure:"poll_max_attempts"`
	AnalyticsKey        string        `mapstructure:"analytics_key"`
	DefaultCurrency     string        `mapstructure:"default_currency"`
	DefaultProvider     string        `mapstructure:"default_provider"`
	NotificationBacklog int           `mapstructure:"notification_backlog"`
}

// CheckoutConfig holds checkout session and pricing settings.
type CheckoutConfig struct {
	SessionTTL    time.Duration          `mapstructure:"session_ttl"`
	SweepInterval time.Duration          `mapstructure:"sweep_interval"`
	TaxRate       string                 `mapstructure:"tax_rate"`
	CartTTL       time.Duration          `mapstructure:"cart_ttl"`
	Shipping      []ShippingMethodConfig `mapstructure:"shipping"`
}

// ShippingMethodConfig describes one selectable shipping method.
type ShippingMethodConfig struct {
	ID    string `mapstructure:"id"`
	Name  string `mapstructure:"name"`
	Cost  string `mapstructure:"cost"`
	Days  int    `mapstructure:"days"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// RateLimitConfig limits checkout requests per client.
// A non-positive Requests disables limiting.
type RateLimitConfig struct {
	Requests int64         `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// Load loads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/storefront")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults and env
	}

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override with environment variables for sensitive values
	if secret := os.Getenv("STOREFRONT_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if password := os.Getenv("STOREFRONT_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("STOREFRONT_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if key := os.Getenv("STOREFRONT_FUNCTIONS_API_KEY"); key != "" {
		cfg.Functions.APIKey = key
	}
	if secretKey := os.Getenv("STOREFRONT_STRIPE_SECRET_KEY"); secretKey != "" {
		cfg.Stripe.SecretKey = secretKey
	}
	if privateKey := os.Getenv("STOREFRONT_ALIPAY_PRIVATE_KEY"); privateKey != "" {
		cfg.Alipay.PrivateKey = privateKey
	}
	if publicKey := os.Getenv("STOREFRONT_ALIPAY_PUBLIC_KEY"); publicKey != "" {
		cfg.Alipay.AlipayPublicKey = publicKey
	}
	if origins := os.Getenv("STOREFRONT_CORS_ORIGINS"); origins != "" {
		cfg.CORS.AllowOrigins = parseCommaSeparatedList(origins)
	}

	return &cfg, nil
}

func parseCommaSeparatedList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Database defaults (host empty: in-memory orders)
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "storefront")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	// Redis defaults (address empty: in-memory carts and analytics)
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.db", 0)

	// HTTP client defaults
	v.SetDefault("http_client.max_idle_conns", 100)
	v.SetDefault("http_client.max_idle_conns_per_host", 20)
	v.SetDefault("http_client.max_conns_per_host", 50)
	v.SetDefault("http_client.idle_conn_timeout", 90*time.Second)
	v.SetDefault("http_client.dial_timeout", 10*time.Second)
	v.SetDefault("http_client.tls_handshake_timeout", 10*time.Second)
	v.SetDefault("http_client.response_timeout", 30*time.Second)
	v.SetDefault("http_client.keep_alive", 30*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("cors.allow_origins", []string{"*"})

	// Hosted functions defaults
	v.SetDefault("functions.failure_threshold", 5)
	v.SetDefault("functions.open_timeout", 30*time.Second)

	// Provider defaults
	v.SetDefault("mpesa.enabled", false)
	v.SetDefault("mpesa.function_name", "mpesa-payment")
	v.SetDefault("pesapal.enabled", false)
	v.SetDefault("pesapal.function_name", "pesapal-payment")

	// Payment defaults
	v.SetDefault("payment.sandbox", false)
	v.SetDefault("payment.sandbox_delay", 3*time.Second)
	v.SetDefault("payment.poll_interval", 5*time.Second)
	v.SetDefault("payment.poll_slow_interval", 10*time.Second)
	v.SetDefault("payment.poll_slow_after", 10)
	v.SetDefault("payment.poll_max_attempts", 24)
	v.SetDefault("payment.analytics_key", "payment_analytics")
	v.SetDefault("payment.default_currency", "KES")
	v.SetDefault("payment.default_provider", "")
	v.SetDefault("payment.notification_backlog", 32)

	// Checkout defaults
	v.SetDefault("checkout.session_ttl", time.Hour)
	v.SetDefault("checkout.sweep_interval", 5*time.Minute)
	v.SetDefault("checkout.tax_rate", "0.16")
	v.SetDefault("checkout.cart_ttl", 7*24*time.Hour)
	v.SetDefault("checkout.shipping", []map[string]any{
		{"id": "standard", "name": "Standard delivery", "cost": "300", "days": 5},
		{"id": "express", "name": "Express delivery", "cost": "750", "days": 1},
		{"id": "pickup", "name": "Store pickup", "cost": "0", "days": 0},
	})

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "storefront")

	// Rate limit defaults
	v.SetDefault("rate_limit.requests", 60)
	v.SetDefault("rate_limit.window", time.Minute)
}
