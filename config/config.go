package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env      string `mapstructure:"env"`
	HTTPPort string `mapstructure:"http_port"`

	DB struct {
		Host string `mapstructure:"host"`
		Port string `mapstructure:"port"`
		User string `mapstructure:"user"`
		Pass string `mapstructure:"pass"`
		Name string `mapstructure:"name"`
	} `mapstructure:"db"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`

	Kafka struct {
		Broker   string `mapstructure:"broker"`
		JobTopic string `mapstructure:"job_topic"`
	} `mapstructure:"kafka"`

	JWTSecret string `mapstructure:"jwt_secret"`

	Stripe struct {
		APIKey        string `mapstructure:"api_key"`
		WebhookSecret string `mapstructure:"webhook_secret"`
	} `mapstructure:"stripe"`

	PayPal struct {
		ClientID  string `mapstructure:"client_id"`
		Secret    string `mapstructure:"secret"`
		WebhookID string `mapstructure:"webhook_id"`
		APIBase   string `mapstructure:"api_base"`
	} `mapstructure:"paypal"`

	SMTP struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
		User string `mapstructure:"user"`
		Pass string `mapstructure:"pass"`
		From string `mapstructure:"from"`
	} `mapstructure:"smtp"`

	Webhook struct {
		// SkipVerify bypasses signature checks for local testing.
		// Ignored outright when Env is production.
		SkipVerify bool `mapstructure:"skip_verify"`
	} `mapstructure:"webhook"`

	Reconcile struct {
		MaxAttempts uint          `mapstructure:"max_attempts"`
		BaseBackoff time.Duration `mapstructure:"base_backoff"`
		MaxElapsed  time.Duration `mapstructure:"max_elapsed"`
	} `mapstructure:"reconcile"`

	Outbox struct {
		PollInterval time.Duration `mapstructure:"poll_interval"`
		BatchSize    int           `mapstructure:"batch_size"`
		MaxAttempts  int           `mapstructure:"max_attempts"`
		BaseBackoff  time.Duration `mapstructure:"base_backoff"`
	} `mapstructure:"outbox"`

	// PlatformFeeBps is the marketplace cut applied to seller
	// transfers. The product ships with a 0% fee.
	PlatformFeeBps int64 `mapstructure:"platform_fee_bps"`

	CheckoutLinkTTL time.Duration `mapstructure:"checkout_link_ttl"`
	BaseURL         string        `mapstructure:"base_url"`
}

func (c *Config) Production() bool { return c.Env == "production" }

func (c *Config) DSN() string {
	return "host=" + c.DB.Host + " user=" + c.DB.User + " password=" + c.DB.Pass +
		" dbname=" + c.DB.Name + " port=" + c.DB.Port + " sslmode=disable TimeZone=UTC"
}

// Load reads configuration from the environment with sane local-dev
// defaults. Keys map to env vars with dots replaced by underscores,
// e.g. stripe.webhook_secret -> STRIPE_WEBHOOK_SECRET.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "development")
	v.SetDefault("http_port", "3009")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.pass", "postgres")
	v.SetDefault("db.name", "marketdb")

	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("redis.password", "")

	v.SetDefault("kafka.broker", "kafka:9092")
	v.SetDefault("kafka.job_topic", "order.jobs")

	v.SetDefault("jwt_secret", "dev-secret")

	v.SetDefault("paypal.api_base", "https://api-m.paypal.com")

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "orders@m4ktaba.com")

	v.SetDefault("webhook.skip_verify", false)

	v.SetDefault("reconcile.max_attempts", 8)
	v.SetDefault("reconcile.base_backoff", 500*time.Millisecond)
	v.SetDefault("reconcile.max_elapsed", 30*time.Second)

	v.SetDefault("outbox.poll_interval", time.Second)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.max_attempts", 5)
	v.SetDefault("outbox.base_backoff", 2*time.Second)

	v.SetDefault("platform_fee_bps", 0)

	v.SetDefault("checkout_link_ttl", 24*time.Hour)
	v.SetDefault("base_url", "http://localhost:3000")

	// viper only consults the environment for keys it already
	// knows; secrets carry no defaults, so they must be bound
	// explicitly or they can never be set at all.
	for _, key := range []string{
		"stripe.api_key",
		"stripe.webhook_secret",
		"paypal.client_id",
		"paypal.secret",
		"paypal.webhook_id",
		"smtp.host",
		"smtp.user",
		"smtp.pass",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
