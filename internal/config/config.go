// Package config предоставляет структуры и функции для парсинга и загрузки конфига.
//
// Конфиг читается один раз при старте процесса и дальше передаётся компонентам
// явно; после загрузки он используется только на чтение.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Окружения запуска.
const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

// Config общая структура для хранения настроек.
type Config struct {
	Env                     string `yaml:"env" env:"ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Stripe                  Stripe   `yaml:"stripe"`
	Billing                 Billing  `yaml:"billing"`
	Access                  Access   `yaml:"access"`
	RabbitMQ                RabbitMQ `yaml:"rabbitmq"`
	SMTP                    SMTP     `yaml:"smtp"`
}

// HTTPServer структура для настройки сервера.
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
	// AccessTTL время жизни снимка доступа в кеше.
	AccessTTL time.Duration `yaml:"access_ttl" env-default:"30s"`
}

// JWTToken структура для работы с jwt-токеном.
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
	CookieName   string        `yaml:"cookie_name" env-default:"access_token"`
}

// Stripe настройки платёжного провайдера.
type Stripe struct {
	SecretKey      string        `yaml:"secret_key" env:"STRIPE_SECRET_KEY"`
	WebhookSecret  string        `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
	PriceID        string        `yaml:"price_id" env:"STRIPE_PRICE_ID"`
	RequestTimeout time.Duration `yaml:"request_timeout" env-default:"10s"`
}

// Billing настройки пробного периода и маршрутов возврата из оплаты.
type Billing struct {
	TrialDays int `yaml:"trial_days" env-default:"14"`
	// PublicURL внешний адрес сервиса, из него строятся success/cancel URL для checkout.
	PublicURL  string `yaml:"public_url" env-default:"http://localhost:8080"`
	SuccessURL string `yaml:"success_url" env-default:"/app/billing?checkout=success"`
	ErrorURL   string `yaml:"error_url" env-default:"/billing/checkout-error"`
	CancelURL  string `yaml:"cancel_url" env-default:"/app/billing?checkout=canceled"`
	// TrialSweepInterval период прохода по истёкшим пробным периодам.
	TrialSweepInterval time.Duration `yaml:"trial_sweep_interval" env-default:"1h"`
	// TrialReminderWindow за сколько до конца пробного периода отправлять напоминание.
	TrialReminderWindow time.Duration `yaml:"trial_reminder_window" env-default:"24h"`
}

// Access настройки шлюза доступа.
type Access struct {
	ProtectedPrefix string `yaml:"protected_prefix" env-default:"/app"`
	SignInURL       string `yaml:"sign_in_url" env-default:"/login"`
	ExpiredURL      string `yaml:"expired_url" env-default:"/subscription-expired"`
	Bypass          Bypass `yaml:"bypass"`
}

// Bypass явный список пользователей, которых шлюз пропускает вне продакшена.
type Bypass struct {
	Enabled  bool     `yaml:"enabled"`
	UserUIDs []string `yaml:"user_uids"`
}

// RabbitMQ настройки очереди уведомлений.
type RabbitMQ struct {
	URL        string        `yaml:"url" env:"RABBITMQ_URL"`
	MaxRetries int           `yaml:"max_retries" env-default:"5"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
}

// SMTP настройки отправки писем.
type SMTP struct {
	Host string `yaml:"host"`
	Port string `yaml:"port" env-default:"587"`
	User string `yaml:"user" env:"SMTP_USER"`
	Pass string `yaml:"pass" env:"SMTP_PASS"`
}

// Load читает конфиг из файла и переменных окружения и проверяет его.
func Load(configPath string) (*Config, error) {
	const op = "config.Load"

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad функция для загрузки конфига по пути из CONFIG_PATH, завершает процесс при ошибке.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// IsProduction сообщает, запущен ли процесс в продакшене.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, EnvProd)
}

// Validate проверяет сочетания настроек, которые нельзя допустить.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Env) {
	case EnvLocal, EnvDev, EnvProd:
	default:
		errs = append(errs, fmt.Errorf("unknown env %q", c.Env))
	}
	if c.IsProduction() && c.Access.Bypass.Enabled {
		errs = append(errs, errors.New("access bypass must not be enabled in prod"))
	}
	if c.Env != EnvLocal {
		if c.JWTSecretKey == "" {
			errs = append(errs, errors.New("jwt secret key is required"))
		}
		if c.Stripe.WebhookSecret == "" {
			errs = append(errs, errors.New("stripe webhook secret is required"))
		}
	}
	if c.Billing.TrialDays < 0 {
		errs = append(errs, errors.New("trial_days must not be negative"))
	}
	if c.Billing.TrialSweepInterval < 0 || c.Billing.TrialReminderWindow < 0 {
		errs = append(errs, errors.New("trial_sweep_interval and trial_reminder_window must not be negative"))
	}
	return errors.Join(errs...)
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString: %s\n"+
			"Redis: %s (db %d)\n"+
			"HTTPServer: %s timeout=%s idle=%s\n"+
			"Stripe: price=%s timeout=%s secret_set=%t webhook_secret_set=%t\n"+
			"Billing: trial_days=%d public_url=%s\n"+
			"Access: prefix=%s bypass=%t\n",
		c.Env,
		redact(c.StorageConnectionString),
		c.AddressRedis, c.DB,
		c.AddressHTTP, c.TimeoutHTTP, c.IdleTimeout,
		c.Stripe.PriceID, c.Stripe.RequestTimeout, c.Stripe.SecretKey != "", c.Stripe.WebhookSecret != "",
		c.Billing.TrialDays, c.Billing.PublicURL,
		c.Access.ProtectedPrefix, c.Access.Bypass.Enabled,
	)
}

func redact(dsn string) string {
	if i := strings.Index(dsn, "@"); i > 0 {
		if j := strings.Index(dsn, "://"); j >= 0 && j < i {
			return dsn[:j+3] + "***" + dsn[i:]
		}
	}
	return dsn
}
