// Package config loads runtime settings from an optional env file and the
// process environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port             int
	Env              string
	Debug            bool
	LogPath          string
	OtelCollectorUrl string

	Store   string
	Locker  string
	Payment string

	DB        DBConfig
	Redis     RedisConfig
	SMTP      SMTPConfig
	Stripe    StripeConfig
	Booking   BookingConfig
	RateLimit RateLimitConfig
	Scheduler SchedulerConfig
	Worker    WorkerConfig
}

type DBConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleTime  time.Duration
	Migrate      bool
}

type RedisConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	MaxIdleTime  time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

type StripeConfig struct {
	SecretKey            string
	Currency             string
	SimulatedSuccessRate float64
}

type BookingConfig struct {
	LockWait         time.Duration
	LockLease        time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
}

type RateLimitConfig struct {
	IPLimit     int
	IPWindow    time.Duration
	EmailLimit  int
	EmailWindow time.Duration
}

type SchedulerConfig struct {
	ExpiryInterval     time.Duration
	CompletionInterval time.Duration
	PruneInterval      time.Duration
	CompletionGrace    time.Duration
	BatchSize          int
}

type WorkerConfig struct {
	Size   int
	Policy string
}

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	LockerRedis = "redis"
	LockerLocal = "local"

	PaymentStripe    = "stripe"
	PaymentSimulated = "simulated"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 3000)
	v.SetDefault("ENV", "dev")
	v.SetDefault("DEBUG", false)
	v.SetDefault("LOG_PATH", "logs/")

	v.SetDefault("STORE", StorePostgres)
	v.SetDefault("LOCKER", LockerRedis)
	v.SetDefault("PAYMENT_PROVIDER", PaymentSimulated)

	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_TIME", 15*time.Minute)
	v.SetDefault("DB_MIGRATE", true)

	v.SetDefault("REDIS_MAX_OPEN_CONNS", 25)
	v.SetDefault("REDIS_MAX_IDLE_CONNS", 10)
	v.SetDefault("REDIS_MAX_IDLE_TIME", 2*time.Minute)

	v.SetDefault("SMTP_PORT", 2525)
	v.SetDefault("SMTP_SENDER", "CineX <no-reply@cinex.metinatakli.net>")

	v.SetDefault("STRIPE_CURRENCY", "usd")
	v.SetDefault("SIMULATED_PAYMENT_SUCCESS_RATE", 0.9)

	v.SetDefault("BOOKING_LOCK_WAIT", 100*time.Millisecond)
	v.SetDefault("BOOKING_LOCK_LEASE", 5*time.Second)
	v.SetDefault("RETRY_MAX_ATTEMPTS", 3)
	v.SetDefault("RETRY_BASE_DELAY", 50*time.Millisecond)

	v.SetDefault("RATE_LIMIT_IP", 5)
	v.SetDefault("RATE_LIMIT_IP_WINDOW", time.Minute)
	v.SetDefault("RATE_LIMIT_EMAIL", 3)
	v.SetDefault("RATE_LIMIT_EMAIL_WINDOW", time.Hour)

	v.SetDefault("SWEEP_EXPIRY_INTERVAL", 5*time.Minute)
	v.SetDefault("SWEEP_COMPLETION_INTERVAL", 24*time.Hour)
	v.SetDefault("RATE_LIMIT_PRUNE_INTERVAL", time.Minute)
	v.SetDefault("SWEEP_COMPLETION_GRACE", 2*time.Hour)
	v.SetDefault("SWEEP_BATCH_SIZE", 500)

	v.SetDefault("WORKER_POOL_SIZE", 8)
	v.SetDefault("WORKER_SATURATION_POLICY", "reject")
}

// Load reads settings from path, when given, and from the environment.
// Environment variables take precedence over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.AutomaticEnv()

	cfg := &Config{
		Port:             v.GetInt("PORT"),
		Env:              v.GetString("ENV"),
		Debug:            v.GetBool("DEBUG"),
		LogPath:          v.GetString("LOG_PATH"),
		OtelCollectorUrl: v.GetString("OTEL_COLLECTOR_URL"),
		Store:            v.GetString("STORE"),
		Locker:           v.GetString("LOCKER"),
		Payment:          v.GetString("PAYMENT_PROVIDER"),
		DB: DBConfig{
			DSN:          v.GetString("DB_DSN"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleTime:  v.GetDuration("DB_MAX_IDLE_TIME"),
			Migrate:      v.GetBool("DB_MIGRATE"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("REDIS_URL"),
			MaxOpenConns: v.GetInt("REDIS_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("REDIS_MAX_IDLE_CONNS"),
			MaxIdleTime:  v.GetDuration("REDIS_MAX_IDLE_TIME"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			Sender:   v.GetString("SMTP_SENDER"),
		},
		Stripe: StripeConfig{
			SecretKey:            v.GetString("STRIPE_SECRET_KEY"),
			Currency:             v.GetString("STRIPE_CURRENCY"),
			SimulatedSuccessRate: v.GetFloat64("SIMULATED_PAYMENT_SUCCESS_RATE"),
		},
		Booking: BookingConfig{
			LockWait:         v.GetDuration("BOOKING_LOCK_WAIT"),
			LockLease:        v.GetDuration("BOOKING_LOCK_LEASE"),
			RetryMaxAttempts: v.GetInt("RETRY_MAX_ATTEMPTS"),
			RetryBaseDelay:   v.GetDuration("RETRY_BASE_DELAY"),
		},
		RateLimit: RateLimitConfig{
			IPLimit:     v.GetInt("RATE_LIMIT_IP"),
			IPWindow:    v.GetDuration("RATE_LIMIT_IP_WINDOW"),
			EmailLimit:  v.GetInt("RATE_LIMIT_EMAIL"),
			EmailWindow: v.GetDuration("RATE_LIMIT_EMAIL_WINDOW"),
		},
		Scheduler: SchedulerConfig{
			ExpiryInterval:     v.GetDuration("SWEEP_EXPIRY_INTERVAL"),
			CompletionInterval: v.GetDuration("SWEEP_COMPLETION_INTERVAL"),
			PruneInterval:      v.GetDuration("RATE_LIMIT_PRUNE_INTERVAL"),
			CompletionGrace:    v.GetDuration("SWEEP_COMPLETION_GRACE"),
			BatchSize:          v.GetInt("SWEEP_BATCH_SIZE"),
		},
		Worker: WorkerConfig{
			Size:   v.GetInt("WORKER_POOL_SIZE"),
			Policy: v.GetString("WORKER_SATURATION_POLICY"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Store {
	case StorePostgres:
		if c.DB.DSN == "" {
			errs = append(errs, errors.New("DB_DSN is required when STORE=postgres"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE %q", c.Store))
	}

	switch c.Locker {
	case LockerRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when LOCKER=redis"))
		}
	case LockerLocal:
	default:
		errs = append(errs, fmt.Errorf("unknown LOCKER %q", c.Locker))
	}

	switch c.Payment {
	case PaymentStripe:
		if c.Stripe.SecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe"))
		}
	case PaymentSimulated:
	default:
		errs = append(errs, fmt.Errorf("unknown PAYMENT_PROVIDER %q", c.Payment))
	}

	if c.Booking.LockLease <= 0 {
		errs = append(errs, errors.New("BOOKING_LOCK_LEASE must be positive"))
	}

	if c.Booking.RetryMaxAttempts < 1 {
		errs = append(errs, errors.New("RETRY_MAX_ATTEMPTS must be at least 1"))
	}

	return errors.Join(errs...)
}
