package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const defaultJWTSecret = "change-me-jwt-secret"

type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"dev"`
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" default:"marketplace.db"`

	JWTSecret string        `envconfig:"JWT_SECRET" default:"change-me-jwt-secret"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"24h"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`

	// Embedded so its keys keep their BOOKING_ names without a nested prefix.
	Booking

	RateLimit string `envconfig:"RATE_LIMIT" default:"30-1m"`
	RedisURL  string `envconfig:"REDIS_URL"`

	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"marketplace.events"`
}

type Booking struct {
	FeeRate          decimal.Decimal `envconfig:"BOOKING_FEE_RATE" default:"0.1"`
	MinFee           int64           `envconfig:"BOOKING_MIN_FEE" default:"5000"`
	MaxHorizonMonths int             `envconfig:"BOOKING_MAX_HORIZON_MONTHS" default:"6"`
	OpenHour         int             `envconfig:"BOOKING_OPEN_HOUR" default:"8"`
	CloseHour        int             `envconfig:"BOOKING_CLOSE_HOUR" default:"20"`
	Timezone         string          `envconfig:"BOOKING_TIMEZONE" default:"UTC"`
	DailyQuota       int             `envconfig:"BOOKING_DAILY_QUOTA" default:"5"`
	TxTimeout        time.Duration   `envconfig:"BOOKING_TX_TIMEOUT" default:"5s"`
	AdminClawback    bool            `envconfig:"BOOKING_ADMIN_CLAWBACK" default:"true"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsProdLike() bool {
	switch c.AppEnv {
	case "prod", "production", "staging":
		return true
	}
	return false
}

func (c *Config) Validate() error {
	var errs []error
	b := c.Booking

	if !b.FeeRate.GreaterThan(decimal.Zero) || !b.FeeRate.LessThan(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("BOOKING_FEE_RATE must be in (0,1), got %s", b.FeeRate))
	}
	if b.MinFee < 0 {
		errs = append(errs, fmt.Errorf("BOOKING_MIN_FEE must be >= 0, got %d", b.MinFee))
	}
	if b.OpenHour < 0 || b.CloseHour > 24 || b.OpenHour >= b.CloseHour {
		errs = append(errs, fmt.Errorf("business hours must satisfy 0 <= open < close <= 24, got %d-%d", b.OpenHour, b.CloseHour))
	}
	if b.MaxHorizonMonths < 0 {
		errs = append(errs, errors.New("BOOKING_MAX_HORIZON_MONTHS must be >= 0"))
	}
	if b.DailyQuota < 0 {
		errs = append(errs, errors.New("BOOKING_DAILY_QUOTA must be >= 0"))
	}
	if b.TxTimeout <= 0 {
		errs = append(errs, errors.New("BOOKING_TX_TIMEOUT must be positive"))
	}
	if _, err := time.LoadLocation(b.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("BOOKING_TIMEZONE: %w", err))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is empty"))
	} else if c.IsProdLike() && c.JWTSecret == defaultJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be overridden outside dev"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Location is the booking timezone. Validate has already checked it loads.
func (b Booking) Location() *time.Location {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
