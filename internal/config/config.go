package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const minJWTSecret = 32

type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	ServiceName string `yaml:"service_name"`

	OwnerAddress string `yaml:"owner_address"`
	JWTSecret    string `yaml:"jwt_secret"`

	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsToken   string `yaml:"metrics_token"`

	DevMode      bool   `yaml:"dev_mode"`
	Automine     bool   `yaml:"automine"`
	ReturnWindow uint64 `yaml:"return_window"`

	// Balances seeds development accounts at startup.
	Balances map[string]uint64 `yaml:"balances"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	KafkaGroup   string   `yaml:"kafka_group"`
	RedisAddr    string   `yaml:"redis_addr"`
	RedisChannel string   `yaml:"redis_channel"`
	PostgresDSN  string   `yaml:"postgres_dsn"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

func defaults() Config {
	return Config{
		HTTPAddr:       ":8080",
		ServiceName:    "market",
		MetricsEnabled: true,
		Automine:       true,
		ReturnWindow:   100,
		KafkaTopic:     "market.events",
		KafkaGroup:     "market-indexer",
		RedisChannel:   "market:events",
		RateLimitRPS:   5,
		RateLimitBurst: 10,
	}
}

// Load reads an optional .env file, then the YAML file named by MARKET_CONFIG
// if set, then environment variables, each layer overriding the previous one.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("MARKET_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.ServiceName, "SERVICE_NAME")
	setString(&cfg.OwnerAddress, "OWNER_ADDRESS")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.MetricsToken, "METRICS_TOKEN")
	setString(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setString(&cfg.KafkaGroup, "KAFKA_GROUP")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisChannel, "REDIS_CHANNEL")
	setString(&cfg.PostgresDSN, "POSTGRES_DSN")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitCSV(v)
	}

	return errors.Join(
		setBool(&cfg.MetricsEnabled, "METRICS_ENABLED"),
		setBool(&cfg.DevMode, "DEV_MODE"),
		setBool(&cfg.Automine, "AUTOMINE"),
		setUint(&cfg.ReturnWindow, "RETURN_WINDOW"),
		setFloat(&cfg.RateLimitRPS, "RATE_LIMIT_RPS"),
		setInt(&cfg.RateLimitBurst, "RATE_LIMIT_BURST"),
	)
}

// ValidateServer checks what the market server cannot start without.
func (c Config) ValidateServer() error {
	var errs []error
	if c.OwnerAddress == "" {
		errs = append(errs, errors.New("OWNER_ADDRESS is required"))
	}
	if len(c.JWTSecret) < minJWTSecret {
		errs = append(errs, fmt.Errorf("JWT_SECRET is required and must be at least %d chars", minJWTSecret))
	}
	if c.MetricsEnabled && c.MetricsToken == "" {
		errs = append(errs, errors.New("METRICS_TOKEN is required when metrics are enabled"))
	}
	return errors.Join(errs...)
}

// ValidateIndexer checks what the indexer cannot start without.
func (c Config) ValidateIndexer() error {
	var errs []error
	if len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required"))
	}
	if c.PostgresDSN == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required"))
	}
	return errors.Join(errs...)
}

func setString(dst *string, k string) {
	if v := os.Getenv(k); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, k string) error {
	v := os.Getenv(k)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	*dst = b
	return nil
}

func setUint(dst *uint64, k string) error {
	v := os.Getenv(k)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	*dst = n
	return nil
}

func setInt(dst *int, k string) error {
	v := os.Getenv(k)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, k string) error {
	v := os.Getenv(k)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	*dst = f
	return nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
