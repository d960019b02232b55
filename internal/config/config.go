package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/spf13/pflag"
)

type Config struct {
	Env        string           `yaml:"env" env:"ENV" env-default:"local"`
	HTTP       HTTPConfig       `yaml:"http"`
	Auth       AuthConfig       `yaml:"auth"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Presence   PresenceConfig   `yaml:"presence"`
	Bus        BusConfig        `yaml:"bus"`
	Archiver   ArchiverConfig   `yaml:"archiver"`
	Ordering   Ordering         `yaml:"ordering"`
	Invitation InvitationConfig `yaml:"invitation"`
	Catalog    CatalogConfig    `yaml:"catalog"`
}

type HTTPConfig struct {
	Address        string   `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type AuthConfig struct {
	Secret   string        `yaml:"secret" env:"AUTH_SECRET" env-default:""`
	TokenTTL time.Duration `yaml:"token_ttl" env-default:"24h"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver" env:"DB_DRIVER" env-default:"memory"`
	DSN             string        `yaml:"dsn" env:"DB_DSN" env-default:""`
	MaxIdleConns    int           `yaml:"max_idle_conns" env-default:"10"`
	MaxOpenConns    int           `yaml:"max_open_conns" env-default:"25"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env-default:"30m"`
}

type RedisConfig struct {
	Address   string `yaml:"address" env:"REDIS_ADDR" env-default:""`
	Password  string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB        int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	KeyPrefix string `yaml:"key_prefix" env-default:"og:"`
}

type RabbitMQConfig struct {
	URL      string `yaml:"url" env:"RABBITMQ_URL" env-default:""`
	Exchange string `yaml:"exchange" env-default:"order_sessions"`
}

type PresenceConfig struct {
	Backend     string        `yaml:"backend" env:"PRESENCE_BACKEND" env-default:"memory"`
	GracePeriod time.Duration `yaml:"grace_period" env-default:"2m"`
}

type BusConfig struct {
	Backend string `yaml:"backend" env:"BUS_BACKEND" env-default:"memory"`
}

type ArchiverConfig struct {
	Backend       string        `yaml:"backend" env:"ARCHIVER_BACKEND" env-default:"local"`
	OrderInterval time.Duration `yaml:"order_interval"`
	PruneInterval time.Duration `yaml:"prune_interval" env-default:"1m"`
	MaxBackoff    time.Duration `yaml:"max_backoff" env-default:"30s"`
}

// Ordering holds the operational knobs read on every admission and
// ordering check. It is swapped as a whole on reload.
type Ordering struct {
	OrderLimit             int    `yaml:"order_limit" env-default:"1"`
	OrderArchiveDelayHours int    `yaml:"order_archive_delay_hours" env-default:"6"`
	OrderTimeLimitMinutes  int    `yaml:"order_time_limit_minutes" env-default:"15"`
	LockTimeLimitMinutes   int    `yaml:"lock_time_limit_minutes" env-default:"60"`
	JoinRetryLimit         int    `yaml:"join_retry_limit" env-default:"3"`
	Timezone               string `yaml:"timezone" env-default:"UTC"`
}

type InvitationConfig struct {
	ExpiryDays int `yaml:"expiry_days" env-default:"3"`
	// BaseURL prefixes the accept links sent to invitees.
	BaseURL    string `yaml:"base_url" env:"PUBLIC_BASE_URL" env-default:"http://localhost:8080"`
}

type CatalogConfig struct {
	SeedFile string `yaml:"seed_file" env:"CATALOG_SEED_FILE" env-default:""`
}

func (o Ordering) ArchiveDelay() time.Duration {
	return time.Duration(o.OrderArchiveDelayHours) * time.Hour
}

func (o Ordering) TimeLimit() time.Duration {
	return time.Duration(o.OrderTimeLimitMinutes) * time.Minute
}

func (o Ordering) LockoutDuration() time.Duration {
	return time.Duration(o.LockTimeLimitMinutes) * time.Minute
}

// Location resolves the timezone used for the daily order window.
// Unknown names fall back to UTC.
func (o Ordering) Location() *time.Location {
	if o.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DayStart returns the beginning of the ordering day containing t.
func (o Ordering) DayStart(t time.Time) time.Time {
	local := t.In(o.Location())
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, local.Location()).UTC()
}

func MustLoad() *Config {
	configPath := FetchPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	cfg, err := LoadPath(configPath)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

func LoadPath(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, &os.PathError{Op: "config", Path: configPath, Err: os.ErrNotExist}
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	return &cfg, nil
}

// FetchPath resolves the config file from --config, then CONFIG_PATH,
// then the local default.
func FetchPath() string {
	var res string

	flags := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)
	flags.StringVar(&res, "config", "", "path to config file")
	_ = flags.Parse(os.Args[1:])

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if len(c.HTTP.AllowedOrigins) == 0 {
		c.HTTP.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if c.Archiver.OrderInterval <= 0 {
		c.Archiver.OrderInterval = DefaultOrderInterval(c.Ordering.ArchiveDelay())
	}
	c.Ordering.normalize()
}

func (o *Ordering) normalize() {
	if o.JoinRetryLimit <= 0 {
		o.JoinRetryLimit = 3
	}
	if o.OrderLimit <= 0 {
		o.OrderLimit = 1
	}
	if o.Timezone == "" {
		o.Timezone = "UTC"
	}
}

// DefaultOrderInterval derives the archival sweep cadence from the
// archive delay: a twelfth of it, kept between one minute and one hour.
func DefaultOrderInterval(archiveDelay time.Duration) time.Duration {
	interval := archiveDelay / 12
	if interval < time.Minute {
		return time.Minute
	}
	if interval > time.Hour {
		return time.Hour
	}
	return interval
}
