package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	AWS        AWSConfig        `yaml:"aws"`
	JWT        JWTConfig        `yaml:"jwt"`
	Log        LogConfig        `yaml:"log"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Reward     RewardConfig     `yaml:"reward"`
	Submission SubmissionConfig `yaml:"submission"`
	Weather    WeatherConfig    `yaml:"weather"`
	APNs       APNsConfig       `yaml:"apns"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration.
// An empty host keeps all state in memory.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// RedisConfig holds the reward guard backend. Empty addr uses an in-process guard.
// ReserveTTL is raised above the ledger timeout when shorter.
type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	ReserveTTL time.Duration `yaml:"reserve_ttl"`
}

// AWSConfig holds AWS configuration
type AWSConfig struct {
	Region    string `yaml:"region"`
	S3Bucket  string `yaml:"s3_bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint"` // S3-compatible storage, e.g. MinIO
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// LedgerConfig holds the token ledger connection. Empty base_url credits in-app balances.
type LedgerConfig struct {
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Timeout        time.Duration `yaml:"timeout"`
	FromSubaccount string        `yaml:"from_subaccount"`
}

// RewardConfig holds reward parameters
type RewardConfig struct {
	Amount uint64 `yaml:"amount"`
}

// SubmissionConfig holds submission voting windows
type SubmissionConfig struct {
	TTLSeconds          int64 `yaml:"ttl_seconds"`
	ChallengeTTLSeconds int64 `yaml:"challenge_ttl_seconds"`
}

// WeatherConfig holds OpenWeather settings. Empty api_key disables weather.
type WeatherConfig struct {
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	RatePerSecond   float64       `yaml:"rate_per_second"`
}

// APNsConfig holds push notification settings. Empty key_path disables push.
type APNsConfig struct {
	KeyPath    string `yaml:"key_path"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// SchedulerConfig holds background job intervals
type SchedulerConfig struct {
	FinalizeInterval time.Duration `yaml:"finalize_interval"`
}

// Load reads configuration from a YAML file. Values from the environment
// (and an optional .env file) override secrets in the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"JWT_SECRET":            &c.JWT.Secret,
		"LEDGER_API_KEY":        &c.Ledger.APIKey,
		"OPENWEATHER_API_TOKEN": &c.Weather.APIKey,
		"DATABASE_PASSWORD":     &c.Database.Password,
		"REDIS_PASSWORD":        &c.Redis.Password,
		"AWS_ACCESS_KEY_ID":     &c.AWS.AccessKey,
		"AWS_SECRET_ACCESS_KEY": &c.AWS.SecretKey,
	}
	for name, field := range overrides {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*field = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Redis.ReserveTTL <= 0 {
		c.Redis.ReserveTTL = 2 * time.Minute
	}
	if c.JWT.TTL <= 0 {
		c.JWT.TTL = 365 * 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Ledger.Timeout <= 0 {
		c.Ledger.Timeout = 30 * time.Second
	}
	if c.Reward.Amount == 0 {
		c.Reward.Amount = 10
	}
	if c.Submission.TTLSeconds <= 0 {
		c.Submission.TTLSeconds = 900
	}
	if c.Submission.ChallengeTTLSeconds <= 0 {
		c.Submission.ChallengeTTLSeconds = 300
	}
	if c.Weather.RefreshInterval <= 0 {
		c.Weather.RefreshInterval = 15 * time.Minute
	}
	if c.Scheduler.FinalizeInterval <= 0 {
		c.Scheduler.FinalizeInterval = 30 * time.Second
	}
	// a reward guard must not lapse while its transfer is still running
	if c.Redis.ReserveTTL <= c.Ledger.Timeout {
		c.Redis.ReserveTTL = c.Ledger.Timeout + time.Minute
	}
}

// InMemory reports whether state is kept without a database
func (c *DatabaseConfig) InMemory() bool {
	return c.Host == ""
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// SubmissionTTL returns the voting window of a regular submission
func (c *SubmissionConfig) SubmissionTTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// ChallengeTTL returns the voting window of a challenge submission
func (c *SubmissionConfig) ChallengeTTL() time.Duration {
	return time.Duration(c.ChallengeTTLSeconds) * time.Second
}
