package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig      `json:"app"`
	MySQL    MySQLConfig    `json:"mysql"`
	Redis    RedisConfig    `json:"redis"`
	Email    EmailConfig    `json:"email"`
	Security SecurityConfig `json:"security"`
}

// AppConfig carries service-level settings.
type AppConfig struct {
	Env            string        `json:"env"`              // local / prod
	LogLevel       string        `json:"log_level"`        // debug / info / warn / error
	HTTPAddr       string        `json:"http_addr"`        // API listen address
	BaseURL        string        `json:"base_url"`         // external URL used in emailed links
	UploadDir      string        `json:"upload_dir"`       // root directory for uploaded files
	MaxUploadBytes int64         `json:"max_upload_bytes"` // profile picture size cap
	TokenTTL       time.Duration `json:"token_ttl"`        // access token lifetime
	ResetTokenTTL  time.Duration `json:"reset_token_ttl"`  // password reset token lifetime
	InvitationTTL  time.Duration `json:"invitation_ttl"`   // pending invitation lifetime
	SweepInterval  time.Duration `json:"sweep_interval"`   // invitation expiry sweep cadence
	RateLimit      float64       `json:"rate_limit"`       // auth endpoint limit (tokens/s per IP)
	RateBurst      float64       `json:"rate_burst"`       // auth endpoint burst
	SeedDemo       bool          `json:"seed_demo"`        // create the demo account on boot
}

// MySQLConfig is the relational store configuration.
type MySQLConfig struct {
	DSN string `json:"dsn"`
}

// RedisConfig is the cache/rate-limit store configuration.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
}

// EmailConfig is the SMTP configuration for reset and invitation mail.
// With QueueEnabled set, mail is pushed onto a redis stream and delivered
// by a background worker instead of blocking the request.
type EmailConfig struct {
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port"`
	SMTPUser     string `json:"smtp_user"`
	SMTPPass     string `json:"smtp_pass"`
	FromEmail    string `json:"from_email"`
	QueueEnabled bool   `json:"queue_enabled"`
	QueueStream  string `json:"queue_stream"`
}

// SecurityConfig holds secrets.
type SecurityConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// Load reads configuration from a JSON file, falling back to defaults when
// the file is absent. Environment variables override file values either way.
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// LoadOrDefault loads configuration and falls back to defaults on error.
func LoadOrDefault(configPath ...string) *Config {
	cfg, err := Load(configPath...)
	if err != nil {
		fallback := getDefaultConfig()
		applyEnvOverrides(fallback)
		return fallback
	}
	return cfg
}

// Save writes the configuration back to a JSON file.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:            "local",
			LogLevel:       "info",
			HTTPAddr:       ":3001",
			BaseURL:        "http://localhost:3000",
			UploadDir:      "uploads",
			MaxUploadBytes: 2 << 20, // 2MB
			TokenTTL:       24 * time.Hour,
			ResetTokenTTL:  time.Hour,
			InvitationTTL:  7 * 24 * time.Hour,
			SweepInterval:  time.Hour,
			RateLimit:      3,
			RateBurst:      5,
			SeedDemo:       false,
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/taskify?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
		},
		Email: EmailConfig{
			SMTPHost:     "smtp.gmail.com",
			SMTPPort:     587,
			SMTPUser:     "",
			SMTPPass:     "",
			FromEmail:    "",
			QueueEnabled: false,
			QueueStream:  "taskify:mail:queue",
		},
		Security: SecurityConfig{
			JWTSecret: "dev_secret_change_me",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.BaseURL == "" {
		cfg.App.BaseURL = defaults.App.BaseURL
	}
	if cfg.App.UploadDir == "" {
		cfg.App.UploadDir = defaults.App.UploadDir
	}
	if cfg.App.MaxUploadBytes == 0 {
		cfg.App.MaxUploadBytes = defaults.App.MaxUploadBytes
	}
	if cfg.App.TokenTTL == 0 {
		cfg.App.TokenTTL = defaults.App.TokenTTL
	}
	if cfg.App.ResetTokenTTL == 0 {
		cfg.App.ResetTokenTTL = defaults.App.ResetTokenTTL
	}
	if cfg.App.InvitationTTL == 0 {
		cfg.App.InvitationTTL = defaults.App.InvitationTTL
	}
	if cfg.App.SweepInterval == 0 {
		cfg.App.SweepInterval = defaults.App.SweepInterval
	}
	if cfg.App.RateLimit == 0 {
		cfg.App.RateLimit = defaults.App.RateLimit
	}
	if cfg.App.RateBurst == 0 {
		cfg.App.RateBurst = defaults.App.RateBurst
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = defaults.Email.SMTPPort
	}
	if cfg.Email.QueueStream == "" {
		cfg.Email.QueueStream = defaults.Email.QueueStream
	}
	if cfg.Security.JWTSecret == "" {
		cfg.Security.JWTSecret = defaults.Security.JWTSecret
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")
	_ = viper.BindEnv("smtp_pass", "SMTP_PASS")
	_ = viper.BindEnv("jwt_secret", "JWT_SECRET")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_BASE_URL"); v != "" {
		cfg.App.BaseURL = v
	}
	if v := os.Getenv("APP_UPLOAD_DIR"); v != "" {
		cfg.App.UploadDir = v
	}
	if v := os.Getenv("APP_MAX_UPLOAD_BYTES"); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.App.MaxUploadBytes = i
		}
	}
	if v := os.Getenv("APP_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.TokenTTL = d
		}
	}
	if v := os.Getenv("APP_RESET_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.ResetTokenTTL = d
		}
	}
	if v := os.Getenv("APP_INVITATION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.InvitationTTL = d
		}
	}
	if v := os.Getenv("APP_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.App.SweepInterval = d
		}
	}
	if v := os.Getenv("APP_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateLimit = f
		}
	}
	if v := os.Getenv("APP_RATE_BURST"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.App.RateBurst = f
		}
	}
	if v := os.Getenv("APP_SEED_DEMO"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.App.SeedDemo = b
		}
	}

	if v := viper.GetString("jwt_secret"); v != "" {
		cfg.Security.JWTSecret = v
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "" {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if v := viper.GetString("db_host"); v != "" {
			host := v
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = host + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = i
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := viper.GetString("smtp_pass"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.Email.FromEmail = v
	}
	if v := os.Getenv("MAIL_QUEUE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Email.QueueEnabled = b
		}
	}
	if v := os.Getenv("MAIL_QUEUE_STREAM"); v != "" {
		cfg.Email.QueueStream = v
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fallbackAddr == "" {
		return defaultValue
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := &mysql.Config{
		User:   "root",
		Passwd: "",
		Net:    "tcp",
		Addr:   "localhost:3306",
		DBName: "taskify",
		Params: map[string]string{
			"parseTime": "true",
			"loc":       "Local",
		},
	}
	if dsn == "" {
		return fallback
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback
	}
	return parsed
}

// UnmarshalJSON accepts duration fields as strings ("1h", "7d" style Go
// durations).
func (a *AppConfig) UnmarshalJSON(data []byte) error {
	type Alias AppConfig
	aux := &struct {
		TokenTTL      string `json:"token_ttl"`
		ResetTokenTTL string `json:"reset_token_ttl"`
		InvitationTTL string `json:"invitation_ttl"`
		SweepInterval string `json:"sweep_interval"`
		*Alias
	}{
		Alias: (*Alias)(a),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.TokenTTL != "" {
		d, err := time.ParseDuration(aux.TokenTTL)
		if err != nil {
			return fmt.Errorf("invalid token_ttl format: %w", err)
		}
		a.TokenTTL = d
	}
	if aux.ResetTokenTTL != "" {
		d, err := time.ParseDuration(aux.ResetTokenTTL)
		if err != nil {
			return fmt.Errorf("invalid reset_token_ttl format: %w", err)
		}
		a.ResetTokenTTL = d
	}
	if aux.InvitationTTL != "" {
		d, err := time.ParseDuration(aux.InvitationTTL)
		if err != nil {
			return fmt.Errorf("invalid invitation_ttl format: %w", err)
		}
		a.InvitationTTL = d
	}
	if aux.SweepInterval != "" {
		d, err := time.ParseDuration(aux.SweepInterval)
		if err != nil {
			return fmt.Errorf("invalid sweep_interval format: %w", err)
		}
		a.SweepInterval = d
	}

	return nil
}

// MarshalJSON writes duration fields as strings.
func (a AppConfig) MarshalJSON() ([]byte, error) {
	type Alias AppConfig
	return json.Marshal(&struct {
		TokenTTL      string `json:"token_ttl"`
		ResetTokenTTL string `json:"reset_token_ttl"`
		InvitationTTL string `json:"invitation_ttl"`
		SweepInterval string `json:"sweep_interval"`
		*Alias
	}{
		TokenTTL:      a.TokenTTL.String(),
		ResetTokenTTL: a.ResetTokenTTL.String(),
		InvitationTTL: a.InvitationTTL.String(),
		SweepInterval: a.SweepInterval.String(),
		Alias:         (*Alias)(&a),
	})
}
