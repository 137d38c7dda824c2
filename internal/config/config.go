package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
	JWTSecret   string   `mapstructure:"JWT_SECRET"`

	// Broker settings. When AMQP_URL is empty the server runs without the
	// queue bridge: no background workers, and event publishes fail fast.
	AMQPURL          string `mapstructure:"AMQP_URL"`
	AnalysisExchange string `mapstructure:"ANALYSIS_EXCHANGE"`
	NotifyExchange   string `mapstructure:"NOTIFY_EXCHANGE"`
	AnalysisQueue    string `mapstructure:"ANALYSIS_QUEUE"`
	EmailQueue       string `mapstructure:"EMAIL_QUEUE"`
	DeadLetterQueue  string `mapstructure:"DEAD_LETTER_QUEUE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("ANALYSIS_EXCHANGE", "aura.analysis")
	v.SetDefault("NOTIFY_EXCHANGE", "aura.notify")
	v.SetDefault("ANALYSIS_QUEUE", "aura.analysis.completed")
	v.SetDefault("EMAIL_QUEUE", "aura.notify.email")
	v.SetDefault("DEAD_LETTER_QUEUE", "")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("AMQP_URL")
	v.BindEnv("ANALYSIS_EXCHANGE")
	v.BindEnv("NOTIFY_EXCHANGE")
	v.BindEnv("ANALYSIS_QUEUE")
	v.BindEnv("EMAIL_QUEUE")
	v.BindEnv("DEAD_LETTER_QUEUE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret must be set so that bearer authentication is enforced.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV is not development")
	}
	if c.AMQPURL != "" {
		if c.AnalysisExchange == "" || c.NotifyExchange == "" {
			return fmt.Errorf("ANALYSIS_EXCHANGE and NOTIFY_EXCHANGE are required when AMQP_URL is set")
		}
		if c.AnalysisQueue == "" || c.EmailQueue == "" {
			return fmt.Errorf("ANALYSIS_QUEUE and EMAIL_QUEUE are required when AMQP_URL is set")
		}
	}
	return nil
}
