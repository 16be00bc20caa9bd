package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds process-level configuration for the worker, bound from
// environment variables (PARLEY_ prefix) with optional config-file override.
type Settings struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisUsername string        `mapstructure:"redis_username"`
	RedisPassword string        `mapstructure:"redis_password"`
	BackendURL    string        `mapstructure:"backend_url"`
	PipelineURL   string        `mapstructure:"pipeline_url"`
	SearchURL     string        `mapstructure:"search_url"`
	SearchAPIKey  string        `mapstructure:"search_api_key"`
	AgentName     string        `mapstructure:"agent_name"`
	AdminHost     string        `mapstructure:"admin_host"`
	AdminPort     int           `mapstructure:"admin_port"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
}

// LoadSettings reads process settings from the environment via viper.
func LoadSettings() (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("PARLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("agent_name", "voice_widget")
	v.SetDefault("admin_host", "localhost")
	v.SetDefault("admin_port", 8080)
	v.SetDefault("http_timeout", 30*time.Second)

	// viper.AutomaticEnv does not surface env-only keys through Unmarshal
	// unless they are bound explicitly.
	for _, key := range []string{
		"redis_addr", "redis_username", "redis_password",
		"backend_url", "pipeline_url", "search_url", "search_api_key",
		"agent_name", "admin_host", "admin_port", "http_timeout",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding env %s: %w", key, err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("unmarshalling settings: %w", err)
	}
	return &settings, nil
}

// Validate checks the settings required to serve sessions.
func (s *Settings) Validate() error {
	if s.BackendURL == "" {
		return fmt.Errorf("backend_url is required")
	}
	if s.PipelineURL == "" {
		return fmt.Errorf("pipeline_url is required")
	}
	return nil
}
