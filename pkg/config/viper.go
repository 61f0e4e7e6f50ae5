package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/classroom/pkg/dotdir"
)

// EnvPrefix is the prefix of every environment variable read by classroom.
const EnvPrefix = "CLASSROOM"

// mistralAPIKeyEnv is accepted as a fallback for upstream.api_key.
const mistralAPIKeyEnv = "MISTRAL_API_KEY"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the CLASSROOM_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (CLASSROOM_SERVICE_LISTEN, MISTRAL_API_KEY, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("upstream.api_key", EnvPrefix+"_UPSTREAM_API_KEY", mistralAPIKeyEnv); err != nil {
		return nil, fmt.Errorf("binding api key env: %w", err)
	}

	return v, nil
}

// FromViper materializes the resolved settings of v into a Config.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Upstream: UpstreamConfig{
			BaseURL:     v.GetString("upstream.base_url"),
			Model:       v.GetString("upstream.model"),
			APIKey:      v.GetString("upstream.api_key"),
			Temperature: v.GetFloat64("upstream.temperature"),
		},
		Service: ServiceConfig{
			Listen: v.GetString("service.listen"),
		},
		Client: ClientConfig{
			ChatEndpoint:      v.GetString("client.chat_endpoint"),
			QuestionsEndpoint: v.GetString("client.questions_endpoint"),
			Token:             v.GetString("client.token"),
		},
		Storage: StorageConfig{
			Driver:      v.GetString("storage.driver"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		Events: EventsConfig{
			KafkaBrokers: v.GetString("events.kafka_brokers"),
			KafkaTopic:   v.GetString("events.kafka_topic"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Upstream
	v.SetDefault("upstream.base_url", d.Upstream.BaseURL)
	v.SetDefault("upstream.model", d.Upstream.Model)
	v.SetDefault("upstream.api_key", d.Upstream.APIKey)
	v.SetDefault("upstream.temperature", d.Upstream.Temperature)

	// Service
	v.SetDefault("service.listen", d.Service.Listen)

	// Client
	v.SetDefault("client.chat_endpoint", d.Client.ChatEndpoint)
	v.SetDefault("client.questions_endpoint", d.Client.QuestionsEndpoint)
	v.SetDefault("client.token", d.Client.Token)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Events
	v.SetDefault("events.kafka_brokers", d.Events.KafkaBrokers)
	v.SetDefault("events.kafka_topic", d.Events.KafkaTopic)
}
