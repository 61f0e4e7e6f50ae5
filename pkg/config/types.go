package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent classroom configuration stored as
// config.toml in the .classroom/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version  int            `toml:"version"`
	Upstream UpstreamConfig `toml:"upstream"`
	Service  ServiceConfig  `toml:"service"`
	Client   ClientConfig   `toml:"client"`
	Storage  StorageConfig  `toml:"storage"`
	Events   EventsConfig   `toml:"events"`
}

// UpstreamConfig holds the chat completions API the service forwards to.
type UpstreamConfig struct {
	BaseURL     string  `toml:"base_url,omitempty"`
	Model       string  `toml:"model,omitempty"`
	APIKey      string  `toml:"api_key,omitempty"`
	Temperature float64 `toml:"temperature,omitempty"`
}

// ServiceConfig holds settings for "classroom serve".
type ServiceConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running
// classroom service (classroom chat, classroom questions).
// Endpoints are full URLs.
type ClientConfig struct {
	ChatEndpoint      string `toml:"chat_endpoint,omitempty"`
	QuestionsEndpoint string `toml:"questions_endpoint,omitempty"`
	Token             string `toml:"token,omitempty"`
}

// StorageConfig selects the transcript storage driver.
type StorageConfig struct {
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// EventsConfig configures transcript event publishing. Publishing is disabled
// while KafkaBrokers is empty.
type EventsConfig struct {
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// Brokers splits the comma separated broker list.
func (e EventsConfig) Brokers() []string {
	var brokers []string
	for b := range strings.SplitSeq(e.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"upstream.base_url": {
		get: func(c *Config) string { return c.Upstream.BaseURL },
		set: func(c *Config, v string) error { c.Upstream.BaseURL = v; return nil },
	},
	"upstream.model": {
		get: func(c *Config) string { return c.Upstream.Model },
		set: func(c *Config, v string) error { c.Upstream.Model = v; return nil },
	},
	"upstream.api_key": {
		get: func(c *Config) string { return c.Upstream.APIKey },
		set: func(c *Config, v string) error { c.Upstream.APIKey = v; return nil },
	},
	"upstream.temperature": {
		get: func(c *Config) string {
			if c.Upstream.Temperature == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Upstream.Temperature, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for upstream.temperature: %w", err)
			}
			if f < 0 || f > 2 {
				return fmt.Errorf("invalid value for upstream.temperature: %v out of range [0, 2]", f)
			}
			c.Upstream.Temperature = f
			return nil
		},
	},
	"service.listen": {
		get: func(c *Config) string { return c.Service.Listen },
		set: func(c *Config, v string) error { c.Service.Listen = v; return nil },
	},
	"client.chat_endpoint": {
		get: func(c *Config) string { return c.Client.ChatEndpoint },
		set: func(c *Config, v string) error { c.Client.ChatEndpoint = v; return nil },
	},
	"client.questions_endpoint": {
		get: func(c *Config) string { return c.Client.QuestionsEndpoint },
		set: func(c *Config, v string) error { c.Client.QuestionsEndpoint = v; return nil },
	},
	"client.token": {
		get: func(c *Config) string { return c.Client.Token },
		set: func(c *Config, v string) error { c.Client.Token = v; return nil },
	},
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error {
			switch v {
			case DriverMemory, DriverSQLite, DriverPostgres:
				c.Storage.Driver = v
				return nil
			default:
				return fmt.Errorf("invalid value for storage.driver: %q (available: memory, sqlite, postgres)", v)
			}
		},
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"events.kafka_brokers": {
		get: func(c *Config) string { return c.Events.KafkaBrokers },
		set: func(c *Config, v string) error { c.Events.KafkaBrokers = v; return nil },
	},
	"events.kafka_topic": {
		get: func(c *Config) string { return c.Events.KafkaTopic },
		set: func(c *Config, v string) error { c.Events.KafkaTopic = v; return nil },
	},
}
