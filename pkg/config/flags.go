package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline, so the same logical flag
// cannot drift between "classroom serve" and "classroom questions".
type Flag struct {
	// Name is the long flag name (e.g. "upstream").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "upstream.base_url").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddFloat64Flag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen            = "listen"
	FlagUpstream          = "upstream"
	FlagModel             = "model"
	FlagTemperature       = "temperature"
	FlagStorageDriver     = "storage-driver"
	FlagSQLite            = "sqlite"
	FlagPostgresDSN       = "postgres-dsn"
	FlagKafkaBrokers      = "kafka-brokers"
	FlagKafkaTopic        = "kafka-topic"
	FlagChatEndpoint      = "endpoint"
	FlagQuestionsEndpoint = "questions-endpoint"
	FlagToken             = "token"
)

// Flags is the registry shared by every classroom command.
var Flags = FlagSet{
	FlagListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "service.listen",
		Description: "Address for the classroom service to listen on",
	},
	FlagUpstream: {
		Name:        "upstream",
		Shorthand:   "u",
		ViperKey:    "upstream.base_url",
		Description: "Base URL of the upstream chat completions API",
	},
	FlagModel: {
		Name:        "model",
		Shorthand:   "m",
		ViperKey:    "upstream.model",
		Description: "Model requested from the upstream API",
	},
	FlagTemperature: {
		Name:        "temperature",
		ViperKey:    "upstream.temperature",
		Description: "Sampling temperature for upstream requests",
	},
	FlagStorageDriver: {
		Name:        "storage",
		ViperKey:    "storage.driver",
		Description: "Transcript storage driver (memory, sqlite, postgres)",
	},
	FlagSQLite: {
		Name:        "sqlite",
		Shorthand:   "s",
		ViperKey:    "storage.sqlite_path",
		Description: "Path to the SQLite database (sqlite driver)",
	},
	FlagPostgresDSN: {
		Name:        "postgres-dsn",
		ViperKey:    "storage.postgres_dsn",
		Description: "PostgreSQL connection string (postgres driver)",
	},
	FlagKafkaBrokers: {
		Name:        "kafka-brokers",
		ViperKey:    "events.kafka_brokers",
		Description: "Comma separated Kafka brokers for transcript events",
	},
	FlagKafkaTopic: {
		Name:        "kafka-topic",
		ViperKey:    "events.kafka_topic",
		Description: "Kafka topic for transcript events",
	},
	FlagChatEndpoint: {
		Name:        "endpoint",
		Shorthand:   "e",
		ViperKey:    "client.chat_endpoint",
		Description: "URL of the chat-with-ai endpoint",
	},
	FlagQuestionsEndpoint: {
		Name:        "endpoint",
		Shorthand:   "e",
		ViperKey:    "client.questions_endpoint",
		Description: "URL of the generate-questions endpoint",
	},
	FlagToken: {
		Name:        "token",
		Shorthand:   "t",
		ViperKey:    "client.token",
		Description: "Bearer token sent to the classroom service",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddFloat64Flag registers a float64 flag on cmd from the given FlagSet.
func AddFloat64Flag(cmd *cobra.Command, fs FlagSet, key string, target *float64) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultFloat64(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().Float64VarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().Float64Var(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultFloat64 returns the default float value for a viper key from NewDefaultConfig.
func defaultFloat64(viperKey string) float64 {
	v := viper.New()
	setViperDefaults(v)
	return v.GetFloat64(viperKey)
}
