// Package configcmder provides the config command for managing persistent
// classroom configuration stored in the .classroom/ directory.
package configcmder

import (
	"strings"

	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent classroom configuration.

Configuration is stored as config.toml in the .classroom/ directory and
provides default values for command flags. CLI flags and CLASSROOM_*
environment variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  upstream.base_url, upstream.model, upstream.api_key, upstream.temperature,
  service.listen,
  client.chat_endpoint, client.questions_endpoint, client.token,
  storage.driver, storage.sqlite_path, storage.postgres_dsn,
  events.kafka_brokers, events.kafka_topic

Use subcommands to get, set, or list configuration values:
  classroom config set <key> <value>    Set a configuration value
  classroom config get <key>            Get a configuration value
  classroom config list                 List all configuration values

Examples:
  classroom config set upstream.model mistral-small-latest
  classroom config set storage.driver sqlite
  classroom config get upstream.base_url
  classroom config list`

const configShortDesc string = "Manage persistent classroom configuration"

// secretKeys are never printed in full.
var secretKeys = map[string]bool{
	"upstream.api_key": true,
	"client.token":     true,
}

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

// displayValue masks secrets down to their last four characters.
func displayValue(key, value string) string {
	if !secretKeys[key] || value == "" {
		return value
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", 8) + value[len(value)-4:]
}
