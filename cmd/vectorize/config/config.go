// Package configcmder provides the config command for managing persistent
// vectorize configuration stored in the .vectorize/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent vectorize configuration.

Configuration is stored as config.toml in the .vectorize/ directory and
provides default values for command flags. CLI flags always take
precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  database.url,
  api.listen,
  proxy.enabled, proxy.listen, proxy.upstream,
  worker.num_workers, worker.poll_interval_seconds,
  embedding.provider, embedding.base_url, embedding.api_key,
  search.semantic_weight, search.fts_weight, search.rrf_k,
  events.kafka_brokers, events.kafka_topic

Use subcommands to get, set, or list configuration values:
  vectorize config set <key> <value>    Set a configuration value
  vectorize config get <key>            Get a configuration value
  vectorize config list                 List all configuration values

Examples:
  vectorize config set embedding.provider cohere
  vectorize config set proxy.enabled true
  vectorize config get database.url
  vectorize config list`

const configShortDesc string = "Manage persistent vectorize configuration"

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
