// Package vectorizecmder assembles the vectorize root command.
package vectorizecmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/paperlane/vectorize/cmd/vectorize/config"
	initcmder "github.com/paperlane/vectorize/cmd/vectorize/init"
	searchcmder "github.com/paperlane/vectorize/cmd/vectorize/search"
	servecmder "github.com/paperlane/vectorize/cmd/vectorize/serve"
	statuscmder "github.com/paperlane/vectorize/cmd/vectorize/status"
	tablecmder "github.com/paperlane/vectorize/cmd/vectorize/table"
)

const vectorizeLongDesc string = `vectorize orchestrates hybrid semantic + lexical search over Postgres.

Run services using:
  vectorize serve api      Run the API server
  vectorize serve proxy    Run the wire proxy
  vectorize serve worker   Run the embedding worker pool
  vectorize serve          Run all three together

Manage embedding jobs and search from the command line using:
  vectorize table      Create, describe, list, and delete embedding jobs
  vectorize search     Run a hybrid search against a job
  vectorize config     Get, set, and list persistent configuration`

const vectorizeShortDesc string = "vectorize - hybrid search orchestration for Postgres"

func NewVectorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vectorize",
		Short: vectorizeShortDesc,
		Long:  vectorizeLongDesc,
	}

	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .vectorize/ config directory")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(tablecmder.NewTableCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())

	return cmd
}
