// Package tablecmder provides the table command for creating, describing,
// listing, and deleting embedding jobs directly against Postgres.
package tablecmder

import (
	"github.com/spf13/cobra"
)

const tableLongDesc string = `Manage embedding jobs.

A job binds a source table and its text columns to an embedding
transformer and a maintenance schedule, and owns the generated storage,
index, and change capture vectorize creates for it.

Use subcommands to create, describe, list, or delete jobs:
  vectorize table create <file.json>   Create a job from a JSON spec
  vectorize table describe <name>      Show a job's definition and queue depth
  vectorize table list                 List all jobs
  vectorize table delete <name>        Delete a job and its generated storage`

const tableShortDesc string = "Create, describe, list, and delete embedding jobs"

func NewTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: tableShortDesc,
		Long:  tableLongDesc,
	}

	cmd.AddCommand(newCreateCmd())
	cmd.AddCommand(newDescribeCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newDeleteCmd())

	return cmd
}
