package tablecmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paperlane/vectorize/cmd/vectorize/vconn"
	"github.com/paperlane/vectorize/pkg/cliui"
	"github.com/paperlane/vectorize/pkg/logger"
)

const listLongDesc string = `List all embedding jobs.

Examples:
  vectorize table list`

const listShortDesc string = "List all embedding jobs"

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runList(configDir, debug)
		},
	}

	return cmd
}

func runList(configDir string, debug bool) error {
	log := logger.New(logger.WithDebug(debug))
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	conn, err := vconn.Open(ctx, configDir, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	jobs, err := conn.Store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Printf("  %s\n", cliui.DimStyle.Render("No jobs found."))
		return nil
	}

	fmt.Println()
	for _, j := range jobs {
		fmt.Printf("  %s  %s  %s.%s  %s\n",
			cliui.KeyStyle.Render(j.Name),
			cliui.DimStyle.Render(string(j.TableMethod)),
			j.Source.Schema, j.Source.Relation,
			cliui.ValueStyle.Render(j.Transformer),
		)
	}
	fmt.Println()

	return nil
}
