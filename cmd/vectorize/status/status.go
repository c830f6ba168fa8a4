// Package statuscmder provides the status command for showing the
// current configuration target and a summary of configured jobs.
package statuscmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paperlane/vectorize/cmd/vectorize/vconn"
	"github.com/paperlane/vectorize/pkg/cliui"
	"github.com/paperlane/vectorize/pkg/config"
	"github.com/paperlane/vectorize/pkg/logger"
)

const statusLongDesc string = `Show the current vectorize configuration and job summary.

Reports which config.toml is in effect (if any), the database it
points to, and a one-line summary of every configured job's live
queue backlog.

Examples:
  vectorize status`

const statusShortDesc string = "Show configuration and job summary"

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runStatus(configDir, debug)
		},
	}

	return cmd
}

func runStatus(configDir string, debug bool) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	target := cfger.GetTarget()
	if target != "" {
		fmt.Printf("\n  %s  %s\n", cliui.KeyStyle.Render("Config file:"), cliui.DimStyle.Render(target))
	} else {
		fmt.Printf("\n  %s\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}

	log := logger.New(logger.WithDebug(debug))
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	conn, err := vconn.Open(ctx, configDir, log)
	if err != nil {
		fmt.Printf("  %s  %s\n\n", cliui.KeyStyle.Render("Database:"), cliui.FailMark+" "+err.Error())
		return nil
	}
	defer conn.Close()

	jobs, err := conn.Store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing jobs: %w", err)
	}

	fmt.Printf("  %s  %s %d job(s)\n\n", cliui.KeyStyle.Render("Database:"), cliui.SuccessMark, len(jobs))

	var totalDepth int64
	for _, j := range jobs {
		_, depth, err := conn.Registry.Describe(ctx, j.Name)
		if err != nil {
			fmt.Printf("  %s  %s\n", cliui.DimStyle.Render(j.Name), cliui.FailMark+" "+err.Error())
			continue
		}
		totalDepth += depth
		fmt.Printf("  %s  %s %d\n",
			cliui.KeyStyle.Render(j.Name),
			cliui.DimStyle.Render("queue depth:"),
			depth,
		)
	}
	if len(jobs) > 0 {
		fmt.Printf("\n  %s  %d\n", cliui.KeyStyle.Render("Total backlog:"), totalDepth)
	}
	fmt.Println()

	return nil
}
