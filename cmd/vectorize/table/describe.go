package tablecmder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paperlane/vectorize/cmd/vectorize/vconn"
	"github.com/paperlane/vectorize/pkg/cliui"
	"github.com/paperlane/vectorize/pkg/logger"
)

const describeLongDesc string = `Show a job's definition and live queue depth.

Examples:
  vectorize table describe products`

const describeShortDesc string = "Show a job's definition and queue depth"

func newDescribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe <name>",
		Short: describeShortDesc,
		Long:  describeLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runDescribe(args[0], configDir, debug)
		},
	}

	return cmd
}

func runDescribe(name, configDir string, debug bool) error {
	log := logger.New(logger.WithDebug(debug))
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	conn, err := vconn.Open(ctx, configDir, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	j, depth, err := conn.Registry.Describe(ctx, name)
	if err != nil {
		return fmt.Errorf("describing job %q: %w", name, err)
	}

	fmt.Printf("\n  %s  %s\n", cliui.KeyStyle.Render("Name:"), cliui.ValueStyle.Render(j.Name))
	fmt.Printf("  %s  %s.%s\n", cliui.KeyStyle.Render("Source:"), j.Source.Schema, j.Source.Relation)
	fmt.Printf("  %s  %v\n", cliui.KeyStyle.Render("Text columns:"), j.Source.TextColumns)
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Transformer:"), cliui.ValueStyle.Render(j.Transformer))
	fmt.Printf("  %s  %d\n", cliui.KeyStyle.Render("Dimension:"), j.Dimension)
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Search alg:"), j.SearchAlg)
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Table method:"), j.TableMethod)
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Schedule:"), j.Schedule)
	fmt.Printf("  %s  %d\n", cliui.KeyStyle.Render("Queue depth:"), depth)
	if j.LastCompletion != nil {
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Last completion:"), j.LastCompletion.Format("2006-01-02T15:04:05Z07:00"))
	} else {
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Last completion:"), cliui.DimStyle.Render("never"))
	}

	if debug {
		params, _ := json.MarshalIndent(j.Params, "", "  ")
		fmt.Printf("\n  %s\n%s\n", cliui.DimStyle.Render("Frozen params:"), string(params))
	}
	fmt.Println()

	return nil
}
