package tablecmder

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paperlane/vectorize/cmd/vectorize/vconn"
	"github.com/paperlane/vectorize/pkg/cliui"
	"github.com/paperlane/vectorize/pkg/logger"
)

const deleteLongDesc string = `Delete an embedding job and its generated storage.

Drops the job's generated embedding storage (side table or append
columns), its HNSW index, its realtime change capture triggers (if
any), its work queue, and its metadata row.

Examples:
  vectorize table delete products`

const deleteShortDesc string = "Delete a job and its generated storage"

func newDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: deleteShortDesc,
		Long:  deleteLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runDelete(args[0], configDir, debug)
		},
	}

	return cmd
}

func runDelete(name, configDir string, debug bool) error {
	log := logger.New(logger.WithDebug(debug))
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	conn, err := vconn.Open(ctx, configDir, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Registry.Delete(ctx, name); err != nil {
		return fmt.Errorf("deleting job %q: %w", name, err)
	}

	fmt.Printf("  %s Deleted job %s\n\n", cliui.SuccessMark, cliui.KeyStyle.Render(name))
	return nil
}
