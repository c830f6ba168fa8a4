package tablecmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/paperlane/vectorize/cmd/vectorize/vconn"
	"github.com/paperlane/vectorize/pkg/cliui"
	"github.com/paperlane/vectorize/pkg/job"
	"github.com/paperlane/vectorize/pkg/logger"
)

const createLongDesc string = `Create an embedding job from a JSON spec.

The spec file mirrors the job.Spec wire shape:

  {
    "name": "products",
    "source": {
      "schema": "public",
      "relation": "products",
      "primary_key": "product_id",
      "text_columns": ["name", "description"],
      "update_column": "updated_at"
    },
    "transformer": "ollama/nomic-embed-text",
    "search_alg": "cosine",
    "table_method": "join",
    "schedule": "0 * * * *"
  }

Pass "-" to read the spec from stdin.

Examples:
  vectorize table create products.json
  cat products.json | vectorize table create -`

const createShortDesc string = "Create an embedding job from a JSON spec"

func newCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <spec.json>",
		Short: createShortDesc,
		Long:  createLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runCreate(args[0], configDir, debug)
		},
	}

	return cmd
}

func runCreate(path, configDir string, debug bool) error {
	data, err := readSpecInput(path)
	if err != nil {
		return err
	}

	var spec job.Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("parsing job spec: %w", err)
	}

	log := logger.New(logger.WithDebug(debug))
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	conn, err := vconn.Open(ctx, configDir, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	j, err := conn.Registry.Create(ctx, spec)
	if err != nil {
		return fmt.Errorf("creating job %q: %w", spec.Name, err)
	}

	fmt.Printf("  %s Created job %s (dimension %d)\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(j.Name),
		j.Dimension,
	)
	return nil
}

func readSpecInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
