// Package searchcmder provides the search command for hybrid
// semantic + lexical search against an embedding job.
package searchcmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/paperlane/vectorize/cmd/vectorize/vconn"
	"github.com/paperlane/vectorize/pkg/cliui"
	"github.com/paperlane/vectorize/pkg/logger"
	"github.com/paperlane/vectorize/pkg/search"
)

var (
	rankStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	pkStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

type searchCommander struct {
	job   string
	query string
	limit int
	rag   bool

	configDir string
	debug     bool
}

const searchLongDesc string = `Run a hybrid semantic + lexical search against an embedding job.

Fuses a semantic (vector) rank and a full-text-search rank with
reciprocal rank fusion and prints the top results, along with their
RRF score and component ranks.

This command has no completion provider of its own: with --rag it
prints the results followed by a notice, not a synthesized answer.

Examples:
  vectorize search products "red widget"
  vectorize search products "red widget" --limit 10
  vectorize search products "what colors do widgets come in?" --rag`

const searchShortDesc string = "Run a hybrid search against a job"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <job> <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.job = args[0]
			cmder.query = args[1]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.run()
		},
	}

	cmd.Flags().IntVarP(&cmder.limit, "limit", "l", 5, "Number of results to return")
	cmd.Flags().BoolVar(&cmder.rag, "rag", false, "Print a notice that this command has no completion provider after the results")

	return cmd
}

func (c *searchCommander) run() error {
	log := logger.New(logger.WithDebug(c.debug))
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	conn, err := vconn.Open(ctx, c.configDir, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	rows, err := conn.Engine.Search(ctx, search.Request{
		JobName:   c.job,
		QueryText: c.query,
		Limit:     c.limit,
	})
	if err != nil {
		return fmt.Errorf("searching %q: %w", c.job, err)
	}

	if len(rows) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("\n%s %q %s %s\n\n",
		cliui.KeyStyle.Render("Results for"),
		c.query,
		cliui.DimStyle.Render("in"),
		cliui.ValueStyle.Render(c.job),
	)

	for i, r := range rows {
		c.printResult(i+1, r)
	}

	if c.rag {
		fmt.Println(cliui.DimStyle.Render("--rag requires a completion provider wired into the running process; this CLI does not embed one itself."))
	}

	return nil
}

func (c *searchCommander) printResult(rank int, r search.Row) {
	fmt.Printf("  %s  %s  %s\n",
		rankStyle.Render(fmt.Sprintf("#%d", rank)),
		scoreStyle.Render(fmt.Sprintf("rrf: %.4f", r.RRFScore)),
		pkStyle.Render(r.PK),
	)

	if r.SemanticRank != nil {
		fmt.Printf("    %s", cliui.DimStyle.Render(fmt.Sprintf("semantic #%d", *r.SemanticRank)))
	}
	if r.FTSRank != nil {
		fmt.Printf("  %s", cliui.DimStyle.Render(fmt.Sprintf("fts #%d", *r.FTSRank)))
	}
	fmt.Println()

	preview := strings.ReplaceAll(string(r.Columns), "\n", " ")
	if len(preview) > 160 {
		preview = preview[:157] + "..."
	}
	fmt.Printf("    %s\n\n", cliui.ValueStyle.Render(preview))
}
