package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// HintsResult holds the knowledge graph hints for a question.
type HintsResult struct {
	Question  string   `json:"question"`
	Keywords  []string `json:"keywords"`
	Neighbors []string `json:"neighbors"`
	Hints     string   `json:"hints,omitempty"`
}

func (r HintsResult) renderText(w io.Writer) {
	fmt.Fprintf(w, "Keywords: %s\n", strings.Join(r.Keywords, ", "))
	fmt.Fprintf(w, "Related: %s\n", strings.Join(r.Neighbors, ", "))
	if r.Hints != "" {
		fmt.Fprintln(w, strings.TrimSpace(r.Hints))
	}
}

// NewHintsCommand creates the hints command.
func NewHintsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "hints <question>",
		Short: "Show how the knowledge graph expands a question",
		Long: `Prints the scoring keywords and related terms the ranking step derives
from a resolved intent, and the semantic hints block handed to query
generation.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)

			a, err := loadApp(rootOpts)
			if err != nil {
				return reportError(formatter, ErrCodeConfig, err)
			}
			defer a.close()

			question := strings.Join(args, " ")
			keywords, neighbors := a.graph.Expand(question)
			return formatter.Success(HintsResult{
				Question:  question,
				Keywords:  keywords,
				Neighbors: neighbors,
				Hints:     a.graph.Hints(question),
			})
		},
	}
}
