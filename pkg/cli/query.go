package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-federation/pkg/models"
)

// displayAttributes are printed, in order, for each ranked record in text
// output when present.
var displayAttributes = []string{"title", "company_name", "location", "salary_range", "job_posting_date"}

// QueryOptions holds flags of the query command.
type QueryOptions struct {
	Intent string
	Limit  int
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{}

	cmd := &cobra.Command{
		Use:   "query <global-sql>",
		Short: "Run a global-schema query against every source",
		Long: `Validates the global query, rewrites it for every registered source,
corrects invalid rewrites, executes them in parallel and prints the merged,
ranked records with a status per source.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, rootOpts, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Intent, "intent", "i", "", "resolved search intent used for ranking")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "maximum ranked records (default from config)")

	return cmd
}

func runQuery(cmd *cobra.Command, rootOpts *RootOptions, opts *QueryOptions, globalQuery string) error {
	formatter := newFormatter(rootOpts, cmd)

	a, err := loadApp(rootOpts)
	if err != nil {
		return reportError(formatter, ErrCodeConfig, err)
	}
	defer a.close()

	ctx := cmd.Context()
	svc, err := a.newFederationService(ctx)
	if err != nil {
		return reportError(formatter, ErrCodeConfig, err)
	}

	formatter.VerboseLog("Running federation across %d source(s)", len(a.registry.Sources()))
	result, err := svc.Run(ctx, globalQuery, opts.Intent, opts.Limit)
	if err != nil {
		return reportError(formatter, ErrCodeConfig, WrapExitError(ExitCommandError, "federation run aborted", err))
	}

	out := runOutput{result}
	if result.GlobalStatus == models.AttemptExhausted {
		if err := formatter.Failure(ErrCodeExhausted, "global query could not be corrected", out); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "global query could not be corrected")
	}
	return formatter.Success(out)
}

// reportError prints err and returns it as an ExitError.
func reportError(formatter *OutputFormatter, code string, err error) error {
	_ = formatter.Error(code, err.Error(), nil)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return WrapExitError(ExitCommandError, code, err)
}

// runOutput renders a FederationResult.
type runOutput struct {
	*models.FederationResult
}

func (o runOutput) renderText(w io.Writer) {
	r := o.FederationResult
	fmt.Fprintf(w, "Run %s (global query %s)\n", r.RunID, r.GlobalStatus)
	if r.AcceptedQuery != "" {
		fmt.Fprintf(w, "Accepted query: %s\n", r.AcceptedQuery)
	}
	if len(r.Attempts) > 0 && len(r.Attempts[0].Errors) > 0 && r.GlobalStatus != models.AttemptValid {
		for _, e := range r.Attempts[0].Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w, "\nSources:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, attempt := range r.Attempts {
		if attempt.Source == models.GlobalSchemaSource {
			continue
		}
		fmt.Fprintf(tw, "  %s\t%s\trows=%d\tcorrections=%d\t%s\n",
			attempt.Source, attempt.Status, attempt.RowCount, attempt.AttemptsUsed, attempt.Duration.Round(time.Millisecond))
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\nResults (%d):\n", len(r.RankedRecords))
	for i, rec := range r.RankedRecords {
		var parts []string
		for _, attr := range displayAttributes {
			if rec.HasValue(attr) {
				parts = append(parts, rec.Text(attr))
			}
		}
		fmt.Fprintf(w, "  %d. [%.2f] %s  (%s)\n", i+1, rec.Score, strings.Join(parts, " | "), strings.Join(rec.Sources, ", "))
	}
}
