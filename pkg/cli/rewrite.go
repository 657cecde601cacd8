package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-federation/pkg/models"
	"github.com/ekaya-inc/ekaya-federation/pkg/sql"
)

// RewriteOptions holds flags of the rewrite command.
type RewriteOptions struct {
	Source string
}

// RewriteResult is the rewrite of a global query for one source.
type RewriteResult struct {
	Source  string         `json:"source"`
	Dialect models.Dialect `json:"dialect"`
	SQL     string         `json:"sql,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type rewriteOutput []RewriteResult

func (o rewriteOutput) renderText(w io.Writer) {
	for _, r := range o {
		if r.Error != "" {
			fmt.Fprintf(w, "%s (%s): error: %s\n", r.Source, r.Dialect, r.Error)
			continue
		}
		fmt.Fprintf(w, "%s (%s):\n  %s\n", r.Source, r.Dialect, r.SQL)
	}
}

// NewRewriteCommand creates the rewrite command.
func NewRewriteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RewriteOptions{}

	cmd := &cobra.Command{
		Use:   "rewrite <global-sql>",
		Short: "Show the per-source rewrites of a global query",
		Long: `Rewrites a global-schema query into each source's dialect and physical
schema without validating or executing it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRewrite(cmd, rootOpts, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "rewrite for this source only")

	return cmd
}

func runRewrite(cmd *cobra.Command, rootOpts *RootOptions, opts *RewriteOptions, globalQuery string) error {
	formatter := newFormatter(rootOpts, cmd)

	a, err := loadApp(rootOpts)
	if err != nil {
		return reportError(formatter, ErrCodeConfig, err)
	}
	defer a.close()

	sources := a.registry.Sources()
	if opts.Source != "" {
		src, err := a.registry.Source(opts.Source)
		if err != nil {
			return reportError(formatter, ErrCodeUnknownSource, WrapExitError(ExitCommandError, "unknown source", err))
		}
		sources = []*models.SourceDescriptor{src}
	}

	out := make(rewriteOutput, 0, len(sources))
	failed := 0
	for _, src := range sources {
		res := RewriteResult{Source: src.Name, Dialect: src.Dialect}
		rewritten, err := sql.NewRewriter(src, a.registry).Rewrite(globalQuery)
		if err != nil {
			res.Error = err.Error()
			failed++
		} else {
			res.SQL = rewritten.SQL
		}
		out = append(out, res)
	}

	if failed > 0 {
		if err := formatter.Failure(ErrCodeInvalidQuery, fmt.Sprintf("%d source(s) could not be rewritten", failed), out); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "rewrite failed")
	}
	return formatter.Success(out)
}
