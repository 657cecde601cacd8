package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-federation/pkg/models"
	"github.com/ekaya-inc/ekaya-federation/pkg/services"
	"github.com/ekaya-inc/ekaya-federation/pkg/sql"
)

// ValidateOptions holds flags of the validate command.
type ValidateOptions struct {
	Source string
}

// Finding is a string literal flagged by injection screening.
type Finding struct {
	Label       string `json:"label"`
	Fingerprint string `json:"fingerprint"`
}

// ValidationResult is the verdict for one query.
type ValidationResult struct {
	Scope         string                    `json:"scope"`
	Dialect       models.Dialect            `json:"dialect"`
	StatementType services.SQLStatementType `json:"statement_type"`
	models.ValidationVerdict
	Injections []Finding `json:"injections,omitempty"`
}

func (r ValidationResult) renderText(w io.Writer) {
	status := "valid"
	if !r.Valid {
		status = "invalid"
	}
	fmt.Fprintf(w, "%s (%s, %s): %s\n", r.Scope, r.Dialect, r.StatementType, status)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
	for _, warn := range r.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warn)
	}
	for _, f := range r.Injections {
		fmt.Fprintf(w, "  injection: %s (fingerprint %s)\n", f.Label, f.Fingerprint)
	}
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate <sql>",
		Short: "Validate a query against the global schema or one source",
		Long: `Checks a query structurally and semantically. Without --source the query
is validated as a global-schema query; with --source it is validated
against that source's physical tables and columns.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "validate against this source")

	return cmd
}

func runValidate(cmd *cobra.Command, rootOpts *RootOptions, opts *ValidateOptions, query string) error {
	formatter := newFormatter(rootOpts, cmd)

	a, err := loadApp(rootOpts)
	if err != nil {
		return reportError(formatter, ErrCodeConfig, err)
	}
	defer a.close()

	scope := models.GlobalSchemaSource
	dialect := models.GlobalDialect
	schema := a.registry.GlobalValidationSchema()
	if opts.Source != "" {
		src, err := a.registry.Source(opts.Source)
		if err != nil {
			return reportError(formatter, ErrCodeUnknownSource, WrapExitError(ExitCommandError, "unknown source", err))
		}
		scope, dialect, schema = src.Name, src.Dialect, a.registry.LocalSchema(src)
	}

	report := sql.Check(query, dialect, schema)
	result := ValidationResult{
		Scope:             scope,
		Dialect:           dialect,
		StatementType:     services.DetectSQLType(query),
		ValidationVerdict: report.Verdict,
	}
	for _, inj := range report.Injections {
		result.Injections = append(result.Injections, Finding{Label: inj.Label, Fingerprint: inj.Fingerprint})
	}

	if !result.Valid {
		if err := formatter.Failure(ErrCodeInvalidQuery, "query is invalid", result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "query is invalid")
	}
	return formatter.Success(result)
}
