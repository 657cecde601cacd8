package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-federation/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-federation/pkg/logging"
	"github.com/ekaya-inc/ekaya-federation/pkg/models"
	"github.com/ekaya-inc/ekaya-federation/pkg/schema"
)

// Source check outcomes.
const (
	CheckOK             = "ok"
	CheckSkipped        = "skipped"
	CheckMissingColumns = "missing_columns"
	CheckError          = "error"
)

// SourcesOptions holds flags of the sources command.
type SourcesOptions struct {
	Check bool
}

// SourceInfo describes one registered source.
type SourceInfo struct {
	Name          string             `json:"name"`
	Dialect       models.Dialect     `json:"dialect"`
	Type          string             `json:"type"`
	PhysicalTable string             `json:"physical_table"`
	Tables        models.LocalSchema `json:"tables"`
	Unmapped      []string           `json:"unmapped,omitempty"`
	Check         *SourceCheck       `json:"check,omitempty"`
}

// SourceCheck is the outcome of probing a source's mapped columns.
type SourceCheck struct {
	Status  string              `json:"status"`
	Missing map[string][]string `json:"missing,omitempty"`
	Error   string              `json:"error,omitempty"`
}

type sourcesOutput []SourceInfo

func (o sourcesOutput) renderText(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range o {
		tables := make([]string, 0, len(s.Tables))
		for t, cols := range s.Tables {
			tables = append(tables, fmt.Sprintf("%s(%d)", t, len(cols)))
		}
		sort.Strings(tables)
		line := fmt.Sprintf("%s\t%s\t%s\t%s", s.Name, s.Dialect, s.Type, strings.Join(tables, ","))
		if s.Check != nil {
			line += "\t" + s.Check.Status
		}
		fmt.Fprintln(tw, line)
	}
	_ = tw.Flush()

	for _, s := range o {
		if s.Check == nil {
			continue
		}
		for table, cols := range s.Check.Missing {
			fmt.Fprintf(w, "%s: %s is missing %s\n", s.Name, table, strings.Join(cols, ", "))
		}
		if s.Check.Error != "" {
			fmt.Fprintf(w, "%s: %s\n", s.Name, s.Check.Error)
		}
	}
}

// NewSourcesCommand creates the sources command.
func NewSourcesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SourcesOptions{}

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List registered sources",
		Long: `Lists every registered source with its dialect, connector type and the
physical tables its attribute map refers to. With --check each source is
connected and its mapped columns are probed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSources(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Check, "check", false, "connect to each source and verify mapped columns")

	return cmd
}

func runSources(cmd *cobra.Command, rootOpts *RootOptions, opts *SourcesOptions) error {
	formatter := newFormatter(rootOpts, cmd)

	a, err := loadApp(rootOpts)
	if err != nil {
		return reportError(formatter, ErrCodeConfig, err)
	}
	defer a.close()

	var factory datasource.AdapterFactory
	if opts.Check {
		factory = datasource.NewAdapterFactory(a.newConnectionManager())
	}

	out := make(sourcesOutput, 0, len(a.registry.Sources()))
	failed := 0
	for _, src := range a.registry.Sources() {
		info := describeSource(a.registry, src)
		if opts.Check {
			formatter.VerboseLog("Checking %s", src.Name)
			info.Check = a.checkSource(cmd.Context(), factory, src, info.Tables)
			if info.Check.Status == CheckError || info.Check.Status == CheckMissingColumns {
				failed++
			}
		}
		out = append(out, info)
	}

	if failed > 0 {
		if err := formatter.Failure(ErrCodeSourceCheck, fmt.Sprintf("%d source(s) failed the check", failed), out); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "source check failed")
	}
	return formatter.Success(out)
}

func describeSource(registry *schema.Registry, src *models.SourceDescriptor) SourceInfo {
	info := SourceInfo{
		Name:          src.Name,
		Dialect:       src.Dialect,
		Type:          src.ConnectorType(),
		PhysicalTable: src.PhysicalTable,
		Tables:        registry.LocalSchema(src),
	}
	for _, attr := range registry.Global().Names() {
		if _, ok := src.LocalColumn(attr); !ok {
			info.Unmapped = append(info.Unmapped, attr)
		}
	}
	return info
}

// checkSource probes every table the source's mapping refers to.
func (a *app) checkSource(ctx context.Context, factory datasource.AdapterFactory, src *models.SourceDescriptor, tables models.LocalSchema) *SourceCheck {
	timeout := a.cfg.Federation.ExecutionTimeout
	if src.Timeout > 0 {
		timeout = src.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	exec, err := factory.NewQueryExecutor(ctx, src)
	if errors.Is(err, datasource.ErrAdapterNotRegistered) || errors.Is(err, datasource.ErrNoConnection) {
		return &SourceCheck{Status: CheckSkipped, Error: err.Error()}
	}
	if err != nil {
		return &SourceCheck{Status: CheckError, Error: logging.SanitizeError(err)}
	}
	defer exec.Close()

	check := &SourceCheck{Status: CheckOK}
	for table, cols := range tables {
		have, err := datasource.ProbeColumns(ctx, exec, table)
		if err != nil {
			return &SourceCheck{Status: CheckError, Error: logging.SanitizeError(err)}
		}
		if missing := datasource.MissingColumns(have, cols); len(missing) > 0 {
			if check.Missing == nil {
				check.Missing = make(map[string][]string)
			}
			check.Missing[table] = missing
			check.Status = CheckMissingColumns
		}
	}
	return check
}
