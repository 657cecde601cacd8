package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-federation/pkg/logging"
	"github.com/ekaya-inc/ekaya-federation/pkg/models"
	"github.com/ekaya-inc/ekaya-federation/pkg/repositories"
)

// HistoryOptions holds flags of the history subcommands.
type HistoryOptions struct {
	Status    string
	Since     time.Duration
	Limit     int
	OlderThan time.Duration
}

type historyOutput []*models.RunHistoryEntry

func (o historyOutput) renderText(w io.Writer) {
	if len(o) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range o {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d ok\t%d records\t%dms\t%s\n",
			e.StartedAt.Local().Format(time.DateTime), e.ID, e.GlobalStatus,
			e.OKCount, e.SourceCount, e.RecordCount, e.DurationMs,
			logging.TruncateString(strings.Join(strings.Fields(e.GlobalQuery), " "), 60))
	}
	_ = tw.Flush()
}

// PruneResult reports how many runs were deleted.
type PruneResult struct {
	Deleted int64     `json:"deleted"`
	Cutoff  time.Time `json:"cutoff"`
}

func (r PruneResult) String() string {
	return fmt.Sprintf("Deleted %d run(s) started before %s", r.Deleted, r.Cutoff.Local().Format(time.DateTime))
}

// historyOpener returns the run history repository for a loaded app.
type historyOpener func(a *app, ctx context.Context) (repositories.RunHistoryRepository, error)

// NewHistoryCommand creates the history command group.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return newHistoryCommand(rootOpts, (*app).openHistory)
}

func newHistoryCommand(rootOpts *RootOptions, open historyOpener) *cobra.Command {
	opts := &HistoryOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded federation runs",
		Long: `Lists or prunes the run history kept in PostgreSQL when history.enabled
is set. Only statuses and queries are stored, never result rows.`,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(cmd, rootOpts, opts, open)
		},
	}
	list.Flags().StringVar(&opts.Status, "status", "", "only runs whose global query ended in this state (VALID|EXHAUSTED)")
	list.Flags().DurationVar(&opts.Since, "since", 0, "only runs started within this duration")
	list.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum runs to list")

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryPrune(cmd, rootOpts, opts, open)
		},
	}
	prune.Flags().DurationVar(&opts.OlderThan, "older-than", 30*24*time.Hour, "delete runs started before now minus this duration")

	cmd.AddCommand(list, prune)
	return cmd
}

func runHistoryList(cmd *cobra.Command, rootOpts *RootOptions, opts *HistoryOptions, open historyOpener) error {
	formatter := newFormatter(rootOpts, cmd)

	a, err := loadApp(rootOpts)
	if err != nil {
		return reportError(formatter, ErrCodeConfig, err)
	}
	defer a.close()

	repo, err := open(a, cmd.Context())
	if err != nil {
		return reportError(formatter, ErrCodeHistory, err)
	}

	filters := models.RunHistoryFilters{
		GlobalStatus: models.AttemptState(strings.ToUpper(opts.Status)),
		Limit:        opts.Limit,
	}
	if opts.Since > 0 {
		since := time.Now().Add(-opts.Since)
		filters.Since = &since
	}

	entries, err := repo.List(cmd.Context(), filters)
	if err != nil {
		return reportError(formatter, ErrCodeHistory, err)
	}
	return formatter.Success(historyOutput(entries))
}

func runHistoryPrune(cmd *cobra.Command, rootOpts *RootOptions, opts *HistoryOptions, open historyOpener) error {
	formatter := newFormatter(rootOpts, cmd)

	a, err := loadApp(rootOpts)
	if err != nil {
		return reportError(formatter, ErrCodeConfig, err)
	}
	defer a.close()

	repo, err := open(a, cmd.Context())
	if err != nil {
		return reportError(formatter, ErrCodeHistory, err)
	}

	cutoff := time.Now().Add(-opts.OlderThan)
	deleted, err := repo.DeleteOlderThan(cmd.Context(), cutoff)
	if err != nil {
		return reportError(formatter, ErrCodeHistory, err)
	}
	a.logger.Info("Pruned run history", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	return formatter.Success(PruneResult{Deleted: deleted, Cutoff: cutoff})
}
