package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/aasubsidy/subsidyctl/internal/common"
	"github.com/aasubsidy/subsidyctl/internal/utils"
	"github.com/aasubsidy/subsidyctl/pkg/config"
	"github.com/aasubsidy/subsidyctl/pkg/details"
	"github.com/aasubsidy/subsidyctl/pkg/page"
	"github.com/aasubsidy/subsidyctl/pkg/selection"
	"github.com/aasubsidy/subsidyctl/pkg/session"
	"github.com/aasubsidy/subsidyctl/pkg/table"
	"github.com/aasubsidy/subsidyctl/pkg/viewstate"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// reviewCmd implements: subsidyctl review
var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Sort, filter and act on the contract review table",
}

// tableView is a loaded table ready to render.
type tableView struct {
	app     *app
	session *session.Session
	engine  *table.Engine
}

// pagePath returns the page that renders the given table.
func pagePath(a *app, key string) (string, error) {
	switch key {
	case page.ContractsTable:
		return a.cfg.Endpoints.ReviewPage, nil
	case page.SummaryTable:
		return a.cfg.Endpoints.SummaryPage, nil
	}
	return "", fmt.Errorf("unknown table %q, use %s or %s", key, page.ContractsTable, page.SummaryTable)
}

// openTable opens the app, loads the page of the --table flag and builds
// its engine. The returned view must be closed.
func openTable(cmd *cobra.Command) (*tableView, error) {
	key, _ := cmd.Flags().GetString("table")
	a, err := newApp(cmd)
	if err != nil {
		return nil, err
	}
	path, err := pagePath(a, key)
	if err != nil {
		a.Close()
		return nil, err
	}
	s, err := a.openSession(cmd.Context(), path)
	if err != nil {
		a.Close()
		return nil, err
	}
	e, err := a.engine(cmd.Context(), s.Snapshot(), key)
	if err != nil {
		a.Close()
		return nil, err
	}
	return &tableView{app: a, session: s, engine: e}, nil
}

func (tv *tableView) Close() {
	tv.app.Close()
}

func (tv *tableView) render(cmd *cobra.Command) error {
	return renderTable(cmd.OutOrStdout(), tv.engine, tv.session.Snapshot())
}

// resolveColumn accepts a column key or a zero-based index.
func resolveColumn(columns []table.Column, arg string) (int, error) {
	if idx, err := strconv.Atoi(arg); err == nil {
		if idx < 0 || idx >= len(columns) {
			return -1, fmt.Errorf("%w: index %d", table.ErrUnknownColumn, idx)
		}
		return idx, nil
	}
	idx := table.ColumnIndex(columns, arg)
	if idx < 0 {
		keys := make([]string, 0, len(columns))
		for _, c := range columns {
			if c.Key != "" {
				keys = append(keys, c.Key)
			}
		}
		return -1, fmt.Errorf("%w %q, available: %s", table.ErrUnknownColumn, arg, strings.Join(keys, ", "))
	}
	return idx, nil
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the table with its saved sort and filters applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tv, err := openTable(cmd)
		if err != nil {
			return err
		}
		defer tv.Close()
		return tv.render(cmd)
	},
}

var reviewSortCmd = &cobra.Command{
	Use:   "sort <column> [asc|desc]",
	Short: "Sort by a column. Without a direction the column toggles like a header click",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tv, err := openTable(cmd)
		if err != nil {
			return err
		}
		defer tv.Close()

		idx, err := resolveColumn(tv.engine.Table().Columns, args[0])
		if err != nil {
			return err
		}
		if len(args) == 2 {
			dir := viewstate.Direction(strings.ToLower(args[1]))
			if !dir.Valid() {
				return fmt.Errorf("direction must be asc or desc, got %q", args[1])
			}
			err = tv.engine.SortBy(cmd.Context(), idx, dir)
		} else {
			err = tv.engine.ToggleSort(cmd.Context(), idx)
		}
		if err != nil {
			return err
		}
		return tv.render(cmd)
	},
}

var reviewFilterCmd = &cobra.Command{
	Use:   "filter <column> [text]",
	Short: "Filter rows by a case-insensitive substring of a column. Empty text clears the filter",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tv, err := openTable(cmd)
		if err != nil {
			return err
		}
		defer tv.Close()

		text := ""
		if len(args) == 2 {
			text = args[1]
		}
		if err := tv.engine.SetFilter(cmd.Context(), args[0], text); err != nil {
			return err
		}
		return tv.render(cmd)
	},
}

var reviewItemsCmd = &cobra.Command{
	Use:   "items <contract-id>...",
	Short: "Show the items of one or more contracts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tv, err := openTable(cmd)
		if err != nil {
			return err
		}
		defer tv.Close()

		loader := details.NewLoader(tv.app.remote, utils.Log)
		tv.session.OnReload(func(*page.Snapshot) { loader.Reset() })

		out := cmd.OutOrStdout()
		for i, id := range args {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "Contract %s\n", id)
			_, res := loader.Toggle(cmd.Context(), id)
			if err := details.Render(out, res); err != nil {
				return err
			}
		}
		return nil
	},
}

// contractAction loads the review page and checks the contract is on it.
func contractAction(cmd *cobra.Command, id string, run func(ctx context.Context, tv *tableView) error) error {
	tv, err := openTable(cmd)
	if err != nil {
		return err
	}
	defer tv.Close()

	if _, ok := tv.session.Snapshot().Contracts[id]; !ok {
		return common.NewUserError(fmt.Sprintf("contract %s is not on the review page", id), nil)
	}
	if err := run(cmd.Context(), tv); err != nil {
		return err
	}
	return tv.render(cmd)
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <contract-id>",
	Short: "Approve a contract with the subsidy currently entered for it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		return contractAction(cmd, id, func(ctx context.Context, tv *tableView) error {
			d := tv.app.dispatcher(tv.session)
			if cmd.Flags().Changed("subsidy") {
				raw, _ := cmd.Flags().GetString("subsidy")
				amount, err := decimal.NewFromString(strings.TrimSpace(raw))
				if err != nil {
					return common.NewUserError(fmt.Sprintf("%q is not a valid amount", raw), err)
				}
				return d.Approve(ctx, id, amount)
			}
			return d.ApproveCurrent(ctx, id)
		})
	},
}

// applyAnswerFlags hands --subsidy and the given text flag to the prompter
// so it does not ask for them.
func applyAnswerFlags(cmd *cobra.Command, a *app, textFlag string) {
	if cmd.Flags().Changed("subsidy") {
		v, _ := cmd.Flags().GetString("subsidy")
		a.prompt.subsidy = &v
	}
	if cmd.Flags().Changed(textFlag) {
		v, _ := cmd.Flags().GetString(textFlag)
		a.prompt.comment = &v
	}
}

var reviewApproveCommentCmd = &cobra.Command{
	Use:   "approve-comment <contract-id>",
	Short: "Approve a contract with a comment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		return contractAction(cmd, id, func(ctx context.Context, tv *tableView) error {
			applyAnswerFlags(cmd, tv.app, "comment")
			return tv.app.dispatcher(tv.session).ApproveWithComment(ctx, id)
		})
	},
}

var reviewDenyCmd = &cobra.Command{
	Use:   "deny <contract-id>",
	Short: "Deny a contract with a reason",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		return contractAction(cmd, id, func(ctx context.Context, tv *tableView) error {
			applyAnswerFlags(cmd, tv.app, "reason")
			return tv.app.dispatcher(tv.session).Deny(ctx, id)
		})
	},
}

var reviewForceFitCmd = &cobra.Command{
	Use:   "force-fit <contract-id> [fit-id]",
	Short: "Override the doctrine fit matched to a contract. Without a fit id the override is cleared",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		list, _ := cmd.Flags().GetBool("list")
		if list {
			tv, err := openTable(cmd)
			if err != nil {
				return err
			}
			defer tv.Close()
			row, ok := tv.session.Snapshot().Contracts[id]
			if !ok {
				return common.NewUserError(fmt.Sprintf("contract %s is not on the review page", id), nil)
			}
			for _, o := range row.FitOptions {
				marker := " "
				if o.Selected {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, page.DescribeFit(o))
			}
			return nil
		}

		fitID := ""
		if len(args) == 2 {
			fitID = args[1]
		}
		return contractAction(cmd, id, func(ctx context.Context, tv *tableView) error {
			return tv.app.dispatcher(tv.session).ForceFit(ctx, id, fitID)
		})
	},
}

var reviewBulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Act on several contracts at once",
}

// bulkSelection checks the rows named by --ids, or every visible row with
// --all, and returns the visible checked ids in display order.
func bulkSelection(cmd *cobra.Command, tv *tableView) []string {
	set := selection.New()
	set.SetVisible(tv.engine.VisibleIDs())
	if all, _ := cmd.Flags().GetBool("all"); all {
		set.SelectAllVisible(true)
	}
	raw, _ := cmd.Flags().GetString("ids")
	for _, id := range utils.SplitIDs(raw) {
		set.Check(id, true)
	}
	utils.Log.Debugf("bulk selection: %d rows, select-all %s", set.Count(), set.All())
	return set.Selected()
}

// sharedText returns the value of a text flag, asking for it once when unset.
func sharedText(cmd *cobra.Command, a *app, flag, label string) (string, error) {
	if cmd.Flags().Changed(flag) {
		v, _ := cmd.Flags().GetString(flag)
		return v, nil
	}
	answer, ok, err := a.prompt.ask(label + ": ")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", common.ErrCancelled
	}
	return answer, nil
}

func runBulk(cmd *cobra.Command, run func(ctx context.Context, tv *tableView, ids []string) error) error {
	tv, err := openTable(cmd)
	if err != nil {
		return err
	}
	defer tv.Close()

	ids := bulkSelection(cmd, tv)
	if err := run(cmd.Context(), tv, ids); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %d contracts.\n", len(ids))
	return tv.render(cmd)
}

var reviewBulkApproveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Approve the selected contracts, each with its own subsidy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBulk(cmd, func(ctx context.Context, tv *tableView, ids []string) error {
			return tv.app.dispatcher(tv.session).BulkApprove(ctx, ids)
		})
	},
}

var reviewBulkApproveCommentCmd = &cobra.Command{
	Use:   "approve-comment",
	Short: "Approve the selected contracts with one shared comment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBulk(cmd, func(ctx context.Context, tv *tableView, ids []string) error {
			d := tv.app.dispatcher(tv.session)
			if len(ids) == 0 {
				return d.BulkApproveWithComment(ctx, ids, "")
			}
			comment, err := sharedText(cmd, tv.app, "comment", tv.app.prompt.lang.EnterComment)
			if err != nil {
				return err
			}
			return d.BulkApproveWithComment(ctx, ids, comment)
		})
	},
}

var reviewBulkDenyCmd = &cobra.Command{
	Use:   "deny",
	Short: "Deny the selected contracts with one shared reason",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBulk(cmd, func(ctx context.Context, tv *tableView, ids []string) error {
			d := tv.app.dispatcher(tv.session)
			if len(ids) == 0 {
				return d.BulkDeny(ctx, ids, "")
			}
			reason, err := sharedText(cmd, tv.app, "reason", tv.app.prompt.lang.EnterReason)
			if err != nil {
				return err
			}
			return d.BulkDeny(ctx, ids, reason)
		})
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(reviewListCmd, reviewSortCmd, reviewFilterCmd, reviewItemsCmd,
		reviewApproveCmd, reviewApproveCommentCmd, reviewDenyCmd, reviewForceFitCmd, reviewBulkCmd)
	reviewBulkCmd.AddCommand(reviewBulkApproveCmd, reviewBulkApproveCommentCmd, reviewBulkDenyCmd)

	reviewCmd.PersistentFlags().String("table", page.ContractsTable, "Table to work on: contracts or summary")

	for _, c := range []*cobra.Command{reviewApproveCmd, reviewApproveCommentCmd, reviewDenyCmd} {
		c.Flags().String("subsidy", "", "Subsidy amount (default: the amount entered on the page)")
	}
	reviewApproveCommentCmd.Flags().String("comment", "", "Comment to send instead of asking for one")
	reviewDenyCmd.Flags().String("reason", "", "Reason to send instead of asking for one")
	reviewForceFitCmd.Flags().Bool("list", false, "List the fits that can be forced for the contract")

	reviewBulkCmd.PersistentFlags().String("ids", "", "Comma-separated contract ids to select")
	reviewBulkCmd.PersistentFlags().Bool("all", false, "Select every row visible under the current filters")
	reviewBulkCmd.PersistentFlags().Int("concurrency", config.DefaultConcurrency, "Number of concurrent requests")
	viper.BindPFlag("bulk.concurrency", reviewBulkCmd.PersistentFlags().Lookup("concurrency"))
	reviewBulkApproveCommentCmd.Flags().String("comment", "", "Comment shared by every contract")
	reviewBulkDenyCmd.Flags().String("reason", "", "Reason shared by every contract")
}
