package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/aasubsidy/subsidyctl/pkg/page"
	"github.com/aasubsidy/subsidyctl/pkg/viewstate"
	"github.com/spf13/cobra"
)

// prefsCmd implements: subsidyctl prefs
var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Inspect or reset the saved sort and filters of each table",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the locally saved view state of every table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, lock, err := openLocal()
		if err != nil {
			return err
		}
		defer closeLocal(db, lock)

		rows, err := db.ListViewStates(cmd.Context())
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No saved view state.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TABLE\tSORT\tFILTERS\tUPDATED")
		for _, r := range rows {
			st := viewstate.ParseState(r.StateJSON)
			sort := "-"
			if st.Sort != nil {
				sort = fmt.Sprintf("%d %s", st.Sort.Idx, st.Sort.Dir)
			}
			filters := "-"
			if len(st.Filters) > 0 {
				filters = fmt.Sprintf("%v", st.Filters)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.TableKey, sort, filters, r.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var prefsResetCmd = &cobra.Command{
	Use:   "reset [table]",
	Short: "Forget the locally saved view state of a table (default: all tables)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, lock, err := openLocal()
		if err != nil {
			return err
		}
		defer closeLocal(db, lock)

		keys := []string{page.ContractsTable, page.SummaryTable}
		if len(args) == 1 {
			keys = args
		}
		for _, key := range keys {
			if err := viewstate.New(viewstate.Options{TableKey: key, Local: db}).Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %s.\n", key)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsShowCmd, prefsResetCmd)
}
