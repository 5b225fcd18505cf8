package cmd

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/aasubsidy/subsidyctl/internal/utils"
	"github.com/aasubsidy/subsidyctl/pkg/remote"
	"github.com/aasubsidy/subsidyctl/pkg/search"
	"github.com/spf13/cobra"
)

// locationsCmd implements: subsidyctl locations
var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "Look up solar systems and stations",
}

func printLocations(w io.Writer, query string, locations []remote.Location) {
	if locations == nil {
		fmt.Fprintf(w, "%q: no results (queries need at least %d characters)\n", query, search.DefaultMinLen)
		return
	}
	fmt.Fprintf(w, "%q: %d results\n", query, len(locations))
	for _, l := range locations {
		fmt.Fprintf(w, "  %d\t%s\n", l.ID, l.Name)
	}
}

var locationsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search locations by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, rc, err := newClient(cmd)
		if err != nil {
			return err
		}
		category, _ := cmd.Flags().GetString("category")

		done := make(chan struct{})
		d := search.NewDebouncer(rc, category, func(q string, locations []remote.Location) {
			printLocations(cmd.OutOrStdout(), q, locations)
			close(done)
		}, utils.Log)
		d.Delay = 0
		d.Input(cmd.Context(), args[0])
		<-done
		return nil
	},
}

var locationsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Search as you type: every line read from stdin replaces the query",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, rc, err := newClient(cmd)
		if err != nil {
			return err
		}
		category, _ := cmd.Flags().GetString("category")

		var mu sync.Mutex
		out := cmd.OutOrStdout()
		d := search.NewDebouncer(rc, category, func(q string, locations []remote.Location) {
			mu.Lock()
			defer mu.Unlock()
			printLocations(out, q, locations)
		}, utils.Log)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			d.Input(cmd.Context(), scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			d.Stop()
			return err
		}
		d.Flush()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(locationsCmd)
	locationsCmd.AddCommand(locationsSearchCmd, locationsWatchCmd)
	locationsCmd.PersistentFlags().String("category", "", "Restrict results to a category (for example solar_system or station)")
}
