package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"text/tabwriter"

	"github.com/aasubsidy/subsidyctl/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the local subsidyctl database",
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, err := utils.GetAbsDBPath(viper.GetString("db.path"))
		if err != nil {
			return err
		}

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", dbPath)
		}

		// Check if sqlite3 is in PATH
		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		// Print schema first
		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, dbPath, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, dbPath)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints how many actions were sent and how many failed, per action.",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, lock, err := openLocal()
		if err != nil {
			return err
		}
		defer closeLocal(db, lock)

		stats, err := db.GetActionStats(cmd.Context())
		if err != nil {
			return err
		}

		if len(stats) == 0 {
			fmt.Println("No actions recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "ACTION\tOK\tFAILED\tLAST SENT\t")

		var totalOK, totalErr int
		for _, s := range stats {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t\n", s.Action, s.OKCount, s.ErrCount, s.LastSent.Local().Format("2006-01-02 15:04"))
			totalOK += s.OKCount
			totalErr += s.ErrCount
		}

		fmt.Fprintln(w, " \t \t \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t%d\t \t\n", totalOK, totalErr)

		w.Flush()

		return nil
	},
}

// logCmd represents the log command
var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Prints the most recent actions sent to the server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		db, lock, err := openLocal()
		if err != nil {
			return err
		}
		defer closeLocal(db, lock)

		records, err := db.ListRecentActions(cmd.Context(), limit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tACTION\tTARGET\tMODE\tRESULT")
		for _, r := range records {
			result := r.Result
			if r.Error != "" {
				result += ": " + r.Error
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.OccurredAt.Local().Format("2006-01-02 15:04:05"), r.Action, r.TargetID, r.Mode, result)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd)
	dbCmd.AddCommand(statsCmd)
	dbCmd.AddCommand(logCmd)
	logCmd.Flags().Int("limit", 20, "Number of actions to print")
}
