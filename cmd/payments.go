package cmd

import (
	"fmt"
	"strings"

	"github.com/aasubsidy/subsidyctl/internal/common"
	"github.com/spf13/cobra"
)

// paymentsCmd implements: subsidyctl payments
var paymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "List pending payments and mark them as paid",
}

var paymentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List characters with approved, unpaid contracts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.openSession(cmd.Context(), a.cfg.Endpoints.PaymentsPage)
		if err != nil {
			return err
		}
		payments := s.Snapshot().Payments
		if len(payments) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to pay.")
			return nil
		}
		return renderPayments(cmd.OutOrStdout(), payments)
	},
}

var paymentsMarkPaidCmd = &cobra.Command{
	Use:   "mark-paid <character>",
	Short: "Mark every approved contract of a character as paid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		character := strings.TrimSpace(args[0])
		if character == "" {
			return fmt.Errorf("character must not be empty")
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		// Loading the page first picks up the CSRF token.
		s, err := a.openSession(cmd.Context(), a.cfg.Endpoints.PaymentsPage)
		if err != nil {
			return err
		}
		n, err := a.remote.MarkPaid(cmd.Context(), character)
		a.record("mark_paid", character, "single", err)
		if err != nil {
			return common.NewUserError(a.lang(s.Snapshot()).MarkPaidFailed, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), printer.Sprintf("Marked %d contracts of %s as paid.", n, character))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(paymentsCmd)
	paymentsCmd.AddCommand(paymentsListCmd, paymentsMarkPaidCmd)
}
