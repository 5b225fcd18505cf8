package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/aasubsidy/subsidyctl/internal/common"
	"github.com/aasubsidy/subsidyctl/pkg/ledger"
	"github.com/aasubsidy/subsidyctl/pkg/session"
	"github.com/spf13/cobra"
)

// claimsCmd implements: subsidyctl claims
var claimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "See and manage claims on doctrine fits",
}

// adminClearError explains failures the admin can act on.
func adminClearError(err error) error {
	if errors.Is(err, ledger.ErrNoClaimantIdentities) {
		return common.NewUserError("admin-clear needs member ids, but this page lists claimants by name only (no data-claimants-json attribute)", err)
	}
	return err
}

func parseFitID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid fit id %q", arg)
	}
	return id, nil
}

// withLedger loads the summary page and runs fn against its claim ledger.
func withLedger(cmd *cobra.Command, fn func(a *app, s *session.Session, l *ledger.Ledger) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.openSession(cmd.Context(), a.cfg.Endpoints.SummaryPage)
	if err != nil {
		return err
	}
	return fn(a, s, a.ledger(s))
}

var claimsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every fit with its claims",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(_ *app, s *session.Session, _ *ledger.Ledger) error {
			claims := s.Snapshot().Claims
			if len(claims) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No fits to claim on this page.")
				return nil
			}
			return renderClaims(cmd.OutOrStdout(), claims)
		})
	},
}

var claimsShowCmd = &cobra.Command{
	Use:   "show <fit-id>",
	Short: "Show the claim summary of one fit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fitID, err := parseFitID(args[0])
		if err != nil {
			return err
		}
		return withLedger(cmd, func(_ *app, _ *session.Session, l *ledger.Ledger) error {
			d, err := l.Open(fitID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, d.Entry.FitName)
			fmt.Fprintln(out, d.Hint)
			if d.Prefill != "" {
				fmt.Fprintf(out, "Your claim: %s\n", d.Prefill)
			}
			for _, c := range d.Entry.Others {
				fmt.Fprintf(out, "  member %d: %s (%d)\n", c.Identity, c.DisplayName, c.Quantity)
			}
			return nil
		})
	},
}

var claimsSetCmd = &cobra.Command{
	Use:   "set <fit-id> <quantity>",
	Short: "Set how many of a fit you will deliver",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fitID, err := parseFitID(args[0])
		if err != nil {
			return err
		}
		return withLedger(cmd, func(a *app, s *session.Session, l *ledger.Ledger) error {
			qty, err := ledger.ParseQuantity(args[1])
			if err != nil {
				return common.Invalid(ledger.ErrInvalidQuantity, a.lang(s.Snapshot()).InvalidQuantity)
			}
			if err := l.Save(cmd.Context(), fitID, qty); err != nil {
				return err
			}
			return printClaim(cmd, s, fitID)
		})
	},
}

var claimsClearCmd = &cobra.Command{
	Use:   "clear <fit-id>",
	Short: "Remove your claim on a fit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fitID, err := parseFitID(args[0])
		if err != nil {
			return err
		}
		return withLedger(cmd, func(_ *app, s *session.Session, l *ledger.Ledger) error {
			if err := l.Clear(cmd.Context(), fitID); err != nil {
				return err
			}
			return printClaim(cmd, s, fitID)
		})
	},
}

var claimsAdminClearCmd = &cobra.Command{
	Use:   "admin-clear <fit-id> <member-id>",
	Short: "Remove another member's claim on a fit (admins only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fitID, err := parseFitID(args[0])
		if err != nil {
			return err
		}
		member, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid member id %q", args[1])
		}
		return withLedger(cmd, func(a *app, s *session.Session, l *ledger.Ledger) error {
			a.prompt.yes, _ = cmd.Flags().GetBool("yes")
			err := l.AdminClear(cmd.Context(), fitID, member)
			if errors.Is(err, ledger.ErrCancelled) {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing removed.")
				return nil
			}
			if err != nil {
				return adminClearError(err)
			}
			return printClaim(cmd, s, fitID)
		})
	},
}

// printClaim prints the fit's state from the reloaded snapshot.
func printClaim(cmd *cobra.Command, s *session.Session, fitID int) error {
	e, ok := s.ClaimEntry(fitID)
	if !ok {
		return nil
	}
	return renderClaims(cmd.OutOrStdout(), []ledger.Entry{e})
}

func init() {
	rootCmd.AddCommand(claimsCmd)
	claimsCmd.AddCommand(claimsListCmd, claimsShowCmd, claimsSetCmd, claimsClearCmd, claimsAdminClearCmd)
	claimsAdminClearCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
}
