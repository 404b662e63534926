package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fieldbook/ppv-settlement/internal/database"
	"github.com/fieldbook/ppv-settlement/internal/utils"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(cronSecretCmd)
	walletCmd.AddCommand(walletVerifyCmd)

	reconcileCmd.Flags().String("question", "", "Question ID")
	reconcileCmd.Flags().String("best-answer", "", "Best answer ID; omit to force-settle")
	_ = reconcileCmd.MarkFlagRequired("question")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the settlement tables and indexes",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(_ context.Context, e *env, out io.Writer) error {
		if err := database.RunMigrations(e.db); err != nil {
			return err
		}
		fmt.Fprintln(out, "migrations applied")
		return nil
	}),
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one settlement sweep now",
	Long: `Run one settlement sweep: repair stuck pools, then settle every pending pool
whose question is past the grace period. The run is logged like a scheduled one.
Exits non-zero when any pool failed.`,
	Args: cobra.NoArgs,
	RunE: withEnv(func(ctx context.Context, e *env, out io.Writer) error {
		result, err := e.services.Scheduler.RunSweep(ctx)
		if err != nil {
			return err
		}
		if err := printJSON(out, result); err != nil {
			return err
		}
		return result.Err()
	}),
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Settle one question's pool",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		questionID, err := uuid.Parse(flagValue(cmd, "question"))
		if err != nil {
			return fmt.Errorf("invalid --question: %w", err)
		}
		var bestAnswerID uuid.UUID
		if raw := flagValue(cmd, "best-answer"); raw != "" {
			if bestAnswerID, err = uuid.Parse(raw); err != nil {
				return fmt.Errorf("invalid --best-answer: %w", err)
			}
		}

		return withEnv(func(ctx context.Context, e *env, out io.Writer) error {
			if bestAnswerID == uuid.Nil {
				result, err := e.services.Settlement.ForceDistribute(ctx, questionID)
				if err != nil {
					return err
				}
				return printJSON(out, result)
			}
			result, err := e.services.Settlement.Distribute(ctx, questionID, bestAnswerID)
			if err != nil {
				return err
			}
			return printJSON(out, result)
		})(cmd, nil)
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Mark pools distributed whose shares were already written",
	Args:  cobra.NoArgs,
	RunE: withEnv(func(ctx context.Context, e *env, out io.Writer) error {
		repaired, err := e.services.Settlement.RepairStuckPools(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "repaired %d pools\n", repaired)
		return nil
	}),
}

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Inspect wallets",
}

var walletVerifyCmd = &cobra.Command{
	Use:   "verify USER_ID",
	Short: "Compare a wallet's lifetime earnings with its ledger rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
		return withEnv(func(ctx context.Context, e *env, out io.Writer) error {
			check, err := e.services.Wallet.VerifyEarnings(ctx, userID)
			if err != nil {
				return err
			}
			if err := printJSON(out, check); err != nil {
				return err
			}
			if !check.Consistent {
				return fmt.Errorf("wallet %s total_earned %d does not match ledger %d", userID, check.TotalEarned, check.LedgerSum)
			}
			return nil
		})(cmd, args)
	},
}

var cronSecretCmd = &cobra.Command{
	Use:   "cron-secret",
	Short: "Generate a scheduler bearer secret and its CRON_SECRET_HASH",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		secret, hash, err := utils.GenerateCronSecret()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "secret: %s\n", secret)
		fmt.Fprintf(out, "CRON_SECRET_HASH=%s\n", hash)
		return nil
	},
}

func flagValue(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
