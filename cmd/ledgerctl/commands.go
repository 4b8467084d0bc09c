package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/ManuelReschke/CreatorVault/app/repository"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/database"
)

const commandTimeout = 5 * time.Minute

func printYAML(v interface{}) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}

func parseID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return uint(id), nil
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [creatorID]",
		Short: "Print a creator's derived balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creatorID, err := parseID(args[0])
			if err != nil {
				return err
			}
			ledger, err := newLedger()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			balance, err := ledger.ComputeBalance(ctx, creatorID)
			if err != nil {
				return err
			}
			return printYAML(balance)
		},
	}
}

func payoutsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payouts",
		Short: "List payouts in a status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			ledger, err := newLedger()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			payouts, err := ledger.ListPayoutsByStatus(ctx, status)
			if err != nil {
				return err
			}
			for _, p := range payouts {
				fmt.Printf("%-6d creator=%-6d %10d %s %s\n", p.ID, p.CreatorID, p.Amount, p.Currency, p.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringP("status", "s", models.PayoutStatusPending, "Payout status")
	return cmd
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile-refunds",
		Short: "Settle APPROVED refunds whose provider outcome is unknown",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := newLedger()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			report, err := ledger.ReconcileRefunds(ctx)
			if err != nil {
				return err
			}
			return printYAML(report)
		},
	}
}

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-webhooks",
		Short: "Delete webhook events past the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := newLedger()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()
			purged, err := ledger.PurgeWebhookEvents(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d webhook events\n", purged)
			return nil
		},
	}
}

func apiKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "api-key [userID]",
		Short: "Issue a new API key for a user, revoking the old one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseID(args[0])
			if err != nil {
				return err
			}
			database.SetupDatabase()
			users := repository.NewFactory(database.GetDB()).GetUserRepository()
			raw, user, err := users.RotateAPIKey(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("issue api key for user %d: %w", userID, err)
			}
			fmt.Printf("API key for %s (shown once): %s\n", user.Email, raw)
			return nil
		},
	}
}
