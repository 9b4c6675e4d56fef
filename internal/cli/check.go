package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/flashgate/flashgate/internal/admission"
	"github.com/flashgate/flashgate/internal/clock"
	"github.com/flashgate/flashgate/internal/config"
	"github.com/flashgate/flashgate/internal/store"
)

func newCheckCmd() *cobra.Command {
	var (
		configPath string
		itemID     int64
		userID     int64
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run one admission check against the configured store",
		Long: `Runs the full admission pipeline once, without the HTTP layer: records an
attempt for the user, checks the block threshold, and requests a verification
token for the (item, user) pair. Useful for smoke-testing a deployment.`,
		Example: `  flashgate check --config flashgate.json --item 7 --user 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			gate, err := newGate(cfg, clock.NewRealClock(), zap.NewNop())
			if err != nil {
				return err
			}
			defer gate.store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			count, err := gate.controller.RecordAttempt(ctx, userID)
			if err != nil {
				return err
			}
			fmt.Printf("attempt recorded: count=%d\n", count)

			blocked, err := gate.controller.IsBlocked(ctx, userID)
			if err != nil {
				return err
			}
			if blocked {
				fmt.Printf("user %d is blocked (threshold %d)\n", userID, gate.controller.AllowCount())
				return nil
			}

			tok, err := gate.controller.RequestVerification(ctx, itemID, userID)
			switch {
			case errors.Is(err, admission.ErrInvalidUser):
				fmt.Printf("user %d does not exist\n", userID)
				return nil
			case errors.Is(err, admission.ErrInvalidItem):
				fmt.Printf("item %d does not exist\n", itemID)
				return nil
			case errors.Is(err, store.ErrUnavailable):
				return fmt.Errorf("store unavailable: %w", err)
			case err != nil:
				return err
			}

			fmt.Printf("token: %s\n", tok)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "flashgate.json", "path to the config file")
	cmd.Flags().Int64Var(&itemID, "item", 0, "item id to verify against")
	cmd.Flags().Int64Var(&userID, "user", 0, "user id making the attempt")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "per-request timeout")
	cmd.MarkFlagRequired("item")
	cmd.MarkFlagRequired("user")

	return cmd
}
