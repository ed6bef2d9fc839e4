package cmd

import (
	"fmt"
	"log"

	"referral-ledger/devicestate"
	"referral-ledger/ledger"
	"referral-ledger/referral"

	"github.com/spf13/cobra"
)

var statePath string

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Device agent: capture referral links, log the install, redeem deals",
}

// withManager opens the device state, builds a Manager against the remote
// ledger and closes the state when fn returns.
func withManager(fn func(m *referral.Manager) error) error {
	path := statePath
	if path == "" {
		path = cfg.DeviceStatePath
	}
	store, err := devicestate.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("⚠️ Failed to close device state: %v", err)
		}
	}()

	m := referral.NewManager(store, ledger.NewClient(cfg.LedgerURL, cfg.DeviceToken), referral.Options{
		UserID:     cfg.DeviceUserID,
		Thresholds: cfg.Thresholds,
	})
	return fn(m)
}

var deviceStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the local referral state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *referral.Manager) error {
			st, err := m.State()
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		})
	},
}

var deviceCaptureCmd = &cobra.Command{
	Use:   "capture <link>",
	Short: "Capture the referrer from an activation link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *referral.Manager) error {
			st, captured, err := m.CaptureLink(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{"captured": captured, "state": st})
		})
	},
}

var deviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Log this device's install once, crediting the captured referrer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *referral.Manager) error {
			res, err := m.LogInstall(cmd.Context())
			if err != nil {
				return fmt.Errorf("install not logged, will retry on next activation: %w", err)
			}
			return printJSON(cmd, res)
		})
	},
}

var deviceActivateCmd = &cobra.Command{
	Use:   "activate [link]",
	Short: "App activation: capture the link (if any), then log the install",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *referral.Manager) error {
			// link handling completes before install logging reads the state
			if len(args) == 1 {
				if _, _, err := m.CaptureLink(args[0]); err != nil {
					return err
				}
			}
			res, err := m.LogInstall(cmd.Context())
			if err != nil {
				log.Printf("⚠️ Install logging deferred: %v", err)
			}
			return printJSON(cmd, res)
		})
	},
}

var deviceRedeemCmd = &cobra.Command{
	Use:   "redeem [user-id]",
	Short: "Redeem the deal for a user (default: this device's user)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := ""
		if len(args) == 1 {
			userID = args[0]
		}
		return withManager(func(m *referral.Manager) error {
			res, err := m.Redeem(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("redemption failed, try again: %w", err)
			}
			return printJSON(cmd, res)
		})
	},
}

var deviceEligibilityCmd = &cobra.Command{
	Use:   "eligibility <driver-id>",
	Short: "Show a driver's counters, progress and payout eligibility",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *referral.Manager) error {
			v, err := m.CurrentEligibility(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, v)
		})
	},
}

var deviceDriversCmd = &cobra.Command{
	Use:   "drivers",
	Short: "List drivers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *referral.Manager) error {
			drivers, err := m.DriverList(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, drivers)
		})
	},
}

func init() {
	deviceCmd.PersistentFlags().StringVar(&statePath, "state", "", "device state directory (default $DEVICE_STATE_PATH)")
	deviceCmd.AddCommand(
		deviceStateCmd,
		deviceCaptureCmd,
		deviceInstallCmd,
		deviceActivateCmd,
		deviceRedeemCmd,
		deviceEligibilityCmd,
		deviceDriversCmd,
	)
}
