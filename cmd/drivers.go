package cmd

import (
	"referral-ledger/ledger"
	"referral-ledger/models"

	"github.com/spf13/cobra"
)

var driversCmd = &cobra.Command{
	Use:   "drivers",
	Short: "Administer driver records on the remote ledger",
}

func ledgerClient() *ledger.Client {
	return ledger.NewClient(cfg.LedgerURL, cfg.ServiceToken)
}

var driversListCmd = &cobra.Command{
	Use:   "list",
	Short: "List drivers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		drivers, err := ledgerClient().ListDrivers(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, drivers)
	},
}

var newDriverID string

var driversCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a driver with zeroed counters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := ledgerClient().CreateDriver(cmd.Context(), models.Driver{ID: newDriverID, Name: args[0]})
		if err != nil {
			return err
		}
		return printJSON(cmd, d)
	},
}

var driversRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a driver, or move it to --id keeping its counters",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := newDriverID
		if target == "" {
			target = args[0]
		}
		d, err := ledgerClient().ReassignDriver(cmd.Context(), args[0], target, args[1])
		if err != nil {
			return err
		}
		return printJSON(cmd, d)
	},
}

var driversDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a driver",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ledgerClient().DeleteDriver(cmd.Context(), args[0]); err != nil {
			return err
		}
		return printJSON(cmd, map[string]string{"deleted": args[0]})
	},
}

func init() {
	driversCreateCmd.Flags().StringVar(&newDriverID, "id", "", "driver id (default: random 8 characters)")
	driversRenameCmd.Flags().StringVar(&newDriverID, "id", "", "new driver id")
	driversCmd.AddCommand(driversListCmd, driversCreateCmd, driversRenameCmd, driversDeleteCmd)
}
