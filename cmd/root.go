package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"referral-ledger/config"

	"github.com/spf13/cobra"
)

var (
	cfg     *config.Config
	envFile string
)

var rootCmd = &cobra.Command{
	Use:           "referral-ledger",
	Short:         "Driver referral attribution and incentive ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			config.LoadEnv(envFile)
		} else {
			config.LoadEnv()
		}
		var err error
		cfg, err = config.Load()
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file (default ./.env)")
	rootCmd.AddCommand(serveCmd, deviceCmd, driversCmd)
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
