package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "sarathi",
	Short: "Offline cache worker and journey tracker for Gita Sarathi",
	Long: `sarathi keeps the Gita Sarathi app usable offline and tracks your
journey through the shlokas.

The serve command runs a local interceptor in front of the content origin that
answers from a versioned offline cache when the network is unavailable. The
journey commands keep your position and daily streak on this device and
reconcile them with your account after login.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
	rootCmd.SilenceErrors = true

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(installCmd())
	rootCmd.AddCommand(cacheCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(advanceCmd())
	rootCmd.AddCommand(journeyCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(logoutCmd())
}
