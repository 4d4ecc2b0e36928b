package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	apiURL     string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "bridgectl",
	Short: "Inspect bridge operations on a running secret-bridge daemon",
	Long: `bridgectl reads operations from a secret-bridge daemon.

Examples:
  bridgectl list --inflight
  bridgectl status 3f2a9c1e-...
  bridgectl status 3f2a9c1e-... --watch --interval 10
  bridgectl abandon 3f2a9c1e-...`,
	SilenceUsage: true,
}

func init() {
	defaultURL := os.Getenv("BRIDGE_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultURL, "Daemon base URL")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
}

func newClient() *Client {
	return NewClient(apiURL, 15*time.Second)
}
