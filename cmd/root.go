// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fleetd",
	Short: "fleetd - passive network discovery agent for bare-metal fleets",
	Long: `fleetd is the fleet agent's passive network discovery engine.
It captures raw frames on monitored interfaces, decodes Ethernet/VLAN/ARP,
maintains a live neighbour binding table (IP <-> MAC per VLAN) with TTL
eviction, and reports discovery events to the central controller.

The agent never transmits packets and keeps no state across restarts: the
neighbour table is rebuilt from fresh observations.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/fleetd/config.yml",
		"config file path")
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
