package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"metalgrid.io/fleetd/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate a configuration file without starting the agent and print
the normalised configuration (defaults applied) as YAML.

Examples:
  fleetd validate -c /etc/fleetd/config.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		runValidateCommand()
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidateCommand() {
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(1)
	}

	out, err := yaml.Marshal(map[string]*config.Config{"fleetd": cfg})
	if err != nil {
		exitWithError("failed to render configuration", err)
	}

	fmt.Printf("VALID: monitoring %d interface(s)\n\n", len(cfg.Interfaces))
	os.Stdout.Write(out)
}
