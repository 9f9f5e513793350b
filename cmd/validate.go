// Package cmd implements the demo daemon's CLI commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ip4core.dev/ip4core/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file without starting the daemon",
	Long: `Load and validate a configuration file (the same one --config points
"serve" at) without opening a receiver or binding any interface.

Examples:
  ip4core validate --config config.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate()
	},
}

func runValidate() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		exitWithError("INVALID", err)
	}
	fmt.Printf("VALID: %d interface(s), %d child(ren)\n", len(cfg.Interfaces), len(cfg.Children))
	return nil
}
