// Package cmd implements the demo daemon's CLI commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ip4core.dev/ip4core/internal/config"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Validate configuration and print the interfaces/children it declares",
	Long: `Load the configuration named by --config and print a summary of what
a "serve" run against it would build: bucket count, fragment lifetime,
declared interfaces, and their attached children.

This is a static, offline summary — it does not attach to a running daemon,
since the core keeps no persisted or remotely queryable counters.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats()
	},
}

func runStats() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("bucket_count: %d\n", cfg.BucketCount)
	fmt.Printf("assemble_life_ticks: %d\n", cfg.AssembleLifeTicks)
	fmt.Printf("timer_tick_interval: %s\n", cfg.TimerTickInterval)
	fmt.Printf("receiver: %s\n", cfg.Receiver.Kind)
	fmt.Printf("interfaces (%d):\n", len(cfg.Interfaces))
	for _, iface := range cfg.Interfaces {
		fmt.Printf("  - %s  address=%s promisc=%v\n", iface.Name, iface.Address, iface.PromiscRecv)
	}
	fmt.Printf("children (%d):\n", len(cfg.Children))
	for name, child := range cfg.Children {
		fmt.Printf("  - %s  interface=%s protocol=%s any_protocol=%v\n",
			name, child.Interface, child.Protocol, child.AcceptAnyProtocol)
	}
	return nil
}
