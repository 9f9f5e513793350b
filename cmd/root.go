// Package cmd implements the demo daemon's CLI commands using cobra.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "ip4core",
	Short: "ip4core - IPv4 fragment reassembly and demultiplexing core",
	Long: `ip4core runs the IPv4 receive-path core as a standalone daemon: it
reassembles fragmented datagrams and fans completed ones out to configured
in-process consumers, driven by a link-layer frame receiver (AF_PACKET or a
raw socket).`,
	Version: "0.1.0",
}

// Execute runs the root command; its subcommands and flags are registered
// in init. Called once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/ip4core/config.yml",
		"config file path")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(validateCmd)
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
