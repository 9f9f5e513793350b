// Package main is the entry point for the ip4core demo daemon.
package main

import (
	"fmt"
	"os"

	"ip4core.dev/ip4core/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
