// Package main is the opcuacored CLI entrypoint: a cobra command tree
// wrapping the server core's run/validate surface, mirroring the
// teacher's signal-driven WaitNotify-then-Shutdown pattern.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "opcuacored",
		Short: "OPC UA server core: lifecycle, listeners, and reverse-connect",
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the server configuration file")

	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newConfigCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
