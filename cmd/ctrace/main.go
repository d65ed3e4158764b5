// Command ctrace inspects agent payloads and runs a traced demo server.
package main

import (
	"os"

	ctrace "github.com/Nordstrom/ctrace-agent"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "ctrace",
	Short:        "Tools for the ctrace agent encoder",
	SilenceUsage: true,
}

func main() {
	rootCmd.Version = ctrace.TracerVersion

	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(demoCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
