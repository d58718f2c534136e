// Command simwire serves a UAV simulator over the simwire protocol and
// includes a small client for driving it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "simwire",
		Short: "UAV simulator server speaking the simwire protocol",
		Long: `simwire serves a point-mass UAV simulator to one client at a time over
TCP or QUIC. Every frame is a 5-byte size prefix (a protobuf fixed32
field) followed by a protobuf-encoded message.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		driveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "simwire: %v\n", err)
		os.Exit(1)
	}
}
