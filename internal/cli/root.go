// Package cli implements the steer CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "v0.1.0-dev"

var verbose bool

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "steer",
	Short: "Token-level generation control core",
	Long:  "steer hosts per-sequence process controllers that constrain, rewrite and fork token-by-token generation.",
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	RootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("steer %s\n", version)
		},
	})
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
