// Package main provides the steer CLI.
package main

import (
	"os"

	"github.com/steer-ml/steer/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
