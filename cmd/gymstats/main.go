// Package main is the gymstats command line.
package main

import (
	"fmt"
	"os"

	"github.com/gymstats/gymstats-hub/internal/interface/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
