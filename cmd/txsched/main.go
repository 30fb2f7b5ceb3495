// Command txsched compiles, checks and simulates transaction/method designs.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/txsched/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
