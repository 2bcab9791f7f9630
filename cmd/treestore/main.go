// Command treestore compiles, runs and tests declarative state stores.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/treestore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
