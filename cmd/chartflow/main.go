// Command chartflow compiles, renders, replays and tests declarative charts.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/chartflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
