package main

import (
	"fmt"
	"os"

	"github.com/roach88/citytrain/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "citytrain:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
