// Command bifrost checks SQL queries against access policies.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/bifrost/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bifrost:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
