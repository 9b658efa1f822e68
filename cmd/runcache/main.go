// Command runcache records agent run reports and serves last-run lookups.
package main

import (
	"os"

	"github.com/roach88/runcache/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
