// Command report parses a JUnit XML file written by the live suites and
// sends the result to the console, the watchers, the run store and the
// run topic.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/fairyhunter13/browndog-tests/internal/config"
)

var version = "dev"

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "report:", err)
		os.Exit(1)
	}
	cmd := newRootCmd(cfg)
	cmd.Version = version
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
