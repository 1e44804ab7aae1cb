// Command bdctl runs single Brown Dog conversions, extractions and graph
// lookups outside the test suites.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	_ = godotenv.Load()
	cmd := newRootCmd()
	cmd.Version = version
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
