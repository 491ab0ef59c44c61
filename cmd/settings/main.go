// Command settings inspects and edits an application settings file.
package main

import (
	"os"
)

var version = "dev"

func main() {
	if os.Getenv("NO_COLOR") != "" {
		noColor = true
	}
	if err := newRootCmd().Execute(); err != nil {
		printError(os.Stderr, "%v", err)
		os.Exit(1)
	}
}
