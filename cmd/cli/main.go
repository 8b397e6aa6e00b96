// Package main is the entry point for jobctl.
// jobctl submits DataManagerJobs and reports on their pods.
package main

import (
	"jobop/cmd/cli/cmd"
	"os"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
