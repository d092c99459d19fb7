// Package main provides the entry point for the ragharness CLI.
package main

import (
	"os"

	"github.com/open-access-policies/policy-crew/cmd/ragharness/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
