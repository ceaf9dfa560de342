// Package main is the entry point for the keyguardctl operator CLI.
package main

import (
	"os"

	"github.com/amgagencyautomation-commits/MediScribe-sub000/cmd/keyguardctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
