// Package main is the entry point of the fixtureflow playground process.
package main

import (
	"os"

	"github.com/drblury/fixtureflow/cmd/fixtureflow/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
