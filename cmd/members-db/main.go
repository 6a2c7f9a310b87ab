// Package main is the entry point for members-db.
package main

import (
	"os"

	"github.com/approvers/members-db/cmd/members-db/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
