// Package main provides the graphdump CLI tool.
//
// Usage:
//
//	graphdump [--config store.yaml] <command> [flags]
//
// Commands:
//
//	fetch - print the bounded subgraph around matching nodes as JSON
//	count - print the number of nodes carrying a label
//	purge - delete every node and relationship
package main

import (
	"fmt"
	"os"

	"github.com/saulfrancisco-ruizacevedo/go-neosession/cmd/graphdump/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
