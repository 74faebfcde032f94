// Package main is the entry point for the semq CLI binary.
package main

import (
	"os"

	cli "duck-semantic/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
