package main

import (
	"os"

	"github.com/fatih/color"

	"github.com/jrsteele09/go-auth-console/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
