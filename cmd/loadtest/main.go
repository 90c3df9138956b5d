// Command loadtest drives the chat API with simulated polling clients.
//
// Usage:
//
//	loadtest poll --tokens-file tokens.txt --duration 1m
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "loadtest",
		Short:        "Load generator for the chat API",
		SilenceUsage: true,
	}
	root.AddCommand(newPollCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
