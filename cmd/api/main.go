package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "govstats",
		Short:   "Country statistics aggregation and ranking service",
		Version: Version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(refreshCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
