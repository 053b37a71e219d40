package main

import (
	"fmt"
	"os"

	"github.com/palimpsest-ai/palimpsest/internal/cli"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "palimd",
		Short: "Palimpsest daemon and CLI",
		Long:  "Palimpsest daemon for running the content store API, transformation workers, and maintenance tasks",
	}

	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.MigrateCmd())
	rootCmd.AddCommand(cli.ReconcileCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
