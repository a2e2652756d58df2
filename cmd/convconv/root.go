package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:           "convconv",
	Short:         "Media conversion service",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(previewCmd)
}
