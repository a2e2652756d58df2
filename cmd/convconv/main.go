package main

import "os"

// @title convconv API
// @version 1.0
// @description Media conversion and test source generation with live job progress.
// @BasePath /
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
