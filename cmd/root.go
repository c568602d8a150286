package cmd

import (
	"fmt"
	"log"
	"os"

	"VoxDub/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "voxdub",
	Short: "VoxDub is a media dubbing job service.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting VoxDub worker...")
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
