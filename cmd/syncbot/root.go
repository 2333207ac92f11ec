package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "syncbot",
	Short: "syncbot is a chat bot that prints incoming messages with their senders",
	Long: `syncbot logs a bot account into a chat backend (Telegram or Discord),
walks the authorization handshake, and prints every incoming text message
together with the resolved name of its sender.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
}
