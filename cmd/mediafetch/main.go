package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	serverURL   string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:   "mediafetch",
		Short: "mediafetch - media download engine driving yt-dlp",
		Long: `mediafetch drives a yt-dlp compatible extractor with format fallbacks,
credential refresh and timeouts, and streams the validated file back.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./configs, ~/.mediafetch, /etc/mediafetch)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL for remote commands")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start the server for remote fetches")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(configCmd)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
