package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var serverURL string

var rootCmd = &cobra.Command{
	Use:          "callsim",
	Short:        "Drive the call center voice pipeline from the command line",
	SilenceUsage: true,
	Long: `callsim plays the role of the SIP bridge: it starts calls, streams caller
audio over the media websocket and prints the call events the service emits.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "call center base URL")
}

func apiURL(path string) string {
	return strings.TrimRight(serverURL, "/") + "/api/v1" + path
}

func wsURL(path string) string {
	u := apiURL(path)
	u = strings.Replace(u, "https://", "wss://", 1)
	return strings.Replace(u, "http://", "ws://", 1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
