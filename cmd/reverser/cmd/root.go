package cmd

import (
	"github.com/spf13/cobra"
)

// Version is reported by --version and tagged on telemetry. Release builds
// set it with -ldflags "-X github.com/tsarna/reverser/cmd/reverser/cmd.Version=...".
var Version = "dev"

var (
	verbose  bool
	debug    bool
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reverser",
	Short: "Reverse String server",
	Long: `Reverser serves a single web page with a text box. Every change to the
text is sent over a WebSocket and the server answers with the text reversed.

Configuration is read from HCL files; see "reverser server --help".`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "debug output")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verbose
}

// GetDebug returns the debug flag value
func GetDebug() bool {
	return debug
}
