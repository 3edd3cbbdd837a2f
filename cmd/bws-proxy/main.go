package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var rootFlags struct {
	cfgFile string
}

var rootCmd = &cobra.Command{
	Use:   "bws-proxy",
	Short: "REST proxy for Bitwarden Secrets Manager",
	Long: `bws-proxy exposes a Bitwarden Secrets Manager organization over a
plain REST interface, so callers that cannot link the native SDK can list,
read, create, update and delete secrets over HTTP.

Decrypted values are cached in-process with a TTL; concurrent reads for the
same secret collapse into a single upstream fetch.`,
	Version: Version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootFlags.cfgFile, "config", "c", "", "config file path")
}
