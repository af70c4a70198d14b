package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sisu-network/lib/log"
	"github.com/spf13/cobra"
)

const ConfigEnv = "XEYES_CONFIG"

var rootCmd = &cobra.Command{
	Use:           "xeyes",
	Short:         "xeyes tracks L1 to L2 deposits until they execute on the destination chain",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(initConfigCmd)
}

// configPath resolves the --config flag, falling back to XEYES_CONFIG.
func configPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv(ConfigEnv); path != "" {
		return path
	}

	return "xeyes.toml"
}

func waitForSignal() {
	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGTERM, syscall.SIGINT)

	<-termChan
	log.Info("SIGTERM/SIGINT received, shutdown process initiated")
}

// Execute is the command line entrypoint.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
