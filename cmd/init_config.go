package cmd

import (
	"fmt"

	"github.com/sisu-network/xeyes/config"
	"github.com/spf13/cobra"
)

var (
	initConfigOut string

	initConfigCmd = &cobra.Command{
		Use:   "init-config",
		Short: "Write a config file for a local devnet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteConfigFile(initConfigOut, config.LocalDevnet()); err != nil {
				return err
			}

			fmt.Println("Config written to", initConfigOut)
			return nil
		},
	}
)

func init() {
	initConfigCmd.Flags().StringVar(&initConfigOut, "out", "xeyes.toml", "output path")
}
