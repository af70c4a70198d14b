package cmd

import (
	"fmt"

	"github.com/sisu-network/xeyes/client"
	"github.com/sisu-network/xeyes/config"
	"github.com/sisu-network/xeyes/types"
	"github.com/spf13/cobra"
)

var (
	remoteServer string
	remoteTxHash string
	remoteIndex  int

	submitCmd = &cobra.Command{
		Use:   "submit",
		Short: "Ask a running server to track a deposit",
		RunE:  submit,
	}

	resultCmd = &cobra.Command{
		Use:   "result",
		Short: "Print the tracking result of a deposit from a running server",
		RunE:  result,
	}
)

func init() {
	defaultServer := fmt.Sprintf("http://localhost:%d", config.DefaultServerPort)
	for _, c := range []*cobra.Command{submitCmd, resultCmd} {
		c.Flags().StringVar(&remoteServer, "server", defaultServer, "xeyes server url")
		c.Flags().StringVar(&remoteTxHash, "tx", "", "source chain tx hash")
		c.MarkFlagRequired("tx")
	}
	submitCmd.Flags().IntVar(&remoteIndex, "index", 0, "index of the deposit inside the source tx")
}

func submit(cmd *cobra.Command, args []string) error {
	c := client.NewClient(remoteServer)
	if err := c.TrackTx(cmd.Context(), &types.TrackRequest{TxHash: remoteTxHash, DepositIndex: remoteIndex}); err != nil {
		return err
	}

	fmt.Println("Submitted", remoteTxHash)
	return nil
}

func result(cmd *cobra.Command, args []string) error {
	c := client.NewClient(remoteServer)
	record, err := c.GetResult(cmd.Context(), remoteTxHash)
	if err != nil {
		return err
	}

	return printJson(record)
}
