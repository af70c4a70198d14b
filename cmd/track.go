package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sisu-network/xeyes/core"
	"github.com/sisu-network/xeyes/database"
	"github.com/sisu-network/xeyes/tracker"
	"github.com/sisu-network/xeyes/types"
	"github.com/spf13/cobra"
)

type trackOption struct {
	configPath         string
	txHashes           []string
	index              int
	sourceTimeout      time.Duration
	destinationTimeout time.Duration
	persist            bool
}

var (
	trackOpt trackOption

	trackCmd = &cobra.Command{
		Use:   "track",
		Short: "Track deposits until they execute on the destination chain",
		RunE:  track,
	}
)

func init() {
	trackCmd.Flags().StringVar(&trackOpt.configPath, "config", "", "path to the toml config file, defaults to $XEYES_CONFIG")
	trackCmd.Flags().StringSliceVar(&trackOpt.txHashes, "tx", nil, "source chain tx hash, repeat the flag to track several")
	trackCmd.Flags().IntVar(&trackOpt.index, "index", 0, "index of the deposit inside each source tx")
	trackCmd.Flags().DurationVar(&trackOpt.sourceTimeout, "source-timeout", 0, "source receipt timeout, 0 uses the config")
	trackCmd.Flags().DurationVar(&trackOpt.destinationTimeout, "destination-timeout", 0, "destination receipt timeout, 0 uses the config")
	trackCmd.Flags().BoolVar(&trackOpt.persist, "persist", false, "save the result into the configured database")
	trackCmd.MarkFlagRequired("tx")
}

func track(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(trackOpt.configPath)
	if err != nil {
		return err
	}

	var db database.Database = &database.MockDb{}
	if trackOpt.persist {
		db = database.NewDb(cfg)
		if err := db.Init(); err != nil {
			return err
		}
		defer db.Close()
	}

	t, err := newTracker(cfg, tracker.LogObserver{})
	if err != nil {
		return err
	}

	// Progress is logged by the tracker itself, so the processor has no update channel.
	processor := core.NewProcessor(cfg, db, t, nil)
	processor.Start()
	defer processor.Stop()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go func() {
		waitForSignal()
		cancel()
	}()

	results, err := processor.TrackAll(ctx, buildTrackRequests(trackOpt))
	if err != nil {
		return err
	}

	records := make([]*types.TrackRecord, len(results))
	unconfirmed := make([]string, 0)
	for i, result := range results {
		records[i] = types.NewTrackRecord(result, t.Destination())
		if !result.Confirmed() {
			unconfirmed = append(unconfirmed, fmt.Sprintf("%s (%s)", records[i].SourceTxHash, records[i].Outcome))
		}
	}

	if len(records) == 1 {
		err = printJson(records[0])
	} else {
		err = printJson(records)
	}
	if err != nil {
		return err
	}

	if len(unconfirmed) > 0 {
		return fmt.Errorf("%d of %d deposit(s) not confirmed: %s", len(unconfirmed), len(records), strings.Join(unconfirmed, ", "))
	}

	return nil
}

func buildTrackRequests(opt trackOption) []*types.TrackRequest {
	reqs := make([]*types.TrackRequest, 0, len(opt.txHashes))
	for _, hash := range opt.txHashes {
		reqs = append(reqs, &types.TrackRequest{
			TxHash:               hash,
			DepositIndex:         opt.index,
			SourceTimeoutMs:      opt.sourceTimeout.Milliseconds(),
			DestinationTimeoutMs: opt.destinationTimeout.Milliseconds(),
		})
	}

	return reqs
}

func printJson(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
