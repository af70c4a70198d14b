package cmd

import (
	"context"
	"time"

	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/xeyes/core"
	"github.com/sisu-network/xeyes/database"
	"github.com/sisu-network/xeyes/server"
	"github.com/sisu-network/xeyes/tracker"
	"github.com/sisu-network/xeyes/types"
	"github.com/spf13/cobra"
)

var (
	serveConfigPath string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the tracking service and its JSON-RPC API",
		RunE:  serve,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "path to the toml config file, defaults to $XEYES_CONFIG")
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(serveConfigPath)
	if err != nil {
		return err
	}

	db := database.NewDb(cfg)
	if err := db.Init(); err != nil {
		return err
	}
	defer db.Close()

	txTrackCh := make(chan *types.TrackUpdate, 1000)
	t, err := newTracker(cfg, tracker.NewChannelObserver(txTrackCh))
	if err != nil {
		return err
	}

	processor := core.NewProcessor(cfg, db, t, txTrackCh)
	processor.Start()
	defer processor.Stop()

	handler, err := server.NewRpcHandler(server.NewApi(processor))
	if err != nil {
		return err
	}

	s := server.NewServer(handler, cfg.ServerPort)
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Run()
	}()

	stopped := make(chan struct{})
	go func() {
		waitForSignal()
		close(stopped)
	}()

	select {
	case err := <-errCh:
		return err
	case <-stopped:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		log.Error("Failed to stop server, err = ", err)
	}

	log.Info("Shutdown gracefully")
	return nil
}
