package cmd

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/sisu-network/xeyes/chains/eth"
	"github.com/sisu-network/xeyes/config"
	"github.com/sisu-network/xeyes/deposit"
	"github.com/sisu-network/xeyes/tracker"
	"github.com/sisu-network/xeyes/types"
)

func loadConfig(flag string) (*config.XEyes, error) {
	cfg, err := config.Load(configPath(flag))
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func newChainClient(cfg config.Chain) eth.EthClient {
	client := eth.NewRateLimitedClient(eth.NewEthClients(cfg), cfg.RpcRateLimit, cfg.RpcBurst)
	client.Start()

	return client
}

func newTracker(cfg *config.XEyes, observer tracker.Observer) (*tracker.Tracker, error) {
	source := types.NewChainRef(cfg.Source.Chain, cfg.Source.ChainId, cfg.Source.Rpcs, types.RoleSource)
	destination := types.NewChainRef(cfg.Destination.Chain, cfg.Destination.ChainId, cfg.Destination.Rpcs, types.RoleDestination)

	return tracker.NewTracker(
		source,
		destination,
		newChainClient(cfg.Source),
		newChainClient(cfg.Destination),
		deposit.NewPortalDecoder(common.HexToAddress(cfg.Tracker.DepositContract)),
		tracker.OptionsFromConfig(cfg),
		observer,
	)
}
