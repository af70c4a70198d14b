package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultMinPollIntervalMs    = 1_000
	DefaultMaxPollIntervalMs    = 10_000
	DefaultRpcTimeoutMs         = 10_000
	DefaultSourceTimeoutMs      = 5 * 60 * 1_000
	DefaultDestinationTimeoutMs = 5 * 60 * 1_000
	DefaultMaxConcurrentTracks  = 16
	DefaultResultCacheSize      = 1_000
	DefaultServerPort           = 25466
)

type Chain struct {
	Chain         string   `toml:"chain" json:"chain"`
	ChainId       int64    `toml:"chain_id" json:"chain_id"`
	Rpcs          []string `toml:"rpcs" json:"rpcs"`
	Confirmations uint64   `toml:"confirmations" json:"confirmations"`

	// Requests per second sent to the chain's RPCs. 0 disables the limit.
	RpcRateLimit float64 `toml:"rpc_rate_limit" json:"rpc_rate_limit"`
	RpcBurst     int     `toml:"rpc_burst" json:"rpc_burst"`
}

type Tracker struct {
	// Address of the L1 contract emitting TransactionDeposited. Empty accepts any emitter.
	DepositContract string `toml:"deposit_contract"`

	MinPollIntervalMs    int `toml:"min_poll_interval_ms"`
	MaxPollIntervalMs    int `toml:"max_poll_interval_ms"`
	RpcTimeoutMs         int `toml:"rpc_timeout_ms"`
	SourceTimeoutMs      int `toml:"source_timeout_ms"`
	DestinationTimeoutMs int `toml:"destination_timeout_ms"`
}

type XEyes struct {
	DbHost     string `toml:"db_host"`
	DbPort     int    `toml:"db_port"`
	DbUsername string `toml:"db_username"`
	DbPassword string `toml:"db_password"`
	DbSchema   string `toml:"db_schema"`
	InMemory   bool   `toml:"in_memory"`

	ServerPort          int `toml:"server_port"`
	MaxConcurrentTracks int `toml:"max_concurrent_tracks"`
	ResultCacheSize     int `toml:"result_cache_size"`

	Source      Chain   `toml:"source"`
	Destination Chain   `toml:"destination"`
	Tracker     Tracker `toml:"tracker"`
}

func Load(path string) (*XEyes, error) {
	cfg := &XEyes{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("cannot decode config file %s, err = %w", path, err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *XEyes) SetDefaults() {
	if c.ServerPort == 0 {
		c.ServerPort = DefaultServerPort
	}
	if c.MaxConcurrentTracks <= 0 {
		c.MaxConcurrentTracks = DefaultMaxConcurrentTracks
	}
	if c.ResultCacheSize <= 0 {
		c.ResultCacheSize = DefaultResultCacheSize
	}

	t := &c.Tracker
	if t.MinPollIntervalMs == 0 {
		t.MinPollIntervalMs = DefaultMinPollIntervalMs
	}
	if t.MaxPollIntervalMs == 0 {
		t.MaxPollIntervalMs = DefaultMaxPollIntervalMs
	}
	if t.RpcTimeoutMs == 0 {
		t.RpcTimeoutMs = DefaultRpcTimeoutMs
	}
	if t.SourceTimeoutMs == 0 {
		t.SourceTimeoutMs = DefaultSourceTimeoutMs
	}
	if t.DestinationTimeoutMs == 0 {
		t.DestinationTimeoutMs = DefaultDestinationTimeoutMs
	}
}

func (c *XEyes) Validate() error {
	for _, chain := range []Chain{c.Source, c.Destination} {
		if chain.Chain == "" {
			return fmt.Errorf("chain name cannot be empty")
		}
		if len(chain.Rpcs) == 0 {
			return fmt.Errorf("no rpc configured for chain %s", chain.Chain)
		}
	}

	if c.Source.ChainId != 0 && c.Source.ChainId == c.Destination.ChainId {
		return fmt.Errorf("source and destination share chain id %d", c.Source.ChainId)
	}

	if c.Tracker.DepositContract != "" && !common.IsHexAddress(c.Tracker.DepositContract) {
		return fmt.Errorf("invalid deposit contract address %s", c.Tracker.DepositContract)
	}

	t := c.Tracker
	if t.MinPollIntervalMs <= 0 {
		return fmt.Errorf("min_poll_interval_ms must be positive, got %d", t.MinPollIntervalMs)
	}
	if t.MaxPollIntervalMs < t.MinPollIntervalMs {
		return fmt.Errorf("max_poll_interval_ms (%d) is smaller than min_poll_interval_ms (%d)",
			t.MaxPollIntervalMs, t.MinPollIntervalMs)
	}
	if t.SourceTimeoutMs < 0 || t.DestinationTimeoutMs < 0 || t.RpcTimeoutMs < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}

	if !c.InMemory && c.DbHost == "" {
		return fmt.Errorf("db_host cannot be empty unless in_memory is set")
	}

	return nil
}

func (t Tracker) MinPollInterval() time.Duration {
	return time.Duration(t.MinPollIntervalMs) * time.Millisecond
}

func (t Tracker) MaxPollInterval() time.Duration {
	return time.Duration(t.MaxPollIntervalMs) * time.Millisecond
}

func (t Tracker) RpcTimeout() time.Duration {
	return time.Duration(t.RpcTimeoutMs) * time.Millisecond
}

func (t Tracker) SourceTimeout() time.Duration {
	return time.Duration(t.SourceTimeoutMs) * time.Millisecond
}

func (t Tracker) DestinationTimeout() time.Duration {
	return time.Duration(t.DestinationTimeoutMs) * time.Millisecond
}
