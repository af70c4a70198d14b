package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/xeyes/config"
)

var (
	RpcCheckInterval = time.Minute * 30
)

type NoHealthyClientErr struct {
	chain string
}

func NewNoHealthyClientErr(chain string) error {
	return &NoHealthyClientErr{chain: chain}
}

func (e *NoHealthyClientErr) Error() string {
	return fmt.Sprintf("No healthy client for chain %s", e.chain)
}

type ChainIdMismatchErr struct {
	Rpc      string
	Expected int64
	Actual   *big.Int
}

func (e *ChainIdMismatchErr) Error() string {
	return fmt.Sprintf("rpc %s serves chain id %s, expected %d", e.Rpc, e.Actual, e.Expected)
}

type defaultEthClient struct {
	chain   string
	chainId int64

	clients     []*ethclient.Client
	healthies   []bool
	initialRpcs []string
	rpcs        []string

	dial func(rpc string) (*ethclient.Client, error)
	lock *sync.RWMutex
}

// NewEthClients returns a client that spreads calls over all healthy rpcs of a chain. An rpc is
// healthy when it answers BlockNumber and serves the configured chain id (if any).
func NewEthClients(cfg config.Chain) EthClient {
	return newEthClients(cfg, ethclient.Dial)
}

func newEthClients(cfg config.Chain, dial func(rpc string) (*ethclient.Client, error)) *defaultEthClient {
	return &defaultEthClient{
		chain:       cfg.Chain,
		chainId:     cfg.ChainId,
		initialRpcs: cfg.Rpcs,
		dial:        dial,
		lock:        &sync.RWMutex{},
	}
}

func (c *defaultEthClient) Start() {
	c.updateRpcs()
	go c.loopCheck()
}

func (c *defaultEthClient) loopCheck() {
	for {
		time.Sleep(RpcCheckInterval)
		c.updateRpcs()
	}
}

func (c *defaultEthClient) updateRpcs() {
	c.lock.RLock()
	rpcs := c.initialRpcs
	oldClients := c.clients
	c.lock.RUnlock()

	rpcs, clients, healthies := c.getRpcsHealthiness(rpcs)
	log.Infof("Chain %s has %d healthy rpc(s) out of %d", c.chain, len(rpcs), len(c.initialRpcs))

	// Close all the old clients
	c.lock.Lock()
	for _, client := range oldClients {
		client.Close()
	}

	c.rpcs, c.clients, c.healthies = rpcs, clients, healthies
	c.lock.Unlock()
}

func (c *defaultEthClient) getRpcsHealthiness(allRpcs []string) ([]string, []*ethclient.Client, []bool) {
	clients := make([]*ethclient.Client, 0)
	rpcs := make([]string, 0)
	healthies := make([]bool, 0)

	for _, rpc := range allRpcs {
		client, err := c.dial(rpc)
		if err != nil {
			log.Errorf("Cannot dial rpc %s for chain %s, err = %v", rpc, c.chain, err)
			continue
		}

		if err := c.checkRpc(client, rpc); err != nil {
			log.Errorf("Rpc %s of chain %s is not healthy, err = %v", rpc, c.chain, err)
			client.Close()
			continue
		}

		clients = append(clients, client)
		rpcs = append(rpcs, rpc)
		healthies = append(healthies, true)
	}

	return rpcs, clients, healthies
}

func (c *defaultEthClient) checkRpc(client *ethclient.Client, rpc string) error {
	ctx, cancel := context.WithTimeout(context.Background(), RpcTimeOut)
	defer cancel()

	if _, err := client.BlockNumber(ctx); err != nil {
		return err
	}

	if c.chainId == 0 {
		return nil
	}

	chainId, err := client.ChainID(ctx)
	if err != nil {
		return err
	}
	if chainId.Cmp(big.NewInt(c.chainId)) != 0 {
		return &ChainIdMismatchErr{Rpc: rpc, Expected: c.chainId, Actual: chainId}
	}

	return nil
}

func (c *defaultEthClient) shuffle() ([]*ethclient.Client, []bool, []string) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	n := len(c.clients)

	clients := make([]*ethclient.Client, n)
	healthy := make([]bool, n)
	rpcs := make([]string, n)

	copy(clients, c.clients)
	copy(healthy, c.healthies)
	copy(rpcs, c.rpcs)

	if n < 2 {
		return clients, healthy, rpcs
	}

	for i := 0; i < n*2; i++ {
		x := rand.Intn(n)
		y := rand.Intn(n)

		clients[x], clients[y] = clients[y], clients[x]
		healthy[x], healthy[y] = healthy[y], healthy[x]
		rpcs[x], rpcs[y] = rpcs[y], rpcs[x]
	}

	return clients, healthy, rpcs
}

// execute runs f against healthy clients in random order until one succeeds. NotFound is an
// answer, not a failure of the rpc, so it stops the loop.
func execute[T any](c *defaultEthClient, f func(client *ethclient.Client, rpc string) (T, error)) (T, error) {
	c.lock.RLock()
	healthy := len(c.clients) > 0
	c.lock.RUnlock()
	// Redial when no rpc was reachable so a chain started after us is picked up.
	if !healthy {
		c.updateRpcs()
	}

	var result T
	err := NewNoHealthyClientErr(c.chain)

	clients, healthies, rpcs := c.shuffle()
	for i, healthy := range healthies {
		if !healthy {
			continue
		}

		result, err = f(clients[i], rpcs[i])
		if err == nil || errors.Is(err, ethereum.NotFound) {
			return result, err
		}

		log.Verbosef("Rpc %s of chain %s failed, err = %v", rpcs[i], c.chain, err)
	}

	return result, err
}

func (c *defaultEthClient) ChainID(ctx context.Context) (*big.Int, error) {
	return execute(c, func(client *ethclient.Client, rpc string) (*big.Int, error) {
		return client.ChainID(ctx)
	})
}

func (c *defaultEthClient) BlockNumber(ctx context.Context) (uint64, error) {
	return execute(c, func(client *ethclient.Client, rpc string) (uint64, error) {
		return client.BlockNumber(ctx)
	})
}

func (c *defaultEthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return execute(c, func(client *ethclient.Client, rpc string) (*ethtypes.Receipt, error) {
		return client.TransactionReceipt(ctx, txHash)
	})
}
