package config

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/VectorBits/econaudit/src/internal"
	"github.com/VectorBits/econaudit/src/internal/logger"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// RPCManager rotates across a chain's RPC endpoints, caching a healthy
// verdict for a short window so hot paths skip the BlockNumber probe.
type RPCManager struct {
	chainName         string
	urls              []string
	clients           []*ethclient.Client
	current           int
	mutex             sync.RWMutex
	timeout           time.Duration
	healthCacheWindow time.Duration
	lastHealthyAt     []time.Time
}

func dialEthClient(rawURL string, timeout time.Duration, proxy string) (*ethclient.Client, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("empty rpc url")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		httpClient, err := internal.HTTPClient(proxy, timeout)
		if err != nil {
			return nil, err
		}
		rpcClient, err := rpc.DialOptions(context.Background(), rawURL, rpc.WithHTTPClient(httpClient))
		if err != nil {
			return nil, err
		}
		return ethclient.NewClient(rpcClient), nil
	default:
		return ethclient.Dial(rawURL)
	}
}

func NewRPCManager(chainName string, urls []string, timeout time.Duration, proxy string) (*RPCManager, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one RPC URL is required")
	}

	manager := &RPCManager{
		chainName:         chainName,
		urls:              urls,
		timeout:           timeout,
		clients:           make([]*ethclient.Client, len(urls)),
		healthCacheWindow: 5 * time.Second,
		lastHealthyAt:     make([]time.Time, len(urls)),
	}

	dialed := 0
	for i, u := range urls {
		client, err := dialEthClient(u, timeout, proxy)
		if err != nil {
			logger.Warn("Failed to connect to RPC [%s]: %v", u, err)
			continue
		}
		manager.clients[i] = client
		dialed++
	}
	if dialed == 0 {
		return nil, fmt.Errorf("no RPC endpoint for %s could be dialed", chainName)
	}

	manager.current = rand.Intn(len(manager.clients))
	return manager, nil
}

// GetClient returns a healthy client, switching endpoints when the current one
// fails its probe.
func (r *RPCManager) GetClient(ctx context.Context) (*ethclient.Client, error) {
	r.mutex.RLock()
	current := r.current
	client := r.clients[current]
	lastHealthy := r.lastHealthyAt[current]
	r.mutex.RUnlock()

	if client != nil {
		if !lastHealthy.IsZero() && time.Since(lastHealthy) < r.healthCacheWindow {
			return client, nil
		}
		if r.probe(ctx, client) == nil {
			r.markHealthy(current)
			return client, nil
		}
	}

	return r.switchToNextClient(ctx)
}

func (r *RPCManager) probe(ctx context.Context, client *ethclient.Client) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := client.BlockNumber(ctx)
	return err
}

func (r *RPCManager) markHealthy(i int) {
	r.mutex.Lock()
	r.lastHealthyAt[i] = time.Now()
	r.mutex.Unlock()
}

func (r *RPCManager) switchToNextClient(ctx context.Context) (*ethclient.Client, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i := 0; i < len(r.clients); i++ {
		next := (r.current + 1 + i) % len(r.clients)
		if r.clients[next] == nil {
			continue
		}
		if err := r.probe(ctx, r.clients[next]); err != nil {
			continue
		}
		r.current = next
		r.lastHealthyAt[next] = time.Now()
		logger.Info("Switched to RPC: %s", r.urls[next])
		return r.clients[next], nil
	}

	return nil, fmt.Errorf("all RPC nodes are unavailable")
}

func (r *RPCManager) GetCurrentURL() string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.urls[r.current]
}

func (r *RPCManager) GetChainName() string {
	return r.chainName
}

func (r *RPCManager) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, client := range r.clients {
		if client != nil {
			client.Close()
		}
	}
}
