package connection

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/edough-upgrade-check/internal/config"
	"github.com/smartdevs17/edough-upgrade-check/internal/metrics"
	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

// Dialer opens a JSON-RPC client for a URL
type Dialer func(ctx context.Context, url string) (*rpc.Client, error)

// ConnectionManager owns the node connection. It dials the primary URL and
// falls back to backup nodes, retrying the whole list with a delay.
type ConnectionManager struct {
	config         *config.ChainConfig
	primaryURL     string
	backupURLs     []string
	currentIndex   int
	dial           Dialer
	rpcClient      *rpc.Client
	client         *ethclient.Client
	chainID        *big.Int
	mu             sync.RWMutex
	logger         *logrus.Entry
	stats          ConnectionStats
	metricsManager *metrics.Manager
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	Connects        uint64    `json:"connects"`
	FailedDials     uint64    `json:"failed_dials"`
	Reconnects      uint64    `json:"reconnects"`
	CurrentURL      string    `json:"current_url"`
	LastConnectedAt time.Time `json:"last_connected_at"`
	LastHealthCheck time.Time `json:"last_health_check"`
	IsHealthy       bool      `json:"is_healthy"`
	ChainID         uint64    `json:"chain_id"`
	LatestBlock     uint64    `json:"latest_block"`
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(cfg *config.ChainConfig, metricsManager *metrics.Manager) *ConnectionManager {
	return &ConnectionManager{
		config:         cfg,
		primaryURL:     cfg.NodeURL,
		backupURLs:     cfg.BackupNodes,
		dial:           rpc.DialContext,
		logger:         utils.Component("connection"),
		metricsManager: metricsManager,
		stats: ConnectionStats{
			CurrentURL: cfg.NodeURL,
		},
	}
}

// WithDialer replaces the JSON-RPC dialer
func (cm *ConnectionManager) WithDialer(dial Dialer) *ConnectionManager {
	cm.dial = dial
	return cm
}

// Client returns the eth client, connecting on first use
func (cm *ConnectionManager) Client(ctx context.Context) (*ethclient.Client, error) {
	cm.mu.RLock()
	client := cm.client
	cm.mu.RUnlock()

	if client != nil {
		return client, nil
	}
	if err := cm.Connect(ctx); err != nil {
		return nil, err
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.client, nil
}

// RPC returns the raw JSON-RPC client, connecting on first use
func (cm *ConnectionManager) RPC(ctx context.Context) (*rpc.Client, error) {
	if _, err := cm.Client(ctx); err != nil {
		return nil, err
	}
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.rpcClient, nil
}

// ChainID returns the chain ID reported by the connected node
func (cm *ConnectionManager) ChainID(ctx context.Context) (*big.Int, error) {
	if _, err := cm.Client(ctx); err != nil {
		return nil, err
	}
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return new(big.Int).Set(cm.chainID), nil
}

// Connect establishes a connection to the first healthy node
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != nil {
		return nil
	}

	start := cm.currentIndex
	urls := cm.getAllURLs()
	attempts := cm.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		for i, url := range urls {
			cm.logger.WithFields(logrus.Fields{"url": url, "attempt": attempt + 1}).Info("Attempting connection")

			rpcClient, err := cm.dialWithTimeout(ctx, url)
			if err != nil {
				cm.logger.WithFields(logrus.Fields{"url": url, "error": err}).Warn("Connection failed")
				cm.stats.FailedDials++
				cm.recordConnectionError(url, "dial_failed")
				continue
			}

			client := ethclient.NewClient(rpcClient)
			chainID, err := cm.verifyChain(ctx, client)
			if err != nil {
				client.Close()
				cm.logger.WithFields(logrus.Fields{"url": url, "error": err}).Warn("Health check failed after connection")
				cm.recordConnectionError(url, "health_check_failed")
				continue
			}

			cm.rpcClient = rpcClient
			cm.client = client
			cm.chainID = chainID
			cm.currentIndex = (start + i) % len(urls)
			cm.stats.Connects++
			cm.stats.CurrentURL = url
			cm.stats.ChainID = chainID.Uint64()
			cm.stats.LastConnectedAt = time.Now()
			cm.stats.LastHealthCheck = time.Now()
			cm.stats.IsHealthy = true

			cm.logger.WithFields(logrus.Fields{"url": url, "chain_id": chainID}).Info("Connected to node")
			return nil
		}

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cm.config.RetryDelay):
			}
		}
	}

	return utils.NewAppError(utils.ErrCodeConnection, "Failed to connect to any node",
		"All connection attempts exhausted")
}

// Reconnect drops the current client and connects again, trying the node
// after the current one first.
func (cm *ConnectionManager) Reconnect(ctx context.Context) error {
	cm.mu.Lock()
	if cm.client != nil {
		cm.client.Close()
		cm.client = nil
		cm.rpcClient = nil
	}
	cm.currentIndex = (cm.currentIndex + 1) % (len(cm.backupURLs) + 1)
	cm.stats.Reconnects++
	cm.stats.IsHealthy = false
	next := cm.getAllURLs()[0]
	cm.mu.Unlock()

	cm.logger.WithField("next_url", next).Warn("Reconnecting to node")

	return cm.Connect(ctx)
}

// dialWithTimeout creates a connection with timeout
func (cm *ConnectionManager) dialWithTimeout(ctx context.Context, url string) (*rpc.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cm.config.RequestTimeout)
	defer cancel()

	return cm.dial(dialCtx, url)
}

// verifyChain checks the node answers and, when configured, serves the
// expected chain.
func (cm *ConnectionManager) verifyChain(ctx context.Context, client *ethclient.Client) (*big.Int, error) {
	checkCtx, cancel := context.WithTimeout(ctx, cm.config.RequestTimeout)
	defer cancel()

	chainID, err := client.ChainID(checkCtx)
	if err != nil {
		return nil, err
	}

	if cm.config.ChainID > 0 && chainID.Int64() != cm.config.ChainID {
		return nil, utils.NewAppError(utils.ErrCodeConnection, "Chain ID mismatch",
			fmt.Sprintf("expected %d, got %s", cm.config.ChainID, chainID))
	}
	return chainID, nil
}

// HealthCheck verifies the node answers and records the latest block
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	client, err := cm.Client(ctx)
	if err != nil {
		return err
	}

	checkCtx, cancel := context.WithTimeout(ctx, cm.config.RequestTimeout)
	defer cancel()

	blockNumber, err := client.BlockNumber(checkCtx)
	if err != nil {
		cm.mu.Lock()
		cm.stats.IsHealthy = false
		cm.mu.Unlock()
		return utils.NewAppError(utils.ErrCodeConnection, "Failed to get latest block", err.Error())
	}

	cm.mu.Lock()
	cm.stats.LatestBlock = blockNumber
	cm.stats.LastHealthCheck = time.Now()
	cm.stats.IsHealthy = true
	cm.mu.Unlock()

	cm.logger.WithFields(logrus.Fields{
		"chain_id":     cm.stats.ChainID,
		"latest_block": blockNumber,
		"url":          cm.stats.CurrentURL,
	}).Info("Health check passed")

	return nil
}

// Close closes the connection
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != nil {
		cm.client.Close()
		cm.client = nil
		cm.rpcClient = nil
	}

	cm.stats.IsHealthy = false
	cm.logger.Info("Connection manager closed")
	return nil
}

// Stats returns connection statistics
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.stats
}

// getAllURLs returns all available URLs starting from current index
func (cm *ConnectionManager) getAllURLs() []string {
	urls := []string{cm.primaryURL}
	urls = append(urls, cm.backupURLs...)

	if cm.currentIndex > 0 && cm.currentIndex < len(urls) {
		rotated := make([]string, len(urls))
		copy(rotated, urls[cm.currentIndex:])
		copy(rotated[len(urls)-cm.currentIndex:], urls[:cm.currentIndex])
		return rotated
	}

	return urls
}

func (cm *ConnectionManager) recordConnectionError(endpoint, errorType string) {
	if m := cm.metricsManager.GetPrometheusMetrics(); m != nil {
		m.RecordConnectionError(endpoint, errorType)
	}
}
