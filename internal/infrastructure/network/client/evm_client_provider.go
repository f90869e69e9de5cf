package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chain_sync/internal/app/port"

	"go.uber.org/zap"
)

// evmClientProvider implements the port.EVMClientProvider interface.
type evmClientProvider struct {
	definitions       port.NetworkDefinitionProvider
	clients           map[string]*EVMClient
	mu                sync.Mutex
	logger            *zap.Logger
	connectionTimeout time.Duration
	rpcCallTimeout    time.Duration
}

// NewEVMClientProvider creates a new EVMClientProvider.
func NewEVMClientProvider(
	definitions port.NetworkDefinitionProvider,
	connectionTimeout, rpcCallTimeout time.Duration,
	logger *zap.Logger,
) port.EVMClientProvider {
	return &evmClientProvider{
		definitions:       definitions,
		clients:           make(map[string]*EVMClient),
		logger:            logger.Named("EVMClientProvider"),
		connectionTimeout: connectionTimeout,
		rpcCallTimeout:    rpcCallTimeout,
	}
}

// GetClient returns the cached client of a network, dialing it on first use.
func (p *evmClientProvider) GetClient(ctx context.Context, networkIdentifier string) (port.EVMChainClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, exists := p.clients[networkIdentifier]; exists {
		return client, nil
	}

	netDef, ok := p.definitions.GetNetworkDefinitionByName(networkIdentifier)
	if !ok {
		return nil, fmt.Errorf("unknown network %q", networkIdentifier)
	}

	p.logger.Info("Creating new EVM client", zap.String("network", netDef.Identifier), zap.String("rpc_primary", netDef.PrimaryRPCURL))
	newClient, err := NewEVMClient(ctx, netDef, p.connectionTimeout, p.rpcCallTimeout)
	if err != nil {
		p.logger.Error("Failed to create EVM client", zap.String("network", netDef.Identifier), zap.Error(err))
		return nil, fmt.Errorf("failed to create EVM client for %s: %w", netDef.Identifier, err)
	}

	p.clients[networkIdentifier] = newClient
	return newClient, nil
}

// Close closes every dialed client.
func (p *evmClientProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.clients {
		c.Close()
		delete(p.clients, id)
	}
}
