package networkdefinition

import (
	"fmt"
	"sort"

	"chain_sync/internal/app/port"
	"chain_sync/internal/domain/entity"

	"go.uber.org/zap"
)

// NetworkDefinitionProvider provides the EVM network definitions the adapters run on.
type NetworkDefinitionProvider struct {
	logger *zap.Logger
	defs   map[string]entity.NetworkDefinition
}

var _ port.NetworkDefinitionProvider = (*NetworkDefinitionProvider)(nil)

// Predefined network definitions
var ( //nolint:gochecknoglobals // Global for definitions
	Ethereum = entity.NetworkDefinition{
		ChainID:         1,
		Name:            "Ethereum Mainnet",
		Identifier:      "ethereum",
		PrimaryRPCURL:   "https://ethereum-rpc.publicnode.com",
		FallbackRPCURLs: []string{"https://rpc.ankr.com/eth", "https://ethereum.publicnode.com"},
	}
	Gnosis = entity.NetworkDefinition{
		ChainID:         100,
		Name:            "Gnosis Chain",
		Identifier:      "gnosis",
		PrimaryRPCURL:   "https://rpc.gnosischain.com",
		FallbackRPCURLs: []string{"https://rpc.ankr.com/gnosis", "https://gnosis.publicnode.com"},
	}
	Polygon = entity.NetworkDefinition{
		ChainID:         137,
		Name:            "Polygon PoS",
		Identifier:      "polygon",
		PrimaryRPCURL:   "https://polygon-rpc.com/",
		FallbackRPCURLs: []string{"https://rpc.ankr.com/polygon", "https://polygon.publicnode.com"},
	}

	allKnownDefinitions = map[string]entity.NetworkDefinition{
		Ethereum.Identifier: Ethereum,
		Gnosis.Identifier:   Gnosis,
		Polygon.Identifier:  Polygon,
	}
)

// NewNetworkDefinitionProvider merges configured overrides into the built-in definitions.
// An override for an unknown identifier adds a new network.
func NewNetworkDefinitionProvider(overrides []entity.NetworkDefinition, logger *zap.Logger) *NetworkDefinitionProvider {
	p := &NetworkDefinitionProvider{
		logger: logger.Named("NetworkDefinitionProvider"),
		defs:   make(map[string]entity.NetworkDefinition, len(allKnownDefinitions)+len(overrides)),
	}
	for id, def := range allKnownDefinitions {
		p.defs[id] = def
	}

	for _, o := range overrides {
		if o.Identifier == "" {
			p.logger.Warn("Network override without identifier, skipping", zap.String("name", o.Name))
			continue
		}
		def, known := p.defs[o.Identifier]
		if !known {
			def = entity.NetworkDefinition{Identifier: o.Identifier, Name: o.Identifier}
		}
		if o.ChainID != 0 {
			def.ChainID = o.ChainID
		}
		if o.Name != "" {
			def.Name = o.Name
		}
		if o.PrimaryRPCURL != "" {
			def.PrimaryRPCURL = o.PrimaryRPCURL
			def.FallbackRPCURLs = o.FallbackRPCURLs
		}
		if o.LogBlockSpan != 0 {
			def.LogBlockSpan = o.LogBlockSpan
		}
		if def.PrimaryRPCURL == "" {
			p.logger.Warn("Network has no RPC URL, skipping", zap.String("network", o.Identifier))
			continue
		}
		p.defs[o.Identifier] = def
		p.logger.Debug(fmt.Sprintf("Network '%s' configured", def.Identifier), zap.String("rpc", def.PrimaryRPCURL))
	}
	return p
}

// GetAllNetworkDefinitions returns every definition, ordered by identifier.
func (p *NetworkDefinitionProvider) GetAllNetworkDefinitions() []entity.NetworkDefinition {
	out := make([]entity.NetworkDefinition, 0, len(p.defs))
	for _, def := range p.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out
}

// GetNetworkDefinitionByName returns a specific network definition by its identifier.
func (p *NetworkDefinitionProvider) GetNetworkDefinitionByName(identifier string) (entity.NetworkDefinition, bool) {
	def, ok := p.defs[identifier]
	return def, ok
}
