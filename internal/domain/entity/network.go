package entity

// NetworkDefinition holds the RPC endpoints of one EVM network.
type NetworkDefinition struct {
	ChainID         uint64   `json:"chainId" yaml:"chainId"`
	Name            string   `json:"name" yaml:"name"`
	Identifier      string   `json:"identifier" yaml:"identifier"` // network name stored on tokens, e.g. "gnosis"
	PrimaryRPCURL   string   `json:"primaryRpcUrl" yaml:"primaryRpcUrl"`
	FallbackRPCURLs []string `json:"fallbackRpcUrls" yaml:"fallbackRpcUrls"`
	// LogBlockSpan splits eth_getLogs scans into windows of this many blocks; 0 scans earliest..latest at once.
	LogBlockSpan uint64 `json:"logBlockSpan" yaml:"logBlockSpan"`
}
