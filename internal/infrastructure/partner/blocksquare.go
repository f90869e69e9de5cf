package partner

import (
	"chain_sync/internal/app/port"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// DefaultBlocksquareURL lists the marketplace properties tokenized through Blocksquare.
const DefaultBlocksquareURL = "https://app.blocksquare.io/api/property?type=MARKETPLACE"

// NewBlocksquare returns the OceanPoint (Blocksquare) property source. The API
// requires cfg.BearerToken.
func NewBlocksquare(cfg Config, logger *zap.Logger) port.PartnerMetadataSource {
	if cfg.URL == "" {
		cfg.URL = DefaultBlocksquareURL
	}
	return newSource("blocksquare", cfg, request{decode: decodeTokenAddressList}, logger)
}

// decodeTokenAddressList decodes a JSON array of documents carrying token.address.
func decodeTokenAddressList(body []byte) (map[string][]byte, error) {
	var docs []jsoniter.RawMessage
	if err := json.Unmarshal(body, &docs); err != nil {
		return nil, err
	}
	return index(docs, tokenAddress), nil
}

func tokenAddress(doc jsoniter.RawMessage) string {
	var p struct {
		Token *struct {
			Address string `json:"address"`
		} `json:"token"`
	}
	if json.Unmarshal(doc, &p) != nil || p.Token == nil {
		return ""
	}
	return p.Token.Address
}
