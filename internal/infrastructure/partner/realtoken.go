package partner

import (
	"chain_sync/internal/app/port"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// DefaultRealTokenURL lists every RealT property with its Gnosis contract.
const DefaultRealTokenURL = "https://dashboard.realtoken.community/api/properties"

// NewRealToken returns the RealT property source, keyed by gnosisContract.
func NewRealToken(cfg Config, logger *zap.Logger) port.PartnerMetadataSource {
	if cfg.URL == "" {
		cfg.URL = DefaultRealTokenURL
	}
	return newSource("realtoken", cfg, request{decode: decodeRealToken}, logger)
}

func decodeRealToken(body []byte) (map[string][]byte, error) {
	var docs []jsoniter.RawMessage
	if err := json.Unmarshal(body, &docs); err != nil {
		return nil, err
	}
	return index(docs, func(doc jsoniter.RawMessage) string {
		var p struct {
			GnosisContract string `json:"gnosisContract"`
		}
		if json.Unmarshal(doc, &p) != nil {
			return ""
		}
		return p.GnosisContract
	}), nil
}
