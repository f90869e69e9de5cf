package partner

import (
	"errors"

	"chain_sync/internal/app/port"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// DefaultReentalURL is the Reental public GraphQL endpoint.
const DefaultReentalURL = "https://backend.reental.co/graphql"

const reentalQuery = `query GETPROPERTIES_QUERY($input: GetPropertiesInput!) {
  getPublicProperties(input: $input) {
    __typename
    ... on PropertyAssets {
      items {
        _id name slug status address locality country
        tokenPrice { value currency }
        emittedTokens apr starts_on closingDate tokenName
        token { id hashId address name symbol totalSupply maxSupply nWallets price status sold }
        whitelist { _id name isGlobal }
      }
    }
    ... on Error { code message description }
  }
}`

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// NewReental returns the Reental property source.
func NewReental(cfg Config, logger *zap.Logger) port.PartnerMetadataSource {
	if cfg.URL == "" {
		cfg.URL = DefaultReentalURL
	}
	body, err := json.Marshal(graphQLRequest{
		Query: reentalQuery,
		Variables: map[string]any{
			"input": map[string]any{
				"fields":         []string{"name", "address", "country", "description_en", "description_es"},
				"search":         "",
				"orderBy":        "starts_on",
				"orderDirection": "DESC",
				"limit":          2000,
				"offset":         0,
				"hidePrivate":    false,
			},
		},
	})
	if err != nil {
		// static input
		panic(err)
	}
	return newSource("reental", cfg, request{method: "POST", body: body, decode: decodeReental}, logger)
}

func decodeReental(body []byte) (map[string][]byte, error) {
	var resp struct {
		Data struct {
			GetPublicProperties struct {
				Typename string                `json:"__typename"`
				Items    []jsoniter.RawMessage `json:"items"`
				Message  string                `json:"message"`
			} `json:"getPublicProperties"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, errors.New(resp.Errors[0].Message)
	}
	if props := resp.Data.GetPublicProperties; props.Typename == "Error" {
		return nil, errors.New(props.Message)
	}
	return index(resp.Data.GetPublicProperties.Items, tokenAddress), nil
}
