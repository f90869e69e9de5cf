// Package partner fetches partner-curated property metadata used to enrich tokens.
package partner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chain_sync/internal/app/port"

	jsoniter "github.com/json-iterator/go"
	"github.com/patrickmn/go-cache"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const cacheKey = "documents"

// Config holds the transport settings shared by every partner source.
type Config struct {
	URL            string        `yaml:"url"`
	BearerToken    string        `yaml:"bearerToken"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	CacheTTL       time.Duration `yaml:"cacheTTL"`
}

// request describes one upstream call; decode turns its body into documents keyed by address.
type request struct {
	method string
	body   []byte
	decode func(body []byte) (map[string][]byte, error)
}

// source is a cached fasthttp-backed port.PartnerMetadataSource.
type source struct {
	name   string
	cfg    Config
	req    request
	client *fasthttp.Client
	cache  *cache.Cache
	logger *zap.Logger
}

func newSource(name string, cfg Config, req request, logger *zap.Logger) *source {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if req.method == "" {
		req.method = fasthttp.MethodGet
	}
	return &source{
		name:   name,
		cfg:    cfg,
		req:    req,
		client: &fasthttp.Client{Name: "chain_sync"},
		cache:  cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		logger: logger.Named("Partner").With(zap.String("partner", name)),
	}
}

var _ port.PartnerMetadataSource = (*source)(nil)

func (s *source) Name() string { return s.name }

// Fetch returns the partner documents, served from cache while fresh.
func (s *source) Fetch(ctx context.Context) (map[string][]byte, error) {
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.(map[string][]byte), nil
	}

	body, err := s.do(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := s.req.decode(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", s.name, err)
	}

	s.logger.Debug("Fetched partner metadata", zap.Int("documents", len(docs)))
	s.cache.Set(cacheKey, docs, cache.DefaultExpiration)
	return docs, nil
}

func (s *source) do(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(s.cfg.URL)
	req.Header.SetMethod(s.req.method)
	req.Header.Set("Accept", "application/json")
	if len(s.req.body) > 0 {
		req.Header.SetContentType("application/json")
		req.SetBody(s.req.body)
	}
	if s.cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.BearerToken)
	}

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = s.client.DoDeadline(req, resp, deadline)
	} else {
		err = s.client.DoTimeout(req, resp, s.cfg.RequestTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to %s: %w", s.cfg.URL, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("%s request to %s failed with status %d", s.name, s.cfg.URL, resp.StatusCode())
	}

	// Body is owned by resp, which goes back to the pool on return.
	return append([]byte(nil), resp.Body()...), nil
}

// index keys raw documents by the lower-cased address extracted from each one.
// Documents without an address are dropped.
func index(docs []jsoniter.RawMessage, address func(jsoniter.RawMessage) string) map[string][]byte {
	out := make(map[string][]byte, len(docs))
	for _, doc := range docs {
		addr := strings.ToLower(strings.TrimSpace(address(doc)))
		if addr == "" {
			continue
		}
		if _, dup := out[addr]; dup {
			continue
		}
		out[addr] = []byte(doc)
	}
	return out
}
