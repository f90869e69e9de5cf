package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chain_sync/internal/app/port"
	"chain_sync/internal/domain/entity"
	"chain_sync/internal/pkg/pagination"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Wire shapes of the indexer v2 API.
type (
	indexerAssetParams struct {
		Creator  string `json:"creator"`
		Name     string `json:"name"`
		UnitName string `json:"unit-name"`
		Decimals uint8  `json:"decimals"`
		Total    uint64 `json:"total"`
		URL      string `json:"url"`
	}

	indexerAsset struct {
		Index   uint64             `json:"index"`
		Deleted bool               `json:"deleted"`
		Params  indexerAssetParams `json:"params"`
	}

	indexerHolding struct {
		Address         string  `json:"address"`
		Amount          uint64  `json:"amount"`
		Deleted         bool    `json:"deleted"`
		OptedInAtRound  *uint64 `json:"opted-in-at-round"`
		OptedOutAtRound *uint64 `json:"opted-out-at-round"`
	}

	indexerPayment struct {
		Amount   uint64 `json:"amount"`
		Receiver string `json:"receiver"`
	}

	indexerAssetTransfer struct {
		Amount   uint64 `json:"amount"`
		AssetID  uint64 `json:"asset-id"`
		Receiver string `json:"receiver"`
	}

	indexerTransaction struct {
		ID             string                `json:"id"`
		TxType         string                `json:"tx-type"`
		Sender         string                `json:"sender"`
		Group          string                `json:"group"`
		ConfirmedRound uint64                `json:"confirmed-round"`
		RoundTime      int64                 `json:"round-time"`
		Payment        *indexerPayment       `json:"payment-transaction"`
		AssetTransfer  *indexerAssetTransfer `json:"asset-transfer-transaction"`
		InnerTxns      []indexerTransaction  `json:"inner-txns"`
	}

	assetsResponse struct {
		Assets    []indexerAsset `json:"assets"`
		NextToken string         `json:"next-token"`
	}

	assetResponse struct {
		Asset indexerAsset `json:"asset"`
	}

	balancesResponse struct {
		Balances  []indexerHolding `json:"balances"`
		NextToken string           `json:"next-token"`
	}

	transactionsResponse struct {
		Transactions []indexerTransaction `json:"transactions"`
		NextToken    string               `json:"next-token"`
	}

	transactionResponse struct {
		Transaction indexerTransaction `json:"transaction"`
	}
)

func (a indexerAsset) toEntity() entity.AlgorandAsset {
	return entity.AlgorandAsset{
		Index:   a.Index,
		Deleted: a.Deleted,
		Params: entity.AlgorandAssetParams{
			Creator:  a.Params.Creator,
			Name:     a.Params.Name,
			UnitName: a.Params.UnitName,
			Decimals: a.Params.Decimals,
			Total:    a.Params.Total,
			URL:      a.Params.URL,
		},
	}
}

func (t indexerTransaction) toEntity() entity.RawTransaction {
	out := entity.RawTransaction{
		ID:             t.ID,
		Type:           t.TxType,
		Sender:         t.Sender,
		Group:          t.Group,
		ConfirmedRound: t.ConfirmedRound,
		RoundTime:      t.RoundTime,
	}
	if t.Payment != nil {
		out.Payment = &entity.PaymentTransfer{Receiver: t.Payment.Receiver, Amount: t.Payment.Amount}
	}
	if t.AssetTransfer != nil {
		out.AssetTransfer = &entity.AssetTransfer{
			AssetID:  t.AssetTransfer.AssetID,
			Receiver: t.AssetTransfer.Receiver,
			Amount:   t.AssetTransfer.Amount,
		}
	}
	for _, inner := range t.InnerTxns {
		out.InnerTxns = append(out.InnerTxns, inner.toEntity())
	}
	return out
}

func transactionsPage(r transactionsResponse) pagination.Page[entity.RawTransaction] {
	items := make([]entity.RawTransaction, 0, len(r.Transactions))
	for _, t := range r.Transactions {
		items = append(items, t.toEntity())
	}
	return pagination.Page[entity.RawTransaction]{Items: items, NextCursor: r.NextToken}
}

// algorandIndexerClient implements port.AlgorandIndexer over the indexer REST API.
type algorandIndexerClient struct {
	client  *fasthttp.Client
	baseURL string
	token   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewAlgorandIndexerClient creates an indexer client. apiToken is sent as
// X-Indexer-API-Token when not empty.
func NewAlgorandIndexerClient(baseURL, apiToken string, timeout time.Duration, logger *zap.Logger) port.AlgorandIndexer {
	return &algorandIndexerClient{
		client:  &fasthttp.Client{Name: "chain_sync"},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   apiToken,
		timeout: timeout,
		logger:  logger.Named("AlgorandIndexer"),
	}
}

func (c *algorandIndexerClient) get(ctx context.Context, path string, query url.Values, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}
	c.logger.Debug("Requesting indexer", zap.String("url", requestURL))

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("X-Indexer-API-Token", c.token)
	}

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = c.client.DoDeadline(req, resp, deadline)
	} else {
		err = c.client.DoTimeout(req, resp, c.timeout)
	}
	if err != nil {
		return fmt.Errorf("failed to execute request to %s: %w", requestURL, err)
	}

	body := resp.Body()
	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusNotFound:
		return fmt.Errorf("%s: %w", requestURL, entity.ErrNotFound)
	case status != fasthttp.StatusOK:
		c.logger.Warn("Indexer request failed",
			zap.String("url", requestURL),
			zap.Int("statusCode", status),
			zap.ByteString("responseBody", body))
		return fmt.Errorf("indexer request to %s failed with status %d", requestURL, status)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode indexer response from %s: %w", requestURL, err)
	}
	return nil
}

func pageQuery(limit int, next string) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if next != "" {
		q.Set("next", next)
	}
	return q
}

func (c *algorandIndexerClient) SearchForAssets(ctx context.Context, creator string, limit int, next string) (pagination.Page[entity.AlgorandAsset], error) {
	q := pageQuery(limit, next)
	q.Set("creator", creator)

	var r assetsResponse
	if err := c.get(ctx, "/v2/assets", q, &r); err != nil {
		return pagination.Page[entity.AlgorandAsset]{}, err
	}
	items := make([]entity.AlgorandAsset, 0, len(r.Assets))
	for _, a := range r.Assets {
		items = append(items, a.toEntity())
	}
	return pagination.Page[entity.AlgorandAsset]{Items: items, NextCursor: r.NextToken}, nil
}

func (c *algorandIndexerClient) LookupAssetByID(ctx context.Context, assetID uint64) (entity.AlgorandAsset, error) {
	var r assetResponse
	if err := c.get(ctx, "/v2/assets/"+strconv.FormatUint(assetID, 10), nil, &r); err != nil {
		return entity.AlgorandAsset{}, err
	}
	return r.Asset.toEntity(), nil
}

func (c *algorandIndexerClient) LookupAssetBalances(ctx context.Context, assetID, currencyGreaterThan uint64, limit int, next string) (pagination.Page[entity.AlgorandHolding], error) {
	q := pageQuery(limit, next)
	q.Set("currency-greater-than", strconv.FormatUint(currencyGreaterThan, 10))

	var r balancesResponse
	if err := c.get(ctx, "/v2/assets/"+strconv.FormatUint(assetID, 10)+"/balances", q, &r); err != nil {
		return pagination.Page[entity.AlgorandHolding]{}, err
	}
	items := make([]entity.AlgorandHolding, 0, len(r.Balances))
	for _, b := range r.Balances {
		items = append(items, entity.AlgorandHolding{
			Address:         b.Address,
			Amount:          b.Amount,
			Deleted:         b.Deleted,
			OptedInAtRound:  b.OptedInAtRound,
			OptedOutAtRound: b.OptedOutAtRound,
		})
	}
	return pagination.Page[entity.AlgorandHolding]{Items: items, NextCursor: r.NextToken}, nil
}

func (c *algorandIndexerClient) LookupAssetTransactions(ctx context.Context, assetID uint64, afterTime time.Time, limit int, next string) (pagination.Page[entity.RawTransaction], error) {
	q := pageQuery(limit, next)
	if !afterTime.IsZero() {
		q.Set("after-time", afterTime.UTC().Format(time.RFC3339))
	}

	var r transactionsResponse
	if err := c.get(ctx, "/v2/assets/"+strconv.FormatUint(assetID, 10)+"/transactions", q, &r); err != nil {
		return pagination.Page[entity.RawTransaction]{}, err
	}
	return transactionsPage(r), nil
}

func (c *algorandIndexerClient) SearchForTransactionsByRound(ctx context.Context, round uint64, next string) (pagination.Page[entity.RawTransaction], error) {
	q := pageQuery(0, next)
	q.Set("round", strconv.FormatUint(round, 10))

	var r transactionsResponse
	if err := c.get(ctx, "/v2/transactions", q, &r); err != nil {
		return pagination.Page[entity.RawTransaction]{}, err
	}
	return transactionsPage(r), nil
}

func (c *algorandIndexerClient) LookupTransactionByID(ctx context.Context, txID string) (entity.RawTransaction, error) {
	if txID == "" {
		return entity.RawTransaction{}, errors.New("empty transaction id")
	}
	var r transactionResponse
	if err := c.get(ctx, "/v2/transactions/"+url.PathEscape(txID), nil, &r); err != nil {
		return entity.RawTransaction{}, err
	}
	return r.Transaction.toEntity(), nil
}
