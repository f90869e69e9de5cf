package partner

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRealToken_KeysByLowerCasedContract(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[
			{"fullName":"9 Main St","gnosisContract":"0xAbCd000000000000000000000000000000000001","tokenPrice":50.1},
			{"fullName":"no contract"},
			{"fullName":"dup","gnosisContract":"0xabcd000000000000000000000000000000000001"}
		]`))
	}))
	defer srv.Close()

	src := NewRealToken(Config{URL: srv.URL, CacheTTL: time.Minute}, zap.NewNop())
	docs, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Contains(t, string(docs["0xabcd000000000000000000000000000000000001"]), "9 Main St")

	_, err = src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second fetch is served from cache")
}

func TestBlocksquare_SendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`[{"name":"Villa","token":{"address":"0x00000000000000000000000000000000000000F1"}},{"name":"untokenized"}]`))
	}))
	defer srv.Close()

	docs, err := NewBlocksquare(Config{URL: srv.URL, BearerToken: "secret"}, zap.NewNop()).Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 1)
	assert.Contains(t, docs, "0x00000000000000000000000000000000000000f1")

	_, err = NewBlocksquare(Config{URL: srv.URL}, zap.NewNop()).Fetch(context.Background())
	assert.Error(t, err)
}

func TestReental_GraphQL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "getPublicProperties")
		_, _ = w.Write([]byte(`{"data":{"getPublicProperties":{"__typename":"PropertyAssets","items":[
			{"name":"Reental Madrid","token":{"address":"0x00000000000000000000000000000000000000AA","symbol":"RNT1"}}
		]}}}`))
	}))
	defer srv.Close()

	docs, err := NewReental(Config{URL: srv.URL}, zap.NewNop()).Fetch(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(docs["0x00000000000000000000000000000000000000aa"]), "Reental Madrid")
}

func TestReental_ErrorUnion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"getPublicProperties":{"__typename":"Error","message":"boom"}}}`))
	}))
	defer srv.Close()

	_, err := NewReental(Config{URL: srv.URL}, zap.NewNop()).Fetch(context.Background())
	assert.ErrorContains(t, err, "boom")
}
