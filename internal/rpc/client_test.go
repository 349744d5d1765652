package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string, retries int) *Client {
	return NewClient(ClientConfig{
		BaseURL:      url,
		Timeout:      2 * time.Second,
		MaxRetries:   retries,
		RetryBackoff: time.Millisecond,
	})
}

func TestCall_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":42}}`))
	}))
	defer srv.Close()

	bal, err := newTestClient(srv.URL, 3).GetBalance(context.Background(), solana.SystemProgramID, CommitmentConfirmed)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), bal)
	assert.Equal(t, int32(3), calls.Load())
}

func TestCall_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL, 2).Call(context.Background(), "getHealth", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), calls.Load())
}

func TestCall_NodeErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32002,"message":"Transaction simulation failed"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 5).SendTransaction(context.Background(), "AQ==", false, CommitmentProcessed)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32002, rpcErr.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCall_SendsMethodAndParams(t *testing.T) {
	hash := solana.Hash{1, 2, 3}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params []map[string]any
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "getLatestBlockhash", req.Method)
		assert.Equal(t, "finalized", req.Params[0]["commitment"])
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":{"blockhash":"` + hash.String() + `","lastValidBlockHeight":9}}}`))
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL, 0).GetLatestBlockhash(context.Background(), CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, hash, got)
}

func TestGetSignatureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"value":[{"slot":7,"confirmations":null,"err":null,"confirmationStatus":"finalized"}]}}`))
	}))
	defer srv.Close()

	st, err := newTestClient(srv.URL, 0).GetSignatureStatus(context.Background(), "sig")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.Reached(CommitmentConfirmed))
	assert.True(t, st.Reached(CommitmentFinalized))
}

func TestSignatureStatus_Reached(t *testing.T) {
	processed := &SignatureStatus{ConfirmationStatus: "processed"}
	assert.True(t, processed.Reached(CommitmentProcessed))
	assert.False(t, processed.Reached(CommitmentConfirmed))
	assert.False(t, (&SignatureStatus{}).Reached(CommitmentProcessed))
}

func TestCall_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewClient(ClientConfig{BaseURL: srv.URL, MaxRetries: 3, RetryBackoff: time.Second}).
		Call(ctx, "getHealth", nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
