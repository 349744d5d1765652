package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/rpc"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/transfer"
)

func TestParsePrivateKey(t *testing.T) {
	key := solana.NewWallet().PrivateKey

	fromB58, err := ParsePrivateKey(base58.Encode(key))
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), fromB58.PublicKey())

	ints := make([]string, len(key))
	for i, b := range key {
		ints[i] = fmt.Sprint(b)
	}
	fromJSON, err := ParsePrivateKey("[" + strings.Join(ints, ",") + "]")
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), fromJSON.PublicKey())

	_, err = ParsePrivateKey("[1,2,3]")
	assert.Error(t, err)
	_, err = ParsePrivateKey("[1,2,300]")
	assert.Error(t, err)
	_, err = ParsePrivateKey("0OIl")
	assert.Error(t, err)
}

func TestNewWallet_Validation(t *testing.T) {
	_, err := NewWallet(nil, "x", nil)
	assert.Error(t, err)

	client := rpc.NewClient(rpc.ClientConfig{BaseURL: "http://127.0.0.1:1"})
	_, err = NewWallet(client, "  ", nil)
	assert.Error(t, err)
}

// fakeCluster answers the handful of methods Submit uses.
func fakeCluster(t *testing.T, sent *[]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			Params []json.RawMessage
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch req.Method {
		case "getLatestBlockhash":
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":{"value":{"blockhash":%q,"lastValidBlockHeight":1}}}`, solana.Hash{9}.String())
		case "sendTransaction":
			var encoded string
			require.NoError(t, json.Unmarshal(req.Params[0], &encoded))
			*sent = append(*sent, encoded)
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":"5sig"}`)
		case "getSignatureStatuses":
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"value":[{"slot":1,"err":null,"confirmationStatus":"confirmed"}]}}`)
		default:
			t.Errorf("unexpected method %s", req.Method)
		}
	}))
}

func TestSubmit_DepositorPlan(t *testing.T) {
	var sent []string
	srv := fakeCluster(t, &sent)
	defer srv.Close()

	key := solana.NewWallet().PrivateKey
	w, err := NewWallet(rpc.NewClient(rpc.ClientConfig{BaseURL: srv.URL}), base58.Encode(key), &SendOptions{
		Commitment:     rpc.CommitmentConfirmed,
		ConfirmTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	vault := solana.NewWallet().PublicKey()
	leg := models.NativeLeg(w.PublicKey(), vault, 1000)
	plan := &transfer.Plan{
		Instructions: []solana.Instruction{transfer.NewSystemTransferIx(leg.From, leg.To, leg.Amount)},
		Legs:         []models.Leg{leg},
	}

	sig, err := w.Submit(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, "5sig", sig)
	require.Len(t, sent, 1)
}

func TestSubmit_ForeignSignerFails(t *testing.T) {
	var sent []string
	srv := fakeCluster(t, &sent)
	defer srv.Close()

	w, err := NewWallet(rpc.NewClient(rpc.ClientConfig{BaseURL: srv.URL}), base58.Encode(solana.NewWallet().PrivateKey), nil)
	require.NoError(t, err)

	trader := solana.NewWallet().PublicKey()
	plan := &transfer.Plan{
		Instructions: []solana.Instruction{transfer.NewSystemTransferIx(trader, w.PublicKey(), 5)},
	}
	_, err = w.Submit(context.Background(), plan)
	assert.Error(t, err)
	assert.Empty(t, sent)
}

func TestSubmit_RejectsPoolSignedPlans(t *testing.T) {
	w, err := NewWallet(rpc.NewClient(rpc.ClientConfig{BaseURL: "http://127.0.0.1:1"}), base58.Encode(solana.NewWallet().PrivateKey), nil)
	require.NoError(t, err)

	_, err = w.Submit(context.Background(), &transfer.Plan{SignerSeeds: [][][]byte{{[]byte("vault")}}})
	assert.ErrorIs(t, err, ErrProgramSignature)
}
