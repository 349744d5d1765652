package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/rpc"
)

// Wallet is the service's fee payer. It signs and lands transfer plans.
type Wallet struct {
	rpc  *rpc.Client
	opts SendOptions
	priv solana.PrivateKey
	pub  solana.PublicKey
}

func NewWallet(client *rpc.Client, privateKey string, opts *SendOptions) (*Wallet, error) {
	if client == nil {
		return nil, fmt.Errorf("wallet: rpc client is required")
	}
	if strings.TrimSpace(privateKey) == "" {
		return nil, fmt.Errorf("wallet: private key is required")
	}

	priv, err := ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	o := DefaultSendOptions()
	if opts != nil {
		o = *opts
	}

	return &Wallet{
		rpc:  client,
		opts: o,
		priv: priv,
		pub:  priv.PublicKey(),
	}, nil
}

func (w *Wallet) Address() string             { return w.pub.String() }
func (w *Wallet) PublicKey() solana.PublicKey { return w.pub }

// BalanceLamports returns the wallet's native balance.
func (w *Wallet) BalanceLamports(ctx context.Context) (uint64, error) {
	return w.rpc.GetBalance(ctx, w.pub, w.opts.Commitment)
}

// ParsePrivateKey accepts a base58 64-byte key or a solana-keygen JSON array.
func ParsePrivateKey(s string) (solana.PrivateKey, error) {
	s = strings.TrimSpace(s)
	var raw []byte

	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("wallet: invalid JSON private key: %w", err)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("wallet: invalid byte at %d: %d", i, v)
			}
			raw[i] = byte(v)
		}
	} else {
		var err error
		if raw, err = base58.Decode(s); err != nil {
			return nil, fmt.Errorf("wallet: invalid base58 private key: %w", err)
		}
	}

	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("wallet: expected %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return solana.PrivateKey(ed25519.PrivateKey(raw)), nil
}
