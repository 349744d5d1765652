package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/rpc"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/transfer"
)

// ErrProgramSignature is returned for plans that move value out of a pool.
// Those legs need the program's PDA signature, which only an on-chain
// invoke_signed can produce.
var ErrProgramSignature = errors.New("plan needs a program-derived signature")

type SendOptions struct {
	SkipPreflight       bool
	PreflightCommitment string
	Commitment          string
	ConfirmTimeout      time.Duration
}

func DefaultSendOptions() SendOptions {
	return SendOptions{
		PreflightCommitment: rpc.CommitmentProcessed,
		Commitment:          rpc.CommitmentConfirmed,
		ConfirmTimeout:      60 * time.Second,
	}
}

var _ transfer.Submitter = (*Wallet)(nil)

// Submit lands plan as one transaction paid and signed by the wallet and
// waits for the configured commitment.
func (w *Wallet) Submit(ctx context.Context, plan *transfer.Plan) (string, error) {
	if len(plan.SignerSeeds) > 0 {
		return "", fmt.Errorf("%w: %d pool-signed legs", ErrProgramSignature, len(plan.SignerSeeds))
	}

	tx, err := w.BuildTransaction(ctx, plan.Instructions)
	if err != nil {
		return "", err
	}
	if err := w.SignTx(tx); err != nil {
		return "", err
	}

	sig, err := w.SendTx(ctx, tx)
	if err != nil {
		return "", err
	}
	if err := w.ConfirmTransaction(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

// BuildTransaction creates a transaction with a recent blockhash and the
// wallet as fee payer.
func (w *Wallet) BuildTransaction(ctx context.Context, instructions []solana.Instruction) (*solana.Transaction, error) {
	blockhash, err := w.rpc.GetLatestBlockhash(ctx, rpc.CommitmentProcessed)
	if err != nil {
		return nil, fmt.Errorf("failed to get blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(w.pub))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

// SignTx signs with the wallet key. It fails if the transaction needs any
// other signer.
func (w *Wallet) SignTx(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.pub) {
			return &w.priv
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	return nil
}

func (w *Wallet) SendTx(ctx context.Context, tx *solana.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return w.rpc.SendTransaction(ctx, base64.StdEncoding.EncodeToString(raw), w.opts.SkipPreflight, w.opts.PreflightCommitment)
}

// ConfirmTransaction polls the signature until it reaches the configured
// commitment, fails, or the timeout passes.
func (w *Wallet) ConfirmTransaction(ctx context.Context, signature string) error {
	deadline := time.Now().Add(w.opts.ConfirmTimeout)
	backoff := 500 * time.Millisecond
	maxBackoff := 4 * time.Second

	for time.Now().Before(deadline) {
		status, err := w.rpc.GetSignatureStatus(ctx, signature)
		if err != nil {
			return fmt.Errorf("failed to check signature: %w", err)
		}
		if status != nil {
			if status.Err != nil {
				return fmt.Errorf("transaction failed: %v", status.Err)
			}
			if status.Reached(w.opts.Commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	return fmt.Errorf("transaction confirmation timeout after %v", w.opts.ConfirmTimeout)
}
