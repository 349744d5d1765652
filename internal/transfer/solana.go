package transfer

import (
	"context"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-bonding-curve/internal/authority"
	"github.com/aman-zulfiqar/solana-bonding-curve/internal/models"
)

// Plan is the instruction set of one pool operation plus the PDA signer seeds
// the host program needs to authorize pool-owned sources.
type Plan struct {
	Program      solana.PublicKey
	Instructions []solana.Instruction
	SignerSeeds  [][][]byte
	Legs         []models.Leg
}

// Submitter lands a plan as one transaction and returns its signature.
type Submitter interface {
	Submit(ctx context.Context, plan *Plan) (string, error)
}

// SolanaGateway turns legs into SPL Token / System Program instructions and
// hands the complete plan to a Submitter on commit. A single transaction is
// atomic on chain, which gives the session its all-or-nothing semantics.
type SolanaGateway struct {
	submitter Submitter
	logger    *logrus.Logger
}

func NewSolanaGateway(submitter Submitter, logger *logrus.Logger) (*SolanaGateway, error) {
	if submitter == nil {
		return nil, fmt.Errorf("solana gateway: submitter is nil")
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &SolanaGateway{submitter: submitter, logger: logger}, nil
}

func (g *SolanaGateway) Begin(ctx context.Context, pool *authority.Capability) (Session, error) {
	if pool == nil {
		return nil, fmt.Errorf("solana gateway: pool capability is nil")
	}
	return &solanaSession{
		gw:   g,
		pool: pool,
		plan: &Plan{Program: pool.ProgramID()},
	}, nil
}

type solanaSession struct {
	gw        *SolanaGateway
	pool      *authority.Capability
	plan      *Plan
	done      bool
	signature string
}

func (s *solanaSession) MoveValue(ctx context.Context, leg models.Leg) error {
	if s.done {
		return transferErr(leg, fmt.Errorf("session closed"))
	}
	if leg.From.IsZero() || leg.To.IsZero() {
		return transferErr(leg, fmt.Errorf("zero account"))
	}

	if s.pool.Owns(leg.From) {
		seeds, err := s.pool.SignAsPool(leg)
		if err != nil {
			return transferErr(leg, err)
		}
		s.plan.SignerSeeds = append(s.plan.SignerSeeds, seeds)
	}

	ixs, err := s.instructionsFor(leg)
	if err != nil {
		return transferErr(leg, err)
	}

	s.plan.Instructions = append(s.plan.Instructions, ixs...)
	s.plan.Legs = append(s.plan.Legs, leg)
	return nil
}

func (s *solanaSession) instructionsFor(leg models.Leg) ([]solana.Instruction, error) {
	switch leg.Kind {
	case models.AssetNative:
		return []solana.Instruction{NewSystemTransferIx(leg.From, leg.To, leg.Amount)}, nil

	case models.AssetToken:
		source, _, err := authority.FindAssociatedTokenAddress(leg.From, leg.Mint)
		if err != nil {
			return nil, fmt.Errorf("derive source ata: %w", err)
		}
		dest, _, err := authority.FindAssociatedTokenAddress(leg.To, leg.Mint)
		if err != nil {
			return nil, fmt.Errorf("derive destination ata: %w", err)
		}

		// The non-pool party pays rent for a missing destination account.
		payer := leg.From
		if s.pool.Owns(leg.From) {
			payer = leg.To
		}
		return []solana.Instruction{
			NewCreateAssociatedTokenAccountIdempotentIx(payer, dest, leg.To, leg.Mint),
			NewTokenTransferIx(source, dest, leg.From, leg.Amount),
		}, nil

	default:
		return nil, fmt.Errorf("unknown asset kind %d", leg.Kind)
	}
}

func (s *solanaSession) Commit(ctx context.Context) error {
	if s.done {
		return fmt.Errorf("solana gateway: session closed")
	}
	s.done = true

	if len(s.plan.Legs) == 0 {
		return nil
	}

	sig, err := s.gw.submitter.Submit(ctx, s.plan)
	if err != nil {
		return transferErr(s.plan.Legs[0], fmt.Errorf("submit: %w", err))
	}
	s.signature = sig

	s.gw.logger.WithFields(logrus.Fields{
		"pool":         s.pool.Pool().String(),
		"signature":    sig,
		"instructions": len(s.plan.Instructions),
	}).Info("transfer plan submitted")
	return nil
}

func (s *solanaSession) Rollback() {
	s.done = true
	s.plan = &Plan{Program: s.pool.ProgramID()}
}

// DryRunSubmitter records plans instead of sending them.
type DryRunSubmitter struct {
	mu    sync.Mutex
	plans []*Plan
}

func (d *DryRunSubmitter) Submit(ctx context.Context, plan *Plan) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.plans = append(d.plans, plan)
	return fmt.Sprintf("dry-run-%d", len(d.plans)), nil
}

// Plans returns the recorded plans in submission order.
func (d *DryRunSubmitter) Plans() []*Plan {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Plan(nil), d.plans...)
}
