package wager

import (
	"context"
	"errors"

	"cosmossdk.io/math"
	"github.com/axiomenetwork/coinflip-relayer/internal/db"
	"github.com/axiomenetwork/coinflip-relayer/internal/protocol"
	"github.com/axiomenetwork/coinflip-relayer/internal/relay"
	"github.com/axiomenetwork/coinflip-relayer/internal/secrets"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrRevealMismatch means the supplied side/secret do not reproduce the
// stored commitment. Rejected locally so no transaction is wasted on a
// reveal the contract would refuse.
var ErrRevealMismatch = errors.New("wager: reveal does not match commitment")

var ErrBetNotFound = errors.New("wager: bet not found")

// Relayer is the submission seam, satisfied by *relay.TxRelayer.
type Relayer interface {
	Submit(ctx context.Context, userAddr string, action relay.Action, memo string) (*relay.Result, error)
}

// Service orchestrates the commit-reveal flow around the relay: secrets
// are generated here and written to the durability store before anything
// is broadcast.
type Service struct {
	relayer  Relayer
	secrets  *secrets.Store
	ledgerDb *gorm.DB
}

func NewService(relayer Relayer, store *secrets.Store, dbm *db.DatabaseManager) *Service {
	return &Service{
		relayer:  relayer,
		secrets:  store,
		ledgerDb: dbm.GetLedgerDB(),
	}
}

type CreateResult struct {
	Commitment string        `json:"commitment"`
	Relay      *relay.Result `json:"relay"`
}

// Create opens a wager for userAddr. The secret is persisted before the
// broadcast: if the save fails the call halts, because broadcasting
// without durable reveal material risks unrecoverable loss.
func (s *Service) Create(ctx context.Context, userAddr string, amount math.Int, side protocol.Side) (*CreateResult, error) {
	secret, err := protocol.GenerateSecret()
	if err != nil {
		return nil, err
	}
	commitment, err := protocol.ComputeCommitment(userAddr, side, secret)
	if err != nil {
		return nil, err
	}

	if err := s.secrets.Save(commitment, side, secret); err != nil {
		return nil, err
	}

	res, err := s.relayer.Submit(ctx, userAddr, relay.CreateBet{Amount: amount, Commitment: commitment}, "")
	if err != nil {
		return nil, err
	}
	if res.TxHash != "" {
		s.secrets.SetTxHash(commitment, res.TxHash)
	}
	return &CreateResult{Commitment: commitment, Relay: res}, nil
}

// Reveal resolves a bet with a caller-supplied side and secret. The
// commitment is recomputed locally first and mismatches are rejected
// before any chain call.
func (s *Service) Reveal(ctx context.Context, betID uint64, side protocol.Side, secret string) (*relay.Result, error) {
	bet, err := s.loadBet(betID)
	if err != nil {
		return nil, err
	}
	if !protocol.VerifyReveal(bet.Commitment, bet.Maker, side, secret) {
		return nil, ErrRevealMismatch
	}
	return s.relayer.Submit(ctx, bet.Maker, relay.Reveal{BetID: betID, Side: side, Secret: secret}, "")
}

// RevealStored resolves a bet using the secret this service persisted at
// creation, trying the bet row first and falling back to the pending
// store for bets whose confirmation has not landed yet.
func (s *Service) RevealStored(ctx context.Context, betID uint64) (*relay.Result, error) {
	bet, err := s.loadBet(betID)
	if err != nil {
		return nil, err
	}

	secret := bet.Secret
	var side protocol.Side
	if secret == "" {
		pending, err := s.secrets.GetByCommitment(bet.Commitment)
		if err != nil {
			return nil, err
		}
		if pending == nil {
			return nil, errors.New("wager: no stored secret for bet")
		}
		secret = pending.Secret
		side, err = protocol.ParseSide(pending.Side)
		if err != nil {
			return nil, err
		}
	} else {
		// Recover the side by trying both against the commitment.
		for _, candidate := range []protocol.Side{protocol.SideHeads, protocol.SideTails} {
			if protocol.VerifyReveal(bet.Commitment, bet.Maker, candidate, secret) {
				side = candidate
				break
			}
		}
		if side == "" {
			log.Errorf("Stored secret for bet %d does not reproduce its commitment", betID)
			return nil, ErrRevealMismatch
		}
	}

	return s.Reveal(ctx, betID, side, secret)
}

func (s *Service) loadBet(betID uint64) (*db.Bet, error) {
	var bet db.Bet
	err := s.ledgerDb.Where("bet_id = ?", betID).First(&bet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBetNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bet, nil
}
