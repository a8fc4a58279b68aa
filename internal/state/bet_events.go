package state

import (
	"context"
	"errors"
	"time"

	"cosmossdk.io/math"
	"github.com/axiomenetwork/coinflip-relayer/internal/db"
	"github.com/axiomenetwork/coinflip-relayer/internal/ledger"
	"github.com/axiomenetwork/coinflip-relayer/internal/protocol"
	"github.com/axiomenetwork/coinflip-relayer/internal/secrets"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// BalanceQuerier is the live chain read used for post-event syncs.
type BalanceQuerier interface {
	QueryVaultBalance(ctx context.Context, address string) (available, locked math.Int, err error)
}

// Confirmed on-chain events, as delivered by the external indexer feed.
type BetCreatedEvent struct {
	BetID      uint64
	Maker      string
	Amount     math.Int
	Commitment string // hex or base64, normalized on arrival
	TxHash     string
	Height     uint64
}

type BetAcceptedEvent struct {
	BetID    uint64
	Acceptor string
	Guess    string
	Height   uint64
}

type BetRevealedEvent struct {
	BetID  uint64
	Side   string
	Winner string
	Payout math.Int
	Height uint64
}

type BetCanceledEvent struct {
	BetID  uint64
	Height uint64
}

type BetTimedOutEvent struct {
	BetID  uint64
	Winner string
	Height uint64
}

// BetEventHandler applies confirmed chain events to the local ledger and
// bet records. It is the consumption contract for the event feed: the
// poller itself lives outside this service.
type BetEventHandler struct {
	ledgerDb *gorm.DB
	ledger   *ledger.VaultLedger
	secrets  *secrets.Store
	balances BalanceQuerier
	notifier *Notifier
}

func NewBetEventHandler(dbm *db.DatabaseManager, vl *ledger.VaultLedger, store *secrets.Store, balances BalanceQuerier, notifier *Notifier) *BetEventHandler {
	return &BetEventHandler{
		ledgerDb: dbm.GetLedgerDB(),
		ledger:   vl,
		secrets:  store,
		balances: balances,
		notifier: notifier,
	}
}

// HandleBetCreated persists the bet row, locks the maker's stake and, if
// the pending secret store holds the fairness material for this
// commitment, moves it onto the bet row and drops the pending record.
func (h *BetEventHandler) HandleBetCreated(ctx context.Context, ev BetCreatedEvent) error {
	commitment, err := protocol.NormalizeCommitment(ev.Commitment)
	if err != nil {
		return err
	}

	if _, err := h.ledger.EnsureAccount(ev.Maker, ev.Maker); err != nil {
		return err
	}

	bet := db.Bet{
		BetID:      ev.BetID,
		Maker:      ev.Maker,
		Amount:     ev.Amount.String(),
		Commitment: commitment,
		Status:     db.BetStatusOpen,
		TxHash:     ev.TxHash,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := h.ledgerDb.Where("bet_id = ?", ev.BetID).FirstOrCreate(&bet).Error; err != nil {
		return err
	}

	if bet.Secret == "" {
		pending, err := h.secrets.GetByCommitment(commitment)
		if err != nil {
			log.Errorf("Failed to read pending secret for commitment %s: %v", commitment, err)
		} else if pending != nil {
			if err := h.ledgerDb.Model(&db.Bet{}).
				Where("bet_id = ?", ev.BetID).
				Update("secret", pending.Secret).Error; err != nil {
				return err
			}
			if err := h.secrets.Delete(commitment); err != nil {
				log.Warnf("Failed to delete pending secret %s: %v", commitment, err)
			}
		}
	}

	if row, err := h.ledger.LockFunds(ev.Maker, ev.Amount); err != nil {
		return err
	} else if row == nil {
		// The local view lagged the chain; reconcile and lock again.
		log.Warnf("Lock guard failed for maker %s on bet %d, syncing from chain", ev.Maker, ev.BetID)
		if err := h.syncUser(ctx, ev.Maker, ev.Height); err != nil {
			return err
		}
		if row, err := h.ledger.LockFunds(ev.Maker, ev.Amount); err != nil {
			return err
		} else if row == nil {
			return errors.New("maker balance still insufficient after chain sync")
		}
	}

	h.notifier.Emit(BetCreated, ev)
	return nil
}

// HandleBetAccepted records the acceptor and locks their stake.
func (h *BetEventHandler) HandleBetAccepted(ctx context.Context, ev BetAcceptedEvent) error {
	bet, err := h.loadBet(ev.BetID)
	if err != nil {
		return err
	}
	amount, ok := math.NewIntFromString(bet.Amount)
	if !ok {
		return errors.New("invalid bet amount " + bet.Amount)
	}

	if _, err := h.ledger.EnsureAccount(ev.Acceptor, ev.Acceptor); err != nil {
		return err
	}
	if err := h.ledgerDb.Model(&db.Bet{}).Where("bet_id = ?", ev.BetID).Updates(map[string]interface{}{
		"acceptor":       ev.Acceptor,
		"acceptor_guess": ev.Guess,
		"status":         db.BetStatusAccepted,
		"updated_at":     time.Now(),
	}).Error; err != nil {
		return err
	}

	if row, err := h.ledger.LockFunds(ev.Acceptor, amount); err != nil {
		return err
	} else if row == nil {
		log.Warnf("Lock guard failed for acceptor %s on bet %d, syncing from chain", ev.Acceptor, ev.BetID)
		if err := h.syncUser(ctx, ev.Acceptor, ev.Height); err != nil {
			return err
		}
		if _, err := h.ledger.LockFunds(ev.Acceptor, amount); err != nil {
			return err
		}
	}

	h.notifier.Emit(BetAccepted, ev)
	return nil
}

// HandleBetRevealed settles both sides' locks. The winner's new available
// balance comes from the chain sync, not from a local credit.
func (h *BetEventHandler) HandleBetRevealed(ctx context.Context, ev BetRevealedEvent) error {
	bet, err := h.loadBet(ev.BetID)
	if err != nil {
		return err
	}
	if err := h.settle(ctx, bet, db.BetStatusRevealed, map[string]interface{}{
		"reveal_side":   ev.Side,
		"winner":        ev.Winner,
		"payout_amount": ev.Payout.String(),
	}, ev.Height); err != nil {
		return err
	}
	h.notifier.Emit(BetRevealed, ev)
	return nil
}

// HandleBetCanceled returns the maker's stake to available.
func (h *BetEventHandler) HandleBetCanceled(ctx context.Context, ev BetCanceledEvent) error {
	bet, err := h.loadBet(ev.BetID)
	if err != nil {
		return err
	}
	amount, ok := math.NewIntFromString(bet.Amount)
	if !ok {
		return errors.New("invalid bet amount " + bet.Amount)
	}

	if err := h.ledgerDb.Model(&db.Bet{}).Where("bet_id = ?", ev.BetID).Updates(map[string]interface{}{
		"status":     db.BetStatusCanceled,
		"updated_at": time.Now(),
	}).Error; err != nil {
		return err
	}
	if row, err := h.ledger.UnlockFunds(bet.Maker, amount); err != nil {
		return err
	} else if row == nil {
		log.Warnf("Unlock guard failed for maker %s on bet %d, syncing from chain", bet.Maker, ev.BetID)
		if err := h.syncUser(ctx, bet.Maker, ev.Height); err != nil {
			return err
		}
	}

	h.notifier.Emit(BetCanceled, ev)
	return nil
}

// HandleBetTimedOut settles an unrevealed bet in the acceptor's favor.
func (h *BetEventHandler) HandleBetTimedOut(ctx context.Context, ev BetTimedOutEvent) error {
	bet, err := h.loadBet(ev.BetID)
	if err != nil {
		return err
	}
	if err := h.settle(ctx, bet, db.BetStatusTimeout, map[string]interface{}{
		"winner": ev.Winner,
	}, ev.Height); err != nil {
		return err
	}
	h.notifier.Emit(BetTimedOut, ev)
	return nil
}

func (h *BetEventHandler) settle(ctx context.Context, bet *db.Bet, status string, extra map[string]interface{}, height uint64) error {
	amount, ok := math.NewIntFromString(bet.Amount)
	if !ok {
		return errors.New("invalid bet amount " + bet.Amount)
	}

	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	if err := h.ledgerDb.Model(&db.Bet{}).Where("bet_id = ?", bet.BetID).Updates(updates).Error; err != nil {
		return err
	}

	// Both stakes leave locked: the pot was paid out on chain. The
	// winner's available balance is refreshed by the sync below.
	for _, user := range []string{bet.Maker, bet.Acceptor} {
		if user == "" {
			continue
		}
		if row, err := h.ledger.ForfeitLocked(user, amount); err != nil {
			return err
		} else if row == nil {
			log.Warnf("Forfeit guard failed for %s on bet %d", user, bet.BetID)
		}
		if err := h.syncUser(ctx, user, height); err != nil {
			log.Errorf("Post-settlement sync failed for %s: %v", user, err)
		}
	}
	return nil
}

func (h *BetEventHandler) loadBet(betID uint64) (*db.Bet, error) {
	var bet db.Bet
	if err := h.ledgerDb.Where("bet_id = ?", betID).First(&bet).Error; err != nil {
		return nil, err
	}
	return &bet, nil
}

// syncUser refreshes a user's chain balance, tagged with the event height
// so an out-of-order arrival cannot regress a newer sync.
func (h *BetEventHandler) syncUser(ctx context.Context, address string, height uint64) error {
	available, locked, err := h.balances.QueryVaultBalance(ctx, address)
	if err != nil {
		return err
	}
	row, err := h.ledger.SyncFromChain(address, address, available, locked, height)
	if err != nil {
		return err
	}
	h.notifier.Emit(BalanceSynced, row)
	return nil
}
