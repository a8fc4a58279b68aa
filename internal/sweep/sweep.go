package sweep

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"cosmossdk.io/math"
	"github.com/axiomenetwork/coinflip-relayer/internal/config"
	"github.com/axiomenetwork/coinflip-relayer/internal/db"
	"github.com/axiomenetwork/coinflip-relayer/internal/relay"
	"github.com/axiomenetwork/coinflip-relayer/internal/state"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrSweepInProgress is returned when a sweep run is requested while one
// is already in flight. Runs never queue.
var ErrSweepInProgress = errors.New("sweep: run already in progress")

// Relayer is the transaction submission seam; *relay.TxRelayer satisfies
// it, tests substitute a fake.
type Relayer interface {
	Submit(ctx context.Context, userAddr string, action relay.Action, memo string) (*relay.Result, error)
}

// BalanceQuerier is the live chain vault read.
type BalanceQuerier interface {
	QueryVaultBalance(ctx context.Context, address string) (available, locked math.Int, err error)
}

// Ledger is the slice of the vault ledger the sweep needs.
type Ledger interface {
	ListDebtors(limit int) ([]db.VaultBalance, error)
	CreditAvailable(userID string, amount math.Int) (*db.VaultBalance, error)
}

// Sweep entry statuses.
const (
	StatusSwept            = "swept"
	StatusSkipped          = "skipped"
	StatusWithdrawFailed   = "withdraw_failed"
	StatusTransferFailed   = "transfer_failed"
	StatusCompensated      = "compensated"
	StatusCompensateFailed = "compensate_failed"
)

type Candidate struct {
	UserID         string   `json:"user_id"`
	Address        string   `json:"address"`
	Debt           math.Int `json:"debt"`
	ChainAvailable math.Int `json:"chain_available"`
	SweepAmount    math.Int `json:"sweep_amount"`
}

type Outcome struct {
	UserID         string   `json:"user_id"`
	Address        string   `json:"address"`
	Amount         math.Int `json:"amount"`
	Status         string   `json:"status"`
	WithdrawTxHash string   `json:"withdraw_tx_hash,omitempty"`
	TransferTxHash string   `json:"transfer_tx_hash,omitempty"`
	Detail         string   `json:"detail,omitempty"`
}

type Summary struct {
	Swept   int       `json:"swept"`
	Skipped int       `json:"skipped"`
	Failed  int       `json:"failed"`
	Results []Outcome `json:"results"`
}

// Sweeper converts tracked off-chain debt into actual on-chain transfers
// to the treasury: withdraw from the user's vault to their wallet, then
// transfer from the wallet to the treasury, both relayed on the user's
// behalf. Only one run may be in flight at a time.
type Sweeper struct {
	relayer  Relayer
	balances BalanceQuerier
	ledger   Ledger
	ledgerDb *gorm.DB
	notifier *state.Notifier
	running  atomic.Bool
}

func NewSweeper(relayer Relayer, balances BalanceQuerier, l Ledger, dbm *db.DatabaseManager, notifier *state.Notifier) *Sweeper {
	return &Sweeper{
		relayer:  relayer,
		balances: balances,
		ledger:   l,
		ledgerDb: dbm.GetLedgerDB(),
		notifier: notifier,
	}
}

// Preview computes sweep candidates without executing anything.
func (s *Sweeper) Preview(ctx context.Context) ([]Candidate, error) {
	debtors, err := s.ledger.ListDebtors(0)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(debtors))
	for _, row := range debtors {
		debt, ok := math.NewIntFromString(row.OffchainSpent)
		if !ok || !debt.IsPositive() {
			continue
		}
		available, _, err := s.balances.QueryVaultBalance(ctx, row.Address)
		if err != nil {
			log.Errorf("Sweep preview: balance query failed for %s: %v", row.Address, err)
			continue
		}
		candidates = append(candidates, Candidate{
			UserID:         row.UserID,
			Address:        row.Address,
			Debt:           debt,
			ChainAvailable: available,
			SweepAmount:    math.MinInt(debt, available),
		})
	}
	return candidates, nil
}

// Run sweeps up to maxUsers debtors. A second concurrent caller gets
// ErrSweepInProgress immediately rather than queuing.
func (s *Sweeper) Run(ctx context.Context, maxUsers int) (*Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSweepInProgress
	}
	defer s.running.Store(false)

	if maxUsers <= 0 {
		maxUsers = config.AppConfig.SweepMaxUsers
	}
	debtors, err := s.ledger.ListDebtors(maxUsers)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, row := range debtors {
		debt, ok := math.NewIntFromString(row.OffchainSpent)
		if !ok {
			log.Errorf("Sweep: invalid offchain_spent %q for user %s", row.OffchainSpent, row.UserID)
			continue
		}
		outcome, err := s.sweepOne(ctx, row.UserID, row.Address, debt)
		if err != nil {
			log.Errorf("Sweep failed for user %s: %v", row.UserID, err)
			summary.Failed++
			continue
		}
		summary.Results = append(summary.Results, *outcome)
		switch outcome.Status {
		case StatusSwept:
			summary.Swept++
		case StatusSkipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}

	log.Infof("Sweep run finished: %d swept, %d skipped, %d failed", summary.Swept, summary.Skipped, summary.Failed)
	return summary, nil
}

// Single sweeps one user on demand, honoring the same single-flight rule
// as Run.
func (s *Sweeper) Single(ctx context.Context, userID, address string, debt math.Int) (*Outcome, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSweepInProgress
	}
	defer s.running.Store(false)
	return s.sweepOne(ctx, userID, address, debt)
}

func (s *Sweeper) sweepOne(ctx context.Context, userID, address string, debt math.Int) (*Outcome, error) {
	// Zero debt never touches the chain.
	if !debt.IsPositive() {
		return &Outcome{UserID: userID, Address: address, Amount: math.ZeroInt(), Status: StatusSkipped}, nil
	}

	chainAvailable, _, err := s.balances.QueryVaultBalance(ctx, address)
	if err != nil {
		return nil, err
	}
	amount := math.MinInt(debt, chainAvailable)
	if !amount.IsPositive() {
		return &Outcome{UserID: userID, Address: address, Amount: math.ZeroInt(), Status: StatusSkipped}, nil
	}

	outcome := &Outcome{UserID: userID, Address: address, Amount: amount}

	withdrawRes, err := s.relayer.Submit(ctx, address, relay.Withdraw{Amount: amount}, "treasury sweep: vault withdraw")
	if err != nil || !withdrawRes.Success {
		outcome.Status = StatusWithdrawFailed
		if err != nil {
			outcome.Detail = err.Error()
		} else {
			outcome.WithdrawTxHash = withdrawRes.TxHash
			outcome.Detail = withdrawRes.RawLog
		}
		s.record(outcome)
		return outcome, nil
	}
	outcome.WithdrawTxHash = withdrawRes.TxHash

	transferRes, err := s.relayer.Submit(ctx, address, relay.TokenTransfer{
		Recipient: config.AppConfig.TreasuryAddress,
		Amount:    amount,
	}, "treasury sweep: transfer")
	if err != nil || !transferRes.Success {
		if err != nil {
			outcome.Detail = err.Error()
		} else {
			outcome.TransferTxHash = transferRes.TxHash
			outcome.Detail = transferRes.RawLog
		}
		s.compensate(ctx, outcome, address, amount)
		s.record(outcome)
		return outcome, nil
	}
	outcome.TransferTxHash = transferRes.TxHash

	if _, err := s.ledger.CreditAvailable(userID, amount); err != nil {
		// Funds moved; the debt counter is now stale until the next
		// reconciliation. Surface loudly but keep the audit entry.
		log.Errorf("Sweep: failed to pay down debt for user %s after transfer: %v", userID, err)
	}

	outcome.Status = StatusSwept
	s.record(outcome)
	s.notifier.Emit(state.SweepCompleted, outcome)
	return outcome, nil
}

// compensate re-deposits the withdrawn amount after a failed transfer.
// Best effort, attempted exactly once; a double failure is left for manual
// reconciliation.
func (s *Sweeper) compensate(ctx context.Context, outcome *Outcome, address string, amount math.Int) {
	res, err := s.relayer.Submit(ctx, address, relay.Deposit{Amount: amount}, "treasury sweep: compensating deposit")
	if err != nil || !res.Success {
		outcome.Status = StatusCompensateFailed
		if err != nil {
			outcome.Detail += "; compensate: " + err.Error()
		} else {
			outcome.Detail += "; compensate: " + res.RawLog
		}
		log.Errorf("Sweep compensation failed for %s, amount %s left in wallet: %s", address, amount, outcome.Detail)
		return
	}
	outcome.Status = StatusCompensated
	log.Warnf("Sweep transfer failed for %s, withdrawn %s re-deposited", address, amount)
}

func (s *Sweeper) record(outcome *Outcome) {
	entry := db.SweepEntry{
		Uid:            uuid.New().String(),
		UserID:         outcome.UserID,
		Address:        outcome.Address,
		Amount:         outcome.Amount.String(),
		WithdrawTxHash: outcome.WithdrawTxHash,
		TransferTxHash: outcome.TransferTxHash,
		Status:         outcome.Status,
		Detail:         outcome.Detail,
		CreatedAt:      time.Now(),
	}
	if err := s.ledgerDb.Create(&entry).Error; err != nil {
		log.Errorf("Failed to record sweep entry for user %s: %v", outcome.UserID, err)
	}
}

// Start runs periodic sweeps until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	if !config.AppConfig.SweepEnabled {
		log.Info("Periodic sweep disabled")
		return
	}
	ticker := time.NewTicker(config.AppConfig.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx, config.AppConfig.SweepMaxUsers); err != nil && !errors.Is(err, ErrSweepInProgress) {
				log.Errorf("Periodic sweep failed: %v", err)
			}
		}
	}
}
