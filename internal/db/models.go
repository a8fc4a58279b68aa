package db

import (
	"time"
)

// VaultBalance model, one row per user. Available/Locked mirror the chain
// vault; Bonus and OffchainSpent are local accounting and are never written
// by a chain sync.
type VaultBalance struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        string    `gorm:"not null;uniqueIndex" json:"user_id"`
	Address       string    `gorm:"not null;index" json:"address"`
	Available     string    `gorm:"not null;default:0" json:"available"`
	Locked        string    `gorm:"not null;default:0" json:"locked"`
	Bonus         string    `gorm:"not null;default:0" json:"bonus"`
	OffchainSpent string    `gorm:"not null;default:0" json:"offchain_spent"`
	SourceHeight  uint64    `gorm:"not null;default:0" json:"source_height"` // block height of the last applied background sync
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

// Bet model, mirrors the contract's bet records as reported by the
// confirmed event feed.
type Bet struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	BetID         uint64    `gorm:"not null;uniqueIndex" json:"bet_id"`
	Maker         string    `gorm:"not null;index" json:"maker"`
	Acceptor      string    `gorm:"index" json:"acceptor"`
	Amount        string    `gorm:"not null" json:"amount"`
	Commitment    string    `gorm:"not null;index" json:"commitment"` // canonical lowercase hex
	Secret        string    `json:"secret"`                           // filled from the pending secret store once the bet row exists
	AcceptorGuess string    `json:"acceptor_guess"`
	RevealSide    string    `json:"reveal_side"`
	Winner        string    `json:"winner"`
	PayoutAmount  string    `json:"payout_amount"`
	Status        string    `gorm:"not null" json:"status"` // "open", "accepted", "revealed", "canceled", "timeout"
	TxHash        string    `json:"tx_hash"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

// PendingSecret model, the write-ahead record for fairness secrets. Saved
// before the create-bet transaction is broadcast so a crash between
// broadcast and confirmation cannot lose the reveal material.
type PendingSecret struct {
	Commitment string    `gorm:"primaryKey" json:"commitment"` // canonical lowercase hex
	Side       string    `gorm:"not null" json:"side"`
	Secret     string    `gorm:"not null" json:"secret"`
	TxHash     string    `json:"tx_hash"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// SweepEntry model, the audit ledger for treasury sweeps.
type SweepEntry struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Uid            string    `gorm:"not null;uniqueIndex" json:"uid"`
	UserID         string    `gorm:"not null;index" json:"user_id"`
	Address        string    `gorm:"not null" json:"address"`
	Amount         string    `gorm:"not null" json:"amount"`
	WithdrawTxHash string    `json:"withdraw_tx_hash"`
	TransferTxHash string    `json:"transfer_tx_hash"`
	Status         string    `gorm:"not null" json:"status"` // "swept", "withdraw_failed", "transfer_failed", "compensated", "compensate_failed"
	Detail         string    `json:"detail"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
}

// Bet status values
const (
	BetStatusOpen     = "open"
	BetStatusAccepted = "accepted"
	BetStatusRevealed = "revealed"
	BetStatusCanceled = "canceled"
	BetStatusTimeout  = "timeout"
)
