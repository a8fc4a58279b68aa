package chain

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// AccountQuerier is the chain lookup the sequence manager needs. *Client
// satisfies it; tests substitute a stub.
type AccountQuerier interface {
	QueryAccount(ctx context.Context, address string) (accountNumber uint64, sequence uint64, err error)
}

// SequenceManager hands out unique (accountNumber, sequence) pairs for the
// relay signing account. Every transaction signed from that account must
// reserve through it: the chain rejects any tx whose sequence is not
// exactly the next expected value, so two concurrent signs with the same
// sequence both fail.
//
// The mutex is held only across reserve/refresh, never across a broadcast.
type SequenceManager struct {
	mu      sync.Mutex
	querier AccountQuerier
	address string

	accountNumber uint64
	sequence      uint64
	initialized   bool
}

func NewSequenceManager(querier AccountQuerier, address string) *SequenceManager {
	return &SequenceManager{
		querier: querier,
		address: address,
	}
}

// refresh re-synchronizes from the chain's authoritative value. Callers
// must hold the lock.
func (m *SequenceManager) refresh(ctx context.Context) error {
	accountNumber, sequence, err := m.querier.QueryAccount(ctx, m.address)
	if err != nil {
		return err
	}
	m.accountNumber = accountNumber
	m.sequence = sequence
	m.initialized = true
	log.Debugf("Sequence manager refreshed, account %d sequence %d", accountNumber, sequence)
	return nil
}

// Reserve returns the current (accountNumber, sequence) pair and advances
// the in-memory sequence. A refresh failure is fatal to the call: signing
// with a guessed sequence would corrupt every subsequent transaction from
// this account.
func (m *SequenceManager) Reserve(ctx context.Context) (uint64, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		if err := m.refresh(ctx); err != nil {
			return 0, 0, err
		}
	}
	accountNumber, sequence := m.accountNumber, m.sequence
	m.sequence++
	return accountNumber, sequence, nil
}

// Resync re-reads the account state from the chain. Called after the chain
// reports a sequence mismatch, or after a transport failure where the
// broadcast may have landed out of band.
func (m *SequenceManager) Resync(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refresh(ctx)
}

// ForceSet overrides the in-memory sequence without touching the chain.
func (m *SequenceManager) ForceSet(sequence uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequence = sequence
	m.initialized = true
}
