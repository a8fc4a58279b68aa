package chain

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAccountQuerier struct {
	mu            sync.Mutex
	accountNumber uint64
	sequence      uint64
	err           error
	calls         int
}

func (s *stubAccountQuerier) QueryAccount(_ context.Context, _ string) (uint64, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return 0, 0, s.err
	}
	return s.accountNumber, s.sequence, nil
}

func TestReserveSequencesAreContiguous(t *testing.T) {
	querier := &stubAccountQuerier{accountNumber: 7, sequence: 100}
	m := NewSequenceManager(querier, "axm1relayer")

	const n = 64
	results := make(chan uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			accountNumber, sequence, err := m.Reserve(context.Background())
			require.NoError(t, err)
			assert.Equal(t, uint64(7), accountNumber)
			results <- sequence
		}()
	}
	wg.Wait()
	close(results)

	var sequences []uint64
	for s := range results {
		sequences = append(sequences, s)
	}
	sort.Slice(sequences, func(i, j int) bool { return sequences[i] < sequences[j] })

	require.Len(t, sequences, n)
	for i, s := range sequences {
		assert.Equal(t, uint64(100+i), s, "sequences must be contiguous with no duplicates")
	}

	// Lazy init queries the chain exactly once.
	assert.Equal(t, 1, querier.calls)
}

func TestReservePropagatesRefreshError(t *testing.T) {
	querier := &stubAccountQuerier{err: errors.New("chain unreachable")}
	m := NewSequenceManager(querier, "axm1relayer")

	_, _, err := m.Reserve(context.Background())
	assert.Error(t, err)
}

func TestResyncResetsToChainValue(t *testing.T) {
	querier := &stubAccountQuerier{accountNumber: 1, sequence: 5}
	m := NewSequenceManager(querier, "axm1relayer")

	_, s1, err := m.Reserve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), s1)

	_, s2, err := m.Reserve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(6), s2)

	// The chain rejected something; authoritative value moved back.
	querier.mu.Lock()
	querier.sequence = 6
	querier.mu.Unlock()
	require.NoError(t, m.Resync(context.Background()))

	_, s3, err := m.Reserve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(6), s3)
}

func TestForceSet(t *testing.T) {
	querier := &stubAccountQuerier{accountNumber: 1, sequence: 5}
	m := NewSequenceManager(querier, "axm1relayer")

	m.ForceSet(42)
	_, s, err := m.Reserve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), s)
	// ForceSet marks the manager initialized; no chain call happened.
	assert.Equal(t, 0, querier.calls)
}
