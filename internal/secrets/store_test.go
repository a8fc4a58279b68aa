package secrets

import (
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/axiomenetwork/coinflip-relayer/internal/config"
	"github.com/axiomenetwork/coinflip-relayer/internal/db"
	"github.com/axiomenetwork/coinflip-relayer/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	config.AppConfig.DbDir = t.TempDir()
	return NewStore(db.NewDatabaseManager())
}

func commitmentOf(t *testing.T, address string, side protocol.Side, secret string) string {
	t.Helper()
	c, err := protocol.ComputeCommitment(address, side, secret)
	require.NoError(t, err)
	return c
}

func TestSaveIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	secret := strings.Repeat("ab", 32)
	commitment := commitmentOf(t, "axm1maker", protocol.SideHeads, secret)

	require.NoError(t, s.Save(commitment, protocol.SideHeads, secret))
	require.NoError(t, s.Save(commitment, protocol.SideHeads, secret))

	var count int64
	require.NoError(t, s.secretDb.Model(&db.PendingSecret{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	record, err := s.GetByCommitment(commitment)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, secret, record.Secret)
	assert.Equal(t, string(protocol.SideHeads), record.Side)
}

func TestGetByCommitmentNormalizesBase64(t *testing.T) {
	s := newTestStore(t)
	secret := strings.Repeat("cd", 32)
	commitment := commitmentOf(t, "axm1maker", protocol.SideTails, secret)
	require.NoError(t, s.Save(commitment, protocol.SideTails, secret))

	raw, err := hex.DecodeString(commitment)
	require.NoError(t, err)
	record, err := s.GetByCommitment(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, secret, record.Secret)
}

func TestGetByCommitmentMissing(t *testing.T) {
	s := newTestStore(t)

	record, err := s.GetByCommitment(strings.Repeat("00", 32))
	require.NoError(t, err)
	assert.Nil(t, record)

	_, err = s.GetByCommitment("garbage")
	assert.Error(t, err)
}

func TestSetTxHashAndDelete(t *testing.T) {
	s := newTestStore(t)
	secret := strings.Repeat("ef", 32)
	commitment := commitmentOf(t, "axm1maker", protocol.SideHeads, secret)
	require.NoError(t, s.Save(commitment, protocol.SideHeads, secret))

	s.SetTxHash(commitment, "ABC123")
	record, err := s.GetByCommitment(commitment)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "ABC123", record.TxHash)

	require.NoError(t, s.Delete(commitment))
	record, err = s.GetByCommitment(commitment)
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestCleanupKeepsReferencedSecrets(t *testing.T) {
	s := newTestStore(t)

	stale := commitmentOf(t, "axm1stale", protocol.SideHeads, strings.Repeat("11", 32))
	live := commitmentOf(t, "axm1live", protocol.SideTails, strings.Repeat("22", 32))
	fresh := commitmentOf(t, "axm1fresh", protocol.SideHeads, strings.Repeat("33", 32))

	require.NoError(t, s.Save(stale, protocol.SideHeads, strings.Repeat("11", 32)))
	require.NoError(t, s.Save(live, protocol.SideTails, strings.Repeat("22", 32)))
	require.NoError(t, s.Save(fresh, protocol.SideHeads, strings.Repeat("33", 32)))

	// Age the first two past the cutoff.
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.secretDb.Model(&db.PendingSecret{}).
		Where("commitment IN ?", []string{stale, live}).
		Update("created_at", old).Error)

	// An open bet still missing its secret references the "live" one.
	require.NoError(t, s.ledgerDb.Create(&db.Bet{
		BetID:      1,
		Maker:      "axm1live",
		Amount:     "100",
		Commitment: live,
		Status:     db.BetStatusOpen,
	}).Error)

	removed, err := s.Cleanup(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	record, err := s.GetByCommitment(stale)
	require.NoError(t, err)
	assert.Nil(t, record)

	record, err = s.GetByCommitment(live)
	require.NoError(t, err)
	assert.NotNil(t, record)

	record, err = s.GetByCommitment(fresh)
	require.NoError(t, err)
	assert.NotNil(t, record)
}

func TestCleanupDeletesSettledBetSecrets(t *testing.T) {
	s := newTestStore(t)

	settled := commitmentOf(t, "axm1done", protocol.SideHeads, strings.Repeat("44", 32))
	require.NoError(t, s.Save(settled, protocol.SideHeads, strings.Repeat("44", 32)))
	require.NoError(t, s.secretDb.Model(&db.PendingSecret{}).
		Where("commitment = ?", settled).
		Update("created_at", time.Now().Add(-48*time.Hour)).Error)

	// The bet already carries its secret; the pending copy is redundant.
	require.NoError(t, s.ledgerDb.Create(&db.Bet{
		BetID:      2,
		Maker:      "axm1done",
		Amount:     "100",
		Commitment: settled,
		Secret:     strings.Repeat("44", 32),
		Status:     db.BetStatusRevealed,
	}).Error)

	removed, err := s.Cleanup(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
