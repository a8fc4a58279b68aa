package secrets

import (
	"context"
	"errors"
	"time"

	"github.com/axiomenetwork/coinflip-relayer/internal/config"
	"github.com/axiomenetwork/coinflip-relayer/internal/db"
	"github.com/axiomenetwork/coinflip-relayer/internal/protocol"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists fairness secrets before the create-bet transaction is
// broadcast. A crash between broadcast and confirmation would otherwise
// lose the only copy of the reveal material, permanently disabling
// fairness verification for that wager.
type Store struct {
	secretDb *gorm.DB
	ledgerDb *gorm.DB
}

func NewStore(dbm *db.DatabaseManager) *Store {
	return &Store{
		secretDb: dbm.GetSecretDB(),
		ledgerDb: dbm.GetLedgerDB(),
	}
}

// Save upserts the record keyed by commitment, making retries of the same
// creation attempt idempotent. Callers must treat a failure here as fatal
// to the create flow: broadcasting without a durable secret is not safe.
func (s *Store) Save(commitment string, side protocol.Side, secret string) error {
	canonical, err := protocol.NormalizeCommitment(commitment)
	if err != nil {
		return err
	}
	record := db.PendingSecret{
		Commitment: canonical,
		Side:       string(side),
		Secret:     secret,
		CreatedAt:  time.Now(),
	}
	return s.secretDb.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "commitment"}},
		DoUpdates: clause.AssignmentColumns([]string{"side", "secret"}),
	}).Create(&record).Error
}

// SetTxHash backfills the broadcast tx hash. Not load-bearing; failures
// are logged and swallowed.
func (s *Store) SetTxHash(commitment, txHash string) {
	canonical, err := protocol.NormalizeCommitment(commitment)
	if err != nil {
		log.Warnf("Failed to normalize commitment for tx hash backfill: %v", err)
		return
	}
	if err := s.secretDb.Model(&db.PendingSecret{}).
		Where("commitment = ?", canonical).
		Update("tx_hash", txHash).Error; err != nil {
		log.Warnf("Failed to backfill tx hash for commitment %s: %v", canonical, err)
	}
}

// GetByCommitment looks up a pending secret. The key is normalized first:
// the chain reports commitments base64 encoded while the store keys by
// lowercase hex.
func (s *Store) GetByCommitment(commitment string) (*db.PendingSecret, error) {
	canonical, err := protocol.NormalizeCommitment(commitment)
	if err != nil {
		return nil, err
	}
	var record db.PendingSecret
	err = s.secretDb.Where("commitment = ?", canonical).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Delete removes the record, typically once the owning bet row has
// persisted the secret directly.
func (s *Store) Delete(commitment string) error {
	canonical, err := protocol.NormalizeCommitment(commitment)
	if err != nil {
		return err
	}
	return s.secretDb.Where("commitment = ?", canonical).Delete(&db.PendingSecret{}).Error
}

// Cleanup deletes records older than maxAge, but never one whose
// commitment is still referenced by a bet row missing its secret: deleting
// those would permanently disable fairness verification for a wager still
// in flight.
func (s *Store) Cleanup(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)

	var referenced []string
	if err := s.ledgerDb.Model(&db.Bet{}).
		Where("(secret IS NULL OR secret = '') AND status IN ?", []string{db.BetStatusOpen, db.BetStatusAccepted}).
		Pluck("commitment", &referenced).Error; err != nil {
		return 0, err
	}

	q := s.secretDb.Where("created_at < ?", cutoff)
	if len(referenced) > 0 {
		q = q.Where("commitment NOT IN ?", referenced)
	}
	res := q.Delete(&db.PendingSecret{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Infof("Pending secret cleanup removed %d records older than %v", res.RowsAffected, maxAge)
	}
	return res.RowsAffected, nil
}

// Start runs the periodic cleanup loop until ctx is done.
func (s *Store) Start(ctx context.Context) {
	ticker := time.NewTicker(config.AppConfig.PendingSecretCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Cleanup(config.AppConfig.PendingSecretMaxAge); err != nil {
				log.Errorf("Pending secret cleanup failed: %v", err)
			}
		}
	}
}
