package ledger

import (
	"errors"
	"fmt"
	"time"

	"cosmossdk.io/math"
	"github.com/axiomenetwork/coinflip-relayer/internal/db"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrContention is returned when a guarded update keeps losing the
// compare-and-set race against concurrent writers.
var ErrContention = errors.New("ledger: balance row contention")

const casRetries = 5

// VaultLedger is the local view of user funds, reconciled against but not
// blindly overwritten by chain state. Mutations are value-guarded
// conditional updates: the UPDATE only applies if the row still carries
// the values the decision was made on, so concurrent calls against the
// same user serialize at the database without blocking other users.
//
// Guard failures (insufficient funds) return (nil, nil), not an error.
type VaultLedger struct {
	db *gorm.DB
}

func NewVaultLedger(dbm *db.DatabaseManager) *VaultLedger {
	return &VaultLedger{db: dbm.GetLedgerDB()}
}

type amounts struct {
	available     math.Int
	locked        math.Int
	bonus         math.Int
	offchainSpent math.Int
}

func parseAmounts(row *db.VaultBalance) (amounts, error) {
	var a amounts
	var ok bool
	if a.available, ok = math.NewIntFromString(row.Available); !ok {
		return a, fmt.Errorf("invalid available %q for user %s", row.Available, row.UserID)
	}
	if a.locked, ok = math.NewIntFromString(row.Locked); !ok {
		return a, fmt.Errorf("invalid locked %q for user %s", row.Locked, row.UserID)
	}
	if a.bonus, ok = math.NewIntFromString(row.Bonus); !ok {
		return a, fmt.Errorf("invalid bonus %q for user %s", row.Bonus, row.UserID)
	}
	if a.offchainSpent, ok = math.NewIntFromString(row.OffchainSpent); !ok {
		return a, fmt.Errorf("invalid offchain_spent %q for user %s", row.OffchainSpent, row.UserID)
	}
	return a, nil
}

// casUpdate reads the row, lets apply decide the new values from the
// current ones, and writes them back guarded on the exact prior values.
// apply returning false is a guard failure. A lost race reloads and
// retries.
func (l *VaultLedger) casUpdate(userID string, apply func(cur amounts) (map[string]interface{}, bool)) (*db.VaultBalance, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		var row db.VaultBalance
		err := l.db.Where("user_id = ?", userID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		cur, err := parseAmounts(&row)
		if err != nil {
			return nil, err
		}
		updates, ok := apply(cur)
		if !ok {
			return nil, nil
		}
		updates["updated_at"] = time.Now()

		res := l.db.Model(&db.VaultBalance{}).
			Where("user_id = ? AND available = ? AND locked = ? AND bonus = ? AND offchain_spent = ?",
				userID, row.Available, row.Locked, row.Bonus, row.OffchainSpent).
			Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			var updated db.VaultBalance
			if err := l.db.Where("user_id = ?", userID).First(&updated).Error; err != nil {
				return nil, err
			}
			return &updated, nil
		}
		log.Debugf("Ledger CAS lost for user %s, retrying (%d)", userID, attempt+1)
	}
	return nil, ErrContention
}

// EnsureAccount creates the balance row for a user if it does not exist.
func (l *VaultLedger) EnsureAccount(userID, address string) (*db.VaultBalance, error) {
	row := db.VaultBalance{
		UserID:        userID,
		Address:       address,
		Available:     "0",
		Locked:        "0",
		Bonus:         "0",
		OffchainSpent: "0",
		UpdatedAt:     time.Now(),
	}
	if err := l.db.Where("user_id = ?", userID).FirstOrCreate(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// LockFunds moves amount from available to locked. Succeeds only if the
// effective available balance (available - offchainSpent) covers it.
func (l *VaultLedger) LockFunds(userID string, amount math.Int) (*db.VaultBalance, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("lock amount must be positive, got %s", amount)
	}
	return l.casUpdate(userID, func(cur amounts) (map[string]interface{}, bool) {
		if cur.available.Sub(cur.offchainSpent).LT(amount) {
			return nil, false
		}
		return map[string]interface{}{
			"available": cur.available.Sub(amount).String(),
			"locked":    cur.locked.Add(amount).String(),
		}, true
	})
}

// UnlockFunds reverses a lock, e.g. when a wager is canceled.
func (l *VaultLedger) UnlockFunds(userID string, amount math.Int) (*db.VaultBalance, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("unlock amount must be positive, got %s", amount)
	}
	return l.casUpdate(userID, func(cur amounts) (map[string]interface{}, bool) {
		if cur.locked.LT(amount) {
			return nil, false
		}
		return map[string]interface{}{
			"available": cur.available.Add(amount).String(),
			"locked":    cur.locked.Sub(amount).String(),
		}, true
	})
}

// ForfeitLocked settles a resolved wager's losing side: the locked stake
// leaves the ledger entirely. The winner's available balance arrives later
// through the chain sync, never through this call.
func (l *VaultLedger) ForfeitLocked(userID string, amount math.Int) (*db.VaultBalance, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("forfeit amount must be positive, got %s", amount)
	}
	return l.casUpdate(userID, func(cur amounts) (map[string]interface{}, bool) {
		if cur.locked.LT(amount) {
			return nil, false
		}
		return map[string]interface{}{
			"locked": cur.locked.Sub(amount).String(),
		}, true
	})
}

// DeductBalance records a purely off-chain purchase. It increments
// offchainSpent instead of decrementing available: available is
// periodically overwritten wholesale by chain syncs, so a direct decrement
// would be silently undone.
func (l *VaultLedger) DeductBalance(userID string, amount math.Int) (*db.VaultBalance, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("deduct amount must be positive, got %s", amount)
	}
	return l.casUpdate(userID, func(cur amounts) (map[string]interface{}, bool) {
		if cur.available.Add(cur.bonus).Sub(cur.offchainSpent).LT(amount) {
			return nil, false
		}
		return map[string]interface{}{
			"offchain_spent": cur.offchainSpent.Add(amount).String(),
		}, true
	})
}

// CreditAvailable is the refund path: it pays debt down, floored at zero.
func (l *VaultLedger) CreditAvailable(userID string, amount math.Int) (*db.VaultBalance, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("credit amount must be positive, got %s", amount)
	}
	return l.casUpdate(userID, func(cur amounts) (map[string]interface{}, bool) {
		next := cur.offchainSpent.Sub(amount)
		if next.IsNegative() {
			next = math.ZeroInt()
		}
		return map[string]interface{}{
			"offchain_spent": next.String(),
		}, true
	})
}

// CreditWinner adds an off-chain prize to bonus. Bonus is local-only and
// never touched by chain syncs.
func (l *VaultLedger) CreditWinner(userID string, amount math.Int) (*db.VaultBalance, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("credit amount must be positive, got %s", amount)
	}
	return l.casUpdate(userID, func(cur amounts) (map[string]interface{}, bool) {
		return map[string]interface{}{
			"bonus": cur.bonus.Add(amount).String(),
		}, true
	})
}

// SyncFromChain overwrites available/locked from a chain query. A live
// query (height 0) always wins because the caller is blocking on the
// current moment; it leaves sourceHeight untouched. A background query
// carries its block height and applies only if strictly newer than the
// recorded sourceHeight, so an out-of-order update cannot clobber a more
// recent one. Bonus and offchainSpent are never written here.
//
// Note: a live query against a lagging read replica can itself be stale
// and will still overwrite; callers routing through replicas should prefer
// height-tagged syncs.
func (l *VaultLedger) SyncFromChain(userID, address string, available, locked math.Int, height uint64) (*db.VaultBalance, error) {
	if _, err := l.EnsureAccount(userID, address); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"available":  available.String(),
		"locked":     locked.String(),
		"updated_at": time.Now(),
	}

	tx := l.db.Model(&db.VaultBalance{})
	if height == 0 {
		tx = tx.Where("user_id = ?", userID)
	} else {
		updates["source_height"] = height
		tx = tx.Where("user_id = ? AND source_height < ?", userID, height)
	}
	res := tx.Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if height > 0 && res.RowsAffected == 0 {
		log.Debugf("Stale sync for user %s at height %d ignored", userID, height)
	}

	var row db.VaultBalance
	if err := l.db.Where("user_id = ?", userID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// Get returns the raw balance row, or (nil, nil) if the user has none.
func (l *VaultLedger) Get(userID string) (*db.VaultBalance, error) {
	var row db.VaultBalance
	err := l.db.Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// View is the caller-facing balance: stored fields plus the effective
// amounts after off-chain debt.
type View struct {
	UserID             string   `json:"user_id"`
	Address            string   `json:"address"`
	Available          math.Int `json:"available"`
	Locked             math.Int `json:"locked"`
	Bonus              math.Int `json:"bonus"`
	OffchainSpent      math.Int `json:"offchain_spent"`
	EffectiveAvailable math.Int `json:"effective_available"`
	EffectiveBonus     math.Int `json:"effective_bonus"`
	Total              math.Int `json:"total"`
}

// ViewOf computes the effective balance view. Debt beyond available draws
// down bonus; both effective figures floor at zero.
func (l *VaultLedger) ViewOf(userID string) (*View, error) {
	row, err := l.Get(userID)
	if err != nil || row == nil {
		return nil, err
	}
	cur, err := parseAmounts(row)
	if err != nil {
		return nil, err
	}

	effAvailable := cur.available.Sub(cur.offchainSpent)
	if effAvailable.IsNegative() {
		effAvailable = math.ZeroInt()
	}
	excessDebt := cur.offchainSpent.Sub(cur.available)
	effBonus := cur.bonus
	if excessDebt.IsPositive() {
		effBonus = effBonus.Sub(excessDebt)
		if effBonus.IsNegative() {
			effBonus = math.ZeroInt()
		}
	}

	return &View{
		UserID:             row.UserID,
		Address:            row.Address,
		Available:          cur.available,
		Locked:             cur.locked,
		Bonus:              cur.bonus,
		OffchainSpent:      cur.offchainSpent,
		EffectiveAvailable: effAvailable,
		EffectiveBonus:     effBonus,
		Total:              effAvailable.Add(cur.locked).Add(effBonus),
	}, nil
}

// ListDebtors returns users carrying off-chain debt, oldest update first.
func (l *VaultLedger) ListDebtors(limit int) ([]db.VaultBalance, error) {
	var rows []db.VaultBalance
	q := l.db.Where("offchain_spent <> ?", "0").Order("updated_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
