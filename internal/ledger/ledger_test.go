package ledger

import (
	"testing"

	"cosmossdk.io/math"
	"github.com/axiomenetwork/coinflip-relayer/internal/config"
	"github.com/axiomenetwork/coinflip-relayer/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) *VaultLedger {
	t.Helper()
	config.AppConfig.DbDir = t.TempDir()
	return NewVaultLedger(db.NewDatabaseManager())
}

func seed(t *testing.T, l *VaultLedger, userID string, available, locked, bonus, spent int64) {
	t.Helper()
	_, err := l.EnsureAccount(userID, userID)
	require.NoError(t, err)
	require.NoError(t, l.db.Model(&db.VaultBalance{}).Where("user_id = ?", userID).Updates(map[string]interface{}{
		"available":      math.NewInt(available).String(),
		"locked":         math.NewInt(locked).String(),
		"bonus":          math.NewInt(bonus).String(),
		"offchain_spent": math.NewInt(spent).String(),
	}).Error)
}

func TestLockUnlockForfeit(t *testing.T) {
	l := newTestLedger(t)
	seed(t, l, "user1", 1000, 0, 0, 0)

	row, err := l.LockFunds("user1", math.NewInt(300))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "700", row.Available)
	assert.Equal(t, "300", row.Locked)

	row, err = l.UnlockFunds("user1", math.NewInt(100))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "800", row.Available)
	assert.Equal(t, "200", row.Locked)

	row, err = l.ForfeitLocked("user1", math.NewInt(200))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "800", row.Available)
	assert.Equal(t, "0", row.Locked)
}

func TestLockGuardFailure(t *testing.T) {
	l := newTestLedger(t)
	seed(t, l, "user1", 100, 0, 0, 50)

	// Effective available is 50, guard must reject 100.
	row, err := l.LockFunds("user1", math.NewInt(100))
	require.NoError(t, err)
	assert.Nil(t, row)

	// Untouched
	cur, err := l.Get("user1")
	require.NoError(t, err)
	assert.Equal(t, "100", cur.Available)
	assert.Equal(t, "0", cur.Locked)
}

func TestUnlockGuardFailure(t *testing.T) {
	l := newTestLedger(t)
	seed(t, l, "user1", 0, 50, 0, 0)

	row, err := l.UnlockFunds("user1", math.NewInt(100))
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestUnknownUserIsGuardFailure(t *testing.T) {
	l := newTestLedger(t)

	row, err := l.LockFunds("ghost", math.NewInt(10))
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestDeductAndCredit(t *testing.T) {
	l := newTestLedger(t)
	seed(t, l, "user1", 100, 0, 50, 0)

	// available + bonus covers 120
	row, err := l.DeductBalance("user1", math.NewInt(120))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "120", row.OffchainSpent)
	assert.Equal(t, "100", row.Available) // never decremented directly

	// Only 30 left effective
	row, err = l.DeductBalance("user1", math.NewInt(31))
	require.NoError(t, err)
	assert.Nil(t, row)

	// Refund floors at zero
	row, err = l.CreditAvailable("user1", math.NewInt(500))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "0", row.OffchainSpent)
}

func TestCreditWinnerGoesToBonus(t *testing.T) {
	l := newTestLedger(t)
	seed(t, l, "user1", 0, 0, 0, 0)

	row, err := l.CreditWinner("user1", math.NewInt(75))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "75", row.Bonus)
	assert.Equal(t, "0", row.Available)
}

func TestSyncHeightGuard(t *testing.T) {
	l := newTestLedger(t)
	seed(t, l, "user1", 0, 0, 25, 10)

	row, err := l.SyncFromChain("user1", "user1", math.NewInt(500), math.NewInt(100), 100)
	require.NoError(t, err)
	assert.Equal(t, "500", row.Available)
	assert.Equal(t, uint64(100), row.SourceHeight)

	// Out-of-order background sync at a lower height is ignored.
	row, err = l.SyncFromChain("user1", "user1", math.NewInt(1), math.NewInt(1), 80)
	require.NoError(t, err)
	assert.Equal(t, "500", row.Available)
	assert.Equal(t, "100", row.Locked)
	assert.Equal(t, uint64(100), row.SourceHeight)

	// A live query (height 0) always overwrites.
	row, err = l.SyncFromChain("user1", "user1", math.NewInt(777), math.NewInt(0), 0)
	require.NoError(t, err)
	assert.Equal(t, "777", row.Available)
	assert.Equal(t, uint64(100), row.SourceHeight)

	// Local accounting survives every sync mode.
	assert.Equal(t, "25", row.Bonus)
	assert.Equal(t, "10", row.OffchainSpent)
}

func TestSyncCreatesMissingRow(t *testing.T) {
	l := newTestLedger(t)

	row, err := l.SyncFromChain("newuser", "axm1new", math.NewInt(42), math.NewInt(0), 5)
	require.NoError(t, err)
	assert.Equal(t, "42", row.Available)
	assert.Equal(t, "axm1new", row.Address)
}

// The spec's end-to-end balance scenario: lock, no-op sync, off-chain
// purchase, and a raw sync that leaves the effective view reduced.
func TestBalanceScenario(t *testing.T) {
	l := newTestLedger(t)
	seed(t, l, "user1", 1000, 0, 0, 0)

	row, err := l.LockFunds("user1", math.NewInt(300))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "700", row.Available)
	assert.Equal(t, "300", row.Locked)

	row, err = l.SyncFromChain("user1", "user1", math.NewInt(700), math.NewInt(300), 50)
	require.NoError(t, err)
	assert.Equal(t, "700", row.Available)
	assert.Equal(t, "300", row.Locked)

	row, err = l.DeductBalance("user1", math.NewInt(200))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "200", row.OffchainSpent)

	view, err := l.ViewOf("user1")
	require.NoError(t, err)
	assert.Equal(t, math.NewInt(500), view.EffectiveAvailable)

	// A later sync still reports the raw chain value; the effective view
	// stays reduced until swept.
	row, err = l.SyncFromChain("user1", "user1", math.NewInt(700), math.NewInt(300), 60)
	require.NoError(t, err)
	assert.Equal(t, "700", row.Available)

	view, err = l.ViewOf("user1")
	require.NoError(t, err)
	assert.Equal(t, math.NewInt(500), view.EffectiveAvailable)
}

func TestEffectiveBonusDrawdown(t *testing.T) {
	l := newTestLedger(t)
	seed(t, l, "user1", 100, 0, 80, 150)

	view, err := l.ViewOf("user1")
	require.NoError(t, err)
	assert.Equal(t, math.NewInt(0), view.EffectiveAvailable)
	// Debt beyond available (50) draws down bonus.
	assert.Equal(t, math.NewInt(30), view.EffectiveBonus)
	assert.Equal(t, math.NewInt(30), view.Total)
}

// Conservation: available + locked never exceeds the starting total and
// never goes negative across any mix of lock/unlock/forfeit.
func TestConservation(t *testing.T) {
	l := newTestLedger(t)
	seed(t, l, "user1", 1000, 0, 0, 0)

	ops := []struct {
		op     string
		amount int64
	}{
		{"lock", 400}, {"unlock", 100}, {"lock", 700},
		{"forfeit", 300}, {"unlock", 600},
		{"lock", 500}, {"forfeit", 500},
	}
	for _, op := range ops {
		var err error
		switch op.op {
		case "lock":
			_, err = l.LockFunds("user1", math.NewInt(op.amount))
		case "unlock":
			_, err = l.UnlockFunds("user1", math.NewInt(op.amount))
		case "forfeit":
			_, err = l.ForfeitLocked("user1", math.NewInt(op.amount))
		}
		require.NoError(t, err)

		row, err := l.Get("user1")
		require.NoError(t, err)
		available, ok := math.NewIntFromString(row.Available)
		require.True(t, ok)
		locked, ok := math.NewIntFromString(row.Locked)
		require.True(t, ok)
		assert.False(t, available.IsNegative())
		assert.False(t, locked.IsNegative())
		assert.True(t, available.Add(locked).LTE(math.NewInt(1000)))
	}
}

func TestListDebtors(t *testing.T) {
	l := newTestLedger(t)
	seed(t, l, "clean", 100, 0, 0, 0)
	seed(t, l, "debtor1", 100, 0, 0, 10)
	seed(t, l, "debtor2", 100, 0, 0, 20)

	rows, err := l.ListDebtors(0)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rows, err = l.ListDebtors(1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
