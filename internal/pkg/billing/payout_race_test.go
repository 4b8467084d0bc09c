package billing

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/database"
)

// nopLocker grants every key immediately, leaving LockCreator as the only
// thing serializing payout requests.
type nopLocker struct{}

func (nopLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

// racePayouts fires n concurrent 8000 requests against a 10000 balance.
func racePayouts(t *testing.T, f *ledgerFixture, n int) {
	t.Helper()
	f.seedEarnings(t, 10000, 0)
	method := f.payoutMethod(t)

	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.RequestPayout(context.Background(), PayoutRequest{CreatorID: f.creator.ID, Amount: 8000, PayoutMethodID: method.ID})
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperror.IsConflict(err, apperror.ReasonInsufficientBalance):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)

	var payouts int64
	require.NoError(t, f.db.Model(&models.Payout{}).Where("creator_id = ?", f.creator.ID).Count(&payouts).Error)
	assert.Equal(t, int64(1), payouts)

	balance, err := f.svc.ComputeBalance(context.Background(), f.creator.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), balance.AvailableBalance)
}

func TestConcurrentPayoutsWithoutProcessLock(t *testing.T) {
	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)
	racePayouts(t, newLedgerFixtureOn(t, db, WithLocker(nopLocker{})), 8)
}

// TestConcurrentPayoutsMySQLRowLock runs the race against a real MySQL so
// SELECT ... FOR UPDATE on the creator row is what keeps the balance whole.
// The database named by CREATORVAULT_TEST_MYSQL_DSN is wiped.
func TestConcurrentPayoutsMySQLRowLock(t *testing.T) {
	dsn := os.Getenv("CREATORVAULT_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("CREATORVAULT_TEST_MYSQL_DSN not set")
	}
	db, err := database.OpenMySQL(dsn)
	if err != nil {
		t.Skipf("mysql not available: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	if err := sqlDB.Ping(); err != nil {
		t.Skipf("mysql not available: %v", err)
	}
	sqlDB.SetMaxOpenConns(16)

	require.NoError(t, db.Migrator().DropTable(models.All()...))
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })

	racePayouts(t, newLedgerFixtureOn(t, db, WithLocker(nopLocker{})), 8)
}
