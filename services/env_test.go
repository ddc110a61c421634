package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"coin-rewards-ledger/config"
	"coin-rewards-ledger/logger"
	"coin-rewards-ledger/metrics"
	"coin-rewards-ledger/models"
	"coin-rewards-ledger/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	store       *store.MemoryStore
	clock       *fakeClock
	metrics     *metrics.Metrics
	settings    *SettingsService
	ledger      *LedgerService
	referrals   *ReferralService
	accounts    *AccountService
	challenges  *ChallengeService
	withdrawals *WithdrawService
	deposits    *DepositService
	promotions  *VideoPromotionService
	reconciler  *Reconciler
}

func testConfig() *config.Config {
	return &config.Config{
		DailyAdViewLimit:            500,
		CoinToUSDRate:               0.00001,
		ReferralCommissionPercent:   5,
		AdWatchRewardCoins:          10,
		WhatsappRewardCoins:         20,
		YoutubeSubscribeRewardCoins: 20,
		YoutubePromotionRewardCoins: 25000,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.Discard()
	m := metrics.New(prometheus.NewRegistry())
	st := store.NewMemoryStore(store.Options{MaxRetries: 100000})
	clock := &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}

	settings := NewSettingsService(st, DefaultSettings(testConfig()), log)
	ledger := NewLedgerService(st, settings, m, log)
	referrals := NewReferralService(st, ledger, m, log)
	accounts := NewAccountService(st, referrals, log)
	challenges, err := NewChallengeService(accounts, ledger, log)
	require.NoError(t, err)
	withdrawals := NewWithdrawService(st, accounts, ledger, referrals, settings, m, log)
	deposits := NewDepositService(st, accounts, ledger, settings, nil, m, log)
	promotions := NewVideoPromotionService(st, accounts, ledger, settings, m, log)

	settings.Now = clock.Now
	ledger.Now = clock.Now
	referrals.Now = clock.Now
	accounts.Now = clock.Now
	withdrawals.Now = clock.Now
	deposits.Now = clock.Now
	promotions.Now = clock.Now

	return &testEnv{
		store:       st,
		clock:       clock,
		metrics:     m,
		settings:    settings,
		ledger:      ledger,
		referrals:   referrals,
		accounts:    accounts,
		challenges:  challenges,
		withdrawals: withdrawals,
		deposits:    deposits,
		promotions:  promotions,
		reconciler:  NewReconciler(st, withdrawals, deposits, promotions, m, log),
	}
}

func (e *testEnv) signup(t *testing.T, uid, referralCode string) *models.Account {
	t.Helper()
	acct, _, err := e.accounts.CreateAccount(context.Background(), Identity{UID: uid, Email: uid + "@example.com"}, referralCode)
	require.NoError(t, err)
	return acct
}

func (e *testEnv) fund(t *testing.T, uid string, coins int64) {
	t.Helper()
	_, err := e.ledger.AdminSetCoins(context.Background(), uid, coins)
	require.NoError(t, err)
}

func (e *testEnv) account(t *testing.T, uid string) *models.Account {
	t.Helper()
	acct, err := e.accounts.GetAccount(context.Background(), uid)
	require.NoError(t, err)
	return acct
}

func (e *testEnv) referral(t *testing.T, inviter, referred string) models.Referral {
	t.Helper()
	path, err := referralPath(inviter, referred)
	require.NoError(t, err)
	var r models.Referral
	ok, err := e.store.Get(context.Background(), path, &r)
	require.NoError(t, err)
	require.True(t, ok)
	return r
}

func (e *testEnv) setLimit(t *testing.T, limit int64) {
	t.Helper()
	_, err := e.settings.UpdateRewards(context.Background(), RewardsInput{DailyAdViewLimit: &limit})
	require.NoError(t, err)
}
