package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"coin-rewards-ledger/models"
	"coin-rewards-ledger/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccounts_SignupWithReferral(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.signup(t, "inviter", "")

	acct, created, err := env.accounts.CreateAccount(ctx, Identity{UID: "friend", Email: "friend@example.com"}, "inviter")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "inviter", acct.ReferredBy)
	assert.Equal(t, int64(0), acct.Coins)

	ref := env.referral(t, "inviter", "friend")
	assert.Equal(t, models.ReferralPending, ref.Status)
	assert.Equal(t, "friend@example.com", ref.Email)
	assert.False(t, ref.FirstWithdrawalApproved)
	assert.Equal(t, int64(1), env.account(t, "inviter").TotalInvites)

	t.Run("Repeated signup changes nothing", func(t *testing.T) {
		again, created, err := env.accounts.CreateAccount(ctx, Identity{UID: "friend", Email: "other@example.com"}, "someone-else")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "inviter", again.ReferredBy)
		assert.Equal(t, "friend@example.com", again.Email)
		assert.Equal(t, int64(1), env.account(t, "inviter").TotalInvites)
	})

	t.Run("Unknown and self referral codes are ignored", func(t *testing.T) {
		a, _, err := env.accounts.CreateAccount(ctx, Identity{UID: "loner"}, "nobody")
		require.NoError(t, err)
		assert.Empty(t, a.ReferredBy)

		b, _, err := env.accounts.CreateAccount(ctx, Identity{UID: "narcissus"}, "narcissus")
		require.NoError(t, err)
		assert.Empty(t, b.ReferredBy)
	})

	refs, err := env.referrals.ListReferrals(ctx, "inviter")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "friend", refs[0].ReferredUID)
}

func TestAccounts_SignupFinishesInterruptedLink(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.signup(t, "inviter", "")

	// account written with a referrer but the referral record never created
	acct := models.NewAccount("friend", "friend@example.com", env.clock.Now())
	acct.ReferredBy = "inviter"
	require.NoError(t, env.store.Set(ctx, "users/friend", acct))

	_, created, err := env.accounts.CreateAccount(ctx, Identity{UID: "friend"}, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, models.ReferralPending, env.referral(t, "inviter", "friend").Status)
	assert.Equal(t, int64(1), env.account(t, "inviter").TotalInvites)
}

func TestReferrals_VerifyAndUnverify(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.signup(t, "inviter", "")
	env.signup(t, "a", "inviter")
	env.signup(t, "b", "inviter")

	counters := func() (int64, int64) {
		acct := env.account(t, "inviter")
		return acct.VerifiedInvitesCount, acct.Challenge(models.ChallengeVerifiedInvites).Count
	}

	_, changed, err := env.referrals.Verify(ctx, "inviter", "a")
	require.NoError(t, err)
	assert.True(t, changed)
	_, changed, err = env.referrals.Verify(ctx, "inviter", "a")
	require.NoError(t, err)
	assert.False(t, changed, "verifying twice must not count twice")

	acct, changed, err := env.referrals.Verify(ctx, "inviter", "b")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(2), acct.VerifiedInvitesCount)

	verified, challenge := counters()
	assert.Equal(t, int64(2), verified)
	assert.Equal(t, verified, challenge)
	assert.Equal(t, models.ReferralVerified, env.referral(t, "inviter", "a").Status)

	_, changed, err = env.referrals.Unverify(ctx, "inviter", "a")
	require.NoError(t, err)
	assert.True(t, changed)
	_, changed, err = env.referrals.Unverify(ctx, "inviter", "a")
	require.NoError(t, err)
	assert.False(t, changed)

	verified, challenge = counters()
	assert.Equal(t, int64(1), verified)
	assert.Equal(t, verified, challenge)

	_, _, err = env.referrals.Verify(ctx, "inviter", "stranger")
	assert.ErrorIs(t, err, ErrReferralNotFound)
}

func TestReferrals_UnverifyClampsAtZero(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.signup(t, "inviter", "")
	env.signup(t, "a", "inviter")
	_, _, err := env.referrals.Verify(ctx, "inviter", "a")
	require.NoError(t, err)

	// hand-edited counter that no longer counts the verified referral
	inv := env.account(t, "inviter")
	inv.VerifiedInvitesCount = 0
	require.NoError(t, env.store.Set(ctx, "users/inviter", inv))

	acct, changed, err := env.referrals.Unverify(ctx, "inviter", "a")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(0), acct.VerifiedInvitesCount)
	assert.Equal(t, int64(0), acct.Challenge(models.ChallengeVerifiedInvites).Count)
	assert.Equal(t, models.ReferralPending, env.referral(t, "inviter", "a").Status)
}

// flakyStore fails the first n transactions on one path.
type flakyStore struct {
	store.Store
	path string

	mu       sync.Mutex
	failures int
}

func (f *flakyStore) Transact(ctx context.Context, path string, fn store.TxFunc) (bool, error) {
	f.mu.Lock()
	fail := path == f.path && f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return false, fmt.Errorf("%w: connection reset", store.ErrUnavailable)
	}
	return f.Store.Transact(ctx, path, fn)
}

func TestReferrals_VerifyConvergesAfterPartialFailure(t *testing.T) {
	for _, failing := range []string{"users/inviter", "users/inviter/referrals/a"} {
		t.Run(failing, func(t *testing.T) {
			ctx := context.Background()
			env := newTestEnv(t)
			env.signup(t, "inviter", "")
			env.signup(t, "a", "inviter")
			env.referrals.Store = &flakyStore{Store: env.store, path: failing, failures: 1}

			_, _, err := env.referrals.Verify(ctx, "inviter", "a")
			require.ErrorIs(t, err, store.ErrUnavailable)

			_, _, err = env.referrals.Verify(ctx, "inviter", "a")
			require.NoError(t, err)
			_, changed, err := env.referrals.Verify(ctx, "inviter", "a")
			require.NoError(t, err)
			assert.False(t, changed)

			acct := env.account(t, "inviter")
			assert.Equal(t, int64(1), acct.VerifiedInvitesCount)
			assert.Equal(t, int64(1), acct.Challenge(models.ChallengeVerifiedInvites).Count)
			assert.Equal(t, models.ReferralVerified, env.referral(t, "inviter", "a").Status)

			_, changed, err = env.referrals.Unverify(ctx, "inviter", "a")
			require.NoError(t, err)
			assert.True(t, changed)
			assert.Equal(t, int64(0), env.account(t, "inviter").VerifiedInvitesCount)
			assert.Equal(t, models.ReferralPending, env.referral(t, "inviter", "a").Status)
		})
	}
}

func TestAccounts_SignupClaimsAdWatchPlaceholder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.signup(t, "inviter", "")

	_, err := env.ledger.RecordAdWatch(ctx, "newbie", models.AdKindPTC, 10)
	require.NoError(t, err)
	assert.True(t, env.account(t, "newbie").Placeholder)

	acct, created, err := env.accounts.CreateAccount(ctx, Identity{UID: "newbie", Email: "newbie@example.com"}, "inviter")
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, acct.Placeholder)
	assert.Equal(t, "newbie@example.com", acct.Email)
	assert.Equal(t, "inviter", acct.ReferredBy)
	assert.Equal(t, int64(10), acct.Coins, "coins earned before signup are kept")
	assert.Equal(t, int64(1), acct.AdWatchesOn("2025-03-10"))

	assert.Equal(t, models.ReferralPending, env.referral(t, "inviter", "newbie").Status)
	assert.Equal(t, int64(1), env.account(t, "inviter").TotalInvites)

	again, created, err := env.accounts.CreateAccount(ctx, Identity{UID: "newbie", Email: "other@example.com"}, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "newbie@example.com", again.Email)
	assert.Equal(t, int64(1), env.account(t, "inviter").TotalInvites)
}

func TestReferrals_PayCommissionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.signup(t, "inviter", "")
	env.signup(t, "a", "inviter")

	req := &models.WithdrawRequest{
		RequestMeta: models.RequestMeta{ID: "w1", UserID: "a"},
		AmountCoins: 1999,
	}
	for i := 0; i < 2; i++ {
		commission, err := env.referrals.PayCommission(ctx, "inviter", req, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(99), commission)
	}
	assert.Equal(t, int64(99), env.account(t, "inviter").Coins)
	assert.True(t, env.referral(t, "inviter", "a").FirstWithdrawalApproved)
}
