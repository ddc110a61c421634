package services

import (
	"context"
	"testing"

	"coin-rewards-ledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciler_RepairsHalfAppliedRequests(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.signup(t, "inviter", "")
	env.signup(t, "a", "inviter")
	env.fund(t, "a", 100000)

	w, err := env.withdrawals.Submit(ctx, Identity{UID: "a"}, WithdrawInput{AmountCoins: 50000, Method: "UPI", AccountDetails: "x"})
	require.NoError(t, err)
	d, err := env.deposits.Submit(ctx, Identity{UID: "a"}, DepositInput{TransactionID: "TX", AmountDeposited: 0.01})
	require.NoError(t, err)
	v, err := env.promotions.Submit(ctx, Identity{UID: "a"}, VideoPromotionInput{VideoLink: "https://youtu.be/1"})
	require.NoError(t, err)

	// transitions committed, process stopped before settlement
	now := env.clock.Now()
	path, _ := requestPath(withdrawRequestsCollection, w.ID)
	_, err = transition[models.WithdrawRequest](ctx, env.store, path, models.StatusApproved, "admin", now)
	require.NoError(t, err)
	path, _ = requestPath(depositRequestsCollection, d.ID)
	_, err = transition[models.DepositRequest](ctx, env.store, path, models.StatusApproved, "admin", now)
	require.NoError(t, err)
	path, _ = requestPath(videoPromotionsCollection, v.ID)
	_, err = transition[models.VideoPromotion](ctx, env.store, path, models.StatusAccepted, "admin", now)
	require.NoError(t, err)

	report, err := env.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Repaired: 3}, report)

	acct := env.account(t, "a")
	assert.Equal(t, int64(100000-50000+1000+25000), acct.Coins)
	assert.True(t, acct.FirstWithdrawalCompleted)
	assert.Equal(t, int64(2500), env.account(t, "inviter").Coins)
	assert.Equal(t, models.StatusAccepted, env.replica(t, "a", v.ID).Status)

	report, err = env.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{}, report)
	assert.Equal(t, int64(2500), env.account(t, "inviter").Coins)
}

func TestReconciler_LeavesPendingAlone(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.signup(t, "a", "")
	env.fund(t, "a", 100)
	_, err := env.withdrawals.Submit(ctx, Identity{UID: "a"}, WithdrawInput{AmountCoins: 50, Method: "UPI", AccountDetails: "x"})
	require.NoError(t, err)

	report, err := env.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Repaired)
	assert.Equal(t, int64(100), env.account(t, "a").Coins)
}
