package services

import (
	"context"
	"testing"
	"time"

	"coin-rewards-ledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithdraw_ApprovalPaysFirstWithdrawalCommission(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.signup(t, "inviter", "")
	env.signup(t, "requester", "inviter")
	env.fund(t, "requester", 100000)

	req, err := env.withdrawals.Submit(ctx, Identity{UID: "requester", Email: "requester@example.com"}, WithdrawInput{
		AmountCoins:    50000,
		Method:         "easypaisa",
		AccountDetails: "03001234567",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, req.Status)
	assert.Equal(t, 0.5, req.AmountUSD)
	assert.Equal(t, "Easypaisa", req.Method)
	assert.Equal(t, int64(100000), env.account(t, "requester").Coins, "submission must not touch the balance")

	approved, err := env.withdrawals.Approve(ctx, req.ID, "admin1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)
	assert.True(t, approved.Settled)
	assert.Equal(t, "admin1", approved.ReviewedBy)

	requester := env.account(t, "requester")
	assert.Equal(t, int64(50000), requester.Coins)
	assert.True(t, requester.FirstWithdrawalCompleted)
	assert.Equal(t, req.ID, requester.FirstWithdrawalRequestID)

	assert.Equal(t, int64(2500), env.account(t, "inviter").Coins)
	ref := env.referral(t, "inviter", "requester")
	assert.True(t, ref.FirstWithdrawalApproved)
	assert.Equal(t, int64(2500), ref.CommissionPaid)

	t.Run("Approving again is rejected and pays nothing", func(t *testing.T) {
		_, err := env.withdrawals.Approve(ctx, req.ID, "admin1")
		assert.ErrorIs(t, err, ErrRequestFinalized)
		_, err = env.withdrawals.Reject(ctx, req.ID, "admin1")
		assert.ErrorIs(t, err, ErrRequestFinalized)
		assert.Equal(t, int64(2500), env.account(t, "inviter").Coins)
		assert.Equal(t, int64(50000), env.account(t, "requester").Coins)
	})

	t.Run("Re-running settlement is a no-op", func(t *testing.T) {
		stale := *approved
		stale.Settled = false
		_, err := env.withdrawals.Settle(ctx, &stale)
		require.NoError(t, err)
		assert.Equal(t, int64(2500), env.account(t, "inviter").Coins)
		assert.Equal(t, int64(50000), env.account(t, "requester").Coins)
	})

	t.Run("A later withdrawal pays no commission", func(t *testing.T) {
		second, err := env.withdrawals.Submit(ctx, Identity{UID: "requester"}, WithdrawInput{
			AmountCoins:    10000,
			Method:         "Bank Transfer",
			AccountDetails: "PK00 0000",
		})
		require.NoError(t, err)
		assert.Equal(t, "requester@example.com", second.UserEmail)

		_, err = env.withdrawals.Approve(ctx, second.ID, "admin1")
		require.NoError(t, err)
		assert.Equal(t, int64(40000), env.account(t, "requester").Coins)
		assert.Equal(t, int64(2500), env.account(t, "inviter").Coins)
	})
}

func TestWithdraw_Rejection(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.signup(t, "inviter", "")
	env.signup(t, "u1", "inviter")
	env.fund(t, "u1", 1000)

	req, err := env.withdrawals.Submit(ctx, Identity{UID: "u1"}, WithdrawInput{AmountCoins: 600, Method: "UPI", AccountDetails: "me@upi"})
	require.NoError(t, err)

	rejected, err := env.withdrawals.Reject(ctx, req.ID, "admin1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.True(t, rejected.Settled)

	acct := env.account(t, "u1")
	assert.Equal(t, int64(1000), acct.Coins)
	assert.False(t, acct.FirstWithdrawalCompleted)
	assert.Equal(t, int64(0), env.account(t, "inviter").Coins)

	stored, err := env.withdrawals.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, stored.Status)
}

func TestWithdraw_ApprovalDoesNotRevalidateBalance(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.signup(t, "u1", "")
	env.fund(t, "u1", 1000)

	req, err := env.withdrawals.Submit(ctx, Identity{UID: "u1"}, WithdrawInput{AmountCoins: 800, Method: "JazzCash", AccountDetails: "0300"})
	require.NoError(t, err)
	env.fund(t, "u1", 300)

	_, err = env.withdrawals.Approve(ctx, req.ID, "admin1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), env.account(t, "u1").Coins)
}

func TestWithdraw_SubmitValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.signup(t, "u1", "")
	env.fund(t, "u1", 500)
	id := Identity{UID: "u1"}

	cases := map[string]WithdrawInput{
		"zero amount":        {AmountCoins: 0, Method: "UPI", AccountDetails: "x"},
		"over balance":       {AmountCoins: 501, Method: "UPI", AccountDetails: "x"},
		"blank method":       {AmountCoins: 10, Method: " ", AccountDetails: "x"},
		"blank details":      {AmountCoins: 10, Method: "UPI", AccountDetails: "   "},
		"unsupported method": {AmountCoins: 10, Method: "Carrier Pigeon", AccountDetails: "x"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.withdrawals.Submit(ctx, id, in)
			assert.True(t, IsValidation(err), "got %v", err)
		})
	}

	list, err := env.withdrawals.List(ctx, RequestFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = env.withdrawals.Submit(ctx, Identity{UID: "ghost"}, WithdrawInput{AmountCoins: 10, Method: "UPI", AccountDetails: "x"})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestWithdraw_ListAndNotFound(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.signup(t, "u1", "")
	env.signup(t, "u2", "")
	env.fund(t, "u1", 1000)
	env.fund(t, "u2", 1000)

	first, err := env.withdrawals.Submit(ctx, Identity{UID: "u1"}, WithdrawInput{AmountCoins: 10, Method: "google pay", AccountDetails: "x"})
	require.NoError(t, err)
	assert.Equal(t, "Google Pay", first.Method)
	assert.Equal(t, "google-pay", first.MethodKey)

	env.clock.Advance(1)
	second, err := env.withdrawals.Submit(ctx, Identity{UID: "u2"}, WithdrawInput{AmountCoins: 10, Method: "UPI", AccountDetails: "x"})
	require.NoError(t, err)
	_, err = env.withdrawals.Reject(ctx, second.ID, "admin")
	require.NoError(t, err)

	all, err := env.withdrawals.List(ctx, RequestFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)

	pending, err := env.withdrawals.List(ctx, RequestFilter{Status: models.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)

	mine, err := env.withdrawals.List(ctx, RequestFilter{UserID: "u2"})
	require.NoError(t, err)
	require.Len(t, mine, 1)

	_, err = env.withdrawals.Approve(ctx, "missing", "admin")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestWithdraw_MissingInviterSkipsCommission(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.signup(t, "inviter", "")
	env.signup(t, "requester", "inviter")
	env.fund(t, "requester", 100000)
	require.NoError(t, env.store.Delete(ctx, "users/inviter"))

	req, err := env.withdrawals.Submit(ctx, Identity{UID: "requester"}, WithdrawInput{
		AmountCoins:    50000,
		Method:         "UPI",
		AccountDetails: "requester@upi",
	})
	require.NoError(t, err)

	approved, err := env.withdrawals.Approve(ctx, req.ID, "admin1")
	require.NoError(t, err)
	assert.True(t, approved.Settled)
	assert.Equal(t, int64(50000), env.account(t, "requester").Coins)

	_, err = env.accounts.GetAccount(ctx, "inviter")
	assert.ErrorIs(t, err, ErrAccountNotFound, "the inviter must not be recreated")

	report, err := env.reconciler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{}, report)
}

func TestWithdraw_ExpiredSettlementIsRefused(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.signup(t, "requester", "")
	env.fund(t, "requester", 100000)

	reviewed := env.clock.Now()
	req := &models.WithdrawRequest{
		RequestMeta: models.RequestMeta{
			ID:         "w-old",
			UserID:     "requester",
			Status:     models.StatusApproved,
			CreatedAt:  reviewed,
			ReviewedAt: &reviewed,
		},
		AmountCoins: 1000,
	}
	require.NoError(t, env.store.Set(ctx, "withdrawRequests/w-old", req))

	env.clock.Advance(models.AppliedMarkerRetention + time.Hour)
	_, err := env.withdrawals.Settle(ctx, req)
	assert.ErrorIs(t, err, ErrSettlementExpired)
	assert.Equal(t, int64(100000), env.account(t, "requester").Coins)

	stored, err := env.withdrawals.Get(ctx, "w-old")
	require.NoError(t, err)
	assert.False(t, stored.Settled)
}
