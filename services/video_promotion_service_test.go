package services

import (
	"context"
	"testing"

	"coin-rewards-ledger/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) replica(t *testing.T, uid, id string) models.VideoPromotion {
	t.Helper()
	path, err := userVideoPromotionPath(uid, id)
	require.NoError(t, err)
	var promo models.VideoPromotion
	ok, err := e.store.Get(context.Background(), path, &promo)
	require.NoError(t, err)
	require.True(t, ok)
	return promo
}

func TestVideoPromotion_AcceptUpdatesBothCopiesAndCreditsOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.signup(t, "u1", "")

	promo, err := env.promotions.Submit(ctx, Identity{UID: "u1"}, VideoPromotionInput{VideoLink: "https://youtube.com/watch?v=abc"})
	require.NoError(t, err)
	assert.Equal(t, int64(25000), promo.Coins)
	assert.Equal(t, models.StatusPending, env.replica(t, "u1", promo.ID).Status)

	accepted, err := env.promotions.Accept(ctx, promo.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, accepted.Status)
	assert.True(t, accepted.Settled)

	replica := env.replica(t, "u1", promo.ID)
	assert.Equal(t, models.StatusAccepted, replica.Status)
	assert.True(t, replica.Settled)
	assert.Equal(t, int64(25000), env.account(t, "u1").Coins)

	_, err = env.promotions.Accept(ctx, promo.ID, "admin")
	assert.ErrorIs(t, err, ErrRequestFinalized)

	stale := *accepted
	stale.Settled = false
	_, err = env.promotions.Settle(ctx, &stale)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), env.account(t, "u1").Coins)

	mine, err := env.promotions.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, models.StatusAccepted, mine[0].Status)
}

func TestVideoPromotion_RejectUpdatesBothCopies(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.signup(t, "u1", "")

	promo, err := env.promotions.Submit(ctx, Identity{UID: "u1"}, VideoPromotionInput{VideoLink: "https://youtu.be/xyz"})
	require.NoError(t, err)

	_, err = env.promotions.Reject(ctx, promo.ID, "admin")
	require.NoError(t, err)

	stored, err := env.promotions.Get(ctx, promo.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, stored.Status)
	assert.Equal(t, models.StatusRejected, env.replica(t, "u1", promo.ID).Status)
	assert.Equal(t, int64(0), env.account(t, "u1").Coins)
}

func TestVideoPromotion_SubmitValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.signup(t, "u1", "")

	_, err := env.promotions.Submit(ctx, Identity{UID: "u1"}, VideoPromotionInput{VideoLink: "  "})
	assert.True(t, IsValidation(err))
	_, err = env.promotions.Submit(ctx, Identity{UID: "u1"}, VideoPromotionInput{VideoLink: "not a link"})
	assert.True(t, IsValidation(err))
}
