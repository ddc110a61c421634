package handlers

import (
	"coin-rewards-ledger/metrics"
	"coin-rewards-ledger/services"
	"coin-rewards-ledger/store"

	"github.com/sirupsen/logrus"
)

// Services bundles what the routes call into.
type Services struct {
	Store       store.Store
	Accounts    *services.AccountService
	Ledger      *services.LedgerService
	Referrals   *services.ReferralService
	Challenges  *services.ChallengeService
	Settings    *services.SettingsService
	Withdrawals *services.WithdrawService
	Deposits    *services.DepositService
	Promotions  *services.VideoPromotionService
	Reconciler  *services.Reconciler
	Metrics     *metrics.Metrics
	Log         *logrus.Entry
}
