package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"coin-rewards-ledger/metrics"
	"coin-rewards-ledger/models"
	"coin-rewards-ledger/store"

	"github.com/gosimple/slug"
	"github.com/sirupsen/logrus"
)

// PayoutMethods lists the accepted payout methods by display name.
var PayoutMethods = []string{"Easypaisa", "JazzCash", "UPI", "Google Pay", "Redeem Code", "Bank Transfer"}

var payoutMethodKeys = func() map[string]string {
	keys := make(map[string]string, len(PayoutMethods))
	for _, m := range PayoutMethods {
		keys[slug.Make(m)] = m
	}
	return keys
}()

// normalizeMethod maps user input such as "google pay" to its canonical name and key.
func normalizeMethod(method string) (name, key string, ok bool) {
	key = slug.Make(method)
	name, ok = payoutMethodKeys[key]
	return name, key, ok
}

type WithdrawService struct {
	Store     store.Store
	Accounts  *AccountService
	Ledger    *LedgerService
	Referrals *ReferralService
	Settings  *SettingsService
	Metrics   *metrics.Metrics
	Log       *logrus.Entry
	Now       func() time.Time
}

func NewWithdrawService(st store.Store, accounts *AccountService, ledger *LedgerService, referrals *ReferralService, settings *SettingsService, m *metrics.Metrics, log *logrus.Entry) *WithdrawService {
	return &WithdrawService{
		Store:     st,
		Accounts:  accounts,
		Ledger:    ledger,
		Referrals: referrals,
		Settings:  settings,
		Metrics:   m,
		Log:       log.WithField("component", "withdrawals"),
		Now:       time.Now,
	}
}

type WithdrawInput struct {
	AmountCoins    int64  `json:"amount_coins" validate:"gt=0"`
	Method         string `json:"method" validate:"notblank,max=64"`
	AccountDetails string `json:"account_details" validate:"notblank,max=256"`
}

// Submit creates a pending withdrawal. The balance is checked but not debited.
func (s *WithdrawService) Submit(ctx context.Context, id Identity, in WithdrawInput) (*models.WithdrawRequest, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	method, methodKey, ok := normalizeMethod(in.Method)
	if !ok {
		return nil, invalid("method", "is not a supported payout method")
	}
	acct, err := s.Accounts.GetAccount(ctx, id.UID)
	if err != nil {
		return nil, err
	}
	if in.AmountCoins > acct.Coins {
		return nil, invalid("amount_coins", "exceeds your balance")
	}
	settings, err := s.Settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	reqID := store.PushKey()
	path, err := requestPath(withdrawRequestsCollection, reqID)
	if err != nil {
		return nil, err
	}
	email := id.Email
	if email == "" {
		email = acct.Email
	}
	req := &models.WithdrawRequest{
		RequestMeta: models.RequestMeta{
			ID:        reqID,
			UserID:    id.UID,
			UserEmail: email,
			Status:    models.StatusPending,
			CreatedAt: s.Now().UTC(),
		},
		AmountCoins:    in.AmountCoins,
		AmountUSD:      CoinsToUSD(in.AmountCoins, settings.CoinToUSDRate),
		Method:         method,
		MethodKey:      methodKey,
		AccountDetails: strings.TrimSpace(in.AccountDetails),
	}
	if err := s.Store.Set(ctx, path, req); err != nil {
		return nil, err
	}
	s.Metrics.Transitions.WithLabelValues("withdrawal", string(models.StatusPending)).Inc()
	s.Log.WithFields(logrus.Fields{"withdraw_id": reqID, "uid": id.UID, "amount": in.AmountCoins}).Info("withdrawal submitted")
	return req, nil
}

func (s *WithdrawService) Approve(ctx context.Context, id, reviewer string) (*models.WithdrawRequest, error) {
	return s.review(ctx, id, models.StatusApproved, reviewer)
}

func (s *WithdrawService) Reject(ctx context.Context, id, reviewer string) (*models.WithdrawRequest, error) {
	return s.review(ctx, id, models.StatusRejected, reviewer)
}

func (s *WithdrawService) review(ctx context.Context, id string, status models.RequestStatus, reviewer string) (*models.WithdrawRequest, error) {
	path, err := requestPath(withdrawRequestsCollection, id)
	if err != nil {
		return nil, err
	}
	req, err := transition[models.WithdrawRequest](ctx, s.Store, path, status, reviewer, s.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.Metrics.Transitions.WithLabelValues("withdrawal", string(status)).Inc()
	s.Log.WithFields(logrus.Fields{"withdraw_id": id, "status": status, "reviewer": reviewer}).Info("withdrawal reviewed")

	settled, err := s.Settle(ctx, req)
	if err != nil {
		// left terminal but unsettled for the reconciliation job
		return req, nil
	}
	return settled, nil
}

// Settle applies the ledger effects of a terminal withdrawal: the debit, the
// first-withdrawal flag and the inviter commission. Every step is idempotent so
// a half-applied settlement can be re-run.
func (s *WithdrawService) Settle(ctx context.Context, req *models.WithdrawRequest) (*models.WithdrawRequest, error) {
	if !unsettled(&req.RequestMeta) {
		return req, nil
	}
	log := s.Log.WithFields(logrus.Fields{"withdraw_id": req.ID, "requester_id": req.UserID})

	if req.Status == models.StatusApproved {
		if settlementExpired(&req.RequestMeta, s.Now().UTC()) {
			s.Metrics.CascadeFailures.WithLabelValues("withdrawal").Inc()
			log.Error("approved withdrawal was never settled and is past the settlement window")
			return nil, ErrSettlementExpired
		}
		acct, err := s.Ledger.applyWithdrawal(ctx, req)
		if err != nil {
			s.Metrics.CascadeFailures.WithLabelValues("withdrawal").Inc()
			log.WithError(err).Error("withdrawal approved but the debit failed")
			return nil, err
		}

		// commission is due only for the withdrawal that completed the first one
		if acct.ReferredBy != "" && acct.FirstWithdrawalRequestID == req.ID {
			settings, err := s.Settings.Current(ctx)
			if err != nil {
				s.Metrics.CascadeFailures.WithLabelValues("withdrawal").Inc()
				log.WithError(err).Error("withdrawal debited but settings could not be read for the commission")
				return nil, err
			}
			commission, err := s.Referrals.PayCommission(ctx, acct.ReferredBy, req, settings.ReferralCommissionPercent)
			switch {
			case errors.Is(err, ErrAccountNotFound):
				log.WithField("inviter_id", acct.ReferredBy).Warn("inviter account missing, referral commission skipped")
			case err != nil:
				s.Metrics.CascadeFailures.WithLabelValues("withdrawal").Inc()
				log.WithError(err).WithFields(logrus.Fields{
					"inviter_id": acct.ReferredBy,
					"commission": commission,
				}).Error("withdrawal debited but the referral commission was not applied")
				return nil, err
			}
		}
	}

	path, err := requestPath(withdrawRequestsCollection, req.ID)
	if err != nil {
		return nil, err
	}
	settled, err := markSettled[models.WithdrawRequest](ctx, s.Store, path, s.Now().UTC())
	if err != nil {
		s.Metrics.CascadeFailures.WithLabelValues("withdrawal").Inc()
		log.WithError(err).Error("withdrawal effects applied but the request could not be marked settled")
		return nil, err
	}
	return settled, nil
}

func (s *WithdrawService) Get(ctx context.Context, id string) (*models.WithdrawRequest, error) {
	path, err := requestPath(withdrawRequestsCollection, id)
	if err != nil {
		return nil, err
	}
	return loadRequest[models.WithdrawRequest](ctx, s.Store, path)
}

func (s *WithdrawService) List(ctx context.Context, filter RequestFilter) ([]*models.WithdrawRequest, error) {
	return listRequests[models.WithdrawRequest](ctx, s.Store, withdrawRequestsCollection, filter)
}
