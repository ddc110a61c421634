package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"coin-rewards-ledger/metrics"
	"coin-rewards-ledger/models"
	"coin-rewards-ledger/store"

	"github.com/sirupsen/logrus"
)

// ReferralService links referred users to inviters, pays the first-withdrawal
// commission and keeps the verified invite counters.
type ReferralService struct {
	Store   store.Store
	Ledger  *LedgerService
	Metrics *metrics.Metrics
	Log     *logrus.Entry
	Now     func() time.Time
}

func NewReferralService(st store.Store, ledger *LedgerService, m *metrics.Metrics, log *logrus.Entry) *ReferralService {
	return &ReferralService{
		Store:   st,
		Ledger:  ledger,
		Metrics: m,
		Log:     log.WithField("component", "referrals"),
		Now:     time.Now,
	}
}

// Link records referred under inviterUID and counts the invite once.
// Both steps are idempotent, so Link can be repeated after a partial failure.
func (s *ReferralService) Link(ctx context.Context, inviterUID string, referred *models.Account) error {
	refPath, err := referralPath(inviterUID, referred.UID)
	if err != nil {
		return err
	}
	invPath, err := userPath(inviterUID)
	if err != nil {
		return err
	}
	now := s.Now().UTC()

	_, _, err = store.TransactJSON(ctx, s.Store, refPath, func(r *models.Referral, exists bool) error {
		if exists {
			return store.ErrAbort
		}
		*r = models.Referral{
			ReferredUID: referred.UID,
			Email:       referred.Email,
			ReferredAt:  now,
			Status:      models.ReferralPending,
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create referral record: %w", err)
	}

	key := inviteKey(referred.UID)
	_, counted, err := store.TransactJSON(ctx, s.Store, invPath, func(a *models.Account, exists bool) error {
		if !exists {
			return ErrAccountNotFound
		}
		if a.HasApplied(key) {
			return store.ErrAbort
		}
		a.TotalInvites++
		a.MarkApplied(key, now)
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("count invite: %w", err)
	}
	if counted {
		s.Log.WithFields(logrus.Fields{"inviter_id": inviterUID, "referred_id": referred.UID}).Info("referral linked")
	}
	return nil
}

// PayCommission credits the inviter's share of a referred user's first
// withdrawal and marks the referral record. Safe to repeat for the same withdrawal.
func (s *ReferralService) PayCommission(ctx context.Context, inviterUID string, req *models.WithdrawRequest, percent float64) (int64, error) {
	commission := Commission(req.AmountCoins, percent)
	paid, err := s.Ledger.applyCredit(ctx, inviterUID, commissionKey(req.ID), commission)
	if err != nil {
		return commission, err
	}

	refPath, err := referralPath(inviterUID, req.UserID)
	if err != nil {
		return commission, err
	}
	now := s.Now().UTC()
	_, _, err = store.TransactJSON(ctx, s.Store, refPath, func(r *models.Referral, exists bool) error {
		if !exists {
			// the link never completed; recreate the record from the request
			*r = models.Referral{
				ReferredUID: req.UserID,
				Email:       req.UserEmail,
				ReferredAt:  now,
				Status:      models.ReferralPending,
			}
		}
		if r.FirstWithdrawalApproved {
			return store.ErrAbort
		}
		r.FirstWithdrawalApproved = true
		r.CommissionPaid = commission
		return nil
	})
	if err != nil {
		return commission, fmt.Errorf("mark referral first withdrawal: %w", err)
	}

	if paid {
		s.Log.WithFields(logrus.Fields{
			"inviter_id":   inviterUID,
			"requester_id": req.UserID,
			"withdraw_id":  req.ID,
			"commission":   commission,
		}).Info("referral commission paid")
	}
	return commission, nil
}

// Verify marks a referral verified and counts it. It reports false if the
// referral was already verified.
func (s *ReferralService) Verify(ctx context.Context, inviterUID, referredUID string) (*models.Account, bool, error) {
	return s.setVerified(ctx, inviterUID, referredUID, true)
}

// Unverify reverts Verify. The counters never go below zero.
func (s *ReferralService) Unverify(ctx context.Context, inviterUID, referredUID string) (*models.Account, bool, error) {
	return s.setVerified(ctx, inviterUID, referredUID, false)
}

// setVerified applies the change to the inviter first. The verified marker on
// the inviter document decides whether the counters move, and the referral
// status is then mirrored from it, so a retry after a partial failure converges.
func (s *ReferralService) setVerified(ctx context.Context, inviterUID, referredUID string, verified bool) (*models.Account, bool, error) {
	refPath, err := referralPath(inviterUID, referredUID)
	if err != nil {
		return nil, false, err
	}
	invPath, err := userPath(inviterUID)
	if err != nil {
		return nil, false, err
	}
	var ref models.Referral
	ok, err := s.Store.Get(ctx, refPath, &ref)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, ErrReferralNotFound
	}
	now := s.Now().UTC()
	log := s.Log.WithFields(logrus.Fields{"inviter_id": inviterUID, "referred_id": referredUID, "verified": verified})

	key := verifiedKey(referredUID)
	acct, changed, err := store.TransactJSON(ctx, s.Store, invPath, func(a *models.Account, exists bool) error {
		if !exists {
			return ErrAccountNotFound
		}
		a.Normalize()
		if a.HasApplied(key) == verified {
			return store.ErrAbort
		}
		if verified {
			a.MarkApplied(key, now)
			a.VerifiedInvitesCount++
		} else {
			a.ForgetApplied(key)
			a.VerifiedInvitesCount = max(0, a.VerifiedInvitesCount-1)
		}
		a.Challenge(models.ChallengeVerifiedInvites).Count = a.VerifiedInvitesCount
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !changed {
		if acct, err = s.loadAccount(ctx, invPath); err != nil {
			return nil, false, err
		}
	}

	target := models.ReferralPending
	if verified {
		target = models.ReferralVerified
	}
	_, _, err = store.TransactJSON(ctx, s.Store, refPath, func(r *models.Referral, exists bool) error {
		if !exists {
			return ErrReferralNotFound
		}
		if r.Status == target {
			return store.ErrAbort
		}
		r.Status = target
		if verified {
			r.VerifiedAt = &now
		} else {
			r.VerifiedAt = nil
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Error("inviter counters changed but the referral status was not updated")
		return nil, changed, err
	}
	if changed {
		log.WithField("verified_invites", acct.VerifiedInvitesCount).Info("referral verification changed")
	}
	return acct, changed, nil
}

func (s *ReferralService) loadAccount(ctx context.Context, path string) (*models.Account, error) {
	var acct models.Account
	ok, err := s.Store.Get(ctx, path, &acct)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountNotFound
	}
	acct.Normalize()
	return &acct, nil
}

// ListReferrals returns the inviter's referral records, newest first.
func (s *ReferralService) ListReferrals(ctx context.Context, inviterUID string) ([]models.Referral, error) {
	coll, err := referralsOf(inviterUID)
	if err != nil {
		return nil, err
	}
	docs, err := store.ListJSON[models.Referral](ctx, s.Store, coll)
	if err != nil {
		return nil, err
	}
	out := make([]models.Referral, 0, len(docs))
	for _, r := range docs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReferredAt.After(out[j].ReferredAt)
	})
	return out, nil
}
