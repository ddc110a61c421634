package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"coin-rewards-ledger/models"
	"coin-rewards-ledger/store"

	"github.com/sirupsen/logrus"
)

// Identity is who the identity provider says the caller is.
type Identity struct {
	UID   string   `json:"uid"`
	Email string   `json:"email"`
	Roles []string `json:"roles,omitempty"`
}

type AccountService struct {
	Store     store.Store
	Referrals *ReferralService
	Log       *logrus.Entry
	Now       func() time.Time
}

func NewAccountService(st store.Store, referrals *ReferralService, log *logrus.Entry) *AccountService {
	return &AccountService{
		Store:     st,
		Referrals: referrals,
		Log:       log.WithField("component", "accounts"),
		Now:       time.Now,
	}
}

// CreateAccount creates the account of id with a zero balance. A referral code
// naming an existing account links the new user to that inviter. Calling it
// again for an existing account changes nothing except finishing an
// interrupted referral link. A placeholder left by an ad watch before signup is
// claimed: it gets the email and referrer. The bool reports whether the account
// was created or claimed.
func (s *AccountService) CreateAccount(ctx context.Context, id Identity, referralCode string) (*models.Account, bool, error) {
	path, err := userPath(id.UID)
	if err != nil {
		return nil, false, err
	}
	referralCode = strings.TrimSpace(referralCode)
	log := s.Log.WithField("uid", id.UID)

	inviter := ""
	if referralCode != "" && referralCode != id.UID {
		invPath, err := userPath(referralCode)
		if err != nil {
			return nil, false, invalid("referral_code", "is not a valid referral code")
		}
		var inv models.Account
		ok, err := s.Store.Get(ctx, invPath, &inv)
		if err != nil {
			return nil, false, err
		}
		if ok {
			inviter = referralCode
		} else {
			log.WithField("referral_code", referralCode).Warn("unknown referral code ignored at signup")
		}
	}

	now := s.Now().UTC()
	email := strings.TrimSpace(id.Email)
	var claimed bool
	acct, created, err := store.TransactJSON(ctx, s.Store, path, func(a *models.Account, exists bool) error {
		claimed = false
		if !exists {
			*a = *models.NewAccount(id.UID, email, now)
			a.ReferredBy = inviter
			return nil
		}
		if !a.Placeholder {
			return store.ErrAbort
		}
		// created by an ad watch before signup; keep its balance and counters
		a.Normalize()
		if a.Email == "" {
			a.Email = email
		}
		if a.ReferredBy == "" {
			a.ReferredBy = inviter
		}
		a.Placeholder = false
		a.UpdatedAt = now
		claimed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if claimed {
		log.WithField("referred_by", acct.ReferredBy).Info("placeholder account claimed at signup")
	}

	if !created {
		acct = &models.Account{}
		ok, err := s.Store.Get(ctx, path, acct)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, ErrAccountNotFound
		}
		acct.Normalize()
	} else if !claimed {
		log.WithField("referred_by", inviter).Info("account created")
	}

	if acct.ReferredBy != "" {
		if err := s.Referrals.Link(ctx, acct.ReferredBy, acct); err != nil {
			log.WithError(err).WithField("inviter_id", acct.ReferredBy).
				Error("referral link incomplete, it is retried on the next signup or identity sync")
		}
	}
	return acct, created, nil
}

func (s *AccountService) GetAccount(ctx context.Context, uid string) (*models.Account, error) {
	path, err := userPath(uid)
	if err != nil {
		return nil, err
	}
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

// ListAccounts returns every account ordered by creation time, newest first.
func (s *AccountService) ListAccounts(ctx context.Context) ([]models.Account, error) {
	docs, err := store.ListJSON[models.Account](ctx, s.Store, usersCollection)
	if err != nil {
		return nil, err
	}
	out := make([]models.Account, 0, len(docs))
	for _, a := range docs {
		a.Normalize()
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UID < out[j].UID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
