package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"coin-rewards-ledger/metrics"
	"coin-rewards-ledger/models"
	"coin-rewards-ledger/store"

	"github.com/sirupsen/logrus"
)

// LedgerService is the only code that changes coin balances. Every change is a
// single transaction on the user document.
type LedgerService struct {
	Store    store.Store
	Settings *SettingsService
	Metrics  *metrics.Metrics
	Log      *logrus.Entry
	Now      func() time.Time
}

func NewLedgerService(st store.Store, settings *SettingsService, m *metrics.Metrics, log *logrus.Entry) *LedgerService {
	return &LedgerService{
		Store:    st,
		Settings: settings,
		Metrics:  m,
		Log:      log.WithField("component", "ledger"),
		Now:      time.Now,
	}
}

type AdWatchOutcome string

const (
	AdWatchRecorded     AdWatchOutcome = "recorded"
	AdWatchLimitReached AdWatchOutcome = "limit_reached"
)

type AdWatchResult struct {
	Outcome     AdWatchOutcome `json:"outcome"`
	RewardCoins int64          `json:"reward_coins"`
	Balance     int64          `json:"balance"`
	TodayCount  int64          `json:"today_count"`
	DailyLimit  int64          `json:"daily_limit"`
	Date        string         `json:"date"`
}

// CreditCoins adds amount to the balance and returns the new balance.
func (s *LedgerService) CreditCoins(ctx context.Context, uid string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, invalid("amount", "must not be negative")
	}
	path, err := userPath(uid)
	if err != nil {
		return 0, err
	}
	now := s.Now().UTC()
	acct, _, err := store.TransactJSON(ctx, s.Store, path, func(a *models.Account, exists bool) error {
		if !exists {
			return ErrAccountNotFound
		}
		a.Coins += amount
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return 0, err
	}
	return acct.Coins, nil
}

// DebitCoins removes amount from the balance, stopping at zero.
func (s *LedgerService) DebitCoins(ctx context.Context, uid string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, invalid("amount", "must not be negative")
	}
	path, err := userPath(uid)
	if err != nil {
		return 0, err
	}
	now := s.Now().UTC()
	acct, _, err := store.TransactJSON(ctx, s.Store, path, func(a *models.Account, exists bool) error {
		if !exists {
			return ErrAccountNotFound
		}
		a.Coins = max(0, a.Coins-amount)
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return 0, err
	}
	return acct.Coins, nil
}

// AdminSetCoins overwrites a balance.
func (s *LedgerService) AdminSetCoins(ctx context.Context, uid string, coins int64) (int64, error) {
	if coins < 0 {
		return 0, invalid("coins", "must not be negative")
	}
	path, err := userPath(uid)
	if err != nil {
		return 0, err
	}
	now := s.Now().UTC()
	acct, _, err := store.TransactJSON(ctx, s.Store, path, func(a *models.Account, exists bool) error {
		if !exists {
			return ErrAccountNotFound
		}
		a.Coins = coins
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.Log.WithFields(logrus.Fields{"uid": uid, "coins": coins}).Warn("balance overwritten by admin")
	return acct.Coins, nil
}

// WatchAd resolves the reward of adID from settings and records the watch.
func (s *LedgerService) WatchAd(ctx context.Context, uid, adID string, kind models.AdKind) (*AdWatchResult, error) {
	if strings.TrimSpace(adID) == "" {
		return nil, invalid("ad_id", "is required")
	}
	settings, err := s.Settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	return s.recordAdWatch(ctx, uid, kind, settings.AdReward(adID), settings)
}

// RecordAdWatch counts one ad watch for today, credits rewardCoins and advances
// the challenge counter selected by kind. At the daily limit nothing changes
// and the outcome is AdWatchLimitReached. A missing account is created on the fly.
func (s *LedgerService) RecordAdWatch(ctx context.Context, uid string, kind models.AdKind, rewardCoins int64) (*AdWatchResult, error) {
	settings, err := s.Settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	return s.recordAdWatch(ctx, uid, kind, rewardCoins, settings)
}

func (s *LedgerService) recordAdWatch(ctx context.Context, uid string, kind models.AdKind, rewardCoins int64, settings models.Settings) (*AdWatchResult, error) {
	category, ok := kind.Category()
	if !ok {
		return nil, invalid("kind", "must be ptc or surf")
	}
	if rewardCoins < 0 {
		return nil, invalid("reward_coins", "must not be negative")
	}
	path, err := userPath(uid)
	if err != nil {
		return nil, err
	}

	now := s.Now().UTC()
	today := now.Format(DateKeyLayout)
	limit := settings.DailyAdViewLimit
	result := &AdWatchResult{RewardCoins: rewardCoins, DailyLimit: limit, Date: today}
	var healed bool

	acct, committed, err := store.TransactJSON(ctx, s.Store, path, func(a *models.Account, exists bool) error {
		healed = false
		if !exists {
			*a = *models.NewAccount(uid, "", now)
			a.Placeholder = true
			healed = true
		} else {
			a.Normalize()
		}

		count := a.AdWatchesOn(today)
		if count >= limit {
			result.Outcome = AdWatchLimitReached
			result.TodayCount = count
			result.Balance = a.Coins
			return store.ErrAbort
		}

		a.Compact(now)
		a.DailyAdStats[today] = models.DailyAdStat{TotalWatches: count + 1}
		a.Coins += rewardCoins
		a.Challenge(category).Count++
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !committed {
		s.Metrics.AdWatches.WithLabelValues(string(kind), string(AdWatchLimitReached)).Inc()
		return result, nil
	}

	if healed {
		s.Log.WithField("uid", uid).Warn("account document was missing, created a default one during ad watch")
	}
	s.Metrics.AdWatches.WithLabelValues(string(kind), string(AdWatchRecorded)).Inc()
	result.Outcome = AdWatchRecorded
	result.TodayCount = acct.AdWatchesOn(today)
	result.Balance = acct.Coins
	return result, nil
}

// CollectOneTimeReward sets the collected flag of tierKey and credits rewardCoins
// in one transaction. It returns false if the reward was already collected.
func (s *LedgerService) CollectOneTimeReward(ctx context.Context, uid string, category models.ChallengeCategory, tierKey string, rewardCoins int64) (bool, error) {
	if !category.Valid() {
		return false, invalid("category", "is not a known challenge category")
	}
	if strings.TrimSpace(tierKey) == "" {
		return false, invalid("tier_key", "is required")
	}
	if rewardCoins < 0 {
		return false, invalid("reward_coins", "must not be negative")
	}
	path, err := userPath(uid)
	if err != nil {
		return false, err
	}

	now := s.Now().UTC()
	_, committed, err := store.TransactJSON(ctx, s.Store, path, func(a *models.Account, exists bool) error {
		if !exists {
			return ErrAccountNotFound
		}
		progress := a.Challenge(category)
		if progress.RewardsCollected[tierKey] {
			return store.ErrAbort
		}
		progress.RewardsCollected[tierKey] = true
		a.Coins += rewardCoins
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return false, err
	}

	outcome := "collected"
	if !committed {
		outcome = "already_collected"
	}
	s.Metrics.RewardsCollected.WithLabelValues(string(category), outcome).Inc()
	return committed, nil
}

type SocialTaskResult struct {
	Completed   bool  `json:"completed"`
	RewardCoins int64 `json:"reward_coins"`
	Balance     int64 `json:"balance"`
}

// CompleteSocialTask sets a one-way social task flag and credits its reward.
// Completed is false when the task was already done.
func (s *LedgerService) CompleteSocialTask(ctx context.Context, uid string, task models.SocialTask) (*SocialTaskResult, error) {
	if !task.Valid() {
		return nil, invalid("task", "must be whatsapp or youtube")
	}
	path, err := userPath(uid)
	if err != nil {
		return nil, err
	}
	settings, err := s.Settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	reward := settings.SocialTaskReward(task)

	now := s.Now().UTC()
	result := &SocialTaskResult{RewardCoins: reward}
	acct, committed, err := store.TransactJSON(ctx, s.Store, path, func(a *models.Account, exists bool) error {
		if !exists {
			return ErrAccountNotFound
		}
		done := &a.SocialTasks.WhatsappJoined
		if task == models.SocialTaskYoutube {
			done = &a.SocialTasks.YoutubeSubscribed
		}
		if *done {
			result.Balance = a.Coins
			return store.ErrAbort
		}
		*done = true
		a.Coins += reward
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !committed {
		s.Metrics.SocialTasks.WithLabelValues(string(task), "already_completed").Inc()
		return result, nil
	}
	s.Metrics.SocialTasks.WithLabelValues(string(task), "completed").Inc()
	result.Completed = true
	result.Balance = acct.Coins
	return result, nil
}

// applyCredit credits amount once for the effect identified by key.
// It reports false if the effect had already been applied.
func (s *LedgerService) applyCredit(ctx context.Context, uid, key string, amount int64) (bool, error) {
	path, err := userPath(uid)
	if err != nil {
		return false, err
	}
	now := s.Now().UTC()
	_, committed, err := store.TransactJSON(ctx, s.Store, path, func(a *models.Account, exists bool) error {
		if !exists {
			return ErrAccountNotFound
		}
		if a.HasApplied(key) {
			return store.ErrAbort
		}
		a.Coins += amount
		a.MarkApplied(key, now)
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("credit %s for %s: %w", uid, key, err)
	}
	return committed, nil
}

// applyWithdrawal debits an approved withdrawal once and flips
// firstWithdrawalCompleted, remembering which request flipped it. The returned
// account reflects the state after the debit.
func (s *LedgerService) applyWithdrawal(ctx context.Context, req *models.WithdrawRequest) (*models.Account, error) {
	path, err := userPath(req.UserID)
	if err != nil {
		return nil, err
	}
	key := withdrawRequestsCollection + "/" + req.ID
	now := s.Now().UTC()
	acct, committed, err := store.TransactJSON(ctx, s.Store, path, func(a *models.Account, exists bool) error {
		if !exists {
			return ErrAccountNotFound
		}
		if a.HasApplied(key) {
			return store.ErrAbort
		}
		a.Coins = max(0, a.Coins-req.AmountCoins)
		if !a.FirstWithdrawalCompleted {
			a.FirstWithdrawalCompleted = true
			a.FirstWithdrawalRequestID = req.ID
		}
		a.MarkApplied(key, now)
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("debit withdrawal %s: %w", req.ID, err)
	}
	if committed {
		return acct, nil
	}

	acct = &models.Account{}
	ok, err := s.Store.Get(ctx, path, acct)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acct, nil
}
