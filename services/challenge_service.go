package services

import (
	"context"
	_ "embed"
	"fmt"

	"coin-rewards-ledger/models"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

//go:embed challenges.yaml
var defaultChallengeTiers []byte

// ChallengeTiers maps each category to its tiers in ascending target order.
type ChallengeTiers map[models.ChallengeCategory][]models.ChallengeTier

// ParseChallengeTiers reads tier definitions and checks that keys are unique
// and targets strictly increase within a category.
func ParseChallengeTiers(data []byte) (ChallengeTiers, error) {
	var tiers ChallengeTiers
	if err := yaml.Unmarshal(data, &tiers); err != nil {
		return nil, fmt.Errorf("parse challenge tiers: %w", err)
	}
	seen := map[string]bool{}
	for cat, list := range tiers {
		if !cat.Valid() {
			return nil, fmt.Errorf("unknown challenge category %q", cat)
		}
		var prev int64
		for _, t := range list {
			switch {
			case t.Key == "":
				return nil, fmt.Errorf("%s: tier without key", cat)
			case seen[t.Key]:
				return nil, fmt.Errorf("%s: duplicate tier key %q", cat, t.Key)
			case t.Target <= prev:
				return nil, fmt.Errorf("%s: tier %q target must exceed %d", cat, t.Key, prev)
			case t.Reward < 0:
				return nil, fmt.Errorf("%s: tier %q has a negative reward", cat, t.Key)
			}
			seen[t.Key] = true
			prev = t.Target
		}
	}
	return tiers, nil
}

// ChallengeService exposes challenge progress and the collect operation.
type ChallengeService struct {
	Accounts *AccountService
	Ledger   *LedgerService
	Tiers    ChallengeTiers
	Log      *logrus.Entry
}

func NewChallengeService(accounts *AccountService, ledger *LedgerService, log *logrus.Entry) (*ChallengeService, error) {
	tiers, err := ParseChallengeTiers(defaultChallengeTiers)
	if err != nil {
		return nil, err
	}
	return &ChallengeService{
		Accounts: accounts,
		Ledger:   ledger,
		Tiers:    tiers,
		Log:      log.WithField("component", "challenges"),
	}, nil
}

type TierView struct {
	models.ChallengeTier
	Completed bool `json:"completed"`
	Collected bool `json:"collected"`
}

type ChallengeView struct {
	Category models.ChallengeCategory `json:"category"`
	Count    int64                    `json:"count"`
	Tiers    []TierView               `json:"tiers"`
}

func (s *ChallengeService) tier(category models.ChallengeCategory, key string) (models.ChallengeTier, bool) {
	for _, t := range s.Tiers[category] {
		if t.Key == key {
			return t, true
		}
	}
	return models.ChallengeTier{}, false
}

// Progress returns the counts and tier states of every category.
func (s *ChallengeService) Progress(ctx context.Context, uid string) ([]ChallengeView, error) {
	acct, err := s.Accounts.GetAccount(ctx, uid)
	if err != nil {
		return nil, err
	}
	views := make([]ChallengeView, 0, len(models.ChallengeCategories))
	for _, cat := range models.ChallengeCategories {
		progress := acct.Challenge(cat)
		view := ChallengeView{Category: cat, Count: progress.Count}
		for _, t := range s.Tiers[cat] {
			view.Tiers = append(view.Tiers, TierView{
				ChallengeTier: t,
				Completed:     progress.Count >= t.Target,
				Collected:     progress.RewardsCollected[t.Key],
			})
		}
		views = append(views, view)
	}
	return views, nil
}

type CollectResult struct {
	Collected   bool   `json:"collected"`
	TierKey     string `json:"tier_key"`
	RewardCoins int64  `json:"reward_coins"`
	Label       string `json:"label"`
}

// Collect pays the reward of a completed tier once. Collected is false when it
// was already paid; ErrChallengeNotMet means the target is not reached yet.
func (s *ChallengeService) Collect(ctx context.Context, uid string, category models.ChallengeCategory, tierKey string) (*CollectResult, error) {
	if !category.Valid() {
		return nil, invalid("category", "is not a known challenge category")
	}
	t, ok := s.tier(category, tierKey)
	if !ok {
		return nil, ErrUnknownTier
	}
	acct, err := s.Accounts.GetAccount(ctx, uid)
	if err != nil {
		return nil, err
	}
	if acct.Challenge(category).Count < t.Target {
		return nil, ErrChallengeNotMet
	}

	collected, err := s.Ledger.CollectOneTimeReward(ctx, uid, category, t.Key, t.Reward)
	if err != nil {
		return nil, err
	}
	if collected {
		s.Log.WithFields(logrus.Fields{"uid": uid, "tier": t.Key, "reward": t.Reward}).Info("challenge reward collected")
	}
	return &CollectResult{Collected: collected, TierKey: t.Key, RewardCoins: t.Reward, Label: t.Label}, nil
}
