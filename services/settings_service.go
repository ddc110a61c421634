package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"coin-rewards-ledger/config"
	"coin-rewards-ledger/models"
	"coin-rewards-ledger/store"

	"github.com/sirupsen/logrus"
)

const (
	defaultAdCount = 30
	defaultAdURL   = "https://www.google.com"
)

// SettingsService owns the global settings document at "admin".
type SettingsService struct {
	Store    store.Store
	Defaults models.Settings
	Log      *logrus.Entry
	Now      func() time.Time
}

func NewSettingsService(st store.Store, defaults models.Settings, log *logrus.Entry) *SettingsService {
	return &SettingsService{
		Store:    st,
		Defaults: defaults,
		Log:      log.WithField("component", "settings"),
		Now:      time.Now,
	}
}

// DefaultSettings seeds the settings document from configuration.
func DefaultSettings(cfg *config.Config) models.Settings {
	ads := make(map[string]models.AdConfig, defaultAdCount)
	for i := 1; i <= defaultAdCount; i++ {
		ads[fmt.Sprintf("ad%d", i)] = models.AdConfig{URL: defaultAdURL, Coins: cfg.AdWatchRewardCoins}
	}
	return models.Settings{
		Ads:                         ads,
		DailyAdViewLimit:            cfg.DailyAdViewLimit,
		CoinToUSDRate:               cfg.CoinToUSDRate,
		ReferralCommissionPercent:   cfg.ReferralCommissionPercent,
		AdWatchRewardCoins:          cfg.AdWatchRewardCoins,
		WhatsappRewardCoins:         cfg.WhatsappRewardCoins,
		YoutubeSubscribeRewardCoins: cfg.YoutubeSubscribeRewardCoins,
		YoutubePromotionCoins:       cfg.YoutubePromotionRewardCoins,
	}
}

// fill replaces unset values with the defaults so a partially written document stays usable.
func (s *SettingsService) fill(doc *models.Settings) {
	d := s.Defaults
	if doc.Ads == nil {
		doc.Ads = map[string]models.AdConfig{}
		for k, v := range d.Ads {
			doc.Ads[k] = v
		}
	}
	if doc.DailyAdViewLimit <= 0 {
		doc.DailyAdViewLimit = d.DailyAdViewLimit
	}
	if doc.CoinToUSDRate <= 0 {
		doc.CoinToUSDRate = d.CoinToUSDRate
	}
	if doc.ReferralCommissionPercent <= 0 {
		doc.ReferralCommissionPercent = d.ReferralCommissionPercent
	}
	if doc.AdWatchRewardCoins <= 0 {
		doc.AdWatchRewardCoins = d.AdWatchRewardCoins
	}
	if doc.WhatsappRewardCoins <= 0 {
		doc.WhatsappRewardCoins = d.WhatsappRewardCoins
	}
	if doc.YoutubeSubscribeRewardCoins <= 0 {
		doc.YoutubeSubscribeRewardCoins = d.YoutubeSubscribeRewardCoins
	}
	if doc.YoutubePromotionCoins <= 0 {
		doc.YoutubePromotionCoins = d.YoutubePromotionCoins
	}
	if doc.SocialTaskLinks.Whatsapp == "" {
		doc.SocialTaskLinks.Whatsapp = d.SocialTaskLinks.Whatsapp
	}
	if doc.SocialTaskLinks.Youtube == "" {
		doc.SocialTaskLinks.Youtube = d.SocialTaskLinks.Youtube
	}
}

// Current returns the settings every operation starts from.
func (s *SettingsService) Current(ctx context.Context) (models.Settings, error) {
	var doc models.Settings
	ok, err := s.Store.Get(ctx, settingsPath, &doc)
	if err != nil {
		return models.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if !ok {
		doc = models.Settings{}
	}
	s.fill(&doc)
	return doc, nil
}

// EnsureDefaults writes the default document if none exists yet.
func (s *SettingsService) EnsureDefaults(ctx context.Context) error {
	_, created, err := store.TransactJSON(ctx, s.Store, settingsPath, func(doc *models.Settings, exists bool) error {
		if exists {
			return store.ErrAbort
		}
		*doc = s.Defaults
		doc.Version = 1
		doc.UpdatedAt = s.Now().UTC()
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	if created {
		s.Log.Info("seeded default settings document")
	}
	return nil
}

func (s *SettingsService) update(ctx context.Context, mutate func(*models.Settings)) (models.Settings, error) {
	now := s.Now().UTC()
	doc, _, err := store.TransactJSON(ctx, s.Store, settingsPath, func(doc *models.Settings, exists bool) error {
		s.fill(doc)
		mutate(doc)
		doc.Version++
		doc.UpdatedAt = now
		return nil
	})
	if err != nil {
		return models.Settings{}, fmt.Errorf("update settings: %w", err)
	}
	s.Log.WithField("version", doc.Version).Info("settings updated")
	return *doc, nil
}

type AdInput struct {
	URL   string `json:"url" validate:"required,url"`
	Coins int64  `json:"coins" validate:"gt=0"`
}

// UpsertAd sets the link and reward of one ad.
func (s *SettingsService) UpsertAd(ctx context.Context, adID string, in AdInput) (models.Settings, error) {
	adID = strings.TrimSpace(adID)
	if adID == "" || strings.Contains(adID, "/") {
		return models.Settings{}, invalid("ad_id", "is required")
	}
	if err := validateStruct(in); err != nil {
		return models.Settings{}, err
	}
	return s.update(ctx, func(doc *models.Settings) {
		doc.Ads[adID] = models.AdConfig{URL: in.URL, Coins: in.Coins}
	})
}

func (s *SettingsService) DeleteAd(ctx context.Context, adID string) (models.Settings, error) {
	return s.update(ctx, func(doc *models.Settings) {
		delete(doc.Ads, adID)
	})
}

type SocialLinkInput struct {
	URL string `json:"url" validate:"required,url"`
}

func (s *SettingsService) SetSocialTaskLink(ctx context.Context, task models.SocialTask, in SocialLinkInput) (models.Settings, error) {
	if !task.Valid() {
		return models.Settings{}, invalid("task", "must be whatsapp or youtube")
	}
	if err := validateStruct(in); err != nil {
		return models.Settings{}, err
	}
	return s.update(ctx, func(doc *models.Settings) {
		switch task {
		case models.SocialTaskWhatsapp:
			doc.SocialTaskLinks.Whatsapp = in.URL
		case models.SocialTaskYoutube:
			doc.SocialTaskLinks.Youtube = in.URL
		}
	})
}

// RewardsInput changes limits, rates and fixed rewards. Nil fields are left alone.
type RewardsInput struct {
	DailyAdViewLimit            *int64   `json:"daily_ad_view_limit" validate:"omitempty,gt=0"`
	CoinToUSDRate               *float64 `json:"coin_to_usd_rate" validate:"omitempty,gt=0"`
	ReferralCommissionPercent   *float64 `json:"referral_commission_percent" validate:"omitempty,gt=0,lte=100"`
	AdWatchRewardCoins          *int64   `json:"ad_watch_reward_coins" validate:"omitempty,gt=0"`
	WhatsappRewardCoins         *int64   `json:"whatsapp_reward_coins" validate:"omitempty,gt=0"`
	YoutubeSubscribeRewardCoins *int64   `json:"youtube_subscribe_reward_coins" validate:"omitempty,gt=0"`
	YoutubePromotionCoins       *int64   `json:"youtube_promotion_coins" validate:"omitempty,gt=0"`
}

func (s *SettingsService) UpdateRewards(ctx context.Context, in RewardsInput) (models.Settings, error) {
	if err := validateStruct(in); err != nil {
		return models.Settings{}, err
	}
	return s.update(ctx, func(doc *models.Settings) {
		if in.DailyAdViewLimit != nil {
			doc.DailyAdViewLimit = *in.DailyAdViewLimit
		}
		if in.CoinToUSDRate != nil {
			doc.CoinToUSDRate = *in.CoinToUSDRate
		}
		if in.ReferralCommissionPercent != nil {
			doc.ReferralCommissionPercent = *in.ReferralCommissionPercent
		}
		if in.AdWatchRewardCoins != nil {
			doc.AdWatchRewardCoins = *in.AdWatchRewardCoins
		}
		if in.WhatsappRewardCoins != nil {
			doc.WhatsappRewardCoins = *in.WhatsappRewardCoins
		}
		if in.YoutubeSubscribeRewardCoins != nil {
			doc.YoutubeSubscribeRewardCoins = *in.YoutubeSubscribeRewardCoins
		}
		if in.YoutubePromotionCoins != nil {
			doc.YoutubePromotionCoins = *in.YoutubePromotionCoins
		}
	})
}
