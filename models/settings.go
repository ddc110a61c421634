package models

import "time"

// Settings is the global configuration document stored at "admin".
// It is read once at the start of each operation and passed down explicitly.
type Settings struct {
	Version int64 `json:"version"`

	Ads             map[string]AdConfig `json:"ads"`
	SocialTaskLinks SocialTaskLinks     `json:"social_task_links"`

	DailyAdViewLimit            int64   `json:"daily_ad_view_limit"`
	CoinToUSDRate               float64 `json:"coin_to_usd_rate"`
	ReferralCommissionPercent   float64 `json:"referral_commission_percent"`
	AdWatchRewardCoins          int64   `json:"ad_watch_reward_coins"`
	WhatsappRewardCoins         int64   `json:"whatsapp_reward_coins"`
	YoutubeSubscribeRewardCoins int64   `json:"youtube_subscribe_reward_coins"`
	YoutubePromotionCoins       int64   `json:"youtube_promotion_coins"`

	UpdatedAt time.Time `json:"updated_at"`
}

type AdConfig struct {
	URL   string `json:"url"`
	Coins int64  `json:"coins"`
}

type SocialTaskLinks struct {
	Whatsapp string `json:"whatsapp"`
	Youtube  string `json:"youtube"`
}

// AdReward returns the coins for adID, falling back to the default per-ad reward.
func (s Settings) AdReward(adID string) int64 {
	if ad, ok := s.Ads[adID]; ok && ad.Coins > 0 {
		return ad.Coins
	}
	return s.AdWatchRewardCoins
}

// SocialTaskReward returns the reward configured for a social task.
func (s Settings) SocialTaskReward(task SocialTask) int64 {
	switch task {
	case SocialTaskWhatsapp:
		return s.WhatsappRewardCoins
	case SocialTaskYoutube:
		return s.YoutubeSubscribeRewardCoins
	}
	return 0
}
