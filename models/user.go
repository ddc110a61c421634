package models

import (
	"strings"
	"time"
)

const (
	// InviteMarkerPrefix and VerifiedMarkerPrefix key markers that hold
	// referral state. They are bounded by the number of referrals and never expire.
	InviteMarkerPrefix   = "invite/"
	VerifiedMarkerPrefix = "verified/"

	// AppliedMarkerRetention bounds how long request and commission markers stay
	// on the account. Settlement of a request reviewed earlier than this is refused.
	AppliedMarkerRetention = 90 * 24 * time.Hour

	// AdStatsRetention bounds how many days of ad watch counters are kept.
	AdStatsRetention = 31 * 24 * time.Hour
)

// Account is the per-user ledger document stored at users/{uid}.
// Referrals and video promotions live in child documents under the same prefix.
type Account struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Coins int64  `json:"coins"`

	// Keyed by UTC calendar date, "2006-01-02".
	DailyAdStats map[string]DailyAdStat `json:"daily_ad_stats"`
	SocialTasks  SocialTasks            `json:"social_tasks"`

	// Created by an ad watch before signup. Signup claims it instead of aborting.
	Placeholder bool `json:"placeholder,omitempty"`

	ReferredBy           string `json:"referred_by,omitempty"` // set once at signup
	TotalInvites         int64  `json:"total_invites"`
	VerifiedInvitesCount int64  `json:"verified_invites_count"`

	FirstWithdrawalCompleted bool   `json:"first_withdrawal_completed"`
	FirstWithdrawalRequestID string `json:"first_withdrawal_request_id,omitempty"`

	Challenges map[ChallengeCategory]*ChallengeProgress `json:"challenges"`

	// Request ids (and commission, invite and verified markers) whose effect was
	// applied to this account. See Compact for how long each kind is kept.
	AppliedRequests map[string]time.Time `json:"applied_requests,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DailyAdStat struct {
	TotalWatches int64 `json:"total_watches"`
}

type SocialTasks struct {
	WhatsappJoined    bool `json:"whatsapp_joined"`
	YoutubeSubscribed bool `json:"youtube_subscribed"`
}

// SocialTask names a one-time social task.
type SocialTask string

const (
	SocialTaskWhatsapp SocialTask = "whatsapp"
	SocialTaskYoutube  SocialTask = "youtube"
)

func (t SocialTask) Valid() bool {
	return t == SocialTaskWhatsapp || t == SocialTaskYoutube
}

// NewAccount returns a zero-balance account with every challenge initialised.
func NewAccount(uid, email string, now time.Time) *Account {
	a := &Account{
		UID:       uid,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	a.Normalize()
	return a
}

// Normalize fills nil maps so older or hand-edited documents can be mutated safely.
func (a *Account) Normalize() {
	if a.DailyAdStats == nil {
		a.DailyAdStats = map[string]DailyAdStat{}
	}
	if a.Challenges == nil {
		a.Challenges = map[ChallengeCategory]*ChallengeProgress{}
	}
	for _, cat := range ChallengeCategories {
		a.Challenge(cat)
	}
	if a.AppliedRequests == nil {
		a.AppliedRequests = map[string]time.Time{}
	}
}

// Challenge returns the progress entry for cat, creating it if needed.
func (a *Account) Challenge(cat ChallengeCategory) *ChallengeProgress {
	if a.Challenges == nil {
		a.Challenges = map[ChallengeCategory]*ChallengeProgress{}
	}
	p, ok := a.Challenges[cat]
	if !ok || p == nil {
		p = &ChallengeProgress{}
		a.Challenges[cat] = p
	}
	if p.RewardsCollected == nil {
		p.RewardsCollected = map[string]bool{}
	}
	return p
}

// AdWatchesOn returns the number of ad watches recorded for the given date key.
func (a *Account) AdWatchesOn(day string) int64 {
	return a.DailyAdStats[day].TotalWatches
}

// HasApplied reports whether the ledger effect identified by key was already applied.
func (a *Account) HasApplied(key string) bool {
	_, ok := a.AppliedRequests[key]
	return ok
}

// MarkApplied records key and compacts expired markers.
func (a *Account) MarkApplied(key string, at time.Time) {
	if a.AppliedRequests == nil {
		a.AppliedRequests = map[string]time.Time{}
	}
	a.AppliedRequests[key] = at
	a.Compact(at)
}

// ForgetApplied drops a marker. Only referral markers are ever unset.
func (a *Account) ForgetApplied(key string) {
	delete(a.AppliedRequests, key)
}

// Compact drops request markers older than AppliedMarkerRetention and ad
// counters older than AdStatsRetention, keeping the document bounded.
func (a *Account) Compact(now time.Time) {
	cutoff := now.Add(-AppliedMarkerRetention)
	for key, at := range a.AppliedRequests {
		if strings.HasPrefix(key, InviteMarkerPrefix) || strings.HasPrefix(key, VerifiedMarkerPrefix) {
			continue
		}
		if at.Before(cutoff) {
			delete(a.AppliedRequests, key)
		}
	}
	oldest := now.Add(-AdStatsRetention).UTC().Format("2006-01-02")
	for day := range a.DailyAdStats {
		if day < oldest {
			delete(a.DailyAdStats, day)
		}
	}
}
