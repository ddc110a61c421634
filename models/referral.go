package models

import "time"

type ReferralStatus string

const (
	ReferralPending  ReferralStatus = "pending"
	ReferralVerified ReferralStatus = "verified"
)

// Referral is stored under the inviter at users/{inviter}/referrals/{referred}.
type Referral struct {
	ReferredUID             string         `json:"referred_uid"`
	Email                   string         `json:"email"`
	ReferredAt              time.Time      `json:"referred_at"`
	FirstWithdrawalApproved bool           `json:"first_withdrawal_approved"`
	Status                  ReferralStatus `json:"status"`
	CommissionPaid          int64          `json:"commission_paid,omitempty"`
	VerifiedAt              *time.Time     `json:"verified_at,omitempty"`
}
