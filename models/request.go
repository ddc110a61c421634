package models

import "time"

// RequestStatus is the workflow state of a withdrawal, deposit or video promotion request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusAccepted RequestStatus = "accepted" // video promotions only
	StatusRejected RequestStatus = "rejected"
)

func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusAccepted || s == StatusRejected
}

// RequestMeta is shared by every request document.
type RequestMeta struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	UserEmail  string        `json:"user_email"`
	Status     RequestStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	ReviewedBy string        `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time    `json:"reviewed_at,omitempty"`

	// Settled is set once the ledger effects of a terminal transition are fully applied.
	Settled   bool       `json:"settled"`
	SettledAt *time.Time `json:"settled_at,omitempty"`
}

func (m *RequestMeta) Meta() *RequestMeta { return m }

// WithdrawRequest asks to convert coins into a payout. Coins leave the balance only at approval.
type WithdrawRequest struct {
	RequestMeta
	AmountCoins    int64   `json:"amount_coins"`
	AmountUSD      float64 `json:"amount_usd"`
	Method         string  `json:"method"`
	MethodKey      string  `json:"method_key"`
	AccountDetails string  `json:"account_details"`
}

// DepositRequest asks to credit coins for an external payment. Coins are computed at submission.
type DepositRequest struct {
	RequestMeta
	TransactionID   string  `json:"transaction_id"`
	AmountDeposited float64 `json:"amount_deposited"`
	CoinsToReceive  int64   `json:"coins_to_receive"`
	ReceiptURL      string  `json:"receipt_url,omitempty"`
}

// VideoPromotion is stored at videoPromotions/{id} (authoritative) and mirrored
// to users/{uid}/videoPromotions/{id}.
type VideoPromotion struct {
	RequestMeta
	VideoLink string `json:"video_link"`
	Coins     int64  `json:"coins"`
}
