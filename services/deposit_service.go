package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"coin-rewards-ledger/metrics"
	"coin-rewards-ledger/models"
	"coin-rewards-ledger/store"

	"github.com/sirupsen/logrus"
)

// ReceiptUploader stores a proof-of-payment file and returns its public URL.
type ReceiptUploader interface {
	UploadReceipt(ctx context.Context, fileHeader *multipart.FileHeader, key string) (string, error)
}

type DepositService struct {
	Store    store.Store
	Accounts *AccountService
	Ledger   *LedgerService
	Settings *SettingsService
	Receipts ReceiptUploader // nil disables receipt uploads
	Metrics  *metrics.Metrics
	Log      *logrus.Entry
	Now      func() time.Time
}

func NewDepositService(st store.Store, accounts *AccountService, ledger *LedgerService, settings *SettingsService, receipts ReceiptUploader, m *metrics.Metrics, log *logrus.Entry) *DepositService {
	return &DepositService{
		Store:    st,
		Accounts: accounts,
		Ledger:   ledger,
		Settings: settings,
		Receipts: receipts,
		Metrics:  m,
		Log:      log.WithField("component", "deposits"),
		Now:      time.Now,
	}
}

type DepositInput struct {
	TransactionID   string                `json:"transaction_id" form:"transaction_id" validate:"notblank,max=128"`
	AmountDeposited float64               `json:"amount_deposited" form:"amount_deposited" validate:"gt=0"`
	Receipt         *multipart.FileHeader `json:"-" form:"-"`
}

var receiptExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".pdf": true}

const maxReceiptSize = 5 << 20

// Submit creates a pending deposit. The coins to credit are fixed now from the
// current conversion rate.
func (s *DepositService) Submit(ctx context.Context, id Identity, in DepositInput) (*models.DepositRequest, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	acct, err := s.Accounts.GetAccount(ctx, id.UID)
	if err != nil {
		return nil, err
	}
	settings, err := s.Settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	coins := USDToCoins(in.AmountDeposited, settings.CoinToUSDRate)
	if coins <= 0 {
		return nil, invalid("amount_deposited", "is too small to buy any coins")
	}

	reqID := store.PushKey()
	path, err := requestPath(depositRequestsCollection, reqID)
	if err != nil {
		return nil, err
	}

	receiptURL := ""
	if in.Receipt != nil {
		if s.Receipts == nil {
			return nil, invalid("receipt", "uploads are not enabled")
		}
		ext := strings.ToLower(filepath.Ext(in.Receipt.Filename))
		if !receiptExtensions[ext] {
			return nil, invalid("receipt", "must be an image or PDF")
		}
		if in.Receipt.Size > maxReceiptSize {
			return nil, invalid("receipt", "must be at most 5MB")
		}
		key := fmt.Sprintf("receipts/%s/%s%s", id.UID, reqID, ext)
		receiptURL, err = s.Receipts.UploadReceipt(ctx, in.Receipt, key)
		if err != nil {
			return nil, fmt.Errorf("upload receipt: %w", err)
		}
	}

	email := id.Email
	if email == "" {
		email = acct.Email
	}
	req := &models.DepositRequest{
		RequestMeta: models.RequestMeta{
			ID:        reqID,
			UserID:    id.UID,
			UserEmail: email,
			Status:    models.StatusPending,
			CreatedAt: s.Now().UTC(),
		},
		TransactionID:   strings.TrimSpace(in.TransactionID),
		AmountDeposited: in.AmountDeposited,
		CoinsToReceive:  coins,
		ReceiptURL:      receiptURL,
	}
	if err := s.Store.Set(ctx, path, req); err != nil {
		return nil, err
	}
	s.Metrics.Transitions.WithLabelValues("deposit", string(models.StatusPending)).Inc()
	s.Log.WithFields(logrus.Fields{"deposit_id": reqID, "uid": id.UID, "coins": coins}).Info("deposit submitted")
	return req, nil
}

func (s *DepositService) Approve(ctx context.Context, id, reviewer string) (*models.DepositRequest, error) {
	return s.review(ctx, id, models.StatusApproved, reviewer)
}

func (s *DepositService) Reject(ctx context.Context, id, reviewer string) (*models.DepositRequest, error) {
	return s.review(ctx, id, models.StatusRejected, reviewer)
}

func (s *DepositService) review(ctx context.Context, id string, status models.RequestStatus, reviewer string) (*models.DepositRequest, error) {
	path, err := requestPath(depositRequestsCollection, id)
	if err != nil {
		return nil, err
	}
	req, err := transition[models.DepositRequest](ctx, s.Store, path, status, reviewer, s.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.Metrics.Transitions.WithLabelValues("deposit", string(status)).Inc()
	s.Log.WithFields(logrus.Fields{"deposit_id": id, "status": status, "reviewer": reviewer}).Info("deposit reviewed")

	settled, err := s.Settle(ctx, req)
	if err != nil {
		return req, nil
	}
	return settled, nil
}

// Settle credits an approved deposit once and marks the request settled.
func (s *DepositService) Settle(ctx context.Context, req *models.DepositRequest) (*models.DepositRequest, error) {
	if !unsettled(&req.RequestMeta) {
		return req, nil
	}
	path, err := requestPath(depositRequestsCollection, req.ID)
	if err != nil {
		return nil, err
	}
	log := s.Log.WithFields(logrus.Fields{"deposit_id": req.ID, "requester_id": req.UserID})

	if req.Status == models.StatusApproved {
		if settlementExpired(&req.RequestMeta, s.Now().UTC()) {
			s.Metrics.CascadeFailures.WithLabelValues("deposit").Inc()
			log.Error("approved deposit was never settled and is past the settlement window")
			return nil, ErrSettlementExpired
		}
		if _, err := s.Ledger.applyCredit(ctx, req.UserID, path, req.CoinsToReceive); err != nil {
			s.Metrics.CascadeFailures.WithLabelValues("deposit").Inc()
			log.WithError(err).Error("deposit approved but the credit failed")
			return nil, err
		}
	}

	settled, err := markSettled[models.DepositRequest](ctx, s.Store, path, s.Now().UTC())
	if err != nil {
		s.Metrics.CascadeFailures.WithLabelValues("deposit").Inc()
		log.WithError(err).Error("deposit credited but the request could not be marked settled")
		return nil, err
	}
	return settled, nil
}

func (s *DepositService) Get(ctx context.Context, id string) (*models.DepositRequest, error) {
	path, err := requestPath(depositRequestsCollection, id)
	if err != nil {
		return nil, err
	}
	return loadRequest[models.DepositRequest](ctx, s.Store, path)
}

func (s *DepositService) List(ctx context.Context, filter RequestFilter) ([]*models.DepositRequest, error) {
	return listRequests[models.DepositRequest](ctx, s.Store, depositRequestsCollection, filter)
}
