package services

import (
	"context"
	"strings"
	"time"

	"coin-rewards-ledger/metrics"
	"coin-rewards-ledger/models"
	"coin-rewards-ledger/store"

	"github.com/sirupsen/logrus"
)

// VideoPromotionService runs the video promotion workflow. videoPromotions/{id}
// is authoritative; users/{uid}/videoPromotions/{id} is a replica rewritten
// from it whenever the request changes.
type VideoPromotionService struct {
	Store    store.Store
	Accounts *AccountService
	Ledger   *LedgerService
	Settings *SettingsService
	Metrics  *metrics.Metrics
	Log      *logrus.Entry
	Now      func() time.Time
}

func NewVideoPromotionService(st store.Store, accounts *AccountService, ledger *LedgerService, settings *SettingsService, m *metrics.Metrics, log *logrus.Entry) *VideoPromotionService {
	return &VideoPromotionService{
		Store:    st,
		Accounts: accounts,
		Ledger:   ledger,
		Settings: settings,
		Metrics:  m,
		Log:      log.WithField("component", "video_promotions"),
		Now:      time.Now,
	}
}

type VideoPromotionInput struct {
	VideoLink string `json:"video_link" validate:"required,http_url,max=512"`
}

// Submit stores a pending promotion and its replica. The reward is fixed now.
func (s *VideoPromotionService) Submit(ctx context.Context, id Identity, in VideoPromotionInput) (*models.VideoPromotion, error) {
	in.VideoLink = strings.TrimSpace(in.VideoLink)
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

	promoID := store.PushKey()
	path, err := requestPath(videoPromotionsCollection, promoID)
	if err != nil {
		return nil, err
	}
	email := id.Email
	if email == "" {
		email = acct.Email
	}
	promo := &models.VideoPromotion{
		RequestMeta: models.RequestMeta{
			ID:        promoID,
			UserID:    id.UID,
			UserEmail: email,
			Status:    models.StatusPending,
			CreatedAt: s.Now().UTC(),
		},
		VideoLink: in.VideoLink,
		Coins:     settings.YoutubePromotionCoins,
	}
	if err := s.Store.Set(ctx, path, promo); err != nil {
		return nil, err
	}
	if err := s.mirror(ctx, promo); err != nil {
		s.Log.WithError(err).WithField("promotion_id", promoID).Error("promotion stored but its replica was not written")
		return nil, err
	}
	s.Metrics.Transitions.WithLabelValues("video_promotion", string(models.StatusPending)).Inc()
	s.Log.WithFields(logrus.Fields{"promotion_id": promoID, "uid": id.UID}).Info("video promotion submitted")
	return promo, nil
}

func (s *VideoPromotionService) mirror(ctx context.Context, promo *models.VideoPromotion) error {
	path, err := userVideoPromotionPath(promo.UserID, promo.ID)
	if err != nil {
		return err
	}
	return s.Store.Set(ctx, path, promo)
}

func (s *VideoPromotionService) Accept(ctx context.Context, id, reviewer string) (*models.VideoPromotion, error) {
	return s.review(ctx, id, models.StatusAccepted, reviewer)
}

func (s *VideoPromotionService) Reject(ctx context.Context, id, reviewer string) (*models.VideoPromotion, error) {
	return s.review(ctx, id, models.StatusRejected, reviewer)
}

func (s *VideoPromotionService) review(ctx context.Context, id string, status models.RequestStatus, reviewer string) (*models.VideoPromotion, error) {
	path, err := requestPath(videoPromotionsCollection, id)
	if err != nil {
		return nil, err
	}
	promo, err := transition[models.VideoPromotion](ctx, s.Store, path, status, reviewer, s.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.Metrics.Transitions.WithLabelValues("video_promotion", string(status)).Inc()
	s.Log.WithFields(logrus.Fields{"promotion_id": id, "status": status, "reviewer": reviewer}).Info("video promotion reviewed")

	settled, err := s.Settle(ctx, promo)
	if err != nil {
		return promo, nil
	}
	return settled, nil
}

// Settle credits an accepted promotion once, converges the replica and marks
// the authoritative copy settled.
func (s *VideoPromotionService) Settle(ctx context.Context, promo *models.VideoPromotion) (*models.VideoPromotion, error) {
	if !unsettled(&promo.RequestMeta) {
		return promo, nil
	}
	path, err := requestPath(videoPromotionsCollection, promo.ID)
	if err != nil {
		return nil, err
	}
	log := s.Log.WithFields(logrus.Fields{"promotion_id": promo.ID, "requester_id": promo.UserID})
	now := s.Now().UTC()

	if promo.Status == models.StatusAccepted {
		if settlementExpired(&promo.RequestMeta, now) {
			s.Metrics.CascadeFailures.WithLabelValues("video_promotion").Inc()
			log.Error("accepted video promotion was never settled and is past the settlement window")
			return nil, ErrSettlementExpired
		}
		if _, err := s.Ledger.applyCredit(ctx, promo.UserID, path, promo.Coins); err != nil {
			s.Metrics.CascadeFailures.WithLabelValues("video_promotion").Inc()
			log.WithError(err).Error("video promotion accepted but the credit failed")
			return nil, err
		}
	}

	// the replica is written as it will look once settled
	replica := *promo
	replica.Settled = true
	replica.SettledAt = &now
	if err := s.mirror(ctx, &replica); err != nil {
		s.Metrics.CascadeFailures.WithLabelValues("video_promotion").Inc()
		log.WithError(err).Error("video promotion reviewed but the user copy was not updated")
		return nil, err
	}

	settled, err := markSettled[models.VideoPromotion](ctx, s.Store, path, now)
	if err != nil {
		s.Metrics.CascadeFailures.WithLabelValues("video_promotion").Inc()
		log.WithError(err).Error("video promotion applied but the request could not be marked settled")
		return nil, err
	}
	return settled, nil
}

func (s *VideoPromotionService) Get(ctx context.Context, id string) (*models.VideoPromotion, error) {
	path, err := requestPath(videoPromotionsCollection, id)
	if err != nil {
		return nil, err
	}
	return loadRequest[models.VideoPromotion](ctx, s.Store, path)
}

// List reads the authoritative copies.
func (s *VideoPromotionService) List(ctx context.Context, filter RequestFilter) ([]*models.VideoPromotion, error) {
	return listRequests[models.VideoPromotion](ctx, s.Store, videoPromotionsCollection, filter)
}

// ListForUser reads the user's replicas.
func (s *VideoPromotionService) ListForUser(ctx context.Context, uid string) ([]*models.VideoPromotion, error) {
	coll, err := userVideoPromotions(uid)
	if err != nil {
		return nil, err
	}
	return listRequests[models.VideoPromotion](ctx, s.Store, coll, RequestFilter{})
}
