package services

import (
	"context"
	"time"

	"coin-rewards-ledger/metrics"
	"coin-rewards-ledger/models"
	"coin-rewards-ledger/store"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// Reconciler finds terminal requests whose settlement was interrupted and runs it again.
type Reconciler struct {
	Store       store.Store
	Withdrawals *WithdrawService
	Deposits    *DepositService
	Promotions  *VideoPromotionService
	Metrics     *metrics.Metrics
	Log         *logrus.Entry
}

func NewReconciler(st store.Store, w *WithdrawService, d *DepositService, v *VideoPromotionService, m *metrics.Metrics, log *logrus.Entry) *Reconciler {
	return &Reconciler{
		Store:       st,
		Withdrawals: w,
		Deposits:    d,
		Promotions:  v,
		Metrics:     m,
		Log:         log.WithField("component", "reconciler"),
	}
}

type ReconcileReport struct {
	Repaired int `json:"repaired"`
	Failed   int `json:"failed"`
}

// RunOnce re-settles every unsettled terminal request.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	withdrawals, err := r.Withdrawals.List(ctx, RequestFilter{})
	if err != nil {
		return report, err
	}
	for _, req := range withdrawals {
		if unsettled(&req.RequestMeta) {
			_, err := r.Withdrawals.Settle(ctx, req)
			r.record(&report, "withdrawal", &req.RequestMeta, err)
		}
	}

	deposits, err := r.Deposits.List(ctx, RequestFilter{})
	if err != nil {
		return report, err
	}
	for _, req := range deposits {
		if unsettled(&req.RequestMeta) {
			_, err := r.Deposits.Settle(ctx, req)
			r.record(&report, "deposit", &req.RequestMeta, err)
		}
	}

	promotions, err := r.Promotions.List(ctx, RequestFilter{})
	if err != nil {
		return report, err
	}
	for _, promo := range promotions {
		if unsettled(&promo.RequestMeta) {
			_, err := r.Promotions.Settle(ctx, promo)
			r.record(&report, "video_promotion", &promo.RequestMeta, err)
		}
	}

	if report.Repaired > 0 || report.Failed > 0 {
		r.Log.WithFields(logrus.Fields{"repaired": report.Repaired, "failed": report.Failed}).Warn("reconciliation pass finished")
	}
	return report, nil
}

func (r *Reconciler) record(report *ReconcileReport, kind string, meta *models.RequestMeta, err error) {
	log := r.Log.WithFields(logrus.Fields{"kind": kind, "request_id": meta.ID, "status": meta.Status})
	if err != nil {
		report.Failed++
		log.WithError(err).Error("request is still unsettled")
		return
	}
	report.Repaired++
	r.Metrics.Reconciled.WithLabelValues(kind).Inc()
	log.Warn("settled a half-applied request")
}

// Start runs RunOnce every interval until the returned scheduler is shut down.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := r.RunOnce(ctx); err != nil {
				r.Log.WithError(err).Error("reconciliation pass failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}
	sched.Start()
	r.Log.WithField("interval", interval.String()).Info("reconciliation scheduler started")
	return sched, nil
}
