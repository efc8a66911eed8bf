package service

import (
	"context"
	"time"

	"github.com/meridian-studio/ms-go-billing/app/entity"
	"github.com/meridian-studio/ms-go-billing/app/metrics"
)

// RunSubscriptionSweep reconciles subscriptions that have not been touched by
// a webhook for the configured window. The processor is the source of truth;
// local status catches up to it. Missed deliveries are the usual cause.
func (s *BillingService) RunSubscriptionSweep(ctx context.Context) error {
	staleBefore := time.Now().UTC().Add(-s.billingCfg.SweepStaleAfter)

	stale, err := s.subscriptionRepo.ListStaleNonTerminal(ctx, staleBefore, s.sweepBatchSize())
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		s.logger.Debug("Subscription sweep found nothing stale")
		return nil
	}

	var firstErr error
	reconciled := 0
	for _, subscription := range stale {
		changed, err := s.reconcileSubscription(ctx, subscription)
		if err != nil {
			s.logger.WithError(err).
				WithField("subscription_id", subscription.SubscriptionID).
				Warn("Subscription sweep item failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if changed {
			reconciled++
		}
	}

	if reconciled > 0 {
		metrics.SweepReconciled.Add(float64(reconciled))
	}
	s.logger.WithField("checked", len(stale)).WithField("reconciled", reconciled).Info("Subscription sweep finished")

	return firstErr
}

func (s *BillingService) reconcileSubscription(ctx context.Context, subscription *entity.Subscription) (bool, error) {
	upstream, err := s.provider.GetSubscription(ctx, subscription.SubscriptionID)
	if err != nil {
		return false, err
	}

	newStatus := entity.ParseSubscriptionStatus(upstream.Status)
	if newStatus == subscription.Status || !subscription.Status.CanTransition(newStatus) {
		return false, nil
	}

	_, err = s.subscriptionRepo.UpdateStatus(ctx, subscription.SubscriptionID, newStatus, upstream.PeriodEnd, time.Now().UTC())
	if err != nil {
		return false, err
	}

	return true, nil
}
