/**
 * @description
 * Scheduled job implementations for the payment-service.
 */
package app

import (
	"context"
	"log/slog"
	"time"
)

const lapseJobTimeout = 2 * time.Minute

// SubscriptionLapser is the store operation used by the lapse job.
type SubscriptionLapser interface {
	LapseExpiredSubscriptions(ctx context.Context, now time.Time) (int64, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo   SubscriptionLapser
	logger *slog.Logger
	now    func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo SubscriptionLapser, logger *slog.Logger) *Jobs {
	return &Jobs{repo: repo, logger: logger, now: time.Now}
}

// LapseExpiredSubscriptions deactivates paid subscriptions whose period has ended.
func (j *Jobs) LapseExpiredSubscriptions() {
	j.logger.Info("starting subscription lapse job")
	ctx, cancel := context.WithTimeout(context.Background(), lapseJobTimeout)
	defer cancel()

	lapsed, err := j.repo.LapseExpiredSubscriptions(ctx, j.now().UTC())
	if err != nil {
		j.logger.Error("failed to lapse expired subscriptions", "error", err)
		return
	}

	j.logger.Info("subscription lapse job finished", "lapsed", lapsed)
}
