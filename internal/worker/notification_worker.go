package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/deskline/helpdesk-service/internal/service"
)

const (
	minRelayBackoff = 500 * time.Millisecond
	maxRelayBackoff = 30 * time.Second
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// RelayRunner is a blocking subscription loop, such as realtime.RedisRelay.
type RelayRunner interface {
	Run(ctx context.Context, ready chan<- struct{}) error
}

// RunRelay keeps relay subscribed until ctx is done, resubscribing with
// exponential backoff whenever the subscription drops. Events published
// while it is down are not replayed.
func RunRelay(ctx context.Context, relay RelayRunner, logger *zap.Logger) {
	if relay == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	backoff := minRelayBackoff
	for {
		started := time.Now()
		err := relay.Run(ctx, nil)
		if ctx.Err() != nil {
			logger.Info("realtime relay stopped")
			return
		}
		if time.Since(started) > maxRelayBackoff {
			backoff = minRelayBackoff
		}
		logger.Warn("realtime relay interrupted; resubscribing",
			zap.Error(err),
			zap.Duration("backoff", backoff))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("realtime relay stopped")
			return
		case <-timer.C:
		}
		backoff *= 2
		if backoff > maxRelayBackoff {
			backoff = maxRelayBackoff
		}
	}
}
