package usage

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/quotaflow/quotaflow-backend/pkg/logger"
)

// Runner pumps the usage subscription into a Consumer.
type Runner struct {
	subscription *gcppubsub.Subscriber
	consumer     *Consumer
	logg         *logger.Logger
}

// NewRunner builds a runner for the given subscription.
func NewRunner(subscription *gcppubsub.Subscriber, consumer *Consumer, logg *logger.Logger) (*Runner, error) {
	if subscription == nil {
		return nil, errors.New("usage subscription is required")
	}
	if consumer == nil {
		return nil, errors.New("usage consumer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Runner{subscription: subscription, consumer: consumer, logg: logg}, nil
}

// Run consumes usage messages until the context is canceled. Messages whose
// processing fails transiently are nacked for redelivery.
func (r *Runner) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return r.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		logCtx := r.logg.WithFields(innerCtx, map[string]any{
			"message_id": msg.ID,
		})
		if err := r.consumer.Process(logCtx, msg.Data); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}
