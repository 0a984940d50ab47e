package worker

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/escrow-pay/internal/payment/domain"
)

// processEvent applies one callback event under the processing timeout
func (w *Worker) processEvent(ctx context.Context, msg *eventMessage) error {
	processCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.processTimeout)
	defer cancel()

	err := w.applier.Apply(processCtx, msg.Event)
	if err == nil {
		w.logger.Info("Callback event applied",
			slog.String("kind", string(msg.Event.Kind)),
			slog.String("correlation_id", msg.Event.CorrelationID),
		)
		return nil
	}

	if processCtx.Err() != nil {
		return domain.NewRetryableError(processCtx.Err())
	}
	return err
}
