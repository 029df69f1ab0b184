package reminder

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/etundra-bsmith/approval-reminder/internal/ordercloud"
)

// Marker writes the reminder flag back onto processed orders so future
// runs skip them. It runs for every order that reached the stage whether
// or not its notification delivered: the flag guards against duplicate
// reminders, and a mark failure only means one extra reminder next run.
type Marker struct {
	api    PlatformAPI
	logger *zap.Logger
}

// NewMarker creates a Marker.
func NewMarker(api PlatformAPI, logger *zap.Logger) *Marker {
	return &Marker{
		api:    api,
		logger: logger.Named("marker"),
	}
}

// MarkComplete patches every order's reminder flag to sent, concurrently.
// Per-order failures are logged and counted; there is no retry and no
// compensation, and the run never fails here.
func (m *Marker) MarkComplete(ctx context.Context, orderIDs []string) []MarkOutcome {
	outcomes := make([]MarkOutcome, len(orderIDs))
	g, ctx := errgroup.WithContext(ctx)
	for i, orderID := range orderIDs {
		i, orderID := i, orderID
		g.Go(func() error {
			outcomes[i] = m.markOrder(ctx, orderID)
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range outcomes {
		status := "failed"
		if out.Marked {
			status = "written"
		}
		marksTotal.WithLabelValues(status).Inc()
	}
	return outcomes
}

func (m *Marker) markOrder(ctx context.Context, orderID string) MarkOutcome {
	patch := ordercloud.OrderPatch{XP: ordercloud.OrderXP{Over48: ordercloud.ReminderSent}}
	if err := m.api.PatchOrder(ctx, Direction, orderID, patch); err != nil {
		m.logger.Error("Failure marking order complete",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		return MarkOutcome{OrderID: orderID, Err: err}
	}
	m.logger.Info("Order marked complete", zap.String("order_id", orderID))
	return MarkOutcome{OrderID: orderID, Marked: true}
}
