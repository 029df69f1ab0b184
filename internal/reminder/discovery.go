package reminder

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/etundra-bsmith/approval-reminder/internal/ordercloud"
)

// DiscovererOptions configures stale-order discovery.
type DiscovererOptions struct {
	// Threshold is how long an order may sit awaiting approval before it
	// counts as stale.
	Threshold time.Duration
	PageSize  int
}

// DefaultDiscovererOptions returns the settings the job has always run
// with: 48 hours, platform-maximum pages.
func DefaultDiscovererOptions() DiscovererOptions {
	return DiscovererOptions{
		Threshold: 48 * time.Hour,
		PageSize:  ordercloud.DefaultPageSize,
	}
}

// Discoverer finds orders that are awaiting approval, older than the
// threshold, and not yet reminded.
type Discoverer struct {
	api    PlatformAPI
	logger *zap.Logger
	opts   DiscovererOptions
	now    func() time.Time
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(api PlatformAPI, logger *zap.Logger, opts DiscovererOptions) *Discoverer {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultDiscovererOptions().Threshold
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultDiscovererOptions().PageSize
	}
	return &Discoverer{
		api:    api,
		logger: logger.Named("discovery"),
		opts:   opts,
		now:    time.Now,
	}
}

// FindStaleOrders lists every order matching the staleness criteria,
// following pagination to exhaustion. An empty result is not an error: it
// is the normal outcome of a quiet period and short-circuits the run.
// A transport failure returns a *DiscoveryError and aborts the run.
func (d *Discoverer) FindStaleOrders(ctx context.Context) ([]ordercloud.Order, error) {
	cutoff := d.now().Add(-d.opts.Threshold).UTC()
	d.logger.Info("Retrieving orders awaiting approval past threshold",
		zap.Duration("threshold", d.opts.Threshold),
		zap.Time("cutoff", cutoff),
	)

	filters := map[string]string{
		"Status":        ordercloud.StatusAwaitingApproval,
		"DateSubmitted": "<" + cutoff.Format(time.RFC3339),
		"xp.Over48":     ordercloud.ReminderNotSent,
	}

	var orders []ordercloud.Order
	for page := 1; ; page++ {
		result, err := d.api.ListOrders(ctx, Direction, ordercloud.ListOptions{
			Page:     page,
			PageSize: d.opts.PageSize,
			Filters:  filters,
		})
		if err != nil {
			return nil, &DiscoveryError{Err: err}
		}
		orders = append(orders, result.Items...)
		if page >= result.Meta.TotalPages {
			break
		}
	}

	if len(orders) == 0 {
		d.logger.Info("No stale orders found")
		return nil, nil
	}

	d.logger.Info("Stale orders found",
		zap.Int("count", len(orders)),
		zap.String("order_ids", joinOrderIDs(orders)),
	)
	return orders, nil
}

func joinOrderIDs(orders []ordercloud.Order) string {
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return strings.Join(ids, ",")
}
