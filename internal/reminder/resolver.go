package reminder

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/etundra-bsmith/approval-reminder/internal/ordercloud"
)

// Resolver turns discovered orders into per-order approver recipient
// lists by walking each order's pending approval requests and the members
// of each request's approving group.
type Resolver struct {
	api      PlatformAPI
	logger   *zap.Logger
	pageSize int
}

// NewResolver creates a Resolver.
func NewResolver(api PlatformAPI, logger *zap.Logger) *Resolver {
	return &Resolver{
		api:      api,
		logger:   logger.Named("resolver"),
		pageSize: ordercloud.DefaultPageSize,
	}
}

// orderResolution is one order's fan-out result. Each outer goroutine
// writes only its own slot; the parent reduces the slice after the join.
type orderResolution struct {
	ok       bool
	reminder OrderReminder
}

// ResolveRecipients resolves every order concurrently and, within each
// order, every approving group concurrently. Failures are scoped, never
// fatal: a failed approval listing drops that one order, a failed group
// listing drops that one group's contribution. An order whose groups all
// failed (or that has no pending approvals) stays in the set with an empty
// recipient list so it still reaches the completion marker.
func (r *Resolver) ResolveRecipients(ctx context.Context, orders []ordercloud.Order) RecipientSet {
	r.logger.Info("Resolving approving users for each order", zap.Int("orders", len(orders)))

	results := make([]orderResolution, len(orders))
	g, ctx := errgroup.WithContext(ctx)
	for i, order := range orders {
		i, order := i, order
		g.Go(func() error {
			results[i] = r.resolveOrder(ctx, order)
			return nil
		})
	}
	// Goroutines only ever return nil; the join is a pure barrier.
	_ = g.Wait()

	set := make(RecipientSet, len(orders))
	for _, res := range results {
		if res.ok {
			set[res.reminder.Order.ID] = res.reminder
		}
	}
	return set
}

// resolveOrder lists one order's pending approvals and fans out over the
// approving groups. Runs on its own goroutine; touches no shared state.
func (r *Resolver) resolveOrder(ctx context.Context, order ordercloud.Order) orderResolution {
	approvals, err := r.api.ListApprovals(ctx, Direction, order.ID, ordercloud.ListOptions{
		PageSize: r.pageSize,
		Filters:  map[string]string{"Status": ordercloud.StatusPending},
	})
	if err != nil {
		r.logger.Error("Failed to retrieve approvals, dropping order from this run",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		return orderResolution{}
	}
	r.logger.Info("Order approvals retrieved",
		zap.String("order_id", order.ID),
		zap.Int("pending", len(approvals.Items)),
	)

	// Inner fan-out over approving groups. Each goroutine fills only its
	// own slot; the merge below happens after the join.
	groupEmails := make([][]string, len(approvals.Items))
	g, ctx := errgroup.WithContext(ctx)
	for i, approval := range approvals.Items {
		i, approval := i, approval
		g.Go(func() error {
			emails, err := r.groupMemberEmails(ctx, order.FromCompanyID, approval.ApprovingGroupID)
			if err != nil {
				r.logger.Error("Failed to retrieve users in approving group, dropping its contribution",
					zap.String("order_id", order.ID),
					zap.String("group_id", approval.ApprovingGroupID),
					zap.Error(err),
				)
				return nil
			}
			r.logger.Info("Approving group members retrieved",
				zap.String("order_id", order.ID),
				zap.String("group_id", approval.ApprovingGroupID),
				zap.Int("members", len(emails)),
			)
			groupEmails[i] = emails
			return nil
		})
	}
	_ = g.Wait()

	// Union of every group that resolved, duplicates preserved.
	var recipients []string
	for _, emails := range groupEmails {
		recipients = append(recipients, emails...)
	}

	return orderResolution{
		ok: true,
		reminder: OrderReminder{
			Order:      projectOrder(order),
			Recipients: recipients,
		},
	}
}

// groupMemberEmails pages through one approving group's members and
// collects their addresses.
func (r *Resolver) groupMemberEmails(ctx context.Context, companyID, groupID string) ([]string, error) {
	var emails []string
	for page := 1; ; page++ {
		users, err := r.api.ListUsers(ctx, companyID, ordercloud.ListOptions{
			Page:     page,
			PageSize: r.pageSize,
			Filters:  map[string]string{"userGroupID": groupID},
		})
		if err != nil {
			return nil, err
		}
		for _, u := range users.Items {
			if u.Email != "" {
				emails = append(emails, u.Email)
			}
		}
		if page >= users.Meta.TotalPages {
			return emails, nil
		}
	}
}

// projectOrder reduces an order to the metadata the reminder message needs.
func projectOrder(order ordercloud.Order) OrderMeta {
	meta := OrderMeta{
		ID:            order.ID,
		FromUserID:    order.FromUserID,
		DateSubmitted: order.DateSubmitted,
	}
	if order.FromUser != nil {
		meta.FirstName = order.FromUser.FirstName
		meta.LastName = order.FromUser.LastName
	}
	return meta
}
