// Package reminder implements the scheduled approval reminder pipeline:
// discover orders stuck awaiting approval past a threshold, resolve the
// users authorized to approve each one, email each order's approvers once,
// and patch the reminder flag back onto the order so the next run skips it.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/etundra-bsmith/approval-reminder/internal/mailer"
	"github.com/etundra-bsmith/approval-reminder/internal/ordercloud"
)

// Direction is the order direction the job queries. Orders submitted by
// buyers arrive as incoming orders on the marketplace owner.
const Direction = "incoming"

// PlatformAPI is the commerce platform surface the pipeline consumes.
// *ordercloud.Client satisfies it; tests substitute fakes.
type PlatformAPI interface {
	ListOrders(ctx context.Context, direction string, opts ordercloud.ListOptions) (*ordercloud.OrderPage, error)
	ListApprovals(ctx context.Context, direction, orderID string, opts ordercloud.ListOptions) (*ordercloud.ApprovalPage, error)
	ListUsers(ctx context.Context, buyerID string, opts ordercloud.ListOptions) (*ordercloud.UserPage, error)
	PatchOrder(ctx context.Context, direction, orderID string, patch ordercloud.OrderPatch) error
}

// TemplateSender is the transactional email surface the pipeline consumes.
// *mailer.Mailer satisfies it.
type TemplateSender interface {
	SendTemplate(ctx context.Context, templateName string, msg mailer.Message) ([]mailer.SendResult, error)
}

// OrderMeta is the metadata subset of an order carried into the reminder
// message: who submitted it and when.
type OrderMeta struct {
	ID            string
	FromUserID    string
	FirstName     string
	LastName      string
	DateSubmitted time.Time
}

// OrderReminder pairs one order's metadata with every email address
// authorized to approve it. Recipients may contain duplicates when a user
// belongs to more than one approving group; the provider tolerates that
// and de-duplication is deliberately not promised.
type OrderReminder struct {
	Order      OrderMeta
	Recipients []string
}

// RecipientSet maps order ID to its resolved reminder. Built once per run
// by the resolver at its fan-in point and read-only afterwards.
type RecipientSet map[string]OrderReminder

// NotificationOutcome records one order's send attempt.
type NotificationOutcome struct {
	OrderID    string
	Recipients []string
	Delivered  bool
	Err        error
}

// MarkOutcome records one order's reminder-flag patch attempt.
type MarkOutcome struct {
	OrderID string
	Marked  bool
	Err     error
}

// RunResult aggregates one run's counts. Process lifetime only.
type RunResult struct {
	RunID               string
	OrdersDiscovered    int
	OrdersResolved      int
	NotificationsSent   int
	NotificationsFailed int
	MarksWritten        int
	MarksFailed         int
	Duration            time.Duration
}

// DiscoveryError is a fatal failure listing orders. Unlike every later
// stage, discovery has no per-item scope to contain a failure in, so the
// run aborts.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string { return fmt.Sprintf("discover stale orders: %v", e.Err) }
func (e *DiscoveryError) Unwrap() error { return e.Err }
