package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/etundra-bsmith/approval-reminder/internal/mailer"
	"github.com/etundra-bsmith/approval-reminder/internal/ordercloud"
)

var errBoom = errors.New("boom")

// fakePlatform implements PlatformAPI with per-method hooks and records
// every call. All methods are safe for the pipeline's concurrent use.
type fakePlatform struct {
	mu sync.Mutex

	listOrdersFn    func(direction string, opts ordercloud.ListOptions) (*ordercloud.OrderPage, error)
	listApprovalsFn func(orderID string, opts ordercloud.ListOptions) (*ordercloud.ApprovalPage, error)
	listUsersFn     func(buyerID string, opts ordercloud.ListOptions) (*ordercloud.UserPage, error)
	patchOrderFn    func(orderID string, patch ordercloud.OrderPatch) error

	orderListCalls    []ordercloud.ListOptions
	approvalCalls     []string
	userCalls         []string
	patchedOrders     []string
	patchedXP         map[string]string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{patchedXP: make(map[string]string)}
}

func (f *fakePlatform) ListOrders(_ context.Context, direction string, opts ordercloud.ListOptions) (*ordercloud.OrderPage, error) {
	f.mu.Lock()
	f.orderListCalls = append(f.orderListCalls, opts)
	f.mu.Unlock()
	if f.listOrdersFn == nil {
		return &ordercloud.OrderPage{Meta: ordercloud.Meta{TotalPages: 1}}, nil
	}
	return f.listOrdersFn(direction, opts)
}

func (f *fakePlatform) ListApprovals(_ context.Context, _ string, orderID string, opts ordercloud.ListOptions) (*ordercloud.ApprovalPage, error) {
	f.mu.Lock()
	f.approvalCalls = append(f.approvalCalls, orderID)
	f.mu.Unlock()
	if f.listApprovalsFn == nil {
		return &ordercloud.ApprovalPage{Meta: ordercloud.Meta{TotalPages: 1}}, nil
	}
	return f.listApprovalsFn(orderID, opts)
}

func (f *fakePlatform) ListUsers(_ context.Context, buyerID string, opts ordercloud.ListOptions) (*ordercloud.UserPage, error) {
	f.mu.Lock()
	f.userCalls = append(f.userCalls, opts.Filters["userGroupID"])
	f.mu.Unlock()
	if f.listUsersFn == nil {
		return &ordercloud.UserPage{Meta: ordercloud.Meta{TotalPages: 1}}, nil
	}
	return f.listUsersFn(buyerID, opts)
}

func (f *fakePlatform) PatchOrder(_ context.Context, _ string, orderID string, patch ordercloud.OrderPatch) error {
	var err error
	if f.patchOrderFn != nil {
		err = f.patchOrderFn(orderID, patch)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		f.patchedOrders = append(f.patchedOrders, orderID)
		f.patchedXP[orderID] = patch.XP.Over48
	}
	return err
}

func (f *fakePlatform) patched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.patchedOrders...)
}

// fakeSender implements TemplateSender and records every send.
type fakeSender struct {
	mu     sync.Mutex
	sendFn func(templateName string, msg mailer.Message) ([]mailer.SendResult, error)
	sends  []mailer.Message
}

func (f *fakeSender) SendTemplate(_ context.Context, templateName string, msg mailer.Message) ([]mailer.SendResult, error) {
	f.mu.Lock()
	f.sends = append(f.sends, msg)
	f.mu.Unlock()
	if f.sendFn == nil {
		results := make([]mailer.SendResult, len(msg.To))
		for i, to := range msg.To {
			results[i] = mailer.SendResult{Email: to.Email, Status: "sent"}
		}
		return results, nil
	}
	return f.sendFn(templateName, msg)
}

func (f *fakeSender) sentMessages() []mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mailer.Message(nil), f.sends...)
}

// Test data builders.

func testOrder(id, buyerID string) ordercloud.Order {
	return ordercloud.Order{
		ID:            id,
		Status:        ordercloud.StatusAwaitingApproval,
		DateSubmitted: time.Date(2024, time.June, 9, 12, 0, 0, 0, time.UTC),
		FromCompanyID: buyerID,
		FromUserID:    "submitter-" + id,
		FromUser:      &ordercloud.OrderUser{ID: "submitter-" + id, FirstName: "Ada", LastName: "Lovelace"},
		XP:            ordercloud.OrderXP{Over48: ordercloud.ReminderNotSent},
	}
}

func approvalPage(groupIDs ...string) *ordercloud.ApprovalPage {
	items := make([]ordercloud.Approval, len(groupIDs))
	for i, g := range groupIDs {
		items[i] = ordercloud.Approval{ApprovingGroupID: g, Status: ordercloud.StatusPending}
	}
	return &ordercloud.ApprovalPage{Meta: ordercloud.Meta{TotalPages: 1, TotalCount: len(items)}, Items: items}
}

func userPage(emails ...string) *ordercloud.UserPage {
	items := make([]ordercloud.User, len(emails))
	for i, e := range emails {
		items[i] = ordercloud.User{ID: e, Email: e}
	}
	return &ordercloud.UserPage{Meta: ordercloud.Meta{TotalPages: 1, TotalCount: len(items)}, Items: items}
}
