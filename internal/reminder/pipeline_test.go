package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/etundra-bsmith/approval-reminder/internal/mailer"
	"github.com/etundra-bsmith/approval-reminder/internal/ordercloud"
)

// scenarioPlatform returns a platform pre-loaded with the canonical
// two-order scenario: O1 with one approving group of two users, O2 with
// two groups of one user each.
func scenarioPlatform() *fakePlatform {
	platform := newFakePlatform()
	platform.listOrdersFn = func(_ string, opts ordercloud.ListOptions) (*ordercloud.OrderPage, error) {
		return &ordercloud.OrderPage{
			Meta:  ordercloud.Meta{Page: 1, TotalPages: 1, TotalCount: 2},
			Items: []ordercloud.Order{testOrder("O1", "buyer1"), testOrder("O2", "buyer1")},
		}, nil
	}
	platform.listApprovalsFn = func(orderID string, _ ordercloud.ListOptions) (*ordercloud.ApprovalPage, error) {
		if orderID == "O1" {
			return approvalPage("managers"), nil
		}
		return approvalPage("finance", "directors"), nil
	}
	platform.listUsersFn = func(_ string, opts ordercloud.ListOptions) (*ordercloud.UserPage, error) {
		switch opts.Filters["userGroupID"] {
		case "managers":
			return userPage("u1@example.com", "u2@example.com"), nil
		case "finance":
			return userPage("u3@example.com"), nil
		default:
			return userPage("u4@example.com"), nil
		}
	}
	return platform
}

func testDeps(platform *fakePlatform, sender *fakeSender) Dependencies {
	return Dependencies{
		Authenticate: func(context.Context) (string, error) { return "tok", nil },
		NewPlatform:  func(string) (PlatformAPI, error) { return platform, nil },
		Sender:       sender,
	}
}

func testOpts() PipelineOptions {
	return PipelineOptions{Threshold: 48 * time.Hour, Template: "approval-over-48-hours"}
}

func TestPipeline_FullRun(t *testing.T) {
	platform := scenarioPlatform()
	sender := &fakeSender{}
	p := NewPipeline(zap.NewNop(), testDeps(platform, sender), testOpts())

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, p.State())

	assert.Equal(t, 2, result.OrdersDiscovered)
	assert.Equal(t, 2, result.OrdersResolved)
	assert.Equal(t, 2, result.NotificationsSent)
	assert.Equal(t, 0, result.NotificationsFailed)
	assert.Equal(t, 2, result.MarksWritten)
	assert.Equal(t, 0, result.MarksFailed)
	assert.NotEmpty(t, result.RunID)

	assert.Len(t, sender.sentMessages(), 2)
	assert.ElementsMatch(t, []string{"O1", "O2"}, platform.patched())
	assert.Equal(t, ordercloud.ReminderSent, platform.patchedXP["O1"])
	assert.Equal(t, ordercloud.ReminderSent, platform.patchedXP["O2"])
}

func TestPipeline_EmptyDiscoveryShortCircuits(t *testing.T) {
	platform := newFakePlatform()
	sender := &fakeSender{}
	p := NewPipeline(zap.NewNop(), testDeps(platform, sender), testOpts())

	result, err := p.Run(context.Background())
	require.NoError(t, err, "an empty discovery is a successful run")
	assert.Equal(t, StateDone, p.State())
	assert.Equal(t, 0, result.OrdersDiscovered)

	// Notifier and marker are never invoked.
	assert.Empty(t, sender.sentMessages())
	assert.Empty(t, platform.patched())
	assert.Empty(t, platform.approvalCalls)
}

func TestPipeline_AuthFailureAbortsBeforeDiscovery(t *testing.T) {
	platform := newFakePlatform()
	sender := &fakeSender{}
	deps := testDeps(platform, sender)
	authErr := &ordercloud.AuthError{Kind: ordercloud.AuthKindRejected, Message: "bad credentials"}
	deps.Authenticate = func(context.Context) (string, error) { return "", authErr }

	p := NewPipeline(zap.NewNop(), deps, testOpts())
	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, authErr)
	assert.Equal(t, StateAborted, p.State())

	assert.Empty(t, platform.orderListCalls, "discovery never runs after an auth abort")
	assert.Empty(t, sender.sentMessages())
	assert.Empty(t, platform.patched())
}

func TestPipeline_DiscoveryTransportFailureAborts(t *testing.T) {
	platform := newFakePlatform()
	platform.listOrdersFn = func(string, ordercloud.ListOptions) (*ordercloud.OrderPage, error) {
		return nil, errBoom
	}
	sender := &fakeSender{}
	p := NewPipeline(zap.NewNop(), testDeps(platform, sender), testOpts())

	_, err := p.Run(context.Background())
	var discErr *DiscoveryError
	require.ErrorAs(t, err, &discErr)
	assert.Equal(t, StateAborted, p.State())
	assert.Empty(t, sender.sentMessages())
}

func TestPipeline_NotifyFailureStillMarks(t *testing.T) {
	platform := scenarioPlatform()
	sender := &fakeSender{}
	sender.sendFn = func(string, mailer.Message) ([]mailer.SendResult, error) {
		return nil, errBoom
	}
	p := NewPipeline(zap.NewNop(), testDeps(platform, sender), testOpts())

	result, err := p.Run(context.Background())
	require.NoError(t, err, "send failures are outcomes, not run errors")
	assert.Equal(t, StateDone, p.State())

	assert.Equal(t, 0, result.NotificationsSent)
	assert.Equal(t, 2, result.NotificationsFailed)
	// The flag is set regardless of delivery: accepted risk, the orders
	// must not be re-processed every run.
	assert.Equal(t, 2, result.MarksWritten)
	assert.ElementsMatch(t, []string{"O1", "O2"}, platform.patched())
}

func TestPipeline_ResolutionFailureIsolatedPerOrder(t *testing.T) {
	platform := scenarioPlatform()
	platform.listApprovalsFn = func(orderID string, _ ordercloud.ListOptions) (*ordercloud.ApprovalPage, error) {
		if orderID == "O1" {
			return nil, errBoom
		}
		return approvalPage("finance"), nil
	}
	sender := &fakeSender{}
	p := NewPipeline(zap.NewNop(), testDeps(platform, sender), testOpts())

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.OrdersDiscovered)
	assert.Equal(t, 1, result.OrdersResolved)
	assert.Equal(t, 1, result.NotificationsSent)
	// Only the resolved order reaches the marker; O1 stays unmarked and
	// will be retried by the next run.
	assert.ElementsMatch(t, []string{"O2"}, platform.patched())
}

func TestPipeline_DryRunStopsAfterResolution(t *testing.T) {
	platform := scenarioPlatform()
	sender := &fakeSender{}
	opts := testOpts()
	opts.DryRun = true
	p := NewPipeline(zap.NewNop(), testDeps(platform, sender), opts)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, p.State())
	assert.Equal(t, 2, result.OrdersResolved)
	assert.Empty(t, sender.sentMessages())
	assert.Empty(t, platform.patched())
}

func TestPipeline_EmptyRecipientsStillMarked(t *testing.T) {
	// One order whose only approving group fails to resolve: no send is
	// attempted, but the order is still flagged so the next run skips it.
	platform := newFakePlatform()
	platform.listOrdersFn = func(string, ordercloud.ListOptions) (*ordercloud.OrderPage, error) {
		return &ordercloud.OrderPage{
			Meta:  ordercloud.Meta{TotalPages: 1, TotalCount: 1},
			Items: []ordercloud.Order{testOrder("O1", "buyer1")},
		}, nil
	}
	platform.listApprovalsFn = func(string, ordercloud.ListOptions) (*ordercloud.ApprovalPage, error) {
		return approvalPage("bad-group"), nil
	}
	platform.listUsersFn = func(string, ordercloud.ListOptions) (*ordercloud.UserPage, error) {
		return nil, errBoom
	}
	sender := &fakeSender{}
	p := NewPipeline(zap.NewNop(), testDeps(platform, sender), testOpts())

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.OrdersResolved)
	assert.Equal(t, 1, result.NotificationsFailed)
	assert.Empty(t, sender.sentMessages())
	assert.ElementsMatch(t, []string{"O1"}, platform.patched())
}

func TestPipeline_MarkFailureDoesNotFailRun(t *testing.T) {
	platform := scenarioPlatform()
	platform.patchOrderFn = func(orderID string, _ ordercloud.OrderPatch) error {
		if orderID == "O1" {
			return errBoom
		}
		return nil
	}
	sender := &fakeSender{}
	p := NewPipeline(zap.NewNop(), testDeps(platform, sender), testOpts())

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.MarksWritten)
	assert.Equal(t, 1, result.MarksFailed)
	assert.Equal(t, StateDone, p.State())
}
