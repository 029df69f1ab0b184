package reminder

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/etundra-bsmith/approval-reminder/internal/mailer"
)

// longDate is the submission-date format shown in the reminder template.
const longDate = "January 2, 2006"

// ErrNoRecipients marks an order whose every approving group failed to
// resolve. The send is skipped (there is no one to address) but the order
// still proceeds to completion marking.
var ErrNoRecipients = errors.New("no recipients resolved")

// Notifier renders and dispatches one reminder message per order.
type Notifier struct {
	sender   TemplateSender
	logger   *zap.Logger
	template string
}

// NewNotifier creates a Notifier sending the given template slug.
func NewNotifier(sender TemplateSender, logger *zap.Logger, template string) *Notifier {
	return &Notifier{
		sender:   sender,
		logger:   logger.Named("notifier"),
		template: template,
	}
}

// Notify sends each order's reminder concurrently. Failures become failed
// outcomes, never errors: a bad order must not block the others, and every
// order reaches the completion marker regardless of delivery. That trades
// a possibly missed reminder for guaranteed forward progress; the flag is
// the only idempotency mechanism and it always gets set.
func (n *Notifier) Notify(ctx context.Context, set RecipientSet) []NotificationOutcome {
	n.logger.Info("Building up reminder emails", zap.Int("orders", len(set)))

	reminders := make([]OrderReminder, 0, len(set))
	for _, rem := range set {
		reminders = append(reminders, rem)
	}

	outcomes := make([]NotificationOutcome, len(reminders))
	g, ctx := errgroup.WithContext(ctx)
	for i, rem := range reminders {
		i, rem := i, rem
		g.Go(func() error {
			outcomes[i] = n.notifyOrder(ctx, rem)
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range outcomes {
		status := "failed"
		if out.Delivered {
			status = "sent"
		}
		notificationsTotal.WithLabelValues(status).Inc()
	}
	return outcomes
}

// notifyOrder renders and sends one order's reminder.
func (n *Notifier) notifyOrder(ctx context.Context, rem OrderReminder) NotificationOutcome {
	outcome := NotificationOutcome{OrderID: rem.Order.ID, Recipients: rem.Recipients}

	if len(rem.Recipients) == 0 {
		n.logger.Warn("No recipients resolved for order, skipping send",
			zap.String("order_id", rem.Order.ID))
		outcome.Err = ErrNoRecipients
		return outcome
	}

	results, err := n.sender.SendTemplate(ctx, n.template, buildMessage(rem))
	if err != nil {
		n.logger.Error("Emails not sent",
			zap.String("order_id", rem.Order.ID),
			zap.String("recipients", strings.Join(rem.Recipients, ",")),
			zap.Error(err),
		)
		outcome.Err = err
		return outcome
	}

	delivered, rejected := splitResults(results)
	for _, rej := range rejected {
		n.logger.Warn("Provider rejected recipient",
			zap.String("order_id", rem.Order.ID),
			zap.String("email", rej.Email),
			zap.String("reason", rej.RejectReason),
		)
	}
	if len(delivered) == 0 {
		outcome.Err = errors.New("provider rejected every recipient")
		return outcome
	}

	n.logger.Info("Emails successfully sent",
		zap.String("order_id", rem.Order.ID),
		zap.String("recipients", strings.Join(delivered, ",")),
	)
	outcome.Delivered = true
	return outcome
}

// buildMessage assembles the multi-recipient template message for one order.
func buildMessage(rem OrderReminder) mailer.Message {
	to := make([]mailer.Recipient, len(rem.Recipients))
	for i, email := range rem.Recipients {
		to[i] = mailer.Recipient{Email: email, Type: "to"}
	}
	return mailer.Message{
		To: to,
		GlobalMergeVars: []mailer.MergeVar{
			{Name: "OrderID", Content: rem.Order.ID},
			{Name: "DATESUBMITTED", Content: rem.Order.DateSubmitted.Format(longDate)},
			{Name: "FIRSTNAME", Content: rem.Order.FirstName},
			{Name: "LASTNAME", Content: rem.Order.LastName},
			{Name: "FROMUSERID", Content: rem.Order.FromUserID},
		},
	}
}

// splitResults partitions per-recipient provider results into delivered
// addresses and rejections.
func splitResults(results []mailer.SendResult) (delivered []string, rejected []mailer.SendResult) {
	for _, res := range results {
		switch res.Status {
		case "sent", "queued", "scheduled":
			delivered = append(delivered, res.Email)
		default:
			rejected = append(rejected, res)
		}
	}
	return delivered, rejected
}
