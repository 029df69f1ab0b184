package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the coordinator's position in the run.
type State string

const (
	StateInit          State = "Init"
	StateAuthenticated State = "Authenticated"
	StateDiscovered    State = "Discovered"
	StateResolved      State = "Resolved"
	StateNotified      State = "Notified"
	StateMarked        State = "Marked"
	StateDone          State = "Done"
	StateAborted       State = "Aborted"
)

// Dependencies are the external collaborators a run needs. The platform
// client cannot exist before authentication succeeds, so it arrives as a
// constructor taking the token; that ordering is what makes the token
// single-writer without a lock.
type Dependencies struct {
	// Authenticate exchanges credentials for a bearer token.
	Authenticate func(ctx context.Context) (string, error)
	// NewPlatform builds the commerce API client from the token.
	NewPlatform func(token string) (PlatformAPI, error)
	// Sender delivers template email.
	Sender TemplateSender
}

// PipelineOptions configures a run.
type PipelineOptions struct {
	Threshold time.Duration
	Template  string
	// DryRun stops after resolution: no sends, no flag patches.
	DryRun bool
}

// Pipeline sequences the four stages of a reminder run and isolates
// per-order failures so one bad order never halts the batch. Only
// authentication and discovery failures abort; past those, the run always
// drains to Done.
type Pipeline struct {
	logger *zap.Logger
	deps   Dependencies
	opts   PipelineOptions
	state  State
}

// NewPipeline creates a Pipeline in the Init state.
func NewPipeline(logger *zap.Logger, deps Dependencies, opts PipelineOptions) *Pipeline {
	return &Pipeline{
		logger: logger,
		deps:   deps,
		opts:   opts,
		state:  StateInit,
	}
}

// State reports the coordinator's current state.
func (p *Pipeline) State() State { return p.state }

// Run executes one full reminder pass. It returns a RunResult on any
// completed run, including the empty-discovery short circuit, and an error
// only for the fatal classes: authentication and discovery transport.
func (p *Pipeline) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := p.logger.With(zap.String("run_id", runID))
	result := &RunResult{RunID: runID}

	token, err := p.deps.Authenticate(ctx)
	if err != nil {
		p.state = StateAborted
		return nil, err
	}
	p.state = StateAuthenticated

	api, err := p.deps.NewPlatform(token)
	if err != nil {
		p.state = StateAborted
		return nil, err
	}

	discoverer := NewDiscoverer(api, log, DiscovererOptions{Threshold: p.opts.Threshold})
	orders, err := discoverer.FindStaleOrders(ctx)
	if err != nil {
		p.state = StateAborted
		return nil, err
	}
	result.OrdersDiscovered = len(orders)
	if len(orders) == 0 {
		// Nothing to remind; the run still succeeds.
		p.state = StateDone
		result.Duration = time.Since(start)
		runDuration.Observe(result.Duration.Seconds())
		log.Info("Process complete", zap.Duration("duration", result.Duration))
		return result, nil
	}
	p.state = StateDiscovered

	set := NewResolver(api, log).ResolveRecipients(ctx, orders)
	result.OrdersResolved = len(set)
	p.state = StateResolved

	if p.opts.DryRun {
		p.state = StateDone
		result.Duration = time.Since(start)
		log.Info("Dry run: skipping notification and completion marking",
			zap.Int("orders_resolved", len(set)))
		return result, nil
	}

	outcomes := NewNotifier(p.deps.Sender, log, p.opts.Template).Notify(ctx, set)
	for _, out := range outcomes {
		if out.Delivered {
			result.NotificationsSent++
		} else {
			result.NotificationsFailed++
		}
	}
	p.state = StateNotified

	// Every resolved order gets marked, delivered or not. A failed send
	// plus a written mark means that reminder is gone for good; a written
	// send plus a failed mark means a duplicate next run. Both are
	// accepted; re-processing forever is not.
	orderIDs := make([]string, 0, len(set))
	for id := range set {
		orderIDs = append(orderIDs, id)
	}
	marks := NewMarker(api, log).MarkComplete(ctx, orderIDs)
	for _, out := range marks {
		if out.Marked {
			result.MarksWritten++
		} else {
			result.MarksFailed++
		}
	}
	p.state = StateMarked

	p.state = StateDone
	result.Duration = time.Since(start)
	runDuration.Observe(result.Duration.Seconds())
	log.Info("Process complete",
		zap.Int("orders_discovered", result.OrdersDiscovered),
		zap.Int("orders_resolved", result.OrdersResolved),
		zap.Int("notifications_sent", result.NotificationsSent),
		zap.Int("notifications_failed", result.NotificationsFailed),
		zap.Int("marks_written", result.MarksWritten),
		zap.Int("marks_failed", result.MarksFailed),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}
