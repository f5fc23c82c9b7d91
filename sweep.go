package trialpay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/notify"
)

// Sweep names reported in SweepResult and to plugins.
const (
	SweepExpiry                 = "expiry"
	SweepReminders              = "reminders"
	SweepReconcileSubscriptions = "reconcile_subscriptions"
)

// ItemError is the failure of one item within a sweep.
type ItemError struct {
	ID  string
	Err error
}

func (e ItemError) Error() string {
	if e.ID == "" {
		return e.Err.Error()
	}
	return e.ID + ": " + e.Err.Error()
}

func (e ItemError) Unwrap() error { return e.Err }

// SweepResult summarizes one sweep run. Sweeps never fail as a whole; item
// failures are collected and the remaining items are still processed.
type SweepResult struct {
	Name string

	// Processed counts state changes (expirations, completed or cancelled
	// orphans). Notified counts notifications sent and recorded.
	Processed int
	Notified  int
	Errors    []ItemError
	Elapsed   time.Duration
}

// Failed is the number of item errors.
func (r *SweepResult) Failed() int { return len(r.Errors) }

// Err joins the item errors, or returns nil.
func (r *SweepResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	var m MultiError
	for _, ie := range r.Errors {
		m.Add(ie)
	}
	return m
}

func (r *SweepResult) fail(itemID string, err error) {
	r.Errors = append(r.Errors, ItemError{ID: itemID, Err: err})
}

// RunExpirySweep expires every active grace period whose end date has passed,
// then sends the expired notification to every expired period that lacks
// one. The second phase also picks up periods a crash left unnotified.
func (e *Engine) RunExpirySweep(ctx context.Context) *SweepResult {
	start := e.clock.Now()
	res := &SweepResult{Name: SweepExpiry}
	now := e.now()

	e.scanGracePeriods(ctx, res, graceperiod.ListOpts{
		Status:           graceperiod.StatusActive,
		EndingAtOrBefore: &now,
	}, func(g *graceperiod.GracePeriod) error {
		expired, err := e.expire(ctx, g, now)
		if expired {
			res.Processed++
		}
		return err
	})

	e.scanGracePeriods(ctx, res, graceperiod.ListOpts{
		Status:              graceperiod.StatusExpired,
		WithoutNotification: graceperiod.NotificationExpired,
	}, func(g *graceperiod.GracePeriod) error {
		return e.sendNotification(ctx, res, g, graceperiod.NotificationExpired, now)
	})

	return e.sweepDone(ctx, res, start)
}

// RunReminderSweep sends the next due reminder for every active grace
// period. A reminder is recorded only after the transport accepted it, so
// transport failures are retried on the next run.
func (e *Engine) RunReminderSweep(ctx context.Context) *SweepResult {
	start := e.clock.Now()
	res := &SweepResult{Name: SweepReminders}
	now := e.now()

	e.scanGracePeriods(ctx, res, graceperiod.ListOpts{
		Status: graceperiod.StatusActive,
	}, func(g *graceperiod.GracePeriod) error {
		t, ok := g.NextNotificationDue(now)
		// The expired notification belongs to the expiry sweep.
		if !ok || t == graceperiod.NotificationExpired {
			return nil
		}
		return e.sendNotification(ctx, res, g, t, now)
	})

	return e.sweepDone(ctx, res, start)
}

// scanGracePeriods pages through opts by id and calls fn for each period.
// Cursor paging stays correct while fn moves items out of the filter.
func (e *Engine) scanGracePeriods(ctx context.Context, res *SweepResult, opts graceperiod.ListOpts, fn func(*graceperiod.GracePeriod) error) {
	opts.Limit = e.batchSize
	opts.AfterID = id.Nil

	for {
		if err := ctx.Err(); err != nil {
			res.fail("", err)
			return
		}

		page, err := e.ListGracePeriods(ctx, opts)
		if err != nil {
			res.fail("", fmt.Errorf("list grace periods: %w", err))
			return
		}

		for _, g := range page {
			opts.AfterID = g.ID
			if err := fn(g); err != nil {
				res.fail(g.ID.String(), err)
			}
		}

		if len(page) < opts.Limit {
			return
		}
	}
}

// sendNotification delivers t for g and records it. Recording is conditional
// on the type being absent, so concurrent sweeps record it once.
func (e *Engine) sendNotification(ctx context.Context, res *SweepResult, g *graceperiod.GracePeriod, t graceperiod.NotificationType, now time.Time) error {
	msg := &notify.Message{
		UserID:        g.UserID,
		TenantID:      g.TenantID,
		GracePeriodID: g.ID,
		Type:          t,
		Payload: map[string]any{
			"days_remaining": g.DaysRemaining(now),
			"end_date":       g.EndDate,
		},
	}

	sendCtx, cancel := e.bounded(ctx)
	channels, err := e.notifier.Send(sendCtx, msg)
	cancel()
	if err != nil {
		return fmt.Errorf("send %s: %w", t, err)
	}

	n := graceperiod.Notification{Type: t, SentAt: now, Channels: channels}
	if err := e.exec(ctx, func(ctx context.Context) error {
		return e.store.AddGracePeriodNotification(ctx, g.ID, n)
	}); err != nil {
		if errors.Is(err, ErrPreconditionFailed) {
			e.logger.Debug("notification recorded by another run",
				"grace_period_id", g.ID.String(),
				"type", string(t),
			)
			return nil
		}
		return fmt.Errorf("record %s: %w", t, err)
	}

	g.NotificationsSent = append(g.NotificationsSent, n)
	res.Notified++
	e.plugins.EmitNotificationSent(ctx, g, t)
	return nil
}

func (e *Engine) sweepDone(ctx context.Context, res *SweepResult, start time.Time) *SweepResult {
	res.Elapsed = e.clock.Since(start)
	e.logger.Info("sweep completed",
		"sweep", res.Name,
		"processed", res.Processed,
		"notified", res.Notified,
		"failed", res.Failed(),
		"elapsed", res.Elapsed,
	)
	e.plugins.EmitSweepCompleted(ctx, res.Name, res.Processed+res.Notified, res.Failed(), res.Elapsed)
	return res
}
