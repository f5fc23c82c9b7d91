package trialpay

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/types"
)

const day = 24 * time.Hour

// CreateGracePeriodInput describes a new trial window.
type CreateGracePeriodInput struct {
	UserID   string
	TenantID string

	// DurationDays of zero selects the source's default length.
	DurationDays  int
	Source        graceperiod.Source
	SourceDetails map[string]string
	Metadata      map[string]string
}

// CreateGracePeriod opens a trial window for a user. A user holds at most one
// active grace period; a second one is a conflict.
func (e *Engine) CreateGracePeriod(ctx context.Context, in CreateGracePeriodInput) (*graceperiod.GracePeriod, error) {
	if in.UserID == "" || in.TenantID == "" {
		return nil, ErrInvalidInput.with("user_id and tenant_id are required")
	}
	if !in.Source.Valid() {
		return nil, ErrInvalidSource.with("unknown grace period source %q", in.Source)
	}

	days := in.DurationDays
	if days == 0 {
		days, _ = in.Source.DefaultDurationDays()
	}
	if days < graceperiod.MinDurationDays || days > graceperiod.MaxDurationDays {
		return nil, ErrInvalidDuration.with("duration must be between %d and %d days, got %d",
			graceperiod.MinDurationDays, graceperiod.MaxDurationDays, days)
	}

	now := e.now()
	g := &graceperiod.GracePeriod{
		Entity:            types.NewEntity(now),
		ID:                id.NewGracePeriodID(),
		UserID:            in.UserID,
		TenantID:          in.TenantID,
		StartDate:         now,
		EndDate:           now.Add(time.Duration(days) * day),
		DurationDays:      days,
		Status:            graceperiod.StatusActive,
		Source:            in.Source,
		SourceDetails:     in.SourceDetails,
		NotificationsSent: []graceperiod.Notification{},
		ExtensionHistory:  []graceperiod.Extension{},
		Metadata:          in.Metadata,
	}

	if err := e.exec(ctx, func(ctx context.Context) error {
		return e.store.CreateGracePeriod(ctx, g)
	}); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrActiveGracePeriodExists.with("user %s already has an active grace period", in.UserID)
		}
		return nil, err
	}

	e.logger.Info("grace period created",
		"grace_period_id", g.ID.String(),
		"user_id", g.UserID,
		"tenant_id", g.TenantID,
		"source", string(g.Source),
		"duration_days", days,
	)
	e.plugins.EmitGracePeriodCreated(ctx, g)
	return g, nil
}

// GetGracePeriod retrieves a grace period by ID.
func (e *Engine) GetGracePeriod(ctx context.Context, graceID id.GracePeriodID) (*graceperiod.GracePeriod, error) {
	g, err := query(ctx, e, func(ctx context.Context) (*graceperiod.GracePeriod, error) {
		return e.store.GetGracePeriod(ctx, graceID)
	})
	if IsNotFound(err) {
		return nil, ErrGracePeriodNotFound.with("grace period %s not found", graceID)
	}
	return g, err
}

// GetActiveGracePeriod retrieves the user's active grace period.
func (e *Engine) GetActiveGracePeriod(ctx context.Context, userID string) (*graceperiod.GracePeriod, error) {
	g, err := query(ctx, e, func(ctx context.Context) (*graceperiod.GracePeriod, error) {
		return e.store.GetActiveGracePeriod(ctx, userID)
	})
	if IsNotFound(err) {
		return nil, ErrGracePeriodNotFound.with("user %s has no active grace period", userID)
	}
	return g, err
}

// ListGracePeriods lists grace periods matching opts.
func (e *Engine) ListGracePeriods(ctx context.Context, opts graceperiod.ListOpts) ([]*graceperiod.GracePeriod, error) {
	return query(ctx, e, func(ctx context.Context) ([]*graceperiod.GracePeriod, error) {
		return e.store.ListGracePeriods(ctx, opts)
	})
}

// ExtendGracePeriod pushes the end date of an active grace period. The write
// is conditional on the end date observed here; a lost race is retried once.
func (e *Engine) ExtendGracePeriod(ctx context.Context, graceID id.GracePeriodID, additionalDays int, extendedBy, reason string) (*graceperiod.GracePeriod, error) {
	if additionalDays < 1 || additionalDays > graceperiod.MaxDurationDays {
		return nil, ErrInvalidDuration.with("additional days must be between 1 and %d, got %d",
			graceperiod.MaxDurationDays, additionalDays)
	}

	for attempt := 0; attempt < 2; attempt++ {
		g, err := e.GetGracePeriod(ctx, graceID)
		if err != nil {
			return nil, err
		}
		if g.Status != graceperiod.StatusActive {
			return nil, ErrGracePeriodNotActive.with("grace period is already in terminal state %s", g.Status)
		}
		if g.DurationDays+additionalDays > graceperiod.MaxDurationDays {
			return nil, ErrInvalidDuration.with("extension would exceed %d days in total", graceperiod.MaxDurationDays)
		}

		ext := graceperiod.Extension{
			ExtendedBy:      extendedBy,
			ExtendedAt:      e.now(),
			AdditionalDays:  additionalDays,
			PreviousEndDate: g.EndDate,
			NewEndDate:      g.EndDate.Add(time.Duration(additionalDays) * day),
			Reason:          reason,
		}

		err = e.exec(ctx, func(ctx context.Context) error {
			return e.store.ExtendGracePeriod(ctx, graceID, ext)
		})
		if err == nil {
			graceperiod.ApplyExtension(g, ext)
			e.logger.Info("grace period extended",
				"grace_period_id", g.ID.String(),
				"additional_days", additionalDays,
				"end_date", g.EndDate,
			)
			e.plugins.EmitGracePeriodExtended(ctx, g, ext)
			return g, nil
		}
		if !errors.Is(err, ErrPreconditionFailed) {
			return nil, err
		}
	}

	return nil, ErrConcurrentUpdate.with("grace period %s changed while extending", graceID)
}

// CancelGracePeriod cancels a grace period in any state except converted.
// Cancelling again replaces the recorded reason.
func (e *Engine) CancelGracePeriod(ctx context.Context, graceID id.GracePeriodID, reason string) (*graceperiod.GracePeriod, error) {
	g, err := e.GetGracePeriod(ctx, graceID)
	if err != nil {
		return nil, err
	}
	if g.Status == graceperiod.StatusConverted {
		return nil, ErrGracePeriodConverted
	}

	t := graceperiod.Transition{
		From:   []graceperiod.Status{graceperiod.StatusActive, graceperiod.StatusExpired, graceperiod.StatusCancelled},
		To:     graceperiod.StatusCancelled,
		At:     e.now(),
		Reason: reason,
	}
	if err := e.exec(ctx, func(ctx context.Context) error {
		return e.store.TransitionGracePeriod(ctx, graceID, t)
	}); err != nil {
		if errors.Is(err, ErrPreconditionFailed) {
			// The only status outside From is converted.
			return nil, ErrGracePeriodConverted
		}
		return nil, err
	}

	t.Apply(g)
	e.logger.Info("grace period cancelled",
		"grace_period_id", g.ID.String(),
		"reason", reason,
	)
	e.plugins.EmitGracePeriodCancelled(ctx, g)
	return g, nil
}

// ExpireGracePeriod moves an active grace period to expired. Any other
// status is left alone and returned unchanged.
func (e *Engine) ExpireGracePeriod(ctx context.Context, graceID id.GracePeriodID) (*graceperiod.GracePeriod, error) {
	g, err := e.GetGracePeriod(ctx, graceID)
	if err != nil {
		return nil, err
	}
	if g.Status != graceperiod.StatusActive {
		return g, nil
	}

	expired, err := e.expire(ctx, g, e.now())
	if err != nil {
		return nil, err
	}
	if !expired {
		return e.GetGracePeriod(ctx, graceID)
	}
	return g, nil
}

// expire transitions g and reports whether this call did it. g is updated
// in place on success.
func (e *Engine) expire(ctx context.Context, g *graceperiod.GracePeriod, now time.Time) (bool, error) {
	t := graceperiod.Transition{
		From: []graceperiod.Status{graceperiod.StatusActive},
		To:   graceperiod.StatusExpired,
		At:   now,
	}
	if err := e.exec(ctx, func(ctx context.Context) error {
		return e.store.TransitionGracePeriod(ctx, g.ID, t)
	}); err != nil {
		if errors.Is(err, ErrPreconditionFailed) {
			return false, nil
		}
		return false, err
	}

	t.Apply(g)
	e.logger.Info("grace period expired", "grace_period_id", g.ID.String())
	e.plugins.EmitGracePeriodExpired(ctx, g)
	return true, nil
}
