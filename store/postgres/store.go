package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/trialpay"
	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/plan"
	"github.com/xraph/trialpay/promocode"
	tpstore "github.com/xraph/trialpay/store"
	"github.com/xraph/trialpay/subscription"
	"github.com/xraph/trialpay/tenant"
)

// compile-time interface check
var _ tpstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM. Every
// conditional transition is a single UPDATE whose WHERE clause carries the
// precondition; zero affected rows means the precondition did not hold.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("trialpay/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("trialpay/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Grace Period Store ====================

func (s *Store) CreateGracePeriod(ctx context.Context, g *graceperiod.GracePeriod) error {
	_, err := s.pg.NewInsert(toGracePeriodModel(g)).Exec(ctx)
	if isUniqueViolation(err) {
		return trialpay.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetGracePeriod(ctx context.Context, graceID id.GracePeriodID) (*graceperiod.GracePeriod, error) {
	m := new(gracePeriodModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", graceID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, trialpay.ErrGracePeriodNotFound
		}
		return nil, err
	}
	return fromGracePeriodModel(m)
}

func (s *Store) GetActiveGracePeriod(ctx context.Context, userID string) (*graceperiod.GracePeriod, error) {
	m := new(gracePeriodModel)
	err := s.pg.NewSelect(m).
		Where("user_id = $1", userID).
		Where("status = $2", string(graceperiod.StatusActive)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, trialpay.ErrGracePeriodNotFound
		}
		return nil, err
	}
	return fromGracePeriodModel(m)
}

func (s *Store) ListGracePeriods(ctx context.Context, opts graceperiod.ListOpts) ([]*graceperiod.GracePeriod, error) {
	var models []gracePeriodModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.UserID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("user_id = $%d", argIdx), opts.UserID)
	}
	if opts.TenantID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("tenant_id = $%d", argIdx), opts.TenantID)
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if opts.Source != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("source = $%d", argIdx), string(opts.Source))
	}
	if opts.EndingAtOrBefore != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("end_date <= $%d", argIdx), *opts.EndingAtOrBefore)
	}
	if opts.WithoutNotification != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("NOT (notifications_sent @> $%d::jsonb)", argIdx), notificationProbe(opts.WithoutNotification))
	}
	if !opts.AfterID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("id > $%d", argIdx), opts.AfterID.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*graceperiod.GracePeriod, len(models))
	for i := range models {
		g, err := fromGracePeriodModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = g
	}
	return result, nil
}

func (s *Store) ExtendGracePeriod(ctx context.Context, graceID id.GracePeriodID, ext graceperiod.Extension) error {
	history, err := json.Marshal([]graceperiod.Extension{ext})
	if err != nil {
		return err
	}
	// SET expressions read the pre-update row, so original_end_date captures
	// the end date before this extension.
	res, err := s.pg.NewUpdate((*gracePeriodModel)(nil)).
		Set("original_end_date = COALESCE(original_end_date, end_date)").
		Set("end_date = $1", ext.NewEndDate).
		Set("duration_days = duration_days + $2", ext.AdditionalDays).
		Set("extension_history = extension_history || $3::jsonb", string(history)).
		Set("updated_at = $4", ext.ExtendedAt).
		Where("id = $5", graceID.String()).
		Where("status = $6", string(graceperiod.StatusActive)).
		Where("end_date = $7", ext.PreviousEndDate).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkConditional(ctx, res, "trialpay_grace_periods", graceID.String(), trialpay.ErrGracePeriodNotFound)
}

func (s *Store) TransitionGracePeriod(ctx context.Context, graceID id.GracePeriodID, t graceperiod.Transition) error {
	at := t.At.UTC()
	q := s.pg.NewUpdate((*gracePeriodModel)(nil)).
		Set("status = $1", string(t.To)).
		Set("updated_at = $2", at)

	argIdx := 2
	switch t.To {
	case graceperiod.StatusConverted:
		q = q.Set("converted_at = $3", at).
			Set("selected_plan_id = $4", t.PlanID.String()).
			Set("subscription_id = $5", t.SubscriptionID.String())
		argIdx = 5
	case graceperiod.StatusCancelled:
		q = q.Set("cancelled_at = $3", at).
			Set("cancel_reason = $4", t.Reason)
		argIdx = 4
	case graceperiod.StatusExpired:
		q = q.Set("expired_at = $3", at)
		argIdx = 3
	case graceperiod.StatusActive:
	}

	argIdx++
	q = q.Where(fmt.Sprintf("id = $%d", argIdx), graceID.String())

	placeholders := make([]string, len(t.From))
	from := make([]any, len(t.From))
	for i, st := range t.From {
		argIdx++
		placeholders[i] = fmt.Sprintf("$%d", argIdx)
		from[i] = string(st)
	}
	q = q.Where("status IN ("+strings.Join(placeholders, ", ")+")", from...)

	res, err := q.Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkConditional(ctx, res, "trialpay_grace_periods", graceID.String(), trialpay.ErrGracePeriodNotFound)
}

func (s *Store) AddGracePeriodNotification(ctx context.Context, graceID id.GracePeriodID, n graceperiod.Notification) error {
	entry, err := json.Marshal([]graceperiod.Notification{n})
	if err != nil {
		return err
	}
	res, err := s.pg.NewUpdate((*gracePeriodModel)(nil)).
		Set("notifications_sent = notifications_sent || $1::jsonb", string(entry)).
		Set("updated_at = $2", n.SentAt).
		Where("id = $3", graceID.String()).
		Where("NOT (notifications_sent @> $4::jsonb)", notificationProbe(n.Type)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkConditional(ctx, res, "trialpay_grace_periods", graceID.String(), trialpay.ErrGracePeriodNotFound)
}

// notificationProbe is the jsonb containment document matching any
// notification of type t.
func notificationProbe(t graceperiod.NotificationType) string {
	b, _ := json.Marshal([]map[string]string{{"type": string(t)}}) //nolint:errcheck // map of strings
	return string(b)
}

// ==================== Promo Code Store ====================

func (s *Store) CreatePromoCode(ctx context.Context, p *promocode.PromoCode) error {
	_, err := s.pg.NewInsert(toPromoCodeModel(p)).Exec(ctx)
	if isUniqueViolation(err) {
		return trialpay.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetPromoCode(ctx context.Context, promoID id.PromoCodeID) (*promocode.PromoCode, error) {
	m := new(promoCodeModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", promoID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, trialpay.ErrPromoCodeNotFound
		}
		return nil, err
	}
	return fromPromoCodeModel(m)
}

func (s *Store) GetPromoCodeByCode(ctx context.Context, code string) (*promocode.PromoCode, error) {
	m := new(promoCodeModel)
	err := s.pg.NewSelect(m).
		Where("code = $1", code).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, trialpay.ErrPromoCodeNotFound
		}
		return nil, err
	}
	return fromPromoCodeModel(m)
}

func (s *Store) ListPromoCodes(ctx context.Context, opts promocode.ListOpts) ([]*promocode.PromoCode, error) {
	var models []promoCodeModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.TenantID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("tenant_id = $%d", argIdx), opts.TenantID)
	}
	if opts.ActiveOnly {
		argIdx++
		q = q.Where(fmt.Sprintf("is_active = $%d", argIdx), true)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*promocode.PromoCode, len(models))
	for i := range models {
		p, err := fromPromoCodeModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) IncrementPromoCodeUses(ctx context.Context, promoID id.PromoCodeID, at time.Time) (*promocode.PromoCode, error) {
	res, err := s.pg.NewUpdate((*promoCodeModel)(nil)).
		Set("current_uses = current_uses + 1").
		Set("is_active = CASE WHEN max_uses > 0 AND current_uses + 1 >= max_uses THEN FALSE ELSE is_active END").
		Set("deactivation_reason = CASE WHEN max_uses > 0 AND current_uses + 1 >= max_uses THEN $1 ELSE deactivation_reason END",
			string(promocode.DeactivationExhausted)).
		Set("updated_at = $2", at).
		Where("id = $3", promoID.String()).
		Where("(max_uses = 0 OR current_uses < max_uses)").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.checkConditional(ctx, res, "trialpay_promo_codes", promoID.String(), trialpay.ErrPromoCodeNotFound); err != nil {
		return nil, err
	}
	return s.GetPromoCode(ctx, promoID)
}

func (s *Store) DecrementPromoCodeUses(ctx context.Context, promoID id.PromoCodeID, at time.Time) (*promocode.PromoCode, error) {
	res, err := s.pg.NewUpdate((*promoCodeModel)(nil)).
		Set("current_uses = GREATEST(current_uses - 1, 0)").
		Set("updated_at = $1", at).
		Where("id = $2", promoID.String()).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.checkConditional(ctx, res, "trialpay_promo_codes", promoID.String(), trialpay.ErrPromoCodeNotFound); err != nil {
		return nil, err
	}
	return s.GetPromoCode(ctx, promoID)
}

func (s *Store) SetPromoCodeUses(ctx context.Context, promoID id.PromoCodeID, uses int, state promocode.Activation, at time.Time) error {
	res, err := s.pg.NewUpdate((*promoCodeModel)(nil)).
		Set("current_uses = $1", uses).
		Set("is_active = $2", state.Active).
		Set("deactivation_reason = $3", string(state.Reason)).
		Set("updated_at = $4", at).
		Where("id = $5", promoID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkConditional(ctx, res, "trialpay_promo_codes", promoID.String(), trialpay.ErrPromoCodeNotFound)
}

func (s *Store) SetPromoCodeActivation(ctx context.Context, promoID id.PromoCodeID, state promocode.Activation, at time.Time) error {
	res, err := s.pg.NewUpdate((*promoCodeModel)(nil)).
		Set("is_active = $1", state.Active).
		Set("deactivation_reason = $2", string(state.Reason)).
		Set("updated_at = $3", at).
		Where("id = $4", promoID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkConditional(ctx, res, "trialpay_promo_codes", promoID.String(), trialpay.ErrPromoCodeNotFound)
}

func (s *Store) CreatePromoCodeUsage(ctx context.Context, u *promocode.Usage) error {
	_, err := s.pg.NewInsert(toPromoCodeUsageModel(u)).Exec(ctx)
	if isUniqueViolation(err) {
		return trialpay.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetPromoCodeUsage(ctx context.Context, usageID id.PromoCodeUsageID) (*promocode.Usage, error) {
	m := new(promoCodeUsageModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", usageID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, trialpay.ErrPromoCodeUsageNotFound
		}
		return nil, err
	}
	return fromPromoCodeUsageModel(m)
}

func (s *Store) DeletePromoCodeUsage(ctx context.Context, usageID id.PromoCodeUsageID) error {
	res, err := s.pg.NewDelete((*promoCodeUsageModel)(nil)).
		Where("id = $1", usageID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return trialpay.ErrPromoCodeUsageNotFound
	}
	return nil
}

func (s *Store) ListPromoCodeUsages(ctx context.Context, opts promocode.UsageListOpts) ([]*promocode.Usage, error) {
	var models []promoCodeUsageModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if !opts.PromoCodeID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("promo_code_id = $%d", argIdx), opts.PromoCodeID.String())
	}
	if opts.UserID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("user_id = $%d", argIdx), opts.UserID)
	}
	if !opts.SubscriptionID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("subscription_id = $%d", argIdx), opts.SubscriptionID.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*promocode.Usage, len(models))
	for i := range models {
		u, err := fromPromoCodeUsageModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = u
	}
	return result, nil
}

func (s *Store) CountPromoCodeUsages(ctx context.Context, promoID id.PromoCodeID, userID string) (int, error) {
	var n int
	var err error
	if userID == "" {
		err = s.pg.NewRaw(`SELECT COUNT(*) FROM trialpay_promo_code_usages WHERE promo_code_id = $1`,
			promoID.String()).Scan(ctx, &n)
	} else {
		err = s.pg.NewRaw(`SELECT COUNT(*) FROM trialpay_promo_code_usages WHERE promo_code_id = $1 AND user_id = $2`,
			promoID.String(), userID).Scan(ctx, &n)
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ==================== Attempt Log ====================

func (s *Store) RecordValidationAttempt(ctx context.Context, a *promocode.ValidationAttempt) error {
	_, err := s.pg.NewInsert(&validationAttemptModel{
		ID:          a.ID.String(),
		UserID:      a.UserID,
		Code:        a.Code,
		AttemptedAt: a.AttemptedAt,
		IPAddress:   a.IPAddress,
	}).Exec(ctx)
	return err
}

func (s *Store) CountValidationAttempts(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.pg.NewRaw(`
		SELECT COUNT(*) FROM trialpay_validation_attempts
		WHERE user_id = $1 AND attempted_at > $2
	`, userID, since).Scan(ctx, &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// PruneValidationAttempts deletes attempts older than before.
func (s *Store) PruneValidationAttempts(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pg.NewDelete((*validationAttemptModel)(nil)).
		Where("attempted_at < $1", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.pg.NewInsert(toSubscriptionModel(sub)).Exec(ctx)
	if isUniqueViolation(err) {
		return trialpay.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, trialpay.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.TenantID != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("tenant_id = $%d", argIdx), opts.TenantID)
	}
	if opts.Status != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(opts.Status))
	}
	if !opts.GracePeriodID.IsNil() {
		argIdx++
		q = q.Where(fmt.Sprintf("grace_period_id = $%d", argIdx), opts.GracePeriodID.String())
	}
	if opts.CreatedBefore != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("created_at < $%d", argIdx), *opts.CreatedBefore)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) TransitionSubscription(ctx context.Context, subID id.SubscriptionID, from, to subscription.Status, at time.Time, reason string) error {
	q := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("status = $1", string(to)).
		Set("updated_at = $2", at)

	argIdx := 2
	if to == subscription.StatusCanceled {
		q = q.Set("canceled_at = $3", at).
			Set("cancel_reason = $4", reason)
		argIdx = 4
	}
	res, err := q.
		Where(fmt.Sprintf("id = $%d", argIdx+1), subID.String()).
		Where(fmt.Sprintf("status = $%d", argIdx+2), string(from)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkConditional(ctx, res, "trialpay_subscriptions", subID.String(), trialpay.ErrSubscriptionNotFound)
}

func (s *Store) DeleteIncompleteSubscription(ctx context.Context, subID id.SubscriptionID) error {
	res, err := s.pg.NewDelete((*subscriptionModel)(nil)).
		Where("id = $1", subID.String()).
		Where("status = $2", string(subscription.StatusIncomplete)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkConditional(ctx, res, "trialpay_subscriptions", subID.String(), trialpay.ErrSubscriptionNotFound)
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	_, err := s.pg.NewInsert(toPlanModel(p)).Exec(ctx)
	if isUniqueViolation(err) {
		return trialpay.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	m := new(planModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", planID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, trialpay.ErrPlanNotFound
		}
		return nil, err
	}
	return fromPlanModel(m)
}

func (s *Store) GetPlanBySlug(ctx context.Context, slug string) (*plan.Plan, error) {
	m := new(planModel)
	err := s.pg.NewSelect(m).
		Where("slug = $1", slug).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, trialpay.ErrPlanNotFound
		}
		return nil, err
	}
	return fromPlanModel(m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel
	q := s.pg.NewSelect(&models)

	if opts.Status != "" {
		q = q.Where("status = $1", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*plan.Plan, len(models))
	for i := range models {
		p, err := fromPlanModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) ArchivePlan(ctx context.Context, planID id.PlanID) error {
	res, err := s.pg.NewUpdate((*planModel)(nil)).
		Set("status = $1", string(plan.StatusArchived)).
		Set("updated_at = $2", now()).
		Where("id = $3", planID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return trialpay.ErrPlanNotFound
	}
	return nil
}

// ==================== Tenant Store ====================

func (s *Store) SetActivePlan(ctx context.Context, tenantID string, planID id.PlanID, status tenant.BillingStatus) error {
	_, err := s.pg.NewInsert(&tenantModel{
		ID:            tenantID,
		ActivePlanID:  planID.String(),
		BillingStatus: string(status),
		UpdatedAt:     now(),
	}).
		OnConflict("(id) DO UPDATE").
		Set("active_plan_id = EXCLUDED.active_plan_id").
		Set("billing_status = EXCLUDED.billing_status").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	m := new(tenantModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", tenantID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, trialpay.ErrTenantNotFound
		}
		return nil, err
	}
	return fromTenantModel(m)
}

// ==================== Helpers ====================

// checkConditional maps a conditional write that touched no row to
// notFound when the row is missing and to ErrPreconditionFailed otherwise.
func (s *Store) checkConditional(ctx context.Context, res sql.Result, table, rowID string, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	var n int
	if err := s.pg.NewRaw(`SELECT COUNT(*) FROM `+table+` WHERE id = $1`, rowID).Scan(ctx, &n); err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return trialpay.ErrPreconditionFailed
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation reports a PostgreSQL unique_violation (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
