package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

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

// Store implements store.Store using SQLite via Grove ORM. SQLite serializes
// writers, so each conditional UPDATE is atomic without explicit locking.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("trialpay/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("trialpay/sqlite: migration failed: %w", err)
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
	_, err := s.sdb.NewInsert(toGracePeriodModel(g)).Exec(ctx)
	if isUniqueViolation(err) {
		return trialpay.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetGracePeriod(ctx context.Context, graceID id.GracePeriodID) (*graceperiod.GracePeriod, error) {
	m := new(gracePeriodModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", graceID.String()).
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
	err := s.sdb.NewSelect(m).
		Where("user_id = ?", userID).
		Where("status = ?", string(graceperiod.StatusActive)).
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
	q := s.sdb.NewSelect(&models)

	if opts.UserID != "" {
		q = q.Where("user_id = ?", opts.UserID)
	}
	if opts.TenantID != "" {
		q = q.Where("tenant_id = ?", opts.TenantID)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Source != "" {
		q = q.Where("source = ?", string(opts.Source))
	}
	if opts.EndingAtOrBefore != nil {
		q = q.Where("end_date <= ?", millis(*opts.EndingAtOrBefore))
	}
	if opts.WithoutNotification != "" {
		q = q.Where(notificationAbsent, string(opts.WithoutNotification))
	}
	if !opts.AfterID.IsNil() {
		q = q.Where("id > ?", opts.AfterID.String())
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
	entry, err := json.Marshal(ext)
	if err != nil {
		return err
	}
	res, err := s.sdb.NewUpdate((*gracePeriodModel)(nil)).
		Set("original_end_date = COALESCE(original_end_date, end_date)").
		Set("end_date = ?", millis(ext.NewEndDate)).
		Set("duration_days = duration_days + ?", ext.AdditionalDays).
		Set("extension_history = json_insert(extension_history, '$[#]', json(?))", string(entry)).
		Set("updated_at = ?", millis(ext.ExtendedAt)).
		Where("id = ?", graceID.String()).
		Where("status = ?", string(graceperiod.StatusActive)).
		Where("end_date = ?", millis(ext.PreviousEndDate)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkConditional(ctx, res, "trialpay_grace_periods", graceID.String(), trialpay.ErrGracePeriodNotFound)
}

func (s *Store) TransitionGracePeriod(ctx context.Context, graceID id.GracePeriodID, t graceperiod.Transition) error {
	at := millis(t.At)
	q := s.sdb.NewUpdate((*gracePeriodModel)(nil)).
		Set("status = ?", string(t.To)).
		Set("updated_at = ?", at)

	switch t.To {
	case graceperiod.StatusConverted:
		q = q.Set("converted_at = ?", at).
			Set("selected_plan_id = ?", t.PlanID.String()).
			Set("subscription_id = ?", t.SubscriptionID.String())
	case graceperiod.StatusCancelled:
		q = q.Set("cancelled_at = ?", at).
			Set("cancel_reason = ?", t.Reason)
	case graceperiod.StatusExpired:
		q = q.Set("expired_at = ?", at)
	case graceperiod.StatusActive:
	}

	from := make([]any, len(t.From))
	for i, st := range t.From {
		from[i] = string(st)
	}
	res, err := q.
		Where("id = ?", graceID.String()).
		Where("status IN ("+placeholders(len(from))+")", from...).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkConditional(ctx, res, "trialpay_grace_periods", graceID.String(), trialpay.ErrGracePeriodNotFound)
}

func (s *Store) AddGracePeriodNotification(ctx context.Context, graceID id.GracePeriodID, n graceperiod.Notification) error {
	entry, err := json.Marshal(n)
	if err != nil {
		return err
	}
	res, err := s.sdb.NewUpdate((*gracePeriodModel)(nil)).
		Set("notifications_sent = json_insert(notifications_sent, '$[#]', json(?))", string(entry)).
		Set("updated_at = ?", millis(n.SentAt)).
		Where("id = ?", graceID.String()).
		Where(notificationAbsent, string(n.Type)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkConditional(ctx, res, "trialpay_grace_periods", graceID.String(), trialpay.ErrGracePeriodNotFound)
}

// notificationAbsent matches rows without a notification of the bound type.
const notificationAbsent = `NOT EXISTS (
	SELECT 1 FROM json_each(notifications_sent) WHERE json_extract(json_each.value, '$.type') = ?
)`

// ==================== Promo Code Store ====================

func (s *Store) CreatePromoCode(ctx context.Context, p *promocode.PromoCode) error {
	_, err := s.sdb.NewInsert(toPromoCodeModel(p)).Exec(ctx)
	if isUniqueViolation(err) {
		return trialpay.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetPromoCode(ctx context.Context, promoID id.PromoCodeID) (*promocode.PromoCode, error) {
	m := new(promoCodeModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", promoID.String()).
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
	err := s.sdb.NewSelect(m).
		Where("code = ?", code).
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
	q := s.sdb.NewSelect(&models)

	if opts.TenantID != "" {
		q = q.Where("tenant_id = ?", opts.TenantID)
	}
	if opts.ActiveOnly {
		q = q.Where("is_active = ?", true)
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
	res, err := s.sdb.NewUpdate((*promoCodeModel)(nil)).
		Set("current_uses = current_uses + 1").
		Set("is_active = CASE WHEN max_uses > 0 AND current_uses + 1 >= max_uses THEN 0 ELSE is_active END").
		Set("deactivation_reason = CASE WHEN max_uses > 0 AND current_uses + 1 >= max_uses THEN ? ELSE deactivation_reason END",
			string(promocode.DeactivationExhausted)).
		Set("updated_at = ?", millis(at)).
		Where("id = ?", promoID.String()).
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
	res, err := s.sdb.NewUpdate((*promoCodeModel)(nil)).
		Set("current_uses = MAX(current_uses - 1, 0)").
		Set("updated_at = ?", millis(at)).
		Where("id = ?", promoID.String()).
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
	res, err := s.sdb.NewUpdate((*promoCodeModel)(nil)).
		Set("current_uses = ?", uses).
		Set("is_active = ?", state.Active).
		Set("deactivation_reason = ?", string(state.Reason)).
		Set("updated_at = ?", millis(at)).
		Where("id = ?", promoID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkConditional(ctx, res, "trialpay_promo_codes", promoID.String(), trialpay.ErrPromoCodeNotFound)
}

func (s *Store) SetPromoCodeActivation(ctx context.Context, promoID id.PromoCodeID, state promocode.Activation, at time.Time) error {
	res, err := s.sdb.NewUpdate((*promoCodeModel)(nil)).
		Set("is_active = ?", state.Active).
		Set("deactivation_reason = ?", string(state.Reason)).
		Set("updated_at = ?", millis(at)).
		Where("id = ?", promoID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkConditional(ctx, res, "trialpay_promo_codes", promoID.String(), trialpay.ErrPromoCodeNotFound)
}

func (s *Store) CreatePromoCodeUsage(ctx context.Context, u *promocode.Usage) error {
	_, err := s.sdb.NewInsert(toPromoCodeUsageModel(u)).Exec(ctx)
	if isUniqueViolation(err) {
		return trialpay.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetPromoCodeUsage(ctx context.Context, usageID id.PromoCodeUsageID) (*promocode.Usage, error) {
	m := new(promoCodeUsageModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", usageID.String()).
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
	res, err := s.sdb.NewDelete((*promoCodeUsageModel)(nil)).
		Where("id = ?", usageID.String()).
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
	q := s.sdb.NewSelect(&models)

	if !opts.PromoCodeID.IsNil() {
		q = q.Where("promo_code_id = ?", opts.PromoCodeID.String())
	}
	if opts.UserID != "" {
		q = q.Where("user_id = ?", opts.UserID)
	}
	if !opts.SubscriptionID.IsNil() {
		q = q.Where("subscription_id = ?", opts.SubscriptionID.String())
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
		err = s.sdb.NewRaw(`SELECT COUNT(*) FROM trialpay_promo_code_usages WHERE promo_code_id = ?`,
			promoID.String()).Scan(ctx, &n)
	} else {
		err = s.sdb.NewRaw(`SELECT COUNT(*) FROM trialpay_promo_code_usages WHERE promo_code_id = ? AND user_id = ?`,
			promoID.String(), userID).Scan(ctx, &n)
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ==================== Attempt Log ====================

func (s *Store) RecordValidationAttempt(ctx context.Context, a *promocode.ValidationAttempt) error {
	_, err := s.sdb.NewInsert(&validationAttemptModel{
		ID:          a.ID.String(),
		UserID:      a.UserID,
		Code:        a.Code,
		AttemptedAt: millis(a.AttemptedAt),
		IPAddress:   a.IPAddress,
	}).Exec(ctx)
	return err
}

func (s *Store) CountValidationAttempts(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.sdb.NewRaw(`
		SELECT COUNT(*) FROM trialpay_validation_attempts
		WHERE user_id = ? AND attempted_at > ?
	`, userID, millis(since)).Scan(ctx, &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// PruneValidationAttempts deletes attempts older than before.
func (s *Store) PruneValidationAttempts(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.sdb.NewDelete((*validationAttemptModel)(nil)).
		Where("attempted_at < ?", millis(before)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.sdb.NewInsert(toSubscriptionModel(sub)).Exec(ctx)
	if isUniqueViolation(err) {
		return trialpay.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", subID.String()).
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
	q := s.sdb.NewSelect(&models)

	if opts.TenantID != "" {
		q = q.Where("tenant_id = ?", opts.TenantID)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if !opts.GracePeriodID.IsNil() {
		q = q.Where("grace_period_id = ?", opts.GracePeriodID.String())
	}
	if opts.CreatedBefore != nil {
		q = q.Where("created_at < ?", millis(*opts.CreatedBefore))
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
	q := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = ?", millis(at))
	if to == subscription.StatusCanceled {
		q = q.Set("canceled_at = ?", millis(at)).
			Set("cancel_reason = ?", reason)
	}
	res, err := q.
		Where("id = ?", subID.String()).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkConditional(ctx, res, "trialpay_subscriptions", subID.String(), trialpay.ErrSubscriptionNotFound)
}

func (s *Store) DeleteIncompleteSubscription(ctx context.Context, subID id.SubscriptionID) error {
	res, err := s.sdb.NewDelete((*subscriptionModel)(nil)).
		Where("id = ?", subID.String()).
		Where("status = ?", string(subscription.StatusIncomplete)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return s.checkConditional(ctx, res, "trialpay_subscriptions", subID.String(), trialpay.ErrSubscriptionNotFound)
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	_, err := s.sdb.NewInsert(toPlanModel(p)).Exec(ctx)
	if isUniqueViolation(err) {
		return trialpay.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	m := new(planModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", planID.String()).
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
	err := s.sdb.NewSelect(m).
		Where("slug = ?", slug).
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
	q := s.sdb.NewSelect(&models)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
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
	res, err := s.sdb.NewUpdate((*planModel)(nil)).
		Set("status = ?", string(plan.StatusArchived)).
		Set("updated_at = ?", millis(time.Now())).
		Where("id = ?", planID.String()).
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
	_, err := s.sdb.NewInsert(&tenantModel{
		ID:            tenantID,
		ActivePlanID:  planID.String(),
		BillingStatus: string(status),
		UpdatedAt:     millis(time.Now()),
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
	err := s.sdb.NewSelect(m).
		Where("id = ?", tenantID).
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
	if err := s.sdb.NewRaw(`SELECT COUNT(*) FROM `+table+` WHERE id = ?`, rowID).Scan(ctx, &n); err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return trialpay.ErrPreconditionFailed
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation checks the extended result code, falling back to the
// constraint message when a wrapper dropped the driver error.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqErr *msqlite.Error
	if errors.As(err, &sqErr) {
		code := sqErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
