package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/trialpay"
	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/plan"
	"github.com/xraph/trialpay/promocode"
	tpstore "github.com/xraph/trialpay/store"
	"github.com/xraph/trialpay/subscription"
	"github.com/xraph/trialpay/tenant"
)

// Collection name constants.
const (
	colGracePeriods       = "trialpay_grace_periods"
	colPromoCodes         = "trialpay_promo_codes"
	colPromoCodeUsages    = "trialpay_promo_code_usages"
	colValidationAttempts = "trialpay_validation_attempts"
	colSubscriptions      = "trialpay_subscriptions"
	colPlans              = "trialpay_plans"
	colTenants            = "trialpay_tenants"
)

// compile-time interface check
var _ tpstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM. Conditional
// transitions put the precondition in the update filter; updates that need
// to read the current document use an aggregation pipeline so they stay a
// single-document atomic write.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all trialpay collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("trialpay/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(toGracePeriodModel(g)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return trialpay.ErrAlreadyExists
		}
		return fmt.Errorf("trialpay/mongo: create grace period: %w", err)
	}
	return nil
}

func (s *Store) GetGracePeriod(ctx context.Context, graceID id.GracePeriodID) (*graceperiod.GracePeriod, error) {
	var m gracePeriodModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": graceID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, trialpay.ErrGracePeriodNotFound
		}
		return nil, fmt.Errorf("trialpay/mongo: get grace period: %w", err)
	}
	return fromGracePeriodModel(&m)
}

func (s *Store) GetActiveGracePeriod(ctx context.Context, userID string) (*graceperiod.GracePeriod, error) {
	var m gracePeriodModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"user_id": userID, "status": string(graceperiod.StatusActive)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, trialpay.ErrGracePeriodNotFound
		}
		return nil, fmt.Errorf("trialpay/mongo: get active grace period: %w", err)
	}
	return fromGracePeriodModel(&m)
}

func (s *Store) ListGracePeriods(ctx context.Context, opts graceperiod.ListOpts) ([]*graceperiod.GracePeriod, error) {
	var models []gracePeriodModel

	filter := bson.M{}
	if opts.UserID != "" {
		filter["user_id"] = opts.UserID
	}
	if opts.TenantID != "" {
		filter["tenant_id"] = opts.TenantID
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.Source != "" {
		filter["source"] = string(opts.Source)
	}
	if opts.EndingAtOrBefore != nil {
		filter["end_date"] = bson.M{"$lte": *opts.EndingAtOrBefore}
	}
	if opts.WithoutNotification != "" {
		filter["notifications_sent.type"] = bson.M{"$ne": string(opts.WithoutNotification)}
	}
	if !opts.AfterID.IsNil() {
		filter["_id"] = bson.M{"$gt": opts.AfterID.String()}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("trialpay/mongo: list grace periods: %w", err)
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
	filter := bson.M{
		"_id":      graceID.String(),
		"status":   string(graceperiod.StatusActive),
		"end_date": ext.PreviousEndDate,
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"original_end_date": bson.M{"$ifNull": bson.A{"$original_end_date", "$end_date"}},
			"end_date":          ext.NewEndDate,
			"duration_days":     bson.M{"$add": bson.A{"$duration_days", ext.AdditionalDays}},
			"extension_history": bson.M{"$concatArrays": bson.A{
				bson.M{"$ifNull": bson.A{"$extension_history", bson.A{}}},
				bson.M{"$literal": bson.A{toExtensionModel(ext)}},
			}},
			"updated_at": ext.ExtendedAt,
		}}},
	}
	res, err := s.mdb.Collection(colGracePeriods).UpdateOne(ctx, filter, pipeline)
	if err != nil {
		return fmt.Errorf("trialpay/mongo: extend grace period: %w", err)
	}
	return s.checkConditional(ctx, res.MatchedCount, colGracePeriods, graceID.String(), trialpay.ErrGracePeriodNotFound)
}

func (s *Store) TransitionGracePeriod(ctx context.Context, graceID id.GracePeriodID, t graceperiod.Transition) error {
	at := t.At.UTC()
	from := make(bson.A, len(t.From))
	for i, st := range t.From {
		from[i] = string(st)
	}

	update := s.mdb.NewUpdate((*gracePeriodModel)(nil)).
		Filter(bson.M{"_id": graceID.String(), "status": bson.M{"$in": from}}).
		Set("status", string(t.To)).
		Set("updated_at", at)

	switch t.To {
	case graceperiod.StatusConverted:
		update = update.
			Set("converted_at", at).
			Set("selected_plan_id", t.PlanID.String()).
			Set("subscription_id", t.SubscriptionID.String())
	case graceperiod.StatusCancelled:
		update = update.
			Set("cancelled_at", at).
			Set("cancel_reason", t.Reason)
	case graceperiod.StatusExpired:
		update = update.Set("expired_at", at)
	case graceperiod.StatusActive:
	}

	res, err := update.Exec(ctx)
	if err != nil {
		return fmt.Errorf("trialpay/mongo: transition grace period: %w", err)
	}
	return s.checkConditional(ctx, res.MatchedCount(), colGracePeriods, graceID.String(), trialpay.ErrGracePeriodNotFound)
}

func (s *Store) AddGracePeriodNotification(ctx context.Context, graceID id.GracePeriodID, n graceperiod.Notification) error {
	res, err := s.mdb.NewUpdate((*gracePeriodModel)(nil)).
		Filter(bson.M{
			"_id":                     graceID.String(),
			"notifications_sent.type": bson.M{"$ne": string(n.Type)},
		}).
		SetUpdate(bson.M{
			"$push": bson.M{"notifications_sent": toNotificationModel(n)},
			"$set":  bson.M{"updated_at": n.SentAt},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("trialpay/mongo: add notification: %w", err)
	}
	return s.checkConditional(ctx, res.MatchedCount(), colGracePeriods, graceID.String(), trialpay.ErrGracePeriodNotFound)
}

// ==================== Promo Code Store ====================

func (s *Store) CreatePromoCode(ctx context.Context, p *promocode.PromoCode) error {
	_, err := s.mdb.NewInsert(toPromoCodeModel(p)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return trialpay.ErrAlreadyExists
		}
		return fmt.Errorf("trialpay/mongo: create promo code: %w", err)
	}
	return nil
}

func (s *Store) GetPromoCode(ctx context.Context, promoID id.PromoCodeID) (*promocode.PromoCode, error) {
	var m promoCodeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": promoID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, trialpay.ErrPromoCodeNotFound
		}
		return nil, fmt.Errorf("trialpay/mongo: get promo code: %w", err)
	}
	return fromPromoCodeModel(&m)
}

func (s *Store) GetPromoCodeByCode(ctx context.Context, code string) (*promocode.PromoCode, error) {
	var m promoCodeModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"code": code}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, trialpay.ErrPromoCodeNotFound
		}
		return nil, fmt.Errorf("trialpay/mongo: get promo code by code: %w", err)
	}
	return fromPromoCodeModel(&m)
}

func (s *Store) ListPromoCodes(ctx context.Context, opts promocode.ListOpts) ([]*promocode.PromoCode, error) {
	var models []promoCodeModel

	filter := bson.M{}
	if opts.TenantID != "" {
		filter["tenant_id"] = opts.TenantID
	}
	if opts.ActiveOnly {
		filter["is_active"] = true
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("trialpay/mongo: list promo codes: %w", err)
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
	filter := bson.M{
		"_id": promoID.String(),
		"$or": bson.A{
			bson.M{"max_uses": 0},
			bson.M{"$expr": bson.M{"$lt": bson.A{"$current_uses", "$max_uses"}}},
		},
	}
	// The second stage sees the incremented counter.
	reached := bson.M{"$and": bson.A{
		bson.M{"$gt": bson.A{"$max_uses", 0}},
		bson.M{"$gte": bson.A{"$current_uses", "$max_uses"}},
	}}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"current_uses": bson.M{"$add": bson.A{"$current_uses", 1}},
			"updated_at":   at,
		}}},
		{{Key: "$set", Value: bson.M{
			"is_active":           bson.M{"$cond": bson.A{reached, false, "$is_active"}},
			"deactivation_reason": bson.M{"$cond": bson.A{reached, string(promocode.DeactivationExhausted), "$deactivation_reason"}},
		}}},
	}
	res, err := s.mdb.Collection(colPromoCodes).UpdateOne(ctx, filter, pipeline)
	if err != nil {
		return nil, fmt.Errorf("trialpay/mongo: increment promo code uses: %w", err)
	}
	if err := s.checkConditional(ctx, res.MatchedCount, colPromoCodes, promoID.String(), trialpay.ErrPromoCodeNotFound); err != nil {
		return nil, err
	}
	return s.GetPromoCode(ctx, promoID)
}

func (s *Store) DecrementPromoCodeUses(ctx context.Context, promoID id.PromoCodeID, at time.Time) (*promocode.PromoCode, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"current_uses": bson.M{"$max": bson.A{bson.M{"$subtract": bson.A{"$current_uses", 1}}, 0}},
			"updated_at":   at,
		}}},
	}
	res, err := s.mdb.Collection(colPromoCodes).UpdateOne(ctx, bson.M{"_id": promoID.String()}, pipeline)
	if err != nil {
		return nil, fmt.Errorf("trialpay/mongo: decrement promo code uses: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, trialpay.ErrPromoCodeNotFound
	}
	return s.GetPromoCode(ctx, promoID)
}

func (s *Store) SetPromoCodeUses(ctx context.Context, promoID id.PromoCodeID, uses int, state promocode.Activation, at time.Time) error {
	res, err := s.mdb.NewUpdate((*promoCodeModel)(nil)).
		Filter(bson.M{"_id": promoID.String()}).
		Set("current_uses", uses).
		Set("is_active", state.Active).
		Set("deactivation_reason", string(state.Reason)).
		Set("updated_at", at).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("trialpay/mongo: set promo code uses: %w", err)
	}
	if res.MatchedCount() == 0 {
		return trialpay.ErrPromoCodeNotFound
	}
	return nil
}

func (s *Store) SetPromoCodeActivation(ctx context.Context, promoID id.PromoCodeID, state promocode.Activation, at time.Time) error {
	res, err := s.mdb.NewUpdate((*promoCodeModel)(nil)).
		Filter(bson.M{"_id": promoID.String()}).
		Set("is_active", state.Active).
		Set("deactivation_reason", string(state.Reason)).
		Set("updated_at", at).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("trialpay/mongo: set promo code activation: %w", err)
	}
	if res.MatchedCount() == 0 {
		return trialpay.ErrPromoCodeNotFound
	}
	return nil
}

func (s *Store) CreatePromoCodeUsage(ctx context.Context, u *promocode.Usage) error {
	_, err := s.mdb.NewInsert(toPromoCodeUsageModel(u)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return trialpay.ErrAlreadyExists
		}
		return fmt.Errorf("trialpay/mongo: create promo code usage: %w", err)
	}
	return nil
}

func (s *Store) GetPromoCodeUsage(ctx context.Context, usageID id.PromoCodeUsageID) (*promocode.Usage, error) {
	var m promoCodeUsageModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": usageID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, trialpay.ErrPromoCodeUsageNotFound
		}
		return nil, fmt.Errorf("trialpay/mongo: get promo code usage: %w", err)
	}
	return fromPromoCodeUsageModel(&m)
}

func (s *Store) DeletePromoCodeUsage(ctx context.Context, usageID id.PromoCodeUsageID) error {
	res, err := s.mdb.NewDelete((*promoCodeUsageModel)(nil)).
		Filter(bson.M{"_id": usageID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("trialpay/mongo: delete promo code usage: %w", err)
	}
	if res.DeletedCount() == 0 {
		return trialpay.ErrPromoCodeUsageNotFound
	}
	return nil
}

func (s *Store) ListPromoCodeUsages(ctx context.Context, opts promocode.UsageListOpts) ([]*promocode.Usage, error) {
	var models []promoCodeUsageModel

	filter := bson.M{}
	if !opts.PromoCodeID.IsNil() {
		filter["promo_code_id"] = opts.PromoCodeID.String()
	}
	if opts.UserID != "" {
		filter["user_id"] = opts.UserID
	}
	if !opts.SubscriptionID.IsNil() {
		filter["subscription_id"] = opts.SubscriptionID.String()
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("trialpay/mongo: list promo code usages: %w", err)
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
	filter := bson.M{"promo_code_id": promoID.String()}
	if userID != "" {
		filter["user_id"] = userID
	}
	n, err := s.mdb.Collection(colPromoCodeUsages).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("trialpay/mongo: count promo code usages: %w", err)
	}
	return int(n), nil
}

// ==================== Attempt Log ====================

func (s *Store) RecordValidationAttempt(ctx context.Context, a *promocode.ValidationAttempt) error {
	_, err := s.mdb.NewInsert(&validationAttemptModel{
		ID:          a.ID.String(),
		UserID:      a.UserID,
		Code:        a.Code,
		AttemptedAt: a.AttemptedAt,
		IPAddress:   a.IPAddress,
	}).Exec(ctx)
	if err != nil {
		return fmt.Errorf("trialpay/mongo: record validation attempt: %w", err)
	}
	return nil
}

func (s *Store) CountValidationAttempts(ctx context.Context, userID string, since time.Time) (int, error) {
	n, err := s.mdb.Collection(colValidationAttempts).CountDocuments(ctx, bson.M{
		"user_id":      userID,
		"attempted_at": bson.M{"$gt": since},
	})
	if err != nil {
		return 0, fmt.Errorf("trialpay/mongo: count validation attempts: %w", err)
	}
	return int(n), nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.mdb.NewInsert(toSubscriptionModel(sub)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return trialpay.ErrAlreadyExists
		}
		return fmt.Errorf("trialpay/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, trialpay.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("trialpay/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{}
	if opts.TenantID != "" {
		filter["tenant_id"] = opts.TenantID
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if !opts.GracePeriodID.IsNil() {
		filter["grace_period_id"] = opts.GracePeriodID.String()
	}
	if opts.CreatedBefore != nil {
		filter["created_at"] = bson.M{"$lt": *opts.CreatedBefore}
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("trialpay/mongo: list subscriptions: %w", err)
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
	update := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": subID.String(), "status": string(from)}).
		Set("status", string(to)).
		Set("updated_at", at)

	if to == subscription.StatusCanceled {
		update = update.
			Set("canceled_at", at).
			Set("cancel_reason", reason)
	}

	res, err := update.Exec(ctx)
	if err != nil {
		return fmt.Errorf("trialpay/mongo: transition subscription: %w", err)
	}
	return s.checkConditional(ctx, res.MatchedCount(), colSubscriptions, subID.String(), trialpay.ErrSubscriptionNotFound)
}

func (s *Store) DeleteIncompleteSubscription(ctx context.Context, subID id.SubscriptionID) error {
	res, err := s.mdb.NewDelete((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": subID.String(), "status": string(subscription.StatusIncomplete)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("trialpay/mongo: delete subscription: %w", err)
	}
	return s.checkConditional(ctx, res.DeletedCount(), colSubscriptions, subID.String(), trialpay.ErrSubscriptionNotFound)
}

// ==================== Plan Store ====================

func (s *Store) CreatePlan(ctx context.Context, p *plan.Plan) error {
	_, err := s.mdb.NewInsert(toPlanModel(p)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return trialpay.ErrAlreadyExists
		}
		return fmt.Errorf("trialpay/mongo: create plan: %w", err)
	}
	return nil
}

func (s *Store) GetPlan(ctx context.Context, planID id.PlanID) (*plan.Plan, error) {
	var m planModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": planID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, trialpay.ErrPlanNotFound
		}
		return nil, fmt.Errorf("trialpay/mongo: get plan: %w", err)
	}
	return fromPlanModel(&m)
}

func (s *Store) GetPlanBySlug(ctx context.Context, slug string) (*plan.Plan, error) {
	var m planModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"slug": slug}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, trialpay.ErrPlanNotFound
		}
		return nil, fmt.Errorf("trialpay/mongo: get plan by slug: %w", err)
	}
	return fromPlanModel(&m)
}

func (s *Store) ListPlans(ctx context.Context, opts plan.ListOpts) ([]*plan.Plan, error) {
	var models []planModel

	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("trialpay/mongo: list plans: %w", err)
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
	res, err := s.mdb.NewUpdate((*planModel)(nil)).
		Filter(bson.M{"_id": planID.String()}).
		Set("status", string(plan.StatusArchived)).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("trialpay/mongo: archive plan: %w", err)
	}
	if res.MatchedCount() == 0 {
		return trialpay.ErrPlanNotFound
	}
	return nil
}

// ==================== Tenant Store ====================

func (s *Store) SetActivePlan(ctx context.Context, tenantID string, planID id.PlanID, status tenant.BillingStatus) error {
	_, err := s.mdb.NewUpdate((*tenantModel)(nil)).
		Filter(bson.M{"_id": tenantID}).
		SetUpdate(bson.M{"$set": bson.M{
			"active_plan_id": planID.String(),
			"billing_status": string(status),
			"updated_at":     now(),
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("trialpay/mongo: set active plan: %w", err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*tenant.Tenant, error) {
	var m tenantModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": tenantID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, trialpay.ErrTenantNotFound
		}
		return nil, fmt.Errorf("trialpay/mongo: get tenant: %w", err)
	}
	return fromTenantModel(&m)
}

// ==================== Helpers ====================

// checkConditional maps a conditional write that matched nothing to notFound
// when the document is missing and to ErrPreconditionFailed otherwise.
func (s *Store) checkConditional(ctx context.Context, matched int64, col, docID string, notFound error) error {
	if matched > 0 {
		return nil
	}
	n, err := s.mdb.Collection(col).CountDocuments(ctx, bson.M{"_id": docID})
	if err != nil {
		return fmt.Errorf("trialpay/mongo: check %s: %w", col, err)
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all trialpay collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colGracePeriods: {
			{
				// At most one active grace period per user.
				Keys: bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetName("uniq_active_user").
					SetPartialFilterExpression(bson.M{"status": string(graceperiod.StatusActive)}),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "end_date", Value: 1}}},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}}},
		},
		colPromoCodes: {
			{
				Keys:    bson.D{{Key: "code", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "is_active", Value: 1}}},
		},
		colPromoCodeUsages: {
			{Keys: bson.D{{Key: "promo_code_id", Value: 1}, {Key: "user_id", Value: 1}}},
			{Keys: bson.D{{Key: "subscription_id", Value: 1}}},
		},
		colValidationAttempts: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "attempted_at", Value: -1}}},
			{
				// Attempts only matter inside the rate-limit window.
				Keys:    bson.D{{Key: "attempted_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(int32((24 * time.Hour).Seconds())),
			},
		},
		colSubscriptions: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}}},
			{Keys: bson.D{{Key: "grace_period_id", Value: 1}}},
		},
		colPlans: {
			{
				Keys:    bson.D{{Key: "slug", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colTenants: nil,
	}
}
