package trialpay_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/xraph/trialpay"
	"github.com/xraph/trialpay/graceperiod"
	"github.com/xraph/trialpay/notify"
	"github.com/xraph/trialpay/plan"
	"github.com/xraph/trialpay/promocode"
	"github.com/xraph/trialpay/id"
	"github.com/xraph/trialpay/store/memory"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

// outbox is a notify.Sender that keeps what it was asked to send.
type outbox struct {
	mu   sync.Mutex
	msgs []*notify.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg *notify.Message) (graceperiod.Channels, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return graceperiod.Channels{}, o.err
	}
	o.msgs = append(o.msgs, msg)
	return graceperiod.Channels{Email: true}, nil
}

func (o *outbox) failWith(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

func (o *outbox) types() []graceperiod.NotificationType {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]graceperiod.NotificationType, 0, len(o.msgs))
	for _, m := range o.msgs {
		out = append(out, m.Type)
	}
	return out
}

type harness struct {
	*trialpay.Engine
	ctx   context.Context
	store *memory.Store
	clock *clockwork.FakeClock
	out   *outbox
}

func newHarness(t *testing.T, opts ...trialpay.Option) *harness {
	t.Helper()
	h := &harness{
		ctx:   context.Background(),
		store: memory.New(),
		clock: clockwork.NewFakeClockAt(epoch),
		out:   &outbox{},
	}
	base := []trialpay.Option{
		trialpay.WithClock(h.clock),
		trialpay.WithNotifier(h.out),
		trialpay.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	h.Engine = trialpay.New(h.store, append(base, opts...)...)
	return h
}

// faultStore wraps the memory store and fails selected writes.
type faultStore struct {
	*memory.Store

	mu              sync.Mutex
	transitionErr   error
	transitionLands bool
	deleteUsageErr  error
}

// failTransitions makes grace period transitions return err. With lands the
// write is applied before the error is returned.
func (f *faultStore) failTransitions(err error, lands bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitionErr, f.transitionLands = err, lands
}

func (f *faultStore) failUsageDeletes(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteUsageErr = err
}

func (f *faultStore) TransitionGracePeriod(ctx context.Context, graceID id.GracePeriodID, t graceperiod.Transition) error {
	f.mu.Lock()
	err, lands := f.transitionErr, f.transitionLands
	f.mu.Unlock()
	if err == nil {
		return f.Store.TransitionGracePeriod(ctx, graceID, t)
	}
	if lands {
		if werr := f.Store.TransitionGracePeriod(ctx, graceID, t); werr != nil {
			return werr
		}
	}
	return err
}

func (f *faultStore) DeletePromoCodeUsage(ctx context.Context, usageID id.PromoCodeUsageID) error {
	f.mu.Lock()
	err := f.deleteUsageErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.DeletePromoCodeUsage(ctx, usageID)
}

// newFaultHarness is newHarness with the engine running on a faultStore.
// h.store still reaches the underlying memory store directly.
func newFaultHarness(t *testing.T, opts ...trialpay.Option) (*harness, *faultStore) {
	t.Helper()
	h := newHarness(t)
	fs := &faultStore{Store: h.store}
	base := []trialpay.Option{
		trialpay.WithClock(h.clock),
		trialpay.WithNotifier(h.out),
		trialpay.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	h.Engine = trialpay.New(fs, append(base, opts...)...)
	return h, fs
}

func (h *harness) grace(t *testing.T, userID string, days int) *trialpay.GracePeriod {
	t.Helper()
	g, err := h.CreateGracePeriod(h.ctx, trialpay.CreateGracePeriodInput{
		UserID:       userID,
		TenantID:     "tenant-" + userID,
		DurationDays: days,
		Source:       trialpay.SourceNewRegistration,
	})
	require.NoError(t, err)
	return g
}

func (h *harness) plan(t *testing.T, slug string, cents int64) *plan.Plan {
	t.Helper()
	p := &plan.Plan{
		Name:  slug,
		Slug:  slug,
		Price: trialpay.USD(cents),
	}
	require.NoError(t, h.CreatePlan(h.ctx, p))
	return p
}

func (h *harness) percentCode(t *testing.T, code string, pct, maxUses int) *trialpay.PromoCode {
	t.Helper()
	p := &promocode.PromoCode{
		Code:         code,
		DiscountType: promocode.DiscountPercentage,
		Percentage:   float64(pct),
		MaxUses:      maxUses,
	}
	require.NoError(t, h.CreatePromoCode(h.ctx, p))
	return p
}

func (h *harness) reload(t *testing.T, g *trialpay.GracePeriod) *trialpay.GracePeriod {
	t.Helper()
	cur, err := h.GetGracePeriod(h.ctx, g.ID)
	require.NoError(t, err)
	return cur
}

var errTransport = errors.New("smtp: connection refused")
