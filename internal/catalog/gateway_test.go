package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/reservationd/internal/reservation"
	"github.com/example/reservationd/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flaky fails its first n calls.
type flaky struct {
	failFirst int64
	calls     atomic.Int64
}

func (f *flaky) fail() error {
	if f.calls.Add(1) <= f.failFirst {
		return errors.New("connection refused")
	}
	return nil
}

func (f *flaky) Tables(context.Context, string) ([]reservation.Table, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return []reservation.Table{{ID: "T", Capacity: 4, Status: reservation.TableAvailable}}, nil
}

func (f *flaky) Table(_ context.Context, _, tableID string) (reservation.Table, bool, error) {
	if err := f.fail(); err != nil {
		return reservation.Table{}, false, err
	}
	return reservation.Table{ID: tableID, Capacity: 4, Status: reservation.TableAvailable}, true, nil
}

func (f *flaky) AvailableTables(ctx context.Context, rid string, _ int) ([]reservation.Table, error) {
	return f.Tables(ctx, rid)
}

func (f *flaky) IsOperating(context.Context, string, time.Time) (bool, error) {
	if err := f.fail(); err != nil {
		return false, err
	}
	return true, nil
}

func newTestGateway(up reservation.Catalog) *Gateway {
	return NewGateway(up, DefaultBreakerConfig(), RetryPolicy{Attempts: 3, Wait: time.Millisecond})
}

func TestGatewayRetriesTransientFailure(t *testing.T) {
	up := &flaky{failFirst: 2}
	g := newTestGateway(up)

	open, err := g.IsOperating(context.Background(), "R", time.Now())
	require.NoError(t, err)
	assert.True(t, open)
	assert.EqualValues(t, 3, up.calls.Load())
	assert.Equal(t, StateClosed, g.Breakers.Operating.State())
}

func TestGatewayFailsClosed(t *testing.T) {
	up := &flaky{failFirst: 1 << 30}
	g := newTestGateway(up)
	ctx := context.Background()

	open, err := g.IsOperating(ctx, "R", time.Now())
	require.NoError(t, err)
	assert.False(t, open)

	_, found, err := g.Table(ctx, "R", "T")
	require.NoError(t, err)
	assert.False(t, found)

	tables, err := g.Tables(ctx, "R")
	require.NoError(t, err)
	assert.NotNil(t, tables)
	assert.Empty(t, tables)

	tables, err = g.AvailableTables(ctx, "R", 2)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestGatewayOpenCircuitSkipsUpstream(t *testing.T) {
	up := &flaky{failFirst: 1 << 30}
	g := newTestGateway(up)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = g.IsOperating(ctx, "R", time.Now())
	}
	require.Equal(t, StateOpen, g.Breakers.Operating.State())
	before := up.calls.Load()
	assert.EqualValues(t, 15, before)

	open, err := g.IsOperating(ctx, "R", time.Now())
	require.NoError(t, err)
	assert.False(t, open)
	assert.Equal(t, before, up.calls.Load())
}

// tablesDown serves everything except the full table listing.
type tablesDown struct {
	flaky
	operating atomic.Int64
}

func (d *tablesDown) Tables(context.Context, string) ([]reservation.Table, error) {
	return nil, &StatusError{Code: 500, Body: "listing broken"}
}

func (d *tablesDown) IsOperating(ctx context.Context, rid string, at time.Time) (bool, error) {
	d.operating.Add(1)
	return d.flaky.IsOperating(ctx, rid, at)
}

func TestGatewayBreakersAreIndependent(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	up := &tablesDown{}
	g := NewGateway(up, DefaultBreakerConfig(), RetryPolicy{Attempts: 1})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		tables, err := g.Tables(ctx, "R")
		require.NoError(t, err)
		assert.Empty(t, tables)
	}
	require.Equal(t, StateOpen, g.Breakers.Tables.State())

	open, err := g.IsOperating(ctx, "R", now)
	require.NoError(t, err)
	assert.True(t, open)
	assert.EqualValues(t, 1, up.operating.Load())
	assert.Equal(t, StateClosed, g.Breakers.Operating.State())
	assert.Equal(t, StateClosed, g.Breakers.Table.State())
	assert.Equal(t, StateClosed, g.Breakers.Available.State())

	e := reservation.NewEngine(reservation.DefaultPolicy(), g, store.NewMemory())
	e.Now = func() time.Time { return now }
	d, err := e.Check(ctx, reservation.Query{RestaurantID: "R", TableID: "T", Time: now.Add(2 * time.Hour), PartySize: 2})
	require.NoError(t, err)
	assert.True(t, d.Admitted, "reason %s", d.Reason)
}

// hang blocks until the caller gives up.
type hang struct{ flaky }

func (*hang) IsOperating(ctx context.Context, _ string, _ time.Time) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func TestGatewayIgnoresAbandonedCalls(t *testing.T) {
	g := NewGateway(&hang{}, DefaultBreakerConfig(), RetryPolicy{Attempts: 3, Wait: time.Millisecond})

	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		open, err := g.IsOperating(ctx, "R", time.Now())
		require.NoError(t, err)
		assert.False(t, open)
	}
	assert.Equal(t, StateClosed, g.Breakers.Operating.State())
}

func TestGatewayStrict(t *testing.T) {
	g := newTestGateway(&flaky{failFirst: 1 << 30})
	g.Strict = true

	_, err := g.IsOperating(context.Background(), "R", time.Now())
	assert.Error(t, err)

	for i := 0; i < 5; i++ {
		_, _ = g.Tables(context.Background(), "R")
	}
	_, err = g.Tables(context.Background(), "R")
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestGatewayFailClosedRejectsBooking(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	g := newTestGateway(&flaky{failFirst: 1 << 30})

	e := reservation.NewEngine(reservation.DefaultPolicy(), g, store.NewMemory())
	e.Now = func() time.Time { return now }

	d, err := e.Check(context.Background(), reservation.Query{
		RestaurantID: "R",
		TableID:      "T",
		Time:         now.Add(2 * time.Hour),
		PartySize:    2,
	})
	require.NoError(t, err)
	assert.False(t, d.Admitted)
	assert.Equal(t, reservation.ReasonRestaurantClosed, d.Reason)

	strict := newTestGateway(&flaky{failFirst: 1 << 30})
	strict.Strict = true
	e.Catalog = strict
	_, err = e.Check(context.Background(), reservation.Query{
		RestaurantID: "R",
		TableID:      "T",
		Time:         now.Add(2 * time.Hour),
		PartySize:    2,
	})
	assert.ErrorIs(t, err, reservation.ErrDependencyUnavailable)
}
