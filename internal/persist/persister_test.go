package persist_test

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/modelshop-checkout/internal/cart"
	"github.com/noah-isme/modelshop-checkout/internal/coupon"
	"github.com/noah-isme/modelshop-checkout/internal/persist"
)

func newRedisPersister(t *testing.T) (*persist.Persister, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return persist.NewPersister(persist.NewRedisKV(client, time.Hour), zerolog.Nop()), mr
}

func sampleSnapshot() persist.Snapshot {
	weight := decimal.RequireFromString("1.5")
	limit, used := 500, 3
	return persist.Snapshot{
		Items: []cart.LineItem{
			{ID: "m1", Name: "Dragon", Price: decimal.NewFromInt(30), Quantity: 2, Kind: cart.KindDigital, Tags: []string{"fantasy"}},
			{ID: "p1", Name: "Vase", Price: decimal.RequireFromString("19.99"), Quantity: 1, Kind: cart.KindPhysical, Weight: &weight},
		},
		Address: &cart.Address{FullName: "Ana", City: "Madrid", Country: "España"},
		Coupon: &coupon.Coupon{
			Code:       "IMPRESION15",
			Discount:   decimal.NewFromInt(15),
			Kind:       coupon.KindPercentage,
			UsageLimit: &limit,
			UsedCount:  &used,
			IsValid:    true,
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	p, mr := newRedisPersister(t)
	ctx := context.Background()
	snap := sampleSnapshot()

	p.Save(ctx, "s1", snap)
	require.True(t, mr.Exists("cart:s1"))
	require.True(t, mr.Exists("address:s1"))
	require.True(t, mr.Exists("coupon:s1"))
	require.Greater(t, mr.TTL("cart:s1"), time.Duration(0))

	got, err := persist.NewPersister(p.KV, zerolog.Nop()).Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	require.Equal(t, "m1", got.Items[0].ID)
	require.True(t, got.Items[1].Weight.Equal(decimal.RequireFromString("1.5")))
	require.Equal(t, "España", got.Address.Country)
	require.Equal(t, "IMPRESION15", got.Coupon.Code)
	require.Equal(t, 3, *got.Coupon.UsedCount)
}

func TestLoadDiscardsOnlyMalformedRecord(t *testing.T) {
	p, mr := newRedisPersister(t)
	ctx := context.Background()
	p.Save(ctx, "s2", sampleSnapshot())
	require.NoError(t, mr.Set("address:s2", "{not json"))

	got, err := persist.NewPersister(p.KV, zerolog.Nop()).Load(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	require.Nil(t, got.Address)
	require.NotNil(t, got.Coupon)
	require.False(t, mr.Exists("address:s2"))
}

func TestLoadMissingSession(t *testing.T) {
	p, _ := newRedisPersister(t)
	got, err := p.Load(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, got.Items)
	require.Nil(t, got.Address)
	require.Nil(t, got.Coupon)
}

func TestLoadDropsInvalidQuantities(t *testing.T) {
	p, mr := newRedisPersister(t)
	require.NoError(t, mr.Set("cart:s3", `[{"id":"a","name":"A","price":"5","quantity":0,"type":"digital"},{"id":"b","name":"B","price":5,"quantity":1,"type":"digital"}]`))

	got, err := p.Load(context.Background(), "s3")
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	require.Equal(t, "b", got.Items[0].ID)
}

func TestSaveClearsRemovedRecords(t *testing.T) {
	p, mr := newRedisPersister(t)
	ctx := context.Background()
	snap := sampleSnapshot()
	p.Save(ctx, "s4", snap)

	snap.Address = nil
	snap.Coupon = nil
	p.Save(ctx, "s4", snap)
	require.False(t, mr.Exists("address:s4"))
	require.False(t, mr.Exists("coupon:s4"))
	require.True(t, mr.Exists("cart:s4"))
}

type countingKV struct {
	*persist.MemoryKV
	sets int
	fail error
}

func (c *countingKV) Set(ctx context.Context, key string, value []byte) error {
	c.sets++
	if c.fail != nil {
		return c.fail
	}
	return c.MemoryKV.Set(ctx, key, value)
}

func TestSaveCoalescesUnchangedRecords(t *testing.T) {
	kv := &countingKV{MemoryKV: persist.NewMemoryKV()}
	p := persist.NewPersister(kv, zerolog.Nop())
	ctx := context.Background()
	snap := sampleSnapshot()

	p.Save(ctx, "s5", snap)
	require.Equal(t, 3, kv.sets)
	p.Save(ctx, "s5", snap)
	require.Equal(t, 3, kv.sets)

	snap.Items[0].Quantity = 5
	p.Save(ctx, "s5", snap)
	require.Equal(t, 4, kv.sets)

	p.Forget("s5")
	p.Save(ctx, "s5", snap)
	require.Equal(t, 7, kv.sets)
}

func TestSaveSwallowsStoreFailures(t *testing.T) {
	kv := &countingKV{MemoryKV: persist.NewMemoryKV(), fail: errors.New("redis down")}
	p := persist.NewPersister(kv, zerolog.Nop())
	require.NotPanics(t, func() { p.Save(context.Background(), "s6", sampleSnapshot()) })

	// a failed write is retried on the next save
	p.Save(context.Background(), "s6", sampleSnapshot())
	require.Equal(t, 6, kv.sets)
}

func TestPurge(t *testing.T) {
	p, mr := newRedisPersister(t)
	ctx := context.Background()
	p.Save(ctx, "s7", sampleSnapshot())
	require.NoError(t, p.Purge(ctx, "s7"))
	require.False(t, mr.Exists("cart:s7"))
	require.False(t, mr.Exists("coupon:s7"))
}

func TestLoadReportsStoreOutage(t *testing.T) {
	p, mr := newRedisPersister(t)
	mr.Close()
	_, err := p.Load(context.Background(), "s8")
	require.Error(t, err)
}
