package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/gbsmpricing/internal/pricing/domain"
	"github.com/wyfcoding/gbsmpricing/pkg/cache/cachetest"
)

func TestPricingRedisCache(t *testing.T) {
	client, mem := cachetest.NewClient()
	c := NewPricingRedisCache(client, 0)
	ctx := context.Background()

	got, err := c.GetLatestPricingResult(ctx, "XYZ")
	if err != nil || got != nil {
		t.Fatalf("miss should be nil, nil; got %v, %v", got, err)
	}

	res := &domain.PricingResult{
		ID:           7,
		Symbol:       "XYZ",
		OptionType:   domain.OptionTypePut,
		OptionPrice:  decimal.RequireFromString("2.55645374712968"),
		Vega:         decimal.RequireFromString("0.1874285849056408"),
		PricingModel: domain.ModelGBSM,
		CalculatedAt: 1700000000000,
	}
	if err := c.SetLatestPricingResult(ctx, res); err != nil {
		t.Fatalf("set: %v", err)
	}
	if ttl := mem.TTL("pricing_result:XYZ"); ttl != 15*time.Minute {
		t.Fatalf("ttl = %v, want 15m", ttl)
	}

	got, err = c.GetLatestPricingResult(ctx, "XYZ")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != 7 || got.OptionType != domain.OptionTypePut || !got.OptionPrice.Equal(res.OptionPrice) || !got.Vega.Equal(res.Vega) {
		t.Fatalf("unexpected cached value %+v", got)
	}

	if err := c.Invalidate(ctx, "XYZ"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if got, _ := c.GetLatestPricingResult(ctx, "XYZ"); got != nil {
		t.Fatal("expected miss after invalidate")
	}
}

func TestPricingRedisCacheErrors(t *testing.T) {
	client, mem := cachetest.NewClient()
	c := NewPricingRedisCache(client, time.Minute)
	ctx := context.Background()

	mem.Put("pricing_result:BAD", "not-json")
	if _, err := c.GetLatestPricingResult(ctx, "BAD"); err == nil {
		t.Fatal("expected decode error")
	}

	mem.Err = errors.New("connection refused")
	if _, err := c.GetLatestPricingResult(ctx, "XYZ"); err == nil {
		t.Fatal("expected backend error")
	}
	if got, err := c.GetLatestPricingResult(ctx, ""); got != nil || err != nil {
		t.Fatal("empty symbol should short-circuit")
	}
}
