package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/gbsmpricing/internal/pricing/domain"
	"github.com/wyfcoding/gbsmpricing/pkg/db"
)

func newTestRepo(t *testing.T) domain.PricingRepository {
	t.Helper()
	d, err := db.Init(context.Background(), db.Config{Driver: "sqlite", DSN: "file::memory:", MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := AutoMigrate(d.DB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewPricingRepository(d.DB)
}

func sampleResult(symbol string, at time.Time) *domain.PricingResult {
	market := domain.MarketInputs{AssetPrice: 102, StrikePrice: 100, TimeToExpiry: 0.25, Volatility: 0.2}
	rates := domain.CarryFromDividendYield(0.10, 0.05)
	greeks := &domain.Greeks{
		Delta: decimal.NewFromFloat(-0.41),
		Gamma: decimal.NewFromFloat(0.037),
		Theta: decimal.NewFromFloat(-0.012),
		Vega:  decimal.NewFromFloat(0.1874285849056408),
		Rho:   decimal.NewFromFloat(-0.1),
	}
	return domain.NewPricingResult(symbol, domain.OptionTypePut, market, rates, 2.55645374712968, greeks, at)
}

func TestSaveAndGetLatestPricingResult(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC)

	if _, err := repo.GetLatestPricingResult(ctx, "XYZ"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	older := sampleResult("XYZ", base)
	newer := sampleResult("XYZ", base.Add(time.Minute))
	other := sampleResult("ABC", base.Add(time.Hour))
	for _, r := range []*domain.PricingResult{older, newer, other} {
		if err := repo.SavePricingResult(ctx, r); err != nil {
			t.Fatalf("save: %v", err)
		}
		if r.ID == 0 {
			t.Fatal("ID should be assigned on save")
		}
	}

	got, err := repo.GetLatestPricingResult(ctx, "XYZ")
	if err != nil {
		t.Fatalf("GetLatestPricingResult: %v", err)
	}
	if got.ID != newer.ID || got.CalculatedAt != newer.CalculatedAt {
		t.Fatalf("expected newest result %d, got %d", newer.ID, got.ID)
	}
	if got.OptionType != domain.OptionTypePut || got.PricingModel != domain.ModelGBSM {
		t.Fatalf("unexpected fields %+v", got)
	}
	if diff := got.OptionPrice.Sub(newer.OptionPrice).Abs(); diff.GreaterThan(decimal.NewFromFloat(1e-9)) {
		t.Fatalf("option price %s != %s", got.OptionPrice, newer.OptionPrice)
	}
	if diff := got.Vega.Sub(newer.Vega).Abs(); diff.GreaterThan(decimal.NewFromFloat(1e-9)) {
		t.Fatalf("vega %s != %s", got.Vega, newer.Vega)
	}
	if got.CostOfCarry != newer.CostOfCarry || got.TimeToExpiry != 0.25 {
		t.Fatalf("inputs not preserved: %+v", got)
	}
}

func TestPricingResultHistoryOrderAndLimit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		if err := repo.SavePricingResult(ctx, sampleResult("XYZ", base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	hist, err := repo.GetPricingResultHistory(ctx, "XYZ", 3)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(hist))
	}
	for i := 1; i < len(hist); i++ {
		if hist[i-1].CalculatedAt < hist[i].CalculatedAt {
			t.Fatal("history must be newest first")
		}
	}
}

func TestImpliedVolRecords(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC)
	market := domain.MarketInputs{AssetPrice: 102, StrikePrice: 100, TimeToExpiry: 0.25}
	rates := domain.CarryFromDividendYield(0.10, 0.05)

	converged := domain.NewImpliedVolRecord("XYZ", domain.OptionTypePut, market, rates, 2.5565,
		&domain.ImpliedVolResult{Volatility: 0.2000025, Iterations: 3, Residual: 1e-7, Converged: true}, base)
	stalled := domain.NewImpliedVolRecord("XYZ", domain.OptionTypeCall, market, rates, 0.01,
		&domain.ImpliedVolResult{Volatility: 0.01, Iterations: 1, Residual: 2.1, Converged: false}, base.Add(time.Second))

	for _, rec := range []*domain.ImpliedVolRecord{converged, stalled} {
		if err := repo.SaveImpliedVolRecord(ctx, rec); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	hist, err := repo.GetImpliedVolHistory(ctx, "XYZ", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 records, got %d", len(hist))
	}
	if hist[0].Converged || hist[0].OptionType != domain.OptionTypeCall {
		t.Fatalf("newest record should be the stalled call: %+v", hist[0])
	}
	if !hist[1].Converged || hist[1].Iterations != 3 || hist[1].Volatility != 0.2000025 {
		t.Fatalf("unexpected converged record %+v", hist[1])
	}
}

func TestWithTxRollback(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	boom := errors.New("outbox write failed")

	err := repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := repo.SavePricingResult(txCtx, sampleResult("XYZ", time.Now())); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := repo.GetLatestPricingResult(ctx, "XYZ"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("rolled back result must not be visible, got %v", err)
	}
}

func TestCleanupBefore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC)
	market := domain.MarketInputs{AssetPrice: 100, StrikePrice: 100, TimeToExpiry: 1}
	rates := domain.RateInputs{}
	ivRes := &domain.ImpliedVolResult{Volatility: 0.2, Converged: true}

	_ = repo.SavePricingResult(ctx, sampleResult("XYZ", base.Add(-48*time.Hour)))
	_ = repo.SavePricingResult(ctx, sampleResult("XYZ", base))
	_ = repo.SaveImpliedVolRecord(ctx, domain.NewImpliedVolRecord("XYZ", domain.OptionTypeCall, market, rates, 8, ivRes, base.Add(-72*time.Hour)))

	n, err := repo.CleanupBefore(ctx, base.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CleanupBefore: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted %d rows, want 2", n)
	}
	hist, _ := repo.GetPricingResultHistory(ctx, "XYZ", 10)
	if len(hist) != 1 || hist[0].CalculatedAt != base.UnixMilli() {
		t.Fatalf("unexpected remaining history %+v", hist)
	}
}

func TestStaleSymbols(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 20, 8, 0, 0, 0, time.UTC)

	_ = repo.SavePricingResult(ctx, sampleResult("OLD", base.Add(-72*time.Hour)))
	_ = repo.SavePricingResult(ctx, sampleResult("ALSO", base.Add(-30*time.Hour)))
	_ = repo.SavePricingResult(ctx, sampleResult("MIX", base.Add(-48*time.Hour)))
	_ = repo.SavePricingResult(ctx, sampleResult("MIX", base))

	symbols, err := repo.StaleSymbols(ctx, base.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("StaleSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "ALSO" || symbols[1] != "OLD" {
		t.Fatalf("stale symbols = %v, want [ALSO OLD]", symbols)
	}
}
