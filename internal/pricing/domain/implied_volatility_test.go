package domain

import (
	"errors"
	"math"
	"testing"
)

func TestImpliedVolatilityReferenceCase(t *testing.T) {
	res, err := ImpliedVolatility(OptionTypePut, refMarket, refRates, 2.5565)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !almostEqual(res.Volatility, 0.20, 1e-5) {
		t.Errorf("iv = %v, want 0.20", res.Volatility)
	}
	if !res.Converged || res.Residual >= ImpliedVolTolerance {
		t.Errorf("result not converged: %+v", res)
	}
}

func TestImpliedVolatilityIgnoresInputVolatility(t *testing.T) {
	m := refMarket
	m.Volatility = 0
	res, err := ImpliedVolatility(OptionTypePut, m, refRates, 2.5565)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !almostEqual(res.Volatility, 0.20, 1e-5) {
		t.Errorf("iv = %v, want 0.20", res.Volatility)
	}
}

func TestImpliedVolatilityRoundTrip(t *testing.T) {
	rates := []RateInputs{
		CarryFromDividendYield(0.05, 0.03),
		{InterestRate: 0.10, CostOfCarry: 0.10},
		{InterestRate: 0.03, CostOfCarry: 0},
	}
	for _, T := range []float64{0.25, 0.5, 1, 2} {
		for _, vol := range []float64{0.1, 0.2, 0.35, 0.5, 0.8, 1.0, 1.5, 2.0} {
			for _, k := range []float64{95, 100, 105} {
				for _, r := range rates {
					for _, ot := range []OptionType{OptionTypeCall, OptionTypePut} {
						m := MarketInputs{AssetPrice: 100, StrikePrice: k, TimeToExpiry: T, Volatility: vol}
						p, err := Price(ot, m, r)
						if err != nil {
							t.Fatal(err)
						}
						res, err := ImpliedVolatility(ot, m, r, p)
						if err != nil {
							t.Fatalf("%s T=%v vol=%v K=%v %+v: %v", ot, T, vol, k, r, err)
						}
						if !almostEqual(res.Volatility, vol, 1e-5) {
							t.Errorf("%s T=%v vol=%v K=%v %+v: iv = %v", ot, T, vol, k, r, res.Volatility)
						}
					}
				}
			}
		}
	}
}

func TestImpliedVolatilityNotConverged(t *testing.T) {
	// 低于内在价值的报价不存在对应的波动率
	m := MarketInputs{AssetPrice: 150, StrikePrice: 100, TimeToExpiry: 0.1}
	res, err := ImpliedVolatility(OptionTypeCall, m, RateInputs{0.05, 0.05}, 1.0)
	if !errors.Is(err, ErrNotConverged) {
		t.Fatalf("err = %v, want ErrNotConverged", err)
	}
	if res == nil {
		t.Fatal("expected best result alongside ErrNotConverged")
	}
	if res.Converged || res.Residual < ImpliedVolTolerance {
		t.Errorf("result flagged as converged: %+v", res)
	}
	if res.Iterations > MaxIterations {
		t.Errorf("iterations = %d, exceeds cap", res.Iterations)
	}
	if !(res.Volatility > 0) {
		t.Errorf("volatility = %v, want positive", res.Volatility)
	}
}

func TestImpliedVolatilityInvalidInputs(t *testing.T) {
	if _, err := ImpliedVolatility("x", refMarket, refRates, 2.5); !errors.Is(err, ErrInvalidOptionType) {
		t.Errorf("invalid type: err = %v", err)
	}
	for _, price := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := ImpliedVolatility(OptionTypeCall, refMarket, refRates, price); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("price %v: err = %v, want ErrInvalidInput", price, err)
		}
	}
	m := refMarket
	m.TimeToExpiry = 0
	if _, err := ImpliedVolatility(OptionTypeCall, m, refRates, 2.5); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("zero time: err = %v, want ErrInvalidInput", err)
	}
}

func TestSeedVolatility(t *testing.T) {
	if got := SeedVolatility(refMarket, refRates); !almostEqual(got, 0.5986827, 1e-6) {
		t.Errorf("seed = %v, want 0.5986827", got)
	}
	// ln(S/K)+rT = 0 时根号项为 0，取下限
	atm := MarketInputs{AssetPrice: 100, StrikePrice: 100, TimeToExpiry: 1}
	if got := SeedVolatility(atm, RateInputs{}); got != SeedFloor {
		t.Errorf("seed = %v, want SeedFloor", got)
	}
}

func TestSolveNewtonHaltPaths(t *testing.T) {
	constant := func(v float64) func(float64) float64 { return func(float64) float64 { return v } }
	near := func(a, b float64) bool { return almostEqual(a, b, 1e-12) }

	cases := []struct {
		name      string
		target    float64
		seed      float64
		price     func(float64) float64
		vega      func(float64) float64
		wantVol   float64
		wantIter  int
		wantResid float64
		converged bool
	}{
		{
			// 0.5 -> 0.25 使残差从 0.5 变为 1.0，丢弃该步
			name:   "worsening step is discarded",
			target: 1.0,
			seed:   0.5,
			price: func(s float64) float64 {
				if near(s, 0.5) {
					return 1.5
				}
				return 2.0
			},
			vega:      constant(0.02),
			wantVol:   0.5,
			wantIter:  1,
			wantResid: 0.5,
		},
		{
			name:      "zero vega on seed",
			target:    1.0,
			seed:      0.3,
			price:     constant(1.5),
			vega:      constant(0),
			wantVol:   0.3,
			wantIter:  0,
			wantResid: 0.5,
		},
		{
			name:      "NaN vega on seed",
			target:    1.0,
			seed:      0.3,
			price:     constant(1.5),
			vega:      constant(math.NaN()),
			wantVol:   0.3,
			wantIter:  0,
			wantResid: 0.5,
		},
		{
			// 0.5 -> 0.25 残差相等继续迭代，0.25 -> 0.75 命中目标
			name:   "equal residual keeps iterating",
			target: 1.0,
			seed:   0.5,
			price: func(s float64) float64 {
				switch {
				case near(s, 0.5):
					return 1.5
				case near(s, 0.25):
					return 0.5
				case near(s, 0.75):
					return 1.0
				}
				return 100
			},
			vega: func(s float64) float64 {
				if near(s, 0.25) {
					return 0.01
				}
				return 0.02
			},
			wantVol:   0.75,
			wantIter:  2,
			wantResid: 0,
			converged: true,
		},
		{
			name:      "non-positive step",
			target:    1.0,
			seed:      0.5,
			price:     constant(3.0),
			vega:      constant(0.01),
			wantVol:   0.5,
			wantIter:  1,
			wantResid: 2.0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := solveNewton(tc.target, tc.seed, tc.price, tc.vega)
			if res == nil {
				t.Fatalf("nil result, err %v", err)
			}
			if !near(res.Volatility, tc.wantVol) || res.Iterations != tc.wantIter || res.Converged != tc.converged {
				t.Fatalf("got %+v, want vol=%v iter=%d converged=%v", res, tc.wantVol, tc.wantIter, tc.converged)
			}
			if !near(res.Residual, tc.wantResid) {
				t.Fatalf("residual = %v, want %v", res.Residual, tc.wantResid)
			}
			if tc.converged {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
			} else if !errors.Is(err, ErrNotConverged) {
				t.Fatalf("expected ErrNotConverged, got %v", err)
			}
		})
	}
}

func TestSolveNewtonStopsAtIterationCap(t *testing.T) {
	// 每步只消除 1% 的残差，始终改善但无法在上限内收敛
	identity := func(s float64) float64 { return s }
	unit := func(float64) float64 { return 1 }

	res, err := solveNewton(10, 1, identity, unit)
	if !errors.Is(err, ErrNotConverged) {
		t.Fatalf("expected ErrNotConverged, got %v", err)
	}
	if res.Iterations != MaxIterations {
		t.Fatalf("iterations = %d, want %d", res.Iterations, MaxIterations)
	}
	want := 9 * math.Pow(0.99, MaxIterations)
	if !almostEqual(res.Residual, want, 1e-9) {
		t.Fatalf("residual = %v, want %v", res.Residual, want)
	}
	if res.Volatility <= 1 || res.Volatility >= 10 {
		t.Fatalf("volatility = %v", res.Volatility)
	}
}
