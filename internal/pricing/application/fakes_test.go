package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/wyfcoding/gbsmpricing/internal/pricing/domain"
	"github.com/wyfcoding/gbsmpricing/pkg/contextx"
)

const fakeTx = "fake-tx"

// fakeRepo 内存仓储，WithTx 失败时丢弃事务内写入
type fakeRepo struct {
	mu       sync.Mutex
	results  []*domain.PricingResult
	records  []*domain.ImpliedVolRecord
	pendingR []*domain.PricingResult
	pendingV []*domain.ImpliedVolRecord
	inTx     bool
	saveErr  error
	getCalls int
	cleanup  time.Time
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	r.inTx = true
	r.mu.Unlock()

	err := fn(contextx.WithTx(ctx, fakeTx))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inTx = false
	if err == nil {
		r.results = append(r.results, r.pendingR...)
		r.records = append(r.records, r.pendingV...)
	}
	r.pendingR, r.pendingV = nil, nil
	return err
}

func (r *fakeRepo) SavePricingResult(ctx context.Context, result *domain.PricingResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	result.ID = uint(len(r.results) + len(r.pendingR) + 1)
	if r.inTx {
		r.pendingR = append(r.pendingR, result)
	} else {
		r.results = append(r.results, result)
	}
	return nil
}

func (r *fakeRepo) GetLatestPricingResult(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	for i := len(r.results) - 1; i >= 0; i-- {
		if r.results[i].Symbol == symbol {
			return r.results[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeRepo) GetPricingResultHistory(ctx context.Context, symbol string, limit int) ([]*domain.PricingResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PricingResult
	for i := len(r.results) - 1; i >= 0 && len(out) < limit; i-- {
		if r.results[i].Symbol == symbol {
			out = append(out, r.results[i])
		}
	}
	return out, nil
}

func (r *fakeRepo) SaveImpliedVolRecord(ctx context.Context, record *domain.ImpliedVolRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	if r.inTx {
		r.pendingV = append(r.pendingV, record)
	} else {
		r.records = append(r.records, record)
	}
	return nil
}

func (r *fakeRepo) GetImpliedVolHistory(ctx context.Context, symbol string, limit int) ([]*domain.ImpliedVolRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ImpliedVolRecord
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		if r.records[i].Symbol == symbol {
			out = append(out, r.records[i])
		}
	}
	return out, nil
}

func (r *fakeRepo) StaleSymbols(ctx context.Context, cutoff time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	latest := make(map[string]int64)
	for _, res := range r.results {
		if res.CalculatedAt > latest[res.Symbol] {
			latest[res.Symbol] = res.CalculatedAt
		}
	}
	var out []string
	for symbol, at := range latest {
		if at < cutoff.UnixMilli() {
			out = append(out, symbol)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *fakeRepo) CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanup = cutoff
	var kept []*domain.PricingResult
	var deleted int64
	for _, res := range r.results {
		if res.CalculatedAt < cutoff.UnixMilli() {
			deleted++
			continue
		}
		kept = append(kept, res)
	}
	r.results = kept
	return deleted, nil
}

type fakeCache struct {
	mu          sync.Mutex
	values      map[string]*domain.PricingResult
	getErr      error
	sets        int
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]*domain.PricingResult)}
}

func (c *fakeCache) GetLatestPricingResult(ctx context.Context, symbol string) (*domain.PricingResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.values[symbol], nil
}

func (c *fakeCache) SetLatestPricingResult(ctx context.Context, result *domain.PricingResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.values[result.Symbol] = result
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, symbol)
	delete(c.values, symbol)
	return nil
}

type publishedEvent struct {
	topic string
	key   string
	tx    any
	event any
}

type fakePublisher struct {
	mu       sync.Mutex
	events   []publishedEvent
	txErr    error
	plainErr error
}

func (p *fakePublisher) Publish(ctx context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.plainErr != nil {
		return p.plainErr
	}
	p.events = append(p.events, publishedEvent{topic: topic, key: key, event: event})
	return nil
}

func (p *fakePublisher) PublishInTx(ctx context.Context, tx any, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.txErr != nil {
		return p.txErr
	}
	p.events = append(p.events, publishedEvent{topic: topic, key: key, tx: tx, event: event})
	return nil
}

func (p *fakePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.topic)
	}
	sort.Strings(out)
	return out
}

var errBoom = errors.New("boom")
