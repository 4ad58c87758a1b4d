package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/cache"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/model"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/provider/providertest"
	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/resilience"
)

var errUpstream = errors.New("upstream unavailable")

func newTestGateway(p *providertest.Fake, cfg Config, opts ...Option) (*Gateway, *cache.Cache[model.Quote]) {
	c := cache.New[model.Quote](cache.Config{MaxSize: 100})
	return New(p, c, cfg, opts...), c
}

func TestFetch_PartialFailure(t *testing.T) {
	p := &providertest.Fake{
		Prices:  map[string]float64{"AAA": 1, "BBB": 2},
		Fail:    map[string]bool{"BBB": true},
		FailErr: errUpstream,
	}
	g, _ := newTestGateway(p, Config{BatchSize: 1})

	res, err := g.Fetch(context.Background(), []string{"AAA", "BBB", "CCC"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	want := Summary{Total: 3, Successful: 1, Failed: 2, Cached: 0}
	if res.Summary != want {
		t.Errorf("Summary = %+v, want %+v", res.Summary, want)
	}
	if _, ok := res.Data["AAA"]; !ok {
		t.Error("AAA missing from Data")
	}
	if !strings.Contains(res.Failed["BBB"], "upstream unavailable") {
		t.Errorf("Failed[BBB] = %q, want upstream error", res.Failed["BBB"])
	}
	if res.Failed["CCC"] != noDataReason {
		t.Errorf("Failed[CCC] = %q, want %q", res.Failed["CCC"], noDataReason)
	}
}

func TestFetch_NormalizesAndDeduplicates(t *testing.T) {
	p := &providertest.Fake{Prices: map[string]float64{"AAA": 1, "BBB": 2}}
	g, _ := newTestGateway(p, Config{BatchSize: 10})

	res, err := g.Fetch(context.Background(), []string{" aaa", "AAA", "bbb", ""})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Summary.Total != 2 {
		t.Errorf("Total = %d, want 2", res.Summary.Total)
	}
	batches := p.Batches()
	if len(batches) != 1 || strings.Join(batches[0], ",") != "AAA,BBB" {
		t.Errorf("batches = %v, want [[AAA BBB]]", batches)
	}
}

func TestFetch_CacheHits(t *testing.T) {
	p := &providertest.Fake{Prices: map[string]float64{"AAA": 1, "BBB": 2}}
	g, c := newTestGateway(p, Config{BatchSize: 10})
	ctx := context.Background()

	if _, err := g.Fetch(ctx, []string{"AAA"}); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !c.Has("AAA") {
		t.Fatal("fetched quote not cached")
	}

	res, err := g.Fetch(ctx, []string{"AAA", "BBB"})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if res.Summary.Cached != 1 {
		t.Errorf("Cached = %d, want 1", res.Summary.Cached)
	}
	if res.Data["AAA"].Source != "cache" {
		t.Errorf("AAA Source = %q, want cache", res.Data["AAA"].Source)
	}
	if p.Calls() != 2 {
		t.Errorf("upstream calls = %d, want 2", p.Calls())
	}
	if last := p.Batches()[1]; len(last) != 1 || last[0] != "BBB" {
		t.Errorf("second batch = %v, want [BBB]", last)
	}
}

func TestFetch_AllFailed(t *testing.T) {
	p := &providertest.Fake{
		Fail:    map[string]bool{"AAA": true},
		FailErr: errUpstream,
	}
	g, _ := newTestGateway(p, Config{})

	res, err := g.Fetch(context.Background(), []string{"AAA"})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("error = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errUpstream) {
		t.Error("ErrAllFailed should wrap the upstream error")
	}
	if res.Summary.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Summary.Failed)
	}
}

func TestFetch_Empty(t *testing.T) {
	p := &providertest.Fake{}
	g, _ := newTestGateway(p, Config{})

	res, err := g.Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch(nil) error = %v", err)
	}
	if res.Summary.Total != 0 || p.Calls() != 0 {
		t.Errorf("Fetch(nil) = %+v with %d calls", res.Summary, p.Calls())
	}
}

func TestFetch_ConcurrencyCap(t *testing.T) {
	p := &providertest.Fake{Delay: 30 * time.Millisecond, Prices: map[string]float64{}}
	symbols := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		sym := string(rune('A'+i)) + "X"
		symbols = append(symbols, sym)
		p.SetPrice(sym, float64(i+1))
	}
	g, _ := newTestGateway(p, Config{BatchSize: 2, MaxConcurrency: 3})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			// Distinct slices so singleflight does not merge the calls.
			g.Fetch(context.Background(), symbols[offset*6:offset*6+6])
		}(i)
	}
	wg.Wait()

	if p.Calls() != 9 {
		t.Errorf("upstream calls = %d, want 9", p.Calls())
	}
	if got := p.MaxInFlight(); got > 3 {
		t.Errorf("max in-flight upstream calls = %d, want <= 3", got)
	}
}

func TestFetch_SingleflightCollapses(t *testing.T) {
	p := &providertest.Fake{Delay: 50 * time.Millisecond, Prices: map[string]float64{"AAA": 1}}
	g, _ := newTestGateway(p, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Fetch(context.Background(), []string{"AAA"}); err != nil {
				t.Errorf("Fetch() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if p.Calls() != 1 {
		t.Errorf("upstream calls = %d, want 1", p.Calls())
	}
}

func TestFetch_FailingSymbolsDoNotBlockOthers(t *testing.T) {
	p := &providertest.Fake{
		Prices:  map[string]float64{"GOOD": 1},
		Fail:    map[string]bool{"BAD": true},
		FailErr: errUpstream,
	}
	g, _ := newTestGateway(p, Config{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := g.Fetch(ctx, []string{"BAD"}); !errors.Is(err, errUpstream) {
			t.Fatalf("Fetch(BAD) #%d error = %v, want upstream error", i, err)
		}
	}
	before := p.Calls()

	res, err := g.Fetch(ctx, []string{"GOOD"})
	if err != nil {
		t.Fatalf("Fetch(GOOD) error = %v", err)
	}
	if res.Summary.Successful != 1 {
		t.Errorf("Successful = %d, want 1", res.Summary.Successful)
	}
	if p.Calls() != before+1 {
		t.Errorf("upstream calls = %d, want %d", p.Calls(), before+1)
	}
}

func TestFetch_CancelledCallerDoesNotFailSharedCall(t *testing.T) {
	p := &providertest.Fake{Delay: 100 * time.Millisecond, Prices: map[string]float64{"AAA": 1}}
	g, _ := newTestGateway(p, Config{})

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := g.Fetch(leaderCtx, []string{"AAA"})
		leaderErr <- err
	}()

	deadline := time.Now().Add(time.Second)
	for p.Calls() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("upstream call never started")
		}
		time.Sleep(time.Millisecond)
	}

	type outcome struct {
		res *Result
		err error
	}
	follower := make(chan outcome, 1)
	go func() {
		res, err := g.Fetch(context.Background(), []string{"AAA"})
		follower <- outcome{res, err}
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("leader error = %v, want context.Canceled", err)
	}
	got := <-follower
	if got.err != nil {
		t.Fatalf("follower error = %v", got.err)
	}
	if got.res.Summary.Successful != 1 {
		t.Errorf("follower Successful = %d, want 1", got.res.Summary.Successful)
	}
	if p.Calls() != 1 {
		t.Errorf("upstream calls = %d, want 1", p.Calls())
	}
}

func TestQuote(t *testing.T) {
	p := &providertest.Fake{Prices: map[string]float64{"AAA": 12.5}}
	g, _ := newTestGateway(p, Config{})
	ctx := context.Background()

	q, err := g.Quote(ctx, "aaa")
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if q.Symbol != "AAA" || q.Price.String() != "12.5" {
		t.Errorf("Quote() = %+v", q)
	}

	if _, err := g.Quote(ctx, "ZZZ"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Quote(ZZZ) error = %v, want ErrNotFound", err)
	}
	if _, err := g.Quote(ctx, "  "); !errors.Is(err, resilience.ErrValidation) {
		t.Errorf("Quote(blank) error = %v, want ErrValidation", err)
	}
}

func TestOverview(t *testing.T) {
	p := &providertest.Fake{Prices: map[string]float64{"XU100": 10000, "AAA": 1, "BBB": 2}}
	g, _ := newTestGateway(p, Config{})

	ov, err := g.Overview(context.Background(), []string{"AAA", "BBB"}, []string{"XU100"}, 5)
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}
	if len(ov.Indices) != 1 || ov.Indices[0].Symbol != "XU100" {
		t.Errorf("Indices = %v", ov.Indices)
	}
	if len(ov.MostActive) != 2 {
		t.Errorf("MostActive = %d entries, want 2", len(ov.MostActive))
	}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{5, 2, []int{2, 2, 1}},
		{4, 2, []int{2, 2}},
		{1, 50, []int{1}},
	}
	for _, tt := range tests {
		syms := make([]string, tt.n)
		got := chunk(syms, tt.size)
		if len(got) != len(tt.want) {
			t.Fatalf("chunk(%d, %d) = %d batches, want %d", tt.n, tt.size, len(got), len(tt.want))
		}
		for i := range got {
			if len(got[i]) != tt.want[i] {
				t.Errorf("chunk(%d, %d)[%d] has %d, want %d", tt.n, tt.size, i, len(got[i]), tt.want[i])
			}
		}
	}
}
