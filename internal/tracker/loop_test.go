package tracker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"coinwatch/internal/alerting"
	"coinwatch/internal/display"
	"coinwatch/internal/history"
	"coinwatch/internal/pricefeed"
	"coinwatch/internal/scheduler"
	"coinwatch/internal/storage"
)

// scriptedSource replays one fetch result per cycle and cancels the run
// context once the script is exhausted, so tests drive an exact number of
// cycles through the real scheduler.
type scriptedSource struct {
	script []map[string]*pricefeed.Quote
	calls  int
	cancel context.CancelFunc
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Fetch(ctx context.Context, identifiers []string) map[string]*pricefeed.Quote {
	if s.calls >= len(s.script) {
		s.cancel()
		out := make(map[string]*pricefeed.Quote, len(identifiers))
		for _, id := range identifiers {
			out[id] = nil
		}
		return out
	}
	result := s.script[s.calls]
	s.calls++
	if s.calls == len(s.script) {
		// Cancel before the post-cycle sleep so the loop exits promptly.
		defer s.cancel()
	}
	return result
}

type recordingSink struct {
	mu           sync.Mutex
	observations []display.Observation
	alerts       []display.Observation
	failures     int
	summaries    []display.SessionSummary
	startups     int
}

func (r *recordingSink) Startup(display.StartupInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startups++
}

func (r *recordingSink) Observation(obs display.Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observations = append(r.observations, obs)
}

func (r *recordingSink) Alert(obs display.Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, obs)
}

func (r *recordingSink) CycleFailure(time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
}

func (r *recordingSink) CycleEnd() {}

func (r *recordingSink) Summary(s display.SessionSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, s)
}

type fakeStore struct {
	inserted  []storage.PriceRecord
	insertErr error
	latest    map[string]*storage.PriceRecord
}

func (f *fakeStore) InsertPriceRecord(ctx context.Context, rec storage.PriceRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, rec)
	return nil
}

func (f *fakeStore) LatestPrice(ctx context.Context, coinID string) (*storage.PriceRecord, error) {
	return f.latest[coinID], nil
}

func (f *fakeStore) PriceHistory(ctx context.Context, coinID string, limit int) ([]storage.PriceRecord, error) {
	return nil, nil
}

func (f *fakeStore) PriceHistoryBetween(ctx context.Context, coinID string, from, to time.Time) ([]storage.PriceRecord, error) {
	return nil, nil
}

func (f *fakeStore) PriceStats(ctx context.Context, coinID string, window time.Duration) (*storage.PriceStats, error) {
	return nil, nil
}

func (f *fakeStore) CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeStore) Info(ctx context.Context) (storage.StoreInfo, error) {
	return storage.StoreInfo{TotalRecords: int64(len(f.inserted))}, nil
}

type fakeNotifier struct {
	notes []alerting.Notification
}

func (f *fakeNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	f.notes = append(f.notes, note)
	return nil
}

func quote(id string, price string) *pricefeed.Quote {
	return &pricefeed.Quote{
		Identifier: id,
		PriceUSD:   decimal.RequireFromString(price),
		Source:     "scripted",
		FetchedAt:  time.Now(),
	}
}

func runLoop(t *testing.T, script []map[string]*pricefeed.Quote, store storage.PriceRecordStore, notifier alerting.Notifier, opts Options) *recordingSink {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	source := &scriptedSource{script: script, cancel: cancel}
	sink := &recordingSink{}
	sched := scheduler.New(scheduler.Options{Interval: time.Millisecond}, zerolog.Nop())
	buffer := history.NewBuffer(100, 50)

	loop := New(opts, source, store, sink, notifier, sched, buffer, zerolog.Nop())
	err := loop.Run(ctx)
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("loop should stop via cancellation, got %v", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("loop did not consume the script before the test deadline")
	}
	return sink
}

func btcOpts() Options {
	return Options{
		Mode:         "coins",
		Identifiers:  []string{"bitcoin"},
		Symbols:      map[string]string{"bitcoin": "BTC"},
		ThresholdPct: decimal.NewFromInt(5),
	}
}

func TestLoopAlertsAtThreshold(t *testing.T) {
	notifier := &fakeNotifier{}
	sink := runLoop(t, []map[string]*pricefeed.Quote{
		{"bitcoin": quote("bitcoin", "100")},
		{"bitcoin": quote("bitcoin", "105")},
	}, nil, notifier, btcOpts())

	if len(sink.observations) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(sink.observations))
	}
	first, second := sink.observations[0], sink.observations[1]

	if first.Delta.HasBaseline || first.Delta.Triggered {
		t.Fatal("first observation must not have a baseline or trigger")
	}
	if !second.Delta.Triggered {
		t.Fatal("+5.00% against the previous cycle must trigger at threshold 5")
	}
	if got := second.Delta.DeltaDescription(); got != "+5.00%" {
		t.Fatalf("delta description: want +5.00%%, got %q", got)
	}

	if len(sink.alerts) != 1 {
		t.Fatalf("expected 1 alert render, got %d", len(sink.alerts))
	}
	if len(notifier.notes) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.notes))
	}
	if notifier.notes[0].Direction != "up" || notifier.notes[0].Symbol != "BTC" {
		t.Fatalf("notification mismatch: %+v", notifier.notes[0])
	}
}

func TestLoopFullCycleFailurePreservesState(t *testing.T) {
	sink := runLoop(t, []map[string]*pricefeed.Quote{
		{"bitcoin": quote("bitcoin", "100")},
		{"bitcoin": nil},
		{"bitcoin": quote("bitcoin", "106")},
	}, nil, nil, btcOpts())

	if sink.failures != 1 {
		t.Fatalf("expected 1 cycle failure, got %d", sink.failures)
	}
	// The failed cycle rendered nothing and the baseline survived it: the
	// third cycle compares 106 against 100, not against a cleared state.
	if len(sink.observations) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(sink.observations))
	}
	last := sink.observations[1]
	if !last.Delta.Triggered {
		t.Fatal("+6% against the pre-failure baseline must trigger")
	}
	if len(sink.summaries) != 1 || sink.summaries[0].Items[0].Stats.Count != 2 {
		t.Fatalf("history must not grow during a failed cycle: %+v", sink.summaries)
	}
}

func TestLoopPartialFailureProcessesRest(t *testing.T) {
	opts := Options{
		Mode:         "coins",
		Identifiers:  []string{"bitcoin", "ethereum"},
		Symbols:      map[string]string{"bitcoin": "BTC", "ethereum": "ETH"},
		ThresholdPct: decimal.NewFromInt(5),
	}
	sink := runLoop(t, []map[string]*pricefeed.Quote{
		{"bitcoin": quote("bitcoin", "100"), "ethereum": nil},
	}, nil, nil, opts)

	if sink.failures != 0 {
		t.Fatal("a partial failure is not a cycle failure")
	}
	if len(sink.observations) != 1 || sink.observations[0].Symbol != "BTC" {
		t.Fatalf("only the resolved identifier should render: %+v", sink.observations)
	}
}

func TestLoopPersistenceFailureDoesNotBlock(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("disk full")}
	sink := runLoop(t, []map[string]*pricefeed.Quote{
		{"bitcoin": quote("bitcoin", "100")},
	}, store, nil, btcOpts())

	if len(sink.observations) != 1 {
		t.Fatal("observation must render despite persistence failure")
	}
	obs := sink.observations[0]
	if !obs.StoreEnabled || obs.Persisted {
		t.Fatalf("observation should be marked unpersisted: %+v", obs)
	}
}

func TestLoopSeedsBaselineFromStore(t *testing.T) {
	seeded := storage.PriceRecord{
		CoinID:   "bitcoin",
		Symbol:   "BTC",
		PriceUSD: decimal.NewFromInt(100),
	}
	store := &fakeStore{latest: map[string]*storage.PriceRecord{"bitcoin": &seeded}}

	sink := runLoop(t, []map[string]*pricefeed.Quote{
		{"bitcoin": quote("bitcoin", "106")},
	}, store, nil, btcOpts())

	if len(sink.observations) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(sink.observations))
	}
	if !sink.observations[0].Delta.Triggered {
		t.Fatal("first cycle must alert against the persisted baseline")
	}
}

func TestLoopSurvivesZeroPriceQuote(t *testing.T) {
	// A source bug handing the loop a zero price must not poison the
	// baseline: the follow-up cycle divides by the stored previous price.
	sink := runLoop(t, []map[string]*pricefeed.Quote{
		{"bitcoin": quote("bitcoin", "0")},
		{"bitcoin": quote("bitcoin", "100")},
	}, nil, nil, btcOpts())

	if len(sink.observations) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(sink.observations))
	}
	second := sink.observations[1]
	if second.Delta.HasBaseline || second.Delta.Triggered {
		t.Fatalf("a zero baseline must evaluate as no baseline, got %+v", second.Delta)
	}
}

func TestLoopIgnoresNonPositiveSeed(t *testing.T) {
	seeded := storage.PriceRecord{
		CoinID:   "bitcoin",
		Symbol:   "BTC",
		PriceUSD: decimal.Zero,
	}
	store := &fakeStore{latest: map[string]*storage.PriceRecord{"bitcoin": &seeded}}

	sink := runLoop(t, []map[string]*pricefeed.Quote{
		{"bitcoin": quote("bitcoin", "100")},
	}, store, nil, btcOpts())

	if len(sink.observations) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(sink.observations))
	}
	if sink.observations[0].Delta.HasBaseline {
		t.Fatal("a zero persisted price must not seed a baseline")
	}
}

func TestLoopPersistsFlaggedAlertRecord(t *testing.T) {
	store := &fakeStore{}
	opts := btcOpts()
	opts.PersistAlerts = true

	runLoop(t, []map[string]*pricefeed.Quote{
		{"bitcoin": quote("bitcoin", "100")},
		{"bitcoin": quote("bitcoin", "110")},
	}, store, nil, opts)

	var alertRecords int
	for _, rec := range store.inserted {
		if strings.HasSuffix(rec.Symbol, "_ALERT") {
			alertRecords++
			if rec.Extra["alert_triggered"] != "true" {
				t.Fatalf("alert record missing flag: %+v", rec)
			}
		}
	}
	if alertRecords != 1 {
		t.Fatalf("expected 1 flagged alert record, got %d", alertRecords)
	}
	// Two observations plus one alert record.
	if len(store.inserted) != 3 {
		t.Fatalf("expected 3 inserts, got %d", len(store.inserted))
	}
}

func TestLoopUpdatesBaselineAfterProcessing(t *testing.T) {
	sink := runLoop(t, []map[string]*pricefeed.Quote{
		{"bitcoin": quote("bitcoin", "100")},
		{"bitcoin": quote("bitcoin", "103")},
		{"bitcoin": quote("bitcoin", "106")},
	}, nil, nil, btcOpts())

	// 103 vs 100 is +3%, 106 vs 103 is ~+2.9%: neither crosses 5%. If the
	// loop compared against a stale or mid-cycle value this would differ.
	for i, obs := range sink.observations[1:] {
		if obs.Delta.Triggered {
			t.Fatalf("observation %d should not trigger: %s", i+1, obs.Delta.ChangePct)
		}
	}
}
