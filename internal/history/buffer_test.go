package history

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func obs(id string, price int64) Observation {
	return Observation{
		Identifier: id,
		PriceUSD:   decimal.NewFromInt(price),
		ObservedAt: time.Now(),
	}
}

func TestBufferBatchTrim(t *testing.T) {
	b := NewBuffer(5, 3)

	for i := int64(1); i <= 5; i++ {
		b.Append(obs("btc", i))
	}
	if got := b.Len("btc"); got != 5 {
		t.Fatalf("expected 5 entries before overflow, got %d", got)
	}

	// The 6th push would exceed maxHistory: trim to keepCount, then append.
	b.Append(obs("btc", 6))
	if got := b.Len("btc"); got != 4 {
		t.Fatalf("expected keepCount+1 entries after trim, got %d", got)
	}

	entries := b.Entries("btc")
	want := []int64{3, 4, 5, 6}
	for i, w := range want {
		if !entries[i].PriceUSD.Equal(decimal.NewFromInt(w)) {
			t.Fatalf("entry %d: want %d, got %s", i, w, entries[i].PriceUSD)
		}
	}
}

func TestBufferOscillatesBetweenBounds(t *testing.T) {
	b := NewBuffer(5, 3)

	overflowed := false
	for i := int64(1); i <= 50; i++ {
		b.Append(obs("btc", i))
		n := b.Len("btc")
		if n > 5 {
			t.Fatalf("length %d exceeds maxHistory after push %d", n, i)
		}
		if i > 5 {
			overflowed = true
		}
		if overflowed && n < 4 {
			t.Fatalf("length %d below keepCount+1 after push %d", n, i)
		}
	}
}

func TestBufferPerIdentifierIsolation(t *testing.T) {
	b := NewBuffer(5, 3)
	for i := int64(1); i <= 6; i++ {
		b.Append(obs("btc", i))
	}
	b.Append(obs("eth", 10))

	if got := b.Len("eth"); got != 1 {
		t.Fatalf("eth buffer should hold 1 entry, got %d", got)
	}
	if got := b.Len("btc"); got != 4 {
		t.Fatalf("btc buffer should be unaffected, got %d", got)
	}
}

func TestSummarize(t *testing.T) {
	b := NewBuffer(10, 5)

	if _, ok := b.Summarize("btc"); ok {
		t.Fatal("empty buffer must report no summary")
	}

	for _, p := range []int64{100, 110, 90, 104} {
		b.Append(obs("btc", p))
	}

	s, ok := b.Summarize("btc")
	if !ok {
		t.Fatal("expected a summary")
	}
	if s.Count != 4 {
		t.Fatalf("count: want 4, got %d", s.Count)
	}
	if !s.Current.Equal(decimal.NewFromInt(104)) {
		t.Fatalf("current: want 104, got %s", s.Current)
	}
	if !s.Highest.Equal(decimal.NewFromInt(110)) || !s.Lowest.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("range: want [90,110], got [%s,%s]", s.Lowest, s.Highest)
	}
	if !s.Average.Equal(decimal.NewFromInt(101)) {
		t.Fatalf("average: want 101, got %s", s.Average)
	}
}

func TestNewBufferRejectsBadCaps(t *testing.T) {
	for _, tc := range [][2]int{{0, 0}, {5, 5}, {5, 6}, {5, 0}} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("NewBuffer(%d, %d) should panic", tc[0], tc[1])
				}
			}()
			NewBuffer(tc[0], tc[1])
		}()
	}
}
