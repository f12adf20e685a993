package history

import (
	"time"

	"github.com/shopspring/decimal"
)

// Observation is a single in-memory price point.
type Observation struct {
	Identifier string
	PriceUSD   decimal.Decimal
	Volume24h  decimal.Decimal
	Liquidity  decimal.Decimal
	ObservedAt time.Time
}

// Summary aggregates one identifier's buffered observations.
type Summary struct {
	Count   int
	Current decimal.Decimal
	Highest decimal.Decimal
	Lowest  decimal.Decimal
	Average decimal.Decimal
}

// Buffer keeps a bounded per-identifier sequence of observations.
//
// Overflow uses a batch trim: when an append would push a sequence past
// maxHistory, it is first cut down to the most recent keepCount entries.
// After the first overflow a sequence therefore oscillates between
// keepCount+1 and maxHistory entries instead of sitting at a fixed cap.
type Buffer struct {
	maxHistory int
	keepCount  int
	entries    map[string][]Observation
}

// NewBuffer constructs a buffer. Panics on a nonsensical cap pair, since
// config validation is expected to have rejected it already.
func NewBuffer(maxHistory, keepCount int) *Buffer {
	if maxHistory <= 0 || keepCount <= 0 || keepCount >= maxHistory {
		panic("history: require 0 < keepCount < maxHistory")
	}
	return &Buffer{
		maxHistory: maxHistory,
		keepCount:  keepCount,
		entries:    make(map[string][]Observation),
	}
}

// Append records an observation for its identifier, trimming first when the
// append would exceed the cap.
func (b *Buffer) Append(obs Observation) {
	seq := b.entries[obs.Identifier]
	if len(seq)+1 > b.maxHistory {
		trimmed := make([]Observation, b.keepCount)
		copy(trimmed, seq[len(seq)-b.keepCount:])
		seq = trimmed
	}
	b.entries[obs.Identifier] = append(seq, obs)
}

// Len returns the buffered count for one identifier.
func (b *Buffer) Len(identifier string) int {
	return len(b.entries[identifier])
}

// Entries returns a copy of one identifier's observations, oldest first.
func (b *Buffer) Entries(identifier string) []Observation {
	seq := b.entries[identifier]
	out := make([]Observation, len(seq))
	copy(out, seq)
	return out
}

// Summarize aggregates one identifier's buffer. ok is false when empty.
func (b *Buffer) Summarize(identifier string) (Summary, bool) {
	seq := b.entries[identifier]
	if len(seq) == 0 {
		return Summary{}, false
	}

	s := Summary{
		Count:   len(seq),
		Current: seq[len(seq)-1].PriceUSD,
		Highest: seq[0].PriceUSD,
		Lowest:  seq[0].PriceUSD,
	}
	total := decimal.Zero
	for _, obs := range seq {
		if obs.PriceUSD.GreaterThan(s.Highest) {
			s.Highest = obs.PriceUSD
		}
		if obs.PriceUSD.LessThan(s.Lowest) {
			s.Lowest = obs.PriceUSD
		}
		total = total.Add(obs.PriceUSD)
	}
	s.Average = total.Div(decimal.NewFromInt(int64(len(seq))))
	return s, true
}
