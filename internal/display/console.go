package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Console renders the loop to a terminal in the emoji style of the
// standalone trackers this tool grew out of.
type Console struct {
	out io.Writer
}

// NewConsole builds a console sink writing to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter builds a console sink writing to w.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

func (c *Console) Startup(info StartupInfo) {
	fmt.Fprintf(c.out, "🚀 Crypto Price Tracker Started - Monitoring: %s\n", strings.Join(info.Names, ", "))
	fmt.Fprintf(c.out, "📊 Monitoring interval: %s\n", info.Interval)
	fmt.Fprintf(c.out, "⚠️  Alert threshold: %s%%\n", info.ThresholdPct.StringFixed(1))
	if info.StoreEnabled {
		fmt.Fprintf(c.out, "💾 Database: %s (%d records)\n", info.StoreLocation, info.StoreTotal)
		for id, price := range info.SeededPrices {
			fmt.Fprintf(c.out, "📋 Loaded last known price for %s: $%s\n", id, formatPrice(price))
		}
	}
	fmt.Fprintln(c.out, strings.Repeat("-", 70))
}

func (c *Console) Observation(obs Observation) {
	prefix := ""
	if obs.Delta.Triggered {
		prefix = "🚨 ALERT! "
	}

	line := fmt.Sprintf("%s[%s] %s: $%s %s",
		prefix,
		obs.ObservedAt.Format("2006-01-02 15:04:05"),
		obs.Symbol,
		formatPrice(obs.PriceUSD),
		deltaText(obs),
	)

	if obs.Volume24h.IsPositive() {
		line += fmt.Sprintf(" Vol: $%s", obs.Volume24h.StringFixed(0))
	}
	if obs.Liquidity.IsPositive() {
		line += fmt.Sprintf(" Liq: $%s", obs.Liquidity.StringFixed(0))
	}
	if obs.StoreEnabled {
		if obs.Persisted {
			line += " 💾"
		} else {
			line += " ❌"
		}
	}
	fmt.Fprintln(c.out, strings.TrimRight(line, " "))
}

func (c *Console) Alert(obs Observation) {
	fmt.Fprintf(c.out, "🔔 Significant price movement detected for %s!\n", obs.Symbol)
}

func (c *Console) CycleFailure(at time.Time) {
	fmt.Fprintf(c.out, "❌ Failed to fetch prices at %s\n", at.Format("15:04:05"))
}

func (c *Console) CycleEnd() {
	fmt.Fprintln(c.out)
}

func (c *Console) Summary(summary SessionSummary) {
	fmt.Fprintln(c.out, "\n📊 Session Summary:")
	for _, item := range summary.Items {
		if item.Stats.Count == 0 {
			continue
		}
		fmt.Fprintf(c.out, "%s: %d observations, range $%s - $%s, avg $%s\n",
			item.Symbol,
			item.Stats.Count,
			formatPrice(item.Stats.Lowest),
			formatPrice(item.Stats.Highest),
			formatPrice(item.Stats.Average),
		)
	}
	if summary.StoreEnabled {
		fmt.Fprintf(c.out, "Total records in database: %d\n", summary.StoreTotal)
	}
	fmt.Fprintln(c.out, "👋 Price monitoring stopped")
}

func deltaText(obs Observation) string {
	if !obs.Delta.HasBaseline {
		return ""
	}
	arrow := "➡️"
	switch obs.Delta.Direction {
	case "up":
		arrow = "📈"
	case "down":
		arrow = "📉"
	}
	return fmt.Sprintf("%s $%s (%s)", arrow, signedFixed(obs.Delta.Change, 8), obs.Delta.DeltaDescription())
}

// Sub-dollar tokens need the full 8 decimal places; majors read better with 2.
func formatPrice(p decimal.Decimal) string {
	if p.Abs().LessThan(decimal.NewFromInt(1)) {
		return p.StringFixed(8)
	}
	return p.StringFixed(2)
}

func signedFixed(d decimal.Decimal, places int32) string {
	s := d.StringFixed(places)
	if d.Sign() >= 0 {
		s = "+" + s
	}
	return s
}

var _ Sink = (*Console)(nil)
