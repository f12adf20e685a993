package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"
)

// Show prints recent persisted records for one coin.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show records")
	}
	if closeStore != nil {
		defer closeStore()
	}

	records, err := store.PriceHistory(ctx, opts.CoinID, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no records found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tPrice USD\tVolume 24h\tChange 24h%\tSource")

	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.Timestamp.UTC().Format(time.RFC3339),
			rec.Symbol,
			rec.PriceUSD.String(),
			rec.Volume24h.StringFixed(0),
			rec.Change24h.StringFixed(2),
			rec.Extra["source"],
		)
	}

	writer.Flush()
	return nil
}

// Stats prints windowed aggregates for one coin.
func (a *App) Stats(ctx context.Context, opts StatsOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot compute stats")
	}
	if closeStore != nil {
		defer closeStore()
	}

	stats, err := store.PriceStats(ctx, opts.CoinID, time.Duration(opts.Hours)*time.Hour)
	if err != nil {
		return err
	}
	if stats == nil {
		fmt.Fprintf(os.Stdout, "no records for %s in the last %dh\n", opts.CoinID, opts.Hours)
		return nil
	}

	fmt.Fprintf(os.Stdout, "Records: %d\n", stats.Count)
	fmt.Fprintf(os.Stdout, "Price range: $%s - $%s\n", stats.MinPrice.String(), stats.MaxPrice.String())
	fmt.Fprintf(os.Stdout, "Average price: $%s\n", stats.AvgPrice.String())
	fmt.Fprintf(os.Stdout, "Window: %s to %s\n",
		stats.Earliest.UTC().Format(time.RFC3339),
		stats.Latest.UTC().Format(time.RFC3339))
	return nil
}

// Info prints store totals.
func (a *App) Info(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured")
	}
	if closeStore != nil {
		defer closeStore()
	}

	info, err := store.Info(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Location: %s\n", info.Location)
	fmt.Fprintf(os.Stdout, "Total records: %d\n", info.TotalRecords)
	symbols := make([]string, 0, len(info.SymbolCounts))
	for symbol := range info.SymbolCounts {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, symbol := range symbols {
		fmt.Fprintf(writer, "%s\t%d\n", symbol, info.SymbolCounts[symbol])
	}
	writer.Flush()
	return nil
}

// Cleanup deletes records older than the retention cutoff.
func (a *App) Cleanup(ctx context.Context, opts CleanupOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; nothing to clean up")
	}
	if closeStore != nil {
		defer closeStore()
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -opts.Days)

	if opts.DryRun {
		fmt.Fprintf(os.Stdout, "dry-run: would delete records older than %s\n", cutoff.Format(time.RFC3339))
		return nil
	}

	deleted, err := store.CleanupBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Cleaned up %d old records (older than %d days)\n", deleted, opts.Days)
	return nil
}
