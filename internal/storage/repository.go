package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertRecordSQL = `INSERT INTO price_records (
        symbol,
        coin_id,
        price_usd,
        timestamp,
        volume_24h,
        market_cap,
        price_change_24h,
        extra_data
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    );`

	latestRecordSQL = `SELECT
        id, symbol, coin_id, price_usd, timestamp,
        volume_24h, market_cap, price_change_24h, extra_data, created_at
    FROM price_records
    WHERE coin_id = $1
    ORDER BY timestamp DESC, id DESC
    LIMIT 1;`

	historySQL = `SELECT
        id, symbol, coin_id, price_usd, timestamp,
        volume_24h, market_cap, price_change_24h, extra_data, created_at
    FROM price_records
    WHERE coin_id = $1
    ORDER BY timestamp DESC, id DESC
    LIMIT $2;`

	historyRangeSQL = `SELECT
        id, symbol, coin_id, price_usd, timestamp,
        volume_24h, market_cap, price_change_24h, extra_data, created_at
    FROM price_records
    WHERE coin_id = $1
      AND timestamp >= $2
      AND timestamp < $3
    ORDER BY timestamp, id;`

	statsSQL = `SELECT
        COUNT(*),
        COALESCE(MIN(price_usd), 0),
        COALESCE(MAX(price_usd), 0),
        COALESCE(AVG(price_usd), 0),
        MIN(timestamp),
        MAX(timestamp)
    FROM price_records
    WHERE coin_id = $1
      AND timestamp >= $2;`

	cleanupSQL = `DELETE FROM price_records WHERE timestamp < $1;`

	countRecordsSQL = `SELECT COUNT(*) FROM price_records;`

	symbolCountsSQL = `SELECT symbol, COUNT(*)
    FROM price_records
    GROUP BY symbol;`
)

// PriceRecordStore defines the durable record operations the monitor and the
// query commands rely on.
type PriceRecordStore interface {
	InsertPriceRecord(ctx context.Context, rec PriceRecord) error
	LatestPrice(ctx context.Context, coinID string) (*PriceRecord, error)
	PriceHistory(ctx context.Context, coinID string, limit int) ([]PriceRecord, error)
	PriceHistoryBetween(ctx context.Context, coinID string, from, to time.Time) ([]PriceRecord, error)
	PriceStats(ctx context.Context, coinID string, window time.Duration) (*PriceStats, error)
	CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Info(ctx context.Context) (StoreInfo, error)
}

// DB is the subset of *pgxpool.Pool the repository relies on.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store is the PostgreSQL-backed record store.
type Store struct {
	pool     DB
	location string
}

// NewStore wires a connection pool into a Store. location is a display-safe
// description of where the data lives.
func NewStore(pool DB, location string) *Store {
	return &Store{pool: pool, location: location}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (DB, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertPriceRecord appends one observation. The timestamp is normalised to
// UTC before it reaches the table so range queries stay well-formed.
func (s *Store) InsertPriceRecord(ctx context.Context, rec PriceRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()

	extra := []byte("{}")
	if len(rec.Extra) > 0 {
		encoded, marshalErr := json.Marshal(rec.Extra)
		if marshalErr != nil {
			return fmt.Errorf("marshal extra data: %w", marshalErr)
		}
		extra = encoded
	}

	_, execErr := pool.Exec(ctx, insertRecordSQL,
		rec.Symbol,
		rec.CoinID,
		rec.PriceUSD.String(),
		ts,
		rec.Volume24h.String(),
		rec.MarketCap.String(),
		rec.Change24h.String(),
		extra,
	)
	if execErr != nil {
		return fmt.Errorf("insert price record: %w", execErr)
	}
	return nil
}

// LatestPrice returns the most recent record for a coin, ties broken by
// insertion id. Returns (nil, nil) when no record exists.
func (s *Store) LatestPrice(ctx context.Context, coinID string) (*PriceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, latestRecordSQL, coinID)
	if queryErr != nil {
		return nil, fmt.Errorf("query latest price: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	rec, scanErr := scanPriceRecord(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &rec, nil
}

// PriceHistory lists the most recent limit records, newest first.
func (s *Store) PriceHistory(ctx context.Context, coinID string, limit int) ([]PriceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, historySQL, coinID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("query price history: %w", queryErr)
	}
	defer rows.Close()

	records := make([]PriceRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanPriceRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// PriceHistoryBetween lists records with a timestamp in [from, to), oldest
// first, so exports read in chronological order straight off the index.
func (s *Store) PriceHistoryBetween(ctx context.Context, coinID string, from, to time.Time) ([]PriceRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, historyRangeSQL, coinID, from.UTC(), to.UTC())
	if queryErr != nil {
		return nil, fmt.Errorf("query price history range: %w", queryErr)
	}
	defer rows.Close()

	var records []PriceRecord
	for rows.Next() {
		rec, scanErr := scanPriceRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// PriceStats aggregates records within the trailing window from now.
// Returns (nil, nil) when no records qualify.
func (s *Store) PriceStats(ctx context.Context, coinID string, window time.Duration) (*PriceStats, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	since := time.Now().UTC().Add(-window)

	var (
		count                  int64
		minStr, maxStr, avgStr string
		earliest, latest       *time.Time
	)
	if scanErr := pool.QueryRow(ctx, statsSQL, coinID, since).Scan(
		&count, &minStr, &maxStr, &avgStr, &earliest, &latest,
	); scanErr != nil {
		return nil, fmt.Errorf("query price stats: %w", scanErr)
	}

	if count == 0 {
		return nil, nil
	}

	stats := PriceStats{Count: count}
	var convErr error
	if stats.MinPrice, convErr = decimal.NewFromString(minStr); convErr != nil {
		return nil, fmt.Errorf("parse min price: %w", convErr)
	}
	if stats.MaxPrice, convErr = decimal.NewFromString(maxStr); convErr != nil {
		return nil, fmt.Errorf("parse max price: %w", convErr)
	}
	if stats.AvgPrice, convErr = decimal.NewFromString(avgStr); convErr != nil {
		return nil, fmt.Errorf("parse avg price: %w", convErr)
	}
	if earliest != nil {
		stats.Earliest = *earliest
	}
	if latest != nil {
		stats.Latest = *latest
	}
	return &stats, nil
}

// CleanupBefore deletes records with a timestamp older than the cutoff and
// reports how many were removed. A second call with the same cutoff deletes
// zero.
func (s *Store) CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, cleanupSQL, cutoff.UTC())
	if execErr != nil {
		return 0, fmt.Errorf("cleanup old records: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

// Info reports store totals and location.
func (s *Store) Info(ctx context.Context) (StoreInfo, error) {
	pool, err := s.getPool()
	if err != nil {
		return StoreInfo{}, err
	}

	info := StoreInfo{
		SymbolCounts: make(map[string]int64),
		Location:     s.location,
	}
	if scanErr := pool.QueryRow(ctx, countRecordsSQL).Scan(&info.TotalRecords); scanErr != nil {
		return StoreInfo{}, fmt.Errorf("count records: %w", scanErr)
	}

	rows, queryErr := pool.Query(ctx, symbolCountsSQL)
	if queryErr != nil {
		return StoreInfo{}, fmt.Errorf("count per symbol: %w", queryErr)
	}
	defer rows.Close()

	for rows.Next() {
		var symbol string
		var count int64
		if scanErr := rows.Scan(&symbol, &count); scanErr != nil {
			return StoreInfo{}, scanErr
		}
		info.SymbolCounts[symbol] = count
	}
	if rows.Err() != nil {
		return StoreInfo{}, rows.Err()
	}
	return info, nil
}

func scanPriceRecord(rows pgx.Rows) (PriceRecord, error) {
	var (
		rec                                    PriceRecord
		priceStr, volumeStr, capStr, changeStr string
		extra                                  []byte
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.Symbol,
		&rec.CoinID,
		&priceStr,
		&rec.Timestamp,
		&volumeStr,
		&capStr,
		&changeStr,
		&extra,
		&rec.CreatedAt,
	); err != nil {
		return PriceRecord{}, err
	}

	var convErr error
	if rec.PriceUSD, convErr = decimal.NewFromString(priceStr); convErr != nil {
		return PriceRecord{}, fmt.Errorf("parse price: %w", convErr)
	}
	if rec.Volume24h, convErr = decimal.NewFromString(volumeStr); convErr != nil {
		return PriceRecord{}, fmt.Errorf("parse volume: %w", convErr)
	}
	if rec.MarketCap, convErr = decimal.NewFromString(capStr); convErr != nil {
		return PriceRecord{}, fmt.Errorf("parse market cap: %w", convErr)
	}
	if rec.Change24h, convErr = decimal.NewFromString(changeStr); convErr != nil {
		return PriceRecord{}, fmt.Errorf("parse 24h change: %w", convErr)
	}

	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &rec.Extra); err != nil {
			return PriceRecord{}, fmt.Errorf("parse extra data: %w", err)
		}
	}
	return rec, nil
}

var _ PriceRecordStore = (*Store)(nil)
