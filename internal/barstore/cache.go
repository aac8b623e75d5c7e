package barstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/radx/internal/logger"
	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
	"go.uber.org/zap"
)

// insertBatchSize bounds the rows per INSERT statement.
const insertBatchSize = 500

// Cache persists records across process runs.
type Cache interface {
	// Load returns the record for key, or ok=false on a miss.
	Load(ctx context.Context, key CacheKey) (record Record, ok bool, err error)
	// Save replaces the record for key.
	Save(ctx context.Context, key CacheKey, record Record) error
	Close() error
}

// DuckDBCache stores records in a DuckDB database file.
// Times are stored as UTC TIMESTAMP; TimeLocal is not persisted.
type DuckDBCache struct {
	db     *sql.DB
	sq     squirrel.StatementBuilderType
	logger *logger.Logger
}

// NewDuckDBCache opens or creates the cache database at path. Use ":memory:" for a throwaway cache.
func NewDuckDBCache(path string, log *logger.Logger) (*DuckDBCache, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCacheFailed, "failed to open DuckDB cache", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS bar_records (
			cache_key TEXT,
			bar_count INTEGER,
			created_at TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS bars (
			cache_key TEXT,
			seq INTEGER,
			time TIMESTAMP,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume BIGINT,
			source_contract_id TEXT
		);
		CREATE TABLE IF NOT EXISTS roll_assignments (
			cache_key TEXT,
			seq INTEGER,
			date TEXT,
			contract_id TEXT,
			volume BIGINT,
			chosen BOOLEAN,
			label TEXT
		);
	`)
	if err != nil {
		db.Close()

		return nil, errors.Wrap(errors.ErrCodeCacheFailed, "failed to create cache tables", err)
	}

	log.Debug("Opened DuckDB bar cache", zap.String("path", path))

	return &DuckDBCache{
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		logger: log,
	}, nil
}

// Load implements Cache.
func (c *DuckDBCache) Load(ctx context.Context, key CacheKey) (Record, bool, error) {
	k := key.String()

	query, args, err := c.sq.Select("bar_count").From("bar_records").Where(squirrel.Eq{"cache_key": k}).ToSql()
	if err != nil {
		return Record{}, false, errors.Wrap(errors.ErrCodeCacheFailed, "failed to build record query", err)
	}

	var count int
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, false, nil
		}

		return Record{}, false, errors.Wrap(errors.ErrCodeCacheFailed, "failed to query record", err)
	}

	bars, err := c.loadBars(ctx, k, count)
	if err != nil {
		return Record{}, false, err
	}

	assignments, err := c.loadAssignments(ctx, k)
	if err != nil {
		return Record{}, false, err
	}

	return Record{Bars: bars, Assignments: assignments}, true, nil
}

func (c *DuckDBCache) loadBars(ctx context.Context, key string, count int) ([]types.Bar, error) {
	query, args, err := c.sq.
		Select("time", "open", "high", "low", "close", "volume", "source_contract_id").
		From("bars").
		Where(squirrel.Eq{"cache_key": key}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCacheFailed, "failed to build bars query", err)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCacheFailed, "failed to query bars", err)
	}
	defer rows.Close()

	bars := make([]types.Bar, 0, count)

	for rows.Next() {
		var bar types.Bar
		if err := rows.Scan(&bar.Time, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume, &bar.SourceContractID); err != nil {
			return nil, errors.Wrap(errors.ErrCodeCacheFailed, "failed to scan bar", err)
		}

		bar.Time = bar.Time.UTC()
		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCacheFailed, "failed to read bars", err)
	}

	if len(bars) != count {
		return nil, errors.Newf(errors.ErrCodeCacheFailed, "record %s has %d bars, expected %d", key, len(bars), count)
	}

	return bars, nil
}

func (c *DuckDBCache) loadAssignments(ctx context.Context, key string) ([]types.RollAssignment, error) {
	query, args, err := c.sq.
		Select("date", "contract_id", "volume", "chosen", "label").
		From("roll_assignments").
		Where(squirrel.Eq{"cache_key": key}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCacheFailed, "failed to build assignments query", err)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCacheFailed, "failed to query assignments", err)
	}
	defer rows.Close()

	var (
		out   []types.RollAssignment
		index = make(map[string]int)
	)

	for rows.Next() {
		var (
			date, contractID, label string
			volume                  int64
			chosen                  bool
		)

		if err := rows.Scan(&date, &contractID, &volume, &chosen, &label); err != nil {
			return nil, errors.Wrap(errors.ErrCodeCacheFailed, "failed to scan assignment", err)
		}

		i, ok := index[date]
		if !ok {
			i = len(out)
			index[date] = i
			out = append(out, types.RollAssignment{Date: date, Label: label, VolumeByContract: make(map[string]int64)})
		}

		out[i].VolumeByContract[contractID] = volume
		if chosen {
			out[i].ChosenContractID = contractID
		}
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCacheFailed, "failed to read assignments", err)
	}

	return out, nil
}

// Save implements Cache. The whole record is written in one transaction.
func (c *DuckDBCache) Save(ctx context.Context, key CacheKey, record Record) (err error) {
	k := key.String()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeCacheFailed, "failed to begin transaction", err)
	}

	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.logger.Warn("Failed to rollback cache transaction", zap.Error(rbErr))
			}
		}
	}()

	for _, table := range []string{"bar_records", "bars", "roll_assignments"} {
		if err = c.exec(ctx, tx, c.sq.Delete(table).Where(squirrel.Eq{"cache_key": k})); err != nil {
			return err
		}
	}

	insert := c.sq.Insert("bar_records").
		Columns("cache_key", "bar_count", "created_at").
		Values(k, len(record.Bars), time.Now().UTC())
	if err = c.exec(ctx, tx, insert); err != nil {
		return err
	}

	for offset := 0; offset < len(record.Bars); offset += insertBatchSize {
		batch := record.Bars[offset:min(offset+insertBatchSize, len(record.Bars))]

		insert := c.sq.Insert("bars").
			Columns("cache_key", "seq", "time", "open", "high", "low", "close", "volume", "source_contract_id")
		for i, bar := range batch {
			insert = insert.Values(k, offset+i, bar.Time.UTC(), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, bar.SourceContractID)
		}

		if err = c.exec(ctx, tx, insert); err != nil {
			return err
		}
	}

	if len(record.Assignments) > 0 {
		insert := c.sq.Insert("roll_assignments").
			Columns("cache_key", "seq", "date", "contract_id", "volume", "chosen", "label")

		seq := 0

		for _, a := range record.Assignments {
			for contractID, volume := range a.VolumeByContract {
				insert = insert.Values(k, seq, a.Date, contractID, volume, contractID == a.ChosenContractID, a.Label)
				seq++
			}
		}

		if err = c.exec(ctx, tx, insert); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeCacheFailed, "failed to commit cache transaction", err)
	}

	c.logger.Debug("Cached record", zap.String("key", k), zap.Int("bars", len(record.Bars)))

	return nil
}

func (c *DuckDBCache) exec(ctx context.Context, tx *sql.Tx, builder squirrel.Sqlizer) error {
	query, args, err := builder.ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeCacheFailed, "failed to build statement", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeCacheFailed, fmt.Sprintf("failed to execute %.40s", query), err)
	}

	return nil
}

// Close implements Cache.
func (c *DuckDBCache) Close() error {
	return c.db.Close()
}
