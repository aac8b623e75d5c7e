package writer

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/radx/internal/logger"
	"github.com/rxtech-lab/radx/internal/types"
	"github.com/rxtech-lab/radx/pkg/errors"
	"go.uber.org/zap"
)

// DuckDBWriter buffers bars in an in-memory DuckDB table and exports them to Parquet.
type DuckDBWriter struct {
	db         *sql.DB
	tx         *sql.Tx
	stmt       *sql.Stmt
	outputPath string
	rows       int
	log        *logger.Logger
}

// NewDuckDBWriter creates a writer that exports to the Parquet file at outputPath.
func NewDuckDBWriter(outputPath string, log *logger.Logger) BarWriter {
	return &DuckDBWriter{
		db:         nil,
		tx:         nil,
		stmt:       nil,
		outputPath: outputPath,
		rows:       0,
		log:        log,
	}
}

// Initialize opens the in-memory database, creates the bars table and prepares the insert.
func (w *DuckDBWriter) Initialize() (err error) {
	w.db, err = sql.Open("duckdb", ":memory:")
	if err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to open duckdb", err)
	}

	_, err = w.db.Exec(`
		CREATE TABLE bars (
			time TIMESTAMP,
			local_time VARCHAR,
			local_date VARCHAR,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume BIGINT,
			source_contract_id VARCHAR
		)
	`)
	if err != nil {
		w.db.Close()
		w.db = nil

		return errors.Wrap(errors.ErrCodeExportFailed, "failed to create bars table", err)
	}

	w.tx, err = w.db.Begin()
	if err != nil {
		w.db.Close()
		w.db = nil

		return errors.Wrap(errors.ErrCodeExportFailed, "failed to begin transaction", err)
	}

	w.stmt, err = w.tx.Prepare(`
		INSERT INTO bars (time, local_time, local_date, open, high, low, close, volume, source_contract_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		w.tx.Rollback()
		w.tx = nil
		w.db.Close()
		w.db = nil

		return errors.Wrap(errors.ErrCodeExportFailed, "failed to prepare insert", err)
	}

	return nil
}

// Write inserts a single bar inside the open transaction.
func (w *DuckDBWriter) Write(bar types.Bar) error {
	if w.stmt == nil {
		return errors.New(errors.ErrCodeExportFailed, "writer not initialized")
	}

	_, err := w.stmt.Exec(
		bar.Time.UTC(),
		bar.TimeLocal.Format(time.RFC3339),
		bar.LocalDate(),
		bar.Open,
		bar.High,
		bar.Low,
		bar.Close,
		bar.Volume,
		bar.SourceContractID,
	)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeExportFailed, err, "failed to insert bar at %s", bar.Time)
	}

	w.rows++

	return nil
}

// Finalize commits the buffered bars and copies the table to the output file.
func (w *DuckDBWriter) Finalize() (string, error) {
	if w.tx == nil {
		return "", errors.New(errors.ErrCodeExportFailed, "writer not initialized")
	}

	if err := w.stmt.Close(); err != nil {
		return "", errors.Wrap(errors.ErrCodeExportFailed, "failed to close insert", err)
	}

	w.stmt = nil

	if err := w.tx.Commit(); err != nil {
		w.tx.Rollback()
		w.tx = nil

		return "", errors.Wrap(errors.ErrCodeExportFailed, "failed to commit bars", err)
	}

	w.tx = nil

	escaped := strings.ReplaceAll(w.outputPath, "'", "''")

	_, err := w.db.Exec(fmt.Sprintf(`COPY (SELECT * FROM bars ORDER BY time) TO '%s' (FORMAT PARQUET)`, escaped))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeExportFailed, "failed to export parquet", err)
	}

	w.log.Info("Exported bars", zap.String("path", w.outputPath), zap.Int("rows", w.rows))

	return w.outputPath, nil
}

// Close releases the statement, rolls back an unfinished transaction and closes the database.
func (w *DuckDBWriter) Close() error {
	var closeErrors []string

	if w.stmt != nil {
		if err := w.stmt.Close(); err != nil {
			closeErrors = append(closeErrors, fmt.Sprintf("close statement: %v", err))
		}

		w.stmt = nil
	}

	if w.tx != nil {
		if err := w.tx.Rollback(); err != nil {
			w.log.Warn("Failed to roll back export transaction", zap.Error(err))
		}

		w.tx = nil
	}

	if w.db != nil {
		if err := w.db.Close(); err != nil {
			closeErrors = append(closeErrors, fmt.Sprintf("close db: %v", err))
		}

		w.db = nil
	}

	if len(closeErrors) > 0 {
		return errors.Newf(errors.ErrCodeExportFailed, "errors occurred during close: %s", strings.Join(closeErrors, "; "))
	}

	return nil
}

// GetOutputPath returns the configured output file path.
func (w *DuckDBWriter) GetOutputPath() string {
	return w.outputPath
}
