package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"ivsurface/internal/errors"
	"ivsurface/internal/models"
)

const dateLayout = "2006-01-02"

// SQLiteStore implements SnapshotStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based snapshot store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- One row per cached ticker
	CREATE TABLE IF NOT EXISTS snapshots (
		ticker TEXT PRIMARY KEY,
		spot_price REAL NOT NULL,
		fetched_at DATETIME NOT NULL
	);

	-- Call contracts with a defined implied volatility
	CREATE TABLE IF NOT EXISTS contract_points (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		expiration TEXT NOT NULL,
		time_to_expiration REAL NOT NULL,
		strike REAL NOT NULL,
		moneyness REAL NOT NULL,
		mid_price REAL NOT NULL,
		implied_volatility REAL NOT NULL,
		FOREIGN KEY (ticker) REFERENCES snapshots(ticker) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_contract_points_ticker ON contract_points(ticker);
	CREATE INDEX IF NOT EXISTS idx_snapshots_fetched_at ON snapshots(fetched_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot replaces the stored snapshot for snap.Ticker in one transaction.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *models.OptionChainSnapshot) error {
	if snap == nil || snap.Ticker == "" {
		return errors.NewValidationError("snapshot", snap, "snapshot must have a ticker")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM contract_points WHERE ticker = ?`, snap.Ticker); err != nil {
		return fmt.Errorf("failed to clear contract points: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots (ticker, spot_price, fetched_at)
		VALUES (?, ?, ?)
	`, snap.Ticker, snap.SpotPrice, snap.FetchedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO contract_points (ticker, expiration, time_to_expiration, strike, moneyness, mid_price, implied_volatility)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range snap.Points {
		_, err := stmt.ExecContext(ctx, snap.Ticker, p.ExpirationDate.UTC().Format(dateLayout),
			p.TimeToExpiration, p.Strike, p.Moneyness, p.MidPrice, p.ImpliedVolatility)
		if err != nil {
			return fmt.Errorf("failed to insert contract point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetSnapshot loads the snapshot for ticker with its points in insertion order.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, ticker string) (*models.OptionChainSnapshot, error) {
	snap := &models.OptionChainSnapshot{Ticker: ticker}
	err := s.db.QueryRowContext(ctx, `
		SELECT spot_price, fetched_at FROM snapshots WHERE ticker = ?
	`, ticker).Scan(&snap.SpotPrice, &snap.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrDataNotFound, "no snapshot for %s", ticker)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT expiration, time_to_expiration, strike, moneyness, mid_price, implied_volatility
		FROM contract_points
		WHERE ticker = ?
		ORDER BY id ASC
	`, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to query contract points: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.ContractPoint
		if err := rows.Scan(&p.Expiration, &p.TimeToExpiration, &p.Strike, &p.Moneyness, &p.MidPrice, &p.ImpliedVolatility); err != nil {
			return nil, fmt.Errorf("failed to scan contract point: %w", err)
		}
		p.ExpirationDate, err = time.Parse(dateLayout, p.Expiration)
		if err != nil {
			return nil, fmt.Errorf("bad expiration %q: %w", p.Expiration, err)
		}
		snap.Points = append(snap.Points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contract points: %w", err)
	}

	return snap, nil
}

// DeleteSnapshot removes the snapshot for ticker, if any.
func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, ticker string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE ticker = ?`, ticker); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns a summary of every stored snapshot ordered by ticker.
func (s *SQLiteStore) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.ticker, s.spot_price, s.fetched_at,
		       COUNT(c.id), COUNT(DISTINCT c.expiration)
		FROM snapshots s
		LEFT JOIN contract_points c ON c.ticker = s.ticker
		GROUP BY s.ticker
		ORDER BY s.ticker ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.Ticker, &info.SpotPrice, &info.FetchedAt, &info.Points, &info.Expirations); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		infos = append(infos, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return infos, nil
}

// Purge removes snapshots fetched before olderThan.
func (s *SQLiteStore) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE fetched_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge snapshots: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// Clear removes every snapshot.
func (s *SQLiteStore) Clear(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM snapshots`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear snapshots: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
