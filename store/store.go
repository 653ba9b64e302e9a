// Package store is a thin single-writer wrapper around an embedded
// SQLite database: schema migrations, prepared exec, row-scanning
// queries, and explicit multi-statement transactions. It is the sole
// write path for the indexer; everything else treats it as a generic
// transactional SQL store.
package store

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// ErrNotFound is a sentinel for callers that model "no row" as an
// error. The helpers in this package do not return it: QueryOne
// reports an empty result as found == false.
var ErrNotFound = errors.New("store: not found")

// Store serializes all writes through a single mutex; reads are
// issued against an independent read-only connection pool so the
// sync loop's writer and the read API's queries don't contend on the
// same *sql.DB handle (the reimplementation note in spec §9).
type Store struct {
	path string

	writeMu sync.Mutex
	writeDB *sql.DB
	readDB  *sql.DB
}

// Open opens (creating if necessary) the SQLite file at path and
// applies any migrations not yet recorded in _migrations.
func Open(path string) (*Store, error) {
	writeDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "opening write connection")
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)

	readDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&mode=ro&_busy_timeout=5000")
	if err != nil {
		writeDB.Close()
		return nil, errors.Wrap(err, "opening read connection")
	}

	s := &Store{path: path, writeDB: writeDB, readDB: readDB}
	if err := s.migrate(); err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, errors.Wrap(err, "running migrations")
	}
	return s, nil
}

// Close releases both underlying connection pools.
func (s *Store) Close() error {
	writeErr := s.writeDB.Close()
	readErr := s.readDB.Close()
	if writeErr != nil {
		return writeErr
	}
	return readErr
}

// Exec runs a write statement under the store's single-writer lock.
func (s *Store) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writeDB.ExecContext(ctx, query, args...)
}

// QueryOne runs query and maps the first row with scan, returning
// (zero, false, nil) when the result set is empty rather than an
// error, matching the source's Option-returning query_one.
func QueryOne[T any](ctx context.Context, s *Store, query string, scan func(*sql.Row) (T, error), args ...interface{}) (T, bool, error) {
	var zero T
	row := s.readDB.QueryRowContext(ctx, query, args...)
	v, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, errors.Wrap(err, "query_one")
	}
	return v, true, nil
}

// QueryAll runs query and maps every row with scan.
func QueryAll[T any](ctx context.Context, s *Store, query string, scan func(*sql.Rows) (T, error), args ...interface{}) ([]T, error) {
	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query_all")
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning row")
		}
		out = append(out, v)
	}
	return out, errors.Wrap(rows.Err(), "iterating rows")
}

// Tx is the transaction handle passed to WithTx's closure. It exposes
// Exec for writes and QueryRow for single-row reads that must see the
// transaction's own uncommitted writes.
type Tx struct {
	tx *sql.Tx
}

// Exec runs a statement within the enclosing transaction.
func (t *Tx) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// QueryRow runs a single-row query within the enclosing transaction,
// for read-your-writes lookups a block-apply needs mid-commit (e.g.
// recomputing a balance after the rows touching it have been inserted).
func (t *Tx) QueryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

// WithTx is the store's sole write path for multi-statement batches:
// it wraps fn in BEGIN/COMMIT under the write lock and rolls back on
// any error fn returns.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sqlTx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rolling back after error (rollback also failed: %s)", rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return errors.Wrap(err, "committing transaction")
	}
	return nil
}

// Checkpoint flushes SQLite's WAL to the main database file. Best
// effort: failures are returned for the caller to log, not treated
// as fatal.
func (s *Store) Checkpoint(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.writeDB.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return errors.Wrap(err, "checkpoint")
}

// Stats reports row counts used by the /stats read endpoint.
type Stats struct {
	BlockCount       int64
	TxCount          int64
	BoxCount         int64
	UnspentBoxCount  int64
	TokenCount       int64
	AddressCount     int64
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	queries := []struct {
		sql string
		dst *int64
	}{
		{"SELECT COUNT(*) FROM blocks", &stats.BlockCount},
		{"SELECT COUNT(*) FROM transactions", &stats.TxCount},
		{"SELECT COUNT(*) FROM boxes", &stats.BoxCount},
		{"SELECT COUNT(*) FROM boxes WHERE spent_tx_id IS NULL", &stats.UnspentBoxCount},
		{"SELECT COUNT(*) FROM tokens", &stats.TokenCount},
		{"SELECT COUNT(*) FROM address_stats", &stats.AddressCount},
	}
	for _, q := range queries {
		if err := s.readDB.QueryRowContext(ctx, q.sql).Scan(q.dst); err != nil {
			return Stats{}, errors.Wrapf(err, "counting %s", q.sql)
		}
	}
	return stats, nil
}

// SyncHeight returns MAX(height) FROM blocks, or -1 if the table is empty.
func (s *Store) SyncHeight(ctx context.Context) (int64, error) {
	var height sql.NullInt64
	err := s.readDB.QueryRowContext(ctx, "SELECT MAX(height) FROM blocks").Scan(&height)
	if err != nil {
		return 0, errors.Wrap(err, "querying sync height")
	}
	if !height.Valid {
		return -1, nil
	}
	return height.Int64, nil
}
