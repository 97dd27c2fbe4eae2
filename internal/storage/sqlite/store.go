// Package sqlite implements the wide-row cell store on SQLite.
//
// Each cell keeps only its newest version; the payload is the column's binary
// encoding compressed with snappy. Partition deletions and range tombstones are
// kept beside the cells and applied on read.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kailas-cloud/rowsearch/internal/domain"
	"github.com/kailas-cloud/rowsearch/internal/domain/cql"
	"github.com/kailas-cloud/rowsearch/internal/domain/row"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS partitions (
	pk         BLOB PRIMARY KEY,
	token      INTEGER NOT NULL,
	deleted_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_partitions_token ON partitions(token, pk);

CREATE TABLE IF NOT EXISTS cells (
	pk      BLOB NOT NULL,
	ck      BLOB NOT NULL,
	col     TEXT NOT NULL,
	value   BLOB,
	ts      INTEGER NOT NULL,
	expires INTEGER NOT NULL DEFAULT 0,
	deleted INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (pk, ck, col)
);

CREATE TABLE IF NOT EXISTS range_tombstones (
	pk              BLOB NOT NULL,
	has_start       INTEGER NOT NULL,
	start_key       BLOB NOT NULL,
	start_inclusive INTEGER NOT NULL,
	has_end         INTEGER NOT NULL,
	end_key         BLOB NOT NULL,
	end_inclusive   INTEGER NOT NULL,
	deleted_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_range_tombstones_pk ON range_tombstones(pk);
`

const upsertCellSQL = `
INSERT INTO cells (pk, ck, col, value, ts, expires, deleted) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (pk, ck, col) DO UPDATE SET
	value = excluded.value, ts = excluded.ts, expires = excluded.expires, deleted = excluded.deleted
WHERE excluded.ts > cells.ts OR (excluded.ts = cells.ts AND excluded.deleted > cells.deleted)`

const upsertPartitionSQL = `
INSERT INTO partitions (pk, token, deleted_at) VALUES (?, ?, ?)
ON CONFLICT (pk) DO UPDATE SET deleted_at = max(partitions.deleted_at, excluded.deleted_at)`

// Store is a SQLite-backed cell store.
type Store struct {
	db    *sql.DB
	table *cql.Table
}

// New opens (or creates) the store at dsn. Values are encoded with the table's column types.
func New(dsn string, table *cql.Table) (*Store, error) {
	if table == nil {
		return nil, errors.New("sqlite: table is required")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// Single connection: one writer, and a shared :memory: database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: init schema: %w", err)
	}
	return &Store{db: db, table: table}, nil
}

// Apply writes a mutation in one transaction.
func (s *Store) Apply(ctx context.Context, m *row.Mutation) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidMutation, err)
	}
	cells := m.StampedCells()
	values := make([][]byte, len(cells))
	for i, c := range cells {
		v, err := s.encode(c)
		if err != nil {
			return err
		}
		values[i] = v
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var deletedAt int64
	if m.PartitionDeletion != nil {
		deletedAt = m.PartitionDeletion.UnixNano()
	}
	pk := []byte(m.PartitionKey)
	if _, err := tx.ExecContext(ctx, upsertPartitionSQL, pk, m.PartitionKey.Token(), deletedAt); err != nil {
		return fmt.Errorf("sqlite: upsert partition: %w", err)
	}

	for _, t := range m.StampedTombstones() {
		start, end := boundArgs(t.Start), boundArgs(t.End)
		args := []any{pk}
		args = append(args, start...)
		args = append(args, end...)
		args = append(args, t.DeletedAt.UnixNano())
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO range_tombstones VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
			return fmt.Errorf("sqlite: insert range tombstone: %w", err)
		}
	}

	if len(cells) > 0 {
		stmt, err := tx.PrepareContext(ctx, upsertCellSQL)
		if err != nil {
			return fmt.Errorf("sqlite: prepare: %w", err)
		}
		defer stmt.Close()
		for i, c := range cells {
			var expires int64
			if !c.ExpiresAt.IsZero() {
				expires = c.ExpiresAt.UnixNano()
			}
			if _, err := stmt.ExecContext(ctx, pk, blob(c.Clustering), c.Column, values[i],
				c.Timestamp.UnixNano(), expires, c.Deleted); err != nil {
				return fmt.Errorf("sqlite: upsert cell: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// ReadCells returns the reconciled cells of a partition that fall within the slices.
func (s *Store) ReadCells(ctx context.Context, pk row.PartitionKey, slices []row.Slice) ([]row.Cell, error) {
	if len(slices) == 0 {
		return nil, nil
	}
	cells, deletedAt, tombstones, err := s.read(ctx, pk, slices)
	if err != nil {
		return nil, fmt.Errorf("%w: partition %s: %w", domain.ErrStorageRead, pk, err)
	}
	return row.Reconcile(cells, deletedAt, tombstones), nil
}

func (s *Store) read(ctx context.Context, pk row.PartitionKey, slices []row.Slice) ([]row.Cell, time.Time, []row.RangeTombstone, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, time.Time{}, nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	var deletedAt int64
	err = tx.QueryRowContext(ctx, `SELECT deleted_at FROM partitions WHERE pk = ?`, []byte(pk)).Scan(&deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, nil, nil
	}
	if err != nil {
		return nil, time.Time{}, nil, fmt.Errorf("read partition: %w", err)
	}

	tombstones, err := readTombstones(ctx, tx, pk)
	if err != nil {
		return nil, time.Time{}, nil, err
	}
	cells, err := s.readCells(ctx, tx, pk, slices)
	if err != nil {
		return nil, time.Time{}, nil, err
	}

	var deleted time.Time
	if deletedAt != 0 {
		deleted = fromNanos(deletedAt)
	}
	return cells, deleted, tombstones, nil
}

func (s *Store) readCells(ctx context.Context, tx *sql.Tx, pk row.PartitionKey, slices []row.Slice) ([]row.Cell, error) {
	where, args := sliceFilter(slices)
	query := `SELECT ck, col, value, ts, expires, deleted FROM cells WHERE pk = ? AND (` +
		where + `) ORDER BY ck, col`

	rows, err := tx.QueryContext(ctx, query, append([]any{[]byte(pk)}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("query cells: %w", err)
	}
	defer rows.Close()

	var cells []row.Cell
	for rows.Next() {
		var (
			ck          []byte
			col         string
			value       []byte
			ts, expires int64
			deleted     bool
		)
		if err := rows.Scan(&ck, &col, &value, &ts, &expires, &deleted); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		c := row.Cell{Column: col, Timestamp: fromNanos(ts), Deleted: deleted}
		if len(ck) > 0 {
			c.Clustering = row.ClusteringKey(ck)
		}
		if expires != 0 {
			c.ExpiresAt = fromNanos(expires)
		}
		if c.Value, err = s.decode(col, value); err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

func readTombstones(ctx context.Context, tx *sql.Tx, pk row.PartitionKey) ([]row.RangeTombstone, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT has_start, start_key, start_inclusive, has_end, end_key, end_inclusive, deleted_at
		FROM range_tombstones WHERE pk = ?`, []byte(pk))
	if err != nil {
		return nil, fmt.Errorf("query range tombstones: %w", err)
	}
	defer rows.Close()

	var out []row.RangeTombstone
	for rows.Next() {
		var (
			hasStart, startIncl, hasEnd, endIncl bool
			startKey, endKey                     []byte
			deletedAt                            int64
		)
		if err := rows.Scan(&hasStart, &startKey, &startIncl, &hasEnd, &endKey, &endIncl, &deletedAt); err != nil {
			return nil, fmt.Errorf("scan range tombstone: %w", err)
		}
		t := row.RangeTombstone{DeletedAt: fromNanos(deletedAt)}
		if hasStart {
			t.Start = &row.Bound{Key: row.ClusteringKey(startKey), Inclusive: startIncl}
		}
		if hasEnd {
			t.End = &row.Bound{Key: row.ClusteringKey(endKey), Inclusive: endIncl}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Partitions lists every partition key in token order.
func (s *Store) Partitions(ctx context.Context) ([]row.PartitionKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pk FROM partitions ORDER BY token, pk`)
	if err != nil {
		return nil, fmt.Errorf("%w: list partitions: %w", domain.ErrStorageRead, err)
	}
	defer rows.Close()

	var keys []row.PartitionKey
	for rows.Next() {
		var pk []byte
		if err := rows.Scan(&pk); err != nil {
			return nil, fmt.Errorf("%w: scan partition: %w", domain.ErrStorageRead, err)
		}
		keys = append(keys, row.PartitionKey(pk))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list partitions: %w", domain.ErrStorageRead, err)
	}
	return keys, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) encode(c row.Cell) ([]byte, error) {
	if c.IsMarker() || c.Deleted {
		return nil, nil
	}
	typ, ok := s.table.Column(c.Column)
	if !ok {
		return nil, fmt.Errorf("%w: unknown column %q", domain.ErrInvalidMutation, c.Column)
	}
	raw, err := cql.Marshal(typ, c.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: column %q: %w", domain.ErrInvalidMutation, c.Column, err)
	}
	if raw == nil {
		return nil, nil
	}
	return snappy.Encode(nil, raw), nil
}

func (s *Store) decode(col string, value []byte) (any, error) {
	if col == "" || len(value) == 0 {
		return nil, nil
	}
	typ, ok := s.table.Column(col)
	if !ok {
		return nil, fmt.Errorf("unknown column %q", col)
	}
	raw, err := snappy.Decode(nil, value)
	if err != nil {
		return nil, fmt.Errorf("decompress column %q: %w", col, err)
	}
	v, err := cql.Unmarshal(typ, raw)
	if err != nil {
		return nil, fmt.Errorf("decode column %q: %w", col, err)
	}
	return v, nil
}

// sliceFilter renders the slices as a disjunction over ck. SQLite compares
// blobs bytewise, matching ClusteringKey.Compare.
func sliceFilter(slices []row.Slice) (string, []any) {
	parts := make([]string, 0, len(slices))
	var args []any
	for _, sl := range slices {
		var conds []string
		if sl.Start != nil {
			conds = append(conds, "ck >= ?")
			args = append(args, []byte(sl.Start))
		}
		if sl.End != nil {
			conds = append(conds, "ck <= ?")
			args = append(args, []byte(sl.End))
		}
		if len(conds) == 0 {
			return "1", nil
		}
		parts = append(parts, "("+strings.Join(conds, " AND ")+")")
	}
	return strings.Join(parts, " OR "), args
}

func boundArgs(b *row.Bound) []any {
	if b == nil {
		return []any{false, []byte{}, false}
	}
	return []any{true, blob(b.Key), b.Inclusive}
}

// blob maps a nil key to the empty blob so it stays comparable in SQL.
func blob(k []byte) []byte {
	if k == nil {
		return []byte{}
	}
	return k
}

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }
