package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/cenkalti/backoff/v4"

	"github.com/nholding/tsingest/internal/schema"
)

// Dialect supplies the SQL-flavor-specific knowledge a SQLStore needs:
// parameter placeholder syntax, logical-to-SQL type mapping, and how to
// recognize a unique-constraint violation or a transient connection error
// from the driver's native error type. Postgres and SQLite backends each
// provide one; SQLStore itself holds no dialect-specific code.
type Dialect interface {
	DriverName() string
	Placeholder(n int) string
	SQLType(t schema.Type) string
	IsUniqueViolation(err error) bool
	IsTransient(err error) bool
	IsMissingTable(err error) bool
}

// SQLStore is a database/sql-backed Store implementation generalized over a
// Dialect. It is the single place the "scoped acquisition of a transaction
// with guaranteed commit or rollback on all exit paths" pattern lives:
// every operation below runs inside withTx, and StoreTransient failures are
// retried with backoff before being wrapped and returned.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an already-open, already-pinged connection.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) Close() error { return s.db.Close() }

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error, retrying the whole attempt on a transient failure.
func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	op := func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			if s.dialect.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		if err := fn(tx); err != nil {
			tx.Rollback()
			if s.dialect.IsUniqueViolation(err) {
				return backoff.Permanent(err)
			}
			if s.dialect.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		if err := tx.Commit(); err != nil {
			if s.dialect.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	err := backoff.Retry(op, backoff.WithContext(bo, ctx))
	if err == nil {
		return nil
	}
	if s.dialect.IsUniqueViolation(err) {
		return err // caller wraps as UniqueViolationError with table context
	}
	if s.dialect.IsTransient(err) {
		return &TransientError{Cause: err}
	}
	return err
}

func (s *SQLStore) CreateTable(ctx context.Context, name string, sch schema.Schema, primaryKey []string, createMissing bool) error {
	exists, err := s.tableExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if !createMissing {
		return &TableMissingError{Table: name}
	}

	columnNames := sch.ColumnNames()
	sqlTypes := make([]string, len(sch.Columns))
	for i, c := range sch.Columns {
		sqlTypes[i] = s.dialect.SQLType(c.Type)
	}

	ddl := BuildCreateTable(name, columnNames, sqlTypes, primaryKey)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, ddl)
		return err
	})
}

func (s *SQLStore) tableExists(ctx context.Context, name string) (bool, error) {
	row := s.db.QueryRowContext(ctx, BuildSelect(name, "FALSE"))
	var discard any
	err := row.Scan(&discard)
	if err == nil || err == sql.ErrNoRows {
		return true, nil
	}
	if s.dialect.IsMissingTable(err) {
		return false, nil
	}
	return false, err
}

func (s *SQLStore) Append(ctx context.Context, name string, rows schema.Batch) error {
	if len(rows) == 0 {
		return nil
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, row := range rows {
			columnNames := sortedKeys(row)
			stmt := BuildInsert(name, columnNames, s.dialect.Placeholder)
			args := make([]any, len(columnNames))
			for i, col := range columnNames {
				args[i] = row[col]
			}
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && s.dialect.IsUniqueViolation(err) {
		return &UniqueViolationError{Table: name, Cause: err}
	}
	return err
}

// Replace atomically substitutes all rows of a table: delete everything,
// then append the replacement batch, in one transaction.
func (s *SQLStore) Replace(ctx context.Context, name string, rows schema.Batch) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, BuildDelete(name, "TRUE")); err != nil {
			return err
		}
		for _, row := range rows {
			columnNames := sortedKeys(row)
			stmt := BuildInsert(name, columnNames, s.dialect.Placeholder)
			args := make([]any, len(columnNames))
			for i, col := range columnNames {
				args[i] = row[col]
			}
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) Query(ctx context.Context, name string, pred Predicate) (schema.Batch, error) {
	where, args := CompileWhere(pred, s.dialect.Placeholder)
	var batch schema.Batch
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, BuildSelect(name, where), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		batch, err = scanRows(rows)
		return err
	})
	return batch, err
}

func (s *SQLStore) Delete(ctx context.Context, name string, pred Predicate) (int, error) {
	where, args := CompileWhere(pred, s.dialect.Placeholder)
	var affected int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, BuildDelete(name, where), args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return int(affected), err
}

func (s *SQLStore) DropTable(ctx context.Context, name string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", QuoteIdent(name))); err != nil {
			return err
		}
		return nil
	})
}

// Join left-outer-joins the named tables on a shared column, applying each
// table's own predicate, and returns the materialized result. Used only by
// the read side, never by collect/delete.
func (s *SQLStore) Join(ctx context.Context, names []string, on string, joins []JoinSpec) (schema.Batch, error) {
	if len(names) == 0 {
		return nil, nil
	}

	var query string
	var args []any

	base := names[0]
	query = fmt.Sprintf("SELECT * FROM %s", QuoteIdent(base))
	for _, other := range names[1:] {
		query += fmt.Sprintf(" LEFT OUTER JOIN %s ON %s.%s = %s.%s",
			QuoteIdent(other), QuoteIdent(base), QuoteIdent(on), QuoteIdent(other), QuoteIdent(on))
	}

	var wheres []string
	for _, j := range joins {
		if j.Predicate == nil {
			continue
		}
		clause, predArgs := CompileWhere(j.Predicate, func(n int) string { return s.dialect.Placeholder(len(args) + n) })
		wheres = append(wheres, clause)
		args = append(args, predArgs...)
	}
	if len(wheres) > 0 {
		query += " WHERE "
		for i, w := range wheres {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}

	var batch schema.Batch
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		batch, err = scanRows(rows)
		return err
	})
	return batch, err
}

func scanRows(rows *sql.Rows) (schema.Batch, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var batch schema.Batch
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(schema.Row, len(cols))
		for i, c := range cols {
			row[c] = normalizeScanned(values[i])
		}
		batch = append(batch, row)
	}
	return batch, rows.Err()
}

// normalizeScanned converts driver-returned values ([]byte for TEXT on some
// drivers, etc.) into the plain Go types schema.Validate expects.
func normalizeScanned(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	default:
		return v
	}
}

// sortedKeys returns row's columns in deterministic order, which keeps
// generated SQL stable across calls — this matters for prepared-statement
// caching upstream.
func sortedKeys(row schema.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
