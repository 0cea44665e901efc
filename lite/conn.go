package lite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sqlite-bench/bench"
	"sqlite-bench/workload"
)

// Conn is one pinned SQLite connection with its own statement cache. It is
// not safe for concurrent use.
type Conn struct {
	db    *sql.DB
	conn  *sql.Conn
	stmts map[string]*sql.Stmt

	// begin opens an explicit write transaction; empty means autocommit.
	begin string
}

var _ bench.Conn = (*Conn)(nil)

func (c *Conn) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	if stmt, ok := c.stmts[query]; ok {
		return stmt, nil
	}
	stmt, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	c.stmts[query] = stmt
	return stmt, nil
}

// PointRead fetches the row for key. A missing key is not an error.
func (c *Conn) PointRead(ctx context.Context, t *workload.Table, key int64) ([]any, error) {
	stmt, err := c.prepare(ctx, selectSQL(t))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", t.Name, err)
	}

	row := make([]any, len(t.Columns)+1)
	dest := make([]any, len(row))
	for i := range row {
		dest[i] = &row[i]
	}
	if err := stmt.QueryRowContext(ctx, key).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select %s: %w", t.Name, err)
	}
	return row, nil
}

func (c *Conn) PointInsert(ctx context.Context, t *workload.Table, columns []string, values []any) error {
	if err := c.exec(ctx, insertSQL(t, columns), values...); err != nil {
		return fmt.Errorf("insert %s: %w", t.Name, err)
	}
	return nil
}

func (c *Conn) PointUpdate(ctx context.Context, t *workload.Table, key int64, columns []string, values []any) error {
	args := append(append(make([]any, 0, len(values)+1), values...), key)
	if err := c.exec(ctx, updateSQL(t, columns), args...); err != nil {
		return fmt.Errorf("update %s: %w", t.Name, err)
	}
	return nil
}

func (c *Conn) PointDelete(ctx context.Context, t *workload.Table, key int64) error {
	if err := c.exec(ctx, "DELETE FROM "+t.Name+" WHERE id = ?", key); err != nil {
		return fmt.Errorf("delete %s: %w", t.Name, err)
	}
	return nil
}

// exec runs a mutation in autocommit mode, or between BEGIN <lock> and
// COMMIT when the profile asks for a specific lock. The transaction is
// driven by plain statements so the cached statement stays usable.
func (c *Conn) exec(ctx context.Context, query string, args ...any) error {
	stmt, err := c.prepare(ctx, query)
	if err != nil {
		return err
	}
	if c.begin == "" {
		_, err = stmt.ExecContext(ctx, args...)
		return err
	}

	if _, err := c.conn.ExecContext(ctx, c.begin); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if _, err := stmt.ExecContext(ctx, args...); err != nil {
		_, _ = c.conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		return err
	}
	if _, err := c.conn.ExecContext(ctx, "COMMIT"); err != nil {
		_, _ = c.conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the statements and the connection.
func (c *Conn) Close() error {
	var errs []error
	for _, stmt := range c.stmts {
		errs = append(errs, stmt.Close())
	}
	c.stmts = nil
	errs = append(errs, c.conn.Close(), c.db.Close())
	return errors.Join(errs...)
}

func selectSQL(t *workload.Table) string {
	cols := append([]string{"id"}, t.ColumnNames()...)
	return fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(cols, ", "), t.Name)
}

func insertSQL(t *workload.Table, columns []string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, strings.Join(columns, ", "), marks)
}

func updateSQL(t *workload.Table, columns []string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = c + " = ?"
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", t.Name, strings.Join(sets, ", "))
}
