package matrix

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"
)

// DuckDBSink exports assembled matrices into a DuckDB file for ad-hoc analysis.
type DuckDBSink struct {
	db   *sql.DB
	path string
}

func OpenDuckDB(path string) (*DuckDBSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create duckdb directory: %w", err)
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect duckdb %s: %w", path, err)
	}
	return &DuckDBSink{db: db, path: path}, nil
}

func (s *DuckDBSink) Close() error {
	return s.db.Close()
}

// WriteTable replaces table name with the contents of t. NaN is stored as NULL.
func (s *DuckDBSink) WriteTable(ctx context.Context, name string, t *Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
		return fmt.Errorf("drop %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, CreateTableSQL(name, t.Columns)); err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}

	stmt, err := tx.PrepareContext(ctx, InsertSQL(name, len(t.Columns)))
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", name, err)
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns)+1)
	for _, row := range t.Rows {
		args[0] = row.ID
		for i, v := range row.Values {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				args[i+1] = nil
			} else {
				args[i+1] = v
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert case %s: %w", row.ID, err)
		}
	}
	return tx.Commit()
}

func CreateTableSQL(name string, columns []string) string {
	defs := make([]string, 0, len(columns)+1)
	defs = append(defs, quoteIdent(IDColumn)+" VARCHAR PRIMARY KEY")
	for _, c := range columns {
		defs = append(defs, quoteIdent(c)+" DOUBLE")
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
}

func InsertSQL(name string, columns int) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", columns+1), ", ")
	return fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(name), marks)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
