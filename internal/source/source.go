// Package source reads rows from a relational database and tags every value
// with its normalize.Kind.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"db_sheets_sync/internal/normalize"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Result is the header and typed rows of one query.
type Result struct {
	Columns []string
	Rows    [][]normalize.Cell
}

type DB struct {
	db      *sql.DB
	driver  string
	timeout time.Duration
}

// Open connects to the database and verifies the connection with a ping
// bounded by timeout.
func Open(ctx context.Context, driver, dsn string, timeout time.Duration) (*DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Debug().Str("driver", driver).Msg("Database connection established")
	return &DB{db: db, driver: driver, timeout: timeout}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Query runs query and reads every row into memory.
func (d *DB) Query(ctx context.Context, query string) (*Result, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	result := &Result{Columns: make([]string, len(types))}
	dbTypes := make([]string, len(types))
	for i, ct := range types {
		result.Columns[i] = ct.Name()
		dbTypes[i] = strings.ToUpper(ct.DatabaseTypeName())
	}

	values := make([]any, len(types))
	ptrs := make([]any, len(types))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", len(result.Rows), err)
		}

		row := make([]normalize.Cell, len(values))
		for i, v := range values {
			row[i] = Classify(dbTypes[i], v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	log.Debug().
		Int("columns", len(result.Columns)).
		Int("rows", len(result.Rows)).
		Msg("Query complete")
	return result, nil
}

// Classify tags a scanned driver value with its cell kind. dbType is the
// upper-cased database type name of the column.
func Classify(dbType string, v any) normalize.Cell {
	switch v := v.(type) {
	case nil:
		return normalize.Null()
	case string:
		if isDecimal(dbType) {
			return normalize.Decimal(v)
		}
		return normalize.Text(v)
	case []byte:
		if isDecimal(dbType) {
			return normalize.Decimal(string(v))
		}
		return normalize.Text(string(v))
	case int64:
		return normalize.Integer(v)
	case int32:
		return normalize.Integer(int64(v))
	case int:
		return normalize.Integer(int64(v))
	case float64:
		return normalize.Float(v)
	case float32:
		return normalize.Float(float64(v))
	case bool:
		return normalize.Bool(v)
	case time.Time:
		switch {
		case dbType == "DATE":
			return normalize.Date(v)
		case strings.HasPrefix(dbType, "TIME") && !strings.HasPrefix(dbType, "TIMESTAMP"):
			// TIME and TIMETZ arrive dated 0000-01-01.
			return normalize.TimeOfDay(v)
		}
		return normalize.Timestamp(v)
	default:
		return normalize.Other(v)
	}
}

func isDecimal(dbType string) bool {
	return strings.HasPrefix(dbType, "NUMERIC") || strings.HasPrefix(dbType, "DECIMAL")
}

// ValidateTable rejects anything that is not a plain or schema-qualified
// identifier, since table names are interpolated into SQL.
func ValidateTable(name string) error {
	if !tableName.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// SelectAll builds the bounded fetch query for table.
func SelectAll(table string, limit int) (string, error) {
	if err := ValidateTable(table); err != nil {
		return "", err
	}
	if limit <= 0 {
		return "", fmt.Errorf("row limit must be positive, got %d", limit)
	}
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, limit), nil
}

// PostgresDSN builds a lib/pq connection URL.
func PostgresDSN(host string, port int, database, user, password, sslmode string, timeout time.Duration) string {
	q := url.Values{}
	if sslmode != "" {
		q.Set("sslmode", sslmode)
	}
	if timeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(timeout.Seconds())))
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, password),
		Host:     net.JoinHostPort(host, strconv.Itoa(port)),
		Path:     "/" + database,
		RawQuery: q.Encode(),
	}
	return u.String()
}
