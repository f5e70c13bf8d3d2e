package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

var migrateLog goose.Logger = goose.NopLogger()

// SetMigrationLogger sends goose output to l. A nil logger silences it.
func SetMigrationLogger(l *zap.Logger) {
	if l == nil {
		migrateLog = goose.NopLogger()
		return
	}
	migrateLog = zap.NewStdLog(l.Named("migrate"))
}

// Dialect names the SQL flavour behind a DB.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DB wraps sql.DB together with the dialect it talks.
type DB struct {
	Client  *sql.DB
	Dialect Dialect
}

// NewDB creates a Postgres connection via pgx with sane defaults and migrates it.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return finish(&DB{Client: db, Dialect: Postgres})
}

// Open connects to the configured driver: "postgres" uses connString, "sqlite" uses path.
func Open(driver, connString, path string) (*DB, error) {
	switch driver {
	case string(Postgres):
		return NewDB(connString)
	case string(SQLite):
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// OpenSQLite opens (or creates) a SQLite database and migrates it. ":memory:"
// gives a private in-memory database, which is what the tests use.
func OpenSQLite(path string) (*DB, error) {
	dsn := path + "?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection: keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	return finish(&DB{Client: db, Dialect: SQLite})
}

func finish(d *DB) (*DB, error) {
	if err := d.Client.PingContext(context.Background()); err != nil {
		d.Client.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := d.migrate(); err != nil {
		d.Client.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return d, nil
}

func (d *DB) migrate() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(migrateLog)
	dir := "migrations/postgres"
	dialect := "postgres"
	if d.Dialect == SQLite {
		dir = "migrations/sqlite"
		dialect = "sqlite3"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(d.Client, dir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// Healthy pings the database.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Rebind rewrites '?' placeholders into the dialect's form. Queries are
// written once with '?' and rebound for Postgres as $1, $2, ...
func (d *DB) Rebind(query string) string {
	if d.Dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
