package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/markdave123-py/docindex/internal/config"
)

// dialect captures the few places where Postgres and SQLite disagree.
type dialect struct {
	name       string
	driverName string
	script     string
}

var (
	postgresDialect = dialect{name: config.DriverPostgres, driverName: "pgx", script: "scripts/postgres.sql"}
	sqliteDialect   = dialect{name: config.DriverSQLite, driverName: "sqlite", script: "scripts/sqlite.sql"}
)

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case config.DriverPostgres, "pgx", "postgresql":
		return postgresDialect, nil
	case config.DriverSQLite, "sqlite3":
		return sqliteDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (d dialect) isPostgres() bool { return d.name == config.DriverPostgres }

// rebind rewrites ? placeholders to $1..$n for Postgres. Queries in this
// package never contain a literal question mark.
func (d dialect) rebind(q string) string {
	if !d.isPostgres() {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// likeOp is the case-insensitive match operator. SQLite LIKE already
// ignores ASCII case.
func (d dialect) likeOp() string {
	if d.isPostgres() {
		return "ILIKE"
	}
	return "LIKE"
}

// Options describe how to open the pool.
type Options struct {
	Driver         string
	DSN            string
	SslCertPath    string
	MaxOpenConns   int
	ConnectTimeout time.Duration
}

// OptionsFromConfig maps the process configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Driver:         cfg.DBDriver,
		DSN:            cfg.DatabaseURL,
		SslCertPath:    cfg.SslCertPath,
		MaxOpenConns:   cfg.DBMaxOpenConns,
		ConnectTimeout: cfg.DBConnectTimeout,
	}
}

func openPool(ctx context.Context, opts Options) (*sql.DB, dialect, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, dialect{}, err
	}
	if opts.DSN == "" {
		return nil, dialect{}, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := opts.DSN
	if d.isPostgres() {
		dsn, err = postgresDSN(opts.DSN, opts.SslCertPath)
	} else {
		dsn = sqliteDSN(opts.DSN)
	}
	if err != nil {
		return nil, dialect{}, err
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, dialect{}, fmt.Errorf("open db: %w", err)
	}

	if d.isPostgres() {
		maxOpen := opts.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 20
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen / 2)
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetConnMaxIdleTime(10 * time.Minute)
	} else {
		// SQLite allows one writer; a single connection serialises access
		// and keeps the per-connection pragmas in force.
		db.SetMaxOpenConns(1)
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, dialect{}, fmt.Errorf("ping db: %w", err)
	}

	return db, d, nil
}

// postgresDSN appends the SSL parameters when a root certificate is given.
func postgresDSN(raw, certPath string) (string, error) {
	if certPath == "" {
		return raw, nil
	}
	if _, err := os.Stat(certPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", certPath, err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", certPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// sqliteDSN turns a file path (optionally sqlite:// or file: prefixed)
// into a modernc DSN with foreign keys, a busy timeout and a stable time
// format.
func sqliteDSN(raw string) string {
	path := strings.TrimPrefix(raw, "sqlite://")
	if strings.Contains(path, "_pragma=") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}
