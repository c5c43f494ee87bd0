package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := `UPDATE documents SET processing_status = ?, updated_at = ? WHERE id = ?`

	assert.Equal(t, `UPDATE documents SET processing_status = $1, updated_at = $2 WHERE id = $3`, postgresDialect.rebind(q))
	assert.Equal(t, q, sqliteDialect.rebind(q))
}

func TestDialectFor(t *testing.T) {
	d, err := dialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, "pgx", d.driverName)
	assert.Equal(t, "ILIKE", d.likeOp())

	d, err = dialectFor("sqlite")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.driverName)
	assert.Equal(t, "LIKE", d.likeOp())

	_, err = dialectFor("mysql")
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t,
		"/tmp/x.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite",
		sqliteDSN("sqlite:///tmp/x.db"))
	assert.Equal(t,
		"file:x.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite",
		sqliteDSN("file:x.db?mode=rwc"))
	assert.Equal(t, "x.db?_pragma=foreign_keys(1)", sqliteDSN("x.db?_pragma=foreign_keys(1)"))
}

func TestPostgresDSN(t *testing.T) {
	dsn, err := postgresDSN("postgres://u:p@host/db", "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@host/db", dsn)

	_, err = postgresDSN("postgres://u:p@host/db", "/does/not/exist.pem")
	assert.Error(t, err)
}

func TestDBTimeScan(t *testing.T) {
	want := time.Date(2024, 3, 2, 10, 4, 5, 123000000, time.UTC)

	for _, src := range []any{
		want,
		"2024-03-02T10:04:05.123Z",
		"2024-03-02 10:04:05.123+00:00",
		[]byte("2024-03-02 10:04:05.123 +0000 UTC"),
		"2024-03-02 10:04:05.123 +0000 UTC m=+0.000012",
	} {
		var got dbTime
		require.NoError(t, got.Scan(src), "%v", src)
		assert.True(t, got.Valid)
		assert.True(t, want.Equal(got.Time), "%v parsed as %s", src, got.Time)
	}

	var null dbTime
	require.NoError(t, null.Scan(nil))
	assert.False(t, null.Valid)
	assert.Nil(t, null.ptr())

	var bad dbTime
	assert.Error(t, bad.Scan("yesterday"))
	assert.Error(t, bad.Scan(42))
}
