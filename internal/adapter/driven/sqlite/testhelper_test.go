package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"
	"testing"
)

// openTestConn opens one pool against the shared in-memory database and
// registers its cleanup. The writer pool is capped at one connection to
// mirror production's single-writer discipline.
func openTestConn(t *testing.T, dsn string, maxConns int) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open test db (%d conns): %v", maxConns, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	conn.SetMaxOpenConns(maxConns)
	if err := conn.PingContext(t.Context()); err != nil {
		t.Fatalf("ping test db (%d conns): %v", maxConns, err)
	}
	return conn
}

// setupTestDB builds a migrated DB over a named shared in-memory SQLite
// database. The name comes from t.Name(), so parallel tests never see each
// other's rows; percent-encoding keeps subtests with "/" in the name from
// corrupting the file: URI.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// In-memory databases have no WAL, so the journal_mode pragma is omitted.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)",
		url.PathEscape(t.Name()),
	)

	db := &DB{
		Writer: openTestConn(t, dsn, 1),
		Reader: openTestConn(t, dsn, 4),
		path:   dsn,
	}

	if err := RunMigrations(db.Writer); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return db
}

// testEncryptionKey is a fixed 32-byte AES-256 key for secret repo tests.
func testEncryptionKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}
