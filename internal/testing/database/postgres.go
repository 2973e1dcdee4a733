// Package database prepares the postgres database used by the tests of the
// data package.
package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"

	// registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"
	"gotest.tools/v3/assert"

	"github.com/gristips/gristips/internal/generate"
)

// EnvPostgresConnection names the environment variable holding the connection
// string of the postgres server used by tests.
const EnvPostgresConnection = "POSTGRESQL_CONNECTION"

type TestingT interface {
	assert.TestingT
	Cleanup(func())
	Fatal(...any)
	Helper()
}

// PostgresConnection creates a schema for the test in the postgres database
// named by POSTGRESQL_CONNECTION, and returns a connection string that uses
// it. The schema is dropped when the test ends. It returns an empty string
// when the variable is not set, and tests fall back to sqlite.
func PostgresConnection(t TestingT, schemaPrefix string) string {
	t.Helper()
	conn, ok := os.LookupEnv(EnvPostgresConnection)
	if !ok || conn == "" {
		return ""
	}
	if len(schemaPrefix) > 20 || strings.Trim(schemaPrefix, generate.CharsetLowercase+"_") != "" {
		t.Fatal("schema prefix", schemaPrefix, "must be at most 20 lowercase letters")
	}
	schema := fmt.Sprintf("test_%s_%s", schemaPrefix, generate.MathRandom(6, generate.CharsetNumbers))

	db, err := sql.Open("pgx", conn)
	assert.NilError(t, err, "connect to postgres")
	t.Cleanup(func() {
		_, err := db.Exec("DROP SCHEMA IF EXISTS " + schema + " CASCADE")
		assert.Check(t, err)
		assert.Check(t, db.Close())
	})

	_, err = db.Exec("CREATE SCHEMA " + schema)
	assert.NilError(t, err)

	return withSearchPath(conn, schema)
}

// withSearchPath adds the search_path parameter to a connection string in
// URL or keyword/value form.
func withSearchPath(conn, schema string) string {
	if strings.HasPrefix(conn, "postgres://") || strings.HasPrefix(conn, "postgresql://") {
		u, err := url.Parse(conn)
		if err == nil {
			q := u.Query()
			q.Set("search_path", schema)
			u.RawQuery = q.Encode()
			return u.String()
		}
	}
	return conn + " search_path=" + schema
}
