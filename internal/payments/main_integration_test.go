//go:build integration

package payments

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/aldoetobex/falacomigo-backend/internal/testutil"
)

// With -tags integration the whole package runs against a real Postgres, so
// the reconciliation race is decided by row locks instead of SQLite's single
// connection.
func TestMain(m *testing.M) {
	if os.Getenv("TEST_DATABASE_URL") != "" {
		os.Exit(m.Run())
	}

	dsn, stop, err := testutil.StartPostgres(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Setenv("TEST_DATABASE_URL", dsn)

	code := m.Run()
	stop()
	os.Exit(code)
}
