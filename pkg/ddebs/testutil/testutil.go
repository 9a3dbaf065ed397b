// Package testutil holds fixtures shared by the package tests: an in-memory
// database, a fake package repository and synthetic ELF and deb files.
package testutil

import (
	"database/sql"
	"testing"

	"github.com/storacha/ddebsyms/pkg/ddebs/sqlrepo"
	"github.com/stretchr/testify/require"
)

// CreateTestDB creates an in-memory SQLite database with the schema applied.
// It is closed when the test ends.
func CreateTestDB(t *testing.T) *sql.DB {
	db, err := sqlrepo.Open(t.Context(), ":memory:")
	require.NoError(t, err, "failed to open in-memory SQLite database")

	t.Cleanup(func() {
		db.Close()
	})
	return db
}
