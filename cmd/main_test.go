package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarydesk/internal/database"
	"librarydesk/internal/models"
	"librarydesk/internal/testutil"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(&app{})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "desk.db")
	t.Setenv("DATABASE_DRIVER", "oracle")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_LEVEL", "error")

	_, err := run(t, "migrate")
	assert.ErrorContains(t, err, "unsupported DATABASE_DRIVER")

	_, err = run(t, "--database-driver", "sqlite", "--database-url", dsn, "migrate")
	assert.NoError(t, err)
}

func TestServeRequiresSecret(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", "file:"+filepath.Join(t.TempDir(), "desk.db"))
	t.Setenv("JWT_SECRET", "")
	t.Setenv("LOG_LEVEL", "error")

	_, err := run(t, "serve")
	assert.EqualError(t, err, "JWT_SECRET environment variable is required")
}

func TestRecomputeOverdueCommand(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "desk.db")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_URL", dsn)
	t.Setenv("LOG_LEVEL", "error")

	_, err := run(t, "migrate")
	require.NoError(t, err)

	db, err := database.Open(database.Options{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	user := testutil.SeedUser(t, db, "late", models.UserRoleUser)
	book := testutil.SeedBook(t, db, testutil.SeedCategory(t, db, "Drama"), "Hamlet", 1)
	issued := time.Now().AddDate(0, 0, -10)
	issue := testutil.SeedIssue(t, db, user, book, models.IssueStatusIssued, &issued)
	closeDatabase(db)

	out, err := run(t, "recompute-overdue")
	require.NoError(t, err)
	assert.Contains(t, out, "1 overdue loan(s)")
	assert.Contains(t, out, issue.ID.String())
	assert.Contains(t, out, "fine=30")
}
