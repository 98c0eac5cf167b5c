// Package testutil opens throwaway stores and seeds them for tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"librarydesk/internal/database"
	"librarydesk/internal/fines"
	"librarydesk/internal/models"
)

// OpenDB returns a migrated in-memory sqlite database private to t.
// A single connection keeps every query on the same in-memory store.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Open(database.Options{
		Driver:       "sqlite",
		DSN:          dsn,
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// FixedClock returns a clock stuck at the given instant. Tests move it by
// reassigning the pointed-to value.
func FixedClock(at *time.Time) func() time.Time {
	return func() time.Time { return *at }
}

// Day returns midnight UTC of the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ─── Seeding ──────────────────────────────────────────────────────────────────

// SeedUser inserts a user whose password is "Passw0rd!".
func SeedUser(t testing.TB, db *gorm.DB, username string, role models.UserRole) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("Passw0rd!"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: string(hash),
		Role:     role,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func SeedCategory(t testing.TB, db *gorm.DB, name string) *models.Category {
	t.Helper()
	category := &models.Category{Name: name}
	require.NoError(t, db.Create(category).Error)
	return category
}

// SeedBook inserts a book with available copies equal to total.
func SeedBook(t testing.TB, db *gorm.DB, category *models.Category, title string, copies int) *models.Book {
	t.Helper()
	book := &models.Book{
		Title:           title,
		Author:          "Author of " + title,
		ISBN:            "isbn-" + uuid.NewString()[:8],
		TotalCopies:     copies,
		AvailableCopies: copies,
		CategoryID:      category.ID,
	}
	require.NoError(t, db.Create(book).Error)
	return book
}

// SeedIssue inserts an issue directly in the given state, bypassing the
// lifecycle. Inventory is not adjusted.
func SeedIssue(t testing.TB, db *gorm.DB, user *models.User, book *models.Book, status models.IssueStatus, issued *time.Time) *models.Issue {
	t.Helper()
	issue := &models.Issue{
		UserID: user.ID,
		BookID: book.ID,
		Status: status,
	}
	if issued != nil {
		d := fines.Date(*issued)
		issue.IssueDate = &d
	}
	require.NoError(t, db.Create(issue).Error)
	return issue
}

// ReloadBook reads the current copy counts of a book.
func ReloadBook(t testing.TB, db *gorm.DB, id uuid.UUID) *models.Book {
	t.Helper()
	var book models.Book
	require.NoError(t, db.First(&book, "id = ?", id).Error)
	return &book
}

// ReloadIssue reads an issue as stored.
func ReloadIssue(t testing.TB, db *gorm.DB, id uuid.UUID) *models.Issue {
	t.Helper()
	var issue models.Issue
	require.NoError(t, db.First(&issue, "id = ?", id).Error)
	return &issue
}
