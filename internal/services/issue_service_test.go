package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"librarydesk/internal/fines"
	"librarydesk/internal/models"
	"librarydesk/internal/repositories"
	"librarydesk/internal/testutil"
)

type fixture struct {
	db        *gorm.DB
	now       time.Time
	issues    IssueService
	dashboard DashboardService
	library   LibraryService

	admin    Actor
	user     Actor
	other    Actor
	category *models.Category
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		db:  testutil.OpenDB(t),
		now: time.Date(2024, time.March, 1, 15, 30, 0, 0, time.UTC),
	}
	clock := testutil.FixedClock(&f.now)

	userRepo := repositories.NewUserRepository(f.db)
	bookRepo := repositories.NewBookRepository(f.db)
	categoryRepo := repositories.NewCategoryRepository(f.db)
	issueRepo := repositories.NewIssueRepository(f.db)

	f.issues = NewIssueService(f.db, bookRepo, issueRepo, fines.DefaultPolicy(), clock, nil)
	f.dashboard = NewDashboardService(f.db, userRepo, bookRepo, issueRepo, fines.DefaultPolicy(), clock, nil)
	f.library = NewLibraryService(f.db, bookRepo, categoryRepo, nil)

	admin := testutil.SeedUser(t, f.db, "admin", models.UserRoleAdmin)
	user := testutil.SeedUser(t, f.db, "reader", models.UserRoleUser)
	other := testutil.SeedUser(t, f.db, "other", models.UserRoleUser)
	f.admin = Actor{UserID: admin.ID, Role: admin.Role}
	f.user = Actor{UserID: user.ID, Role: user.Role}
	f.other = Actor{UserID: other.ID, Role: other.Role}
	f.category = testutil.SeedCategory(t, f.db, "Fiction")
	return f
}

func (f *fixture) book(t *testing.T, copies int) *models.Book {
	return testutil.SeedBook(t, f.db, f.category, "Book "+uuid.NewString()[:6], copies)
}

func (f *fixture) available(t *testing.T, id uuid.UUID) int {
	return testutil.ReloadBook(t, f.db, id).AvailableCopies
}

// issued runs request + approve and returns the issue on loan.
func (f *fixture) issued(t *testing.T, book *models.Book) *models.Issue {
	t.Helper()
	ctx := context.Background()
	issue, err := f.issues.RequestIssue(ctx, f.user, book.ID)
	require.NoError(t, err)
	issue, err = f.issues.ApproveIssue(ctx, f.admin, issue.ID)
	require.NoError(t, err)
	return issue
}

// ─── Lifecycle Scenarios ──────────────────────────────────────────────────────

func TestFullCycleChargesFineAndRestoresInventory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)

	issue, err := f.issues.RequestIssue(ctx, f.user, book.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusRequested, issue.Status)
	assert.True(t, issue.Status.IssueRequested())
	assert.Nil(t, issue.IssueDate)
	assert.Equal(t, 1, f.available(t, book.ID), "request must not reserve a copy")

	issue, err = f.issues.ApproveIssue(ctx, f.admin, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusIssued, issue.Status)
	require.NotNil(t, issue.IssueDate)
	assert.Equal(t, testutil.Day(2024, time.March, 1), fines.Date(*issue.IssueDate))
	assert.Equal(t, 0, f.available(t, book.ID))

	f.now = f.now.AddDate(0, 0, 10)

	issue, err = f.issues.RequestReturn(ctx, f.user, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusReturnRequested, issue.Status)

	remarks := "good condition"
	issue, err = f.issues.ApproveReturn(ctx, f.admin, issue.ID, &remarks)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusReturned, issue.Status)
	assert.Equal(t, 30, issue.Fine)
	require.NotNil(t, issue.ReturnDate)
	assert.Equal(t, testutil.Day(2024, time.March, 11), fines.Date(*issue.ReturnDate))
	require.NotNil(t, issue.ReturnRemarks)
	assert.Equal(t, "good condition", *issue.ReturnRemarks)
	assert.Equal(t, 1, f.available(t, book.ID))

	require.NotNil(t, issue.User)
	require.NotNil(t, issue.Book)
	assert.Equal(t, "reader", issue.User.Username)
	assert.Equal(t, book.Title, issue.Book.Title)
}

func TestRequestIssueWithoutStockConflicts(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, 0)

	_, err := f.issues.RequestIssue(context.Background(), f.user, book.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, ErrNoCopiesAvailable)
}

func TestSecondApproveIssueConflicts(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, 2)
	issue := f.issued(t, book)
	require.Equal(t, 1, f.available(t, book.ID))

	_, err := f.issues.ApproveIssue(context.Background(), f.admin, issue.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.EqualError(t, err, "Issue already approved")
	assert.Equal(t, 1, f.available(t, book.ID))
}

func TestSecondReturnRequestConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issue := f.issued(t, f.book(t, 1))

	_, err := f.issues.RequestReturn(ctx, f.user, issue.ID)
	require.NoError(t, err)

	_, err = f.issues.RequestReturn(ctx, f.user, issue.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.EqualError(t, err, "Return already requested")
}

func TestRejectedReturnCanBeResubmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)
	issue := f.issued(t, book)

	_, err := f.issues.RequestReturn(ctx, f.user, issue.ID)
	require.NoError(t, err)

	reason := "damaged"
	issue, err = f.issues.RejectReturn(ctx, f.admin, issue.ID, &reason)
	require.NoError(t, err)
	assert.True(t, issue.Status.ReturnRejected())
	assert.False(t, issue.Status.ReturnRequested())
	require.NotNil(t, issue.ReturnRemarks)
	assert.Equal(t, "damaged", *issue.ReturnRemarks)
	assert.Nil(t, issue.ReturnDate)
	assert.Equal(t, 0, f.available(t, book.ID), "rejected return keeps the copy out")

	issue, err = f.issues.RequestReturn(ctx, f.user, issue.ID)
	require.NoError(t, err)
	assert.True(t, issue.Status.ReturnRequested())
	assert.False(t, issue.Status.ReturnRejected())
	assert.Nil(t, issue.ReturnRemarks)
}

// ─── Guards ───────────────────────────────────────────────────────────────────

func TestRoleGates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)
	id := uuid.New()

	_, err := f.issues.RequestIssue(ctx, f.admin, book.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.EqualError(t, err, "Only USER allowed")

	_, err = f.issues.RequestReturn(ctx, f.admin, id)
	assert.ErrorIs(t, err, ErrForbidden)

	for name, call := range map[string]func() error{
		"approve-issue":  func() error { _, err := f.issues.ApproveIssue(ctx, f.user, id); return err },
		"reject-issue":   func() error { _, err := f.issues.RejectIssue(ctx, f.user, id); return err },
		"approve-return": func() error { _, err := f.issues.ApproveReturn(ctx, f.user, id, nil); return err },
		"reject-return":  func() error { _, err := f.issues.RejectReturn(ctx, f.user, id, nil); return err },
		"recompute":      func() error { _, err := f.issues.RecomputeOverdue(ctx, f.user); return err },
		"list-overdue":   func() error { _, err := f.issues.ListOverdue(ctx, f.user); return err },
	} {
		t.Run(name, func(t *testing.T) {
			err := call()
			assert.ErrorIs(t, err, ErrForbidden)
			assert.EqualError(t, err, "Only ADMIN allowed")
		})
	}
}

func TestMissingRecordsAreNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.issues.RequestIssue(ctx, f.user, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualError(t, err, "Book not found")

	_, err = f.issues.ApproveIssue(ctx, f.admin, uuid.New())
	assert.ErrorIs(t, err, ErrIssueNotFound)
	_, err = f.issues.RejectIssue(ctx, f.admin, uuid.New())
	assert.ErrorIs(t, err, ErrIssueNotFound)
	_, err = f.issues.RequestReturn(ctx, f.user, uuid.New())
	assert.ErrorIs(t, err, ErrIssueNotFound)
	_, err = f.issues.ApproveReturn(ctx, f.admin, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrIssueNotFound)
	_, err = f.issues.RejectReturn(ctx, f.admin, uuid.New(), nil)
	assert.ErrorIs(t, err, ErrIssueNotFound)
}

func TestRequestReturnOnSomeoneElsesIssueIsNotFound(t *testing.T) {
	f := newFixture(t)
	issue := f.issued(t, f.book(t, 1))

	_, err := f.issues.RequestReturn(context.Background(), f.other, issue.ID)
	assert.ErrorIs(t, err, ErrIssueNotFound)
	assert.Equal(t, models.IssueStatusIssued, testutil.ReloadIssue(t, f.db, issue.ID).Status)
}

func TestDuplicateActiveRequestConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 3)

	first, err := f.issues.RequestIssue(ctx, f.user, book.ID)
	require.NoError(t, err)

	_, err = f.issues.RequestIssue(ctx, f.user, book.ID)
	assert.ErrorIs(t, err, ErrAlreadyRequested)

	_, err = f.issues.ApproveIssue(ctx, f.admin, first.ID)
	require.NoError(t, err)
	_, err = f.issues.RequestIssue(ctx, f.user, book.ID)
	assert.ErrorIs(t, err, ErrAlreadyRequested, "a book on loan blocks a new request")

	_, err = f.issues.RequestIssue(ctx, f.other, book.ID)
	assert.NoError(t, err, "other users are unaffected")
}

func TestRejectedIssueAllowsNewRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)

	issue, err := f.issues.RequestIssue(ctx, f.user, book.ID)
	require.NoError(t, err)
	issue, err = f.issues.RejectIssue(ctx, f.admin, issue.ID)
	require.NoError(t, err)
	assert.True(t, issue.Status.IssueRejected())
	assert.Equal(t, 1, f.available(t, book.ID))

	_, err = f.issues.ApproveIssue(ctx, f.admin, issue.ID)
	assert.EqualError(t, err, "Issue already rejected")

	_, err = f.issues.RequestIssue(ctx, f.user, book.ID)
	assert.NoError(t, err)
}

func TestReturnedBookCanBeBorrowedAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)
	issue := f.issued(t, book)

	_, err := f.issues.RequestReturn(ctx, f.user, issue.ID)
	require.NoError(t, err)
	_, err = f.issues.ApproveReturn(ctx, f.admin, issue.ID, nil)
	require.NoError(t, err)

	_, err = f.issues.ApproveReturn(ctx, f.admin, issue.ID, nil)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, f.available(t, book.ID))

	_, err = f.issues.RequestIssue(ctx, f.user, book.ID)
	assert.NoError(t, err)
}

func TestReturnTransitionsRequireReturnRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)

	pending, err := f.issues.RequestIssue(ctx, f.user, book.ID)
	require.NoError(t, err)

	_, err = f.issues.RequestReturn(ctx, f.user, pending.ID)
	assert.EqualError(t, err, "Book is not issued")
	_, err = f.issues.ApproveReturn(ctx, f.admin, pending.ID, nil)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.issues.RejectReturn(ctx, f.admin, pending.ID, nil)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, f.available(t, book.ID))
}

func TestLastCopyRaceIsSettledAtApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)

	first, err := f.issues.RequestIssue(ctx, f.user, book.ID)
	require.NoError(t, err)
	second, err := f.issues.RequestIssue(ctx, f.other, book.ID)
	require.NoError(t, err)

	_, err = f.issues.ApproveIssue(ctx, f.admin, first.ID)
	require.NoError(t, err)

	_, err = f.issues.ApproveIssue(ctx, f.admin, second.ID)
	assert.ErrorIs(t, err, ErrNoCopiesAvailable)
	assert.Equal(t, models.IssueStatusRequested, testutil.ReloadIssue(t, f.db, second.ID).Status)
	assert.Equal(t, 0, f.available(t, book.ID))
}

func TestConcurrentApprovalsNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const copies, borrowers = 2, 6
	book := f.book(t, copies)

	requests := make([]uuid.UUID, borrowers)
	for i := range requests {
		u := testutil.SeedUser(t, f.db, fmt.Sprintf("racer%d", i), models.UserRoleUser)
		issue, err := f.issues.RequestIssue(ctx, Actor{UserID: u.ID, Role: u.Role}, book.ID)
		require.NoError(t, err)
		requests[i] = issue.ID
	}

	errs := make([]error, borrowers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i, id := range requests {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			<-start
			_, errs[i] = f.issues.ApproveIssue(ctx, f.admin, id)
		}(i, id)
	}
	close(start)
	wg.Wait()

	var approved int
	for _, err := range errs {
		if err == nil {
			approved++
			continue
		}
		assert.ErrorIs(t, err, ErrNoCopiesAvailable)
	}
	assert.Equal(t, copies, approved)

	reloaded := testutil.ReloadBook(t, f.db, book.ID)
	assert.Equal(t, 0, reloaded.AvailableCopies)
	assert.GreaterOrEqual(t, reloaded.AvailableCopies, 0)
	assert.LessOrEqual(t, reloaded.AvailableCopies, reloaded.TotalCopies)

	var issued int64
	require.NoError(t, f.db.Model(&models.Issue{}).
		Where("book_id = ? AND status = ?", book.ID, models.IssueStatusIssued).
		Count(&issued).Error)
	assert.EqualValues(t, copies, issued)
}

func TestInventoryStaysWithinBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 2)

	a := f.issued(t, book)
	other, err := f.issues.RequestIssue(ctx, f.other, book.ID)
	require.NoError(t, err)
	_, err = f.issues.ApproveIssue(ctx, f.admin, other.ID)
	require.NoError(t, err)

	for _, id := range []uuid.UUID{a.ID, other.ID} {
		b := testutil.ReloadBook(t, f.db, book.ID)
		assert.GreaterOrEqual(t, b.AvailableCopies, 0)
		assert.LessOrEqual(t, b.AvailableCopies, b.TotalCopies)

		owner := f.user
		if id == other.ID {
			owner = f.other
		}
		_, err := f.issues.RequestReturn(ctx, owner, id)
		require.NoError(t, err)
		_, err = f.issues.ApproveReturn(ctx, f.admin, id, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.available(t, book.ID))
}

func TestApproveReturnNeverOverfillsShelf(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 1)
	// A loan recorded without consuming inventory, e.g. imported data.
	issue := testutil.SeedIssue(t, f.db, testutil.SeedUser(t, f.db, "imported", models.UserRoleUser), book, models.IssueStatusReturnRequested, &f.now)

	_, err := f.issues.ApproveReturn(ctx, f.admin, issue.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.available(t, book.ID))
}

// ─── Overdue ──────────────────────────────────────────────────────────────────

func TestRecomputeOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	book := f.book(t, 5)

	tenDaysAgo := f.now.AddDate(0, 0, -10)
	sevenDaysAgo := f.now.AddDate(0, 0, -7)
	late := testutil.SeedIssue(t, f.db, testutil.SeedUser(t, f.db, "late", models.UserRoleUser), book, models.IssueStatusIssued, &tenDaysAgo)
	onTime := testutil.SeedIssue(t, f.db, testutil.SeedUser(t, f.db, "ontime", models.UserRoleUser), book, models.IssueStatusIssued, &sevenDaysAgo)
	lateRejected := testutil.SeedIssue(t, f.db, testutil.SeedUser(t, f.db, "disputed", models.UserRoleUser), book, models.IssueStatusReturnRejected, &tenDaysAgo)
	returned := testutil.SeedIssue(t, f.db, testutil.SeedUser(t, f.db, "done", models.UserRoleUser), book, models.IssueStatusReturned, &tenDaysAgo)

	// Read-only listing does not touch stored fines.
	listed, err := f.issues.ListOverdue(ctx, f.admin)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
	assert.Equal(t, 0, testutil.ReloadIssue(t, f.db, late.ID).Fine)

	overdue, err := f.issues.RecomputeOverdue(ctx, f.admin)
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(overdue))
	for _, issue := range overdue {
		ids = append(ids, issue.ID)
		assert.NotNil(t, issue.User)
		assert.NotNil(t, issue.Book)
	}
	assert.ElementsMatch(t, []uuid.UUID{late.ID, lateRejected.ID}, ids)

	stored := testutil.ReloadIssue(t, f.db, late.ID)
	assert.Equal(t, 30, stored.Fine)
	require.NotNil(t, stored.ReturnRemarks)
	assert.Equal(t, "Overdue by 3 days", *stored.ReturnRemarks)

	assert.Equal(t, 0, testutil.ReloadIssue(t, f.db, onTime.ID).Fine)
	assert.Equal(t, 0, testutil.ReloadIssue(t, f.db, returned.ID).Fine)

	// A day later the fine grows.
	f.now = f.now.AddDate(0, 0, 1)
	_, err = f.issues.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, testutil.ReloadIssue(t, f.db, late.ID).Fine)
	assert.Equal(t, 10, testutil.ReloadIssue(t, f.db, onTime.ID).Fine)
}

func TestRecomputeOverdueWithNothingOverdue(t *testing.T) {
	f := newFixture(t)

	overdue, err := f.issues.RecomputeOverdue(context.Background(), f.admin)
	require.NoError(t, err)
	assert.NotNil(t, overdue)
	assert.Empty(t, overdue)
}
