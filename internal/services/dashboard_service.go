package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"librarydesk/internal/fines"
	"librarydesk/internal/models"
	"librarydesk/internal/repositories"
)

// UserDashboard summarises the caller's own loans. TotalFine covers books
// still on loan only, not closed history.
type UserDashboard struct {
	CurrentlyIssued       int `json:"currentlyIssued"`
	PendingIssueRequests  int `json:"pendingIssueRequests"`
	PendingReturnRequests int `json:"pendingReturnRequests"`
	OverdueBooks          int `json:"overdueBooks"`
	TotalFine             int `json:"totalFine"`
}

type AdminSummary struct {
	TotalUsers            int64 `json:"total_users"`
	TotalBooks            int64 `json:"total_books"`
	IssuedBooks           int64 `json:"issued_books"`
	PendingIssueRequests  int64 `json:"pending_issue_requests"`
	PendingReturnApproved int64 `json:"pending_return_approved"`
}

// DashboardService is read-only. It never writes, including overdue fines.
type DashboardService interface {
	UserDashboard(ctx context.Context, actor Actor) (*UserDashboard, error)
	AdminSummary(ctx context.Context, actor Actor) (*AdminSummary, error)

	MyBooks(ctx context.Context, actor Actor) ([]models.Issue, error)
	MyHistory(ctx context.Context, actor Actor) ([]models.Issue, error)

	PendingIssues(ctx context.Context, actor Actor) ([]models.Issue, error)
	PendingReturns(ctx context.Context, actor Actor) ([]models.Issue, error)
	History(ctx context.Context, actor Actor) ([]models.Issue, error)
	BookInventory(ctx context.Context, actor Actor) ([]models.Book, error)
}

type dashboardService struct {
	db        *gorm.DB
	userRepo  repositories.UserRepository
	bookRepo  repositories.BookRepository
	issueRepo repositories.IssueRepository
	policy    fines.Policy
	now       Clock
	log       *zap.Logger
}

func NewDashboardService(
	db *gorm.DB,
	userRepo repositories.UserRepository,
	bookRepo repositories.BookRepository,
	issueRepo repositories.IssueRepository,
	policy fines.Policy,
	clock Clock,
	logger *zap.Logger,
) DashboardService {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &dashboardService{
		db:        db,
		userRepo:  userRepo,
		bookRepo:  bookRepo,
		issueRepo: issueRepo,
		policy:    policy,
		now:       clock,
		log:       logger.Named("dashboard"),
	}
}

// ─── Summaries ────────────────────────────────────────────────────────────────

// UserDashboard is open to any authenticated caller; it only ever shows the
// caller's own records.
func (s *dashboardService) UserDashboard(ctx context.Context, actor Actor) (*UserDashboard, error) {
	userID := actor.UserID
	issues, err := s.issueRepo.List(s.db.WithContext(ctx), repositories.IssueQuery{UserID: &userID})
	if err != nil {
		return nil, fmt.Errorf("list user issues: %w", err)
	}

	today := fines.Date(s.now())
	out := &UserDashboard{}
	for _, issue := range issues {
		switch {
		case issue.Status == models.IssueStatusRequested:
			out.PendingIssueRequests++
		case issue.Status.IsOnLoan():
			out.CurrentlyIssued++
			out.TotalFine += issue.Fine
			if issue.Status == models.IssueStatusReturnRequested {
				out.PendingReturnRequests++
			}
			if issue.IssueDate != nil && s.policy.IsOverdue(*issue.IssueDate, today) {
				out.OverdueBooks++
			}
		}
	}
	return out, nil
}

func (s *dashboardService) AdminSummary(ctx context.Context, actor Actor) (*AdminSummary, error) {
	if err := authorize(actor, models.UserRoleAdmin); err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var (
		out AdminSummary
		err error
	)
	if out.TotalUsers, err = s.userRepo.Count(db); err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if out.TotalBooks, err = s.bookRepo.Count(db); err != nil {
		return nil, fmt.Errorf("count books: %w", err)
	}
	if out.IssuedBooks, err = s.issueRepo.Count(db, repositories.IssueQuery{Statuses: models.OnLoanStatuses}); err != nil {
		return nil, fmt.Errorf("count issued: %w", err)
	}
	if out.PendingIssueRequests, err = s.issueRepo.Count(db, pendingIssues); err != nil {
		return nil, fmt.Errorf("count pending issues: %w", err)
	}
	if out.PendingReturnApproved, err = s.issueRepo.Count(db, pendingReturns); err != nil {
		return nil, fmt.Errorf("count pending returns: %w", err)
	}
	return &out, nil
}

// ─── Lists ────────────────────────────────────────────────────────────────────

var (
	pendingIssues  = repositories.IssueQuery{Statuses: []models.IssueStatus{models.IssueStatusRequested}}
	pendingReturns = repositories.IssueQuery{Statuses: []models.IssueStatus{models.IssueStatusReturnRequested}}
)

func (s *dashboardService) MyBooks(ctx context.Context, actor Actor) ([]models.Issue, error) {
	if err := authorize(actor, models.UserRoleUser); err != nil {
		return nil, err
	}
	userID := actor.UserID
	return s.list(ctx, repositories.IssueQuery{UserID: &userID, Statuses: models.OnLoanStatuses})
}

func (s *dashboardService) MyHistory(ctx context.Context, actor Actor) ([]models.Issue, error) {
	if err := authorize(actor, models.UserRoleUser); err != nil {
		return nil, err
	}
	userID := actor.UserID
	return s.list(ctx, repositories.IssueQuery{UserID: &userID, NewestFirst: true})
}

func (s *dashboardService) PendingIssues(ctx context.Context, actor Actor) ([]models.Issue, error) {
	if err := authorize(actor, models.UserRoleAdmin); err != nil {
		return nil, err
	}
	return s.list(ctx, pendingIssues)
}

func (s *dashboardService) PendingReturns(ctx context.Context, actor Actor) ([]models.Issue, error) {
	if err := authorize(actor, models.UserRoleAdmin); err != nil {
		return nil, err
	}
	return s.list(ctx, pendingReturns)
}

// History lists every record an admin has acted on, newest issue first.
func (s *dashboardService) History(ctx context.Context, actor Actor) ([]models.Issue, error) {
	if err := authorize(actor, models.UserRoleAdmin); err != nil {
		return nil, err
	}
	return s.list(ctx, repositories.IssueQuery{Statuses: models.ClosedStatuses, NewestFirst: true})
}

func (s *dashboardService) BookInventory(ctx context.Context, actor Actor) ([]models.Book, error) {
	if err := authorize(actor, models.UserRoleAdmin); err != nil {
		return nil, err
	}
	books, err := s.bookRepo.List(s.db.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

func (s *dashboardService) list(ctx context.Context, q repositories.IssueQuery) ([]models.Issue, error) {
	issues, err := s.issueRepo.List(s.db.WithContext(ctx), q)
	if err != nil {
		s.log.Error("issue listing failed", zap.Error(err))
		return nil, fmt.Errorf("list issues: %w", err)
	}
	return issues, nil
}
