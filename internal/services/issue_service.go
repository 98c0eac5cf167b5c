package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"librarydesk/internal/fines"
	"librarydesk/internal/models"
	"librarydesk/internal/repositories"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID uuid.UUID
	Role   models.UserRole
}

// authorize is the single role gate every operation passes through.
func authorize(actor Actor, role models.UserRole) error {
	if actor.Role == role {
		return nil
	}
	if role == models.UserRoleAdmin {
		return ErrAdminOnly
	}
	return ErrUserOnly
}

// Clock returns the current instant; only its UTC calendar date is used.
type Clock func() time.Time

// ─── Service Interface ────────────────────────────────────────────────────────

// IssueService applies the issue lifecycle: request → approve/reject → return
// request → approve/reject. Each transition and its inventory effect commit in
// one transaction.
type IssueService interface {
	RequestIssue(ctx context.Context, actor Actor, bookID uuid.UUID) (*models.Issue, error)
	ApproveIssue(ctx context.Context, actor Actor, issueID uuid.UUID) (*models.Issue, error)
	RejectIssue(ctx context.Context, actor Actor, issueID uuid.UUID) (*models.Issue, error)
	RequestReturn(ctx context.Context, actor Actor, issueID uuid.UUID) (*models.Issue, error)
	ApproveReturn(ctx context.Context, actor Actor, issueID uuid.UUID, remarks *string) (*models.Issue, error)
	RejectReturn(ctx context.Context, actor Actor, issueID uuid.UUID, reason *string) (*models.Issue, error)

	// RecomputeOverdue re-derives and persists the fine of every overdue loan
	// and returns those loans.
	RecomputeOverdue(ctx context.Context, actor Actor) ([]models.Issue, error)
	// SweepOverdue is RecomputeOverdue for trusted in-process callers.
	SweepOverdue(ctx context.Context) ([]models.Issue, error)
	// ListOverdue returns overdue loans as stored, without recomputing.
	ListOverdue(ctx context.Context, actor Actor) ([]models.Issue, error)
}

// ─── Implementation ───────────────────────────────────────────────────────────

type issueService struct {
	db        *gorm.DB
	bookRepo  repositories.BookRepository
	issueRepo repositories.IssueRepository
	policy    fines.Policy
	now       Clock
	log       *zap.Logger
}

// NewIssueService wires the lifecycle engine. A nil clock means time.Now.
func NewIssueService(
	db *gorm.DB,
	bookRepo repositories.BookRepository,
	issueRepo repositories.IssueRepository,
	policy fines.Policy,
	clock Clock,
	logger *zap.Logger,
) IssueService {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &issueService{
		db:        db,
		bookRepo:  bookRepo,
		issueRepo: issueRepo,
		policy:    policy,
		now:       clock,
		log:       logger.Named("issues"),
	}
}

func (s *issueService) today() time.Time {
	return fines.Date(s.now())
}

// ─── Issue Requests ───────────────────────────────────────────────────────────

// RequestIssue records a pending request. No copy is reserved until approval,
// so several requests may compete for the last copy.
func (s *issueService) RequestIssue(ctx context.Context, actor Actor, bookID uuid.UUID) (*models.Issue, error) {
	if err := authorize(actor, models.UserRoleUser); err != nil {
		return nil, err
	}

	issue := &models.Issue{
		UserID: actor.UserID,
		BookID: bookID,
		Status: models.IssueStatusRequested,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		book, err := s.bookRepo.GetByID(tx, bookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}
		if book.AvailableCopies <= 0 {
			return ErrNoCopiesAvailable
		}

		existing, err := s.issueRepo.FindActive(tx, actor.UserID, bookID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if existing != nil {
			return ErrAlreadyRequested
		}

		if err := s.issueRepo.Create(tx, issue); err != nil {
			if repositories.IsUniqueViolation(err) {
				return ErrAlreadyRequested
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fail(s.log, "RequestIssue", err, zap.Stringer("book_id", bookID), zap.Stringer("user_id", actor.UserID))
	}

	s.log.Info("issue requested",
		zap.Stringer("issue_id", issue.ID),
		zap.Stringer("book_id", bookID),
		zap.Stringer("user_id", actor.UserID))
	return s.reload(ctx, issue.ID)
}

// ApproveIssue hands out a copy. It is the only place inventory is consumed;
// the issue row and the book row stay locked until commit.
func (s *issueService) ApproveIssue(ctx context.Context, actor Actor, issueID uuid.UUID) (*models.Issue, error) {
	if err := authorize(actor, models.UserRoleAdmin); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		issue, err := s.lockIssue(tx, issueID)
		if err != nil {
			return err
		}
		next, err := issue.Status.ApproveIssue()
		if err != nil {
			return transitionConflict(err)
		}

		book, err := s.bookRepo.GetByIDForUpdate(tx, issue.BookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoCopiesAvailable
			}
			return err
		}
		if !book.TakeCopy() {
			return ErrNoCopiesAvailable
		}
		if err := s.bookRepo.SetAvailableCopies(tx, book.ID, book.AvailableCopies); err != nil {
			return err
		}

		today := s.today()
		issue.Status = next
		issue.IssueDate = &today
		return s.issueRepo.Save(tx, issue)
	})
	if err != nil {
		return nil, fail(s.log, "ApproveIssue", err, zap.Stringer("issue_id", issueID))
	}

	s.log.Info("issue approved", zap.Stringer("issue_id", issueID))
	return s.reload(ctx, issueID)
}

// RejectIssue declines a pending request. Inventory is untouched.
func (s *issueService) RejectIssue(ctx context.Context, actor Actor, issueID uuid.UUID) (*models.Issue, error) {
	if err := authorize(actor, models.UserRoleAdmin); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		issue, err := s.lockIssue(tx, issueID)
		if err != nil {
			return err
		}
		next, err := issue.Status.RejectIssue()
		if err != nil {
			return transitionConflict(err)
		}
		issue.Status = next
		return s.issueRepo.Save(tx, issue)
	})
	if err != nil {
		return nil, fail(s.log, "RejectIssue", err, zap.Stringer("issue_id", issueID))
	}

	s.log.Info("issue rejected", zap.Stringer("issue_id", issueID))
	return s.reload(ctx, issueID)
}

// ─── Returns ──────────────────────────────────────────────────────────────────

// RequestReturn asks the admin to take the copy back. A rejected return may be
// resubmitted; doing so clears the rejection remarks.
func (s *issueService) RequestReturn(ctx context.Context, actor Actor, issueID uuid.UUID) (*models.Issue, error) {
	if err := authorize(actor, models.UserRoleUser); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		issue, err := s.lockIssue(tx, issueID)
		if err != nil {
			return err
		}
		// Someone else's issue is reported exactly like a missing one.
		if issue.UserID != actor.UserID {
			return ErrIssueNotFound
		}
		next, err := issue.Status.RequestReturn()
		if err != nil {
			return transitionConflict(err)
		}
		issue.Status = next
		issue.ReturnRemarks = nil
		return s.issueRepo.Save(tx, issue)
	})
	if err != nil {
		return nil, fail(s.log, "RequestReturn", err, zap.Stringer("issue_id", issueID), zap.Stringer("user_id", actor.UserID))
	}

	s.log.Info("return requested", zap.Stringer("issue_id", issueID), zap.Stringer("user_id", actor.UserID))
	return s.reload(ctx, issueID)
}

// ApproveReturn closes the loan, fixes the final fine and puts the copy back.
func (s *issueService) ApproveReturn(ctx context.Context, actor Actor, issueID uuid.UUID, remarks *string) (*models.Issue, error) {
	if err := authorize(actor, models.UserRoleAdmin); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		issue, err := s.lockIssue(tx, issueID)
		if err != nil {
			return err
		}
		next, err := issue.Status.ApproveReturn()
		if err != nil {
			return transitionConflict(err)
		}

		today := s.today()
		issue.Status = next
		issue.ReturnDate = &today
		issue.ReturnRemarks = remarks
		issue.Fine = 0
		if issue.IssueDate != nil {
			issue.Fine = s.policy.Calculate(*issue.IssueDate, today)
		}

		book, err := s.bookRepo.GetByIDForUpdate(tx, issue.BookID)
		if err != nil {
			return err
		}
		if book.PutBackCopy() {
			if err := s.bookRepo.SetAvailableCopies(tx, book.ID, book.AvailableCopies); err != nil {
				return err
			}
		} else {
			s.log.Warn("book already has all copies on the shelf",
				zap.Stringer("book_id", book.ID),
				zap.Int("total_copies", book.TotalCopies))
		}

		return s.issueRepo.Save(tx, issue)
	})
	if err != nil {
		return nil, fail(s.log, "ApproveReturn", err, zap.Stringer("issue_id", issueID))
	}

	s.log.Info("return approved", zap.Stringer("issue_id", issueID))
	return s.reload(ctx, issueID)
}

// RejectReturn keeps the loan open and records why.
func (s *issueService) RejectReturn(ctx context.Context, actor Actor, issueID uuid.UUID, reason *string) (*models.Issue, error) {
	if err := authorize(actor, models.UserRoleAdmin); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		issue, err := s.lockIssue(tx, issueID)
		if err != nil {
			return err
		}
		next, err := issue.Status.RejectReturn()
		if err != nil {
			return transitionConflict(err)
		}
		issue.Status = next
		issue.ReturnRemarks = reason
		return s.issueRepo.Save(tx, issue)
	})
	if err != nil {
		return nil, fail(s.log, "RejectReturn", err, zap.Stringer("issue_id", issueID))
	}

	s.log.Info("return rejected", zap.Stringer("issue_id", issueID))
	return s.reload(ctx, issueID)
}

// ─── Overdue ──────────────────────────────────────────────────────────────────

func (s *issueService) RecomputeOverdue(ctx context.Context, actor Actor) ([]models.Issue, error) {
	if err := authorize(actor, models.UserRoleAdmin); err != nil {
		return nil, err
	}
	return s.SweepOverdue(ctx)
}

func (s *issueService) SweepOverdue(ctx context.Context) ([]models.Issue, error) {
	today := s.today()
	var overdue []uuid.UUID
	updated := 0

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loans, err := s.issueRepo.ListForUpdate(tx, repositories.IssueQuery{Statuses: models.OnLoanStatuses})
		if err != nil {
			return err
		}
		for i := range loans {
			issue := &loans[i]
			if issue.IssueDate == nil || !s.policy.IsOverdue(*issue.IssueDate, today) {
				continue
			}
			overdue = append(overdue, issue.ID)

			days := s.policy.OverdueDays(*issue.IssueDate, today)
			fine := days * s.policy.RatePerDay
			remark := fines.Remark(days)
			if issue.Fine == fine && issue.ReturnRemarks != nil && *issue.ReturnRemarks == remark {
				continue
			}
			issue.Fine = fine
			issue.ReturnRemarks = &remark
			if err := s.issueRepo.Save(tx, issue); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return nil, fail(s.log, "SweepOverdue", err)
	}

	s.log.Info("overdue fines recomputed",
		zap.Int("overdue", len(overdue)),
		zap.Int("updated", updated),
		zap.Time("evaluated_on", today))

	if len(overdue) == 0 {
		return []models.Issue{}, nil
	}
	issues, err := s.issueRepo.List(s.db.WithContext(ctx), repositories.IssueQuery{IDs: overdue})
	if err != nil {
		return nil, fmt.Errorf("load overdue issues: %w", err)
	}
	return issues, nil
}

func (s *issueService) ListOverdue(ctx context.Context, actor Actor) ([]models.Issue, error) {
	if err := authorize(actor, models.UserRoleAdmin); err != nil {
		return nil, err
	}
	loans, err := s.issueRepo.List(s.db.WithContext(ctx), repositories.IssueQuery{Statuses: models.OnLoanStatuses})
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}

	today := s.today()
	overdue := make([]models.Issue, 0, len(loans))
	for _, issue := range loans {
		if issue.IssueDate != nil && s.policy.IsOverdue(*issue.IssueDate, today) {
			overdue = append(overdue, issue)
		}
	}
	return overdue, nil
}

// ─── Internal Helpers ─────────────────────────────────────────────────────────

func (s *issueService) lockIssue(tx *gorm.DB, id uuid.UUID) (*models.Issue, error) {
	issue, err := s.issueRepo.GetByIDForUpdate(tx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIssueNotFound
		}
		return nil, err
	}
	return issue, nil
}

func (s *issueService) reload(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	issue, err := s.issueRepo.GetByID(s.db.WithContext(ctx), id)
	if err != nil {
		return nil, fmt.Errorf("reload issue %s: %w", id, err)
	}
	return issue, nil
}

