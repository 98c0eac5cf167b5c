package repositories

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"librarydesk/internal/models"
)

// IssueQuery selects issues. Empty fields do not filter.
type IssueQuery struct {
	IDs      []uuid.UUID
	UserID   *uuid.UUID
	BookID   *uuid.UUID
	Statuses []models.IssueStatus
	// Newest issue date first; not-yet-issued records follow, newest request first.
	NewestFirst bool
}

type IssueRepository interface {
	Create(db *gorm.DB, issue *models.Issue) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Issue, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Issue, error)
	FindActive(db *gorm.DB, userID, bookID uuid.UUID) (*models.Issue, error)
	Save(db *gorm.DB, issue *models.Issue) error
	List(db *gorm.DB, q IssueQuery) ([]models.Issue, error)
	ListForUpdate(db *gorm.DB, q IssueQuery) ([]models.Issue, error)
	Count(db *gorm.DB, q IssueQuery) (int64, error)
}

type issueRepository struct {
	db *gorm.DB
}

func NewIssueRepository(db *gorm.DB) IssueRepository {
	return &issueRepository{db: db}
}

func (r *issueRepository) Create(db *gorm.DB, issue *models.Issue) error {
	if db == nil {
		db = r.db
	}
	return db.Create(issue).Error
}

// GetByID loads an issue with its user and book.
func (r *issueRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Issue, error) {
	if db == nil {
		db = r.db
	}
	var issue models.Issue
	err := db.
		Preload("User").
		Preload("Book").
		First(&issue, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// GetByIDForUpdate locks the issue row so concurrent transitions on it serialize.
func (r *issueRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Issue, error) {
	if db == nil {
		db = r.db
	}
	var issue models.Issue
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&issue, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

func (r *issueRepository) FindActive(db *gorm.DB, userID, bookID uuid.UUID) (*models.Issue, error) {
	if db == nil {
		db = r.db
	}
	var issue models.Issue
	err := db.
		Where("user_id = ? AND book_id = ? AND status IN ?", userID, bookID, models.ActiveIssueStatuses).
		First(&issue).Error
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// Save writes every lifecycle column of issue.
func (r *issueRepository) Save(db *gorm.DB, issue *models.Issue) error {
	if db == nil {
		db = r.db
	}
	return db.Model(issue).
		Select("status", "issue_date", "return_date", "fine", "return_remarks", "updated_at").
		Updates(issue).Error
}

// List eager-loads user and book to avoid one query per row.
func (r *issueRepository) List(db *gorm.DB, q IssueQuery) ([]models.Issue, error) {
	if db == nil {
		db = r.db
	}
	var issues []models.Issue
	err := order(r.filter(db, q), q).
		Preload("User").
		Preload("Book").
		Find(&issues).Error
	if err != nil {
		return nil, err
	}
	return issues, nil
}

// ListForUpdate locks every matching row for the rest of the transaction.
func (r *issueRepository) ListForUpdate(db *gorm.DB, q IssueQuery) ([]models.Issue, error) {
	if db == nil {
		db = r.db
	}
	var issues []models.Issue
	err := order(r.filter(db, q), q).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Find(&issues).Error
	if err != nil {
		return nil, err
	}
	return issues, nil
}

func (r *issueRepository) Count(db *gorm.DB, q IssueQuery) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := r.filter(db, q).Count(&n).Error
	return n, err
}

func (r *issueRepository) filter(db *gorm.DB, q IssueQuery) *gorm.DB {
	tx := db.Model(&models.Issue{})
	if len(q.IDs) > 0 {
		tx = tx.Where("id IN ?", q.IDs)
	}
	if q.UserID != nil {
		tx = tx.Where("user_id = ?", *q.UserID)
	}
	if q.BookID != nil {
		tx = tx.Where("book_id = ?", *q.BookID)
	}
	if len(q.Statuses) > 0 {
		tx = tx.Where("status IN ?", q.Statuses)
	}
	return tx
}

func order(tx *gorm.DB, q IssueQuery) *gorm.DB {
	if q.NewestFirst {
		tx = tx.
			Order("CASE WHEN issue_date IS NULL THEN 1 ELSE 0 END").
			Order("issue_date DESC").
			Order("created_at DESC")
	} else {
		tx = tx.Order("created_at ASC")
	}
	return tx
}
