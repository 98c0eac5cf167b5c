package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"librarydesk/internal/models"
	"librarydesk/internal/repositories"
)

const (
	DefaultPageSize = 5
	MaxPageSize     = 50
)

// NewBook is the input for adding a title to the catalogue.
type NewBook struct {
	Title       string
	Author      string
	ISBN        string
	TotalCopies int
	CategoryID  uuid.UUID
}

// BookChanges is a partial update; nil fields are left alone.
type BookChanges struct {
	Title       *string
	Author      *string
	TotalCopies *int
	CategoryID  *uuid.UUID
}

// BookPage is one page of a catalogue search.
type BookPage struct {
	Data  []models.Book `json:"data"`
	Total int64        `json:"total"`
	Page  int          `json:"page"`
	Size  int          `json:"size"`
}

// ─── Service Interface ────────────────────────────────────────────────────────

// LibraryService manages the catalogue: books, their copy counts and categories.
type LibraryService interface {
	CreateBook(ctx context.Context, actor Actor, in NewBook) (*models.Book, error)
	UpdateBook(ctx context.Context, actor Actor, bookID uuid.UUID, in BookChanges) (*models.Book, error)
	DeleteBook(ctx context.Context, actor Actor, bookID uuid.UUID) error
	GetBook(ctx context.Context, bookID uuid.UUID) (*models.Book, error)
	SearchBooks(ctx context.Context, q repositories.BookQuery) (*BookPage, error)

	CreateCategory(ctx context.Context, actor Actor, name string) (*models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	DeleteCategory(ctx context.Context, actor Actor, categoryID uuid.UUID) error
}

// ─── Implementation ───────────────────────────────────────────────────────────

type libraryService struct {
	db           *gorm.DB
	bookRepo     repositories.BookRepository
	categoryRepo repositories.CategoryRepository
	log          *zap.Logger
}

// NewLibraryService wires up all dependencies and returns a LibraryService.
func NewLibraryService(
	db *gorm.DB,
	bookRepo repositories.BookRepository,
	categoryRepo repositories.CategoryRepository,
	logger *zap.Logger,
) LibraryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &libraryService{
		db:           db,
		bookRepo:     bookRepo,
		categoryRepo: categoryRepo,
		log:          logger.Named("catalogue"),
	}
}

// ─── Book Management ──────────────────────────────────────────────────────────

// CreateBook adds a title with every copy on the shelf.
func (s *libraryService) CreateBook(ctx context.Context, actor Actor, in NewBook) (*models.Book, error) {
	if err := authorize(actor, models.UserRoleAdmin); err != nil {
		return nil, err
	}
	if in.TotalCopies < 0 {
		return nil, &ValidationError{Field: "total_copies", Reason: "must be >= 0"}
	}

	book := &models.Book{
		Title:           strings.TrimSpace(in.Title),
		Author:          strings.TrimSpace(in.Author),
		ISBN:            strings.TrimSpace(in.ISBN),
		TotalCopies:     in.TotalCopies,
		AvailableCopies: in.TotalCopies,
		CategoryID:      in.CategoryID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.categoryRepo.GetByID(tx, in.CategoryID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCategoryNotFound
			}
			return err
		}
		taken, err := s.bookRepo.ISBNTaken(tx, book.ISBN)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateISBN
		}
		if err := s.bookRepo.Create(tx, book); err != nil {
			if repositories.IsUniqueViolation(err) {
				return ErrDuplicateISBN
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fail(s.log, "CreateBook", err)
	}

	s.log.Info("book created",
		zap.Stringer("book_id", book.ID),
		zap.String("title", book.Title),
		zap.Int("total_copies", book.TotalCopies))
	return s.GetBook(ctx, book.ID)
}

// UpdateBook applies a partial update. A change of total_copies moves
// available_copies by the same delta and is refused if copies already out
// would no longer fit.
func (s *libraryService) UpdateBook(ctx context.Context, actor Actor, bookID uuid.UUID, in BookChanges) (*models.Book, error) {
	if err := authorize(actor, models.UserRoleAdmin); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		book, err := s.bookRepo.GetByIDForUpdate(tx, bookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		fields := map[string]interface{}{}
		if in.Title != nil {
			fields["title"] = strings.TrimSpace(*in.Title)
		}
		if in.Author != nil {
			fields["author"] = strings.TrimSpace(*in.Author)
		}
		if in.CategoryID != nil {
			if _, err := s.categoryRepo.GetByID(tx, *in.CategoryID); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrCategoryNotFound
				}
				return err
			}
			fields["category_id"] = *in.CategoryID
		}
		if in.TotalCopies != nil {
			if *in.TotalCopies < 0 {
				return &ValidationError{Field: "total_copies", Reason: "must be >= 0"}
			}
			delta := *in.TotalCopies - book.TotalCopies
			available := book.AvailableCopies + delta
			if available < 0 {
				return ErrCopiesBelowIssued
			}
			fields["total_copies"] = *in.TotalCopies
			fields["available_copies"] = available
		}
		if len(fields) == 0 {
			return nil
		}
		return s.bookRepo.Update(tx, bookID, fields)
	})
	if err != nil {
		return nil, fail(s.log, "UpdateBook", err, zap.Stringer("book_id", bookID))
	}

	s.log.Info("book updated", zap.Stringer("book_id", bookID))
	return s.GetBook(ctx, bookID)
}

// DeleteBook removes a title. The store refuses while issue records still
// reference it.
func (s *libraryService) DeleteBook(ctx context.Context, actor Actor, bookID uuid.UUID) error {
	if err := authorize(actor, models.UserRoleAdmin); err != nil {
		return err
	}
	n, err := s.bookRepo.Delete(s.db.WithContext(ctx), bookID)
	if err != nil {
		if repositories.IsForeignKeyViolation(err) {
			err = ErrBookInUse
		}
		return fail(s.log, "DeleteBook", err, zap.Stringer("book_id", bookID))
	}
	if n == 0 {
		return ErrBookNotFound
	}
	s.log.Info("book deleted", zap.Stringer("book_id", bookID))
	return nil
}

func (s *libraryService) GetBook(ctx context.Context, bookID uuid.UUID) (*models.Book, error) {
	book, err := s.bookRepo.GetByID(s.db.WithContext(ctx), bookID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("get book %s: %w", bookID, err)
	}
	return book, nil
}

// SearchBooks normalises paging and returns one page of matches.
func (s *libraryService) SearchBooks(ctx context.Context, q repositories.BookQuery) (*BookPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Size < 1 {
		q.Size = DefaultPageSize
	}
	if q.Size > MaxPageSize {
		q.Size = MaxPageSize
	}

	books, total, err := s.bookRepo.Search(s.db.WithContext(ctx), q)
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	return &BookPage{Data: books, Total: total, Page: q.Page, Size: q.Size}, nil
}

// ─── Categories ───────────────────────────────────────────────────────────────

func (s *libraryService) CreateCategory(ctx context.Context, actor Actor, name string) (*models.Category, error) {
	if err := authorize(actor, models.UserRoleAdmin); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}

	category := &models.Category{Name: name}
	if err := s.categoryRepo.Create(s.db.WithContext(ctx), category); err != nil {
		if repositories.IsUniqueViolation(err) {
			return nil, ErrDuplicateCategory
		}
		return nil, fail(s.log, "CreateCategory", err)
	}
	s.log.Info("category created", zap.Stringer("category_id", category.ID), zap.String("name", name))
	return category, nil
}

func (s *libraryService) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories, err := s.categoryRepo.List(s.db.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (s *libraryService) DeleteCategory(ctx context.Context, actor Actor, categoryID uuid.UUID) error {
	if err := authorize(actor, models.UserRoleAdmin); err != nil {
		return err
	}
	n, err := s.categoryRepo.Delete(s.db.WithContext(ctx), categoryID)
	if err != nil {
		if repositories.IsForeignKeyViolation(err) {
			return ErrCategoryInUse
		}
		return fail(s.log, "DeleteCategory", err)
	}
	if n == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

