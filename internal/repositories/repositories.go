package repositories

import (
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"librarydesk/internal/models"
)

type UserRepository interface {
	Create(db *gorm.DB, user *models.User) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error)
	GetByEmail(db *gorm.DB, email string) (*models.User, error)
	EmailOrUsernameTaken(db *gorm.DB, email, username string) (bool, error)
	AdminExists(db *gorm.DB) (bool, error)
	Count(db *gorm.DB) (int64, error)
}

type CategoryRepository interface {
	Create(db *gorm.DB, category *models.Category) error
	List(db *gorm.DB) ([]models.Category, error)
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Category, error)
	Delete(db *gorm.DB, id uuid.UUID) (int64, error)
}

// BookQuery filters and pages the catalogue.
type BookQuery struct {
	Search     string
	CategoryID *uuid.UUID
	SortBy     string
	Desc       bool
	Page       int
	Size       int
}

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	List(db *gorm.DB) ([]models.Book, error)
	Search(db *gorm.DB, q BookQuery) ([]models.Book, int64, error)
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error)
	ISBNTaken(db *gorm.DB, isbn string) (bool, error)
	Update(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error
	SetAvailableCopies(db *gorm.DB, id uuid.UUID, available int) error
	Delete(db *gorm.DB, id uuid.UUID) (int64, error)
	Count(db *gorm.DB) (int64, error)
}

// ─── Users ────────────────────────────────────────────────────────────────────

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(db *gorm.DB, user *models.User) error {
	if db == nil {
		db = r.db
	}
	return db.Create(user).Error
}

func (r *userRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(db *gorm.DB, email string) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) EmailOrUsernameTaken(db *gorm.DB, email, username string) (bool, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.User{}).
		Where("email = ? OR username = ?", email, username).
		Count(&n).Error
	return n > 0, err
}

func (r *userRepository) AdminExists(db *gorm.DB) (bool, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.User{}).Where("role = ?", models.UserRoleAdmin).Count(&n).Error
	return n > 0, err
}

func (r *userRepository) Count(db *gorm.DB) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.User{}).Count(&n).Error
	return n, err
}

// ─── Categories ───────────────────────────────────────────────────────────────

type categoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

func (r *categoryRepository) Create(db *gorm.DB, category *models.Category) error {
	if db == nil {
		db = r.db
	}
	return db.Create(category).Error
}

func (r *categoryRepository) List(db *gorm.DB) ([]models.Category, error) {
	if db == nil {
		db = r.db
	}
	var categories []models.Category
	if err := db.Order("name ASC").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *categoryRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Category, error) {
	if db == nil {
		db = r.db
	}
	var category models.Category
	if err := db.First(&category, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *categoryRepository) Delete(db *gorm.DB, id uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Delete(&models.Category{}, "id = ?", id)
	return res.RowsAffected, res.Error
}

// ─── Books ────────────────────────────────────────────────────────────────────

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

// bookSortColumns whitelists the columns a caller may sort by.
var bookSortColumns = map[string]string{
	"title":            "title",
	"author":           "author",
	"isbn":             "isbn",
	"total_copies":     "total_copies",
	"available_copies": "available_copies",
}

func (r *bookRepository) List(db *gorm.DB) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	var books []models.Book
	if err := db.Preload("Category").Order("title ASC").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

// Search returns one page of books plus the total number of matches before paging.
func (r *bookRepository) Search(db *gorm.DB, q BookQuery) ([]models.Book, int64, error) {
	if db == nil {
		db = r.db
	}
	query := db.Model(&models.Book{})
	if s := strings.TrimSpace(q.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(author) LIKE ?", like, like)
	}
	if q.CategoryID != nil {
		query = query.Where("category_id = ?", *q.CategoryID)
	}
	// Count and Find each start from the same filters.
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := bookSortColumns[q.SortBy]
	if !ok {
		column = "title"
	}

	var books []models.Book
	err := query.
		Preload("Category").
		Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: q.Desc}).
		Offset((q.Page - 1) * q.Size).
		Limit(q.Size).
		Find(&books).Error
	if err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

func (r *bookRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.Preload("Category").First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// GetByIDForUpdate locks the book row (SELECT … FOR UPDATE) for the rest of the transaction.
func (r *bookRepository) GetByIDForUpdate(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&book, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) ISBNTaken(db *gorm.DB, isbn string) (bool, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Book{}).Where("isbn = ?", isbn).Count(&n).Error
	return n > 0, err
}

func (r *bookRepository) Update(db *gorm.DB, id uuid.UUID, fields map[string]interface{}) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).Where("id = ?", id).Updates(fields).Error
}

func (r *bookRepository) SetAvailableCopies(db *gorm.DB, id uuid.UUID, available int) error {
	if db == nil {
		db = r.db
	}
	return db.Model(&models.Book{}).
		Where("id = ?", id).
		UpdateColumn("available_copies", available).
		Error
}

func (r *bookRepository) Delete(db *gorm.DB, id uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Delete(&models.Book{}, "id = ?", id)
	return res.RowsAffected, res.Error
}

func (r *bookRepository) Count(db *gorm.DB) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Book{}).Count(&n).Error
	return n, err
}
