package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRole string

const (
	UserRoleAdmin UserRole = "ADMIN"
	UserRoleUser  UserRole = "USER"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	return r == UserRoleAdmin || r == UserRoleUser
}

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"size:100;not null;uniqueIndex" json:"email"`
	Username  string    `gorm:"size:50;not null;uniqueIndex" json:"username"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Role      UserRole  `gorm:"size:16;not null;default:USER;index" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type Category struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
}

// Book carries the inventory ledger: AvailableCopies moves by exactly one per
// approved issue or return and always stays within [0, TotalCopies].
type Book struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title           string    `gorm:"size:100;not null" json:"title"`
	Author          string    `gorm:"size:100;not null" json:"author"`
	ISBN            string    `gorm:"column:isbn;size:20;not null;uniqueIndex" json:"isbn"`
	TotalCopies     int       `gorm:"not null;check:chk_books_total_copies,total_copies >= 0" json:"total_copies"`
	AvailableCopies int       `gorm:"not null;check:chk_books_available_copies,available_copies >= 0 AND available_copies <= total_copies" json:"available_copies"`
	CategoryID      uuid.UUID `gorm:"type:uuid;not null;index" json:"category_id"`
	Category        *Category `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"category,omitempty"`
}

// IssuedCopies is the number of copies currently out with borrowers.
func (b *Book) IssuedCopies() int {
	return b.TotalCopies - b.AvailableCopies
}

// TakeCopy consumes one available copy. It reports false when none is left.
func (b *Book) TakeCopy() bool {
	if b.AvailableCopies <= 0 {
		return false
	}
	b.AvailableCopies--
	return true
}

// PutBackCopy returns one copy to the shelf without exceeding TotalCopies.
func (b *Book) PutBackCopy() bool {
	if b.AvailableCopies >= b.TotalCopies {
		return false
	}
	b.AvailableCopies++
	return true
}

// Issue is one borrow lifecycle linking a User and a Book.
type Issue struct {
	ID            uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID   `gorm:"type:uuid;not null;index" json:"user_id"`
	User          *User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"user,omitempty"`
	BookID        uuid.UUID   `gorm:"type:uuid;not null;index" json:"book_id"`
	Book          *Book       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"book,omitempty"`
	Status        IssueStatus `gorm:"size:32;not null;index" json:"status"`
	IssueDate     *time.Time  `gorm:"type:date" json:"issue_date"`
	ReturnDate    *time.Time  `gorm:"type:date" json:"return_date"`
	Fine          int         `gorm:"not null;default:0" json:"fine"`
	ReturnRemarks *string     `gorm:"size:255" json:"return_remarks"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// ─── ID generation ────────────────────────────────────────────────────────────

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (c *Category) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (b *Book) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (i *Issue) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
