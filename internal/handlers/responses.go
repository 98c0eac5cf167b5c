package handlers

import (
	"time"

	"github.com/google/uuid"

	"librarydesk/internal/models"
)

const dateLayout = "2006-01-02"

type userRef struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

type bookRef struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
}

// issueResponse exposes the lifecycle state both as a status and as the six
// flags clients already know.
type issueResponse struct {
	ID            uuid.UUID          `json:"id"`
	UserID        uuid.UUID          `json:"user_id"`
	BookID        uuid.UUID          `json:"book_id"`
	Status        models.IssueStatus `json:"status"`
	IssueDate     *string            `json:"issue_date"`
	ReturnDate    *string            `json:"return_date"`
	Fine          int                `json:"fine"`
	ReturnRemarks *string            `json:"return_remarks"`

	IssueRequested  bool `json:"issue_requested"`
	IssueApproved   bool `json:"issue_approved"`
	IssueRejected   bool `json:"issue_rejected"`
	ReturnRequested bool `json:"return_requested"`
	ReturnApproved  bool `json:"return_approved"`
	ReturnRejected  bool `json:"return_rejected"`

	User *userRef `json:"user"`
	Book *bookRef `json:"book"`
}

func newIssueResponse(issue *models.Issue) issueResponse {
	out := issueResponse{
		ID:              issue.ID,
		UserID:          issue.UserID,
		BookID:          issue.BookID,
		Status:          issue.Status,
		IssueDate:       formatDate(issue.IssueDate),
		ReturnDate:      formatDate(issue.ReturnDate),
		Fine:            issue.Fine,
		ReturnRemarks:   issue.ReturnRemarks,
		IssueRequested:  issue.Status.IssueRequested(),
		IssueApproved:   issue.Status.IssueApproved(),
		IssueRejected:   issue.Status.IssueRejected(),
		ReturnRequested: issue.Status.ReturnRequested(),
		ReturnApproved:  issue.Status.ReturnApproved(),
		ReturnRejected:  issue.Status.ReturnRejected(),
	}
	if issue.User != nil {
		out.User = &userRef{ID: issue.User.ID, Username: issue.User.Username}
	}
	if issue.Book != nil {
		out.Book = &bookRef{ID: issue.Book.ID, Title: issue.Book.Title}
	}
	return out
}

func newIssueList(issues []models.Issue) []issueResponse {
	out := make([]issueResponse, 0, len(issues))
	for i := range issues {
		out = append(out, newIssueResponse(&issues[i]))
	}
	return out
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(dateLayout)
	return &s
}

type userResponse struct {
	ID        uuid.UUID       `json:"id"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	Role      models.UserRole `json:"role"`
	CreatedAt time.Time       `json:"created_at"`
}
