package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"librarydesk/internal/models"
)

// ─── Borrower ─────────────────────────────────────────────────────────────────

func (h *LibraryHandler) requestIssue(c *gin.Context) {
	bookID, ok := parseID(c, "book_id", "book")
	if !ok {
		return
	}
	issue, err := h.svc.Issues.RequestIssue(c.Request.Context(), actorFrom(c), bookID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Issue request sent to admin",
		"issue":   newIssueResponse(issue),
	})
}

func (h *LibraryHandler) requestReturn(c *gin.Context) {
	issueID, ok := parseID(c, "issue_id", "issue")
	if !ok {
		return
	}
	issue, err := h.svc.Issues.RequestReturn(c.Request.Context(), actorFrom(c), issueID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Return request sent to admin",
		"issue":   newIssueResponse(issue),
	})
}

func (h *LibraryHandler) myBooks(c *gin.Context) {
	h.respondIssues(c)(h.svc.Dashboard.MyBooks(c.Request.Context(), actorFrom(c)))
}

func (h *LibraryHandler) myHistory(c *gin.Context) {
	h.respondIssues(c)(h.svc.Dashboard.MyHistory(c.Request.Context(), actorFrom(c)))
}

// ─── Admin ────────────────────────────────────────────────────────────────────

func (h *LibraryHandler) pendingIssues(c *gin.Context) {
	h.respondIssues(c)(h.svc.Dashboard.PendingIssues(c.Request.Context(), actorFrom(c)))
}

func (h *LibraryHandler) pendingReturns(c *gin.Context) {
	h.respondIssues(c)(h.svc.Dashboard.PendingReturns(c.Request.Context(), actorFrom(c)))
}

func (h *LibraryHandler) history(c *gin.Context) {
	h.respondIssues(c)(h.svc.Dashboard.History(c.Request.Context(), actorFrom(c)))
}

// overdue recomputes and persists fines before listing, on GET as well as POST.
// GET with recompute=false lists the stored fines instead.
func (h *LibraryHandler) overdue(c *gin.Context) {
	if c.Request.Method == http.MethodGet && c.Query("recompute") == "false" {
		h.respondIssues(c)(h.svc.Issues.ListOverdue(c.Request.Context(), actorFrom(c)))
		return
	}
	h.respondIssues(c)(h.svc.Issues.RecomputeOverdue(c.Request.Context(), actorFrom(c)))
}

func (h *LibraryHandler) approveIssue(c *gin.Context) {
	issueID, ok := parseID(c, "id", "issue")
	if !ok {
		return
	}
	issue, err := h.svc.Issues.ApproveIssue(c.Request.Context(), actorFrom(c), issueID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Book issued successfully",
		"issue":   newIssueResponse(issue),
	})
}

func (h *LibraryHandler) rejectIssue(c *gin.Context) {
	issueID, ok := parseID(c, "id", "issue")
	if !ok {
		return
	}
	issue, err := h.svc.Issues.RejectIssue(c.Request.Context(), actorFrom(c), issueID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Issue request rejected",
		"issue":   newIssueResponse(issue),
	})
}

func (h *LibraryHandler) approveReturn(c *gin.Context) {
	issueID, ok := parseID(c, "id", "issue")
	if !ok {
		return
	}
	var remarks *string
	if v, present := c.GetQuery("remarks"); present {
		remarks = &v
	}
	issue, err := h.svc.Issues.ApproveReturn(c.Request.Context(), actorFrom(c), issueID, remarks)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newIssueResponse(issue))
}

type rejectReturnRequest struct {
	Reason *string `json:"reason" binding:"omitempty,max=255"`
}

func (h *LibraryHandler) rejectReturn(c *gin.Context) {
	issueID, ok := parseID(c, "id", "issue")
	if !ok {
		return
	}
	var req rejectReturnRequest
	// The body is optional, whether it is sent empty or left out.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}
	issue, err := h.svc.Issues.RejectReturn(c.Request.Context(), actorFrom(c), issueID, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newIssueResponse(issue))
}

// respondIssues adapts a list call so handlers stay one line.
func (h *LibraryHandler) respondIssues(c *gin.Context) func([]models.Issue, error) {
	return func(issues []models.Issue, err error) {
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, newIssueList(issues))
	}
}
